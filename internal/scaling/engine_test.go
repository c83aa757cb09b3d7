package scaling

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/humam/internal/anatomy"
	"github.com/roach88/humam/internal/fault"
)

func key(area string, layer anatomy.Layer, pop string) anatomy.PopulationKey {
	return anatomy.PopulationKey{Area: area, Layer: layer, Population: pop}
}

func proj(target, source anatomy.PopulationKey) anatomy.Projection {
	return anatomy.Projection{Target: target, Source: source}
}

var (
	aE23 = key("A", anatomy.L23, "E")
	aI23 = key("A", anatomy.L23, "I")
	aE4  = key("A", anatomy.L4, "E")
	bE23 = key("B", anatomy.L23, "E")
	bI23 = key("B", anatomy.L23, "I")
)

// twoAreas is a small network with intra- and inter-areal projections.
func twoAreas() anatomy.FullScale {
	return anatomy.FullScale{
		Neurons: anatomy.NeuronTable{
			aE23: 1000, aI23: 250, aE4: 800, bE23: 1200, bI23: 300,
		},
		Synapses: anatomy.SynapseTable{
			proj(aE23, aE4):  500000,
			proj(aE23, aI23): 80000,
			proj(aI23, aE23): 60000,
			proj(aE23, bE23): 20000,
			proj(aI23, bE23): 7000,
			proj(bE23, aE23): 15000,
			proj(bE23, bI23): 90000,
			proj(bI23, aI23): 300,
		},
		Rates: anatomy.RateTable{
			aE23: 2, aI23: 8, aE4: 3, bE23: 1.5, bI23: 6,
		},
	}
}

func TestScaleIdentityAtFullScale(t *testing.T) {
	full := twoAreas()
	for _, p := range PolicyNames() {
		t.Run(p, func(t *testing.T) {
			policy, err := PolicyByName(p)
			require.NoError(t, err)

			res, err := Scale(full, FullScale(), WithPolicy(policy))
			require.NoError(t, err)

			assert.Equal(t, full.Neurons, res.Neurons)
			assert.Equal(t, full.Synapses, res.Synapses)
			for k, c := range res.Compensation {
				assert.Equal(t, 1.0, c.WeightFactor, k.String())
				assert.Zero(t, c.DC, k.String())
			}
			for k, n := range res.External {
				assert.Equal(t, int64(1000), n, k.String())
			}
		})
	}
}

func TestScaleCounts(t *testing.T) {
	full := anatomy.FullScale{
		Neurons:  anatomy.NeuronTable{aE23: 1000, aE4: 1000},
		Synapses: anatomy.SynapseTable{proj(aE23, aE4): 500000},
		Rates:    anatomy.RateTable{aE23: 1, aE4: 1},
	}
	res, err := Scale(full, Factors{NScaling: 0.004, KScaling: 0.004, CCScalingEtoE: 1})
	require.NoError(t, err)

	assert.Equal(t, int64(4), res.Neurons[aE23])
	assert.Equal(t, int64(2000), res.Synapses[proj(aE23, aE4)])
	assert.Greater(t, res.Compensation[aE23].WeightFactor, 1.0)
	assert.InDelta(t, 1/math.Sqrt(0.004), res.Compensation[aE23].WeightFactor, 1e-12)
	assert.Equal(t, int64(4), res.External[aE23])
}

func TestScaleRoundingKeepsEmptyPopulations(t *testing.T) {
	full := anatomy.FullScale{
		Neurons: anatomy.NeuronTable{aE23: 100, aI23: 0},
		Rates:   anatomy.RateTable{aE23: 1, aI23: 1},
	}
	res, err := Scale(full, Factors{NScaling: 0.001, KScaling: 1, CCScalingEtoE: 1})
	require.NoError(t, err)

	n, ok := res.Neurons[aE23]
	assert.True(t, ok)
	assert.Zero(t, n)
	assert.Zero(t, res.Neurons[aI23])
}

func TestScaleRemovesInterArealWhenCCIsZero(t *testing.T) {
	full := twoAreas()
	f := Factors{NScaling: 0.5, KScaling: 0.5, CCScalingEtoE: 0}

	res, err := Scale(full, f)
	require.NoError(t, err)
	assert.Zero(t, res.Synapses.InterAreal())
	for p := range res.Weights {
		assert.False(t, p.InterAreal(), p.String())
	}

	ref, err := Scale(full, Factors{NScaling: 0.5, KScaling: 0.5, CCScalingEtoE: 1})
	require.NoError(t, err)
	for p, n := range ref.Synapses {
		if !p.InterAreal() {
			assert.Equal(t, n, res.Synapses[p], p.String())
		}
	}
}

func TestScaleWeights(t *testing.T) {
	full := twoAreas()
	w := Weights{W: 10, G: -4, L4ToL23: 2}
	res, err := Scale(full, Factors{NScaling: 1, KScaling: 1, CCScalingEtoE: 1.5}, WithWeights(w))
	require.NoError(t, err)

	assert.Equal(t, 20.0, res.Weights[proj(aE23, aE4)], "L4 E to L2/3 E doubled")
	assert.Equal(t, -40.0, res.Weights[proj(aE23, aI23)], "inhibitory source")
	assert.Equal(t, 10.0, res.Weights[proj(aI23, aE23)])
	assert.Equal(t, 15.0, res.Weights[proj(aE23, bE23)], "inter-areal E to E")
	assert.Equal(t, 30.0, res.Weights[proj(aI23, bE23)], "inter-areal E to I")
	assert.Equal(t, -40.0, res.Weights[proj(bI23, aI23)], "inter-areal inhibitory source")
}

func TestScaleDCDrive(t *testing.T) {
	full := anatomy.FullScale{
		Neurons:  anatomy.NeuronTable{aE4: 100},
		Synapses: anatomy.SynapseTable{proj(aE4, aE4): 1000},
		Rates:    anatomy.RateTable{aE4: 2},
	}
	res, err := Scale(full, Factors{NScaling: 1, KScaling: 0.25, CCScalingEtoE: 1},
		WithWeights(Weights{W: 1, G: -1, L4ToL23: 1}),
		WithExternal(External{K: 100, W: 1, Rate: 10}),
		WithTauSyn(0.5))
	require.NoError(t, err)

	// full = 1*10*2 + 1*100*10 = 1020; scaled = 2*2.5*2 + 2*25*10 = 510
	// DC = 1e-3 * 0.5 * (1020 - 510), which is 1e-3*tau*(1-sqrt(k))*full
	c := res.Compensation[aE4]
	assert.InDelta(t, 0.255, c.DC, 1e-12)
	assert.InDelta(t, 2.0, c.WeightFactor, 1e-12)
	assert.InDelta(t, 2.0, res.Weights[proj(aE4, aE4)], 1e-12)
	assert.Equal(t, int64(25), res.External[aE4])
	assert.Equal(t, int64(250), res.Synapses[proj(aE4, aE4)])
}

func TestWeightFactorIsMonotonic(t *testing.T) {
	ks := []float64{1, 0.5, 0.1, 0.01, 0.004}
	for _, p := range []CompensationPolicy{Sqrt{}, Mean{}, None{}} {
		t.Run(p.Name(), func(t *testing.T) {
			prev := p.WeightFactor(ks[0])
			assert.Equal(t, 1.0, prev)
			for _, k := range ks[1:] {
				wf := p.WeightFactor(k)
				assert.GreaterOrEqual(t, wf, prev)
				prev = wf
			}
		})
	}
}

func TestScaleDoesNotModifyInput(t *testing.T) {
	full := twoAreas()
	before := full.Synapses.Clone()
	_, err := Scale(full, Factors{NScaling: 0.1, KScaling: 0.1, CCScalingEtoE: 0})
	require.NoError(t, err)
	assert.Equal(t, before, full.Synapses)
}

func TestScaleErrors(t *testing.T) {
	valid := Factors{NScaling: 0.5, KScaling: 0.5, CCScalingEtoE: 1}
	tests := []struct {
		name string
		full func() anatomy.FullScale
		f    Factors
		opts []Option
	}{
		{name: "zero N", f: Factors{NScaling: 0, KScaling: 1, CCScalingEtoE: 1}},
		{name: "negative K", f: Factors{NScaling: 1, KScaling: -0.1, CCScalingEtoE: 1}},
		{name: "overscale", f: Factors{NScaling: 1.5, KScaling: 1, CCScalingEtoE: 1}},
		{name: "NaN K", f: Factors{NScaling: 1, KScaling: math.NaN(), CCScalingEtoE: 1}},
		{name: "negative cc", f: Factors{NScaling: 1, KScaling: 1, CCScalingEtoE: -1}},
		{name: "infinite cc", f: Factors{NScaling: 1, KScaling: 1, CCScalingEtoE: math.Inf(1)}},
		{
			name: "missing rate", f: valid,
			full: func() anatomy.FullScale {
				full := twoAreas()
				delete(full.Rates, aE4)
				return full
			},
		},
		{
			name: "unknown source", f: valid,
			full: func() anatomy.FullScale {
				full := twoAreas()
				full.Synapses[proj(aE23, key("C", anatomy.L5, "E"))] = 10
				return full
			},
		},
		{name: "NaN weight", f: valid, opts: []Option{WithWeights(Weights{W: math.NaN(), G: -1, L4ToL23: 1})}},
		{name: "zero tau", f: valid, opts: []Option{WithTauSyn(0)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			full := twoAreas()
			if tt.full != nil {
				full = tt.full()
			}
			_, err := Scale(full, tt.f, tt.opts...)
			require.Error(t, err)
			assert.True(t, fault.Is(err, fault.Configuration), err.Error())
		})
	}
}

func TestScaleAllowOverscale(t *testing.T) {
	f := Factors{NScaling: 2, KScaling: 2, CCScalingEtoE: 1, AllowOverscale: true}
	res, err := Scale(twoAreas(), f)
	require.NoError(t, err)
	assert.Equal(t, int64(2000), res.Neurons[aE23])
}

func TestPolicyByName(t *testing.T) {
	p, err := PolicyByName("")
	require.NoError(t, err)
	assert.Equal(t, PolicySqrt, p.Name())

	p, err = PolicyByName("mean")
	require.NoError(t, err)
	assert.Equal(t, PolicyMean, p.Name())

	_, err = PolicyByName("quadratic")
	assert.True(t, fault.Is(err, fault.Configuration))
}

func TestCCScalingEtoI(t *testing.T) {
	assert.Equal(t, 3.0, Factors{CCScalingEtoE: 1.5}.CCScalingEtoI())
}

// meanInput is the mean synaptic drive onto target in pA, read from the
// scaled tables themselves: tau·(Σ (S/N)·W·ν + K_ext·W_ext·ν_bg) + DC, with
// external weights compensated like the recurrent ones.
func meanInput(full anatomy.FullScale, res *Result, target anatomy.PopulationKey, ext External, tauSyn float64) float64 {
	var sum float64
	for p, n := range res.Synapses {
		if p.Target == target {
			sum += float64(n) / float64(res.Neurons[target]) * res.Weights[p] * full.Rates[p.Source]
		}
	}
	c := res.Compensation[target]
	sum += float64(res.External[target]) * ext.W * c.WeightFactor * ext.Rate
	return 1e-3*tauSyn*sum + c.DC
}

// The sqrt and mean policies keep every population's mean input at its
// full-scale value, whatever NScaling does to the indegree.
func TestCompensationPreservesMeanInput(t *testing.T) {
	full := twoAreas()
	ref, err := Scale(full, FullScale())
	require.NoError(t, err)

	for _, p := range []CompensationPolicy{Sqrt{}, Mean{}} {
		for _, f := range []Factors{
			{NScaling: 1, KScaling: 0.25, CCScalingEtoE: 1},
			{NScaling: 0.25, KScaling: 0.25, CCScalingEtoE: 1},
			{NScaling: 0.004, KScaling: 0.004, CCScalingEtoE: 1},
			{NScaling: 0.25, KScaling: 0.1, CCScalingEtoE: 1},
		} {
			t.Run(fmt.Sprintf("%s/N=%g/K=%g", p.Name(), f.NScaling, f.KScaling), func(t *testing.T) {
				res, err := Scale(full, f, WithPolicy(p))
				require.NoError(t, err)
				for k := range full.Neurons {
					require.Positive(t, res.Neurons[k], k.String())
					want := meanInput(full, ref, k, DefaultExternal, DefaultTauSyn)
					got := meanInput(full, res, k, DefaultExternal, DefaultTauSyn)
					assert.InEpsilon(t, want, got, 1e-9, k.String())
				}
			})
		}
	}

	res, err := Scale(full, Factors{NScaling: 1, KScaling: 0.25, CCScalingEtoE: 1}, WithPolicy(None{}))
	require.NoError(t, err)
	assert.Less(t,
		meanInput(full, res, aE4, DefaultExternal, DefaultTauSyn),
		meanInput(full, ref, aE4, DefaultExternal, DefaultTauSyn))
	for k, c := range res.Compensation {
		assert.Zero(t, c.DC, k.String())
	}
}

// When N and K shrink together the indegree is unchanged, so the grown
// weights overshoot and DC must pull the mean back down.
func TestScaleDCOffsetsUnchangedIndegree(t *testing.T) {
	full := anatomy.FullScale{
		Neurons:  anatomy.NeuronTable{aE4: 100},
		Synapses: anatomy.SynapseTable{proj(aE4, aE4): 1000},
		Rates:    anatomy.RateTable{aE4: 2},
	}
	res, err := Scale(full, Factors{NScaling: 0.25, KScaling: 0.25, CCScalingEtoE: 1},
		WithWeights(Weights{W: 1, G: -1, L4ToL23: 1}),
		WithExternal(External{K: 100, W: 1, Rate: 10}),
		WithTauSyn(0.5))
	require.NoError(t, err)

	// full = 1*10*2 + 1*100*10 = 1020
	// scaled = 2*(250/25)*2 + 2*25*10 = 40 + 500 = 540
	// DC = 1e-3 * 0.5 * (1020 - 540)
	assert.InDelta(t, 0.24, res.Compensation[aE4].DC, 1e-12)
}

func TestScaleNoDCForEmptyPopulation(t *testing.T) {
	full := anatomy.FullScale{
		Neurons:  anatomy.NeuronTable{aE23: 100, aE4: 1},
		Synapses: anatomy.SynapseTable{proj(aE4, aE23): 50, proj(aE23, aE4): 50},
		Rates:    anatomy.RateTable{aE23: 1, aE4: 5},
	}
	res, err := Scale(full, Factors{NScaling: 0.1, KScaling: 0.1, CCScalingEtoE: 1})
	require.NoError(t, err)

	assert.Zero(t, res.Neurons[aE4])
	assert.Zero(t, res.Compensation[aE4].DC)
	assert.NotZero(t, res.Compensation[aE23].DC)
}
