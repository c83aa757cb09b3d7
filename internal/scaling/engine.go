package scaling

import (
	"maps"
	"math"

	"github.com/roach88/humam/internal/anatomy"
	"github.com/roach88/humam/internal/fault"
)

// Weights are the base synaptic weights of the model in pA.
type Weights struct {
	// W is the excitatory weight.
	W float64

	// G is the relative inhibitory weight; inhibitory sources get G*W.
	G float64

	// L4ToL23 multiplies intra-areal L4 E to L2/3 E connections.
	L4ToL23 float64
}

// External describes the Poisson background drive of every population.
type External struct {
	// K is the full-scale external indegree.
	K float64

	// W is the weight of external synapses in pA.
	W float64

	// Rate is the background rate in spikes/s.
	Rate float64
}

// Defaults match the reference parametrisation of the model.
var (
	DefaultWeights  = Weights{W: 87.8, G: -11, L4ToL23: 2}
	DefaultExternal = External{K: 1000, W: 87.8, Rate: 10}
)

// DefaultTauSyn is the synaptic time constant in ms.
const DefaultTauSyn = 0.5

type options struct {
	weights  Weights
	external External
	tauSyn   float64
	policy   CompensationPolicy
}

// Option configures Scale.
type Option func(*options)

// WithWeights sets the base weights.
func WithWeights(w Weights) Option {
	return func(o *options) { o.weights = w }
}

// WithExternal sets the background drive.
func WithExternal(e External) Option {
	return func(o *options) { o.external = e }
}

// WithTauSyn sets the synaptic time constant in ms.
func WithTauSyn(tau float64) Option {
	return func(o *options) { o.tauSyn = tau }
}

// WithPolicy sets the compensation policy.
func WithPolicy(p CompensationPolicy) Option {
	return func(o *options) { o.policy = p }
}

// WeightTable maps each projection to its synaptic weight in pA.
type WeightTable map[anatomy.Projection]float64

// CompensationRecord holds the compensation of every population.
type CompensationRecord map[anatomy.PopulationKey]Compensation

// ExternalTable maps each population to its scaled external indegree.
type ExternalTable map[anatomy.PopulationKey]int64

// Result is a down-scaled, compensated network.
type Result struct {
	Neurons      anatomy.NeuronTable
	Synapses     anatomy.SynapseTable
	Weights      WeightTable
	Compensation CompensationRecord
	External     ExternalTable
	Factors      Factors
	Policy       string
}

// Scale down-scales full by f.
//
// Neuron counts are scaled by NScaling and synapse counts by KScaling, both
// rounded half away from zero. Weights are the base weights times the
// inter-areal scaling times the policy's weight factor. With
// CCScalingEtoE == 0 every inter-areal projection is dropped.
//
// For policies that restore the mean, DC is the full-scale mean input minus
// the mean input of the scaled network, whose indegree per target is
// scaled synapses over scaled neurons. Targets scaled to zero neurons get no
// DC.
func Scale(full anatomy.FullScale, f Factors, opts ...Option) (*Result, error) {
	const op = "scaling.Scale"

	o := options{weights: DefaultWeights, external: DefaultExternal, tauSyn: DefaultTauSyn, policy: Sqrt{}}
	for _, opt := range opts {
		opt(&o)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	if err := o.validate(); err != nil {
		return nil, err
	}
	if err := checkTables(full); err != nil {
		return nil, err
	}

	res := &Result{
		Neurons:      make(anatomy.NeuronTable, len(full.Neurons)),
		Synapses:     make(anatomy.SynapseTable, len(full.Synapses)),
		Weights:      make(WeightTable, len(full.Synapses)),
		Compensation: make(CompensationRecord, len(full.Neurons)),
		External:     make(ExternalTable, len(full.Neurons)),
		Factors:      f,
		Policy:       o.policy.Name(),
	}

	for k, n := range full.Neurons {
		res.Neurons[k] = scaleCount(n, f.NScaling)
	}

	wf := o.policy.WeightFactor(f.KScaling)
	if !finite(wf) || wf <= 0 {
		return nil, fault.Configf(op, "compensation weight factor %v is not a positive number", wf)
	}

	// fullIn and scaledIn accumulate the mean drive per target, Σ W·(S/N)·ν,
	// at full scale and on the scaled tables. Both sums run in the same order
	// so they agree exactly at identity.
	fullIn := make(map[anatomy.PopulationKey]float64, len(full.Neurons))
	scaledIn := make(map[anatomy.PopulationKey]float64, len(full.Neurons))
	for _, p := range full.Synapses.Projections() {
		if f.CCScalingEtoE == 0 && p.InterAreal() {
			continue
		}
		n := full.Synapses[p]
		w := o.weights.base(p) * ccFactor(p, f)
		sn := scaleCount(n, f.KScaling)
		res.Synapses[p] = sn
		res.Weights[p] = w * wf

		rate := full.Rates[p.Source]
		if nt := full.Neurons[p.Target]; nt > 0 {
			fullIn[p.Target] += w * (float64(n) / float64(nt)) * rate
		}
		if nt := res.Neurons[p.Target]; nt > 0 {
			scaledIn[p.Target] += res.Weights[p] * (float64(sn) / float64(nt)) * rate
		}
	}

	kExt := int64(math.Round(o.external.K * f.KScaling))
	for k := range full.Neurons {
		res.External[k] = kExt
		c := Compensation{WeightFactor: wf}
		if o.policy.RestoresMean() && res.Neurons[k] > 0 {
			want := fullIn[k] + o.external.W*o.external.K*o.external.Rate
			got := scaledIn[k] + o.external.W*wf*float64(kExt)*o.external.Rate
			c.DC = 1e-3 * o.tauSyn * (want - got)
		}
		if !finite(c.DC) {
			return nil, fault.Configf(op, "compensation of %s is not finite", k)
		}
		res.Compensation[k] = c
	}
	return res, nil
}

// base returns the uncompensated weight of p without inter-areal scaling.
func (w Weights) base(p anatomy.Projection) float64 {
	v := w.W
	if !p.Source.Excitatory() {
		v *= w.G
	}
	if !p.InterAreal() && p.Source.Excitatory() && p.Target.Excitatory() &&
		p.Source.Layer == anatomy.L4 && p.Target.Layer == anatomy.L23 {
		v *= w.L4ToL23
	}
	return v
}

// ccFactor is the inter-areal scaling of p, 1 for intra-areal projections
// and for inhibitory sources.
func ccFactor(p anatomy.Projection, f Factors) float64 {
	if !p.InterAreal() || !p.Source.Excitatory() {
		return 1
	}
	if p.Target.Excitatory() {
		return f.CCScalingEtoE
	}
	return f.CCScalingEtoI()
}

func (o options) validate() error {
	const op = "scaling.Scale"
	if o.policy == nil {
		return fault.Configf(op, "no compensation policy")
	}
	for name, v := range map[string]float64{
		"w": o.weights.W, "g": o.weights.G, "l4_to_l23": o.weights.L4ToL23,
		"k_ext": o.external.K, "w_ext": o.external.W, "bg_rate": o.external.Rate,
		"tau_syn": o.tauSyn,
	} {
		if !finite(v) {
			return fault.Configf(op, "%s is not finite", name)
		}
	}
	if o.external.K < 0 || o.external.Rate < 0 {
		return fault.Configf(op, "external indegree and rate must be non-negative")
	}
	if o.tauSyn <= 0 {
		return fault.Configf(op, "tau_syn must be positive, got %v", o.tauSyn)
	}
	return nil
}

func checkTables(full anatomy.FullScale) error {
	const op = "scaling.Scale"
	for k, n := range full.Neurons {
		if n < 0 {
			return fault.Configf(op, "negative neuron count for %s", k)
		}
		r, ok := full.Rates[k]
		if !ok {
			return fault.Configf(op, "no rate for population %s", k)
		}
		if !finite(r) || r < 0 {
			return fault.Configf(op, "invalid rate %v for %s", r, k)
		}
	}
	for p, n := range full.Synapses {
		if n < 0 {
			return fault.Configf(op, "negative synapse count for %s", p)
		}
		if _, ok := full.Neurons[p.Target]; !ok {
			return fault.Configf(op, "synapses target unknown population %s", p.Target)
		}
		if _, ok := full.Neurons[p.Source]; !ok {
			return fault.Configf(op, "synapses from unknown population %s", p.Source)
		}
	}
	return nil
}

// Clone returns a deep copy of r.
func (r *Result) Clone() *Result {
	return &Result{
		Neurons:      r.Neurons.Clone(),
		Synapses:     r.Synapses.Clone(),
		Weights:      maps.Clone(r.Weights),
		Compensation: maps.Clone(r.Compensation),
		External:     maps.Clone(r.External),
		Factors:      r.Factors,
		Policy:       r.Policy,
	}
}
