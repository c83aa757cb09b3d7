// Package scaling down-scales a full-scale network and compensates the
// reduced number of inputs so that the first- and second-order statistics of
// the population activity stay close to the full-scale model.
//
// Scale is a pure function: it performs no I/O and does not log.
package scaling

import (
	"math"

	"github.com/roach88/humam/internal/fault"
)

// Factors are the scaling factors applied to a full-scale network.
type Factors struct {
	// NScaling scales neuron counts.
	NScaling float64

	// KScaling scales synapse counts and indegrees.
	KScaling float64

	// CCScalingEtoE scales inter-areal weights from excitatory sources onto
	// excitatory targets. Inhibitory targets get CCScalingEtoI.
	CCScalingEtoE float64

	// AllowOverscale permits NScaling and KScaling above 1.
	AllowOverscale bool
}

// FullScale returns the identity factors.
func FullScale() Factors {
	return Factors{NScaling: 1, KScaling: 1, CCScalingEtoE: 1}
}

// CCScalingEtoI is the inter-areal scaling onto inhibitory targets. It is
// always twice CCScalingEtoE.
func (f Factors) CCScalingEtoI() float64 {
	return 2 * f.CCScalingEtoE
}

// Validate checks the factors are finite and in range.
func (f Factors) Validate() error {
	const op = "scaling.Factors"
	for _, c := range []struct {
		name string
		v    float64
	}{
		{"N_scaling", f.NScaling},
		{"K_scaling", f.KScaling},
	} {
		if !finite(c.v) || c.v <= 0 {
			return fault.Configf(op, "%s must be positive, got %v", c.name, c.v)
		}
		if c.v > 1 && !f.AllowOverscale {
			return fault.Configf(op, "%s = %v exceeds 1 (set allow_overscale to permit)", c.name, c.v)
		}
	}
	if !finite(f.CCScalingEtoE) || f.CCScalingEtoE < 0 {
		return fault.Configf(op, "cc_scalingEtoE must be a non-negative number, got %v", f.CCScalingEtoE)
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// scaleCount rounds n*f half away from zero.
func scaleCount(n int64, f float64) int64 {
	if n == 0 {
		return 0
	}
	return int64(math.Round(float64(n) * f))
}
