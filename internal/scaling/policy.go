package scaling

import (
	"math"
	"slices"
	"strings"

	"github.com/roach88/humam/internal/fault"
)

// Compensation is the correction applied to one target population.
type Compensation struct {
	// WeightFactor multiplies every incoming synaptic weight.
	WeightFactor float64

	// DC is an additional constant input current in pA.
	DC float64
}

// CompensationPolicy decides how the loss of inputs is compensated when
// synapse counts are scaled by k.
//
// WeightFactor multiplies every weight onto the target. When RestoresMean is
// true, Scale supplies the difference between the full-scale and the scaled
// mean input as DC drive, measured on the scaled network's actual indegrees.
type CompensationPolicy interface {
	Name() string
	WeightFactor(k float64) float64
	RestoresMean() bool
}

// Policy names.
const (
	PolicySqrt = "sqrt"
	PolicyMean = "mean"
	PolicyNone = "none"
)

// Sqrt preserves the variance of the input: weights grow by 1/sqrt(k) and
// the missing mean is supplied as DC drive (van Albada et al. 2015).
type Sqrt struct{}

func (Sqrt) Name() string                   { return PolicySqrt }
func (Sqrt) WeightFactor(k float64) float64 { return 1 / math.Sqrt(k) }
func (Sqrt) RestoresMean() bool             { return true }

// Mean grows weights by 1/k. Any residual left by rounding or by an indegree
// that does not shrink by exactly k is supplied as DC drive.
type Mean struct{}

func (Mean) Name() string                   { return PolicyMean }
func (Mean) WeightFactor(k float64) float64 { return 1 / k }
func (Mean) RestoresMean() bool             { return true }

// None applies no compensation.
type None struct{}

func (None) Name() string                 { return PolicyNone }
func (None) WeightFactor(float64) float64 { return 1 }
func (None) RestoresMean() bool           { return false }

var policies = map[string]CompensationPolicy{
	PolicySqrt: Sqrt{},
	PolicyMean: Mean{},
	PolicyNone: None{},
}

// PolicyByName returns the named policy. The empty name selects Sqrt.
func PolicyByName(name string) (CompensationPolicy, error) {
	if name == "" {
		return Sqrt{}, nil
	}
	p, ok := policies[name]
	if !ok {
		return nil, fault.Configf("scaling.PolicyByName", "unknown compensation policy %q (want one of %s)",
			name, strings.Join(PolicyNames(), ", "))
	}
	return p, nil
}

// PolicyNames lists the registered policies in sorted order.
func PolicyNames() []string {
	names := make([]string, 0, len(policies))
	for n := range policies {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}
