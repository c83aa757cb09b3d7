// Package analysis is the third pipeline stage. It computes summary
// statistics of a stored simulation and stores them under the hash of
// (simulation hash, analysis parameters).
package analysis

import (
	"math"
	"slices"

	"github.com/roach88/humam/internal/anatomy"
	"github.com/roach88/humam/internal/fault"
	"github.com/roach88/humam/internal/param"
)

// Defaults for optional parameters.
const (
	DefaultSamplingFraction = 0.1
	DefaultBinSize          = 1.0
	DefaultSeed             = 1
)

// Params are the analysis parameters.
type Params struct {
	// TStart and TStop bound the analysis window in ms. TStop of zero means
	// the end of the simulation.
	TStart float64
	TStop  float64

	// Areas restricts the analysis. Empty means every simulated area.
	Areas []string

	// SamplingFraction is the share of each population used for pairwise
	// correlations and the raster sample.
	SamplingFraction float64

	// BinSize is the width of spike count bins in ms.
	BinSize float64
	Seed    int64

	// Hemisphere picks the resting-state network assignment that orders the
	// functional connectivity matrix. Empty means left.
	Hemisphere string
}

// LoadParams reads analysis parameters from a YAML, JSON or CUE file.
func LoadParams(path string) (Params, error) {
	tree, err := param.LoadFile(path)
	if err != nil {
		return Params{}, fault.Wrap(fault.Configuration, "analysis.LoadParams", err, "load %s", path)
	}
	return ParseParams(tree)
}

// ParseParams validates tree and fills defaults.
func ParseParams(tree param.Object) (Params, error) {
	const op = "analysis.ParseParams"
	wrap := func(err error) error { return fault.Wrap(fault.Configuration, op, err, "analysis parameters") }

	if err := tree.CheckKeys("areas", "bin_size", "hemisphere", "sampling_fraction", "seed", "t_start", "t_stop"); err != nil {
		return Params{}, wrap(err)
	}
	var (
		p   Params
		err error
	)
	if p.TStart, err = tree.Number("t_start", 0); err != nil {
		return Params{}, wrap(err)
	}
	if p.TStop, err = tree.Number("t_stop", 0); err != nil {
		return Params{}, wrap(err)
	}
	if p.Areas, err = tree.Strings("areas"); err != nil {
		return Params{}, wrap(err)
	}
	if p.SamplingFraction, err = tree.Number("sampling_fraction", DefaultSamplingFraction); err != nil {
		return Params{}, wrap(err)
	}
	if p.BinSize, err = tree.Number("bin_size", DefaultBinSize); err != nil {
		return Params{}, wrap(err)
	}
	if p.Seed, err = tree.Integer("seed", DefaultSeed); err != nil {
		return Params{}, wrap(err)
	}
	if p.Hemisphere, err = tree.Str("hemisphere", anatomy.HemisphereLeft); err != nil {
		return Params{}, wrap(err)
	}
	p.Areas = normalizeAreas(p.Areas)
	if err := p.Validate(); err != nil {
		return Params{}, err
	}
	return p, nil
}

func normalizeAreas(areas []string) []string {
	if len(areas) == 0 {
		return nil
	}
	out := slices.Clone(areas)
	slices.Sort(out)
	return slices.Compact(out)
}

// Validate checks the ranges that do not depend on the simulation.
func (p Params) Validate() error {
	const op = "analysis.Params"
	for _, v := range []float64{p.TStart, p.TStop, p.SamplingFraction, p.BinSize} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fault.Configf(op, "non-finite parameter %v", v)
		}
	}
	if p.TStart < 0 {
		return fault.Configf(op, "t_start must not be negative, got %v", p.TStart)
	}
	if p.TStop != 0 && p.TStop <= p.TStart {
		return fault.Configf(op, "t_stop %v must exceed t_start %v", p.TStop, p.TStart)
	}
	if !(p.SamplingFraction > 0 && p.SamplingFraction <= 1) {
		return fault.Configf(op, "sampling_fraction must be in (0,1], got %v", p.SamplingFraction)
	}
	if !(p.BinSize > 0) {
		return fault.Configf(op, "bin_size must be positive, got %v", p.BinSize)
	}
	for _, a := range p.Areas {
		if !anatomy.IsDesikanKilliany(a) {
			return fault.Configf(op, "area %q is not a Desikan-Killiany parcel", a)
		}
	}
	if _, err := anatomy.HemisphereNetworks(p.Hemisphere); err != nil {
		return fault.Wrap(fault.Configuration, op, err, "hemisphere")
	}
	return nil
}

// networks returns the resting-state assignment of p's hemisphere.
func (p Params) networks() map[string]string {
	m, err := anatomy.HemisphereNetworks(p.Hemisphere)
	if err != nil {
		return anatomy.LeftHemisphereNetworks
	}
	return m
}

func (p Params) hemisphere() string {
	if p.Hemisphere == "" {
		return anatomy.HemisphereLeft
	}
	return p.Hemisphere
}

// Window resolves the analysis window against a simulation of the given
// duration.
func (p Params) Window(duration float64) (start, stop float64, err error) {
	const op = "analysis.Params"
	stop = p.TStop
	if stop == 0 {
		stop = duration
	}
	if stop > duration {
		return 0, 0, fault.Configf(op, "t_stop %v exceeds simulated duration %v", stop, duration)
	}
	if stop <= p.TStart {
		return 0, 0, fault.Configf(op, "empty window [%v,%v)", p.TStart, stop)
	}
	if p.BinSize > stop-p.TStart {
		return 0, 0, fault.Configf(op, "bin_size %v exceeds the window", p.BinSize)
	}
	return p.TStart, stop, nil
}

// Tree returns the normalised parameter tree of p.
func (p Params) Tree() param.Object {
	areas := make(param.Array, 0, len(p.Areas))
	for _, a := range normalizeAreas(p.Areas) {
		areas = append(areas, param.String(a))
	}
	return param.Object{
		"t_start":           param.Float(p.TStart),
		"t_stop":            param.Float(p.TStop),
		"areas":             areas,
		"sampling_fraction": param.Float(p.SamplingFraction),
		"bin_size":          param.Float(p.BinSize),
		"seed":              param.Int(p.Seed),
		"hemisphere":        param.String(p.hemisphere()),
	}
}

// Hash returns the analysis identifier of p applied to simulation.
func (p Params) Hash(simulation param.Identifier) (param.Identifier, error) {
	return param.Hash(param.DomainAnalysis, param.AnalysisTree(simulation, p.Tree()))
}
