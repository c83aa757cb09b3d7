// Package network is the first pipeline stage. It resolves a network
// configuration, scales the full-scale anatomical tables and stores the
// resulting network under the configuration's hash.
package network

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/roach88/humam/internal/anatomy"
	"github.com/roach88/humam/internal/fault"
	"github.com/roach88/humam/internal/param"
	"github.com/roach88/humam/internal/scaling"
)

// Input names the anatomical input files.
type Input string

const (
	InputNeurons  Input = "neurons"
	InputSynapses Input = "synapses"
	InputRates    Input = "rates"
)

var inputs = []Input{InputNeurons, InputSynapses, InputRates}

// Config is a resolved network configuration.
type Config struct {
	// Areas restricts the network to these areas. Empty keeps every area.
	Areas []string

	Factors  scaling.Factors
	Policy   string
	Weights  scaling.Weights
	External scaling.External
	TauSyn   float64

	// InputHashes identify the content of each input file.
	InputHashes map[Input]param.Identifier

	inputData map[Input][]byte
}

// LoadConfig reads a configuration file. Input paths are resolved relative
// to the file's directory.
func LoadConfig(path string) (*Config, error) {
	tree, err := param.LoadFile(path)
	if err != nil {
		return nil, fault.Wrap(fault.Configuration, "network.LoadConfig", err, "load %s", path)
	}
	return ParseConfig(tree, filepath.Dir(path))
}

// ParseConfig resolves tree. Input files are read from baseDir and
// replaced by their content hash, so the configuration's identity does not
// depend on where the files live.
func ParseConfig(tree param.Object, baseDir string) (*Config, error) {
	const op = "network.ParseConfig"
	cfg, err := parseSettings(tree)
	if err != nil {
		return nil, err
	}

	in, err := tree.Sub("inputs")
	if err != nil {
		return nil, fault.Wrap(fault.Configuration, op, err, "inputs")
	}
	if err := in.CheckKeys("neurons", "synapses", "rates"); err != nil {
		return nil, fault.Wrap(fault.Configuration, op, err, "inputs")
	}
	cfg.InputHashes = make(map[Input]param.Identifier, len(inputs))
	cfg.inputData = make(map[Input][]byte, len(inputs))
	for _, name := range inputs {
		p, err := in.Str(string(name), "")
		if err != nil {
			return nil, fault.Wrap(fault.Configuration, op, err, "inputs")
		}
		if p == "" {
			return nil, fault.Configf(op, "inputs.%s is required", name)
		}
		if !filepath.IsAbs(p) {
			p = filepath.Join(baseDir, p)
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fault.Wrap(fault.Configuration, op, err, "read inputs.%s", name)
		}
		h, err := param.HashReader(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		cfg.InputHashes[name] = h
		cfg.inputData[name] = data
	}
	return cfg, nil
}

// parseSettings reads everything except the input files.
func parseSettings(tree param.Object) (*Config, error) {
	const op = "network.ParseConfig"
	wrap := func(err error, section string) error {
		return fault.Wrap(fault.Configuration, op, err, "%s", section)
	}

	if err := tree.CheckKeys("areas", "external", "inputs", "neuron", "scaling", "weights"); err != nil {
		return nil, wrap(err, "config")
	}
	cfg := &Config{}

	areas, err := tree.Strings("areas")
	if err != nil {
		return nil, wrap(err, "areas")
	}
	if len(areas) > 0 {
		cfg.Areas = slices.Sorted(slices.Values(areas))
		if len(slices.Compact(slices.Clone(cfg.Areas))) != len(cfg.Areas) {
			return nil, fault.Configf(op, "areas contains duplicates")
		}
		for _, a := range cfg.Areas {
			if !anatomy.IsDesikanKilliany(a) {
				return nil, fault.Configf(op, "area %q is not a Desikan-Killiany parcel", a)
			}
		}
	}

	sc, err := tree.Sub("scaling")
	if err != nil {
		return nil, wrap(err, "scaling")
	}
	if err := sc.CheckKeys("K_scaling", "N_scaling", "allow_overscale", "cc_scalingEtoE", "policy"); err != nil {
		return nil, wrap(err, "scaling")
	}
	f := scaling.FullScale()
	if f.NScaling, err = sc.Number("N_scaling", 1); err != nil {
		return nil, wrap(err, "scaling")
	}
	if f.KScaling, err = sc.Number("K_scaling", 1); err != nil {
		return nil, wrap(err, "scaling")
	}
	if f.CCScalingEtoE, err = sc.Number("cc_scalingEtoE", 1); err != nil {
		return nil, wrap(err, "scaling")
	}
	if f.AllowOverscale, err = sc.Flag("allow_overscale", false); err != nil {
		return nil, wrap(err, "scaling")
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	cfg.Factors = f
	if cfg.Policy, err = sc.Str("policy", scaling.PolicySqrt); err != nil {
		return nil, wrap(err, "scaling")
	}
	if _, err := scaling.PolicyByName(cfg.Policy); err != nil {
		return nil, err
	}

	w, err := tree.Sub("weights")
	if err != nil {
		return nil, wrap(err, "weights")
	}
	if err := w.CheckKeys("g", "l4_to_l23", "w"); err != nil {
		return nil, wrap(err, "weights")
	}
	d := scaling.DefaultWeights
	if cfg.Weights.W, err = w.Number("w", d.W); err != nil {
		return nil, wrap(err, "weights")
	}
	if cfg.Weights.G, err = w.Number("g", d.G); err != nil {
		return nil, wrap(err, "weights")
	}
	if cfg.Weights.L4ToL23, err = w.Number("l4_to_l23", d.L4ToL23); err != nil {
		return nil, wrap(err, "weights")
	}

	ext, err := tree.Sub("external")
	if err != nil {
		return nil, wrap(err, "external")
	}
	if err := ext.CheckKeys("bg_rate", "k_ext", "w_ext"); err != nil {
		return nil, wrap(err, "external")
	}
	de := scaling.DefaultExternal
	if cfg.External.K, err = ext.Number("k_ext", de.K); err != nil {
		return nil, wrap(err, "external")
	}
	if cfg.External.W, err = ext.Number("w_ext", de.W); err != nil {
		return nil, wrap(err, "external")
	}
	if cfg.External.Rate, err = ext.Number("bg_rate", de.Rate); err != nil {
		return nil, wrap(err, "external")
	}

	neuron, err := tree.Sub("neuron")
	if err != nil {
		return nil, wrap(err, "neuron")
	}
	if err := neuron.CheckKeys("tau_syn"); err != nil {
		return nil, wrap(err, "neuron")
	}
	if cfg.TauSyn, err = neuron.Number("tau_syn", scaling.DefaultTauSyn); err != nil {
		return nil, wrap(err, "neuron")
	}
	return cfg, nil
}

// Tree returns the normalised parameter tree that identifies the network.
// Defaults are filled in and inputs appear as content hashes, so equivalent
// configurations share a tree.
func (c *Config) Tree() param.Object {
	areas := make(param.Array, len(c.Areas))
	for i, a := range c.Areas {
		areas[i] = param.String(a)
	}
	in := param.Object{}
	for name, h := range c.InputHashes {
		in[string(name)] = param.String(h)
	}
	return param.Object{
		"areas":  areas,
		"inputs": in,
		"scaling": param.Object{
			"N_scaling":       param.Float(c.Factors.NScaling),
			"K_scaling":       param.Float(c.Factors.KScaling),
			"cc_scalingEtoE":  param.Float(c.Factors.CCScalingEtoE),
			"allow_overscale": param.Bool(c.Factors.AllowOverscale),
			"policy":          param.String(c.Policy),
		},
		"weights": param.Object{
			"w":         param.Float(c.Weights.W),
			"g":         param.Float(c.Weights.G),
			"l4_to_l23": param.Float(c.Weights.L4ToL23),
		},
		"external": param.Object{
			"k_ext":   param.Float(c.External.K),
			"w_ext":   param.Float(c.External.W),
			"bg_rate": param.Float(c.External.Rate),
		},
		"neuron": param.Object{
			"tau_syn": param.Float(c.TauSyn),
		},
	}
}

// Hash returns the network identifier of c.
func (c *Config) Hash() (param.Identifier, error) {
	return param.Hash(param.DomainNetwork, c.Tree())
}

// FullScale parses the input tables and restricts them to Areas.
func (c *Config) FullScale() (anatomy.FullScale, error) {
	const op = "network.FullScale"
	if c.inputData == nil {
		return anatomy.FullScale{}, fault.Configf(op, "configuration has no loaded inputs")
	}
	neurons, err := anatomy.ReadNeurons(bytes.NewReader(c.inputData[InputNeurons]))
	if err != nil {
		return anatomy.FullScale{}, fault.Wrap(fault.Configuration, op, err, "inputs.neurons")
	}
	synapses, err := anatomy.ReadSynapses(bytes.NewReader(c.inputData[InputSynapses]))
	if err != nil {
		return anatomy.FullScale{}, fault.Wrap(fault.Configuration, op, err, "inputs.synapses")
	}
	rates, err := anatomy.ReadRates(bytes.NewReader(c.inputData[InputRates]))
	if err != nil {
		return anatomy.FullScale{}, fault.Wrap(fault.Configuration, op, err, "inputs.rates")
	}
	full := anatomy.FullScale{Neurons: neurons, Synapses: synapses, Rates: rates}
	if len(c.Areas) == 0 {
		return full, nil
	}

	known := neurons.Areas()
	for _, a := range c.Areas {
		if !slices.Contains(known, a) {
			return anatomy.FullScale{}, fault.Configf(op, "area %q not in neuron table", a)
		}
	}
	keep := func(k anatomy.PopulationKey) bool { return slices.Contains(c.Areas, k.Area) }
	for k := range full.Neurons {
		if !keep(k) {
			delete(full.Neurons, k)
		}
	}
	for k := range full.Rates {
		if !keep(k) {
			delete(full.Rates, k)
		}
	}
	for p := range full.Synapses {
		if !keep(p.Target) || !keep(p.Source) {
			delete(full.Synapses, p)
		}
	}
	return full, nil
}

func (c *Config) options() ([]scaling.Option, error) {
	policy, err := scaling.PolicyByName(c.Policy)
	if err != nil {
		return nil, err
	}
	return []scaling.Option{
		scaling.WithPolicy(policy),
		scaling.WithWeights(c.Weights),
		scaling.WithExternal(c.External),
		scaling.WithTauSyn(c.TauSyn),
	}, nil
}

func (c *Config) String() string {
	return fmt.Sprintf("network(N=%v K=%v cc=%v policy=%s areas=%d)",
		c.Factors.NScaling, c.Factors.KScaling, c.Factors.CCScalingEtoE, c.Policy, len(c.Areas))
}
