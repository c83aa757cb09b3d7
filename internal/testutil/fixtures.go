// Package testutil provides fixtures and fakes shared by stage tests.
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/roach88/humam/internal/anatomy"
	"github.com/roach88/humam/internal/param"
)

// FixtureAreas are the areas of the fixture network. They fall in three
// different resting-state networks.
var FixtureAreas = []string{"cuneus", "precentral", "precuneus"}

var fixturePopulations = []struct {
	layer anatomy.Layer
	pop   string
	n     int64
	rate  float64
}{
	{anatomy.L23, "E", 20000, 2.5},
	{anatomy.L23, "I", 5000, 5},
	{anatomy.L4, "E", 22000, 3},
	{anatomy.L4, "I", 5500, 6},
}

// FullScale returns a small three-area full-scale network.
func FullScale() anatomy.FullScale {
	full := anatomy.FullScale{
		Neurons:  anatomy.NeuronTable{},
		Synapses: anatomy.SynapseTable{},
		Rates:    anatomy.RateTable{},
	}
	var keys []anatomy.PopulationKey
	for i, area := range FixtureAreas {
		for _, p := range fixturePopulations {
			k := anatomy.PopulationKey{Area: area, Layer: p.layer, Population: p.pop}
			full.Neurons[k] = p.n
			full.Rates[k] = p.rate * (1 + 0.1*float64(i))
			keys = append(keys, k)
		}
	}
	for _, t := range keys {
		for _, s := range keys {
			var per int64
			switch {
			case t.Area == s.Area && s.Excitatory():
				per = 100
			case t.Area == s.Area:
				per = 50
			case s.Excitatory() && s.Layer == anatomy.L23 && t.Layer == anatomy.L23:
				per = 10
			default:
				continue
			}
			full.Synapses[anatomy.Projection{Target: t, Source: s}] = full.Neurons[t] * per
		}
	}
	return full
}

// NetworkYAML is a network configuration over the fixture inputs.
const NetworkYAML = `inputs:
  neurons: neurons.csv
  synapses: synapses.csv
  rates: rates.csv
scaling:
  N_scaling: 0.01
  K_scaling: 0.01
  cc_scalingEtoE: 1.0
  policy: sqrt
weights:
  w: 87.8
  g: -11.0
external:
  k_ext: 1000
  bg_rate: 10.0
`

// WriteNetworkInputs writes the fixture tables and NetworkYAML into dir and
// returns the configuration path.
func WriteNetworkInputs(t testing.TB, dir string) string {
	t.Helper()
	full := FullScale()

	write := func(name string, fn func(f *os.File) error) {
		f, err := os.Create(filepath.Join(dir, name))
		if err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
		defer f.Close()
		if err := fn(f); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	write("neurons.csv", func(f *os.File) error { return anatomy.WriteNeurons(f, full.Neurons) })
	write("synapses.csv", func(f *os.File) error { return anatomy.WriteSynapses(f, full.Synapses) })
	write("rates.csv", func(f *os.File) error { return anatomy.WriteRates(f, full.Rates) })

	path := filepath.Join(dir, "network.yaml")
	if err := os.WriteFile(path, []byte(NetworkYAML), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

// WriteFile writes content to dir/name and returns the path.
func WriteFile(t testing.TB, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

// UnknownHash is a well-formed identifier that no fixture produces.
const UnknownHash = param.Identifier("0000000000000000000000000000000000000000000000000000000000000000")
