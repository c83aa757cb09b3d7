// Package anatomy holds the full-scale anatomical tables consumed by the
// scaling engine: neuron counts per population, synapse counts per
// (target, source) pair and the theoretical firing rates used for
// compensation. The tables are produced by external estimators and arrive
// as CSV files.
package anatomy

import (
	"fmt"
	"strings"
)

// Layer identifies a cortical layer. Layer 2/3 is written "23".
type Layer string

// Cortical layers in laminar order.
const (
	L1  Layer = "1"
	L23 Layer = "23"
	L4  Layer = "4"
	L5  Layer = "5"
	L6  Layer = "6"
)

// Layers lists the cortical layers in laminar order.
var Layers = []Layer{L1, L23, L4, L5, L6}

// ParseLayer accepts "1", "2/3", "23", "L4", ... and returns the normalised Layer.
func ParseLayer(s string) (Layer, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "L")
	switch s {
	case "1":
		return L1, nil
	case "23", "2/3":
		return L23, nil
	case "4":
		return L4, nil
	case "5":
		return L5, nil
	case "6":
		return L6, nil
	default:
		return "", fmt.Errorf("unknown layer %q", s)
	}
}

// PopulationKey identifies one neuron population of the network.
type PopulationKey struct {
	Area       string
	Layer      Layer
	Population string
}

// NewKey builds a PopulationKey after validating its parts.
func NewKey(area, layer, population string) (PopulationKey, error) {
	area = strings.TrimSpace(area)
	population = strings.TrimSpace(population)
	if area == "" || strings.Contains(area, ".") {
		return PopulationKey{}, fmt.Errorf("invalid area %q", area)
	}
	if population == "" || strings.Contains(population, ".") {
		return PopulationKey{}, fmt.Errorf("invalid population %q", population)
	}
	l, err := ParseLayer(layer)
	if err != nil {
		return PopulationKey{}, err
	}
	return PopulationKey{Area: area, Layer: l, Population: population}, nil
}

// ParseKey parses the text form produced by String ("Area.L4.E").
func ParseKey(s string) (PopulationKey, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 3 || !strings.HasPrefix(parts[1], "L") {
		return PopulationKey{}, fmt.Errorf("invalid population key %q", s)
	}
	return NewKey(parts[0], parts[1], parts[2])
}

// String returns "Area.L<layer>.<population>", e.g. "precentral.L23.E".
func (k PopulationKey) String() string {
	return k.Area + ".L" + string(k.Layer) + "." + k.Population
}

// Excitatory reports whether the population is excitatory. Population names
// starting with "E" are excitatory; every other name is an inhibitory subtype.
func (k PopulationKey) Excitatory() bool {
	return strings.HasPrefix(k.Population, "E")
}

// Less orders keys by area, laminar position, then population name.
func (k PopulationKey) Less(o PopulationKey) bool {
	if k.Area != o.Area {
		return k.Area < o.Area
	}
	if k.Layer != o.Layer {
		return layerIndex(k.Layer) < layerIndex(o.Layer)
	}
	return k.Population < o.Population
}

// Compare is Less as a three-way comparison, for slices.SortFunc.
func (k PopulationKey) Compare(o PopulationKey) int {
	switch {
	case k == o:
		return 0
	case k.Less(o):
		return -1
	default:
		return 1
	}
}

func layerIndex(l Layer) int {
	for i, x := range Layers {
		if x == l {
			return i
		}
	}
	return len(Layers)
}

// Projection is a (target, source) population pair.
type Projection struct {
	Target PopulationKey
	Source PopulationKey
}

// InterAreal reports whether source and target belong to different areas.
func (p Projection) InterAreal() bool {
	return p.Target.Area != p.Source.Area
}

// Compare orders projections by target then source.
func (p Projection) Compare(o Projection) int {
	if c := p.Target.Compare(o.Target); c != 0 {
		return c
	}
	return p.Source.Compare(o.Source)
}

func (p Projection) String() string {
	return p.Target.String() + "<-" + p.Source.String()
}
