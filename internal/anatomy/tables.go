package anatomy

import (
	"maps"
	"slices"
)

// SortedKeys returns the populations of m in canonical order.
func SortedKeys[M ~map[PopulationKey]V, V any](m M) []PopulationKey {
	return slices.SortedFunc(maps.Keys(m), PopulationKey.Compare)
}

// SortedProjections returns the projections of m in canonical order.
func SortedProjections[M ~map[Projection]V, V any](m M) []Projection {
	return slices.SortedFunc(maps.Keys(m), Projection.Compare)
}

// NeuronTable maps each population to its neuron count.
type NeuronTable map[PopulationKey]int64

// Keys returns the populations in canonical order.
func (t NeuronTable) Keys() []PopulationKey {
	return SortedKeys(t)
}

// Total returns the number of neurons in the table.
func (t NeuronTable) Total() int64 {
	var n int64
	for _, c := range t {
		n += c
	}
	return n
}

// Areas returns the distinct areas in sorted order.
func (t NeuronTable) Areas() []string {
	seen := make(map[string]bool)
	var areas []string
	for k := range t {
		if !seen[k.Area] {
			seen[k.Area] = true
			areas = append(areas, k.Area)
		}
	}
	slices.Sort(areas)
	return areas
}

// Clone returns a copy of t.
func (t NeuronTable) Clone() NeuronTable {
	return maps.Clone(t)
}

// SynapseTable maps (target, source) pairs to synapse counts.
// Pairs that are absent have zero synapses.
type SynapseTable map[Projection]int64

// Get returns the synapse count from source onto target.
func (t SynapseTable) Get(target, source PopulationKey) int64 {
	return t[Projection{Target: target, Source: source}]
}

// Projections returns the pairs in canonical order.
func (t SynapseTable) Projections() []Projection {
	return SortedProjections(t)
}

// Total returns the number of synapses in the table.
func (t SynapseTable) Total() int64 {
	var n int64
	for _, c := range t {
		n += c
	}
	return n
}

// InterAreal returns the number of entries whose source and target areas differ.
func (t SynapseTable) InterAreal() int {
	n := 0
	for p := range t {
		if p.InterAreal() {
			n++
		}
	}
	return n
}

// Clone returns a copy of t.
func (t SynapseTable) Clone() SynapseTable {
	return maps.Clone(t)
}

// RateTable maps each population to its full-scale theoretical firing rate
// in spikes/s.
type RateTable map[PopulationKey]float64

// Keys returns the populations in canonical order.
func (t RateTable) Keys() []PopulationKey {
	return SortedKeys(t)
}

// FullScale bundles the anatomical estimates that feed the scaling engine.
type FullScale struct {
	Neurons  NeuronTable
	Synapses SynapseTable
	Rates    RateTable
}
