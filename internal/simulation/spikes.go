package simulation

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/roach88/humam/internal/anatomy"
)

// Train holds the spikes of one population ordered by time, then neuron.
type Train struct {
	NeuronIDs []int64
	Times     []float64 // ms
}

// Len returns the number of spikes.
func (t *Train) Len() int {
	return len(t.Times)
}

// Append adds one spike.
func (t *Train) Append(id int64, time float64) {
	t.NeuronIDs = append(t.NeuronIDs, id)
	t.Times = append(t.Times, time)
}

// Sort orders spikes by time, then neuron id.
func (t *Train) Sort() {
	idx := make([]int, t.Len())
	for i := range idx {
		idx[i] = i
	}
	slices.SortStableFunc(idx, func(a, b int) int {
		if c := cmp.Compare(t.Times[a], t.Times[b]); c != 0 {
			return c
		}
		return cmp.Compare(t.NeuronIDs[a], t.NeuronIDs[b])
	})
	ids := make([]int64, len(idx))
	times := make([]float64, len(idx))
	for i, j := range idx {
		ids[i] = t.NeuronIDs[j]
		times[i] = t.Times[j]
	}
	t.NeuronIDs, t.Times = ids, times
}

// ByNeuron groups spike times per neuron id.
func (t *Train) ByNeuron() map[int64][]float64 {
	out := make(map[int64][]float64)
	for i, id := range t.NeuronIDs {
		out[id] = append(out[id], t.Times[i])
	}
	return out
}

// Spikes is the output of a simulation.
type Spikes struct {
	// Duration is the simulated time in ms.
	Duration float64

	// Neurons is the size of every simulated population.
	Neurons anatomy.NeuronTable

	Trains map[anatomy.PopulationKey]*Train
}

// Total returns the number of spikes of all populations.
func (s *Spikes) Total() int {
	n := 0
	for _, t := range s.Trains {
		n += t.Len()
	}
	return n
}

// Validate checks that every population has a train and every spike lies
// within the population and the simulated interval.
func (s *Spikes) Validate() error {
	for k, n := range s.Neurons {
		t, ok := s.Trains[k]
		if !ok {
			return fmt.Errorf("no spike train for %s", k)
		}
		if len(t.NeuronIDs) != len(t.Times) {
			return fmt.Errorf("%s: %d ids for %d times", k, len(t.NeuronIDs), len(t.Times))
		}
		for i, id := range t.NeuronIDs {
			if id < 0 || id >= n {
				return fmt.Errorf("%s: neuron id %d out of range [0,%d)", k, id, n)
			}
			if tm := t.Times[i]; tm < 0 || tm > s.Duration {
				return fmt.Errorf("%s: spike time %v outside [0,%v]", k, tm, s.Duration)
			}
		}
	}
	for k := range s.Trains {
		if _, ok := s.Neurons[k]; !ok {
			return fmt.Errorf("spike train for unknown population %s", k)
		}
	}
	return nil
}
