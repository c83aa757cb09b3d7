package analysis

import (
	"cmp"
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"runtime"
	"slices"

	"golang.org/x/exp/rand"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/roach88/humam/internal/anatomy"
	"github.com/roach88/humam/internal/simulation"
)

// PopulationStats summarises one population over the analysis window.
// Undefined statistics are NaN.
type PopulationStats struct {
	// Rate is the mean firing rate in spikes/s.
	Rate float64

	// CVISI is the mean coefficient of variation of the inter-spike
	// intervals of neurons with at least three spikes.
	CVISI float64

	// Correlation is the mean Pearson correlation of the binned spike
	// counts of the sampled neuron pairs.
	Correlation float64
}

// Spike is one entry of the raster sample.
type Spike struct {
	Population anatomy.PopulationKey
	NeuronID   int64
	Time       float64
}

// Connectivity is the functional connectivity between areas.
type Connectivity struct {
	// Areas are ordered by resting-state network.
	Areas  []string
	Matrix *mat.SymDense
}

// window is a half-open interval [start, stop) in ms with bins of width bin.
type window struct {
	start, stop, bin float64
}

func (w window) contains(t float64) bool {
	return t >= w.start && t < w.stop
}

func (w window) seconds() float64 {
	return (w.stop - w.start) / 1000
}

func (w window) bins() int {
	return int(math.Ceil((w.stop - w.start) / w.bin))
}

func (w window) binOf(t float64) int {
	return min(int((t-w.start)/w.bin), w.bins()-1)
}

// populationResult is the output of analysing one population.
type populationResult struct {
	stats  PopulationStats
	raster []Spike
}

// compute runs every statistic of the selected populations. Populations are
// analysed concurrently.
func compute(ctx context.Context, spikes *simulation.Spikes, keys []anatomy.PopulationKey, w window, p Params) (map[anatomy.PopulationKey]PopulationStats, []Spike, error) {
	results := make([]populationResult, len(keys))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, k := range keys {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			results[i] = analysePopulation(k, spikes.Neurons[k], spikes.Trains[k], w, p)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	stats := make(map[anatomy.PopulationKey]PopulationStats, len(keys))
	var raster []Spike
	for i, k := range keys {
		stats[k] = results[i].stats
		raster = append(raster, results[i].raster...)
	}
	return stats, raster, nil
}

func analysePopulation(k anatomy.PopulationKey, n int64, train *simulation.Train, w window, p Params) populationResult {
	byNeuron := make(map[int64][]float64)
	var count int
	for i, t := range train.Times {
		if w.contains(t) {
			id := train.NeuronIDs[i]
			byNeuron[id] = append(byNeuron[id], t)
			count++
		}
	}

	res := populationResult{stats: PopulationStats{
		Rate:        meanRate(count, n, w),
		CVISI:       meanCVISI(byNeuron),
		Correlation: math.NaN(),
	}}
	sample := sampleNeurons(p.Seed, k, n, p.SamplingFraction)
	if len(sample) >= 2 {
		res.stats.Correlation = meanCorrelation(byNeuron, sample, w)
	}
	for _, id := range sample {
		for _, t := range byNeuron[id] {
			res.raster = append(res.raster, Spike{Population: k, NeuronID: id, Time: t})
		}
	}
	slices.SortFunc(res.raster, func(a, b Spike) int {
		if c := cmp.Compare(a.Time, b.Time); c != 0 {
			return c
		}
		return cmp.Compare(a.NeuronID, b.NeuronID)
	})
	return res
}

// meanRate returns spikes per neuron per second.
func meanRate(count int, n int64, w window) float64 {
	if n == 0 {
		return 0
	}
	return float64(count) / (float64(n) * w.seconds())
}

// meanCVISI averages std(ISI)/mean(ISI) over neurons with at least three
// spikes. Spike times of each neuron must be sorted.
func meanCVISI(byNeuron map[int64][]float64) float64 {
	var cvs []float64
	for _, times := range byNeuron {
		if len(times) < 3 {
			continue
		}
		isi := make([]float64, len(times)-1)
		for i := range isi {
			isi[i] = times[i+1] - times[i]
		}
		mean, variance := stat.PopMeanVariance(isi, nil)
		if mean <= 0 {
			continue
		}
		cvs = append(cvs, math.Sqrt(variance)/mean)
	}
	if len(cvs) == 0 {
		return math.NaN()
	}
	return stat.Mean(cvs, nil)
}

// sampleNeurons draws max(2, round(fraction·n)) distinct neuron ids, capped
// at n, from a stream seeded by seed and k.
func sampleNeurons(seed int64, k anatomy.PopulationKey, n int64, fraction float64) []int64 {
	if n == 0 {
		return nil
	}
	m := min(max(int64(math.Round(fraction*float64(n))), 2), n)
	h := fnv.New64a()
	fmt.Fprintf(h, "%d/%s", seed, k)
	r := rand.New(rand.NewSource(h.Sum64()))

	perm := r.Perm(int(n))[:m]
	out := make([]int64, m)
	for i, id := range perm {
		out[i] = int64(id)
	}
	slices.Sort(out)
	return out
}

// meanCorrelation averages the finite pairwise Pearson correlations of the
// binned spike counts of sample. Silent neurons have undefined correlations
// and are skipped.
func meanCorrelation(byNeuron map[int64][]float64, sample []int64, w window) float64 {
	counts := mat.NewDense(w.bins(), len(sample), nil)
	for j, id := range sample {
		for _, t := range byNeuron[id] {
			b := w.binOf(t)
			counts.Set(b, j, counts.At(b, j)+1)
		}
	}
	var corr mat.SymDense
	stat.CorrelationMatrix(&corr, counts, nil)

	var sum float64
	var pairs int
	for i := range len(sample) {
		for j := i + 1; j < len(sample); j++ {
			if c := corr.At(i, j); !math.IsNaN(c) {
				sum += c
				pairs++
			}
		}
	}
	if pairs == 0 {
		return math.NaN()
	}
	return sum / float64(pairs)
}

// functionalConnectivity correlates the binned population activity of every
// pair of areas. Areas are ordered by their resting-state network in
// networks.
func functionalConnectivity(spikes *simulation.Spikes, networks map[string]string, areas []string, w window) Connectivity {
	ordered := anatomy.OrderByNetwork(networks, areas)
	if len(ordered) == 0 {
		return Connectivity{}
	}
	column := make(map[string]int, len(ordered))
	for i, a := range ordered {
		column[a] = i
	}

	activity := mat.NewDense(w.bins(), len(ordered), nil)
	for k, train := range spikes.Trains {
		j, ok := column[k.Area]
		if !ok {
			continue
		}
		for _, t := range train.Times {
			if w.contains(t) {
				b := w.binOf(t)
				activity.Set(b, j, activity.At(b, j)+1)
			}
		}
	}
	fc := mat.NewSymDense(len(ordered), nil)
	stat.CorrelationMatrix(fc, activity, nil)
	return Connectivity{Areas: ordered, Matrix: fc}
}
