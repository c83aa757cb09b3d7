package simulation

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"

	"golang.org/x/exp/rand"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/roach88/humam/internal/anatomy"
	"github.com/roach88/humam/internal/fault"
	"github.com/roach88/humam/internal/network"
)

// Poisson is a synthetic engine in which every neuron fires as an
// independent Poisson process at its population's full-scale rate.
//
// Each population draws from its own stream seeded by the master seed and
// the population key, so results do not depend on the number of threads.
type Poisson struct{}

type poissonHandle struct {
	net *network.Artifact
}

func (poissonHandle) Close() error { return nil }

// Build implements Engine.
func (Poisson) Build(_ context.Context, net *network.Artifact) (Handle, error) {
	if net == nil {
		return nil, fault.Configf("simulation.Poisson", "no network")
	}
	return poissonHandle{net: net}, nil
}

// Run implements Engine.
func (Poisson) Run(ctx context.Context, h Handle, p Params) (*Spikes, error) {
	ph, ok := h.(poissonHandle)
	if !ok {
		return nil, fmt.Errorf("poisson: foreign handle %T", h)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	net := ph.net
	keys := net.Neurons.Keys()
	trains := make([]*Train, len(keys))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.Threads)
	for i, k := range keys {
		g.Go(func() error {
			t, err := poissonTrain(gctx, populationSeed(p.Seed, k), net.Neurons[k], net.Rates[k], p.Duration)
			if err != nil {
				return err
			}
			trains[i] = t
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fault.Wrap(fault.ExternalEngine, "simulation.Poisson", ctxErr, "engine interrupted")
		}
		return nil, err
	}

	out := &Spikes{
		Duration: p.Duration,
		Neurons:  net.Neurons.Clone(),
		Trains:   make(map[anatomy.PopulationKey]*Train, len(keys)),
	}
	for i, k := range keys {
		out.Trains[k] = trains[i]
	}
	return out, nil
}

// poissonTrain draws n independent Poisson spike trains at rate (spikes/s)
// over duration (ms).
func poissonTrain(ctx context.Context, seed uint64, n int64, rate, duration float64) (*Train, error) {
	t := &Train{}
	if n == 0 || rate <= 0 {
		return t, nil
	}
	isi := distuv.Exponential{Rate: rate / 1000, Src: rand.NewSource(seed)}
	for id := range n {
		if id%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		for tm := isi.Rand(); tm < duration; tm += isi.Rand() {
			t.Append(id, tm)
		}
	}
	t.Sort()
	return t, nil
}

// populationSeed mixes the master seed with the population key.
func populationSeed(seed int64, k anatomy.PopulationKey) uint64 {
	h := fnv.New64a()
	fmt.Fprintf(h, "%d/%s", seed, k)
	s := h.Sum64()
	if s == 0 {
		s = math.MaxUint64
	}
	return s
}
