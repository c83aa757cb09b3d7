package analysis

import (
	"context"
	"slices"

	"github.com/roach88/humam/internal/anatomy"
	"github.com/roach88/humam/internal/fault"
	"github.com/roach88/humam/internal/param"
	"github.com/roach88/humam/internal/pipeline"
	"github.com/roach88/humam/internal/simulation"
	"github.com/roach88/humam/internal/store"
)

// Stage returns the pipeline stage that analyses the simulation stored
// under simKey.
func Stage(sim *simulation.Artifact, simKey store.Key, p Params) (pipeline.Stage[*Artifact], error) {
	const op = "analysis.Stage"
	if err := p.Validate(); err != nil {
		return pipeline.Stage[*Artifact]{}, err
	}
	p.Hemisphere = p.hemisphere()
	start, stop, err := p.Window(sim.Spikes.Duration)
	if err != nil {
		return pipeline.Stage[*Artifact]{}, err
	}
	available := sim.Spikes.Neurons.Areas()
	areas := available
	if len(p.Areas) > 0 {
		for _, a := range p.Areas {
			if !slices.Contains(available, a) {
				return pipeline.Stage[*Artifact]{}, fault.Configf(op, "area %q was not simulated", a)
			}
		}
		areas = p.Areas
	}
	id, err := p.Hash(simKey.Hash())
	if err != nil {
		return pipeline.Stage[*Artifact]{}, err
	}

	var keys []anatomy.PopulationKey
	for _, k := range sim.Spikes.Neurons.Keys() {
		if slices.Contains(areas, k.Area) {
			keys = append(keys, k)
		}
	}
	w := window{start: start, stop: stop, bin: p.BinSize}

	return pipeline.Stage[*Artifact]{
		Key: simKey.Child(id),
		Compute: func(ctx context.Context) (*Artifact, error) {
			stats, raster, err := compute(ctx, sim.Spikes, keys, w, p)
			if err != nil {
				return nil, err
			}
			return &Artifact{
				Hash:         id,
				Simulation:   simKey.Hash(),
				Params:       p,
				Populations:  stats,
				Connectivity: functionalConnectivity(sim.Spikes, p.networks(), areas, w),
				Raster:       raster,
			}, nil
		},
		Encode: Encode,
		Decode: Decode,
	}, nil
}

// Run returns the analysis of the stored simulation id, computing and
// storing it on a cache miss.
func Run(ctx context.Context, deps pipeline.Deps, simulationID param.Identifier, p Params) (*pipeline.Outcome[*Artifact], error) {
	sim, simKey, err := simulation.Load(ctx, deps.Store, simulationID)
	if err != nil {
		return nil, err
	}
	stage, err := Stage(sim, simKey, p)
	if err != nil {
		return nil, err
	}
	return pipeline.Run(ctx, deps, stage)
}

// Load reads the stored analysis id.
func Load(ctx context.Context, st store.Store, id param.Identifier) (*Artifact, store.Key, error) {
	key, err := st.Find(ctx, store.StageAnalysis, id)
	if err != nil {
		return nil, store.Key{}, err
	}
	files, err := st.Read(ctx, key)
	if err != nil {
		return nil, store.Key{}, err
	}
	a, err := Decode(files)
	if err != nil {
		return nil, store.Key{}, err
	}
	return a, key, nil
}
