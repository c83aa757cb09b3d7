package simulation

import (
	"context"
	"time"

	"github.com/roach88/humam/internal/fault"
	"github.com/roach88/humam/internal/network"
	"github.com/roach88/humam/internal/param"
	"github.com/roach88/humam/internal/pipeline"
	"github.com/roach88/humam/internal/store"
)

// Stage returns the pipeline stage that simulates the network stored under
// netKey with engine.
func Stage(net *network.Artifact, netKey store.Key, p Params, engine Engine) (pipeline.Stage[*Artifact], error) {
	if err := p.Validate(); err != nil {
		return pipeline.Stage[*Artifact]{}, err
	}
	id, err := p.Hash(netKey.Hash())
	if err != nil {
		return pipeline.Stage[*Artifact]{}, err
	}
	return pipeline.Stage[*Artifact]{
		Key: netKey.Child(id),
		Compute: func(ctx context.Context) (*Artifact, error) {
			spikes, err := simulate(ctx, engine, net, p)
			if err != nil {
				return nil, err
			}
			return &Artifact{Hash: id, Network: netKey.Hash(), Params: p, Spikes: spikes}, nil
		},
		Encode: Encode,
		Decode: func(files store.Files) (*Artifact, error) {
			a, err := Decode(files)
			if err != nil {
				return nil, err
			}
			if err := a.CheckNetwork(net); err != nil {
				return nil, err
			}
			return a, nil
		},
	}, nil
}

func simulate(ctx context.Context, engine Engine, net *network.Artifact, p Params) (*Spikes, error) {
	h, err := engine.Build(ctx, net)
	if err != nil {
		return nil, err
	}
	defer h.Close()
	return engine.Run(ctx, h, p)
}

// Run returns the simulation of the stored network id, computing and
// storing it on a cache miss.
func Run(ctx context.Context, deps pipeline.Deps, networkID param.Identifier, p Params, engine Engine) (*pipeline.Outcome[*Artifact], error) {
	net, netKey, err := network.Load(ctx, deps.Store, networkID)
	if err != nil {
		return nil, err
	}
	stage, err := Stage(net, netKey, p, engine)
	if err != nil {
		return nil, err
	}
	if deps.Logger != nil {
		deps.Logger = deps.Logger.With("engine", p.Engine, "duration", time.Duration(p.Duration*float64(time.Millisecond)))
	}
	return pipeline.Run(ctx, deps, stage)
}

// Load reads the stored simulation id.
func Load(ctx context.Context, st store.Store, id param.Identifier) (*Artifact, store.Key, error) {
	key, err := st.Find(ctx, store.StageSimulation, id)
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
	if a.Hash != key.Hash() {
		return nil, store.Key{}, fault.Integrityf("simulation.Load", "artifact under %s carries hash %s", key, a.Hash.Short())
	}

	netFiles, err := st.Read(ctx, key.Parent())
	if err != nil {
		return nil, store.Key{}, err
	}
	net, err := network.Decode(netFiles)
	if err != nil {
		return nil, store.Key{}, err
	}
	if err := a.CheckNetwork(net); err != nil {
		return nil, store.Key{}, err
	}
	return a, key, nil
}
