package network

import (
	"context"

	"github.com/roach88/humam/internal/param"
	"github.com/roach88/humam/internal/pipeline"
	"github.com/roach88/humam/internal/scaling"
	"github.com/roach88/humam/internal/store"
)

// Stage returns the pipeline stage that builds cfg.
func Stage(cfg *Config) (pipeline.Stage[*Artifact], error) {
	id, err := cfg.Hash()
	if err != nil {
		return pipeline.Stage[*Artifact]{}, err
	}
	return pipeline.Stage[*Artifact]{
		Key: store.NetworkKey(id),
		Compute: func(ctx context.Context) (*Artifact, error) {
			return Compute(ctx, cfg)
		},
		Encode: Encode,
		Decode: Decode,
	}, nil
}

// Build returns the network of cfg, computing and storing it on a cache miss.
func Build(ctx context.Context, deps pipeline.Deps, cfg *Config) (*pipeline.Outcome[*Artifact], error) {
	stage, err := Stage(cfg)
	if err != nil {
		return nil, err
	}
	if deps.Logger != nil {
		deps.Logger = deps.Logger.With("config", cfg.String())
	}
	return pipeline.Run(ctx, deps, stage)
}

// Compute scales the full-scale tables of cfg.
func Compute(ctx context.Context, cfg *Config) (*Artifact, error) {
	id, err := cfg.Hash()
	if err != nil {
		return nil, err
	}
	full, err := cfg.FullScale()
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	opts, err := cfg.options()
	if err != nil {
		return nil, err
	}
	res, err := scaling.Scale(full, cfg.Factors, opts...)
	if err != nil {
		return nil, err
	}
	return &Artifact{
		Hash:         id,
		Parameters:   cfg.Tree(),
		Neurons:      res.Neurons,
		Synapses:     res.Synapses,
		Weights:      res.Weights,
		Compensation: res.Compensation,
		External:     res.External,
		Rates:        full.Rates,
		Factors:      res.Factors,
		Policy:       res.Policy,
	}, nil
}

// Load reads the stored network id.
func Load(ctx context.Context, st store.Store, id param.Identifier) (*Artifact, store.Key, error) {
	key, err := st.Find(ctx, store.StageNetwork, id)
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
