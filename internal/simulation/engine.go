package simulation

import (
	"context"
	"log/slog"

	"github.com/roach88/humam/internal/network"
)

// Handle is an engine's instance of a built network.
type Handle interface {
	Close() error
}

// Engine is the capability a simulator offers to the pipeline.
type Engine interface {
	// Build instantiates net. The handle is released with Close.
	Build(ctx context.Context, net *network.Artifact) (Handle, error)

	// Run simulates h and returns the recorded spikes.
	Run(ctx context.Context, h Handle, p Params) (*Spikes, error)
}

// EngineFor returns the engine named by p.
func EngineFor(p Params, logger *slog.Logger) (Engine, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	switch p.Engine {
	case EngineExec:
		return &Exec{Command: p.Command, Logger: logger}, nil
	default:
		return Poisson{}, nil
	}
}
