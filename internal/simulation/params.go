// Package simulation is the second pipeline stage. It runs a simulation
// engine on a stored network and stores the resulting spike trains under the
// hash of (network hash, simulation parameters).
package simulation

import (
	"github.com/roach88/humam/internal/fault"
	"github.com/roach88/humam/internal/param"
)

// Engine names.
const (
	EnginePoisson = "poisson"
	EngineExec    = "exec"
)

// Params are the simulation parameters.
type Params struct {
	// Duration is the simulated time in ms.
	Duration float64
	Seed     int64
	Threads  int
	Engine   string

	// Command is the external program of the exec engine.
	Command []string
}

// LoadParams reads simulation parameters from a YAML, JSON or CUE file.
func LoadParams(path string) (Params, error) {
	tree, err := param.LoadFile(path)
	if err != nil {
		return Params{}, fault.Wrap(fault.Configuration, "simulation.LoadParams", err, "load %s", path)
	}
	return ParseParams(tree)
}

// ParseParams validates tree and fills defaults.
func ParseParams(tree param.Object) (Params, error) {
	const op = "simulation.ParseParams"
	wrap := func(err error) error { return fault.Wrap(fault.Configuration, op, err, "simulation parameters") }

	if err := tree.CheckKeys("command", "duration", "engine", "seed", "threads"); err != nil {
		return Params{}, wrap(err)
	}
	var (
		p   Params
		err error
	)
	if p.Duration, err = tree.Number("duration", 0); err != nil {
		return Params{}, wrap(err)
	}
	if p.Seed, err = tree.Integer("seed", 1); err != nil {
		return Params{}, wrap(err)
	}
	threads, err := tree.Integer("threads", 1)
	if err != nil {
		return Params{}, wrap(err)
	}
	p.Threads = int(threads)
	if p.Engine, err = tree.Str("engine", EnginePoisson); err != nil {
		return Params{}, wrap(err)
	}
	if p.Command, err = tree.Strings("command"); err != nil {
		return Params{}, wrap(err)
	}
	if err := p.Validate(); err != nil {
		return Params{}, err
	}
	return p, nil
}

// Validate checks ranges and engine requirements.
func (p Params) Validate() error {
	const op = "simulation.Params"
	if !(p.Duration > 0) {
		return fault.Configf(op, "duration must be positive, got %v", p.Duration)
	}
	if p.Threads < 1 {
		return fault.Configf(op, "threads must be at least 1, got %d", p.Threads)
	}
	switch p.Engine {
	case EnginePoisson:
		if len(p.Command) > 0 {
			return fault.Configf(op, "command is only valid with the exec engine")
		}
	case EngineExec:
		if len(p.Command) == 0 {
			return fault.Configf(op, "exec engine needs a command")
		}
	default:
		return fault.Configf(op, "unknown engine %q", p.Engine)
	}
	return nil
}

// Tree returns the normalised parameter tree of p.
func (p Params) Tree() param.Object {
	tree := param.Object{
		"duration": param.Float(p.Duration),
		"seed":     param.Int(p.Seed),
		"threads":  param.Int(int64(p.Threads)),
		"engine":   param.String(p.Engine),
	}
	if len(p.Command) > 0 {
		cmd := make(param.Array, len(p.Command))
		for i, c := range p.Command {
			cmd[i] = param.String(c)
		}
		tree["command"] = cmd
	}
	return tree
}

// Hash returns the simulation identifier of p run on network.
func (p Params) Hash(network param.Identifier) (param.Identifier, error) {
	return param.Hash(param.DomainSimulation, param.SimulationTree(network, p.Tree()))
}
