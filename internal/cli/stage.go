package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/roach88/humam/internal/analysis"
	"github.com/roach88/humam/internal/fault"
	"github.com/roach88/humam/internal/network"
	"github.com/roach88/humam/internal/param"
	"github.com/roach88/humam/internal/pipeline"
	"github.com/roach88/humam/internal/simulation"
)

// StageResult is the output of the stage commands.
type StageResult struct {
	Stage  string `json:"stage"`
	Hash   string `json:"hash"`
	Parent string `json:"parent,omitempty"`
	Path   string `json:"path"`
	Cached bool   `json:"cached"`
}

// String returns the hash, which is all the text format prints.
func (r StageResult) String() string {
	return r.Hash
}

func newStageResult[T any](out *pipeline.Outcome[T]) StageResult {
	return StageResult{
		Stage:  string(out.Key.Stage()),
		Hash:   string(out.Key.Hash()),
		Parent: string(out.Key.Parent().Hash()),
		Path:   out.Path,
		Cached: !out.Computed(),
	}
}

func reportStage(f *OutputFormatter, r StageResult) error {
	if r.Cached {
		f.VerboseLog("Loaded %s %s from %s", r.Stage, r.Hash, r.Path)
	} else {
		f.VerboseLog("Stored %s %s at %s", r.Stage, r.Hash, r.Path)
	}
	return f.Success(r)
}

// parseParent validates a parent hash argument.
func parseParent(s string) (param.Identifier, error) {
	id, err := param.ParseIdentifier(s)
	if err != nil {
		return "", fault.Wrap(fault.Configuration, "cli", err, "parent hash")
	}
	return id, nil
}

// NewBuildNetworkCommand creates the build-network command.
func NewBuildNetworkCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "build-network <config>",
		Short: "Scale the anatomical tables and store the network",
		Long: `Read a network configuration (YAML, JSON or CUE), scale the full-scale
anatomical tables it references and store the resulting network.

Prints the network hash. A network that is already stored is loaded instead
of rebuilt.

Example:
  humam build-network network.yaml
  humam --store /data/humam --label baseline build-network network.cue`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)
			cfg, err := network.LoadConfig(args[0])
			if err != nil {
				return f.Fail(err)
			}
			return withSession(cmd, rootOpts, func(ctx context.Context, s *session) error {
				out, err := network.Build(ctx, s.deps, cfg)
				if err != nil {
					return f.Fail(err)
				}
				return reportStage(f, newStageResult(out))
			})
		},
	}
}

// NewRunSimulationCommand creates the run-simulation command.
func NewRunSimulationCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run-simulation <network-hash> <config>",
		Short: "Simulate a stored network",
		Long: `Simulate the stored network with the parameters in <config> and store the
spike trains.

The engine is chosen by the "engine" parameter: "poisson" draws independent
Poisson spike trains at the full-scale rates, "exec" runs an external
simulator given by "command".

Example:
  humam run-simulation 3f2a...e1 simulation.yaml`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)
			networkID, err := parseParent(args[0])
			if err != nil {
				return f.Fail(err)
			}
			p, err := simulation.LoadParams(args[1])
			if err != nil {
				return f.Fail(err)
			}
			engine, err := simulation.EngineFor(p, rootOpts.logger())
			if err != nil {
				return f.Fail(err)
			}
			return withSession(cmd, rootOpts, func(ctx context.Context, s *session) error {
				out, err := simulation.Run(ctx, s.deps, networkID, p, engine)
				if err != nil {
					return f.Fail(err)
				}
				return reportStage(f, newStageResult(out))
			})
		},
	}
}

// NewAnalyzeCommand creates the analyze command.
func NewAnalyzeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "analyze <simulation-hash> <config>",
		Short: "Analyze a stored simulation",
		Long: `Compute firing rates, ISI irregularity, pairwise correlations and the
functional connectivity between areas of a stored simulation.

Example:
  humam analyze 9b41...07 analysis.yaml`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)
			simulationID, err := parseParent(args[0])
			if err != nil {
				return f.Fail(err)
			}
			p, err := analysis.LoadParams(args[1])
			if err != nil {
				return f.Fail(err)
			}
			return withSession(cmd, rootOpts, func(ctx context.Context, s *session) error {
				out, err := analysis.Run(ctx, s.deps, simulationID, p)
				if err != nil {
					return f.Fail(err)
				}
				return reportStage(f, newStageResult(out))
			})
		},
	}
}
