package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/humam/internal/analysis"
	"github.com/roach88/humam/internal/fault"
	"github.com/roach88/humam/internal/network"
	"github.com/roach88/humam/internal/param"
	"github.com/roach88/humam/internal/simulation"
	"github.com/roach88/humam/internal/store"
)

// HashResult is the output of the hash command.
type HashResult struct {
	Stage  string `json:"stage"`
	Hash   string `json:"hash"`
	Parent string `json:"parent,omitempty"`
}

func (r HashResult) String() string {
	return r.Hash
}

// NewHashCommand creates the hash command.
func NewHashCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "hash <stage> <config> [parent-hash]",
		Short: "Print the hash a configuration would be stored under",
		Long: `Print the identifier of a stage configuration without computing anything.

<stage> is network, simulation or analysis. Simulation and analysis hashes
depend on the parent stage, so they need [parent-hash].

Example:
  humam hash network network.yaml
  humam hash simulation simulation.yaml 3f2a...e1`,
		Args:          cobra.RangeArgs(2, 3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)
			res, err := hashConfig(args)
			if err != nil {
				return f.Fail(err)
			}
			return f.Success(res)
		},
	}
}

func hashConfig(args []string) (HashResult, error) {
	const op = "cli.hash"
	stage, err := store.ParseStage(args[0])
	if err != nil {
		return HashResult{}, fault.Wrap(fault.Configuration, op, err, "stage")
	}
	res := HashResult{Stage: string(stage)}

	var parent param.Identifier
	switch {
	case stage == store.StageNetwork && len(args) == 3:
		return HashResult{}, fault.Configf(op, "a network has no parent hash")
	case stage != store.StageNetwork && len(args) < 3:
		return HashResult{}, fault.Configf(op, "%s hash needs the parent hash", stage)
	case len(args) == 3:
		if parent, err = parseParent(args[2]); err != nil {
			return HashResult{}, err
		}
		res.Parent = string(parent)
	}

	var id param.Identifier
	switch stage {
	case store.StageNetwork:
		cfg, err := network.LoadConfig(args[1])
		if err != nil {
			return HashResult{}, err
		}
		id, err = cfg.Hash()
		if err != nil {
			return HashResult{}, err
		}
	case store.StageSimulation:
		p, err := simulation.LoadParams(args[1])
		if err != nil {
			return HashResult{}, err
		}
		if id, err = p.Hash(parent); err != nil {
			return HashResult{}, err
		}
	case store.StageAnalysis:
		p, err := analysis.LoadParams(args[1])
		if err != nil {
			return HashResult{}, err
		}
		if id, err = p.Hash(parent); err != nil {
			return HashResult{}, err
		}
	}
	res.Hash = string(id)
	return res, nil
}
