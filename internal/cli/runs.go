package cli

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/humam/internal/fault"
	"github.com/roach88/humam/internal/param"
	"github.com/roach88/humam/internal/store"
)

// RunRecord is one registry entry as printed by the runs command.
type RunRecord struct {
	RunID  string `json:"run_id"`
	Label  string `json:"label"`
	Stage  string `json:"stage"`
	Hash   string `json:"hash"`
	Parent string `json:"parent,omitempty"`
	Path   string `json:"path"`
}

// NewRunsCommand creates the runs command.
func NewRunsCommand(rootOpts *RootOptions) *cobra.Command {
	var hash, stage string
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List the stage results recorded in the registry",
		Long: `List the stage results recorded in the store's registry, oldest first.
With --label only the runs of that label are listed. With --hash only the
records of that artifact are listed, under every label that used it.

Example:
  humam runs --label exp1
  humam runs --hash 3f2a...e1 --stage simulation`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)
			query, err := newRunQuery(rootOpts.Label, hash, stage)
			if err != nil {
				return f.Fail(err)
			}
			return withSession(cmd, rootOpts, func(ctx context.Context, s *session) error {
				recs, err := query.run(ctx, s.registry)
				if err != nil {
					return f.Fail(err)
				}
				out := make([]RunRecord, len(recs))
				for i, r := range recs {
					out[i] = RunRecord{
						RunID:  r.RunID,
						Label:  r.Label,
						Stage:  string(r.Stage),
						Hash:   string(r.Hash),
						Parent: string(r.ParentHash),
						Path:   r.Path,
					}
				}
				if f.Format == "json" {
					return f.Success(out)
				}
				tw := tabwriter.NewWriter(f.Writer, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "RUN\tLABEL\tSTAGE\tHASH\tPARENT")
				for _, r := range out {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.RunID, r.Label, r.Stage,
						param.Identifier(r.Hash).Short(), param.Identifier(r.Parent).Short())
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().StringVar(&hash, "hash", "", "only list records of this artifact hash")
	cmd.Flags().StringVar(&stage, "stage", "", "stage of --hash (network|simulation|analysis); empty searches all")
	return cmd
}

// runQuery selects registry records by label or by artifact hash.
type runQuery struct {
	label  string
	hash   param.Identifier
	stages []store.Stage
}

func newRunQuery(label, hash, stage string) (runQuery, error) {
	const op = "cli.runs"
	q := runQuery{label: label}
	if hash == "" {
		if stage != "" {
			return runQuery{}, fault.Configf(op, "--stage needs --hash")
		}
		return q, nil
	}
	id, err := param.ParseIdentifier(hash)
	if err != nil {
		return runQuery{}, fault.Wrap(fault.Configuration, op, err, "--hash")
	}
	q.hash = id
	if stage == "" {
		q.stages = []store.Stage{store.StageNetwork, store.StageSimulation, store.StageAnalysis}
		return q, nil
	}
	st, err := store.ParseStage(stage)
	if err != nil {
		return runQuery{}, fault.Wrap(fault.Configuration, op, err, "--stage")
	}
	q.stages = []store.Stage{st}
	return q, nil
}

func (q runQuery) run(ctx context.Context, reg *store.Registry) ([]store.Record, error) {
	if q.hash == "" {
		return reg.Runs(ctx, q.label)
	}
	var recs []store.Record
	for _, st := range q.stages {
		found, err := reg.Lookup(ctx, st, q.hash)
		if err != nil {
			return nil, err
		}
		for _, r := range found {
			if q.label == "" || r.Label == q.label {
				recs = append(recs, r)
			}
		}
	}
	slices.SortFunc(recs, func(a, b store.Record) int { return cmp.Compare(a.Seq, b.Seq) })
	return recs, nil
}
