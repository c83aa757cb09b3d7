package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/roach88/humam/internal/logging"
	"github.com/roach88/humam/internal/pipeline"
	"github.com/roach88/humam/internal/store"
)

// EnvPrefix prefixes the environment variables that back global flags,
// e.g. HUMAM_STORE or HUMAM_LOG_LEVEL.
const EnvPrefix = "HUMAM"

// DefaultStore is the artifact store root used when --store is not set.
const DefaultStore = "humam-store"

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Store    string
	Label    string
	Format   string // "json" | "text"
	Verbose  bool
	LogLevel string

	// Logger is built from Verbose and LogLevel before a command runs.
	Logger *slog.Logger
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the humam CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:   "humam",
		Short: "Build, simulate and analyze down-scaled multi-area cortex models",
		Long: `humam scales full-scale anatomical estimates of human cortex down to a
simulable network, runs simulations on it and analyzes the spike trains.

Every stage is stored under the hash of its parameters and of its parent
stage. Re-running a stage with the same parameters loads the stored result.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.resolve(v, cmd.ErrOrStderr())
		},
	}

	// Global flags
	flags := cmd.PersistentFlags()
	flags.String("store", DefaultStore, "artifact store root")
	flags.String("label", "", "run label recorded in the registry")
	flags.String("format", "text", "output format (json|text)")
	flags.BoolP("verbose", "v", false, "verbose output (implies --log-level debug)")
	flags.String("log-level", logging.LevelNameInfo, "log level (info|debug|trace)")
	_ = v.BindPFlags(flags)

	// Add subcommands
	cmd.AddCommand(NewBuildNetworkCommand(opts))
	cmd.AddCommand(NewRunSimulationCommand(opts))
	cmd.AddCommand(NewAnalyzeCommand(opts))
	cmd.AddCommand(NewHashCommand(opts))
	cmd.AddCommand(NewRunsCommand(opts))

	return cmd
}

// resolve reads the global settings (flags first, then HUMAM_* variables,
// then defaults) and builds the logger.
func (o *RootOptions) resolve(v *viper.Viper, stderr io.Writer) error {
	o.Store = v.GetString("store")
	o.Label = v.GetString("label")
	o.Format = v.GetString("format")
	o.Verbose = v.GetBool("verbose")
	o.LogLevel = v.GetString("log-level")

	if !slices.Contains(ValidFormats, o.Format) {
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", o.Format, ValidFormats))
	}
	if o.Store == "" {
		return NewExitError(ExitCommandError, "empty store path")
	}
	level, err := logging.ParseLevel(o.LogLevel)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid log level", err)
	}
	if o.Verbose && level > slog.LevelDebug {
		level = slog.LevelDebug
	}
	if o.Logger == nil {
		o.Logger = logging.NewLogger(level, stderr)
	}
	return nil
}

func (o *RootOptions) logger() *slog.Logger {
	if o.Logger == nil {
		return logging.Discard()
	}
	return o.Logger
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   o.Verbose,
	}
}

// session holds the store and registry one command works against.
type session struct {
	store    *store.FS
	registry *store.Registry
	deps     pipeline.Deps
}

func openSession(o *RootOptions) (*session, error) {
	logger := o.logger()
	st, err := store.OpenFS(o.Store, logger)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "open store", err)
	}
	reg, err := store.OpenRegistry(filepath.Join(st.Root(), store.RegistryFile))
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "open registry", err)
	}
	return &session{
		store:    st,
		registry: reg,
		deps: pipeline.Deps{
			Store:    st,
			Registry: reg,
			Logger:   logger,
			Label:    o.Label,
		},
	}, nil
}

func (s *session) Close() error {
	return s.registry.Close()
}

// withSession runs fn against an open session. The context is cancelled on
// SIGINT or SIGTERM so an interrupted stage commits nothing.
func withSession(cmd *cobra.Command, o *RootOptions, fn func(ctx context.Context, s *session) error) error {
	s, err := openSession(o)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := s.Close(); closeErr != nil {
			o.logger().Error("error closing registry", "error", closeErr)
		}
	}()

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	return fn(ctx, s)
}

// Execute runs the CLI with args and returns the process exit code.
// Argument errors detected by cobra are reported on stderr with
// ExitCommandError.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd := NewRootCommand()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if !errors.As(err, &exitErr) {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return ExitCommandError
	}
	if !exitErr.reported {
		fmt.Fprintf(stderr, "Error: %v\n", exitErr)
	}
	return exitErr.Code
}
