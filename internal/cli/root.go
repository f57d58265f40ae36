package cli

import (
	"context"
	"errors"
	"fmt"

	"iuran-data/internal/config"
	"iuran-data/internal/logger"
	"iuran-data/internal/repository"
	"iuran-data/internal/service"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Output  string // "text" | "json"
}

// ValidOutputs defines the allowed output formats.
var ValidOutputs = []string{"text", "json"}

// Deps are the services a command runs against.
type Deps struct {
	Roster service.RosterService
	Stats  service.StatsService
	Close  func() error
}

// Opener builds Deps for one command invocation.
type Opener func(ctx context.Context, opts *RootOptions) (*Deps, error)

// NewRootCommand creates the rosterctl root command, wired from the environment.
func NewRootCommand() *cobra.Command {
	return newRootCommand(openFromEnv)
}

func newRootCommand(open Opener) *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "rosterctl",
		Short: "Roster admin tool",
		Long:  "Import, export and inspect the verified resident roster (data warga) from the command line.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidOutput(opts.Output) {
				return fmt.Errorf("invalid output %q: must be one of %v", opts.Output, ValidOutputs)
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose logging")
	cmd.PersistentFlags().StringVarP(&opts.Output, "output", "o", "text", "output format (json|text)")

	cmd.AddCommand(newImportCommand(opts, open))
	cmd.AddCommand(newExportCommand(opts, open))
	cmd.AddCommand(newTemplateCommand(opts, open))
	cmd.AddCommand(newStatsCommand(opts, open))

	return cmd
}

func isValidOutput(output string) bool {
	for _, o := range ValidOutputs {
		if o == output {
			return true
		}
	}
	return false
}

func openFromEnv(ctx context.Context, opts *RootOptions) (*Deps, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	level := cfg.Log.Level
	if opts.Verbose {
		level = "debug"
	}
	// CLI 默认输出可读日志
	log, err := logger.NewLogger(level, "console", "rosterctl")
	if err != nil {
		return nil, err
	}

	store, closeStore, err := repository.OpenRosterStore(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	deps := newDeps(ctx, cfg, store, log)
	closeRuntime := deps.Close
	deps.Close = func() error {
		_ = log.Sync()
		return errors.Join(closeRuntime(), closeStore())
	}
	return deps, nil
}

// newDeps wires the same event sinks and stats cache as the HTTP server,
// so CLI imports reach MQTT / the Redis stream and invalidate cached stats.
func newDeps(ctx context.Context, cfg *config.Config, store repository.RosterStore, log *zap.Logger) *Deps {
	rt := service.NewRuntime(ctx, cfg, store, log)
	return &Deps{
		Roster: rt.Roster,
		Stats:  rt.Stats,
		Close:  rt.Close,
	}
}

// withDeps opens dependencies around fn and always closes them.
func withDeps(cmd *cobra.Command, opts *RootOptions, open Opener, fn func(*Deps) error) error {
	deps, err := open(cmd.Context(), opts)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to initialise", err)
	}
	defer func() {
		if deps.Close != nil {
			if err := deps.Close(); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: close failed: %v\n", err)
			}
		}
	}()
	return fn(deps)
}
