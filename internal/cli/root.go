// Package cli implements tablebookctl, the operator command line for the
// reservation service.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/johnnyhall81/clientdining-v1-sub000/internal/di"
	"github.com/johnnyhall81/clientdining-v1-sub000/pkg/config"
	"github.com/johnnyhall81/clientdining-v1-sub000/pkg/logger"
	"github.com/spf13/cobra"
)

var (
	Version   = "dev"
	CommitSHA = "none"
	BuildDate = "unknown"
)

type options struct {
	envFile string
}

// NewRootCmd builds the command tree
func NewRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "tablebookctl",
		Short:         "Operate the table reservation service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.envFile, "env-file", "", "load configuration from this .env file instead of ./.env")

	root.AddCommand(newVersionCmd())
	root.AddCommand(newMigrateCmd(opts))
	root.AddCommand(newSweepCmd(opts))
	root.AddCommand(newSlotCmd(opts))
	root.AddCommand(newDinerCmd(opts))
	root.AddCommand(newTokenCmd(opts))

	return root
}

// Execute runs the root command and exits non-zero on failure
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version info",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "tablebookctl %s (commit=%s, built=%s)\n", Version, CommitSHA, BuildDate)
		},
	}
}

func (o *options) loadConfig() (*config.Config, error) {
	if o.envFile != "" {
		return config.LoadWithPath(o.envFile)
	}
	return config.Load()
}

// container loads config, initializes logging and wires the service.
// Background workers are never started from the CLI.
func (o *options) container(ctx context.Context) (*di.Container, *config.Config, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, nil, err
	}
	if err := logger.Init(&logger.Config{Level: "warn", ServiceName: "tablebookctl"}); err != nil {
		return nil, nil, err
	}
	cfg.Idempotency.Enabled = false

	c, err := di.Build(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return c, cfg, nil
}

func printf(w io.Writer, format string, args ...interface{}) {
	_, _ = fmt.Fprintf(w, format, args...)
}
