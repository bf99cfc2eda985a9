// Package cli implements the calsweep command line.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/joshsymonds/calsweep/internal/config"
	"github.com/joshsymonds/calsweep/internal/runtime"
)

// version is set via ldflags at build time.
var version = "dev"

type rootOptions struct {
	configPath string
	json       bool
	connect    connectFunc
}

// NewRootCmd builds the calsweep command tree.
func NewRootCmd() *cobra.Command {
	return newRootCmd(connectBackends)
}

func newRootCmd(connect connectFunc) *cobra.Command {
	opts := &rootOptions{connect: connect}
	root := &cobra.Command{
		Use:   "calsweep",
		Short: "Delete calendar events created by spam senders",
		Long: "calsweep compares the creators of upcoming calendar events with the\n" +
			"senders in the spam folder and deletes the events that match.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetVersionTemplate(fmt.Sprintf("calsweep %s\n", version))
	root.CompletionOptions.DisableDefaultCmd = true
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file path")
	root.PersistentFlags().BoolVar(&opts.json, "json", false, "output in JSON format")
	root.AddCommand(newRunCmd(opts))
	root.AddCommand(newAuthCmd(opts))
	root.AddCommand(newHistoryCmd(opts))
	root.AddCommand(newVersionCmd())
	return root
}

// Execute runs the root command until it finishes or SIGINT/SIGTERM.
func Execute() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		runtime.DefaultLogger().Error("calsweep failed", "error", err)
		cancel()
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the calsweep version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "calsweep %s\n", version)
			return err
		},
	}
}

// loadConfig loads the configuration from --config or the default path.
func (o *rootOptions) loadConfig() (*config.Config, error) {
	path := o.configPath
	if path == "" {
		path = filepath.Join(config.ConfigDir(), "config.toml")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}
