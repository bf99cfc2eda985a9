package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/joshsymonds/calsweep/internal/journal"
	"github.com/joshsymonds/calsweep/internal/rate"
	"github.com/joshsymonds/calsweep/internal/runtime"
	"github.com/joshsymonds/calsweep/internal/sweep"
)

func newRunCmd(opts *rootOptions) *cobra.Command {
	var dryRun, notify bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Delete events whose creator is a spam sender",
		Long: "Lists upcoming events and spam messages, prints the spam senders and\n" +
			"the matching events, then deletes them. Both --dry-run and --notify\n" +
			"must be decided, either here or in the config file.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("dry-run") {
				cfg.Sweep.DryRun = &dryRun
			}
			if cmd.Flags().Changed("notify") {
				cfg.Sweep.Notify = &notify
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid config:\n%w", err)
			}
			logger, err := runtime.NewLogger(cfg.Log.Level, cfg.Log.Format, cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			b, err := opts.connect(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer b.Close()

			limiter, stop := rate.New(cfg.Sweep.RPS)
			defer stop()

			svc := sweep.NewService(b.Calendar, b.Inbox, limiter, logger)
			if cfg.Journal.Path != "" {
				j, err := openJournal(cfg.Journal.Path)
				if err != nil {
					return err
				}
				defer j.Close()
				svc.Journal = j
			}

			res, runErr := svc.Run(ctx, sweep.Spec{
				CalendarID:   cfg.Calendar.CalendarID,
				Lookback:     cfg.Calendar.Lookback.Duration,
				Horizon:      cfg.Calendar.Horizon.Duration,
				MaxEvents:    cfg.Calendar.MaxResults,
				OrderBy:      cfg.Calendar.OrderBy,
				SpamLabel:    cfg.Inbox.Label,
				IncludeTrash: cfg.Inbox.IncludeTrash,
				MaxMessages:  cfg.Inbox.MaxResults,
				Concurrency:  cfg.Inbox.Concurrency,
				DryRun:       *cfg.Sweep.DryRun,
				Notify:       *cfg.Sweep.Notify,
			})
			// a canceled delete still has a partial report worth printing
			if runErr != nil && res.Deletions == nil {
				return runErr
			}
			if opts.json {
				if err := fprintJSON(cmd.OutOrStdout(), toJSONResult(res)); err != nil {
					return err
				}
			} else if err := printResult(cmd.OutOrStdout(), res); err != nil {
				return err
			}
			return runErr
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report matching events without deleting them")
	cmd.Flags().BoolVar(&notify, "notify", false, "send cancellation notices to attendees")
	return cmd
}

func openJournal(path string) (*journal.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create journal dir: %w", err)
	}
	j, err := journal.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	return j, nil
}
