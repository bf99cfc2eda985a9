package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/joshsymonds/calsweep/internal/journal"
)

func newHistoryCmd(opts *rootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded runs from the journal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			if cfg.Journal.Path == "" {
				return fmt.Errorf("journal.path is not set; no history is recorded")
			}
			j, err := openJournal(cfg.Journal.Path)
			if err != nil {
				return err
			}
			defer j.Close()

			runs, err := j.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if opts.json {
				if runs == nil {
					runs = []journal.Run{}
				}
				return fprintJSON(out, runs)
			}
			if len(runs) == 0 {
				fmt.Fprintln(out, "No runs recorded.")
				return nil
			}
			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "STARTED\tMODE\tSPAM\tDELETED\tWOULD\tFAILED\tSKIPPED\tRUN_ID")
			for _, r := range runs {
				mode := "live"
				if r.DryRun {
					mode = "dry-run"
				}
				fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%d\t%d\t%s\n",
					r.StartedAt.Local().Format(time.DateTime), mode, r.SpamAddresses,
					r.Outcomes[journal.OutcomeDeleted],
					r.Outcomes[journal.OutcomeWouldDelete],
					r.Outcomes[journal.OutcomeFailed],
					r.Outcomes[journal.OutcomeNotAttempted],
					r.RunID,
				)
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum runs to show")
	return cmd
}
