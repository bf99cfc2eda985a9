package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/joshsymonds/calsweep/internal/calendar"
	"github.com/joshsymonds/calsweep/internal/reconcile"
	"github.com/joshsymonds/calsweep/internal/sweep"
)

// fprintJSON encodes v as indented JSON to w.
func fprintJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode JSON: %w", err)
	}
	return nil
}

type jsonFailure struct {
	EventID string `json:"event_id"`
	Error   string `json:"error"`
}

type jsonSkipped struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

type jsonResult struct {
	RunID           string        `json:"run_id"`
	DryRun          bool          `json:"dry_run"`
	SpamAddresses   []string      `json:"spam_addresses"`
	Deletions       []string      `json:"deletions"`
	WouldDelete     []string      `json:"would_delete"`
	Deleted         []string      `json:"deleted"`
	Failed          []jsonFailure `json:"failed"`
	NotAttempted    []string      `json:"not_attempted"`
	SkippedEvents   []jsonSkipped `json:"skipped_events"`
	SkippedMessages []jsonSkipped `json:"skipped_messages"`
}

func toJSONResult(res sweep.Result) jsonResult {
	out := jsonResult{
		RunID:           res.RunID,
		DryRun:          res.Report.DryRun,
		SpamAddresses:   res.Spam.Sorted(),
		Deletions:       ids(res.Deletions),
		WouldDelete:     ids(res.Report.WouldDelete),
		Deleted:         ids(res.Report.Deleted),
		Failed:          make([]jsonFailure, 0, len(res.Report.Failed)),
		NotAttempted:    ids(res.Report.NotAttempted),
		SkippedEvents:   skipped(res.SkippedEvents),
		SkippedMessages: skipped(res.SkippedMessages),
	}
	if out.SpamAddresses == nil {
		out.SpamAddresses = []string{}
	}
	for _, f := range res.Report.Failed {
		out.Failed = append(out.Failed, jsonFailure{EventID: string(f.ID), Error: f.Err.Error()})
	}
	return out
}

func ids[S ~[]calendar.EventID](in S) []string {
	out := make([]string, 0, len(in))
	for _, id := range in {
		out = append(out, string(id))
	}
	return out
}

func skipped(in []reconcile.Skipped) []jsonSkipped {
	out := make([]jsonSkipped, 0, len(in))
	for _, s := range in {
		out = append(out, jsonSkipped{ID: s.ID, Reason: s.Reason.Error()})
	}
	return out
}

// printResult writes the spam set, the deletion set and the outcome.
func printResult(w io.Writer, res sweep.Result) error {
	spam := res.Spam.Sorted()
	fmt.Fprintf(w, "Spam senders (%d):\n", len(spam))
	for _, addr := range spam {
		fmt.Fprintf(w, "  %s\n", addr)
	}
	fmt.Fprintf(w, "Events to delete (%d):\n", len(res.Deletions))
	for _, id := range res.Deletions {
		fmt.Fprintf(w, "  %s\n", id)
	}

	rep := res.Report
	switch {
	case rep.DryRun:
		fmt.Fprintf(w, "Dry run: %d event(s) would be deleted.\n", len(rep.WouldDelete))
	default:
		fmt.Fprintf(w, "Deleted %d event(s).\n", len(rep.Deleted))
	}
	for _, f := range rep.Failed {
		fmt.Fprintf(w, "  failed %s: %v\n", f.ID, f.Err)
	}
	if n := len(rep.NotAttempted); n > 0 {
		fmt.Fprintf(w, "%d event(s) not attempted.\n", n)
	}
	if n := len(res.SkippedEvents) + len(res.SkippedMessages); n > 0 {
		_, err := fmt.Fprintf(w, "Skipped %d event(s) and %d message(s) with unusable addresses.\n",
			len(res.SkippedEvents), len(res.SkippedMessages))
		return err
	}
	return nil
}
