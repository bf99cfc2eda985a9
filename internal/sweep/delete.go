package sweep

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hashicorp/go-multierror"

	"github.com/joshsymonds/calsweep/internal/calendar"
	"github.com/joshsymonds/calsweep/internal/rate"
	"github.com/joshsymonds/calsweep/internal/reconcile"
)

// Google Calendar accepts at most 50 calls per batch request.
const defaultBatchSize = 50

// DeleteOptions controls one deletion pass.
type DeleteOptions struct {
	CalendarID string
	DryRun     bool
	Notify     bool // send cancellation notices to attendees
}

// DeleteFailure pairs an event with the error its delete returned.
type DeleteFailure struct {
	ID  calendar.EventID
	Err error
}

// DeleteReport enumerates what happened to every member of a deletion set.
type DeleteReport struct {
	DryRun       bool
	WouldDelete  []calendar.EventID
	Deleted      []calendar.EventID
	Failed       []DeleteFailure
	NotAttempted []calendar.EventID
}

// Err returns a *PartialDeleteError when any delete failed, nil otherwise.
func (r DeleteReport) Err() error {
	if len(r.Failed) == 0 {
		return nil
	}
	var merr *multierror.Error
	for _, f := range r.Failed {
		merr = multierror.Append(merr, fmt.Errorf("delete %s: %w", f.ID, f.Err))
	}
	return &PartialDeleteError{
		Failed: len(r.Failed),
		Total:  len(r.Failed) + len(r.Deleted) + len(r.NotAttempted),
		errs:   merr,
	}
}

// PartialDeleteError reports that a subset of deletions failed. It does not
// make the run fail.
type PartialDeleteError struct {
	Failed int
	Total  int
	errs   *multierror.Error
}

func (e *PartialDeleteError) Error() string {
	return fmt.Sprintf("%d of %d deletions failed: %s", e.Failed, e.Total, e.errs.Error())
}

func (e *PartialDeleteError) Unwrap() error { return e.errs }

// Deleter removes events one by one or in batches, never stopping at the first
// failure.
type Deleter struct {
	Client    calendar.Client
	Limiter   rate.Limiter
	Logger    *slog.Logger
	BatchSize int
}

// Delete attempts every id in ids. The returned error is non-nil only when ctx
// was canceled; ids not yet submitted at that point are listed as NotAttempted.
// Submitted deletions are never rolled back.
func (d *Deleter) Delete(
	ctx context.Context,
	ids reconcile.DeletionSet,
	opts DeleteOptions,
) (DeleteReport, error) {
	rep := DeleteReport{DryRun: opts.DryRun}
	if opts.DryRun {
		for _, id := range ids {
			d.Logger.InfoContext(ctx, "would delete event", slog.String("event_id", string(id)))
			rep.WouldDelete = append(rep.WouldDelete, id)
		}
		return rep, nil
	}
	if bd, ok := d.Client.(calendar.BatchDeleter); ok {
		return d.deleteBatched(ctx, bd, ids, opts, rep)
	}
	return d.deleteSequential(ctx, ids, opts, rep)
}

func (d *Deleter) deleteSequential(
	ctx context.Context,
	ids reconcile.DeletionSet,
	opts DeleteOptions,
	rep DeleteReport,
) (DeleteReport, error) {
	for i, id := range ids {
		if err := d.Limiter.Wait(ctx); err != nil {
			rep.NotAttempted = append(rep.NotAttempted, ids[i:]...)
			return rep, fmt.Errorf("delete canceled: %w", err)
		}
		d.Logger.InfoContext(ctx, "deleting event", slog.String("event_id", string(id)))
		err := d.Client.DeleteEvent(ctx, opts.CalendarID, id, opts.Notify)
		rep = record(ctx, d.Logger, rep, id, err)
		if ctxErr := ctx.Err(); ctxErr != nil {
			rep.NotAttempted = append(rep.NotAttempted, ids[i+1:]...)
			return rep, fmt.Errorf("delete canceled: %w", ctxErr)
		}
	}
	return rep, nil
}

func (d *Deleter) deleteBatched(
	ctx context.Context,
	bd calendar.BatchDeleter,
	ids reconcile.DeletionSet,
	opts DeleteOptions,
	rep DeleteReport,
) (DeleteReport, error) {
	size := d.BatchSize
	if size <= 0 {
		size = defaultBatchSize
	}
	for i := 0; i < len(ids); i += size {
		j := min(i+size, len(ids))
		if err := d.Limiter.Wait(ctx); err != nil {
			rep.NotAttempted = append(rep.NotAttempted, ids[i:]...)
			return rep, fmt.Errorf("delete canceled: %w", err)
		}
		chunk := []calendar.EventID(ids[i:j])
		d.Logger.InfoContext(ctx, "deleting events", slog.Int("count", len(chunk)))
		results := bd.DeleteEvents(ctx, opts.CalendarID, chunk, opts.Notify)
		byID := make(map[calendar.EventID]error, len(results))
		seen := make(map[calendar.EventID]bool, len(results))
		for _, r := range results {
			byID[r.ID] = r.Err
			seen[r.ID] = true
		}
		for _, id := range chunk {
			err := byID[id]
			if !seen[id] {
				err = errors.New("no result returned for event")
			}
			rep = record(ctx, d.Logger, rep, id, err)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			rep.NotAttempted = append(rep.NotAttempted, ids[j:]...)
			return rep, fmt.Errorf("delete canceled: %w", ctxErr)
		}
	}
	return rep, nil
}

func record(
	ctx context.Context,
	logger *slog.Logger,
	rep DeleteReport,
	id calendar.EventID,
	err error,
) DeleteReport {
	if err != nil {
		logger.WarnContext(ctx, "delete failed",
			slog.String("event_id", string(id)),
			slog.Any("error", err),
		)
		rep.Failed = append(rep.Failed, DeleteFailure{ID: id, Err: err})
		return rep
	}
	rep.Deleted = append(rep.Deleted, id)
	return rep
}
