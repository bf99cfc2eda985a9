// internal/sweep/service.go
package sweep

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/joshsymonds/calsweep/internal/calendar"
	"github.com/joshsymonds/calsweep/internal/gmail"
	"github.com/joshsymonds/calsweep/internal/journal"
	"github.com/joshsymonds/calsweep/internal/rate"
	"github.com/joshsymonds/calsweep/internal/reconcile"
)

const defaultConcurrency = 4

var errMessageVanished = errors.New("message not returned by batch fetch")

// Spec describes one reconciliation pass.
type Spec struct {
	CalendarID string
	Lookback   time.Duration // events starting after now-Lookback are considered
	Horizon    time.Duration // optional upper bound, relative to now
	MaxEvents  int
	OrderBy    string

	SpamLabel    string
	IncludeTrash bool
	MaxMessages  int
	Concurrency  int // parallel metadata fetches when the inbox cannot batch

	DryRun bool
	Notify bool
}

// Journal receives a summary of every completed run.
type Journal interface {
	Record(ctx context.Context, e journal.Entry) error
}

// Service wires the fetch pipelines, the reconciler and the deleter.
type Service struct {
	Calendar calendar.Client
	Inbox    gmail.Client
	Limiter  rate.Limiter
	Logger   *slog.Logger
	Clock    func() time.Time
	NewRunID func() string
	Journal  Journal
}

// NewService constructs a Service with sane defaults.
func NewService(
	cal calendar.Client,
	inbox gmail.Client,
	limiter rate.Limiter,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	if limiter == nil {
		limiter = rate.Unlimited{}
	}
	return &Service{
		Calendar: cal,
		Inbox:    inbox,
		Limiter:  limiter,
		Logger:   logger,
		Clock:    time.Now,
		NewRunID: uuid.NewString,
	}
}

// Result is everything a run computed and did.
type Result struct {
	RunID           string
	Spam            reconcile.SpamAddressSet
	Deletions       reconcile.DeletionSet
	SkippedEvents   []reconcile.Skipped
	SkippedMessages []reconcile.Skipped
	Report          DeleteReport
}

// Run performs a single reconciliation pass. Only list failures and
// cancellation are returned as errors; individual delete failures are in
// Result.Report.
func (s *Service) Run(ctx context.Context, spec Spec) (Result, error) {
	if spec.CalendarID == "" {
		spec.CalendarID = calendar.PrimaryCalendar
	}
	if spec.SpamLabel == "" {
		spec.SpamLabel = gmail.LabelSpam
	}
	res := Result{RunID: s.NewRunID()}
	started := s.Clock()
	logger := s.Logger.With(slog.String("run_id", res.RunID))
	logger.InfoContext(ctx, "starting sweep",
		slog.String("calendar", spec.CalendarID),
		slog.Bool("dry_run", spec.DryRun),
		slog.Bool("notify", spec.Notify),
	)

	var index *reconcile.EventIndex
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		index, res.SkippedEvents, err = s.buildIndex(gctx, logger, spec, started)
		return err
	})
	g.Go(func() error {
		var err error
		res.Spam, res.SkippedMessages, err = s.collectSpam(gctx, logger, spec)
		return err
	})
	if err := g.Wait(); err != nil {
		return res, err
	}

	res.Deletions = reconcile.Reconcile(index, res.Spam)
	logger.InfoContext(ctx, "reconciled",
		slog.Int("creators", index.Len()),
		slog.Int("events", index.EventCount()),
		slog.Int("spam_addresses", res.Spam.Len()),
		slog.Int("deletions", len(res.Deletions)),
	)

	deleter := &Deleter{Client: s.Calendar, Limiter: s.Limiter, Logger: logger}
	rep, err := deleter.Delete(ctx, res.Deletions, DeleteOptions{
		CalendarID: spec.CalendarID,
		DryRun:     spec.DryRun,
		Notify:     spec.Notify,
	})
	res.Report = rep
	s.record(ctx, logger, res, started)
	if err != nil {
		return res, err
	}
	if perr := rep.Err(); perr != nil {
		logger.WarnContext(ctx, "sweep finished with failures", slog.Any("error", perr))
		return res, nil
	}
	logger.InfoContext(ctx, "sweep finished",
		slog.Int("deleted", len(rep.Deleted)),
		slog.Int("would_delete", len(rep.WouldDelete)),
	)
	return res, nil
}

func (s *Service) buildIndex(
	ctx context.Context,
	logger *slog.Logger,
	spec Spec,
	now time.Time,
) (*reconcile.EventIndex, []reconcile.Skipped, error) {
	opts := calendar.ListOptions{
		CalendarID: spec.CalendarID,
		TimeMin:    now.Add(-spec.Lookback),
		MaxResults: spec.MaxEvents,
		OrderBy:    spec.OrderBy,
	}
	if spec.Horizon > 0 {
		opts.TimeMax = now.Add(spec.Horizon)
	}
	if err := s.Limiter.Wait(ctx); err != nil {
		return nil, nil, err
	}
	events, err := s.Calendar.ListEvents(ctx, opts)
	if err != nil {
		return nil, nil, fmt.Errorf("list events: %w", err)
	}
	if len(events) == 0 {
		logger.InfoContext(ctx, "no upcoming events found")
	}
	index, skipped := reconcile.BuildIndex(events)
	for _, sk := range skipped {
		level := slog.LevelWarn
		if errors.Is(sk.Reason, reconcile.ErrMissingCreator) {
			level = slog.LevelInfo
		}
		logger.Log(ctx, level, "skipping event",
			slog.String("event_id", sk.ID),
			slog.String("reason", sk.Reason.Error()),
		)
	}
	return index, skipped, nil
}

func (s *Service) collectSpam(
	ctx context.Context,
	logger *slog.Logger,
	spec Spec,
) (reconcile.SpamAddressSet, []reconcile.Skipped, error) {
	if err := s.Limiter.Wait(ctx); err != nil {
		return reconcile.SpamAddressSet{}, nil, err
	}
	ids, err := s.Inbox.ListMessages(ctx, gmail.ListOptions{
		Label:        spec.SpamLabel,
		IncludeTrash: spec.IncludeTrash,
		MaxResults:   spec.MaxMessages,
	})
	if err != nil {
		return reconcile.SpamAddressSet{}, nil, fmt.Errorf("list spam messages: %w", err)
	}
	if len(ids) == 0 {
		logger.InfoContext(ctx, "no messages found", slog.String("label", spec.SpamLabel))
	}

	collector := reconcile.NewSpamCollector()
	headers := []string{gmail.HeaderFrom}
	if bg, ok := s.Inbox.(gmail.BatchGetter); ok && len(ids) > 0 {
		if err := s.Limiter.Wait(ctx); err != nil {
			return reconcile.SpamAddressSet{}, nil, err
		}
		metas, err := bg.GetMetadataBatch(ctx, ids, headers)
		if err != nil {
			return reconcile.SpamAddressSet{}, nil, fmt.Errorf("fetch spam metadata: %w", err)
		}
		returned := make(map[gmail.MessageID]struct{}, len(metas))
		for _, m := range metas {
			returned[m.ID] = struct{}{}
			s.addMessage(ctx, logger, collector, m)
		}
		for _, id := range ids {
			if _, ok := returned[id]; ok {
				continue
			}
			logger.WarnContext(ctx, "skipping message",
				slog.String("message_id", string(id)),
				slog.Any("error", errMessageVanished),
			)
			collector.SkipFetch(id, errMessageVanished)
		}
	} else if err := s.fetchConcurrently(ctx, logger, collector, ids, headers, spec.Concurrency); err != nil {
		return reconcile.SpamAddressSet{}, nil, err
	}
	return collector.Set(), collector.Skipped(), nil
}

func (s *Service) fetchConcurrently(
	ctx context.Context,
	logger *slog.Logger,
	collector *reconcile.SpamCollector,
	ids []gmail.MessageID,
	headers []string,
	concurrency int,
) error {
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, id := range ids {
		g.Go(func() error {
			if err := s.Limiter.Wait(gctx); err != nil {
				return err
			}
			meta, err := s.Inbox.GetMetadata(gctx, id, headers)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				logger.WarnContext(gctx, "skipping message",
					slog.String("message_id", string(id)),
					slog.Any("error", err),
				)
				collector.SkipFetch(id, err)
				return nil
			}
			if meta.ID == "" {
				meta.ID = id
			}
			s.addMessage(gctx, logger, collector, meta)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("fetch spam metadata: %w", err)
	}
	return nil
}

func (s *Service) addMessage(
	ctx context.Context,
	logger *slog.Logger,
	collector *reconcile.SpamCollector,
	meta gmail.MessageMeta,
) {
	if err := collector.Add(meta); err != nil {
		logger.WarnContext(ctx, "skipping message",
			slog.String("message_id", string(meta.ID)),
			slog.String("reason", err.Error()),
		)
	}
}

func (s *Service) record(ctx context.Context, logger *slog.Logger, res Result, started time.Time) {
	if s.Journal == nil {
		return
	}
	entry := journal.Entry{
		RunID:         res.RunID,
		StartedAt:     started,
		FinishedAt:    s.Clock(),
		DryRun:        res.Report.DryRun,
		SpamAddresses: res.Spam.Len(),
	}
	for _, id := range res.Report.WouldDelete {
		entry.Deletions = append(entry.Deletions, journal.Deletion{EventID: string(id), Outcome: journal.OutcomeWouldDelete})
	}
	for _, id := range res.Report.Deleted {
		entry.Deletions = append(entry.Deletions, journal.Deletion{EventID: string(id), Outcome: journal.OutcomeDeleted})
	}
	for _, f := range res.Report.Failed {
		entry.Deletions = append(entry.Deletions, journal.Deletion{
			EventID: string(f.ID),
			Outcome: journal.OutcomeFailed,
			Error:   f.Err.Error(),
		})
	}
	for _, id := range res.Report.NotAttempted {
		entry.Deletions = append(entry.Deletions, journal.Deletion{EventID: string(id), Outcome: journal.OutcomeNotAttempted})
	}
	// journal writes must outlive a canceled run
	if err := s.Journal.Record(context.WithoutCancel(ctx), entry); err != nil {
		logger.ErrorContext(ctx, "record journal", slog.Any("error", err))
	}
}
