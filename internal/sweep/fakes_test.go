package sweep

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/joshsymonds/calsweep/internal/calendar"
	"github.com/joshsymonds/calsweep/internal/gmail"
	"github.com/joshsymonds/calsweep/internal/journal"
)

type fakeCalendar struct {
	mu       sync.Mutex
	events   []calendar.Event
	listErr  error
	listOpts []calendar.ListOptions
	failOn   map[calendar.EventID]error
	deleted  []calendar.EventID
	notify   []bool
	onDelete func()
}

func (f *fakeCalendar) ListEvents(ctx context.Context, opts calendar.ListOptions) ([]calendar.Event, error) {
	_ = ctx
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listOpts = append(f.listOpts, opts)
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]calendar.Event(nil), f.events...), nil
}

func (f *fakeCalendar) DeleteEvent(ctx context.Context, calendarID string, id calendar.EventID, notify bool) error {
	_ = ctx
	_ = calendarID
	f.mu.Lock()
	f.deleted = append(f.deleted, id)
	f.notify = append(f.notify, notify)
	hook := f.onDelete
	err := f.failOn[id]
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	return err
}

type batchCalendar struct {
	fakeCalendar
	batches [][]calendar.EventID
	drop    calendar.EventID
}

func (b *batchCalendar) DeleteEvents(
	ctx context.Context,
	calendarID string,
	ids []calendar.EventID,
	notify bool,
) []calendar.DeleteResult {
	_ = ctx
	_ = calendarID
	_ = notify
	b.batches = append(b.batches, append([]calendar.EventID(nil), ids...))
	var out []calendar.DeleteResult
	for _, id := range ids {
		if id == b.drop {
			continue
		}
		out = append(out, calendar.DeleteResult{ID: id, Err: b.failOn[id]})
	}
	return out
}

type fakeInbox struct {
	mu       sync.Mutex
	ids      []gmail.MessageID
	from     map[gmail.MessageID]string
	getErr   map[gmail.MessageID]error
	listErr  error
	listOpts []gmail.ListOptions
	gets     int
}

func (f *fakeInbox) ListMessages(ctx context.Context, opts gmail.ListOptions) ([]gmail.MessageID, error) {
	_ = ctx
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listOpts = append(f.listOpts, opts)
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]gmail.MessageID(nil), f.ids...), nil
}

func (f *fakeInbox) GetMetadata(ctx context.Context, id gmail.MessageID, headers []string) (gmail.MessageMeta, error) {
	_ = ctx
	_ = headers
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	if err := f.getErr[id]; err != nil {
		return gmail.MessageMeta{}, err
	}
	return f.meta(id), nil
}

func (f *fakeInbox) meta(id gmail.MessageID) gmail.MessageMeta {
	m := gmail.MessageMeta{ID: id}
	if from, ok := f.from[id]; ok {
		m.Headers = []gmail.Header{{Name: gmail.HeaderFrom, Value: from}}
	}
	return m
}

type batchInbox struct {
	fakeInbox
	batchCalls int
	vanished   map[gmail.MessageID]bool
}

func (b *batchInbox) GetMetadataBatch(
	ctx context.Context,
	ids []gmail.MessageID,
	headers []string,
) ([]gmail.MessageMeta, error) {
	_ = ctx
	_ = headers
	b.batchCalls++
	out := make([]gmail.MessageMeta, 0, len(ids))
	for _, id := range ids {
		if b.vanished[id] {
			continue
		}
		out = append(out, b.meta(id))
	}
	return out, nil
}

type fakeJournal struct {
	entries []journal.Entry
	err     error
}

func (f *fakeJournal) Record(ctx context.Context, e journal.Entry) error {
	_ = ctx
	f.entries = append(f.entries, e)
	return f.err
}

type noLimiter struct{}

func (noLimiter) Wait(ctx context.Context) error {
	_ = ctx
	return nil
}

var errGone = errors.New("googleapi: Error 410: Resource has been deleted")

func slogDiscard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
