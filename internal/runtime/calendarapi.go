// internal/runtime/calendarapi.go - adapts *calendar.Service to our small interface
package runtime

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	cal "github.com/joshsymonds/calsweep/internal/calendar"
)

const calendarMaxPageSize = 250

type calendarClient struct{ svc *calendar.Service }

func NewCalendarAPIClient(svc *calendar.Service) *calendarClient { return &calendarClient{svc} }

// NewCalendarClient builds the Google Calendar capability from an authorized
// token source.
func NewCalendarClient(ctx context.Context, ts oauth2.TokenSource, opts ...option.ClientOption) (cal.Client, error) {
	opts = append([]option.ClientOption{option.WithTokenSource(ts)}, opts...)
	svc, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create calendar service: %w", err)
	}
	return NewCalendarAPIClient(svc), nil
}

// ListEvents expands recurring events into single instances so every
// occurrence has its own deletable id.
func (c *calendarClient) ListEvents(ctx context.Context, opts cal.ListOptions) ([]cal.Event, error) {
	var (
		events []cal.Event
		token  string
	)
	for {
		call := c.svc.Events.List(opts.CalendarID).
			TimeMin(opts.TimeMin.Format(time.RFC3339)).
			SingleEvents(true)
		if !opts.TimeMax.IsZero() {
			call = call.TimeMax(opts.TimeMax.Format(time.RFC3339))
		}
		if opts.OrderBy != "" {
			call = call.OrderBy(opts.OrderBy)
		}
		if opts.MaxResults > 0 {
			call = call.MaxResults(int64(min(opts.MaxResults-len(events), calendarMaxPageSize)))
		}
		if token != "" {
			call = call.PageToken(token)
		}
		res, err := call.Context(ctx).Do()
		if err != nil {
			return nil, fmt.Errorf("list calendar events: %w", err)
		}
		for _, item := range res.Items {
			events = append(events, toEvent(item))
		}
		if res.NextPageToken == "" || (opts.MaxResults > 0 && len(events) >= opts.MaxResults) {
			break
		}
		token = res.NextPageToken
	}
	if opts.MaxResults > 0 && len(events) > opts.MaxResults {
		events = events[:opts.MaxResults]
	}
	return events, nil
}

func (c *calendarClient) DeleteEvent(ctx context.Context, calendarID string, id cal.EventID, notify bool) error {
	sendUpdates := "none"
	if notify {
		sendUpdates = "all"
	}
	err := c.svc.Events.Delete(calendarID, string(id)).
		SendUpdates(sendUpdates).
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("delete calendar event %s: %w", id, err)
	}
	return nil
}

// toEvent maps an API event. An unparseable start leaves Start zero; start
// only orders output and never affects matching, which uses the creator.
func toEvent(item *calendar.Event) cal.Event {
	ev := cal.Event{ID: cal.EventID(item.Id)}
	if item.Creator != nil {
		ev.Creator = item.Creator.Email
	}
	if item.Start != nil {
		switch {
		case item.Start.DateTime != "":
			ev.Start, _ = time.Parse(time.RFC3339, item.Start.DateTime)
		case item.Start.Date != "":
			ev.Start, _ = time.Parse(time.DateOnly, item.Start.Date)
		}
	}
	return ev
}

var _ cal.Client = (*calendarClient)(nil)
