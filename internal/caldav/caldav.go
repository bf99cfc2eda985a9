// Package caldav exposes a CalDAV calendar collection as a calendar.Client.
package caldav

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-webdav"
	dav "github.com/emersion/go-webdav/caldav"

	cal "github.com/joshsymonds/calsweep/internal/calendar"
)

// openEnd bounds queries that have no horizon.
const openEnd = 10 * 365 * 24 * time.Hour

// davClient is the slice of *caldav.Client the backend uses.
type davClient interface {
	QueryCalendar(ctx context.Context, calendar string, query *dav.CalendarQuery) ([]dav.CalendarObject, error)
	RemoveAll(ctx context.Context, name string) error
}

// Backend lists and deletes events in CalDAV collections. Calendar ids are
// collection paths; event ids are object paths.
type Backend struct {
	client     davClient
	logger     *slog.Logger
	notifyOnce sync.Once
}

// Options configures a connection to a CalDAV server.
type Options struct {
	URL        string
	Username   string
	Password   string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// New connects to the server at opts.URL. Basic auth is used when a
// username is given.
func New(opts Options) (*Backend, error) {
	if opts.URL == "" {
		return nil, fmt.Errorf("caldav: url is required")
	}
	var hc webdav.HTTPClient = http.DefaultClient
	if opts.HTTPClient != nil {
		hc = opts.HTTPClient
	}
	if opts.Username != "" {
		hc = webdav.HTTPClientWithBasicAuth(hc, opts.Username, opts.Password)
	}
	c, err := dav.NewClient(hc, opts.URL)
	if err != nil {
		return nil, fmt.Errorf("caldav: create client: %w", err)
	}
	return newBackend(c, opts.Logger), nil
}

func newBackend(c davClient, logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Backend{client: c, logger: logger}
}

func (b *Backend) ListEvents(ctx context.Context, opts cal.ListOptions) ([]cal.Event, error) {
	end := opts.TimeMax
	if end.IsZero() {
		end = opts.TimeMin.Add(openEnd)
	}
	query := &dav.CalendarQuery{
		CompRequest: dav.CalendarCompRequest{
			Name:  ical.CompCalendar,
			Comps: []dav.CalendarCompRequest{{Name: ical.CompEvent, AllProps: true}},
		},
		CompFilter: dav.CompFilter{
			Name: ical.CompCalendar,
			Comps: []dav.CompFilter{{
				Name:  ical.CompEvent,
				Start: opts.TimeMin,
				End:   end,
			}},
		},
	}
	objects, err := b.client.QueryCalendar(ctx, opts.CalendarID, query)
	if err != nil {
		return nil, fmt.Errorf("caldav: query %s: %w", opts.CalendarID, err)
	}

	events := make([]cal.Event, 0, len(objects))
	for _, obj := range objects {
		ev, ok := toEvent(obj)
		if !ok {
			continue
		}
		events = append(events, ev)
	}
	sort.SliceStable(events, func(i, j int) bool { return events[i].Start.Before(events[j].Start) })
	if opts.MaxResults > 0 && len(events) > opts.MaxResults {
		events = events[:opts.MaxResults]
	}
	return events, nil
}

// DeleteEvent removes the calendar object. CalDAV has no attendee
// notification switch, so notify only affects logging.
func (b *Backend) DeleteEvent(ctx context.Context, _ string, id cal.EventID, notify bool) error {
	if notify {
		b.notifyOnce.Do(func() {
			b.logger.DebugContext(ctx, "caldav deletes never send attendee updates")
		})
	}
	if err := b.client.RemoveAll(ctx, string(id)); err != nil {
		return fmt.Errorf("caldav: delete %s: %w", id, err)
	}
	return nil
}

// toEvent reads the first VEVENT of an object. Overrides of a recurring
// series live in the same object and share its path.
func toEvent(obj dav.CalendarObject) (cal.Event, bool) {
	if obj.Data == nil {
		return cal.Event{}, false
	}
	for _, comp := range obj.Data.Children {
		if comp.Name != ical.CompEvent {
			continue
		}
		ev := cal.Event{ID: cal.EventID(obj.Path), Creator: organizer(comp.Props)}
		if start, err := comp.Props.DateTime(ical.PropDateTimeStart, time.UTC); err == nil {
			ev.Start = start
		}
		return ev, true
	}
	return cal.Event{}, false
}

func organizer(props ical.Props) string {
	prop := props.Get(ical.PropOrganizer)
	if prop == nil {
		return ""
	}
	v := strings.TrimSpace(prop.Value)
	if len(v) >= len("mailto:") && strings.EqualFold(v[:len("mailto:")], "mailto:") {
		v = v[len("mailto:"):]
	}
	return v
}

var _ cal.Client = (*Backend)(nil)
