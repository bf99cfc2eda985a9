package caldav

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/emersion/go-ical"
	dav "github.com/emersion/go-webdav/caldav"
	"github.com/nalgeon/be"

	cal "github.com/joshsymonds/calsweep/internal/calendar"
)

type fakeDAV struct {
	objects []dav.CalendarObject
	err     error

	queriedPath string
	query       *dav.CalendarQuery
	removed     []string
	removeErr   error
}

func (f *fakeDAV) QueryCalendar(_ context.Context, path string, q *dav.CalendarQuery) ([]dav.CalendarObject, error) {
	f.queriedPath = path
	f.query = q
	return f.objects, f.err
}

func (f *fakeDAV) RemoveAll(_ context.Context, name string) error {
	if f.removeErr != nil {
		return f.removeErr
	}
	f.removed = append(f.removed, name)
	return nil
}

func object(path, organizer string, start time.Time) dav.CalendarObject {
	event := ical.NewEvent()
	event.Props.SetText(ical.PropUID, path)
	event.Props.SetDateTime(ical.PropDateTimeStart, start)
	if organizer != "" {
		prop := ical.NewProp(ical.PropOrganizer)
		prop.Value = organizer
		event.Props.Set(prop)
	}
	data := ical.NewCalendar()
	data.Children = append(data.Children, event.Component)
	return dav.CalendarObject{Path: path, Data: data}
}

func TestListEventsSortsAndTruncates(t *testing.T) {
	base := time.Date(2024, time.March, 10, 9, 0, 0, 0, time.UTC)
	fake := &fakeDAV{objects: []dav.CalendarObject{
		object("/cal/c.ics", "mailto:c@x.com", base.Add(2*time.Hour)),
		object("/cal/a.ics", "MAILTO:a@x.com", base),
		object("/cal/b.ics", "", base.Add(time.Hour)),
		{Path: "/cal/empty.ics"},
	}}
	b := newBackend(fake, nil)

	events, err := b.ListEvents(context.Background(), cal.ListOptions{
		CalendarID: "/cal/",
		TimeMin:    base.Add(-time.Hour),
		TimeMax:    base.Add(24 * time.Hour),
		MaxResults: 2,
	})
	be.Err(t, err, nil)
	be.Equal(t, events, []cal.Event{
		{ID: "/cal/a.ics", Creator: "a@x.com", Start: base},
		{ID: "/cal/b.ics", Creator: "", Start: base.Add(time.Hour)},
	})

	be.Equal(t, fake.queriedPath, "/cal/")
	filter := fake.query.CompFilter.Comps[0]
	be.Equal(t, filter.Name, ical.CompEvent)
	be.True(t, filter.Start.Equal(base.Add(-time.Hour)))
	be.True(t, filter.End.Equal(base.Add(24*time.Hour)))
}

func TestListEventsOpenHorizon(t *testing.T) {
	fake := &fakeDAV{}
	b := newBackend(fake, nil)
	from := time.Date(2024, time.March, 10, 0, 0, 0, 0, time.UTC)

	_, err := b.ListEvents(context.Background(), cal.ListOptions{CalendarID: "/cal/", TimeMin: from})
	be.Err(t, err, nil)
	be.True(t, fake.query.CompFilter.Comps[0].End.Equal(from.Add(openEnd)))
}

func TestListEventsError(t *testing.T) {
	b := newBackend(&fakeDAV{err: errors.New("503")}, nil)
	_, err := b.ListEvents(context.Background(), cal.ListOptions{CalendarID: "/cal/"})
	be.Err(t, err, "caldav: query /cal/")
}

func TestDeleteEvent(t *testing.T) {
	fake := &fakeDAV{}
	b := newBackend(fake, nil)

	be.Err(t, b.DeleteEvent(context.Background(), "/cal/", "/cal/a.ics", true), nil)
	be.Err(t, b.DeleteEvent(context.Background(), "/cal/", "/cal/b.ics", false), nil)
	be.Equal(t, fake.removed, []string{"/cal/a.ics", "/cal/b.ics"})

	fake.removeErr = errors.New("gone")
	err := b.DeleteEvent(context.Background(), "/cal/", "/cal/c.ics", false)
	be.Err(t, err, "caldav: delete /cal/c.ics")
}

func TestNewRequiresURL(t *testing.T) {
	_, err := New(Options{})
	be.Err(t, err, "url is required")
}
