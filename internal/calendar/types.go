// internal/calendar/types.go
package calendar

import "time"

type EventID string

// Event is the subset of a calendar entry the sweep cares about.
type Event struct {
	ID      EventID
	Creator string // raw creator/organizer address, may be empty
	Start   time.Time
}

type ListOptions struct {
	CalendarID string
	TimeMin    time.Time
	TimeMax    time.Time // zero means unbounded where the backend allows it
	MaxResults int
	OrderBy    string // "startTime", "updated" or empty
}

// DeleteResult is the outcome of one delete inside a batch.
type DeleteResult struct {
	ID  EventID
	Err error
}

const PrimaryCalendar = "primary"
