package calendar

import "context"

// Client is the narrow calendar surface required by calsweep.
type Client interface {
	ListEvents(ctx context.Context, opts ListOptions) ([]Event, error)
	DeleteEvent(ctx context.Context, calendarID string, id EventID, notify bool) error
}

// BatchDeleter is implemented by clients that can submit many deletes in one
// round-trip. Results must contain exactly one entry per requested id.
type BatchDeleter interface {
	DeleteEvents(ctx context.Context, calendarID string, ids []EventID, notify bool) []DeleteResult
}
