package reconcile

import (
	"errors"
	"strings"

	"github.com/joshsymonds/calsweep/internal/calendar"
)

// Skipped records an input that was deliberately left out, with the reason.
type Skipped struct {
	ID     string
	Reason error
}

// EventIndex maps creator address to the events it created. Addresses keep
// the order in which they were first seen. It is read-only once built.
type EventIndex struct {
	order  []string
	byAddr map[string][]calendar.EventID
}

// Addresses returns the index keys in insertion order.
func (x *EventIndex) Addresses() []string {
	return append([]string(nil), x.order...)
}

// Events returns the events created by addr in feed order.
func (x *EventIndex) Events(addr string) []calendar.EventID {
	return append([]calendar.EventID(nil), x.byAddr[addr]...)
}

// Len returns the number of distinct creator addresses.
func (x *EventIndex) Len() int { return len(x.order) }

// EventCount returns the number of indexed events.
func (x *EventIndex) EventCount() int {
	n := 0
	for _, ids := range x.byAddr {
		n += len(ids)
	}
	return n
}

// BuildIndex groups event identifiers by normalized creator address. Events
// without a usable creator and repeats of an indexed id are returned in
// skipped instead of the index.
func BuildIndex(events []calendar.Event) (*EventIndex, []Skipped) {
	idx := &EventIndex{byAddr: map[string][]calendar.EventID{}}
	seen := make(map[calendar.EventID]struct{}, len(events))
	var skipped []Skipped
	for _, ev := range events {
		if _, dup := seen[ev.ID]; dup {
			skipped = append(skipped, Skipped{ID: string(ev.ID), Reason: ErrDuplicateEvent})
			continue
		}
		addr, err := creatorAddress(ev.Creator)
		if err != nil {
			skipped = append(skipped, Skipped{ID: string(ev.ID), Reason: err})
			continue
		}
		seen[ev.ID] = struct{}{}
		if _, ok := idx.byAddr[addr]; !ok {
			idx.order = append(idx.order, addr)
		}
		idx.byAddr[addr] = append(idx.byAddr[addr], ev.ID)
	}
	return idx, skipped
}

func creatorAddress(raw string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return "", ErrMissingCreator
	}
	addr, err := NormalizeAddress(raw)
	if err != nil {
		if errors.Is(err, ErrMalformedHeader) {
			return "", ErrMalformedCreator
		}
		return "", err
	}
	return addr, nil
}
