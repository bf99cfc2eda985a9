// Package reconcile matches calendar events against spam senders.
package reconcile

import "github.com/joshsymonds/calsweep/internal/calendar"

// DeletionSet is the ordered list of events to remove.
type DeletionSet []calendar.EventID

// Reconcile returns every event whose creator is a known spam sender. Creators
// are visited in index order and events keep their recorded order, so the
// result is deterministic for a given index and set.
func Reconcile(index *EventIndex, spam SpamAddressSet) DeletionSet {
	var out DeletionSet
	for _, addr := range index.order {
		if !spam.Contains(addr) {
			continue
		}
		out = append(out, index.byAddr[addr]...)
	}
	return out
}
