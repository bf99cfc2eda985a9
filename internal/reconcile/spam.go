package reconcile

import (
	"fmt"
	"sort"
	"sync"

	"github.com/joshsymonds/calsweep/internal/gmail"
)

// SpamAddressSet is an immutable set of sender addresses.
type SpamAddressSet struct {
	m map[string]struct{}
}

// NewSpamAddressSet builds a set from the given addresses.
func NewSpamAddressSet(addrs ...string) SpamAddressSet {
	m := make(map[string]struct{}, len(addrs))
	for _, a := range addrs {
		m[a] = struct{}{}
	}
	return SpamAddressSet{m: m}
}

// Contains reports whether addr is in the set. Matching is exact.
func (s SpamAddressSet) Contains(addr string) bool {
	_, ok := s.m[addr]
	return ok
}

// Len returns the number of distinct addresses.
func (s SpamAddressSet) Len() int { return len(s.m) }

// Sorted returns the addresses in lexical order.
func (s SpamAddressSet) Sorted() []string {
	out := make([]string, 0, len(s.m))
	for a := range s.m {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

// SpamCollector accumulates sender addresses from messages that may complete
// in any order. It is safe for concurrent use; Set freezes the current state.
type SpamCollector struct {
	mu      sync.Mutex
	addrs   map[string]struct{}
	skipped []Skipped
}

// NewSpamCollector returns an empty collector.
func NewSpamCollector() *SpamCollector {
	return &SpamCollector{addrs: map[string]struct{}{}}
}

// Add extracts the sender of msg. A message without a usable From header is
// recorded as skipped and the error is returned for logging.
func (c *SpamCollector) Add(msg gmail.MessageMeta) error {
	raw, ok := msg.Header(gmail.HeaderFrom)
	if !ok {
		c.Skip(msg.ID, ErrMissingFrom)
		return ErrMissingFrom
	}
	addr, err := NormalizeAddress(raw)
	if err != nil {
		c.Skip(msg.ID, err)
		return err
	}
	c.mu.Lock()
	c.addrs[addr] = struct{}{}
	c.mu.Unlock()
	return nil
}

// Skip records a message that contributed nothing.
func (c *SpamCollector) Skip(id gmail.MessageID, reason error) {
	c.mu.Lock()
	c.skipped = append(c.skipped, Skipped{ID: string(id), Reason: reason})
	c.mu.Unlock()
}

// SkipFetch records a message whose metadata fetch failed.
func (c *SpamCollector) SkipFetch(id gmail.MessageID, err error) {
	c.Skip(id, fmt.Errorf("%w: %w", ErrFetchFailed, err))
}

// Set returns a snapshot of the collected addresses.
func (c *SpamCollector) Set() SpamAddressSet {
	c.mu.Lock()
	defer c.mu.Unlock()
	m := make(map[string]struct{}, len(c.addrs))
	for a := range c.addrs {
		m[a] = struct{}{}
	}
	return SpamAddressSet{m: m}
}

// Skipped returns the messages skipped so far, ordered by id so the result
// does not depend on completion order.
func (c *SpamCollector) Skipped() []Skipped {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := append([]Skipped(nil), c.skipped...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// CollectSpamAddresses extracts the deduplicated sender set from msgs.
func CollectSpamAddresses(msgs []gmail.MessageMeta) (SpamAddressSet, []Skipped) {
	c := NewSpamCollector()
	for _, m := range msgs {
		_ = c.Add(m)
	}
	return c.Set(), c.Skipped()
}
