package reconcile

import (
	"errors"
	"fmt"
	"regexp"
)

var (
	// ErrMalformedHeader means no address-like substring was found in a From value.
	ErrMalformedHeader = errors.New("malformed header")
	// ErrMissingFrom means a message carried no header named exactly "From".
	ErrMissingFrom = errors.New("missing From header")
	// ErrMissingCreator means a calendar event has no creator address.
	ErrMissingCreator = errors.New("missing creator")
	// ErrMalformedCreator means a creator value holds nothing address-like.
	ErrMalformedCreator = errors.New("malformed creator")
	// ErrFetchFailed marks a message whose metadata could not be fetched.
	ErrFetchFailed = errors.New("fetch failed")
	// ErrDuplicateEvent marks a repeat of an event id already indexed.
	ErrDuplicateEvent = errors.New("duplicate event")
)

// addressRe matches local@domain runs. Angle brackets are excluded on the
// outer edges so "Name <a@b>" yields "a@b".
var addressRe = regexp.MustCompile(`[^@<\s]+@[^@\s>]+`)

// NormalizeAddress returns the last address-like substring of a raw header
// value. Display names that themselves look like addresses come first in the
// header, so the last match is the real mailbox.
func NormalizeAddress(raw string) (string, error) {
	matches := addressRe.FindAllString(raw, -1)
	if len(matches) == 0 {
		return "", fmt.Errorf("%w: no address in %q", ErrMalformedHeader, raw)
	}
	return matches[len(matches)-1], nil
}
