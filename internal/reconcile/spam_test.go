package reconcile

import (
	"fmt"
	"math/rand"
	"sync"
	"testing"

	"github.com/nalgeon/be"

	"github.com/joshsymonds/calsweep/internal/gmail"
)

func msg(id, from string) gmail.MessageMeta {
	return gmail.MessageMeta{
		ID:      gmail.MessageID(id),
		Headers: []gmail.Header{{Name: "Subject", Value: "hi"}, {Name: "From", Value: from}},
	}
}

func TestCollectSpamAddressesDedupes(t *testing.T) {
	msgs := []gmail.MessageMeta{
		msg("m1", "Bulk Offer <spam@ads.com>"),
		msg("m2", "spam@ads.com"),
		msg("m3", "Other <other@ads.com>"),
	}
	set, skipped := CollectSpamAddresses(msgs)

	be.Equal(t, len(skipped), 0)
	be.Equal(t, set.Sorted(), []string{"other@ads.com", "spam@ads.com"})
	be.True(t, set.Len() <= len(msgs))
}

func TestCollectSpamAddressesSkipsMalformed(t *testing.T) {
	msgs := []gmail.MessageMeta{
		msg("m1", "Undisclosed recipients"),
		msg("m2", "real@ads.com"),
	}
	set, skipped := CollectSpamAddresses(msgs)

	be.Equal(t, set.Sorted(), []string{"real@ads.com"})
	be.Equal(t, len(skipped), 1)
	be.Equal(t, skipped[0].ID, "m1")
	be.Err(t, skipped[0].Reason, ErrMalformedHeader)
}

func TestCollectSpamAddressesFromIsCaseSensitive(t *testing.T) {
	lower := gmail.MessageMeta{
		ID:      "m1",
		Headers: []gmail.Header{{Name: "from", Value: "x@y.com"}},
	}
	set, skipped := CollectSpamAddresses([]gmail.MessageMeta{lower, {ID: "m2"}})

	be.Equal(t, set.Len(), 0)
	be.Equal(t, len(skipped), 2)
	be.Err(t, skipped[0].Reason, ErrMissingFrom)
	be.Err(t, skipped[1].Reason, ErrMissingFrom)
}

func TestCollectSpamAddressesOrderIndependent(t *testing.T) {
	var msgs []gmail.MessageMeta
	for i := 0; i < 40; i++ {
		msgs = append(msgs, msg(fmt.Sprintf("m%02d", i), fmt.Sprintf("Sender <s%d@ads.com>", i%7)))
	}
	want, _ := CollectSpamAddresses(msgs)

	rng := rand.New(rand.NewSource(1))
	for round := 0; round < 10; round++ {
		shuffled := append([]gmail.MessageMeta(nil), msgs...)
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
		got, _ := CollectSpamAddresses(shuffled)
		be.Equal(t, got.Sorted(), want.Sorted())
	}
}

func TestSpamCollectorConcurrentAdds(t *testing.T) {
	c := NewSpamCollector()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%10 == 0 {
				c.SkipFetch(gmail.MessageID(fmt.Sprintf("m%02d", i)), fmt.Errorf("boom"))
				return
			}
			_ = c.Add(msg(fmt.Sprintf("m%02d", i), fmt.Sprintf("s%d@ads.com", i%3)))
		}(i)
	}
	wg.Wait()

	be.Equal(t, c.Set().Sorted(), []string{"s0@ads.com", "s1@ads.com", "s2@ads.com"})
	skipped := c.Skipped()
	be.Equal(t, len(skipped), 5)
	be.Equal(t, skipped[0].ID, "m00")
	be.Err(t, skipped[0].Reason, ErrFetchFailed)
}

func TestSpamCollectorSetIsSnapshot(t *testing.T) {
	c := NewSpamCollector()
	_ = c.Add(msg("m1", "a@x.com"))
	snap := c.Set()
	_ = c.Add(msg("m2", "b@x.com"))
	be.Equal(t, snap.Len(), 1)
	be.Equal(t, c.Set().Len(), 2)
}
