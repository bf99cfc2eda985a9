package imapspam

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/emersion/go-imap"
	"github.com/nalgeon/be"

	gc "github.com/joshsymonds/calsweep/internal/gmail"
)

type fakeConn struct {
	uids     []uint32
	headers  map[uint32]string
	fetchErr error

	selects    []string
	readOnly   bool
	fetched    []uint32
	fetchCalls int
	loggedOut  bool
	onFetch    func()
}

func (f *fakeConn) Select(name string, readOnly bool) (*imap.MailboxStatus, error) {
	f.selects = append(f.selects, name)
	f.readOnly = readOnly
	return &imap.MailboxStatus{Name: name}, nil
}

func (f *fakeConn) UidSearch(*imap.SearchCriteria) ([]uint32, error) {
	return f.uids, nil
}

func (f *fakeConn) UidFetch(seqset *imap.SeqSet, items []imap.FetchItem, ch chan *imap.Message) error {
	defer close(ch)
	f.fetchCalls++
	if f.onFetch != nil {
		f.onFetch()
	}
	if f.fetchErr != nil {
		return f.fetchErr
	}
	section, err := imap.ParseBodySectionName(items[1])
	if err != nil {
		return err
	}
	section.Peek = false
	for _, uid := range f.uids {
		if !seqset.Contains(uid) {
			continue
		}
		f.fetched = append(f.fetched, uid)
		msg := imap.NewMessage(uid, items)
		msg.Uid = uid
		if raw, ok := f.headers[uid]; ok {
			msg.Body[section] = bytes.NewBufferString(raw)
		}
		ch <- msg
	}
	return nil
}

func (f *fakeConn) Logout() error {
	f.loggedOut = true
	return nil
}

func TestListMessagesNewestFirst(t *testing.T) {
	fake := &fakeConn{uids: []uint32{7, 3, 12, 9}}
	b := newBackend(fake, DefaultMailbox)

	ids, err := b.ListMessages(context.Background(), gc.ListOptions{MaxResults: 3})
	be.Err(t, err, nil)
	be.Equal(t, ids, []gc.MessageID{"12", "9", "7"})
	be.Equal(t, fake.selects, []string{DefaultMailbox})
	be.True(t, fake.readOnly)

	_, err = b.ListMessages(context.Background(), gc.ListOptions{})
	be.Err(t, err, nil)
	be.Equal(t, len(fake.selects), 1)
}

func TestGetMetadataBatchSingleFetch(t *testing.T) {
	fake := &fakeConn{
		uids: []uint32{1, 2, 3},
		headers: map[uint32]string{
			1: "From: Bulk Offer <spam@ads.com>\r\n\r\n",
			2: "Subject: no sender\r\n\r\n",
			3: "from: x@y.com\r\n\r\n",
		},
	}
	b := newBackend(fake, DefaultMailbox)

	metas, err := b.GetMetadataBatch(context.Background(), []gc.MessageID{"3", "1", "2"}, []string{gc.HeaderFrom})
	be.Err(t, err, nil)
	be.Equal(t, fake.fetchCalls, 1)
	be.Equal(t, metas, []gc.MessageMeta{
		{ID: "3", Headers: []gc.Header{{Name: "From", Value: "x@y.com"}}},
		{ID: "1", Headers: []gc.Header{{Name: "From", Value: "Bulk Offer <spam@ads.com>"}}},
		{ID: "2"},
	})
}

func TestGetMetadataBatchOmitsVanished(t *testing.T) {
	fake := &fakeConn{uids: []uint32{1}, headers: map[uint32]string{1: "From: a@b.com\r\n\r\n"}}
	b := newBackend(fake, DefaultMailbox)

	metas, err := b.GetMetadataBatch(context.Background(), []gc.MessageID{"1", "99"}, []string{gc.HeaderFrom})
	be.Err(t, err, nil)
	be.Equal(t, len(metas), 1)
	be.Equal(t, metas[0].ID, gc.MessageID("1"))

	_, err = b.GetMetadata(context.Background(), "99", []string{gc.HeaderFrom})
	be.Err(t, err, "not found")
}

func TestGetMetadataBatchErrors(t *testing.T) {
	b := newBackend(&fakeConn{}, DefaultMailbox)
	_, err := b.GetMetadataBatch(context.Background(), []gc.MessageID{"abc"}, []string{gc.HeaderFrom})
	be.Err(t, err, "not a uid")

	fake := &fakeConn{uids: []uint32{1}, fetchErr: errors.New("connection reset")}
	b = newBackend(fake, DefaultMailbox)
	_, err = b.GetMetadataBatch(context.Background(), []gc.MessageID{"1"}, []string{gc.HeaderFrom})
	be.Err(t, err, "imap: fetch headers")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = b.GetMetadataBatch(ctx, []gc.MessageID{"1"}, []string{gc.HeaderFrom})
	be.Err(t, err, context.Canceled)
}

func TestGetMetadataBatchCanceledDuringFetch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fake := &fakeConn{
		uids:    []uint32{1},
		headers: map[uint32]string{1: "From: a@b.com\r\n\r\n"},
		onFetch: cancel,
	}
	b := newBackend(fake, DefaultMailbox)

	_, err := b.GetMetadataBatch(ctx, []gc.MessageID{"1"}, []string{gc.HeaderFrom})
	be.Err(t, err, context.Canceled)
	be.Equal(t, fake.fetchCalls, 1)
}

func TestClose(t *testing.T) {
	fake := &fakeConn{}
	b := newBackend(fake, DefaultMailbox)
	be.Err(t, b.Close(), nil)
	be.True(t, fake.loggedOut)
}
