// Package imapspam reads spam message headers over IMAP. It implements
// gmail.BatchGetter so a whole run needs one UID FETCH.
package imapspam

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/mail"
	"net/textproto"
	"slices"
	"strconv"
	"sync"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-sasl"
	"golang.org/x/oauth2"

	gc "github.com/joshsymonds/calsweep/internal/gmail"
)

const (
	DefaultAddress = "imap.gmail.com:993"
	DefaultMailbox = "[Gmail]/Spam"

	AuthOAuth    = "oauth"
	AuthPassword = "password"
)

// conn is the slice of *client.Client the backend uses.
type conn interface {
	Select(name string, readOnly bool) (*imap.MailboxStatus, error)
	UidSearch(criteria *imap.SearchCriteria) ([]uint32, error)
	UidFetch(seqset *imap.SeqSet, items []imap.FetchItem, ch chan *imap.Message) error
	Logout() error
}

// Options configures an IMAP connection.
type Options struct {
	Address  string
	Username string
	Mailbox  string
	Auth     string // AuthOAuth or AuthPassword
	Password string
	Tokens   oauth2.TokenSource
}

// Backend serves one mailbox over a single connection. Commands are
// serialized.
type Backend struct {
	mu       sync.Mutex
	conn     conn
	mailbox  string
	selected bool
}

// Dial connects and authenticates.
func Dial(ctx context.Context, opts Options) (*Backend, error) {
	if opts.Address == "" {
		opts.Address = DefaultAddress
	}
	if opts.Mailbox == "" {
		opts.Mailbox = DefaultMailbox
	}
	host, portStr, err := net.SplitHostPort(opts.Address)
	if err != nil {
		return nil, fmt.Errorf("imap: address %q: %w", opts.Address, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c, err := client.DialTLS(opts.Address, &tls.Config{ServerName: host})
	if err != nil {
		return nil, fmt.Errorf("imap: dial %s: %w", opts.Address, err)
	}
	if err := authenticate(c, opts, host, portStr); err != nil {
		_ = c.Logout()
		return nil, err
	}
	return newBackend(c, opts.Mailbox), nil
}

func authenticate(c *client.Client, opts Options, host, portStr string) error {
	switch opts.Auth {
	case AuthPassword:
		if err := c.Login(opts.Username, opts.Password); err != nil {
			return fmt.Errorf("imap: login: %w", err)
		}
	case AuthOAuth, "":
		if opts.Tokens == nil {
			return errors.New("imap: oauth requires a token source")
		}
		tok, err := opts.Tokens.Token()
		if err != nil {
			return fmt.Errorf("imap: token: %w", err)
		}
		port, _ := strconv.Atoi(portStr)
		auth := sasl.NewOAuthBearerClient(&sasl.OAuthBearerOptions{
			Username: opts.Username,
			Token:    tok.AccessToken,
			Host:     host,
			Port:     port,
		})
		if err := c.Authenticate(auth); err != nil {
			return fmt.Errorf("imap: authenticate: %w", err)
		}
	default:
		return fmt.Errorf("imap: unknown auth %q", opts.Auth)
	}
	return nil
}

func newBackend(c conn, mailbox string) *Backend {
	return &Backend{conn: c, mailbox: mailbox}
}

// Close logs out.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.conn.Logout()
}

func (b *Backend) selectMailbox() error {
	if b.selected {
		return nil
	}
	if _, err := b.conn.Select(b.mailbox, true); err != nil {
		return fmt.Errorf("imap: select %s: %w", b.mailbox, err)
	}
	b.selected = true
	return nil
}

// ListMessages returns the newest UIDs in the mailbox, newest first. The
// label option is ignored: the mailbox is the label. Trash is a separate
// mailbox and is never included.
func (b *Backend) ListMessages(ctx context.Context, opts gc.ListOptions) ([]gc.MessageID, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.selectMailbox(); err != nil {
		return nil, err
	}
	uids, err := b.conn.UidSearch(imap.NewSearchCriteria())
	if err != nil {
		return nil, fmt.Errorf("imap: search %s: %w", b.mailbox, err)
	}
	slices.Sort(uids)
	if opts.MaxResults > 0 && len(uids) > opts.MaxResults {
		uids = uids[len(uids)-opts.MaxResults:]
	}
	ids := make([]gc.MessageID, 0, len(uids))
	for i := len(uids) - 1; i >= 0; i-- {
		ids = append(ids, gc.MessageID(strconv.FormatUint(uint64(uids[i]), 10)))
	}
	return ids, nil
}

func (b *Backend) GetMetadata(ctx context.Context, id gc.MessageID, headers []string) (gc.MessageMeta, error) {
	metas, err := b.GetMetadataBatch(ctx, []gc.MessageID{id}, headers)
	if err != nil {
		return gc.MessageMeta{}, err
	}
	if len(metas) == 0 {
		return gc.MessageMeta{}, fmt.Errorf("imap: message %s not found", id)
	}
	return metas[0], nil
}

// GetMetadataBatch fetches the named header fields of every id in one
// UID FETCH. Messages the server no longer has are omitted.
func (b *Backend) GetMetadataBatch(ctx context.Context, ids []gc.MessageID, headers []string) ([]gc.MessageMeta, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	seqset := new(imap.SeqSet)
	order := make(map[uint32]int, len(ids))
	for i, id := range ids {
		uid, err := strconv.ParseUint(string(id), 10, 32)
		if err != nil {
			return nil, fmt.Errorf("imap: message id %q is not a uid", id)
		}
		seqset.AddNum(uint32(uid))
		order[uint32(uid)] = i
	}
	section := &imap.BodySectionName{
		BodyPartName: imap.BodyPartName{Specifier: imap.HeaderSpecifier, Fields: headers},
		Peek:         true,
	}
	items := []imap.FetchItem{imap.FetchUid, section.FetchItem()}

	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.selectMailbox(); err != nil {
		return nil, err
	}
	// go-imap v1 commands take no context: cancellation is observed before
	// the fetch and once it completes.
	messages := make(chan *imap.Message, len(ids))
	done := make(chan error, 1)
	go func() {
		done <- b.conn.UidFetch(seqset, items, messages)
	}()

	found := make([]*gc.MessageMeta, len(ids))
	for msg := range messages {
		i, ok := order[msg.Uid]
		if !ok {
			continue
		}
		meta := gc.MessageMeta{ID: ids[i]}
		if literal := msg.GetBody(section); literal != nil {
			meta.Headers = parseHeaders(literal, headers)
		}
		found[i] = &meta
	}
	if err := <-done; err != nil {
		return nil, fmt.Errorf("imap: fetch headers: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	metas := make([]gc.MessageMeta, 0, len(ids))
	for _, m := range found {
		if m != nil {
			metas = append(metas, *m)
		}
	}
	return metas, nil
}

// parseHeaders returns the requested fields in request order. A header
// block that does not parse yields no headers.
func parseHeaders(r imap.Literal, names []string) []gc.Header {
	msg, err := mail.ReadMessage(r)
	if err != nil {
		return nil
	}
	var out []gc.Header
	for _, name := range names {
		key := textproto.CanonicalMIMEHeaderKey(name)
		for _, v := range msg.Header[key] {
			out = append(out, gc.Header{Name: key, Value: v})
		}
	}
	return out
}

var (
	_ gc.Client      = (*Backend)(nil)
	_ gc.BatchGetter = (*Backend)(nil)
)
