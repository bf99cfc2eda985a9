// internal/runtime/googleapi.go - adapts *gmail.Service to our small interface
package runtime

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	gc "github.com/joshsymonds/calsweep/internal/gmail"
)

const (
	gmailUser        = "me"
	gmailMaxPageSize = 500
)

type googleClient struct{ svc *gmail.Service }

func NewGoogleAPIClient(svc *gmail.Service) *googleClient { return &googleClient{svc} }

// NewGmailClient builds the Gmail capability from an authorized token source.
func NewGmailClient(ctx context.Context, ts oauth2.TokenSource, opts ...option.ClientOption) (gc.Client, error) {
	opts = append([]option.ClientOption{option.WithTokenSource(ts)}, opts...)
	svc, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create gmail service: %w", err)
	}
	return NewGoogleAPIClient(svc), nil
}

func (g *googleClient) ListMessages(ctx context.Context, opts gc.ListOptions) ([]gc.MessageID, error) {
	var (
		ids   []gc.MessageID
		token string
	)
	for {
		call := g.svc.Users.Messages.List(gmailUser).IncludeSpamTrash(opts.IncludeTrash)
		if opts.Label != "" {
			call = call.LabelIds(opts.Label)
		}
		if opts.MaxResults > 0 {
			call = call.MaxResults(int64(min(opts.MaxResults-len(ids), gmailMaxPageSize)))
		}
		if token != "" {
			call = call.PageToken(token)
		}
		res, err := call.Context(ctx).Do()
		if err != nil {
			return nil, fmt.Errorf("list gmail messages: %w", err)
		}
		for _, m := range res.Messages {
			ids = append(ids, gc.MessageID(m.Id))
		}
		if res.NextPageToken == "" || (opts.MaxResults > 0 && len(ids) >= opts.MaxResults) {
			break
		}
		token = res.NextPageToken
	}
	if opts.MaxResults > 0 && len(ids) > opts.MaxResults {
		ids = ids[:opts.MaxResults]
	}
	return ids, nil
}

func (g *googleClient) GetMetadata(ctx context.Context, id gc.MessageID, headers []string) (gc.MessageMeta, error) {
	msg, err := g.svc.Users.Messages.Get(gmailUser, string(id)).
		Format("metadata").
		MetadataHeaders(headers...).
		Context(ctx).
		Do()
	if err != nil {
		return gc.MessageMeta{}, fmt.Errorf("get gmail message %s: %w", id, err)
	}
	meta := gc.MessageMeta{ID: id}
	if msg.Payload != nil {
		for _, hd := range msg.Payload.Headers {
			meta.Headers = append(meta.Headers, gc.Header{Name: hd.Name, Value: hd.Value})
		}
	}
	return meta, nil
}

var _ gc.Client = (*googleClient)(nil)
