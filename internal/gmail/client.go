package gmail

import "context"

// Client is the narrow inbox surface required by calsweep.
type Client interface {
	ListMessages(ctx context.Context, opts ListOptions) ([]MessageID, error)
	GetMetadata(ctx context.Context, id MessageID, headers []string) (MessageMeta, error)
}

// BatchGetter is implemented by clients that can fetch metadata for many
// messages in a single round-trip.
type BatchGetter interface {
	GetMetadataBatch(ctx context.Context, ids []MessageID, headers []string) ([]MessageMeta, error)
}
