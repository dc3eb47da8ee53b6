package driven

import (
	"context"

	"github.com/ericfisherdev/classbuild/internal/domain/model"
)

// PushHistorySource defines the driven port for reading a repository's
// recent push events from the source host.
type PushHistorySource interface {
	// FetchPushEvents returns push events for owner/repo, oldest first. Each
	// event's commits are ordered as in the repository's history, with
	// synthetic timestamps that preserve that order.
	FetchPushEvents(ctx context.Context, owner, repo string) ([]model.PushEvent, error)
}

// WebhookDecoder defines the driven port for authenticating and decoding
// webhook deliveries.
type WebhookDecoder interface {
	// Verify reports whether signature is a valid signature of payload.
	Verify(payload []byte, signature string) bool
	DecodePush(payload []byte) (model.PushEvent, error)
}
