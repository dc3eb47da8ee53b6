package github

import (
	"fmt"

	gh "github.com/google/go-github/v82/github"

	"github.com/ericfisherdev/classbuild/internal/domain/model"
	"github.com/ericfisherdev/classbuild/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.WebhookDecoder = (*WebhookDecoder)(nil)

// WebhookDecoder authenticates and decodes GitHub push webhook deliveries.
type WebhookDecoder struct {
	secret []byte
}

// NewWebhookDecoder creates a decoder that verifies deliveries signed with secret.
func NewWebhookDecoder(secret string) *WebhookDecoder {
	return &WebhookDecoder{secret: []byte(secret)}
}

// Verify checks an X-Hub-Signature-256 ("sha256=...") or X-Hub-Signature
// ("sha1=...") value against payload. An empty secret or signature never
// verifies.
func (d *WebhookDecoder) Verify(payload []byte, signature string) bool {
	if len(d.secret) == 0 || signature == "" {
		return false
	}
	return gh.ValidateSignature(signature, payload, d.secret) == nil
}

// DecodePush parses a push event payload. The push's CreatedAt is left zero
// for the caller to stamp with the time of receipt.
func (d *WebhookDecoder) DecodePush(payload []byte) (model.PushEvent, error) {
	parsed, err := gh.ParseWebHook("push", payload)
	if err != nil {
		return model.PushEvent{}, fmt.Errorf("parse push payload: %w", err)
	}

	push, ok := parsed.(*gh.PushEvent)
	if !ok {
		return model.PushEvent{}, fmt.Errorf("unexpected payload type %T", parsed)
	}

	repo := push.GetRepo()
	owner := repo.GetOwner().GetLogin()
	if owner == "" {
		owner = repo.GetOwner().GetName()
	}

	event := model.PushEvent{
		Ref:           push.GetRef(),
		DefaultBranch: repo.GetDefaultBranch(),
		RepoOwner:     owner,
		RepoName:      repo.GetName(),
		After:         push.GetAfter(),
	}

	for _, hc := range push.Commits {
		event.Commits = append(event.Commits, model.PushedCommit{
			Sha:       hc.GetID(),
			Message:   hc.GetMessage(),
			Timestamp: hc.GetTimestamp().UTC(),
		})
	}

	return event, nil
}
