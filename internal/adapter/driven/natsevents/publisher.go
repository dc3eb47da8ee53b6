// Package natsevents publishes build lifecycle events on NATS subjects.
package natsevents

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/nats-io/nats.go"

	"github.com/ericfisherdev/classbuild/internal/domain/model"
	"github.com/ericfisherdev/classbuild/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.BuildEventPublisher = (*Publisher)(nil)

// DefaultSubject is the subject build-completed events are published on.
const DefaultSubject = "classbuild.builds.completed"

// conn is the subset of *nats.Conn the publisher needs.
type conn interface {
	PublishMsg(msg *nats.Msg) error
	FlushWithContext(ctx context.Context) error
	Close()
}

// Publisher sends BuildCompletedEvent messages to a NATS server.
type Publisher struct {
	nc      conn
	subject string
}

// Connect dials the NATS server at url and returns a Publisher for subject.
func Connect(url, subject string) (*Publisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("classbuild"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				slog.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			slog.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats %s: %w", url, err)
	}

	slog.Info("nats publisher connected", "url", url, "subject", subject)
	return newPublisher(nc, subject), nil
}

func newPublisher(nc conn, subject string) *Publisher {
	if subject == "" {
		subject = DefaultSubject
	}
	return &Publisher{nc: nc, subject: subject}
}

// PublishBuildCompleted publishes the event and waits for the server to
// acknowledge the flush or ctx to end.
func (p *Publisher) PublishBuildCompleted(ctx context.Context, event model.BuildCompletedEvent) error {
	msg, err := encode(p.subject, event)
	if err != nil {
		return err
	}

	if err := p.nc.PublishMsg(msg); err != nil {
		return fmt.Errorf("publish build %d completed: %w", event.BuildID, err)
	}
	if err := p.nc.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("flush build %d completed: %w", event.BuildID, err)
	}

	slog.Debug("published build completed event",
		"subject", p.subject,
		"build_id", event.BuildID,
		"status", event.Status,
	)
	return nil
}

// Close closes the underlying connection.
func (p *Publisher) Close() {
	p.nc.Close()
}

func encode(subject string, event model.BuildCompletedEvent) (*nats.Msg, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("marshal build completed event: %w", err)
	}

	msg := nats.NewMsg(subject)
	msg.Data = data
	msg.Header.Set("Content-Type", "application/json")
	msg.Header.Set("Classbuild-Build-Status", string(event.Status))
	msg.Header.Set("Classbuild-Project-Id", strconv.FormatInt(event.ProjectID, 10))
	return msg, nil
}
