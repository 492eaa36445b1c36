// Package events publishes game lifecycle events for other services.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// Kind names a lifecycle transition.
type Kind string

const (
	GameCreated   Kind = "created"
	GameCompleted Kind = "completed"
)

// Event describes one lifecycle transition of a session.
type Event struct {
	Kind       Kind      `json:"kind"`
	Channel    string    `json:"channel"`
	GameID     string    `json:"gameId"`
	GameTypeID string    `json:"gameTypeId"`
	UserIDs    []string  `json:"userIds"`
	Winner     string    `json:"winner,omitempty"`
	At         time.Time `json:"at"`
}

// Subject returns the NATS subject of e: games.<channel>.<kind>.
func (e Event) Subject() string {
	return "games." + e.Channel + "." + string(e.Kind)
}

// Publisher delivers lifecycle events. Implementations must be safe for
// concurrent use.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// Nop discards every event. It is used when no broker is configured.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }

// conn is the subset of *nats.Conn the publisher uses.
type conn interface {
	Publish(subj string, data []byte) error
	FlushWithContext(ctx context.Context) error
	Drain() error
}

// NATSPublisher publishes events as JSON on core NATS subjects.
type NATSPublisher struct {
	nc conn
}

// NewNATS connects to the NATS server at url.
func NewNATS(url string) (*NATSPublisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("arcade"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				slog.Warn("NATS disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("NATS reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	return &NATSPublisher{nc: nc}, nil
}

// Publish encodes e and waits for the server to acknowledge the flush or
// ctx to expire.
func (p *NATSPublisher) Publish(ctx context.Context, e Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := p.nc.Publish(e.Subject(), data); err != nil {
		return fmt.Errorf("publish %s: %w", e.Subject(), err)
	}
	if err := p.nc.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("flush %s: %w", e.Subject(), err)
	}
	return nil
}

// Close drains pending messages and closes the connection.
func (p *NATSPublisher) Close() error {
	if err := p.nc.Drain(); err != nil {
		return fmt.Errorf("drain nats: %w", err)
	}
	return nil
}
