// Package eventbus mirrors classified game events onto NATS subjects.
package eventbus

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/ernie/minebridge/internal/domain"
)

// DefaultSubject prefixes every published subject
const DefaultSubject = "minebridge.events"

// Publisher sends each event to <prefix>.<kind>
type Publisher struct {
	conn   *nats.Conn
	prefix string
	log    *slog.Logger
	now    func() time.Time
}

// Connect dials url and returns a publisher for subjects under prefix
func Connect(url, prefix string, logger *slog.Logger) (*Publisher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "eventbus")
	if prefix == "" {
		prefix = DefaultSubject
	}

	conn, err := nats.Connect(url,
		nats.Name("minebridge"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("event bus disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("event bus reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to nats at %s: %w", url, err)
	}
	logger.Info("event bus connected", "url", conn.ConnectedUrl(), "subject", prefix+".>")
	return &Publisher{conn: conn, prefix: prefix, log: logger, now: time.Now}, nil
}

// Subject returns the subject ev is published on
func (p *Publisher) Subject(ev domain.GameEvent) string {
	return p.prefix + "." + ev.Kind.String()
}

// Publish sends ev. Delivery is fire-and-forget; the error only reports a
// failure to hand the message to the client library.
func (p *Publisher) Publish(_ context.Context, ev domain.GameEvent) error {
	data, err := ev.Encode(p.now())
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}
	if err := p.conn.Publish(p.Subject(ev), data); err != nil {
		return fmt.Errorf("publishing %s: %w", p.Subject(ev), err)
	}
	return nil
}

// Close flushes pending messages and disconnects
func (p *Publisher) Close() error {
	if err := p.conn.Flush(); err != nil {
		p.log.Warn("flushing event bus", "error", err)
	}
	return p.conn.Drain()
}
