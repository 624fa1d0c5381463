// Package events publishes the system's outbound events (spec §6) both
// as typed in-process notifications (an observer hub, per spec §9's
// "implement as typed channels/queues or an observer list, not as a
// pseudo-callback chain") and, fire-and-forget, onto NATS for external
// collaborators such as the dashboard and notification delivery.
package events

import (
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/reservesniper/core/internal/logger"
)

// Subject names for the outbound event kinds (spec §6, §4.G).
const (
	SubjectWindowStart      = "sniper.window.start"
	SubjectSlotsDiscovered  = "sniper.slots.discovered"
	SubjectScanComplete     = "sniper.scan.complete"
	SubjectBookingSuccess   = "sniper.booking.success"
	SubjectBookingFailed    = "sniper.booking.failed"
	SubjectProxyRateLimited = "sniper.proxy.rate_limited"
	SubjectBlackoutEnter    = "sniper.blackout.enter"
	SubjectBlackoutExit     = "sniper.blackout.exit"
)

// Publisher fans an event out to NATS. A Publisher with a nil conn is a
// NullPublisher: it logs and returns nil, mirroring the teacher's
// dev-mode fallback for an unreachable broker.
type Publisher struct {
	conn *nats.Conn
	log  logger.Logger
}

// Connect dials NATS at url.
func Connect(url string) (*nats.Conn, error) {
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return conn, nil
}

// NewPublisher wraps an established NATS connection.
func NewPublisher(conn *nats.Conn, log logger.Logger) *Publisher {
	return &Publisher{conn: conn, log: log}
}

// NewNullPublisher builds a Publisher that discards everything, used when
// NATS is unreachable at startup (dry-run/local dev).
func NewNullPublisher(log logger.Logger) *Publisher {
	return &Publisher{conn: nil, log: log}
}

// Publish marshals data as JSON and publishes it to subject.
func (p *Publisher) Publish(subject string, data interface{}) error {
	if p.conn == nil {
		p.log.Debug("event publish skipped: no NATS connection", "subject", subject)
		return nil
	}
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal event %s: %w", subject, err)
	}
	if err := p.conn.Publish(subject, payload); err != nil {
		return fmt.Errorf("failed to publish event %s: %w", subject, err)
	}
	return nil
}
