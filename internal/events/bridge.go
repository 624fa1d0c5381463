package events

import "github.com/reservesniper/core/internal/logger"

var subjectByKind = map[Kind]string{
	KindWindowStart:      SubjectWindowStart,
	KindSlotsDiscovered:  SubjectSlotsDiscovered,
	KindScanComplete:     SubjectScanComplete,
	KindBookingSuccess:   SubjectBookingSuccess,
	KindBookingFailed:    SubjectBookingFailed,
	KindProxyRateLimited: SubjectProxyRateLimited,
	KindBlackoutEnter:    SubjectBlackoutEnter,
	KindBlackoutExit:     SubjectBlackoutExit,
}

// Bridge subscribes to a Hub and republishes every Envelope onto NATS, so
// external collaborators (the dashboard, notification delivery) observe
// the same event stream the in-process observers do. Run it in its own
// goroutine; it exits when Stop unsubscribes it from the hub.
type Bridge struct {
	hub       *Hub
	publisher *Publisher
	log       logger.Logger
	unsubID   int
}

// NewBridge constructs a Hub-to-NATS bridge.
func NewBridge(hub *Hub, publisher *Publisher, log logger.Logger) *Bridge {
	return &Bridge{hub: hub, publisher: publisher, log: log}
}

// Run drains the hub's event stream until ch is closed (i.e. until
// Stop unsubscribes it). Intended to be launched with `go bridge.Run()`.
func (b *Bridge) Run() {
	id, ch := b.hub.Subscribe(64)
	b.unsubID = id
	for env := range ch {
		subject, ok := subjectByKind[env.Kind]
		if !ok {
			continue
		}
		if err := b.publisher.Publish(subject, env.Payload); err != nil {
			b.log.Error("failed to bridge event to NATS", "subject", subject, "error", err)
		}
	}
}

// Stop unsubscribes the bridge from its hub, causing Run's loop to exit.
func (b *Bridge) Stop() {
	b.hub.Unsubscribe(b.unsubID)
}
