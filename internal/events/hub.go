package events

import (
	"sync"
	"time"
)

// Kind identifies one of the eight outbound event kinds: the six of spec
// §6 plus the Passive Monitor's blackout enter/exit transitions (§4.G).
type Kind string

const (
	KindWindowStart      Kind = "window_start"
	KindSlotsDiscovered  Kind = "slots_discovered"
	KindScanComplete     Kind = "scan_complete"
	KindBookingSuccess   Kind = "booking_success"
	KindBookingFailed    Kind = "booking_failed"
	KindProxyRateLimited Kind = "proxy_rate_limited"
	KindBlackoutEnter    Kind = "blackout_enter"
	KindBlackoutExit     Kind = "blackout_exit"
)

// Envelope is the typed event carried over the Hub's channels.
type Envelope struct {
	Kind    Kind
	At      time.Time
	Payload interface{}
}

// Hub is an in-process fan-out point: components publish typed Envelopes
// and any number of observers receive them over buffered channels. This
// replaces the pseudo-callback chain the source wires directly (spec §9
// Design Notes) with a register/unregister observer list, mirroring the
// teacher's SubscriptionManager register/unregister/broadcast shape but
// without the websocket transport — subscribers here are in-process
// goroutines (e.g. the NATS bridge).
type Hub struct {
	mu          sync.RWMutex
	nextID      int
	subscribers map[int]chan Envelope
}

// NewHub constructs an empty observer hub.
func NewHub() *Hub {
	return &Hub{subscribers: make(map[int]chan Envelope)}
}

// Subscribe registers a new observer with the given channel buffer size
// and returns a handle to unsubscribe later.
func (h *Hub) Subscribe(bufferSize int) (id int, ch <-chan Envelope) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	id = h.nextID
	c := make(chan Envelope, bufferSize)
	h.subscribers[id] = c
	return id, c
}

// Unsubscribe removes and closes an observer's channel.
func (h *Hub) Unsubscribe(id int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c, ok := h.subscribers[id]; ok {
		delete(h.subscribers, id)
		close(c)
	}
}

// Publish fans an event out to every observer. Sends are non-blocking: a
// slow or stalled observer has the event dropped rather than stalling the
// publisher (spec §9: typed channels/observer list, not a blocking chain).
func (h *Hub) Publish(kind Kind, payload interface{}) {
	env := Envelope{Kind: kind, At: time.Now(), Payload: payload}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.subscribers {
		select {
		case ch <- env:
		default:
		}
	}
}
