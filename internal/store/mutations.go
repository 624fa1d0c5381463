package store

import (
	"context"
	"time"

	"github.com/reservesniper/core/internal/models"
)

// UpsertUser writes u synchronously to memory, then fire-and-forget to the
// durable backend (spec §4.B write-through discipline).
func (s *Store) UpsertUser(u models.User) {
	s.mu.Lock()
	s.users[u.ID] = u
	s.mu.Unlock()

	s.asyncWrite("upsertUser", func(ctx context.Context) error {
		return s.db.WithContext(ctx).Save(&u).Error
	})
}

// UpsertSubscription inserts or updates in place on (userId, restaurantId,
// partySize); a second identical upsert is observationally equivalent to
// the first (spec §8 round-trip property).
func (s *Store) UpsertSubscription(sub models.Subscription) {
	s.mu.Lock()
	for id, existing := range s.subscriptions {
		if existing.UserID == sub.UserID && existing.RestaurantID == sub.RestaurantID && existing.PartySize == sub.PartySize {
			sub.ID = id
			break
		}
	}
	s.subscriptions[sub.ID] = sub
	s.mu.Unlock()

	s.asyncWrite("upsertSubscription", func(ctx context.Context) error {
		return s.db.WithContext(ctx).Save(&sub).Error
	})
}

// DeleteSubscription removes a subscription from memory and schedules its
// durable deletion.
func (s *Store) DeleteSubscription(id int64) {
	s.mu.Lock()
	delete(s.subscriptions, id)
	s.mu.Unlock()

	s.asyncWrite("deleteSubscription", func(ctx context.Context) error {
		return s.db.WithContext(ctx).Delete(&models.Subscription{}, id).Error
	})
}

// MarkProxyUsed records a proxy's last-used timestamp.
func (s *Store) MarkProxyUsed(id int64, at time.Time) {
	s.mu.Lock()
	p, ok := s.proxies[id]
	if ok {
		p.LastUsed = &at
		s.proxies[id] = p
	}
	s.mu.Unlock()
	if !ok {
		return
	}

	s.asyncWrite("markProxyUsed", func(ctx context.Context) error {
		return s.db.WithContext(ctx).Model(&models.Proxy{}).Where("id = ?", id).Update("last_used", at).Error
	})
}

// MarkProxyRateLimited records a rate-limited-until timestamp for a proxy
// (spec §4.D: 15 min default for scan-path rate limits).
func (s *Store) MarkProxyRateLimited(id int64, until time.Time) {
	s.mu.Lock()
	p, ok := s.proxies[id]
	if ok {
		p.RateLimitedUntil = &until
		s.proxies[id] = p
	}
	s.mu.Unlock()
	if !ok {
		return
	}

	s.asyncWrite("markProxyRateLimited", func(ctx context.Context) error {
		return s.db.WithContext(ctx).Model(&models.Proxy{}).Where("id = ?", id).Update("rate_limited_until", until).Error
	})
}

// CreateBookingAttempt writes a write-only audit row (spec §4.B: never
// read back).
func (s *Store) CreateBookingAttempt(attempt models.BookingAttempt) {
	attempt.CreatedAt = time.Now()
	s.asyncWrite("createBookingAttempt", func(ctx context.Context) error {
		return s.db.WithContext(ctx).Create(&attempt).Error
	})
}

// LogBookingError writes a write-only error row, kept distinct from
// BookingAttempt so transient classification failures don't pollute the
// attempt audit trail.
func (s *Store) LogBookingError(userID, restaurantID int64, kind, message string) {
	row := models.BookingError{
		UserID: userID, RestaurantID: restaurantID,
		Kind: kind, Message: message, CreatedAt: time.Now(),
	}
	s.asyncWrite("logBookingError", func(ctx context.Context) error {
		return s.db.WithContext(ctx).Create(&row).Error
	})
}
