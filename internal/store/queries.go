package store

import "github.com/reservesniper/core/internal/models"

// FullSubscriptions returns the denormalised join of every enabled
// Subscription with its User's auth material and Restaurant details.
// Subscriptions whose user lacks an auth token or payment method are
// excluded from this view (spec §4.B derived query).
func (s *Store) FullSubscriptions() []models.FullSubscription {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.FullSubscription, 0, len(s.subscriptions))
	for _, sub := range s.subscriptions {
		user, ok := s.users[sub.UserID]
		if !ok || !user.HasAuth() {
			continue
		}
		restaurant, ok := s.restaurants[sub.RestaurantID]
		if !ok || !restaurant.Enabled {
			continue
		}
		out = append(out, models.FullSubscription{
			Subscription:    sub,
			UserAuthToken:   *user.AuthToken,
			PaymentMethodID: *user.PaymentMethodID,
			ExternalChatID:  user.ExternalChatID,
			Restaurant:      restaurant,
		})
	}
	return out
}

// FullSubscriptionsByReleaseGroup groups FullSubscriptions by their
// restaurant's "HH:MM|IANA-zone" release identity, the secondary index the
// Scheduler consumes to build Release Windows (spec §3, §4.E).
func (s *Store) FullSubscriptionsByReleaseGroup() map[string][]models.FullSubscription {
	groups := make(map[string][]models.FullSubscription)
	for _, fs := range s.FullSubscriptions() {
		key := fs.Restaurant.ReleaseTime + "|" + fs.Restaurant.ReleaseTimeZone
		groups[key] = append(groups[key], fs)
	}
	return groups
}

// RestaurantByExternalID looks up a Restaurant via the external-venue-id
// secondary index.
func (s *Store) RestaurantByExternalID(externalVenueID string) (models.Restaurant, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byExternalVenueID[externalVenueID]
	if !ok {
		return models.Restaurant{}, false
	}
	r, ok := s.restaurants[id]
	return r, ok
}

// Restaurant returns a restaurant by internal id.
func (s *Store) Restaurant(id int64) (models.Restaurant, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.restaurants[id]
	return r, ok
}

// User returns a user by internal id.
func (s *Store) User(id int64) (models.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	return u, ok
}

// PassiveTargets returns every enabled PassiveTarget whose user has auth
// material, denormalised the same way FullSubscriptions is.
func (s *Store) PassiveTargets() []models.FullSubscription {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.FullSubscription, 0, len(s.passiveTargets))
	for _, t := range s.passiveTargets {
		user, ok := s.users[t.UserID]
		if !ok || !user.HasAuth() {
			continue
		}
		restaurant, ok := s.restaurants[t.RestaurantID]
		if !ok || !restaurant.Enabled {
			continue
		}
		out = append(out, models.FullSubscription{
			Subscription: models.Subscription{
				ID: t.ID, UserID: t.UserID, RestaurantID: t.RestaurantID, PartySize: t.PartySize,
				WindowStart: t.WindowStart, WindowEnd: t.WindowEnd,
				TableTypes: t.TableTypes, DayConfigs: t.DayConfigs, TargetDays: t.TargetDays,
				Enabled: t.Enabled, CreatedAt: t.CreatedAt, UpdatedAt: t.UpdatedAt,
			},
			UserAuthToken:   *user.AuthToken,
			PaymentMethodID: *user.PaymentMethodID,
			ExternalChatID:  user.ExternalChatID,
			Restaurant:      restaurant,
		})
	}
	return out
}

// ProxiesByClass returns every enabled proxy of the given classification,
// the secondary index the ISP Proxy Pool and the Scanner/Passive Monitor's
// datacenter round-robin both read (spec §3).
func (s *Store) ProxiesByClass(class models.ProxyClass) []models.Proxy {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Proxy, 0)
	for _, p := range s.proxies {
		if p.Class == class && p.Enabled {
			out = append(out, p)
		}
	}
	return out
}
