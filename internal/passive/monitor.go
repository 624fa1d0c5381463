// Package passive implements the off-peak calendar poller of spec §4.G:
// it rebuilds a list of (venueId, partySize) targets from the Store,
// polls each with getCalendar on a round-robin datacenter proxy, and
// forwards day-of-week-matched targets to the Coordinator's passive
// entry point.
package passive

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/reservesniper/core/internal/apiclient"
	"github.com/reservesniper/core/internal/events"
	"github.com/reservesniper/core/internal/logger"
	"github.com/reservesniper/core/internal/models"
	"github.com/reservesniper/core/internal/store"
	"github.com/reservesniper/core/internal/timeutil"
)

// OnMatch is invoked once per available calendar date that has matching
// targets and non-empty findSlots results, forwarding to the
// Coordinator's passive entry point.
type OnMatch func(ctx context.Context, slots []apiclient.Slot, targetDate string, matchedTargets []models.FullSubscription)

// NextReleaseTimesFunc exposes the Scheduler's pending releases so the
// Monitor can evaluate its own blackout window without a direct
// Scheduler reference (same injected-predicate pattern as the Store).
type NextReleaseTimesFunc func() []time.Time

// Monitor is the Passive Monitor (spec §4.G).
type Monitor struct {
	store           *store.Store
	client          *apiclient.Client
	hub             *events.Hub
	log             logger.Logger
	pollInterval    time.Duration
	blackoutMinutes time.Duration
	venueGap        time.Duration
	nextReleases    NextReleaseTimesFunc
	onMatch         OnMatch

	rrMu    sync.Mutex
	rrIndex int

	inBlackout bool
}

// New constructs a passive Monitor.
func New(st *store.Store, client *apiclient.Client, hub *events.Hub, pollInterval time.Duration, blackoutMinutes time.Duration, venueGap time.Duration, nextReleases NextReleaseTimesFunc, onMatch OnMatch, log logger.Logger) *Monitor {
	return &Monitor{
		store: st, client: client, hub: hub, log: log,
		pollInterval: pollInterval, blackoutMinutes: blackoutMinutes, venueGap: venueGap,
		nextReleases: nextReleases, onMatch: onMatch,
	}
}

// Run polls on pollInterval until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.cycle(ctx)
		}
	}
}

func (m *Monitor) cycle(ctx context.Context) {
	if m.inBlackoutWindow(time.Now()) {
		if !m.inBlackout {
			m.inBlackout = true
			if m.hub != nil {
				m.hub.Publish(events.KindBlackoutEnter, "passive monitor entering blackout")
			}
		}
		return
	}
	if m.inBlackout {
		m.inBlackout = false
		if m.hub != nil {
			m.hub.Publish(events.KindBlackoutExit, "passive monitor leaving blackout")
		}
	}

	targets := m.store.PassiveTargets()
	venues := groupByVenue(targets)

	for i, v := range venues {
		if i > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(m.venueGap):
			}
		}
		m.pollVenue(ctx, v.restaurant, v.partySize, v.targets)
	}
}

func (m *Monitor) inBlackoutWindow(now time.Time) bool {
	if m.nextReleases == nil {
		return false
	}
	for _, releaseAt := range m.nextReleases() {
		diff := releaseAt.Sub(now)
		if diff < 0 {
			diff = -diff
		}
		if diff <= m.blackoutMinutes {
			return true
		}
	}
	return false
}

type venueGroup struct {
	restaurant models.Restaurant
	partySize  int
	targets    []models.FullSubscription
}

func groupByVenue(targets []models.FullSubscription) []venueGroup {
	byKey := make(map[string]*venueGroup)
	order := make([]string, 0)
	for _, t := range targets {
		key := fmt.Sprintf("%s|%d", t.Restaurant.ExternalVenueID, t.Subscription.PartySize)
		g, ok := byKey[key]
		if !ok {
			g = &venueGroup{restaurant: t.Restaurant, partySize: t.Subscription.PartySize}
			byKey[key] = g
			order = append(order, key)
		}
		g.targets = append(g.targets, t)
	}
	out := make([]venueGroup, 0, len(order))
	for _, key := range order {
		out = append(out, *byKey[key])
	}
	return out
}

func (m *Monitor) pollVenue(ctx context.Context, restaurant models.Restaurant, partySize int, targets []models.FullSubscription) {
	client := m.client
	proxy := m.nextDatacenterProxy()
	if proxy != nil {
		if proxied, err := m.client.WithProxy(proxy.URL); err == nil {
			client = proxied
		}
	}

	startDate := time.Now().Format("2006-01-02")
	endDate := time.Now().AddDate(0, 0, 60).Format("2006-01-02")
	days, err := client.GetCalendar(ctx, restaurant.ExternalVenueID, partySize, startDate, endDate)
	if err != nil {
		m.log.Warn("passive calendar poll failed", "venueId", restaurant.ExternalVenueID, "error", err)
		return
	}

	for _, day := range days {
		if day.Status != "available" {
			continue
		}
		weekday := weekdayOf(day.Date)
		matched := make([]models.FullSubscription, 0)
		for _, t := range targets {
			if timeutil.DayFilterPasses(t.Subscription.AsPreference(), weekday) {
				matched = append(matched, t)
			}
		}
		if len(matched) == 0 {
			continue
		}

		slots, err := client.FindSlots(ctx, restaurant.ExternalVenueID, day.Date, partySize)
		if err != nil {
			m.log.Warn("passive findSlots failed", "venueId", restaurant.ExternalVenueID, "date", day.Date, "error", err)
			continue
		}
		if len(slots) == 0 {
			continue
		}
		if m.onMatch != nil {
			m.onMatch(ctx, slots, day.Date, matched)
		}
	}
}

func weekdayOf(dateStr string) time.Weekday {
	t, err := time.Parse("2006-01-02", dateStr)
	if err != nil {
		return time.Sunday
	}
	return t.Weekday()
}

func (m *Monitor) nextDatacenterProxy() *models.Proxy {
	proxies := m.store.ProxiesByClass(models.ProxyDatacenter)
	if len(proxies) == 0 {
		return nil
	}
	m.rrMu.Lock()
	idx := m.rrIndex % len(proxies)
	m.rrIndex++
	m.rrMu.Unlock()
	p := proxies[idx]
	return &p
}
