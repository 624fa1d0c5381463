// Package scanner implements the concurrent slot-polling loop of spec
// §4.D: during a Release Window, poll every unique venue at ~1 Hz, in
// parallel, forwarding discovered slots downstream as soon as they
// appear.
package scanner

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/reservesniper/core/internal/apiclient"
	"github.com/reservesniper/core/internal/events"
	"github.com/reservesniper/core/internal/logger"
	"github.com/reservesniper/core/internal/models"
	"github.com/reservesniper/core/internal/proxypool"
	"github.com/reservesniper/core/internal/store"
	"github.com/reservesniper/core/internal/timeutil"
)

// ProxyRateLimited is the payload of the KindProxyRateLimited outbound
// event (spec §6).
type ProxyRateLimited struct {
	ProxyID    int64
	VenueID    string
	RetryAfter time.Time
}

// SlotBatch is one push event: the restaurant scanned and the raw slots
// returned for one party size. Per-user matching happens downstream in
// the Coordinator (spec §4.D: "filtering by per-user preferences is
// performed downstream").
type SlotBatch struct {
	Restaurant models.Restaurant
	TargetDate string
	PartySize  int
	Slots      []apiclient.Slot
}

// scanRateLimitCooldown is the scan-path 429 cooldown (spec §5: "429 on
// scan -> datacenter proxy is rate-limited for 15 min in the Store"). It
// differs from the booking-path cooldown, which is the ISP Pool's own
// configured CoolDown (see internal/proxypool.Config) rather than a fixed
// constant here — see DESIGN.md Open Question notes.
const scanRateLimitCooldown = 15 * time.Minute

// Stats is the terminal ScanStats event emitted when a window's scan ends.
type Stats struct {
	Venues    int
	Ticks     int
	Errors    int
	RateLimit int
}

// OnSlots is called for every SlotBatch worth forwarding.
type OnSlots func(batch SlotBatch)

// OnScanComplete is called once the scan loop for a window ends.
type OnScanComplete func(stats Stats)

// Task is one (restaurant, partySize) pair polled each tick.
type Task struct {
	Restaurant models.Restaurant
	PartySize  int
}

// Scanner polls the upstream API for a single Release Window.
type Scanner struct {
	client   *apiclient.Client
	proxies  *proxypool.Pool
	store    *store.Store
	hub      *events.Hub
	log      logger.Logger
	interval time.Duration
	useProxy bool

	onSlots    OnSlots
	onComplete OnScanComplete

	rrMu    sync.Mutex
	rrIndex int
}

// New constructs a Scanner. interval is the ~1 Hz tick period (spec §6
// SCAN_INTERVAL_MS). hub may be nil, in which case the Scanner simply
// doesn't publish events (used by tests that don't care about them).
func New(client *apiclient.Client, proxies *proxypool.Pool, st *store.Store, hub *events.Hub, interval time.Duration, useProxy bool, onSlots OnSlots, onComplete OnScanComplete, log logger.Logger) *Scanner {
	return &Scanner{
		client: client, proxies: proxies, store: st, hub: hub, log: log,
		interval: interval, useProxy: useProxy,
		onSlots: onSlots, onComplete: onComplete,
	}
}

// Run polls until end is reached or ctx is cancelled (spec §4.D: from
// scanStartDateTime until releaseDateTime+120s, at ~1Hz).
func (sc *Scanner) Run(ctx context.Context, tasks []Task, end time.Time) {
	var stats Stats
	stats.Venues = countUniqueRestaurants(tasks)

	ticker := time.NewTicker(sc.interval)
	defer ticker.Stop()

	for {
		if time.Now().After(end) {
			break
		}

		stats.Ticks++
		errCount, rlCount := sc.tick(ctx, tasks)
		stats.Errors += errCount
		stats.RateLimit += rlCount

		select {
		case <-ctx.Done():
			if sc.onComplete != nil {
				sc.onComplete(stats)
			}
			return
		case <-ticker.C:
		}
	}

	if sc.onComplete != nil {
		sc.onComplete(stats)
	}
}

func countUniqueRestaurants(tasks []Task) int {
	seen := make(map[int64]bool)
	for _, t := range tasks {
		seen[t.Restaurant.ID] = true
	}
	return len(seen)
}

// tick polls every venue in parallel via an errgroup, one goroutine per
// venue with no concurrency limit; within a
// venue, party sizes are issued sequentially (spec §4.D: "requests for
// different party sizes subscribed to the same venue are issued
// sequentially within that venue's scan").
func (sc *Scanner) tick(ctx context.Context, tasks []Task) (errCount, rateLimitCount int) {
	byRestaurant := make(map[int64][]Task)
	order := make([]int64, 0)
	for _, t := range tasks {
		if _, ok := byRestaurant[t.Restaurant.ID]; !ok {
			order = append(order, t.Restaurant.ID)
		}
		byRestaurant[t.Restaurant.ID] = append(byRestaurant[t.Restaurant.ID], t)
	}

	var errs, rls int32
	g, gctx := errgroup.WithContext(ctx)
	for _, id := range order {
		venueTasks := byRestaurant[id]
		g.Go(func() error {
			e, r := sc.scanVenue(gctx, venueTasks)
			atomic.AddInt32(&errs, int32(e))
			atomic.AddInt32(&rls, int32(r))
			return nil
		})
	}
	_ = g.Wait()
	return int(errs), int(rls)
}

// scanVenue issues findSlots for every party size subscribed to one
// restaurant, forwarding each non-empty result (spec §4.D per-iteration
// semantics). A venue that errors does not stop other venues' scans, and
// a venue's success does not stop its own continued scanning.
func (sc *Scanner) scanVenue(ctx context.Context, tasks []Task) (errCount, rateLimitCount int) {
	if len(tasks) == 0 {
		return 0, 0
	}
	restaurant := tasks[0].Restaurant

	client := sc.client
	var proxy *models.Proxy
	if sc.useProxy {
		proxy = sc.nextDatacenterProxy()
		if proxy != nil {
			if proxied, err := sc.client.WithProxy(proxy.URL); err == nil {
				client = proxied
			}
		}
	}

	// Each restaurant books out DaysInAdvance days from today in its own
	// release time zone (spec §3/§4.E, scenario 1); today's date is only
	// the current instant the scan tick is running at, never the date
	// actually being booked.
	targetDate := timeutil.TargetDateFor(restaurant.ReleaseTimeZone, restaurant.DaysInAdvance, time.Now())

	for _, task := range tasks {
		slots, err := client.FindSlots(ctx, restaurant.ExternalVenueID, targetDate, task.PartySize)
		if err != nil {
			if apiErr, ok := err.(*apiclient.APIError); ok && apiErr.Kind == apiclient.KindRateLimited {
				rateLimitCount++
				if proxy != nil {
					until := time.Now().Add(scanRateLimitCooldown)
					sc.store.MarkProxyRateLimited(proxy.ID, until)
					if sc.hub != nil {
						sc.hub.Publish(events.KindProxyRateLimited, ProxyRateLimited{
							ProxyID: proxy.ID, VenueID: restaurant.ExternalVenueID, RetryAfter: until,
						})
					}
				}
				continue
			}
			sc.log.Warn("scan failed for venue", "venueId", restaurant.ExternalVenueID, "partySize", task.PartySize, "error", err)
			errCount++
			continue
		}
		if len(slots) == 0 {
			continue
		}
		if sc.onSlots != nil {
			sc.onSlots(SlotBatch{Restaurant: restaurant, TargetDate: targetDate, PartySize: task.PartySize, Slots: slots})
		}
	}
	return errCount, rateLimitCount
}

// nextDatacenterProxy round-robins over the Store's datacenter proxy
// classification (spec §4.D).
func (sc *Scanner) nextDatacenterProxy() *models.Proxy {
	proxies := sc.store.ProxiesByClass(models.ProxyDatacenter)
	if len(proxies) == 0 {
		return nil
	}
	sc.rrMu.Lock()
	idx := sc.rrIndex % len(proxies)
	sc.rrIndex++
	sc.rrMu.Unlock()
	p := proxies[idx]
	return &p
}
