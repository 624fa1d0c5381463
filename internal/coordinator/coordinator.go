package coordinator

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/reservesniper/core/internal/apiclient"
	"github.com/reservesniper/core/internal/events"
	"github.com/reservesniper/core/internal/logger"
	"github.com/reservesniper/core/internal/models"
	"github.com/reservesniper/core/internal/proxypool"
	"github.com/reservesniper/core/internal/store"
	"github.com/reservesniper/core/internal/timeutil"
)

// Coordinator is the heart of the system (spec §4.F). All state maps are
// protected by mu; processors run as goroutines and report back through
// the post-processor observer.
type Coordinator struct {
	store   *store.Store
	proxies *proxypool.Pool
	client  UpstreamClient
	hub     *events.Hub
	log     logger.Logger
	dryRun  bool

	mu                 sync.Mutex
	activeProcessors   map[ProcessorKey]bool
	successfulBookings map[ProcessorKey]bool
	rateLimitedUsers   map[int64]bool
	authFailedUsers    map[int64]bool
	accountExclusions  AccountExclusions
	claimedSlots       map[SlotKey]int64
}

// New constructs a Coordinator. dryRun, when true, substitutes a
// synthetic success for the book call (spec §6 DRY_RUN).
func New(st *store.Store, proxies *proxypool.Pool, client UpstreamClient, hub *events.Hub, dryRun bool, log logger.Logger) *Coordinator {
	return &Coordinator{
		store: st, proxies: proxies, client: client, hub: hub, dryRun: dryRun, log: log,
		activeProcessors:   make(map[ProcessorKey]bool),
		successfulBookings: make(map[ProcessorKey]bool),
		rateLimitedUsers:   make(map[int64]bool),
		authFailedUsers:    make(map[int64]bool),
		accountExclusions:  make(AccountExclusions),
		claimedSlots:       make(map[SlotKey]int64),
	}
}

// Reset clears all per-window state (but never touches the Proxy Pool,
// which is reset separately) at each window start (spec §4.F Reset).
func (c *Coordinator) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.activeProcessors = make(map[ProcessorKey]bool)
	c.successfulBookings = make(map[ProcessorKey]bool)
	c.rateLimitedUsers = make(map[int64]bool)
	c.authFailedUsers = make(map[int64]bool)
	c.accountExclusions = make(AccountExclusions)
	c.claimedSlots = make(map[SlotKey]int64)
}

// ActiveProcessorCount reports how many user processors are currently
// in flight, for operational visibility (e.g. the /status endpoint).
func (c *Coordinator) ActiveProcessorCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.activeProcessors)
}

// SetAccountExclusions installs the prefetcher's snapshot for the current
// window's target date (spec §4.H).
func (c *Coordinator) SetAccountExclusions(excl AccountExclusions) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accountExclusions = excl
}

// OnSlotsDiscovered is the Scanner's entry point (spec §4.F). It resolves
// the active FullSubscriptions for restaurant, groups by user, and starts
// one sequential processor per user unless one is already active or a
// terminal state applies.
func (c *Coordinator) OnSlotsDiscovered(ctx context.Context, slots []apiclient.Slot, restaurant models.Restaurant, targetDate string, partySize int) {
	byUser := make(map[int64][]models.FullSubscription)
	for _, fs := range c.store.FullSubscriptions() {
		if fs.Restaurant.ID != restaurant.ID || fs.Subscription.PartySize != partySize {
			continue
		}
		byUser[fs.Subscription.UserID] = append(byUser[fs.Subscription.UserID], fs)
	}

	for userID, subs := range byUser {
		for _, fs := range subs {
			c.maybeStartProcessor(ctx, fs, slots, targetDate)
		}
		_ = userID
	}
}

// OnPassiveSlotsDiscovered is the Passive Monitor's entry point: it skips
// the Store lookup the scanner path performs since preMatchedTargets is
// already resolved and day-of-week-filtered upstream (spec §4.F, §4.G).
func (c *Coordinator) OnPassiveSlotsDiscovered(ctx context.Context, slots []apiclient.Slot, targetDate string, preMatchedTargets []models.FullSubscription) {
	for _, fs := range preMatchedTargets {
		c.maybeStartProcessor(ctx, fs, slots, targetDate)
	}
}

func (c *Coordinator) maybeStartProcessor(ctx context.Context, fs models.FullSubscription, slots []apiclient.Slot, targetDate string) {
	key := ProcessorKey{UserID: fs.Subscription.UserID, RestaurantID: fs.Restaurant.ID, TargetDate: targetDate}

	c.mu.Lock()
	if c.activeProcessors[key] {
		c.mu.Unlock()
		return
	}
	if c.successfulBookings[key] {
		c.mu.Unlock()
		return
	}
	if c.rateLimitedUsers[fs.Subscription.UserID] || c.authFailedUsers[fs.Subscription.UserID] {
		c.mu.Unlock()
		return
	}
	if c.accountExclusions[fs.Subscription.UserID] {
		c.mu.Unlock()
		c.log.Info("skipping processor: user has existing reservation on target date",
			"userId", fs.Subscription.UserID, "restaurantId", fs.Restaurant.ID, "targetDate", targetDate)
		return
	}
	candidates := matchCandidates(fs, slots, targetDate)
	if len(candidates) == 0 {
		c.mu.Unlock()
		return
	}
	c.activeProcessors[key] = true
	c.mu.Unlock()

	go c.runProcessor(ctx, key, fs, candidates)
}

// matchCandidates implements spec §4.F per-user slot matching: time
// window (day_configs override, else global window, inclusive and
// overnight-aware) then table-type substring matching, sorted ascending
// by time.
func matchCandidates(fs models.FullSubscription, slots []apiclient.Slot, targetDate string) []candidateSlot {
	weekday := weekdayOfDate(targetDate)
	pref := fs.Subscription.AsPreference()
	start, end, ok := timeutil.WindowForWeekday(pref, weekday)
	if !ok {
		return nil
	}

	out := make([]candidateSlot, 0, len(slots))
	for _, s := range slots {
		if !timeutil.InWindow(s.TimeString, start, end) {
			continue
		}
		if !timeutil.MatchesTableType(s.TableType, fs.Subscription.TableTypes) {
			continue
		}
		out = append(out, candidateSlot{configID: s.ConfigID, slotTime: s.TimeString, tableType: s.TableType})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].slotTime < out[j].slotTime })
	return out
}

func weekdayOfDate(dateStr string) time.Weekday {
	t, err := time.Parse("2006-01-02", dateStr)
	if err != nil {
		return time.Sunday
	}
	return t.Weekday()
}
