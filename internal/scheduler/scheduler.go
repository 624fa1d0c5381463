package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/reservesniper/core/internal/logger"
	"github.com/reservesniper/core/internal/store"
)

// OnWindowStart is invoked when a scheduled window's timer fires. The
// Coordinator resets its state, the Prefetcher runs, then the Scanner
// begins (spec §4.E window firing).
type OnWindowStart func(ctx context.Context, w Window)

// Scheduler holds the authoritative mapping of pending window timers
// (spec §4.E).
type Scheduler struct {
	store    *store.Store
	log      logger.Logger
	leadTime time.Duration
	onStart  OnWindowStart

	cron *cron.Cron

	mu       sync.Mutex
	pending  map[string]pendingWindow
	releases map[string]time.Time
	running  bool
}

type pendingWindow struct {
	timer  *time.Timer
	window Window
}

// New constructs a Scheduler bound to the Store. Call Start to begin
// firing windows.
func New(st *store.Store, leadTime time.Duration, onStart OnWindowStart, log logger.Logger) *Scheduler {
	return &Scheduler{
		store:    st,
		log:      log,
		leadTime: leadTime,
		onStart:  onStart,
		cron:     cron.New(),
		pending:  make(map[string]pendingWindow),
		releases: make(map[string]time.Time),
	}
}

// Start computes the current windows, schedules their timers, and begins
// the recurring 1-hour recompute tick (spec §4.E timer discipline).
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	s.recompute()

	_, err := s.cron.AddFunc("@every 1h", s.recompute)
	if err != nil {
		s.log.Error("failed to schedule window recompute tick", "error", err)
	}
	s.cron.Start()
}

// Stop halts the recurring recompute tick and cancels any pending
// one-shot window timers (used on process shutdown).
func (s *Scheduler) Stop() {
	s.cron.Stop()
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, pw := range s.pending {
		pw.timer.Stop()
		delete(s.pending, key)
	}
	s.running = false
}

// OnStoreSync should be registered as a Store post-sync hook: a
// successful sync recomputes windows (spec §4.E: "When the Store
// completes a sync, the Scheduler also recomputes").
func (s *Scheduler) OnStoreSync() {
	s.recompute()
}

func (s *Scheduler) recompute() {
	groups := s.store.FullSubscriptionsByReleaseGroup()
	windows := calculateReleaseWindows(groups, s.leadTime, time.Now())
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	for key, releaseAt := range s.releases {
		if releaseAt.Before(now) {
			delete(s.releases, key)
		}
	}

	for _, w := range windows {
		key := w.GuardKey()
		// Tracked independent of the one-shot timer below: GetNextReleaseTimes
		// (and the Store's blackout predicate) must still see this release
		// after the timer fires and is cleaned out of s.pending.
		s.releases[key] = w.ReleaseDateTime

		if _, scheduled := s.pending[key]; scheduled {
			continue
		}
		delay := time.Until(w.ScanStartDateTime)
		if delay <= 0 || delay > 24*time.Hour {
			continue
		}
		window := w
		timer := time.AfterFunc(delay, func() { s.fire(key, window) })
		s.pending[key] = pendingWindow{timer: timer, window: window}
	}
}

func (s *Scheduler) fire(key string, w Window) {
	s.mu.Lock()
	delete(s.pending, key)
	s.mu.Unlock()

	if s.onStart != nil {
		s.onStart(context.Background(), w)
	}
}

// GetNextReleaseTimes exposes every tracked window's ReleaseDateTime so
// the Store's periodic-sync blackout predicate can be evaluated without a
// circular Scheduler<->Store reference (spec §9 Design Notes). This
// includes releases whose one-shot scan timer has already fired and been
// removed from s.pending — the release instant itself is tracked
// separately so the blackout guarantee holds through the actual release,
// not just until the timer cleanup (spec §8).
func (s *Scheduler) GetNextReleaseTimes() []time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]time.Time, 0, len(s.releases))
	for _, releaseAt := range s.releases {
		out = append(out, releaseAt)
	}
	return out
}

// BlackoutPredicate builds a store.BlackoutPredicate that reports true
// when now falls within blackoutWindow of any currently-scheduled
// release (spec §4.B blackout predicate, default 60s).
func (s *Scheduler) BlackoutPredicate(blackoutWindow time.Duration) func(now time.Time) bool {
	return func(now time.Time) bool {
		for _, releaseAt := range s.GetNextReleaseTimes() {
			diff := releaseAt.Sub(now)
			if diff >= 0 && diff <= blackoutWindow {
				return true
			}
		}
		return false
	}
}
