// Package store is the in-memory, write-through view of durable state
// (spec §4.B). It loads every enabled Restaurant, User, Subscription,
// PassiveTarget, and Proxy once at startup, serves all hot-path reads from
// memory, and fans mutations out to the durable backend fire-and-forget.
package store

import (
	"context"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/reservesniper/core/internal/logger"
	"github.com/reservesniper/core/internal/models"
)

// BlackoutPredicate reports whether a sync beginning now would run too
// close to a scheduled release. Supplied by the Scheduler via
// SetBlackoutPredicate to break the Scheduler<->Store reference cycle
// (spec §9 Design Notes: "break with an injected predicate").
type BlackoutPredicate func(now time.Time) bool

// PostSyncHook is invoked after every successful periodic sync so
// dependent caches (Scheduler's window list, Passive Monitor's target
// list, Proxy Pool's available set) can rebuild themselves.
type PostSyncHook func()

// Store is the sole mutator of Restaurants, Users, Subscriptions, and
// Proxies (spec §3 Ownership). All fields below are protected by mu.
type Store struct {
	db  *gorm.DB
	log logger.Logger

	mu            sync.RWMutex
	restaurants   map[int64]models.Restaurant
	users         map[int64]models.User
	subscriptions map[int64]models.Subscription
	passiveTargets map[int64]models.PassiveTarget
	proxies       map[int64]models.Proxy

	byExternalVenueID map[string]int64 // externalVenueId -> restaurant.ID

	blackout      BlackoutPredicate
	postSyncHooks []PostSyncHook

	syncInterval time.Duration
	stopSync     chan struct{}
	syncOnce     sync.Once
}

// New constructs a Store bound to db. Call Bootstrap before use.
func New(db *gorm.DB, syncInterval time.Duration, log logger.Logger) *Store {
	if syncInterval <= 0 {
		syncInterval = 5 * time.Minute
	}
	return &Store{
		db:                db,
		log:               log,
		restaurants:       make(map[int64]models.Restaurant),
		users:             make(map[int64]models.User),
		subscriptions:     make(map[int64]models.Subscription),
		passiveTargets:    make(map[int64]models.PassiveTarget),
		proxies:           make(map[int64]models.Proxy),
		byExternalVenueID: make(map[string]int64),
		syncInterval:      syncInterval,
		stopSync:          make(chan struct{}),
	}
}

// Migrate runs AutoMigrate for every entity this Store owns.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Restaurant{},
		&models.User{},
		&models.Subscription{},
		&models.PassiveTarget{},
		&models.Proxy{},
		&models.BookingAttempt{},
		&models.BookingError{},
	)
}

// SetBlackoutPredicate wires the Scheduler's release-proximity check into
// the periodic sync loop.
func (s *Store) SetBlackoutPredicate(p BlackoutPredicate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blackout = p
}

// AddPostSyncHook registers a callback fired after every successful sync.
func (s *Store) AddPostSyncHook(hook PostSyncHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.postSyncHooks = append(s.postSyncHooks, hook)
}

// Bootstrap performs the initial full load described in spec §4.B.
func (s *Store) Bootstrap(ctx context.Context) error {
	return s.reload(ctx)
}

func (s *Store) reload(ctx context.Context) error {
	var restaurants []models.Restaurant
	if err := s.db.WithContext(ctx).Where("enabled = ?", true).Find(&restaurants).Error; err != nil {
		return err
	}
	var users []models.User
	if err := s.db.WithContext(ctx).Find(&users).Error; err != nil {
		return err
	}
	var subs []models.Subscription
	if err := s.db.WithContext(ctx).Where("enabled = ?", true).Find(&subs).Error; err != nil {
		return err
	}
	var targets []models.PassiveTarget
	if err := s.db.WithContext(ctx).Where("enabled = ?", true).Find(&targets).Error; err != nil {
		return err
	}
	var proxies []models.Proxy
	if err := s.db.WithContext(ctx).Where("enabled = ?", true).Find(&proxies).Error; err != nil {
		return err
	}

	s.mu.Lock()
	s.restaurants = make(map[int64]models.Restaurant, len(restaurants))
	s.byExternalVenueID = make(map[string]int64, len(restaurants))
	for _, r := range restaurants {
		s.restaurants[r.ID] = r
		s.byExternalVenueID[r.ExternalVenueID] = r.ID
	}
	s.users = make(map[int64]models.User, len(users))
	for _, u := range users {
		s.users[u.ID] = u
	}
	s.subscriptions = make(map[int64]models.Subscription, len(subs))
	for _, sub := range subs {
		s.subscriptions[sub.ID] = sub
	}
	s.passiveTargets = make(map[int64]models.PassiveTarget, len(targets))
	for _, t := range targets {
		s.passiveTargets[t.ID] = t
	}
	s.proxies = make(map[int64]models.Proxy, len(proxies))
	for _, p := range proxies {
		s.proxies[p.ID] = p
	}
	hooks := append([]PostSyncHook(nil), s.postSyncHooks...)
	s.mu.Unlock()

	for _, hook := range hooks {
		hook()
	}
	return nil
}

// StartPeriodicSync launches the 5-minute background refresh loop. It
// returns immediately; call StopPeriodicSync (or cancel ctx) to stop it.
func (s *Store) StartPeriodicSync(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(s.syncInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopSync:
				return
			case <-ticker.C:
				s.mu.RLock()
				blackout := s.blackout
				s.mu.RUnlock()
				if blackout != nil && blackout(time.Now()) {
					s.log.Debug("periodic sync skipped: inside release blackout window")
					continue
				}
				if err := s.reload(ctx); err != nil {
					s.log.Error("periodic sync failed", "error", err)
				}
			}
		}
	}()
}

// StopPeriodicSync halts the background refresh loop. Safe to call once.
func (s *Store) StopPeriodicSync() {
	s.syncOnce.Do(func() { close(s.stopSync) })
}

// asyncWrite fires a durable write in the background; failures are logged
// and never surfaced back to the synchronous caller (spec §4.B).
func (s *Store) asyncWrite(label string, fn func(ctx context.Context) error) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := fn(ctx); err != nil {
			s.log.Error("durable write failed", "op", label, "error", err)
		}
	}()
}
