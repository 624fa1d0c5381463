// Package proxypool implements the bounded ISP proxy pool of spec §4.C:
// three disjoint subsets (available, inUse, cooldown) with a minimum
// reuse spacing enforced per proxy. The in-memory last-release map is the
// source of truth for that spacing (spec §8 MinReuseDelay is a universal
// invariant, so it must hold with or without Redis configured); Redis is
// an optional, write-only mirror of the same bookkeeping so a restart
// doesn't immediately re-acquire a proxy that was released moments before
// shutdown.
package proxypool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/reservesniper/core/internal/logger"
	"github.com/reservesniper/core/internal/models"
	"github.com/reservesniper/core/internal/store"
)

const reuseSpacingKeyPrefix = "proxypool:last_release:"

// Config carries the pool's tunables (spec §4.C constants).
type Config struct {
	CoolDown      time.Duration // 5 min default
	MinReuseDelay time.Duration // 2 s default
	AcquireTimeout time.Duration // 10 s default
	PollInterval  time.Duration // 100 ms default
}

func DefaultConfig() Config {
	return Config{
		CoolDown:       5 * time.Minute,
		MinReuseDelay:  2 * time.Second,
		AcquireTimeout: 10 * time.Second,
		PollInterval:   100 * time.Millisecond,
	}
}

type cooldownEntry struct {
	proxy  models.Proxy
	expiry time.Time
}

// Pool is the bounded ISP proxy resource. acquire/release/markBad/reset
// are all serialised on mu so concurrent callers observe a consistent
// partition (spec §4.C scheduling model).
type Pool struct {
	cfg   Config
	store *store.Store
	redis *redis.Client
	log   logger.Logger

	mu          sync.Mutex
	available   []models.Proxy
	inUse       map[int64]models.Proxy
	cooldown    map[int64]cooldownEntry
	lastRelease map[int64]time.Time
}

// New constructs an empty pool; call RefreshFromStore to populate it from
// the Store's ISP proxy classification.
func New(cfg Config, st *store.Store, redisClient *redis.Client, log logger.Logger) *Pool {
	return &Pool{
		cfg:         cfg,
		store:       st,
		redis:       redisClient,
		log:         log,
		inUse:       make(map[int64]models.Proxy),
		cooldown:    make(map[int64]cooldownEntry),
		lastRelease: make(map[int64]time.Time),
	}
}

// RefreshFromStore rebuilds the available set from the Store's current
// ISP proxy classification, called after each Store sync (spec §4.B
// post-sync dependent caches).
func (p *Pool) RefreshFromStore() {
	proxies := p.store.ProxiesByClass(models.ProxyISP)

	p.mu.Lock()
	defer p.mu.Unlock()

	known := make(map[int64]bool, len(proxies))
	for _, proxy := range proxies {
		known[proxy.ID] = true
		if _, inUse := p.inUse[proxy.ID]; inUse {
			continue
		}
		if _, cooling := p.cooldown[proxy.ID]; cooling {
			continue
		}
		if !p.containsAvailable(proxy.ID) {
			p.available = append(p.available, proxy)
		}
	}
	p.available = filterProxies(p.available, func(pr models.Proxy) bool { return known[pr.ID] })
}

func (p *Pool) containsAvailable(id int64) bool {
	for _, pr := range p.available {
		if pr.ID == id {
			return true
		}
	}
	return false
}

func filterProxies(in []models.Proxy, keep func(models.Proxy) bool) []models.Proxy {
	out := in[:0]
	for _, pr := range in {
		if keep(pr) {
			out = append(out, pr)
		}
	}
	return out
}

// Acquire returns the first available proxy whose last release was at
// least MinReuseDelay ago, moving it to inUse. It polls every
// PollInterval, reclaiming expired cooldown entries on each pass, and
// returns nil after timeout (spec §4.C).
func (p *Pool) Acquire(ctx context.Context, timeout time.Duration) *models.Proxy {
	if timeout <= 0 {
		timeout = p.cfg.AcquireTimeout
	}
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if proxy, ok := p.tryAcquireOnce(); ok {
			return &proxy
		}
		if time.Now().After(deadline) {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (p *Pool) tryAcquireOnce() (models.Proxy, bool) {
	p.mu.Lock()
	now := time.Now()
	p.reclaimExpiredCooldownLocked(now)

	var candidateIdx = -1
	for i, proxy := range p.available {
		if p.eligibleForReuseLocked(proxy.ID, now) {
			candidateIdx = i
			break
		}
	}
	if candidateIdx == -1 {
		p.mu.Unlock()
		return models.Proxy{}, false
	}
	proxy := p.available[candidateIdx]
	p.available = append(p.available[:candidateIdx], p.available[candidateIdx+1:]...)
	p.inUse[proxy.ID] = proxy
	p.mu.Unlock()

	p.store.MarkProxyUsed(proxy.ID, now)
	return proxy, true
}

func (p *Pool) reclaimExpiredCooldownLocked(now time.Time) {
	for id, entry := range p.cooldown {
		if now.After(entry.expiry) {
			delete(p.cooldown, id)
			p.available = append(p.available, entry.proxy)
		}
	}
}

// eligibleForReuseLocked enforces MinReuseDelay against the in-memory
// lastRelease map (spec §8: a universal invariant, so it must hold with
// or without Redis configured). Must be called with mu held.
func (p *Pool) eligibleForReuseLocked(proxyID int64, now time.Time) bool {
	releasedAt, ok := p.lastRelease[proxyID]
	if !ok {
		return true
	}
	return now.Sub(releasedAt) >= p.cfg.MinReuseDelay
}

// Release moves a proxy from inUse back to available and records the
// release time to enforce the minimum reuse spacing.
func (p *Pool) Release(proxyID int64) {
	now := time.Now()
	p.mu.Lock()
	proxy, ok := p.inUse[proxyID]
	if ok {
		delete(p.inUse, proxyID)
		p.available = append(p.available, proxy)
		p.lastRelease[proxyID] = now
	}
	p.mu.Unlock()
	if !ok {
		return
	}

	if p.redis != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		key := reuseSpacingKeyPrefix + fmt.Sprint(proxyID)
		if err := p.redis.Set(ctx, key, now.Format(time.RFC3339Nano), p.cfg.MinReuseDelay+time.Second).Err(); err != nil {
			p.log.Warn("failed to mirror proxy release time to redis", "proxyId", proxyID, "error", err)
		}
	}
}

// MarkBad moves a proxy from inUse into cooldown with a 5-minute expiry.
func (p *Pool) MarkBad(proxyID int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	proxy, ok := p.inUse[proxyID]
	if !ok {
		return
	}
	delete(p.inUse, proxyID)
	p.cooldown[proxyID] = cooldownEntry{proxy: proxy, expiry: time.Now().Add(p.cfg.CoolDown)}
}

// Reset moves every inUse and cooldown entry back to available and
// clears reuse-spacing history. Called at each window start (spec §4.C);
// the Proxy Pool itself is never reset by the Coordinator's own Reset.
func (p *Pool) Reset() {
	p.mu.Lock()
	for _, proxy := range p.inUse {
		p.available = append(p.available, proxy)
	}
	for _, entry := range p.cooldown {
		p.available = append(p.available, entry.proxy)
	}
	p.inUse = make(map[int64]models.Proxy)
	p.cooldown = make(map[int64]cooldownEntry)
	p.lastRelease = make(map[int64]time.Time)
	p.mu.Unlock()
}

// Stats is a point-in-time snapshot of the pool's partition sizes, used
// by the /status endpoint.
type Stats struct {
	Available int `json:"available"`
	InUse     int `json:"inUse"`
	Cooldown  int `json:"cooldown"`
}

func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{Available: len(p.available), InUse: len(p.inUse), Cooldown: len(p.cooldown)}
}
