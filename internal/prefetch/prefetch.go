// Package prefetch implements the Account Reservation Prefetcher of spec
// §4.H: once per window opening, it fetches getUpcomingReservations for
// every unique user in the window and builds the AccountExclusions
// snapshot the Coordinator consults before starting a processor.
package prefetch

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/reservesniper/core/internal/apiclient"
	"github.com/reservesniper/core/internal/coordinator"
	"github.com/reservesniper/core/internal/logger"
	"github.com/reservesniper/core/internal/models"
)

const maxParallelFetches = 5

// Prefetcher resolves a window's AccountExclusions snapshot.
type Prefetcher struct {
	client *apiclient.Client
	log    logger.Logger
}

// New constructs a Prefetcher.
func New(client *apiclient.Client, log logger.Logger) *Prefetcher {
	return &Prefetcher{client: client, log: log}
}

// Run fetches getUpcomingReservations for each unique user among subs,
// bounded to maxParallelFetches concurrent requests, and returns the
// exclusion set of users holding a reservation on targetDate. A failed
// fetch fails open: that user is simply absent from the exclusion set
// (spec §4.H Fail-open).
func (p *Prefetcher) Run(ctx context.Context, subs []models.FullSubscription, targetDate string) coordinator.AccountExclusions {
	uniqueUsers := make(map[int64]models.FullSubscription)
	for _, fs := range subs {
		if _, ok := uniqueUsers[fs.Subscription.UserID]; !ok {
			uniqueUsers[fs.Subscription.UserID] = fs
		}
	}

	excl := make(coordinator.AccountExclusions)
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelFetches)

	for userID, fs := range uniqueUsers {
		userID, fs := userID, fs
		g.Go(func() error {
			reservations, err := p.client.GetUpcomingReservations(gctx, fs.UserAuthToken)
			if err != nil {
				p.log.Warn("prefetch failed, failing open", "userId", userID, "error", err)
				return nil
			}
			for _, r := range reservations {
				if r.Day == targetDate {
					mu.Lock()
					excl[userID] = true
					mu.Unlock()
					break
				}
			}
			return nil
		})
	}

	_ = g.Wait() // fetch errors already handled per-user; group never returns an error

	return excl
}
