// Package scheduler computes Release Windows from the Store's
// subscription data and fires a one-shot timer a configurable lead time
// before each restaurant's next release (spec §4.E).
package scheduler

import (
	"sort"
	"time"

	"github.com/reservesniper/core/internal/models"
	"github.com/reservesniper/core/internal/timeutil"
)

// Window is the derived (not stored) Release Window of spec §3.
type Window struct {
	ReleaseTime       string // "HH:MM"
	ReleaseTimeZone   string
	ReleaseDateTime   time.Time
	ScanStartDateTime time.Time
	TargetDate        string // "YYYY-MM-DD", canonical for the window
	Restaurants       []models.Restaurant
	Subscriptions     []models.FullSubscription
}

// GuardKey is the dedup key for the scheduler's pending-timer guard map.
func (w Window) GuardKey() string {
	return w.ReleaseTime + "-" + w.TargetDate
}

// calculateReleaseWindows implements spec §4.E steps 1-5. groups maps a
// "HH:MM|IANA-zone" release identity to its FullSubscriptions, as produced
// by Store.FullSubscriptionsByReleaseGroup.
func calculateReleaseWindows(groups map[string][]models.FullSubscription, leadTime time.Duration, now time.Time) []Window {
	windows := make([]Window, 0, len(groups))

	for key, subs := range groups {
		if len(subs) == 0 {
			continue
		}
		releaseTime := subs[0].Restaurant.ReleaseTime
		zone := subs[0].Restaurant.ReleaseTimeZone
		loc, err := time.LoadLocation(zone)
		if err != nil {
			loc = time.UTC
		}

		releaseDateTime, err := nextOccurrence(releaseTime, loc, now)
		if err != nil {
			continue
		}

		surviving := make([]models.FullSubscription, 0, len(subs))
		restaurantSet := make(map[int64]models.Restaurant)
		var canonicalTargetDate string

		for _, fs := range subs {
			targetDate := timeutil.TargetDateFor(fs.Restaurant.ReleaseTimeZone, fs.Restaurant.DaysInAdvance, now)
			weekday := weekdayOf(targetDate, loc)
			if !timeutil.DayFilterPasses(fs.Subscription.AsPreference(), weekday) {
				continue
			}
			surviving = append(surviving, fs)
			restaurantSet[fs.Restaurant.ID] = fs.Restaurant
			if canonicalTargetDate == "" {
				canonicalTargetDate = targetDate
			}
		}
		if len(surviving) == 0 {
			continue
		}

		restaurants := make([]models.Restaurant, 0, len(restaurantSet))
		for _, r := range restaurantSet {
			restaurants = append(restaurants, r)
		}
		sort.Slice(restaurants, func(i, j int) bool { return restaurants[i].ID < restaurants[j].ID })

		windows = append(windows, Window{
			ReleaseTime:       releaseTime,
			ReleaseTimeZone:   zone,
			ReleaseDateTime:   releaseDateTime,
			ScanStartDateTime: releaseDateTime.Add(-leadTime),
			TargetDate:        canonicalTargetDate,
			Restaurants:       restaurants,
			Subscriptions:     surviving,
		})
		_ = key
	}

	sort.Slice(windows, func(i, j int) bool {
		return windows[i].ScanStartDateTime.Before(windows[j].ScanStartDateTime)
	})
	return windows
}

// nextOccurrence computes the next instant at which hhmm occurs in loc,
// rolling to tomorrow if today's has already passed (spec §8 boundary:
// "just passed" means exactly 24h later, never skipped).
func nextOccurrence(hhmm string, loc *time.Location, now time.Time) (time.Time, error) {
	minutes, err := timeutil.ParseHHMM(hhmm)
	if err != nil {
		return time.Time{}, err
	}
	localNow := now.In(loc)
	candidate := time.Date(localNow.Year(), localNow.Month(), localNow.Day(), minutes/60, minutes%60, 0, 0, loc)
	if !candidate.After(localNow) {
		candidate = candidate.AddDate(0, 0, 1)
	}
	return candidate, nil
}

func weekdayOf(dateStr string, loc *time.Location) time.Weekday {
	t, err := time.ParseInLocation("2006-01-02", dateStr, loc)
	if err != nil {
		return time.Sunday
	}
	return t.Weekday()
}
