package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reservesniper/core/internal/models"
)

func fullSub(restaurantID int64, releaseTime, zone string, daysInAdvance int, targetDays []int) models.FullSubscription {
	return models.FullSubscription{
		Subscription: models.Subscription{
			ID: 1, UserID: 1, RestaurantID: restaurantID, PartySize: 2,
			WindowStart: "18:00", WindowEnd: "21:00", TargetDays: targetDays, Enabled: true,
		},
		UserAuthToken:   "tok",
		PaymentMethodID: 1,
		Restaurant: models.Restaurant{
			ID: restaurantID, ExternalVenueID: "venue", Name: "Test",
			DaysInAdvance: daysInAdvance, ReleaseTime: releaseTime, ReleaseTimeZone: zone, Enabled: true,
		},
	}
}

func TestNextOccurrence_RollsToTomorrowWhenJustPassed(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	now := time.Date(2026, 7, 31, 10, 0, 1, 0, loc) // release was 10:00:00, now 10:00:01

	next, err := nextOccurrence("10:00", loc, now)
	require.NoError(t, err)
	assert.Equal(t, 2026, next.Year())
	assert.Equal(t, time.August, next.Month())
	assert.Equal(t, 1, next.Day())
	assert.Equal(t, 10, next.Hour())
	assert.Equal(t, 0, next.Minute())
}

func TestNextOccurrence_SameDayWhenNotYetPassed(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	now := time.Date(2026, 7, 31, 9, 59, 0, 0, loc)

	next, err := nextOccurrence("10:00", loc, now)
	require.NoError(t, err)
	assert.Equal(t, 31, next.Day())
	assert.Equal(t, 10, next.Hour())
}

func TestCalculateReleaseWindows_DropsSubscriptionFailingDayFilter(t *testing.T) {
	loc, _ := time.LoadLocation("America/New_York")
	now := time.Date(2026, 7, 29, 9, 0, 0, 0, loc) // Wednesday

	// target_days = Fri/Sat/Sun only; daysInAdvance=0 means targetDate == today (Wednesday).
	sub := fullSub(1, "10:00", "America/New_York", 0, []int{5, 6, 0})
	groups := map[string][]models.FullSubscription{"10:00|America/New_York": {sub}}

	windows := calculateReleaseWindows(groups, 45*time.Second, now)
	assert.Empty(t, windows, "window with its only subscription dropped by the day filter must itself be dropped")
}

func TestCalculateReleaseWindows_KeepsMatchingDayFilter(t *testing.T) {
	loc, _ := time.LoadLocation("America/New_York")
	now := time.Date(2026, 7, 29, 9, 0, 0, 0, loc) // Wednesday

	sub := fullSub(1, "10:00", "America/New_York", 0, []int{3}) // Wednesday=3
	groups := map[string][]models.FullSubscription{"10:00|America/New_York": {sub}}

	windows := calculateReleaseWindows(groups, 45*time.Second, now)
	require.Len(t, windows, 1)
	assert.Equal(t, "2026-07-29", windows[0].TargetDate)
	assert.Equal(t, windows[0].ReleaseDateTime.Add(-45*time.Second), windows[0].ScanStartDateTime)
}

func TestCalculateReleaseWindows_SortedByScanStart(t *testing.T) {
	loc, _ := time.LoadLocation("America/New_York")
	now := time.Date(2026, 7, 29, 9, 0, 0, 0, loc)

	early := fullSub(1, "09:30", "America/New_York", 0, nil)
	late := fullSub(2, "11:00", "America/New_York", 0, nil)
	groups := map[string][]models.FullSubscription{
		"11:00|America/New_York": {late},
		"09:30|America/New_York": {early},
	}

	windows := calculateReleaseWindows(groups, time.Second, now)
	require.Len(t, windows, 2)
	assert.True(t, windows[0].ScanStartDateTime.Before(windows[1].ScanStartDateTime))
}
