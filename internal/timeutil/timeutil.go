// Package timeutil implements the pure time-of-day and day-of-week
// predicates shared by the Scheduler and the Booking Coordinator: HH:MM
// parsing, overnight window matching, and weekday filtering (spec §3, §4.E,
// §4.F, GLOSSARY).
package timeutil

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/reservesniper/core/internal/models"
)

// ParseHHMM parses a "HH:MM" string into minutes since midnight.
func ParseHHMM(s string) (int, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid time format: expected HH:MM, got %q", s)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("invalid hour in %q: %w", s, err)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("invalid minute in %q: %w", s, err)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("time out of range: %q", s)
	}
	return hour*60 + minute, nil
}

// InWindow reports whether slotTime (HH:MM) falls within [start, end]
// inclusive. When end < start the window wraps past midnight (overnight),
// e.g. 22:00-02:00 accepts 00:30 and rejects 21:00.
func InWindow(slotTime, start, end string) bool {
	slot, err := ParseHHMM(slotTime)
	if err != nil {
		return false
	}
	startMin, err := ParseHHMM(start)
	if err != nil {
		return false
	}
	endMin, err := ParseHHMM(end)
	if err != nil {
		return false
	}
	if endMin < startMin {
		return slot >= startMin || slot <= endMin
	}
	return slot >= startMin && slot <= endMin
}

// WindowForWeekday resolves the effective [start,end] window for a given
// weekday, honoring day_configs precedence over the global window (spec §3
// invariant: "if day_configs is present it takes precedence").
func WindowForWeekday(pref models.PreferenceKey, weekday time.Weekday) (start, end string, ok bool) {
	if len(pref.DayConfigs) > 0 {
		for _, dc := range pref.DayConfigs {
			if dc.DayOfWeek == int(weekday) {
				return dc.Start, dc.End, true
			}
		}
		return "", "", false
	}
	return pref.WindowStart, pref.WindowEnd, true
}

// DayFilterPasses implements calculateReleaseWindows step 3 (spec §4.E):
// if day_configs is set, targetDate's weekday must appear in day_configs;
// else if target_days is non-empty, that set must contain the weekday;
// else the filter passes unconditionally. Go's time.Weekday is already
// 0=Sunday..6=Saturday, matching the spec's numbering directly — there is
// no Monday-first calendar library in this codebase to convert at the
// boundary.
func DayFilterPasses(pref models.PreferenceKey, weekday time.Weekday) bool {
	if len(pref.DayConfigs) > 0 {
		for _, dc := range pref.DayConfigs {
			if dc.DayOfWeek == int(weekday) {
				return true
			}
		}
		return false
	}
	if len(pref.TargetDays) > 0 {
		for _, d := range pref.TargetDays {
			if d == int(weekday) {
				return true
			}
		}
		return false
	}
	return true
}

// TargetDateFor returns "today + daysInAdvance" as a local YYYY-MM-DD
// calendar date in the restaurant's release time zone (spec §3 Release
// Window, §4.E step 2, §9 Time zones). An unrecognized zone falls back to
// UTC.
func TargetDateFor(releaseTimeZone string, daysInAdvance int, now time.Time) string {
	loc, err := time.LoadLocation(releaseTimeZone)
	if err != nil {
		loc = time.UTC
	}
	return now.In(loc).AddDate(0, 0, daysInAdvance).Format("2006-01-02")
}

// MatchesTableType reports whether a slot's table type is acceptable given
// a subscription's optional allow-list of case-insensitive substrings. An
// empty allow-list accepts any table type.
func MatchesTableType(slotTableType *string, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	if slotTableType == nil {
		return false
	}
	lower := strings.ToLower(*slotTableType)
	for _, a := range allowed {
		if strings.Contains(lower, strings.ToLower(a)) {
			return true
		}
	}
	return false
}
