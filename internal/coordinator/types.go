// Package coordinator implements the Booking Coordinator of spec §4.F:
// the per-(user, restaurant, date) sequential processor that claims a
// slot, acquires a proxy, drives the details/book protocol, and steers
// the API error taxonomy into WAF-retry, sold-out, rate-limit, and
// auth-failure handling.
package coordinator

import (
	"fmt"
)

// ProcessorKey identifies one in-flight or terminal processor.
type ProcessorKey struct {
	UserID       int64
	RestaurantID int64
	TargetDate   string
}

func (k ProcessorKey) String() string {
	return fmt.Sprintf("%d:%d:%s", k.UserID, k.RestaurantID, k.TargetDate)
}

// SlotKey identifies one exclusively-claimable (restaurant, date, time).
type SlotKey struct {
	RestaurantID int64
	TargetDate   string
	SlotTime     string
}

func (k SlotKey) String() string {
	return fmt.Sprintf("%d:%s:%s", k.RestaurantID, k.TargetDate, k.SlotTime)
}

// UserBookingResult is the single terminal outcome a processor produces
// (spec §7 user-visible failure behaviour).
type UserBookingResult struct {
	UserID       int64
	RestaurantID int64
	TargetDate   string
	Success      bool
	SlotTime     string
	Message      string
	ReservationID string
}

// AccountExclusions maps userId -> true when the prefetcher found an
// existing reservation on the window's target date (spec §3, §4.H).
type AccountExclusions map[int64]bool

// candidateSlot is one slot matched against a user's preferences, ready
// for the processor's sequential attempt loop.
type candidateSlot struct {
	configID  string
	slotTime  string
	tableType *string
}

// retryState tracks per-slot WAF retry count within a processor.
type retryState struct {
	count int
}

const maxWAFRetries = 2
