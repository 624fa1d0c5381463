// Package models defines the entities of spec.md §3: the durable,
// GORM-backed rows the Store loads at startup, plus the in-memory views
// derived from them.
package models

import "time"

// Restaurant is read-only on the hot path; it is refreshed on periodic sync.
type Restaurant struct {
	ID              int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	ExternalVenueID string `gorm:"uniqueIndex;type:varchar(64);not null" json:"externalVenueId"`
	Name            string `gorm:"type:varchar(255);not null" json:"name"`
	DaysInAdvance   int    `gorm:"not null" json:"daysInAdvance"`
	ReleaseTime     string `gorm:"type:varchar(5);not null" json:"releaseTime"` // "HH:MM"
	ReleaseTimeZone string `gorm:"type:varchar(64);not null" json:"releaseTimeZone"`
	Enabled         bool   `gorm:"not null;default:true" json:"enabled"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (Restaurant) TableName() string { return "restaurants" }

// User auth material may be absent if chat-surface registration is incomplete.
type User struct {
	ID              int64   `gorm:"primaryKey;autoIncrement" json:"id"`
	ExternalChatID  string  `gorm:"uniqueIndex;type:varchar(64);not null" json:"externalChatId"`
	AuthToken       *string `gorm:"type:varchar(512)" json:"authToken,omitempty"`
	PaymentMethodID *int64  `json:"paymentMethodId,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (User) TableName() string { return "users" }

// HasAuth reports whether the user can be included in a FullSubscription view.
func (u User) HasAuth() bool {
	return u.AuthToken != nil && *u.AuthToken != "" && u.PaymentMethodID != nil
}

// DayConfig overrides the subscription's global time window for one weekday.
// DayOfWeek uses Go's native 0=Sunday...6=Saturday numbering, which the spec
// adopts directly — no 1-based-Monday conversion is needed anywhere in this
// codebase.
type DayConfig struct {
	DayOfWeek int    `json:"dayOfWeek"`
	Start     string `json:"start"`
	End       string `json:"end"`
}

// Subscription is the join of a User and a Restaurant with booking
// preferences. Uniqueness key: (UserID, RestaurantID, PartySize).
type Subscription struct {
	ID           int64       `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID       int64       `gorm:"uniqueIndex:idx_user_restaurant_party;not null" json:"userId"`
	RestaurantID int64       `gorm:"uniqueIndex:idx_user_restaurant_party;not null" json:"restaurantId"`
	PartySize    int         `gorm:"uniqueIndex:idx_user_restaurant_party;not null" json:"partySize"`
	WindowStart  string      `gorm:"type:varchar(5);not null" json:"windowStart"` // "HH:MM"
	WindowEnd    string      `gorm:"type:varchar(5);not null" json:"windowEnd"`
	TableTypes   []string    `gorm:"serializer:json" json:"tableTypes,omitempty"`
	DayConfigs   []DayConfig `gorm:"serializer:json" json:"dayConfigs,omitempty"`
	TargetDays   []int       `gorm:"serializer:json" json:"targetDays,omitempty"`
	Enabled      bool        `gorm:"not null;default:true" json:"enabled"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (Subscription) TableName() string { return "user_subscriptions" }

// PreferenceKey implements the shape shared by Subscription and PassiveTarget.
type PreferenceKey struct {
	UserID       int64
	RestaurantID int64
	PartySize    int
	WindowStart  string
	WindowEnd    string
	TableTypes   []string
	DayConfigs   []DayConfig
	TargetDays   []int
}

// AsPreference adapts a Subscription to the shared day-filter/time-window shape.
func (s Subscription) AsPreference() PreferenceKey {
	return PreferenceKey{
		UserID: s.UserID, RestaurantID: s.RestaurantID, PartySize: s.PartySize,
		WindowStart: s.WindowStart, WindowEnd: s.WindowEnd,
		TableTypes: s.TableTypes, DayConfigs: s.DayConfigs, TargetDays: s.TargetDays,
	}
}

// PassiveTarget is shape-compatible with Subscription but driven by
// calendar polling rather than release-time windows; the spec keeps these
// as logically distinct lifecycles (see GLOSSARY / Open Questions).
type PassiveTarget struct {
	ID           int64       `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID       int64       `gorm:"uniqueIndex:idx_passive_user_restaurant_party;not null" json:"userId"`
	RestaurantID int64       `gorm:"uniqueIndex:idx_passive_user_restaurant_party;not null" json:"restaurantId"`
	PartySize    int         `gorm:"uniqueIndex:idx_passive_user_restaurant_party;not null" json:"partySize"`
	WindowStart  string      `gorm:"type:varchar(5);not null" json:"windowStart"`
	WindowEnd    string      `gorm:"type:varchar(5);not null" json:"windowEnd"`
	TableTypes   []string    `gorm:"serializer:json" json:"tableTypes,omitempty"`
	DayConfigs   []DayConfig `gorm:"serializer:json" json:"dayConfigs,omitempty"`
	TargetDays   []int       `gorm:"serializer:json" json:"targetDays,omitempty"`
	Enabled      bool        `gorm:"not null;default:true" json:"enabled"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (PassiveTarget) TableName() string { return "passive_targets" }

// AsPreference adapts a PassiveTarget to the shared day-filter/time-window shape.
func (t PassiveTarget) AsPreference() PreferenceKey {
	return PreferenceKey{
		UserID: t.UserID, RestaurantID: t.RestaurantID, PartySize: t.PartySize,
		WindowStart: t.WindowStart, WindowEnd: t.WindowEnd,
		TableTypes: t.TableTypes, DayConfigs: t.DayConfigs, TargetDays: t.TargetDays,
	}
}

// ProxyClass classifies a Proxy into one of two disjoint pools.
type ProxyClass string

const (
	ProxyDatacenter ProxyClass = "datacenter"
	ProxyISP        ProxyClass = "isp"
)

// Proxy is an opaque URL plus lifecycle bookkeeping. Credentials are
// embedded in the URL, which apiclient.Client.WithProxy parses with
// net/url as-is; it is not split into host/port/user/password anywhere.
type Proxy struct {
	ID               int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	URL              string     `gorm:"type:text;not null" json:"url"`
	Class            ProxyClass `gorm:"type:varchar(16);not null" json:"class"`
	Enabled          bool       `gorm:"not null;default:true" json:"enabled"`
	LastUsed         *time.Time `json:"lastUsed,omitempty"`
	RateLimitedUntil *time.Time `json:"rateLimitedUntil,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (Proxy) TableName() string { return "proxies" }

// BookingStatus is the terminal or in-flight state of a BookingAttempt.
type BookingStatus string

const (
	BookingPending  BookingStatus = "pending"
	BookingSuccess  BookingStatus = "success"
	BookingFailed   BookingStatus = "failed"
	BookingSoldOut  BookingStatus = "sold_out"
)

// BookingAttempt is a write-only audit log row (spec §4.B: never read back).
type BookingAttempt struct {
	ID            int64         `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID        int64         `gorm:"index;not null" json:"userId"`
	RestaurantID  int64         `gorm:"index;not null" json:"restaurantId"`
	TargetDate    string        `gorm:"type:varchar(10);not null" json:"targetDate"` // "YYYY-MM-DD"
	SlotTime      string        `gorm:"type:varchar(5);not null" json:"slotTime"`
	Status        BookingStatus `gorm:"type:varchar(16);not null" json:"status"`
	ReservationID *string       `json:"reservationId,omitempty"`
	ErrorMessage  *string       `json:"errorMessage,omitempty"`
	ProxyUsed     *string       `json:"proxyUsed,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}

func (BookingAttempt) TableName() string { return "booking_attempts" }

// BookingError is a write-only error-log row, distinct from BookingAttempt
// so transient classification errors don't pollute the attempt audit trail.
type BookingError struct {
	ID           int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID       int64  `gorm:"index;not null" json:"userId"`
	RestaurantID int64  `gorm:"index;not null" json:"restaurantId"`
	Kind         string `gorm:"type:varchar(32);not null" json:"kind"`
	Message      string `gorm:"type:text;not null" json:"message"`

	CreatedAt time.Time `json:"createdAt"`
}

func (BookingError) TableName() string { return "booking_errors" }

// FullSubscription denormalizes a Subscription with its User auth material
// and Restaurant details — the Coordinator and Scheduler never see the raw
// join tables directly. Subscriptions whose user lacks an auth token or
// payment method never produce a FullSubscription (spec §4.B).
type FullSubscription struct {
	Subscription    Subscription
	UserAuthToken   string
	PaymentMethodID int64
	ExternalChatID  string
	Restaurant      Restaurant
}

func (fs FullSubscription) Key() (userID, restaurantID int64, partySize int) {
	return fs.Subscription.UserID, fs.Subscription.RestaurantID, fs.Subscription.PartySize
}
