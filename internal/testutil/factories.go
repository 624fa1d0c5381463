// Package testutil provides fluent test data factories for the domain
// models, mirroring the builder-with-sensible-defaults shape the rest of
// this codebase's tests already assume.
package testutil

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/reservesniper/core/internal/models"
)

// NewExternalID generates a unique external id for testing (venue ids,
// chat ids, and the like all come from an upstream system we don't control).
func NewExternalID(prefix string) string {
	return fmt.Sprintf("%s-%s", prefix, uuid.New().String()[:8])
}

// UserFactory builds models.User rows with sensible defaults.
type UserFactory struct {
	user models.User
}

// NewUserFactory returns a factory for a fully-authenticated user: a chat
// id, auth token and payment method already set, ready for a FullSubscription.
func NewUserFactory() *UserFactory {
	token := "tok-" + uuid.New().String()
	payment := int64(1)
	return &UserFactory{user: models.User{
		ExternalChatID:  NewExternalID("chat"),
		AuthToken:       &token,
		PaymentMethodID: &payment,
	}}
}

func (f *UserFactory) WithExternalChatID(id string) *UserFactory {
	f.user.ExternalChatID = id
	return f
}

func (f *UserFactory) WithAuthToken(token string) *UserFactory {
	f.user.AuthToken = &token
	return f
}

// Unauthenticated strips the auth token and payment method, producing a
// user that User.HasAuth reports false for (spec §4.B: never included in
// a FullSubscription).
func (f *UserFactory) Unauthenticated() *UserFactory {
	f.user.AuthToken = nil
	f.user.PaymentMethodID = nil
	return f
}

func (f *UserFactory) Build() models.User {
	return f.user
}

// RestaurantFactory builds models.Restaurant rows with sensible defaults.
type RestaurantFactory struct {
	restaurant models.Restaurant
}

func NewRestaurantFactory() *RestaurantFactory {
	return &RestaurantFactory{restaurant: models.Restaurant{
		ExternalVenueID: NewExternalID("venue"),
		Name:            "Test Restaurant",
		DaysInAdvance:   30,
		ReleaseTime:     "10:00",
		ReleaseTimeZone: "America/New_York",
		Enabled:         true,
	}}
}

func (f *RestaurantFactory) WithExternalVenueID(id string) *RestaurantFactory {
	f.restaurant.ExternalVenueID = id
	return f
}

func (f *RestaurantFactory) WithReleaseTime(timeOfDay, timeZone string) *RestaurantFactory {
	f.restaurant.ReleaseTime = timeOfDay
	f.restaurant.ReleaseTimeZone = timeZone
	return f
}

func (f *RestaurantFactory) WithDaysInAdvance(days int) *RestaurantFactory {
	f.restaurant.DaysInAdvance = days
	return f
}

func (f *RestaurantFactory) Disabled() *RestaurantFactory {
	f.restaurant.Enabled = false
	return f
}

func (f *RestaurantFactory) Build() models.Restaurant {
	return f.restaurant
}

// SubscriptionFactory builds models.Subscription rows with sensible defaults.
// UserID and RestaurantID must be set after the referenced rows are created.
type SubscriptionFactory struct {
	sub models.Subscription
}

func NewSubscriptionFactory() *SubscriptionFactory {
	return &SubscriptionFactory{sub: models.Subscription{
		PartySize:   2,
		WindowStart: "18:00",
		WindowEnd:   "21:00",
		Enabled:     true,
	}}
}

func (f *SubscriptionFactory) WithUserID(id int64) *SubscriptionFactory {
	f.sub.UserID = id
	return f
}

func (f *SubscriptionFactory) WithRestaurantID(id int64) *SubscriptionFactory {
	f.sub.RestaurantID = id
	return f
}

func (f *SubscriptionFactory) WithPartySize(n int) *SubscriptionFactory {
	f.sub.PartySize = n
	return f
}

func (f *SubscriptionFactory) WithWindow(start, end string) *SubscriptionFactory {
	f.sub.WindowStart = start
	f.sub.WindowEnd = end
	return f
}

func (f *SubscriptionFactory) WithTableTypes(types ...string) *SubscriptionFactory {
	f.sub.TableTypes = types
	return f
}

func (f *SubscriptionFactory) WithTargetDays(days ...int) *SubscriptionFactory {
	f.sub.TargetDays = days
	return f
}

func (f *SubscriptionFactory) Build() models.Subscription {
	return f.sub
}

// ProxyFactory builds models.Proxy rows with sensible defaults.
type ProxyFactory struct {
	proxy models.Proxy
}

func NewProxyFactory() *ProxyFactory {
	return &ProxyFactory{proxy: models.Proxy{
		URL:     "http://proxy.example:8080",
		Class:   models.ProxyISP,
		Enabled: true,
	}}
}

func (f *ProxyFactory) WithURL(url string) *ProxyFactory {
	f.proxy.URL = url
	return f
}

func (f *ProxyFactory) AsDatacenter() *ProxyFactory {
	f.proxy.Class = models.ProxyDatacenter
	return f
}

func (f *ProxyFactory) Disabled() *ProxyFactory {
	f.proxy.Enabled = false
	return f
}

func (f *ProxyFactory) Build() models.Proxy {
	return f.proxy
}
