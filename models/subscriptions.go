package models

import (
	"database/sql"
	"sort"
	"time"

	"github.com/getlago/lago/billing-processor/utils"
)

type Subscription struct {
	ID             string `gorm:"primaryKey"`
	OrganizationID string `gorm:"index;not null"`
	CustomerID     string `gorm:"index;not null"`
	PlanID         string `gorm:"not null"`
	ExternalID     string `gorm:"index;not null"`
	StartedAt      sql.NullTime
	TerminatedAt   sql.NullTime
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (sub *Subscription) IsTerminated() bool {
	return sub.TerminatedAt.Valid
}

// ActiveAt reports whether the subscription covers the timestamp,
// both sides being compared at second precision.
func (sub *Subscription) ActiveAt(timestamp time.Time) bool {
	if !sub.StartedAt.Valid {
		return false
	}

	ts := utils.TruncateToSecond(timestamp)
	if utils.TruncateToSecond(sub.StartedAt.Time).After(ts) {
		return false
	}

	return !sub.TerminatedAt.Valid || !utils.TruncateToSecond(sub.TerminatedAt.Time).Before(ts)
}

// SortSubscriptions orders subscriptions by terminated_at DESC NULLS FIRST,
// then started_at DESC. The first element is the primary subscription.
func SortSubscriptions(subscriptions []*Subscription) {
	sort.SliceStable(subscriptions, func(i, j int) bool {
		a, b := subscriptions[i], subscriptions[j]

		if a.TerminatedAt.Valid != b.TerminatedAt.Valid {
			return !a.TerminatedAt.Valid
		}

		if a.TerminatedAt.Valid && !a.TerminatedAt.Time.Equal(b.TerminatedAt.Time) {
			return a.TerminatedAt.Time.After(b.TerminatedAt.Time)
		}

		return a.StartedAt.Time.After(b.StartedAt.Time)
	})
}

// SubscriptionsActiveAt keeps the subscriptions covering the timestamp,
// in primary subscription order.
func SubscriptionsActiveAt(subscriptions []*Subscription, timestamp time.Time) []*Subscription {
	active := make([]*Subscription, 0, len(subscriptions))
	for _, sub := range subscriptions {
		if sub.ActiveAt(timestamp) {
			active = append(active, sub)
		}
	}

	SortSubscriptions(active)
	return active
}

func (store *ApiStore) FetchSubscription(id string) utils.Result[*Subscription] {
	var sub Subscription
	result := store.db.Connection.First(&sub, "id = ?", id)
	if result.Error != nil {
		return failedStoreResult[*Subscription](result.Error)
	}

	return utils.SuccessResult(&sub)
}

func (store *ApiStore) FetchSubscriptionsByExternalID(organizationID string, externalID string) utils.Result[[]*Subscription] {
	var subscriptions []*Subscription
	result := store.db.Connection.
		Where("organization_id = ? AND external_id = ?", organizationID, externalID).
		Find(&subscriptions)
	if result.Error != nil {
		return utils.FailedResult[[]*Subscription](result.Error)
	}

	return utils.SuccessResult(subscriptions)
}

func (store *ApiStore) FetchCustomerSubscriptions(customerID string) utils.Result[[]*Subscription] {
	var subscriptions []*Subscription
	result := store.db.Connection.
		Where("customer_id = ?", customerID).
		Find(&subscriptions)
	if result.Error != nil {
		return utils.FailedResult[[]*Subscription](result.Error)
	}

	return utils.SuccessResult(subscriptions)
}
