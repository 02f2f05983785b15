package events_processor

import (
	"context"
	"log/slog"

	"github.com/getlago/lago/billing-processor/config/tracing"
	"github.com/getlago/lago/billing-processor/models"
	"github.com/getlago/lago/billing-processor/utils"
)

// Resolution is the outcome of the subscription resolution of an event.
// Subscriptions are the ones active at the event timestamp, in primary order.
type Resolution struct {
	Customer      *models.Customer
	Subscriptions []*models.Subscription
}

func (r *Resolution) PrimarySubscription() *models.Subscription {
	if len(r.Subscriptions) == 0 {
		return nil
	}

	return r.Subscriptions[0]
}

type SubscriptionResolver struct {
	deprecations models.DeprecationReporter
	logger       *slog.Logger
}

func NewSubscriptionResolver(deprecations models.DeprecationReporter, logger *slog.Logger) *SubscriptionResolver {
	return &SubscriptionResolver{
		deprecations: deprecations,
		logger:       logger,
	}
}

// Resolve fills the customer and subscription of the event and returns the
// subscriptions the event is considered to concern.
// When several subscriptions are active for the customer and the event does
// not name one, the subscription of the event is left unset.
func (r *SubscriptionResolver) Resolve(ctx context.Context, store *models.ApiStore, event *models.Event) utils.Result[*Resolution] {
	span := tracing.StartSpan(ctx, "SubscriptionResolver.Resolve")
	defer span.End()

	hadSubscriptionID := event.HasSubscription()

	customerResult := r.resolveCustomer(store, event)
	if customerResult.Failure() {
		return utils.FailedResultFrom[*Resolution](customerResult, "fetch_customer", "Error fetching customer")
	}
	customer := customerResult.Value()

	candidatesResult := r.candidates(store, event, customer)
	if candidatesResult.Failure() {
		return utils.FailedResultFrom[*Resolution](candidatesResult, "fetch_subscriptions", "Error fetching subscriptions")
	}

	resolution := &Resolution{
		Customer:      customer,
		Subscriptions: models.SubscriptionsActiveAt(candidatesResult.Value(), event.Timestamp),
	}

	if customer != nil {
		if event.ExternalCustomerID == "" {
			event.ExternalCustomerID = customer.ExternalID
		}
		event.CustomerID = &customer.ID
	}

	primary := resolution.PrimarySubscription()

	if !hadSubscriptionID && primary != nil && countNonTerminated(resolution.Subscriptions) <= 1 {
		event.ExternalSubscriptionID = primary.ExternalID
	}

	if primary != nil && event.ExternalSubscriptionID == primary.ExternalID {
		event.SubscriptionID = &primary.ID
	}

	span.SetAttribute("subscriptions.length", len(resolution.Subscriptions))
	return utils.SuccessResult(resolution)
}

// ReportDeprecations counts the events still sent without a subscription.
// It must only see committed events.
func (r *SubscriptionResolver) ReportDeprecations(event *models.Event) {
	if event.HasSubscription() {
		return
	}

	if err := r.deprecations.Report(models.DeprecationMissingSubscriptionID, event.OrganizationID); err != nil {
		r.logger.Warn(
			"Error reporting deprecation",
			slog.String("feature", models.DeprecationMissingSubscriptionID),
			slog.String("organization_id", event.OrganizationID),
			slog.String("error", err.Error()),
		)
		utils.CaptureError(err)
	}
}

// The customer of an explicit subscription wins over the external customer id.
func (r *SubscriptionResolver) resolveCustomer(store *models.ApiStore, event *models.Event) utils.Result[*models.Customer] {
	if event.HasSubscription() {
		subsResult := store.FetchSubscriptionsByExternalID(event.OrganizationID, event.ExternalSubscriptionID)
		if subsResult.Failure() {
			return utils.FailedResult[*models.Customer](subsResult.Error())
		}

		subs := subsResult.Value()
		if len(subs) == 0 {
			return utils.SuccessResult[*models.Customer](nil)
		}

		models.SortSubscriptions(subs)
		return optionalCustomer(store.FetchCustomer(subs[0].CustomerID))
	}

	if event.ExternalCustomerID == "" {
		return utils.SuccessResult[*models.Customer](nil)
	}

	return optionalCustomer(store.FetchCustomerByExternalID(event.OrganizationID, event.ExternalCustomerID))
}

func (r *SubscriptionResolver) candidates(store *models.ApiStore, event *models.Event, customer *models.Customer) utils.Result[[]*models.Subscription] {
	if event.HasSubscription() {
		return store.FetchSubscriptionsByExternalID(event.OrganizationID, event.ExternalSubscriptionID)
	}

	if customer == nil {
		return utils.SuccessResult([]*models.Subscription{})
	}

	return store.FetchCustomerSubscriptions(customer.ID)
}

func optionalCustomer(result utils.Result[*models.Customer]) utils.Result[*models.Customer] {
	if models.IsNotFound(result) {
		return utils.SuccessResult[*models.Customer](nil)
	}

	return result
}

func countNonTerminated(subscriptions []*models.Subscription) int {
	count := 0
	for _, sub := range subscriptions {
		if !sub.IsTerminated() {
			count++
		}
	}

	return count
}
