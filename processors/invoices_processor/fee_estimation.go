package invoices_processor

import (
	"context"
	"errors"

	"github.com/getlago/lago/billing-processor/fees"
	"github.com/getlago/lago/billing-processor/models"
	"github.com/getlago/lago/billing-processor/utils"
)

// ErrorReporter sends event.error webhooks. It is called outside of any
// database transaction.
type ErrorReporter interface {
	Report(ctx context.Context, organizationID string, event *models.Event, errorPayload map[string]any)
}

// estimateFees loads what the estimator needs and computes the fees of the
// charge for the event. Estimation errors are returned as *fees.ComputationError.
func estimateFees(ctx context.Context, store *models.ApiStore, estimator fees.Estimator, charge *models.Charge, event *models.Event, subscription *models.Subscription) utils.Result[[]*models.Fee] {
	bmResult := store.FetchBillableMetricByID(charge.BillableMetricID)
	if bmResult.Failure() {
		return utils.FailedResultFrom[[]*models.Fee](bmResult, "fetch_billable_metric", "Error fetching billable metric")
	}

	planResult := store.FetchPlan(subscription.PlanID)
	if planResult.Failure() {
		return utils.FailedResultFrom[[]*models.Fee](planResult, "fetch_plan", "Error fetching plan")
	}

	customerResult := store.FetchCustomer(subscription.CustomerID)
	if customerResult.Failure() {
		return utils.FailedResultFrom[[]*models.Fee](customerResult, "fetch_customer", "Error fetching customer")
	}

	estimated, err := estimator.Estimate(ctx, fees.EstimateInput{
		Charge:         charge,
		BillableMetric: bmResult.Value(),
		Event:          event,
		Subscription:   subscription,
		Plan:           planResult.Value(),
		Customer:       customerResult.Value(),
	})
	if err != nil {
		var computationErr *fees.ComputationError
		if !errors.As(err, &computationErr) {
			err = &fees.ComputationError{ChargeID: charge.ID, Err: err}
		}

		return utils.FailedResult[[]*models.Fee](err).
			AddErrorDetails("fee_computation", "Error computing pay in advance fees").
			NonRetryable()
	}

	return utils.SuccessResult(estimated)
}
