package events_processor

import (
	"context"
	"log/slog"
	"time"

	"github.com/getlago/lago/billing-processor/config/tracing"
	"github.com/getlago/lago/billing-processor/models"
	"github.com/getlago/lago/billing-processor/tasks"
	"github.com/getlago/lago/billing-processor/utils"
)

type PayInAdvanceService struct {
	apiStore  *models.ApiStore
	submitter tasks.Submitter
	logger    *slog.Logger
}

func NewPayInAdvanceService(apiStore *models.ApiStore, submitter tasks.Submitter, logger *slog.Logger) *PayInAdvanceService {
	return &PayInAdvanceService{
		apiStore:  apiStore,
		submitter: submitter,
		logger:    logger,
	}
}

// IsProcessable reports whether the event carries what the metric needs
// to be billed in advance.
func IsProcessable(event *models.Event, bm *models.BillableMetric) bool {
	if !bm.AggregationType.RequiresField() {
		return true
	}

	_, present := event.PropertyValue(bm.FieldName)
	return present
}

// Dispatch submits one task per pay in advance charge of the primary
// subscription plan. It returns the number of submitted tasks.
func (s *PayInAdvanceService) Dispatch(ctx context.Context, event *models.Event, subscriptions []*models.Subscription, bm *models.BillableMetric) utils.Result[int] {
	if bm == nil || len(subscriptions) == 0 || !IsProcessable(event, bm) {
		return utils.SuccessResult(0)
	}

	span := tracing.StartSpan(ctx, "PayInAdvance.Dispatch")
	defer span.End()

	primary := subscriptions[0]

	chargesResult := s.apiStore.FetchPayInAdvanceCharges(primary.PlanID, bm.ID)
	if chargesResult.Failure() {
		return utils.FailedResultFrom[int](chargesResult, "fetch_pay_in_advance_charges", "Error fetching pay in advance charges")
	}

	submitted := 0
	for _, charge := range chargesResult.Value() {
		taskType := tasks.TaskCreatePayInAdvanceFee
		if charge.Invoiceable {
			taskType = tasks.TaskCreatePayInAdvanceChargeInvoice
		}

		task, err := tasks.NewTask(taskType, event.OrganizationID, tasks.PayInAdvancePayload{
			ChargeID:       charge.ID,
			EventID:        event.ID,
			SubscriptionID: primary.ID,
			Timestamp:      event.Timestamp.UTC().Truncate(time.Second),
		})
		if err == nil {
			err = s.submitter.Submit(span.GetContext(), task)
		}

		if err != nil {
			span.SetError(err)
			result := utils.FailedResult[int](err).AddErrorDetails("dispatch_pay_in_advance", "Error submitting pay in advance task")
			return result
		}

		s.logger.Debug(
			"Pay in advance task submitted",
			slog.String("task_type", string(taskType)),
			slog.String("charge_id", charge.ID),
			slog.String("event_id", event.ID),
		)
		submitted++
	}

	span.SetAttribute("tasks.submitted", submitted)
	return utils.SuccessResult(submitted)
}
