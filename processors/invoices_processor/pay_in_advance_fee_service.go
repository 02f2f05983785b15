package invoices_processor

import (
	"context"
	"errors"
	"log/slog"

	"github.com/getlago/lago/billing-processor/config/tracing"
	"github.com/getlago/lago/billing-processor/fees"
	"github.com/getlago/lago/billing-processor/models"
	"github.com/getlago/lago/billing-processor/utils"
)

type FeeInput struct {
	Charge       *models.Charge
	Event        *models.Event
	Subscription *models.Subscription
}

// PayInAdvanceFeeService creates the fees of the charges billed in advance
// but not invoiced on their own. The fees are left without invoice.
type PayInAdvanceFeeService struct {
	apiStore      *models.ApiStore
	estimator     fees.Estimator
	errorReporter ErrorReporter
	logger        *slog.Logger
}

func NewPayInAdvanceFeeService(apiStore *models.ApiStore, estimator fees.Estimator, errorReporter ErrorReporter, logger *slog.Logger) *PayInAdvanceFeeService {
	return &PayInAdvanceFeeService{
		apiStore:      apiStore,
		estimator:     estimator,
		errorReporter: errorReporter,
		logger:        logger,
	}
}

// Create returns the number of created fees. Redelivered tasks create nothing.
func (s *PayInAdvanceFeeService) Create(ctx context.Context, input FeeInput) utils.Result[int64] {
	span := tracing.StartSpan(ctx, "PayInAdvanceFee.Create", tracing.WithTag("charge_id", input.Charge.ID))
	defer span.End()

	estimateResult := estimateFees(span.GetContext(), s.apiStore, s.estimator, input.Charge, input.Event, input.Subscription)
	if estimateResult.Failure() {
		span.SetError(estimateResult.Error())
		return utils.FailedResultFrom[int64](estimateResult, estimateResult.ErrorCode(), estimateResult.ErrorMessage())
	}

	insertResult := s.apiStore.InsertFees(estimateResult.Value())
	if insertResult.Failure() {
		span.SetError(insertResult.Error())

		var validationErr *models.ValidationError
		if errors.As(insertResult.Error(), &validationErr) {
			s.errorReporter.Report(ctx, input.Event.OrganizationID, input.Event, validationErr.ErrorMap())
			return utils.FailedResultFrom[int64](insertResult, "invalid_fee", "Fee is invalid").AsHandled()
		}

		return utils.FailedResultFrom[int64](insertResult, "insert_fees", "Error inserting pay in advance fees")
	}

	return insertResult
}
