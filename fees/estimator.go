package fees

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"github.com/getlago/lago/billing-processor/models"
	"github.com/getlago/lago/billing-processor/utils"
)

var (
	errUnsupportedChargeModel = errors.New("unsupported charge model")
	errInvalidUnits           = errors.New("event value is not a number")
)

type EstimateInput struct {
	Charge         *models.Charge
	BillableMetric *models.BillableMetric
	Event          *models.Event
	Subscription   *models.Subscription
	Plan           *models.Plan
	Customer       *models.Customer
}

// Estimator computes the pay in advance fees of a charge for an event,
// without assigning them to an invoice.
type Estimator interface {
	Estimate(ctx context.Context, input EstimateInput) ([]*models.Fee, error)
}

type ComputationError struct {
	ChargeID string
	Err      error
}

func (e *ComputationError) Error() string {
	return fmt.Sprintf("fee computation failed for charge %s: %v", e.ChargeID, e.Err)
}

func (e *ComputationError) Unwrap() error {
	return e.Err
}

// StandardEstimator prices the event units with the unit amount of the
// charge, over the calendar period of the plan containing the event.
type StandardEstimator struct{}

func NewStandardEstimator() *StandardEstimator {
	return &StandardEstimator{}
}

func (e *StandardEstimator) Estimate(ctx context.Context, input EstimateInput) ([]*models.Fee, error) {
	charge := input.Charge

	if charge.ChargeModel != "" && charge.ChargeModel != models.ChargeModelStandard {
		return nil, &ComputationError{ChargeID: charge.ID, Err: fmt.Errorf("%w: %s", errUnsupportedChargeModel, charge.ChargeModel)}
	}

	units, ok, err := eventUnits(input.BillableMetric, input.Event)
	if err != nil {
		return nil, &ComputationError{ChargeID: charge.ID, Err: err}
	}
	if !ok {
		return nil, nil
	}

	unitAmount, err := charge.UnitAmount()
	if err != nil {
		return nil, &ComputationError{ChargeID: charge.ID, Err: err}
	}

	boundaries := ChargeBoundaries(input.Plan.Interval, input.Subscription, input.Event.Timestamp)
	amountCents := units.Mul(unitAmount).Mul(decimal.NewFromInt(100)).Round(0).IntPart()
	eventID := input.Event.ID

	fee := &models.Fee{
		ID:                             uuid.NewString(),
		OrganizationID:                 input.Event.OrganizationID,
		ChargeID:                       charge.ID,
		SubscriptionID:                 input.Subscription.ID,
		FeeType:                        models.FeeTypeCharge,
		PayInAdvance:                   true,
		Units:                          units,
		AmountCents:                    amountCents,
		AmountCurrency:                 input.Plan.BillingCurrency(input.Customer),
		EventsCount:                    1,
		PayInAdvanceEventID:            &eventID,
		PayInAdvanceEventTransactionID: input.Event.TransactionID,
		Properties: datatypes.JSONMap{
			models.FeePropertyChargesFrom: utils.FormatISO8601Milli(boundaries.ChargesFrom),
			models.FeePropertyChargesTo:   utils.FormatISO8601Milli(boundaries.ChargesTo),
		},
	}

	return []*models.Fee{fee}, nil
}

// eventUnits returns false when the event carries no value for the metric.
func eventUnits(bm *models.BillableMetric, event *models.Event) (decimal.Decimal, bool, error) {
	if !bm.AggregationType.RequiresField() {
		return decimal.NewFromInt(1), true, nil
	}

	value, ok := event.PropertyValue(bm.FieldName)
	if !ok {
		return decimal.Zero, false, nil
	}

	var units decimal.Decimal
	var err error

	switch v := value.(type) {
	case float64:
		units = decimal.NewFromFloat(v)
	case int:
		units = decimal.NewFromInt(int64(v))
	case int64:
		units = decimal.NewFromInt(v)
	case string:
		units, err = decimal.NewFromString(v)
	default:
		units, err = decimal.NewFromString(fmt.Sprintf("%v", v))
	}

	if err != nil {
		return decimal.Zero, false, fmt.Errorf("%w: %v", errInvalidUnits, value)
	}

	return units, true, nil
}
