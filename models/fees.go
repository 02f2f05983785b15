package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm/clause"

	"github.com/getlago/lago/billing-processor/utils"
)

type FeeType string

const FeeTypeCharge FeeType = "charge"

const (
	FeePropertyChargesFrom = "charges_from_datetime"
	FeePropertyChargesTo   = "charges_to_datetime"
)

type Fee struct {
	ID                             string            `gorm:"primaryKey" json:"lago_id"`
	OrganizationID                 string            `gorm:"uniqueIndex:index_fees_on_pay_in_advance_event_transaction_id,priority:1;not null" json:"organization_id" validate:"required"`
	ChargeID                       string            `gorm:"uniqueIndex:index_fees_on_pay_in_advance_event_transaction_id,priority:2;not null" json:"lago_charge_id" validate:"required"`
	PayInAdvanceEventTransactionID string            `gorm:"uniqueIndex:index_fees_on_pay_in_advance_event_transaction_id,priority:3;not null" json:"pay_in_advance_event_transaction_id" validate:"required"`
	SubscriptionID                 string            `gorm:"index;not null" json:"lago_subscription_id" validate:"required"`
	InvoiceID                      *string           `gorm:"index" json:"lago_invoice_id"`
	PayInAdvanceEventID            *string           `json:"pay_in_advance_event_id"`
	FeeType                        FeeType           `gorm:"not null" json:"fee_type" validate:"oneof=charge"`
	PayInAdvance                   bool              `json:"pay_in_advance"`
	Units                          decimal.Decimal   `gorm:"type:decimal(30,10)" json:"units"`
	AmountCents                    int64             `json:"amount_cents" validate:"gte=0"`
	AmountCurrency                 string            `json:"amount_currency" validate:"required,len=3"`
	EventsCount                    int               `json:"events_count"`
	Properties                     datatypes.JSONMap `json:"properties"`
	CreatedAt                      time.Time         `json:"created_at"`
	UpdatedAt                      time.Time         `json:"updated_at"`
}

func (fee *Fee) ChargesFrom() string {
	value, _ := fee.Properties[FeePropertyChargesFrom].(string)
	return value
}

func (fee *Fee) ChargesTo() string {
	value, _ := fee.Properties[FeePropertyChargesTo].(string)
	return value
}

// FetchPayInAdvanceFees looks fees up by their de-duplication key.
func (store *ApiStore) FetchPayInAdvanceFees(organizationID string, chargeID string, transactionID string) utils.Result[[]*Fee] {
	var fees []*Fee
	result := store.db.Connection.
		Where(
			"organization_id = ? AND charge_id = ? AND pay_in_advance_event_transaction_id = ?",
			organizationID, chargeID, transactionID,
		).
		Find(&fees)
	if result.Error != nil {
		return utils.FailedResult[[]*Fee](result.Error)
	}

	return utils.SuccessResult(fees)
}

// InsertFees creates the fees, skipping the ones whose de-duplication key
// already exists. It returns the number of created fees.
func (store *ApiStore) InsertFees(fees []*Fee) utils.Result[int64] {
	if len(fees) == 0 {
		return utils.SuccessResult[int64](0)
	}

	for _, fee := range fees {
		if fee.ID == "" {
			fee.ID = newID()
		}

		if err := Validate(fee); err != nil {
			return utils.FailedResult[int64](err).NonRetryable().NonCapturable()
		}
	}

	result := store.db.Connection.
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&fees)
	if result.Error != nil {
		return utils.FailedResult[int64](result.Error)
	}

	return utils.SuccessResult(result.RowsAffected)
}

func (store *ApiStore) FetchInvoiceFees(invoiceID string) utils.Result[[]*Fee] {
	var fees []*Fee
	result := store.db.Connection.
		Where("invoice_id = ?", invoiceID).
		Order("created_at ASC").
		Find(&fees)
	if result.Error != nil {
		return utils.FailedResult[[]*Fee](result.Error)
	}

	return utils.SuccessResult(fees)
}

func (store *ApiStore) SumInvoiceFees(invoiceID string) utils.Result[int64] {
	var total int64
	result := store.db.Connection.
		Model(&Fee{}).
		Select("COALESCE(SUM(amount_cents), 0)").
		Where("invoice_id = ?", invoiceID).
		Scan(&total)
	if result.Error != nil {
		return utils.FailedResult[int64](result.Error)
	}

	return utils.SuccessResult(total)
}
