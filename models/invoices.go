package models

import (
	"database/sql"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/getlago/lago/billing-processor/utils"
)

type InvoiceType string
type InvoiceStatus string
type InvoicePaymentStatus string
type InvoicingReason string

const (
	InvoiceTypeEndOfPeriodCharge InvoiceType = "end_of_period_charge"

	InvoiceStatusOpenAccumulating InvoiceStatus = "open_accumulating"
	InvoiceStatusFinalized        InvoiceStatus = "finalized"

	InvoicePaymentStatusPending   InvoicePaymentStatus = "pending"
	InvoicePaymentStatusSucceeded InvoicePaymentStatus = "succeeded"
	InvoicePaymentStatusFailed    InvoicePaymentStatus = "failed"

	InvoicingReasonInAdvanceCharge InvoicingReason = "in_advance_charge"
)

type Invoice struct {
	ID              string               `gorm:"primaryKey" json:"lago_id"`
	OrganizationID  string               `gorm:"uniqueIndex:index_invoices_on_organization_id_and_sequential_id,priority:1;not null" json:"organization_id" validate:"required"`
	SequentialID    int64                `gorm:"uniqueIndex:index_invoices_on_organization_id_and_sequential_id,priority:2;not null" json:"sequential_id" validate:"gt=0"`
	CustomerID      string               `gorm:"index;not null" json:"lago_customer_id" validate:"required"`
	InvoiceType     InvoiceType          `gorm:"not null" json:"invoice_type" validate:"oneof=end_of_period_charge"`
	Status          InvoiceStatus        `gorm:"not null" json:"status" validate:"oneof=open_accumulating finalized"`
	PaymentStatus   InvoicePaymentStatus `gorm:"not null" json:"payment_status" validate:"oneof=pending succeeded failed"`
	Currency        string               `json:"currency" validate:"required,len=3"`
	Number          string               `json:"number"`
	IssuingDate     time.Time            `json:"issuing_date"`
	FeesAmountCents int64                `json:"fees_amount_cents" validate:"gte=0"`
	FinalizedAt     sql.NullTime         `json:"-"`
	CreatedAt       time.Time            `json:"created_at"`
	UpdatedAt       time.Time            `json:"updated_at"`
}

type InvoiceSubscription struct {
	ID              string          `gorm:"primaryKey"`
	InvoiceID       string          `gorm:"uniqueIndex:index_invoice_subscriptions_on_invoice_id_and_subscription_id,priority:1;not null"`
	SubscriptionID  string          `gorm:"uniqueIndex:index_invoice_subscriptions_on_invoice_id_and_subscription_id,priority:2;not null"`
	InvoicingReason InvoicingReason `gorm:"not null"`
	Timestamp       time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (invoice *Invoice) IsOpenAccumulating() bool {
	return invoice.Status == InvoiceStatusOpenAccumulating
}

func InvoiceNumber(sequentialID int64) string {
	return fmt.Sprintf("INV-%06d", sequentialID)
}

func (store *ApiStore) FetchInvoice(id string) utils.Result[*Invoice] {
	var invoice Invoice
	result := store.db.Connection.First(&invoice, "id = ?", id)
	if result.Error != nil {
		return failedStoreResult[*Invoice](result.Error)
	}

	return utils.SuccessResult(&invoice)
}

// FetchOpenAccumulatingInvoice returns a nil invoice when the customer has
// no open accumulating invoice.
func (store *ApiStore) FetchOpenAccumulatingInvoice(customerID string) utils.Result[*Invoice] {
	var invoices []*Invoice
	result := store.db.Connection.
		Where("customer_id = ? AND status = ?", customerID, InvoiceStatusOpenAccumulating).
		Limit(1).
		Find(&invoices)
	if result.Error != nil {
		return utils.FailedResult[*Invoice](result.Error)
	}

	if len(invoices) == 0 {
		return utils.SuccessResult[*Invoice](nil)
	}

	return utils.SuccessResult(invoices[0])
}

func (store *ApiStore) LockInvoice(id string) utils.Result[*Invoice] {
	var invoice Invoice
	result := store.db.Connection.
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&invoice, "id = ?", id)
	if result.Error != nil {
		return failedStoreResult[*Invoice](result.Error)
	}

	return utils.SuccessResult(&invoice)
}

func (store *ApiStore) NextInvoiceSequentialID(organizationID string) utils.Result[int64] {
	var current int64
	result := store.db.Connection.
		Model(&Invoice{}).
		Select("COALESCE(MAX(sequential_id), 0)").
		Where("organization_id = ?", organizationID).
		Scan(&current)
	if result.Error != nil {
		return utils.FailedResult[int64](result.Error)
	}

	return utils.SuccessResult(current + 1)
}

// CreateInvoice inserts the invoice inside a savepoint so that a unique
// violation leaves the enclosing transaction usable.
// Violations of the open invoice index and of the sequence index are
// returned as ErrOpenInvoiceExists and ErrSequenceConflict.
func (store *ApiStore) CreateInvoice(invoice *Invoice) error {
	if invoice.ID == "" {
		invoice.ID = newID()
	}

	if err := Validate(invoice); err != nil {
		return err
	}

	err := store.db.Connection.Transaction(func(tx *gorm.DB) error {
		return tx.Create(invoice).Error
	})

	switch {
	case err == nil:
		return nil
	case invoicesOpenAccumulatingIndex.violatedBy(err):
		return fmt.Errorf("%w: customer %s", ErrOpenInvoiceExists, invoice.CustomerID)
	case invoicesSequentialIDIndex.violatedBy(err):
		return fmt.Errorf("%w: %d", ErrSequenceConflict, invoice.SequentialID)
	default:
		return err
	}
}

func (store *ApiStore) SaveInvoice(invoice *Invoice) error {
	if err := Validate(invoice); err != nil {
		return err
	}

	return store.db.Connection.Save(invoice).Error
}

// EnsureInvoiceSubscription links the subscription to the invoice when the
// link does not exist yet.
func (store *ApiStore) EnsureInvoiceSubscription(link *InvoiceSubscription) error {
	if link.ID == "" {
		link.ID = newID()
	}

	return store.db.Connection.
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(link).
		Error
}

func (store *ApiStore) FetchInvoiceSubscriptions(invoiceID string) utils.Result[[]*InvoiceSubscription] {
	var links []*InvoiceSubscription
	result := store.db.Connection.
		Where("invoice_id = ?", invoiceID).
		Find(&links)
	if result.Error != nil {
		return utils.FailedResult[[]*InvoiceSubscription](result.Error)
	}

	return utils.SuccessResult(links)
}

func (store *ApiStore) CountCustomerInvoices(customerID string) utils.Result[int64] {
	var count int64
	result := store.db.Connection.
		Model(&Invoice{}).
		Where("customer_id = ?", customerID).
		Count(&count)
	if result.Error != nil {
		return utils.FailedResult[int64](result.Error)
	}

	return utils.SuccessResult(count)
}
