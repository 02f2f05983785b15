package invoices_processor

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/getlago/lago/billing-processor/config/tracing"
	"github.com/getlago/lago/billing-processor/fees"
	"github.com/getlago/lago/billing-processor/models"
	"github.com/getlago/lago/billing-processor/utils"
)

type AttachInput struct {
	Charge       *models.Charge
	Event        *models.Event
	Subscription *models.Subscription
	Timestamp    time.Time

	// Invoice is set when a previous attempt already resolved the invoice.
	Invoice *models.Invoice
}

// AccumulatingInvoiceService merges the pay in advance fees of a customer
// into a single open accumulating invoice, until it is finalized.
type AccumulatingInvoiceService struct {
	apiStore      *models.ApiStore
	estimator     fees.Estimator
	errorReporter ErrorReporter
	logger        *slog.Logger

	fetchOpenInvoice func(txStore *models.ApiStore, customerID string) utils.Result[*models.Invoice]
}

func NewAccumulatingInvoiceService(apiStore *models.ApiStore, estimator fees.Estimator, errorReporter ErrorReporter, logger *slog.Logger) *AccumulatingInvoiceService {
	return &AccumulatingInvoiceService{
		apiStore:      apiStore,
		estimator:     estimator,
		errorReporter: errorReporter,
		logger:        logger,

		fetchOpenInvoice: (*models.ApiStore).FetchOpenAccumulatingInvoice,
	}
}

// Attach computes the fees of the charge for the event and attaches them to
// the customer open accumulating invoice, creating it when needed.
// A failed result may carry the invoice the fees were meant for, so that a
// retry attaches to the same invoice.
func (s *AccumulatingInvoiceService) Attach(ctx context.Context, input AttachInput) utils.Result[*models.Invoice] {
	span := tracing.StartSpan(
		ctx,
		"AccumulatingInvoice.Attach",
		tracing.WithTag("charge_id", input.Charge.ID),
		tracing.WithTag("subscription_id", input.Subscription.ID),
	)
	defer span.End()
	ctx = span.GetContext()

	estimateResult := estimateFees(ctx, s.apiStore, s.estimator, input.Charge, input.Event, input.Subscription)
	if estimateResult.Failure() {
		span.SetError(estimateResult.Error())
		return utils.FailedResultFrom[*models.Invoice](estimateResult, estimateResult.ErrorCode(), estimateResult.ErrorMessage())
	}

	estimated := estimateResult.Value()
	if len(estimated) == 0 {
		return utils.SuccessResult(input.Invoice)
	}

	duplicateResult := s.duplicateDelivery(estimated)
	if duplicateResult.Failure() {
		return utils.FailedResultFrom[*models.Invoice](duplicateResult, "fetch_fees", "Error fetching existing fees")
	}
	if duplicate := duplicateResult.Value(); duplicate.found {
		s.logger.Info(
			"Pay in advance fees already exist",
			slog.String("charge_id", input.Charge.ID),
			slog.String("transaction_id", input.Event.TransactionID),
		)
		return utils.SuccessResult(duplicate.invoice)
	}

	invoice := input.Invoice
	if invoice == nil {
		invoiceResult := s.findOrCreateInvoice(ctx, input)
		if invoiceResult.Failure() {
			span.SetError(invoiceResult.Error())
			return invoiceResult
		}
		invoice = invoiceResult.Value()
	}

	attachResult := s.attachFees(ctx, input, invoice, estimated)
	if attachResult.Failure() {
		span.SetError(attachResult.Error())
	}

	return attachResult
}

type duplicate struct {
	found   bool
	invoice *models.Invoice
}

// duplicateDelivery is found when every estimated fee already exists.
func (s *AccumulatingInvoiceService) duplicateDelivery(estimated []*models.Fee) utils.Result[duplicate] {
	var existing *models.Fee

	for _, fee := range estimated {
		feesResult := s.apiStore.FetchPayInAdvanceFees(fee.OrganizationID, fee.ChargeID, fee.PayInAdvanceEventTransactionID)
		if feesResult.Failure() {
			return utils.FailedResult[duplicate](feesResult.Error())
		}

		if len(feesResult.Value()) == 0 {
			return utils.SuccessResult(duplicate{})
		}

		if existing == nil {
			existing = feesResult.Value()[0]
		}
	}

	if existing.InvoiceID == nil {
		return utils.SuccessResult(duplicate{found: true})
	}

	invoiceResult := s.apiStore.FetchInvoice(*existing.InvoiceID)
	if invoiceResult.Failure() {
		return utils.FailedResult[duplicate](invoiceResult.Error())
	}

	return utils.SuccessResult(duplicate{found: true, invoice: invoiceResult.Value()})
}

// findOrCreateInvoice is serialized per customer by the customer row lock.
// The partial unique index on open invoices settles the races the lock
// cannot see.
func (s *AccumulatingInvoiceService) findOrCreateInvoice(ctx context.Context, input AttachInput) utils.Result[*models.Invoice] {
	var invoice *models.Invoice

	err := s.apiStore.Transaction(ctx, func(txStore *models.ApiStore) error {
		customerResult := txStore.LockCustomer(input.Subscription.CustomerID)
		if customerResult.Failure() {
			return customerResult.Error()
		}
		customer := customerResult.Value()

		openResult := s.fetchOpenInvoice(txStore, customer.ID)
		if openResult.Failure() {
			return openResult.Error()
		}
		invoice = openResult.Value()

		if invoice == nil {
			created, err := s.createInvoice(txStore, customer, input)
			switch {
			case errors.Is(err, models.ErrOpenInvoiceExists):
				winnerResult := s.fetchOpenInvoice(txStore, customer.ID)
				if winnerResult.Failure() {
					return winnerResult.Error()
				}
				if winnerResult.Value() == nil {
					return err
				}
				invoice = winnerResult.Value()
			case err != nil:
				return err
			default:
				invoice = created
			}
		}

		return txStore.EnsureInvoiceSubscription(&models.InvoiceSubscription{
			InvoiceID:       invoice.ID,
			SubscriptionID:  input.Subscription.ID,
			InvoicingReason: models.InvoicingReasonInAdvanceCharge,
			Timestamp:       input.Timestamp,
		})
	})

	if err != nil {
		return s.failure(ctx, input, nil, err, "find_or_create_invoice", "Error resolving the open accumulating invoice")
	}

	return utils.SuccessResult(invoice)
}

func (s *AccumulatingInvoiceService) createInvoice(txStore *models.ApiStore, customer *models.Customer, input AttachInput) (*models.Invoice, error) {
	planResult := txStore.FetchPlan(input.Subscription.PlanID)
	if planResult.Failure() {
		return nil, planResult.Error()
	}

	sequenceResult := txStore.NextInvoiceSequentialID(customer.OrganizationID)
	if sequenceResult.Failure() {
		return nil, sequenceResult.Error()
	}
	sequentialID := sequenceResult.Value()

	timestamp := input.Timestamp.UTC()
	invoice := &models.Invoice{
		OrganizationID: customer.OrganizationID,
		CustomerID:     customer.ID,
		SequentialID:   sequentialID,
		Number:         models.InvoiceNumber(sequentialID),
		InvoiceType:    models.InvoiceTypeEndOfPeriodCharge,
		Status:         models.InvoiceStatusOpenAccumulating,
		PaymentStatus:  models.InvoicePaymentStatusPending,
		Currency:       planResult.Value().BillingCurrency(customer),
		IssuingDate:    time.Date(timestamp.Year(), timestamp.Month(), timestamp.Day(), 0, 0, 0, 0, time.UTC),
	}

	if err := txStore.CreateInvoice(invoice); err != nil {
		return nil, err
	}

	s.logger.Info(
		"Open accumulating invoice created",
		slog.String("invoice_id", invoice.ID),
		slog.String("customer_id", customer.ID),
	)

	return invoice, nil
}

// attachFees is all or nothing.
func (s *AccumulatingInvoiceService) attachFees(ctx context.Context, input AttachInput, invoice *models.Invoice, estimated []*models.Fee) utils.Result[*models.Invoice] {
	var attached *models.Invoice

	err := s.apiStore.Transaction(ctx, func(txStore *models.ApiStore) error {
		lockResult := txStore.LockInvoice(invoice.ID)
		if lockResult.Failure() {
			return lockResult.Error()
		}

		locked := lockResult.Value()
		if !locked.IsOpenAccumulating() {
			return models.ErrInvoiceNotOpen
		}

		for _, fee := range estimated {
			fee.InvoiceID = &locked.ID
		}

		insertResult := txStore.InsertFees(estimated)
		if insertResult.Failure() {
			return insertResult.Error()
		}

		sumResult := txStore.SumInvoiceFees(locked.ID)
		if sumResult.Failure() {
			return sumResult.Error()
		}

		locked.FeesAmountCents = sumResult.Value()
		if err := txStore.SaveInvoice(locked); err != nil {
			return err
		}

		attached = locked
		return nil
	})

	if err != nil {
		return s.failure(ctx, input, invoice, err, "attach_fees", "Error attaching fees to the invoice")
	}

	return utils.SuccessResult(attached)
}

func (s *AccumulatingInvoiceService) failure(ctx context.Context, input AttachInput, invoice *models.Invoice, err error, code string, message string) utils.Result[*models.Invoice] {
	var validationErr *models.ValidationError

	switch {
	case errors.As(err, &validationErr):
		s.errorReporter.Report(ctx, input.Event.OrganizationID, input.Event, validationErr.ErrorMap())
		return utils.FailedResult[*models.Invoice](err).AddErrorDetails("invalid_invoice", "Invoice or fee is invalid").AsHandled()

	case errors.Is(err, models.ErrSequenceConflict):
		return utils.FailedResult[*models.Invoice](err).AddErrorDetails("sequence_conflict", "Invoice sequential id already used")

	case errors.Is(err, models.ErrInvoiceNotOpen):
		return utils.FailedResult[*models.Invoice](err).AddErrorDetails("invoice_not_open", "Invoice is no longer open").NonCapturable()

	case errors.Is(err, models.ErrRecordNotFound):
		return utils.FailedResult[*models.Invoice](err).AddErrorDetails(code, message).NonRetryable().NonCapturable()
	}

	return utils.FailedResultWithValue(invoice, err).AddErrorDetails(code, message)
}

// Finalize closes the customer open accumulating invoice. It returns a nil
// invoice when the customer has none.
func (s *AccumulatingInvoiceService) Finalize(ctx context.Context, customerID string, closingAt time.Time) utils.Result[*models.Invoice] {
	span := tracing.StartSpan(ctx, "AccumulatingInvoice.Finalize", tracing.WithTag("customer_id", customerID))
	defer span.End()

	var finalized *models.Invoice

	err := s.apiStore.Transaction(span.GetContext(), func(txStore *models.ApiStore) error {
		customerResult := txStore.LockCustomer(customerID)
		if customerResult.Failure() {
			return customerResult.Error()
		}

		openResult := txStore.FetchOpenAccumulatingInvoice(customerID)
		if openResult.Failure() {
			return openResult.Error()
		}

		if openResult.Value() == nil {
			return nil
		}

		// Attaching fees only locks the invoice row.
		lockResult := txStore.LockInvoice(openResult.Value().ID)
		if lockResult.Failure() {
			return lockResult.Error()
		}

		invoice := lockResult.Value()
		if !invoice.IsOpenAccumulating() {
			return nil
		}

		sumResult := txStore.SumInvoiceFees(invoice.ID)
		if sumResult.Failure() {
			return sumResult.Error()
		}

		invoice.Status = models.InvoiceStatusFinalized
		invoice.FeesAmountCents = sumResult.Value()
		invoice.FinalizedAt = sql.NullTime{Time: closingAt.UTC(), Valid: true}
		if err := txStore.SaveInvoice(invoice); err != nil {
			return err
		}

		finalized = invoice
		return nil
	})

	if err != nil {
		span.SetError(err)
		result := utils.FailedResult[*models.Invoice](err).AddErrorDetails("finalize_invoice", "Error finalizing the open invoice")
		if errors.Is(err, models.ErrRecordNotFound) {
			result = result.NonRetryable().NonCapturable()
		}
		return result
	}

	return utils.SuccessResult(finalized)
}
