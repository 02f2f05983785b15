package models

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

const pgUniqueViolationCode = "23505"

var (
	ErrDuplicateTransaction = errors.New("transaction_id already exists for the organization")
	ErrSequenceConflict     = errors.New("invoice sequential_id already used for the organization")
	ErrInvoiceNotOpen       = errors.New("invoice is no longer open for accumulation")
	ErrOpenInvoiceExists    = errors.New("an open accumulating invoice already exists for the customer")
)

// ValidationError holds field level messages, keyed by the json field name.
type ValidationError struct {
	Messages map[string][]string
}

func (e *ValidationError) Error() string {
	fields := make([]string, 0, len(e.Messages))
	for field := range e.Messages {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	parts := make([]string, 0, len(fields))
	for _, field := range fields {
		parts = append(parts, fmt.Sprintf("%s: %s", field, strings.Join(e.Messages[field], ", ")))
	}

	return "validation failed: " + strings.Join(parts, "; ")
}

// ErrorMap is the payload shape expected by event.error webhooks.
func (e *ValidationError) ErrorMap() map[string]any {
	errorMap := make(map[string]any, len(e.Messages))
	for field, messages := range e.Messages {
		errorMap[field] = messages
	}
	return errorMap
}

type uniqueIndex struct {
	name    string
	table   string
	columns []string
}

var (
	eventsTransactionIndex = uniqueIndex{
		name:    "index_events_on_organization_id_and_transaction_id",
		table:   "events",
		columns: []string{"organization_id", "transaction_id"},
	}
	feesPayInAdvanceIndex = uniqueIndex{
		name:    "index_fees_on_pay_in_advance_event_transaction_id",
		table:   "fees",
		columns: []string{"organization_id", "charge_id", "pay_in_advance_event_transaction_id"},
	}
	invoicesOpenAccumulatingIndex = uniqueIndex{
		name:    "index_invoices_on_customer_id_open_accumulating",
		table:   "invoices",
		columns: []string{"customer_id"},
	}
	invoicesSequentialIDIndex = uniqueIndex{
		name:    "index_invoices_on_organization_id_and_sequential_id",
		table:   "invoices",
		columns: []string{"organization_id", "sequential_id"},
	}
)

// violatedBy reports whether err is a unique violation of the index.
// Postgres errors are matched on the constraint name, sqlite ones on the
// qualified column list of the message.
func (idx uniqueIndex) violatedBy(err error) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolationCode && pgErr.ConstraintName == idx.name
	}

	qualified := make([]string, 0, len(idx.columns))
	for _, column := range idx.columns {
		qualified = append(qualified, idx.table+"."+column)
	}

	message := err.Error()
	if strings.Contains(message, "UNIQUE constraint failed: "+strings.Join(qualified, ", ")) {
		return true
	}

	return errors.Is(err, gorm.ErrDuplicatedKey) && strings.Contains(message, idx.name)
}
