package models

import (
	"fmt"

	"github.com/getlago/lago/billing-processor/config/database"
)

// Migrate creates the tables used by the processor. The production schema is
// owned by the API, this is used for local setups and tests.
func Migrate(db *database.DB) error {
	err := db.Connection.AutoMigrate(
		&Organization{},
		&WebhookEndpoint{},
		&Customer{},
		&Plan{},
		&Subscription{},
		&BillableMetric{},
		&Charge{},
		&Event{},
		&Fee{},
		&Invoice{},
		&InvoiceSubscription{},
	)
	if err != nil {
		return err
	}

	// At most one open accumulating invoice per customer
	openInvoiceIndex := fmt.Sprintf(
		"CREATE UNIQUE INDEX IF NOT EXISTS %s ON invoices (customer_id) WHERE status = '%s'",
		invoicesOpenAccumulatingIndex.name,
		InvoiceStatusOpenAccumulating,
	)

	return db.Connection.Exec(openInvoiceIndex).Error
}
