package models

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/getlago/lago/billing-processor/utils"
)

type Customer struct {
	ID             string `gorm:"primaryKey"`
	OrganizationID string `gorm:"index;not null"`
	ExternalID     string `gorm:"index;not null"`
	Currency       string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	DeletedAt      gorm.DeletedAt `gorm:"index"`
}

func (store *ApiStore) FetchCustomer(id string) utils.Result[*Customer] {
	var customer Customer
	result := store.db.Connection.First(&customer, "id = ?", id)
	if result.Error != nil {
		return failedStoreResult[*Customer](result.Error)
	}

	return utils.SuccessResult(&customer)
}

func (store *ApiStore) FetchCustomerByExternalID(organizationID string, externalID string) utils.Result[*Customer] {
	var customer Customer
	result := store.db.Connection.
		First(&customer, "organization_id = ? AND external_id = ?", organizationID, externalID)
	if result.Error != nil {
		return failedStoreResult[*Customer](result.Error)
	}

	return utils.SuccessResult(&customer)
}

// LockCustomer takes a row lock on the customer until the end of the
// current transaction. It serializes the work done on the customer
// open invoice.
func (store *ApiStore) LockCustomer(id string) utils.Result[*Customer] {
	var customer Customer
	result := store.db.Connection.
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&customer, "id = ?", id)
	if result.Error != nil {
		return failedStoreResult[*Customer](result.Error)
	}

	return utils.SuccessResult(&customer)
}
