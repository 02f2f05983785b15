package models

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/getlago/lago/billing-processor/config/database"
	"github.com/getlago/lago/billing-processor/utils"
)

const ERROR_NOT_FOUND string = "record not found"

var ErrRecordNotFound = gorm.ErrRecordNotFound

type ApiStore struct {
	db *database.DB
}

func NewApiStore(db *database.DB) *ApiStore {
	return &ApiStore{
		db: db,
	}
}

// Transaction runs fn with a store bound to a single database transaction.
// Every query issued through txStore is part of the transaction, which is
// committed when fn returns nil and rolled back otherwise.
// Calling Transaction on a store already bound to a transaction opens a savepoint.
func (store *ApiStore) Transaction(ctx context.Context, fn func(txStore *ApiStore) error) error {
	return store.db.Transaction(ctx, func(tx *database.DB) error {
		return fn(&ApiStore{db: tx})
	})
}

func IsNotFound(result utils.AnyResult) bool {
	return result.Failure() && errors.Is(result.Error(), ErrRecordNotFound)
}

func newID() string {
	return uuid.NewString()
}

func failedStoreResult[T any](err error) utils.Result[T] {
	result := utils.FailedResult[T](err)

	if errors.Is(err, gorm.ErrRecordNotFound) {
		result = result.NonCapturable().NonRetryable()
	}

	return result
}
