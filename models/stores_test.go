package models

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"

	"github.com/getlago/lago/billing-processor/tests"
)

func setupApiStore(t *testing.T) (*ApiStore, sqlmock.Sqlmock, func()) {
	db, mock, delete := tests.SetupMockStore(t)

	store := &ApiStore{
		db: db,
	}

	return store, mock, delete
}

func TestDeprecationKey(t *testing.T) {
	assert.Equal(
		t,
		"deprecation:event_missing_external_subscription_id:org_id:count",
		DeprecationKey(DeprecationMissingSubscriptionID, "org_id", "count"),
	)
}
