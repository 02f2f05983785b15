package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPlanBillingCurrency(t *testing.T) {
	customer := &Customer{ID: "cus_id", Currency: "USD"}

	assert.Equal(t, "EUR", (&Plan{AmountCurrency: "EUR"}).BillingCurrency(customer))
	assert.Equal(t, "USD", (&Plan{}).BillingCurrency(customer))
	assert.Equal(t, "", (&Plan{}).BillingCurrency(nil))
}
