package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/getlago/lago/billing-processor/utils"
)

type PlanInterval int

const (
	PlanIntervalWeekly PlanInterval = iota
	PlanIntervalMonthly
	PlanIntervalYearly
	PlanIntervalQuarterly
)

func (i PlanInterval) String() string {
	switch i {
	case PlanIntervalWeekly:
		return "weekly"
	case PlanIntervalMonthly:
		return "monthly"
	case PlanIntervalYearly:
		return "yearly"
	case PlanIntervalQuarterly:
		return "quarterly"
	}

	return ""
}

type Plan struct {
	ID             string `gorm:"primaryKey"`
	OrganizationID string `gorm:"index;not null"`
	Code           string
	Interval       PlanInterval
	AmountCurrency string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	DeletedAt      gorm.DeletedAt `gorm:"index"`
}

// BillingCurrency is the currency of the fees and invoices of the plan. It
// falls back to the customer currency when the plan has none.
func (p *Plan) BillingCurrency(customer *Customer) string {
	if p.AmountCurrency != "" || customer == nil {
		return p.AmountCurrency
	}

	return customer.Currency
}

func (store *ApiStore) FetchPlan(id string) utils.Result[*Plan] {
	var plan Plan
	result := store.db.Connection.First(&plan, "id = ?", id)
	if result.Error != nil {
		return failedStoreResult[*Plan](result.Error)
	}

	return utils.SuccessResult(&plan)
}
