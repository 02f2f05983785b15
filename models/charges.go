package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/getlago/lago/billing-processor/utils"
)

type ChargeModel string

const ChargeModelStandard ChargeModel = "standard"

type Charge struct {
	ID               string `gorm:"primaryKey" json:"lago_id"`
	OrganizationID   string `gorm:"index;not null" json:"organization_id"`
	PlanID           string `gorm:"index;not null" json:"lago_plan_id"`
	BillableMetricID string `gorm:"index;not null" json:"lago_billable_metric_id"`
	ChargeModel      ChargeModel       `json:"charge_model"`
	PayInAdvance     bool              `json:"pay_in_advance"`
	Invoiceable      bool              `json:"invoiceable"`
	Properties       datatypes.JSONMap `json:"properties"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
	DeletedAt        gorm.DeletedAt    `gorm:"index" json:"-"`
}

// UnitAmount returns the unit price stored in the `amount` property.
func (c *Charge) UnitAmount() (decimal.Decimal, error) {
	raw, ok := c.Properties["amount"]
	if !ok || raw == nil {
		return decimal.Zero, fmt.Errorf("charge %s has no amount property", c.ID)
	}

	switch amount := raw.(type) {
	case string:
		return decimal.NewFromString(amount)
	case float64:
		return decimal.NewFromFloat(amount), nil
	default:
		return decimal.NewFromString(fmt.Sprintf("%v", amount))
	}
}

func (store *ApiStore) FetchCharge(id string) utils.Result[*Charge] {
	var charge Charge
	result := store.db.Connection.First(&charge, "id = ?", id)
	if result.Error != nil {
		return failedStoreResult[*Charge](result.Error)
	}

	return utils.SuccessResult(&charge)
}

// FetchChargesForPlans returns the charges of the billable metric defined on any of the plans.
func (store *ApiStore) FetchChargesForPlans(billableMetricID string, planIDs []string) utils.Result[[]*Charge] {
	var charges []*Charge
	if len(planIDs) == 0 {
		return utils.SuccessResult(charges)
	}

	result := store.db.Connection.
		Where("billable_metric_id = ? AND plan_id IN ?", billableMetricID, planIDs).
		Order("created_at ASC").
		Find(&charges)
	if result.Error != nil {
		return utils.FailedResult[[]*Charge](result.Error)
	}

	return utils.SuccessResult(charges)
}

func (store *ApiStore) FetchPayInAdvanceCharges(planID string, billableMetricID string) utils.Result[[]*Charge] {
	var charges []*Charge
	result := store.db.Connection.
		Where("plan_id = ? AND billable_metric_id = ? AND pay_in_advance = ?", planID, billableMetricID, true).
		Order("created_at ASC").
		Find(&charges)
	if result.Error != nil {
		return utils.FailedResult[[]*Charge](result.Error)
	}

	return utils.SuccessResult(charges)
}
