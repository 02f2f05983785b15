package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/getlago/lago/billing-processor/utils"
)

type AggregationType int

const (
	AggregationTypeCount AggregationType = iota
	AggregationTypeSum
	AggregationTypeMax
	AggregationTypeUniqueCount
	_
	AggregationTypeWeightedSum
	AggregationTypeLatest
	AggregationTypeCustom
)

func (t AggregationType) String() string {
	aggType := ""

	switch t {
	case AggregationTypeCount:
		aggType = "count"
	case AggregationTypeSum:
		aggType = "sum"
	case AggregationTypeMax:
		aggType = "max"
	case AggregationTypeUniqueCount:
		aggType = "unique_count"
	case AggregationTypeWeightedSum:
		aggType = "weighted_sum"
	case AggregationTypeLatest:
		aggType = "latest"
	case AggregationTypeCustom:
		aggType = "custom"
	}

	return aggType
}

// RequiresField is false for aggregations computed without reading a
// property of the event.
func (t AggregationType) RequiresField() bool {
	return t != AggregationTypeCount && t != AggregationTypeCustom
}

type BillableMetric struct {
	ID              string `gorm:"primaryKey"`
	OrganizationID  string `gorm:"index;not null"`
	Code            string `gorm:"not null"`
	AggregationType AggregationType
	FieldName       string
	Expression      string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	DeletedAt       gorm.DeletedAt `gorm:"index"`
}

func (store *ApiStore) FetchBillableMetric(organizationID string, code string) utils.Result[*BillableMetric] {
	var bm BillableMetric
	result := store.db.Connection.First(&bm, "organization_id = ? AND code = ?", organizationID, code)
	if result.Error != nil {
		return failedStoreResult[*BillableMetric](result.Error)
	}

	return utils.SuccessResult(&bm)
}

func (store *ApiStore) FetchBillableMetricByID(id string) utils.Result[*BillableMetric] {
	var bm BillableMetric
	result := store.db.Connection.First(&bm, "id = ?", id)
	if result.Error != nil {
		return failedStoreResult[*BillableMetric](result.Error)
	}

	return utils.SuccessResult(&bm)
}
