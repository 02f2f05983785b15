package models

import (
	"time"

	"github.com/getlago/lago/billing-processor/utils"
)

type Organization struct {
	ID        string `gorm:"primaryKey"`
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type WebhookEndpoint struct {
	ID             string `gorm:"primaryKey"`
	OrganizationID string `gorm:"index;not null"`
	WebhookURL     string `gorm:"not null"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (store *ApiStore) HasWebhookEndpoints(organizationID string) utils.Result[bool] {
	var count int64
	result := store.db.Connection.
		Model(&WebhookEndpoint{}).
		Where("organization_id = ?", organizationID).
		Count(&count)
	if result.Error != nil {
		return utils.FailedBoolResult(result.Error)
	}

	return utils.SuccessResult(count > 0)
}
