package models

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"gorm.io/datatypes"

	"github.com/getlago/lago/billing-processor/utils"
)

const HTTP_RUBY string = "http_ruby"

// RawEvent is the payload consumed from the raw events topic.
type RawEvent struct {
	OrganizationID         string           `json:"organization_id"`
	ExternalCustomerID     string           `json:"external_customer_id,omitempty"`
	ExternalSubscriptionID string           `json:"external_subscription_id,omitempty"`
	TransactionID          string           `json:"transaction_id"`
	Code                   string           `json:"code"`
	Properties             map[string]any   `json:"properties"`
	Source                 string           `json:"source,omitempty"`
	Timestamp              any              `json:"timestamp"`
	SourceMetadata         *SourceMetadata  `json:"source_metadata,omitempty"`
	IngestedAt             utils.CustomTime `json:"ingested_at"`
}

type SourceMetadata struct {
	ApiPostProcess bool `json:"api_post_processed"`
}

type Event struct {
	ID                     string            `gorm:"primaryKey" json:"lago_id"`
	OrganizationID         string            `gorm:"uniqueIndex:index_events_on_organization_id_and_transaction_id,priority:1;not null" json:"organization_id" validate:"required"`
	TransactionID          string            `gorm:"uniqueIndex:index_events_on_organization_id_and_transaction_id,priority:2;not null" json:"transaction_id" validate:"required"`
	CustomerID             *string           `gorm:"index" json:"lago_customer_id"`
	SubscriptionID         *string           `gorm:"index" json:"lago_subscription_id"`
	ExternalCustomerID     string            `json:"external_customer_id"`
	ExternalSubscriptionID string            `json:"external_subscription_id"`
	Code                   string            `gorm:"not null" json:"code" validate:"required"`
	Timestamp              time.Time         `gorm:"not null" json:"timestamp" validate:"required"`
	Properties             datatypes.JSONMap `json:"properties"`
	CreatedAt              time.Time         `json:"created_at"`
	UpdatedAt              time.Time         `json:"-"`
}

type FailedEvent struct {
	Event               RawEvent  `json:"event"`
	InitialErrorMessage string    `json:"initial_error_message"`
	ErrorMessage        string    `json:"error_message"`
	ErrorCode           string    `json:"error_code"`
	FailedAt            time.Time `json:"failed_at"`
}

// ToEvent builds the record persisted for a raw event.
// The timestamp is kept at second precision.
func (ev *RawEvent) ToEvent() utils.Result[*Event] {
	timeResult := eventTime(ev.Timestamp)
	if timeResult.Failure() {
		return utils.FailedResult[*Event](timeResult.Error()).NonRetryable()
	}

	properties := datatypes.JSONMap{}
	for key, value := range ev.Properties {
		properties[key] = value
	}

	event := &Event{
		ID:                     newID(),
		OrganizationID:         ev.OrganizationID,
		TransactionID:          ev.TransactionID,
		ExternalCustomerID:     ev.ExternalCustomerID,
		ExternalSubscriptionID: ev.ExternalSubscriptionID,
		Code:                   ev.Code,
		Timestamp:              utils.TruncateToSecond(timeResult.Value()),
		Properties:             properties,
	}

	return utils.SuccessResult(event)
}

// NotAPIPostProcessed is false when the API already ran the post processing
// of the event before pushing it to the topic.
func (ev *RawEvent) NotAPIPostProcessed() bool {
	if ev.Source != HTTP_RUBY {
		return true
	}

	return ev.SourceMetadata == nil || !ev.SourceMetadata.ApiPostProcess
}

func (ev *Event) HasSubscription() bool {
	return ev.ExternalSubscriptionID != ""
}

// PropertyValue returns false when the property is missing or blank.
func (ev *Event) PropertyValue(fieldName string) (any, bool) {
	value, ok := ev.Properties[fieldName]
	if !ok || isBlank(value) {
		return nil, false
	}

	return value, true
}

// isBlank matches nil, false, whitespace strings and empty collections.
func isBlank(value any) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(v) == ""
	case bool:
		return !v
	}

	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() == 0
	case reflect.Pointer, reflect.Interface:
		return rv.IsNil()
	}

	return false
}

func (store *ApiStore) InsertEvent(event *Event) error {
	if err := Validate(event); err != nil {
		return err
	}

	err := store.db.Connection.Create(event).Error
	if eventsTransactionIndex.violatedBy(err) {
		return fmt.Errorf("%w: %s", ErrDuplicateTransaction, event.TransactionID)
	}

	return err
}

func (store *ApiStore) FetchEvent(id string) utils.Result[*Event] {
	var event Event
	result := store.db.Connection.First(&event, "id = ?", id)
	if result.Error != nil {
		return failedStoreResult[*Event](result.Error)
	}

	return utils.SuccessResult(&event)
}

func (store *ApiStore) CountEvents(organizationID string, transactionID string) utils.Result[int64] {
	var count int64
	result := store.db.Connection.
		Model(&Event{}).
		Where("organization_id = ? AND transaction_id = ?", organizationID, transactionID).
		Count(&count)
	if result.Error != nil {
		return utils.FailedResult[int64](result.Error)
	}

	return utils.SuccessResult(count)
}

// Timestamps are accepted as unix timestamps (number or numeric string)
// or as RFC 3339 strings.
func eventTime(timestamp any) utils.Result[time.Time] {
	if str, ok := timestamp.(string); ok {
		if t, err := time.Parse(time.RFC3339Nano, str); err == nil {
			return utils.SuccessResult(t.UTC())
		}
	}

	return utils.ToTime(timestamp)
}
