package models

import (
	"encoding/json"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToEvent(t *testing.T) {
	t.Run("With unix timestamp", func(t *testing.T) {
		expectedTime, _ := time.Parse(time.RFC3339, "2025-03-03T13:03:29Z")

		rawEvent := RawEvent{
			OrganizationID:         "1a901a90-1a90-1a90-1a90-1a901a901a90",
			ExternalSubscriptionID: "sub_id",
			TransactionID:          "tr_id",
			Code:                   "api_calls",
			Properties:             map[string]any{"value": "12.12"},
			Timestamp:              1741007009.123,
		}

		result := rawEvent.ToEvent()
		require.True(t, result.Success())

		event := result.Value()
		assert.NotEmpty(t, event.ID)
		assert.Equal(t, rawEvent.OrganizationID, event.OrganizationID)
		assert.Equal(t, rawEvent.ExternalSubscriptionID, event.ExternalSubscriptionID)
		assert.Equal(t, rawEvent.TransactionID, event.TransactionID)
		assert.Equal(t, rawEvent.Code, event.Code)
		assert.Equal(t, "12.12", event.Properties["value"])
		assert.Equal(t, expectedTime, event.Timestamp)
		assert.Nil(t, event.CustomerID)
		assert.Nil(t, event.SubscriptionID)
	})

	t.Run("With RFC 3339 timestamp", func(t *testing.T) {
		rawEvent := RawEvent{
			OrganizationID: "1a901a90-1a90-1a90-1a90-1a901a901a90",
			Code:           "api_calls",
			Timestamp:      "2024-03-15T10:00:00.250Z",
		}

		result := rawEvent.ToEvent()
		require.True(t, result.Success())
		assert.Equal(t, "2024-03-15T10:00:00Z", result.Value().Timestamp.Format(time.RFC3339Nano))
	})

	t.Run("With unsupported time format", func(t *testing.T) {
		rawEvent := RawEvent{
			OrganizationID: "1a901a90-1a90-1a90-1a90-1a901a901a90",
			Code:           "api_calls",
			Timestamp:      "yesterday",
		}

		result := rawEvent.ToEvent()
		assert.False(t, result.Success())
		assert.Equal(t, "strconv.ParseFloat: parsing \"yesterday\": invalid syntax", result.ErrorMsg())
		assert.False(t, result.Retryable)
	})

	t.Run("With a json payload", func(t *testing.T) {
		payload := `{"organization_id":"org_id","external_customer_id":"cus_id","transaction_id":"tr_id","code":"api_calls","timestamp":1710496800,"properties":{"value":1}}`

		var rawEvent RawEvent
		require.NoError(t, json.Unmarshal([]byte(payload), &rawEvent))

		result := rawEvent.ToEvent()
		require.True(t, result.Success())

		event := result.Value()
		assert.Equal(t, "cus_id", event.ExternalCustomerID)
		assert.Equal(t, "", event.ExternalSubscriptionID)
		assert.Equal(t, "2024-03-15T10:00:00Z", event.Timestamp.Format(time.RFC3339))
		assert.Equal(t, float64(1), event.Properties["value"])
	})
}

func TestNotAPIPostProcessed(t *testing.T) {
	t.Run("When event source is not HTTP_RUBY", func(t *testing.T) {
		event := RawEvent{
			Source: "REDPANDA_CONNECT",
		}

		assert.True(t, event.NotAPIPostProcessed())
	})

	t.Run("When event source is HTTP_RUBY without source metadata", func(t *testing.T) {
		event := RawEvent{
			Source: HTTP_RUBY,
		}

		assert.True(t, event.NotAPIPostProcessed())
	})

	t.Run("When event source is HTTP_RUBY with source metadata", func(t *testing.T) {
		event := RawEvent{
			Source: HTTP_RUBY,
			SourceMetadata: &SourceMetadata{
				ApiPostProcess: true,
			},
		}
		assert.False(t, event.NotAPIPostProcessed())

		event.SourceMetadata.ApiPostProcess = false
		assert.True(t, event.NotAPIPostProcessed())
	})
}

func TestPropertyValue(t *testing.T) {
	event := Event{
		Properties: map[string]any{
			"value": "12",
			"empty": "",
			"null":  nil,
			"zero":  0,
			"blank": " \t\n",
			"false": false,
			"true":  true,
			"list":  []any{},
			"hash":  map[string]any{},
			"items": []any{"a"},
		},
	}

	value, ok := event.PropertyValue("value")
	assert.True(t, ok)
	assert.Equal(t, "12", value)

	_, ok = event.PropertyValue("empty")
	assert.False(t, ok)

	_, ok = event.PropertyValue("null")
	assert.False(t, ok)

	_, ok = event.PropertyValue("missing")
	assert.False(t, ok)

	value, ok = event.PropertyValue("zero")
	assert.True(t, ok)
	assert.Equal(t, 0, value)

	for _, field := range []string{"blank", "false", "list", "hash"} {
		_, ok = event.PropertyValue(field)
		assert.False(t, ok, field)
	}

	value, ok = event.PropertyValue("true")
	assert.True(t, ok)
	assert.Equal(t, true, value)

	value, ok = event.PropertyValue("items")
	assert.True(t, ok)
	assert.Equal(t, []any{"a"}, value)
}

func TestCountEvents(t *testing.T) {
	store, mock, cleanup := setupApiStore(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT count(*) FROM "events" WHERE organization_id = $1 AND transaction_id = $2`)).
		WithArgs("org_id", "tr_id").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	result := store.CountEvents("org_id", "tr_id")

	assert.True(t, result.Success())
	assert.Equal(t, int64(1), result.Value())
	assert.NoError(t, mock.ExpectationsWereMet())
}
