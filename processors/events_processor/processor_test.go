package events_processor

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/getlago/lago/billing-processor/models"
	"github.com/getlago/lago/billing-processor/tasks"
	"github.com/getlago/lago/billing-processor/utils"
)

func newRecord(t *testing.T, event *models.RawEvent) *kgo.Record {
	value, err := json.Marshal(event)
	require.NoError(t, err)
	return &kgo.Record{Value: value}
}

func TestProcessEvent(t *testing.T) {
	eventTime := time.Date(2024, 3, 5, 12, 12, 0, 0, time.UTC)

	setup := func(t *testing.T) *testEnv {
		env := setupTestEnv(t)
		env.seed(t, models.AggregationTypeCount)
		env.create(
			t,
			newSubscription("sub_1", "sub_ext", "plan_1", eventTime.AddDate(0, -1, 0), nil),
			newCharge("charge_1", "plan_1", true, true),
			&models.WebhookEndpoint{ID: "wh_1", OrganizationID: testOrganizationID, WebhookURL: "https://example.com/hooks"},
		)
		return env
	}

	t.Run("Persists the event and runs its billing consequences", func(t *testing.T) {
		env := setup(t)

		result := env.service.ProcessEvent(env.ctx, newRawEvent("tr_1", eventTime, map[string]any{}))
		require.True(t, result.Success())

		event := result.Value()
		stored := env.store.FetchEvent(event.ID)
		require.True(t, stored.Success())
		assert.Equal(t, "cus_1", *stored.Value().CustomerID)
		assert.Equal(t, "sub_1", *stored.Value().SubscriptionID)
		assert.True(t, eventTime.Equal(stored.Value().Timestamp))

		assert.Equal(t, 1, env.cacheStore.ExecutionCount)
		assert.Equal(t, 1, env.flagStore.ExecutionCount)
		assert.Equal(t, testOrganizationID+":sub_1", env.flagStore.Key)
		assert.Len(t, env.submitter.TasksOfType(tasks.TaskCreatePayInAdvanceChargeInvoice), 1)
	})

	t.Run("With a duplicated transaction id", func(t *testing.T) {
		env := setup(t)

		first := env.service.ProcessEvent(env.ctx, newRawEvent("tr_1", eventTime, map[string]any{}))
		require.True(t, first.Success())

		second := env.service.ProcessEvent(env.ctx, newRawEvent("tr_1", eventTime, map[string]any{}))
		env.reporter.Wait()

		assert.True(t, second.Failure())
		assert.True(t, second.IsHandled())
		assert.ErrorIs(t, second.Error(), models.ErrDuplicateTransaction)

		count := env.store.CountEvents(testOrganizationID, "tr_1")
		require.True(t, count.Success())
		assert.Equal(t, int64(1), count.Value())

		webhooks := env.submitter.TasksOfType(tasks.TaskSendWebhook)
		require.Len(t, webhooks, 1)
		payload, err := tasks.DecodePayload[tasks.WebhookPayload](webhooks[0])
		require.NoError(t, err)
		assert.Equal(t, tasks.WebhookEventError, payload.WebhookType)
		assert.Equal(t, map[string]any{"error": map[string]any{"transaction_id": []any{"value_already_exist"}}}, payload.Options)

		assert.Len(t, env.submitter.TasksOfType(tasks.TaskCreatePayInAdvanceChargeInvoice), 1)
	})

	t.Run("Counts a missing subscription only for committed events", func(t *testing.T) {
		env := setup(t)
		env.create(t, newSubscription("sub_2", "sub_ext_2", "plan_1", eventTime.AddDate(0, 0, -1), nil))

		raw := newRawEvent("tr_1", eventTime, map[string]any{})
		raw.ExternalSubscriptionID = ""

		first := env.service.ProcessEvent(env.ctx, raw)
		require.True(t, first.Success())
		assert.Equal(t, 1, env.deprecations.ExecutionCount)
		assert.Equal(t, []string{models.DeprecationMissingSubscriptionID}, env.deprecations.Features)

		second := env.service.ProcessEvent(env.ctx, raw)
		env.reporter.Wait()

		assert.True(t, second.IsHandled())
		assert.ErrorIs(t, second.Error(), models.ErrDuplicateTransaction)
		assert.Equal(t, 1, env.deprecations.ExecutionCount)
	})

	t.Run("With an invalid event", func(t *testing.T) {
		env := setup(t)

		result := env.service.ProcessEvent(env.ctx, newRawEvent("", eventTime, map[string]any{}))
		env.reporter.Wait()

		assert.True(t, result.IsHandled())
		webhooks := env.submitter.TasksOfType(tasks.TaskSendWebhook)
		require.Len(t, webhooks, 1)
		payload, err := tasks.DecodePayload[tasks.WebhookPayload](webhooks[0])
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"error": map[string]any{"transaction_id": []any{"value_is_mandatory"}}}, payload.Options)
	})

	t.Run("When the cache cannot be expired", func(t *testing.T) {
		env := setup(t)
		env.cacheStore.ReturnedResult = utils.FailedBoolResult(assert.AnError)

		result := env.service.ProcessEvent(env.ctx, newRawEvent("tr_1", eventTime, map[string]any{}))

		assert.True(t, result.Failure())
		assert.True(t, result.IsRetryable())
		assert.Equal(t, "expire_charge_cache", result.ErrorCode())

		count := env.store.CountEvents(testOrganizationID, "tr_1")
		assert.Equal(t, int64(0), count.Value())
		assert.Empty(t, env.submitter.Tasks())
	})

	t.Run("When the pay in advance dispatch fails", func(t *testing.T) {
		env := setup(t)
		env.submitter.Errors = map[tasks.TaskType]error{tasks.TaskCreatePayInAdvanceChargeInvoice: tasks.ErrSubmitFailed}

		result := env.service.ProcessEvent(env.ctx, newRawEvent("tr_1", eventTime, map[string]any{}))

		assert.True(t, result.Failure())
		assert.False(t, result.IsRetryable())
		assert.Equal(t, "dispatch_pay_in_advance", result.ErrorCode())
		assert.NotNil(t, result.Value())

		count := env.store.CountEvents(testOrganizationID, "tr_1")
		assert.Equal(t, int64(1), count.Value())
	})

	t.Run("When the refresh flag fails", func(t *testing.T) {
		env := setup(t)
		env.flagStore.ReturnedError = assert.AnError

		result := env.service.ProcessEvent(env.ctx, newRawEvent("tr_1", eventTime, map[string]any{}))

		assert.True(t, result.Success())
		assert.Len(t, env.submitter.TasksOfType(tasks.TaskCreatePayInAdvanceChargeInvoice), 1)
	})

	t.Run("With an invalid timestamp", func(t *testing.T) {
		env := setup(t)
		raw := newRawEvent("tr_1", eventTime, map[string]any{})
		raw.Timestamp = "not a timestamp"

		result := env.service.ProcessEvent(env.ctx, raw)

		assert.True(t, result.Failure())
		assert.False(t, result.IsRetryable())
		assert.Equal(t, "build_event", result.ErrorCode())
	})
}

func TestProcessEvents(t *testing.T) {
	eventTime := time.Date(2024, 3, 5, 12, 12, 0, 0, time.UTC)

	setup := func(t *testing.T) *testEnv {
		env := setupTestEnv(t)
		env.seed(t, models.AggregationTypeCount)
		env.create(t, newSubscription("sub_1", "sub_ext", "plan_1", eventTime.AddDate(0, -1, 0), nil))
		return env
	}

	t.Run("Commits processed and handled records", func(t *testing.T) {
		env := setup(t)

		records := []*kgo.Record{
			newRecord(t, newRawEvent("tr_1", eventTime, nil)),
			newRecord(t, newRawEvent("tr_2", eventTime, nil)),
			newRecord(t, newRawEvent("tr_1", eventTime.Add(time.Minute), nil)),
			{Value: []byte("not json")},
		}

		processed := env.processor.ProcessEvents(env.ctx, records)
		env.reporter.Wait()

		assert.Len(t, processed, 4)
		assert.Equal(t, 0, env.deadLetter.Count())
		assert.Equal(t, int64(1), env.store.CountEvents(testOrganizationID, "tr_1").Value())
		assert.Equal(t, int64(1), env.store.CountEvents(testOrganizationID, "tr_2").Value())
	})

	t.Run("Skips events already post processed by the API", func(t *testing.T) {
		env := setup(t)
		raw := newRawEvent("tr_1", eventTime, nil)
		raw.Source = models.HTTP_RUBY
		raw.SourceMetadata = &models.SourceMetadata{ApiPostProcess: true}

		processed := env.processor.ProcessEvents(env.ctx, []*kgo.Record{newRecord(t, raw)})

		assert.Len(t, processed, 1)
		assert.Equal(t, int64(0), env.store.CountEvents(testOrganizationID, "tr_1").Value())
	})

	t.Run("Keeps recent retryable failures uncommitted", func(t *testing.T) {
		env := setup(t)
		env.create(t, newCharge("charge_1", "plan_1", false, false))
		env.cacheStore.ReturnedResult = utils.FailedBoolResult(assert.AnError)

		raw := newRawEvent("tr_1", eventTime, nil)
		raw.IngestedAt = utils.CustomTime(time.Now())

		processed := env.processor.ProcessEvents(env.ctx, []*kgo.Record{newRecord(t, raw)})

		assert.Empty(t, processed)
		assert.Equal(t, 0, env.deadLetter.Count())
	})

	t.Run("Pushes old retryable failures to the dead letter queue", func(t *testing.T) {
		env := setup(t)
		env.create(t, newCharge("charge_1", "plan_1", false, false))
		env.cacheStore.ReturnedResult = utils.FailedBoolResult(assert.AnError)

		raw := newRawEvent("tr_1", eventTime, nil)
		raw.IngestedAt = utils.CustomTime(time.Now().Add(-13 * time.Hour))

		processed := env.processor.ProcessEvents(env.ctx, []*kgo.Record{newRecord(t, raw)})

		assert.Len(t, processed, 1)
		require.Equal(t, 1, env.deadLetter.Count())

		failed := models.FailedEvent{}
		require.NoError(t, json.Unmarshal(env.deadLetter.Value, &failed))
		assert.Equal(t, "tr_1", failed.Event.TransactionID)
		assert.Equal(t, "expire_charge_cache", failed.ErrorCode)
	})
}
