package events_processor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getlago/lago/billing-processor/models"
	"github.com/getlago/lago/billing-processor/tasks"
)

func TestErrorReporterReport(t *testing.T) {
	event := &models.Event{ID: "event_1", OrganizationID: testOrganizationID, TransactionID: "tr_1", Code: "api_calls"}

	t.Run("Without webhook endpoint", func(t *testing.T) {
		env := setupTestEnv(t)

		env.reporter.Report(env.ctx, testOrganizationID, event, map[string]any{"transaction_id": []string{"value_already_exist"}})
		env.reporter.Wait()

		assert.Empty(t, env.submitter.Tasks())
	})

	t.Run("With a webhook endpoint", func(t *testing.T) {
		env := setupTestEnv(t)
		env.create(t, &models.WebhookEndpoint{ID: "wh_1", OrganizationID: testOrganizationID, WebhookURL: "https://example.com/hooks"})

		env.reporter.Report(env.ctx, testOrganizationID, event, map[string]any{"transaction_id": []string{"value_already_exist"}})
		env.reporter.Wait()

		webhooks := env.submitter.TasksOfType(tasks.TaskSendWebhook)
		require.Len(t, webhooks, 1)
		assert.Equal(t, testOrganizationID, webhooks[0].OrganizationID)
		assert.JSONEq(
			t,
			`{
				"webhook_type": "event.error",
				"object": {
					"lago_id": "event_1",
					"organization_id": "1a901a90-1a90-1a90-1a90-1a901a901a90",
					"transaction_id": "tr_1",
					"lago_customer_id": null,
					"lago_subscription_id": null,
					"external_customer_id": "",
					"external_subscription_id": "",
					"code": "api_calls",
					"timestamp": "0001-01-01T00:00:00Z",
					"properties": null,
					"created_at": "0001-01-01T00:00:00Z"
				},
				"options": {"error": {"transaction_id": ["value_already_exist"]}}
			}`,
			string(webhooks[0].Payload),
		)
	})

	t.Run("When the submission fails", func(t *testing.T) {
		env := setupTestEnv(t)
		env.create(t, &models.WebhookEndpoint{ID: "wh_1", OrganizationID: testOrganizationID, WebhookURL: "https://example.com/hooks"})
		env.submitter.Errors = map[tasks.TaskType]error{tasks.TaskSendWebhook: tasks.ErrSubmitFailed}

		assert.NotPanics(t, func() {
			env.reporter.Report(env.ctx, testOrganizationID, event, map[string]any{})
			env.reporter.Wait()
		})
		assert.Empty(t, env.submitter.Tasks())
	})
}
