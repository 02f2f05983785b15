package tasks

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type TaskType string

const (
	TaskCreatePayInAdvanceFee           TaskType = "create_pay_in_advance_fee"
	TaskCreatePayInAdvanceChargeInvoice TaskType = "create_pay_in_advance_charge_invoice"
	TaskSendWebhook                     TaskType = "send_webhook"
)

const WebhookEventError = "event.error"

// Task is the message exchanged on the tasks topics. Payload holds the
// json encoded payload matching the task type.
type Task struct {
	ID             string          `json:"id"`
	Type           TaskType        `json:"type"`
	OrganizationID string          `json:"organization_id"`
	Payload        json.RawMessage `json:"payload"`
	Attempts       int             `json:"attempts"`
	EnqueuedAt     time.Time       `json:"enqueued_at"`
}

// PayInAdvancePayload is carried by both pay in advance task types.
// InvoiceID is only set when a previous attempt already resolved the invoice.
type PayInAdvancePayload struct {
	ChargeID       string    `json:"charge_id"`
	EventID        string    `json:"event_id"`
	SubscriptionID string    `json:"subscription_id"`
	Timestamp      time.Time `json:"timestamp"`
	InvoiceID      string    `json:"invoice_id,omitempty"`
}

type WebhookPayload struct {
	WebhookType string         `json:"webhook_type"`
	Object      any            `json:"object"`
	Options     map[string]any `json:"options,omitempty"`
}

func NewTask(taskType TaskType, organizationID string, payload any) (Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Task{}, err
	}

	return Task{
		ID:             uuid.NewString(),
		Type:           taskType,
		OrganizationID: organizationID,
		Payload:        data,
		EnqueuedAt:     time.Now().UTC(),
	}, nil
}

func DecodePayload[P any](task Task) (P, error) {
	var payload P
	if err := json.Unmarshal(task.Payload, &payload); err != nil {
		return payload, fmt.Errorf("invalid %s payload: %w", task.Type, err)
	}

	return payload, nil
}

// Retry returns a copy of the task for a new attempt, with an updated payload.
func (t Task) Retry(payload any) (Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Task{}, err
	}

	retry := t
	retry.Payload = data
	retry.Attempts++
	return retry, nil
}

// Key is the message key of the task. Pay in advance tasks are keyed by their
// charge and event so that duplicates land on the same partition.
func (t Task) Key() string {
	switch t.Type {
	case TaskCreatePayInAdvanceFee, TaskCreatePayInAdvanceChargeInvoice:
		payload, err := DecodePayload[PayInAdvancePayload](t)
		if err == nil {
			return fmt.Sprintf("%s/%s/%s", t.Type, payload.ChargeID, payload.EventID)
		}
	}

	return fmt.Sprintf("%s/%s", t.Type, t.ID)
}

// FailedTask is the dead letter message of a task.
type FailedTask struct {
	Task                Task      `json:"task"`
	InitialErrorMessage string    `json:"initial_error_message"`
	ErrorMessage        string    `json:"error_message"`
	ErrorCode           string    `json:"error_code"`
	FailedAt            time.Time `json:"failed_at"`
}
