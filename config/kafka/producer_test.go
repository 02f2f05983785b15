package kafka

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/twmb/franz-go/pkg/kgo"
)

func TestProducerMessageRecord(t *testing.T) {
	msg := &ProducerMessage{
		Key:   []byte("create_pay_in_advance_fee/charge_1/event_1"),
		Value: []byte(`{"id":"task_1"}`),
		Headers: map[string]string{
			"task_type":  "create_pay_in_advance_fee",
			"error_code": "fee_computation",
		},
	}

	record := msg.record("tasks")

	assert.Equal(t, "tasks", record.Topic)
	assert.Equal(t, msg.Key, record.Key)
	assert.Equal(t, msg.Value, record.Value)
	assert.Equal(t, []kgo.RecordHeader{
		{Key: "error_code", Value: []byte("fee_computation")},
		{Key: "task_type", Value: []byte("create_pay_in_advance_fee")},
	}, record.Headers)

	assert.Empty(t, (&ProducerMessage{Value: []byte("{}")}).record("events").Headers)
}
