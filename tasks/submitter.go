package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/getlago/lago/billing-processor/config/kafka"
	"github.com/getlago/lago/billing-processor/config/tracing"
)

var ErrSubmitFailed = errors.New("task could not be pushed")

type Submitter interface {
	Submit(ctx context.Context, task Task) error
}

// KafkaSubmitter pushes tasks to kafka. Webhook tasks go to their own topic,
// consumed by the webhook delivery workers.
type KafkaSubmitter struct {
	tasksProducer    kafka.MessageProducer
	webhooksProducer kafka.MessageProducer
}

func NewKafkaSubmitter(tasksProducer kafka.MessageProducer, webhooksProducer kafka.MessageProducer) *KafkaSubmitter {
	return &KafkaSubmitter{
		tasksProducer:    tasksProducer,
		webhooksProducer: webhooksProducer,
	}
}

func (s *KafkaSubmitter) Submit(ctx context.Context, task Task) error {
	span := tracing.StartSpan(ctx, "Tasks.Submit", tracing.WithTag("task.type", string(task.Type)))
	defer span.End()

	value, err := json.Marshal(task)
	if err != nil {
		span.SetError(err)
		return err
	}

	producer := s.tasksProducer
	if task.Type == TaskSendWebhook {
		producer = s.webhooksProducer
	}

	pushed := producer.Produce(span.GetContext(), &kafka.ProducerMessage{
		Key:   []byte(task.Key()),
		Value: value,
		Headers: map[string]string{
			"task_type":       string(task.Type),
			"organization_id": task.OrganizationID,
		},
	})
	if !pushed {
		err := fmt.Errorf("%w: %s to %s", ErrSubmitFailed, task.Type, producer.GetTopic())
		span.SetError(err)
		return err
	}

	return nil
}
