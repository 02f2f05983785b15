package events_processor

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/getlago/lago/billing-processor/config/kafka"
	"github.com/getlago/lago/billing-processor/models"
	"github.com/getlago/lago/billing-processor/utils"
)

type EventProducerService struct {
	deadLetterProducer kafka.MessageProducer
	logger             *slog.Logger
}

func NewEventProducerService(deadLetterProducer kafka.MessageProducer, logger *slog.Logger) *EventProducerService {
	return &EventProducerService{
		deadLetterProducer: deadLetterProducer,
		logger:             logger,
	}
}

func (eps *EventProducerService) ProduceToDeadLetterQueue(ctx context.Context, event models.RawEvent, errorResult utils.AnyResult) {
	failedEvent := models.FailedEvent{
		Event:               event,
		InitialErrorMessage: errorResult.ErrorMsg(),
		ErrorCode:           errorResult.ErrorCode(),
		ErrorMessage:        errorResult.ErrorMessage(),
		FailedAt:            time.Now(),
	}

	eventJson, err := json.Marshal(failedEvent)
	if err != nil {
		eps.logger.Error("error while marshaling failed event with error details")
		utils.CaptureError(err)
		return
	}

	pushed := eps.deadLetterProducer.Produce(ctx, &kafka.ProducerMessage{
		Key:     []byte(event.OrganizationID + "-" + event.TransactionID),
		Value:   eventJson,
		Headers: map[string]string{"error_code": errorResult.ErrorCode()},
	})

	if !pushed {
		eps.logger.Error("error while pushing to dead letter topic", slog.String("topic", eps.deadLetterProducer.GetTopic()))
		utils.CaptureErrorResultWithExtra(errorResult, "event", event)
	}
}
