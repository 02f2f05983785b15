package events_processor

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/getlago/lago/billing-processor/config/tracing"
	"github.com/getlago/lago/billing-processor/models"
	"github.com/getlago/lago/billing-processor/utils"
)

// Retryable failures are reprocessed until the event is this old,
// then pushed to the dead letter queue.
const RetryWindow = 12 * time.Hour

type EventProcessor struct {
	logger             *slog.Logger
	PostProcessService *PostProcessService
	ProducerService    *EventProducerService
}

func NewEventProcessor(logger *slog.Logger, postProcessService *PostProcessService, producerService *EventProducerService) *EventProcessor {
	return &EventProcessor{
		logger:             logger,
		PostProcessService: postProcessService,
		ProducerService:    producerService,
	}
}

// ProcessEvents returns the records that can be committed.
func (processor *EventProcessor) ProcessEvents(ctx context.Context, records []*kgo.Record) []*kgo.Record {
	span := tracing.StartSpan(ctx, "PostProcess.ProcessEvents")
	span.SetAttribute("records.length", len(records))
	defer span.End()
	ctx = span.GetContext()

	wg := sync.WaitGroup{}
	wg.Add(len(records))

	var mu sync.Mutex
	processedRecords := make([]*kgo.Record, 0)

	for _, record := range records {
		go func(record *kgo.Record) {
			defer wg.Done()

			if processor.processRecord(ctx, record) {
				mu.Lock()
				processedRecords = append(processedRecords, record)
				mu.Unlock()
			}
		}(record)
	}

	wg.Wait()

	return processedRecords
}

func (processor *EventProcessor) processRecord(ctx context.Context, record *kgo.Record) bool {
	sp := tracing.StartSpan(ctx, "PostProcess.ProcessOneEvent")
	defer sp.End()

	event := models.RawEvent{}
	err := json.Unmarshal(record.Value, &event)
	if err != nil {
		processor.logger.Error("Error unmarshalling message", slog.String("error", err.Error()))
		utils.CaptureError(err)

		// If we fail to unmarshal the record, we should commit it as it will failed forever
		return true
	}

	if !event.NotAPIPostProcessed() {
		return true
	}

	result := processor.PostProcessService.ProcessEvent(sp.GetContext(), &event)
	if result.Success() || result.IsHandled() {
		return true
	}

	sp.SetError(result.Error())
	processor.logger.Error(
		result.ErrorMessage(),
		slog.String("error_code", result.ErrorCode()),
		slog.String("error", result.ErrorMsg()),
		slog.String("transaction_id", event.TransactionID),
	)

	if result.IsCapturable() {
		utils.CaptureErrorResultWithExtra(result, "event", event)
	}

	if result.IsRetryable() && time.Since(event.IngestedAt.Time()) < RetryWindow {
		// The record is not committed and will be consumed again
		return false
	}

	processor.ProducerService.ProduceToDeadLetterQueue(ctx, event, result)
	return true
}
