package invoices_processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"golang.org/x/sync/errgroup"

	"github.com/getlago/lago/billing-processor/config/kafka"
	"github.com/getlago/lago/billing-processor/config/tracing"
	"github.com/getlago/lago/billing-processor/models"
	"github.com/getlago/lago/billing-processor/tasks"
	"github.com/getlago/lago/billing-processor/utils"
)

var errUnknownTaskType = errors.New("unknown task type")

type TaskProcessorConfig struct {
	MaxConcurrency int
	MaxAttempts    int
}

type TaskProcessor struct {
	logger             *slog.Logger
	apiStore           *models.ApiStore
	invoiceService     *AccumulatingInvoiceService
	feeService         *PayInAdvanceFeeService
	submitter          tasks.Submitter
	deadLetterProducer kafka.MessageProducer
	config             TaskProcessorConfig
}

func NewTaskProcessor(logger *slog.Logger, apiStore *models.ApiStore, invoiceService *AccumulatingInvoiceService, feeService *PayInAdvanceFeeService, submitter tasks.Submitter, deadLetterProducer kafka.MessageProducer, config TaskProcessorConfig) *TaskProcessor {
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = 10
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 5
	}

	return &TaskProcessor{
		logger:             logger,
		apiStore:           apiStore,
		invoiceService:     invoiceService,
		feeService:         feeService,
		submitter:          submitter,
		deadLetterProducer: deadLetterProducer,
		config:             config,
	}
}

// ProcessTasks returns the records that can be committed. Retryable
// failures are submitted again as a new attempt of the task.
func (p *TaskProcessor) ProcessTasks(ctx context.Context, records []*kgo.Record) []*kgo.Record {
	span := tracing.StartSpan(ctx, "Tasks.ProcessTasks")
	span.SetAttribute("records.length", len(records))
	defer span.End()
	ctx = span.GetContext()

	var mu sync.Mutex
	processedRecords := make([]*kgo.Record, 0, len(records))

	var g errgroup.Group
	g.SetLimit(p.config.MaxConcurrency)

	for _, record := range records {
		g.Go(func() error {
			if p.processRecord(ctx, record) {
				mu.Lock()
				processedRecords = append(processedRecords, record)
				mu.Unlock()
			}
			return nil
		})
	}

	_ = g.Wait()

	return processedRecords
}

func (p *TaskProcessor) processRecord(ctx context.Context, record *kgo.Record) bool {
	task := tasks.Task{}
	if err := json.Unmarshal(record.Value, &task); err != nil {
		p.logger.Error("Error unmarshalling task", slog.String("error", err.Error()))
		utils.CaptureError(err)
		return true
	}

	sp := tracing.StartSpan(ctx, "Tasks.ProcessTask", tracing.WithTag("task.type", string(task.Type)))
	defer sp.End()

	outcome := p.processTask(sp.GetContext(), task)
	if outcome.result.Success() || outcome.result.IsHandled() {
		return true
	}

	result := outcome.result
	sp.SetError(result.Error())
	p.logger.Error(
		result.ErrorMessage(),
		slog.String("error_code", result.ErrorCode()),
		slog.String("error", result.ErrorMsg()),
		slog.String("task_id", task.ID),
		slog.String("task_type", string(task.Type)),
		slog.Int("attempts", task.Attempts),
	)

	if result.IsCapturable() {
		utils.CaptureErrorResultWithExtra(result, "task", task)
	}

	if result.IsRetryable() && task.Attempts+1 < p.config.MaxAttempts {
		retry, err := task.Retry(outcome.retryPayload)
		if err == nil {
			err = p.submitter.Submit(ctx, retry)
		}

		if err != nil {
			p.logger.Error("Error resubmitting task", slog.String("task_id", task.ID), slog.String("error", err.Error()))
			// The record is consumed again
			return false
		}

		return true
	}

	p.produceToDeadLetterQueue(ctx, task, result)
	return true
}

type taskOutcome struct {
	result       utils.AnyResult
	retryPayload any
}

func (p *TaskProcessor) processTask(ctx context.Context, task tasks.Task) taskOutcome {
	switch task.Type {
	case tasks.TaskCreatePayInAdvanceChargeInvoice:
		return p.attachChargeInvoice(ctx, task)
	case tasks.TaskCreatePayInAdvanceFee:
		return p.createFee(ctx, task)
	}

	err := fmt.Errorf("%w: %s", errUnknownTaskType, task.Type)
	result := utils.FailedResult[bool](err).AddErrorDetails("unknown_task_type", "Task type is not handled").NonRetryable()
	return taskOutcome{result: result}
}

func (p *TaskProcessor) attachChargeInvoice(ctx context.Context, task tasks.Task) taskOutcome {
	payload, err := tasks.DecodePayload[tasks.PayInAdvancePayload](task)
	if err != nil {
		return taskOutcome{result: utils.FailedBoolResult(err).AddErrorDetails("decode_payload", "Invalid task payload").NonRetryable()}
	}

	loadResult := p.load(payload)
	if loadResult.Failure() {
		return taskOutcome{result: loadResult, retryPayload: payload}
	}
	loaded := loadResult.Value()

	result := p.invoiceService.Attach(ctx, AttachInput{
		Charge:       loaded.charge,
		Event:        loaded.event,
		Subscription: loaded.subscription,
		Timestamp:    payload.Timestamp,
		Invoice:      loaded.invoice,
	})

	payload.InvoiceID = ""
	if result.Failure() && result.Value() != nil {
		payload.InvoiceID = result.Value().ID
	}

	return taskOutcome{result: result, retryPayload: payload}
}

func (p *TaskProcessor) createFee(ctx context.Context, task tasks.Task) taskOutcome {
	payload, err := tasks.DecodePayload[tasks.PayInAdvancePayload](task)
	if err != nil {
		return taskOutcome{result: utils.FailedBoolResult(err).AddErrorDetails("decode_payload", "Invalid task payload").NonRetryable()}
	}

	loadResult := p.load(payload)
	if loadResult.Failure() {
		return taskOutcome{result: loadResult, retryPayload: payload}
	}
	loaded := loadResult.Value()

	result := p.feeService.Create(ctx, FeeInput{
		Charge:       loaded.charge,
		Event:        loaded.event,
		Subscription: loaded.subscription,
	})

	return taskOutcome{result: result, retryPayload: payload}
}

type taskRecords struct {
	charge       *models.Charge
	event        *models.Event
	subscription *models.Subscription
	invoice      *models.Invoice
}

func (p *TaskProcessor) load(payload tasks.PayInAdvancePayload) utils.Result[*taskRecords] {
	loaded := &taskRecords{}

	chargeResult := p.apiStore.FetchCharge(payload.ChargeID)
	if chargeResult.Failure() {
		return utils.FailedResultFrom[*taskRecords](chargeResult, "fetch_charge", "Error fetching charge")
	}
	loaded.charge = chargeResult.Value()

	eventResult := p.apiStore.FetchEvent(payload.EventID)
	if eventResult.Failure() {
		return utils.FailedResultFrom[*taskRecords](eventResult, "fetch_event", "Error fetching event")
	}
	loaded.event = eventResult.Value()

	subscriptionResult := p.apiStore.FetchSubscription(payload.SubscriptionID)
	if subscriptionResult.Failure() {
		return utils.FailedResultFrom[*taskRecords](subscriptionResult, "fetch_subscription", "Error fetching subscription")
	}
	loaded.subscription = subscriptionResult.Value()

	if payload.InvoiceID != "" {
		invoiceResult := p.apiStore.FetchInvoice(payload.InvoiceID)
		if invoiceResult.Failure() {
			return utils.FailedResultFrom[*taskRecords](invoiceResult, "fetch_invoice", "Error fetching invoice")
		}
		loaded.invoice = invoiceResult.Value()
	}

	return utils.SuccessResult(loaded)
}

func (p *TaskProcessor) produceToDeadLetterQueue(ctx context.Context, task tasks.Task, errorResult utils.AnyResult) {
	failedTask := tasks.FailedTask{
		Task:                task,
		InitialErrorMessage: errorResult.ErrorMsg(),
		ErrorCode:           errorResult.ErrorCode(),
		ErrorMessage:        errorResult.ErrorMessage(),
		FailedAt:            time.Now(),
	}

	value, err := json.Marshal(failedTask)
	if err != nil {
		p.logger.Error("error while marshaling failed task with error details")
		utils.CaptureError(err)
		return
	}

	pushed := p.deadLetterProducer.Produce(ctx, &kafka.ProducerMessage{
		Key:     []byte(task.Key()),
		Value:   value,
		Headers: map[string]string{"error_code": errorResult.ErrorCode()},
	})

	if !pushed {
		p.logger.Error("error while pushing to dead letter topic", slog.String("topic", p.deadLetterProducer.GetTopic()))
		utils.CaptureErrorResultWithExtra(errorResult, "task", task)
	}
}
