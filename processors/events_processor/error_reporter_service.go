package events_processor

import (
	"context"
	"log/slog"
	"sync"

	"github.com/getlago/lago/billing-processor/config/tracing"
	"github.com/getlago/lago/billing-processor/models"
	"github.com/getlago/lago/billing-processor/tasks"
	"github.com/getlago/lago/billing-processor/utils"
)

// ErrorReporterService turns processing failures into event.error webhooks
// for the organizations listening to them.
type ErrorReporterService struct {
	apiStore  *models.ApiStore
	submitter tasks.Submitter
	logger    *slog.Logger

	wg sync.WaitGroup
}

func NewErrorReporterService(apiStore *models.ApiStore, submitter tasks.Submitter, logger *slog.Logger) *ErrorReporterService {
	return &ErrorReporterService{
		apiStore:  apiStore,
		submitter: submitter,
		logger:    logger,
	}
}

// Report never fails. It must not be called from within a database
// transaction as the endpoints lookup uses its own connection.
func (s *ErrorReporterService) Report(ctx context.Context, organizationID string, event *models.Event, errorPayload map[string]any) {
	span := tracing.StartSpan(ctx, "ErrorReporter.Report")
	defer span.End()

	endpointsResult := s.apiStore.HasWebhookEndpoints(organizationID)
	if endpointsResult.Failure() {
		s.logger.Error(
			"Error fetching webhook endpoints",
			slog.String("organization_id", organizationID),
			slog.String("error", endpointsResult.ErrorMsg()),
		)
		utils.CaptureError(endpointsResult.Error())
		return
	}

	if !endpointsResult.Value() {
		return
	}

	task, err := tasks.NewTask(tasks.TaskSendWebhook, organizationID, tasks.WebhookPayload{
		WebhookType: tasks.WebhookEventError,
		Object:      event,
		Options:     map[string]any{"error": errorPayload},
	})
	if err != nil {
		s.logger.Error("Error building event error webhook", slog.String("error", err.Error()))
		utils.CaptureError(err)
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		if err := s.submitter.Submit(context.WithoutCancel(ctx), task); err != nil {
			s.logger.Error(
				"Error sending event error webhook",
				slog.String("organization_id", organizationID),
				slog.String("error", err.Error()),
			)
			utils.CaptureError(err)
		}
	}()
}

// Wait blocks until the pending webhooks are submitted.
func (s *ErrorReporterService) Wait() {
	s.wg.Wait()
}
