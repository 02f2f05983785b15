package events_processor

import (
	"context"
	"errors"
	"log/slog"

	"github.com/getlago/lago/billing-processor/config/tracing"
	"github.com/getlago/lago/billing-processor/models"
	"github.com/getlago/lago/billing-processor/utils"
)

// PostProcessService runs the billing consequences of a single event.
// Resolution, persistence and cache invalidation share one transaction.
// Deprecation notices and pay in advance tasks wait for the commit.
type PostProcessService struct {
	apiStore       *models.ApiStore
	resolver       *SubscriptionResolver
	cacheService   *CacheService
	refreshService *SubscriptionRefreshService
	payInAdvance   *PayInAdvanceService
	errorReporter  *ErrorReporterService
	logger         *slog.Logger
}

type PostProcessServices struct {
	Resolver       *SubscriptionResolver
	CacheService   *CacheService
	RefreshService *SubscriptionRefreshService
	PayInAdvance   *PayInAdvanceService
	ErrorReporter  *ErrorReporterService
}

func NewPostProcessService(apiStore *models.ApiStore, services PostProcessServices, logger *slog.Logger) *PostProcessService {
	return &PostProcessService{
		apiStore:       apiStore,
		resolver:       services.Resolver,
		cacheService:   services.CacheService,
		refreshService: services.RefreshService,
		payInAdvance:   services.PayInAdvance,
		errorReporter:  services.ErrorReporter,
		logger:         logger,
	}
}

type persistedEvent struct {
	event          *models.Event
	billableMetric *models.BillableMetric
	resolution     *Resolution
}

func (s *PostProcessService) ProcessEvent(ctx context.Context, raw *models.RawEvent) utils.Result[*models.Event] {
	span := tracing.StartSpan(ctx, "PostProcess.ProcessEvent", tracing.WithTag("organization_id", raw.OrganizationID))
	defer span.End()
	ctx = span.GetContext()

	eventResult := raw.ToEvent()
	if eventResult.Failure() {
		return utils.FailedResultFrom[*models.Event](eventResult, "build_event", "Error while converting raw event")
	}
	event := eventResult.Value()

	persistResult := s.persist(ctx, event)
	if persistResult.Failure() {
		span.SetError(persistResult.Error())
		return s.handlePersistFailure(ctx, event, persistResult)
	}
	persisted := persistResult.Value()

	s.resolver.ReportDeprecations(event)

	flagResult := s.refreshService.FlagSubscriptionRefresh(event)
	if flagResult.Failure() {
		s.logger.Warn(
			"Error flagging subscription refresh",
			slog.String("event_id", event.ID),
			slog.String("error", flagResult.ErrorMsg()),
		)
		utils.CaptureErrorResultWithExtra(flagResult, "event_id", event.ID)
	}

	dispatchResult := s.payInAdvance.Dispatch(ctx, event, persisted.resolution.Subscriptions, persisted.billableMetric)
	if dispatchResult.Failure() {
		// The event is committed, reprocessing the record would only hit its transaction id again.
		result := utils.FailedResultWithValue(event, dispatchResult.Error()).
			AddErrorDetails(dispatchResult.ErrorCode(), dispatchResult.ErrorMessage())
		return result.NonRetryable()
	}

	return utils.SuccessResult(event)
}

func (s *PostProcessService) persist(ctx context.Context, event *models.Event) utils.Result[*persistedEvent] {
	var stepFailure utils.Result[*persistedEvent]
	persisted := &persistedEvent{event: event}

	fail := func(r utils.AnyResult, code string, message string) error {
		stepFailure = utils.FailedResultFrom[*persistedEvent](r, code, message)
		return r.Error()
	}

	err := s.apiStore.Transaction(ctx, func(txStore *models.ApiStore) error {
		bmResult := txStore.FetchBillableMetric(event.OrganizationID, event.Code)
		if bmResult.Failure() && !models.IsNotFound(bmResult) {
			return fail(bmResult, "fetch_billable_metric", "Error fetching billable metric")
		}
		persisted.billableMetric = bmResult.Value()

		if persisted.billableMetric != nil {
			expressionResult := EvaluateExpression(event, persisted.billableMetric)
			if expressionResult.Failure() {
				return fail(expressionResult, "evaluate_expression", "Error evaluating custom expression")
			}
		}

		resolutionResult := s.resolver.Resolve(ctx, txStore, event)
		if resolutionResult.Failure() {
			return fail(resolutionResult, resolutionResult.ErrorCode(), resolutionResult.ErrorMessage())
		}
		persisted.resolution = resolutionResult.Value()

		if err := txStore.InsertEvent(event); err != nil {
			return err
		}

		cacheResult := s.cacheService.ExpireCache(ctx, txStore, persisted.resolution.Subscriptions, persisted.billableMetric)
		if cacheResult.Failure() {
			return fail(cacheResult, cacheResult.ErrorCode(), cacheResult.ErrorMessage())
		}

		return nil
	})

	if err == nil {
		return utils.SuccessResult(persisted)
	}

	if stepFailure.Failure() {
		return stepFailure
	}

	return utils.FailedResult[*persistedEvent](err).AddErrorDetails("persist_event", "Error persisting event")
}

func (s *PostProcessService) handlePersistFailure(ctx context.Context, event *models.Event, result utils.Result[*persistedEvent]) utils.Result[*models.Event] {
	err := result.Error()

	var validationErr *models.ValidationError
	switch {
	case errors.Is(err, models.ErrDuplicateTransaction):
		s.errorReporter.Report(ctx, event.OrganizationID, event, map[string]any{
			"transaction_id": []string{"value_already_exist"},
		})
		return utils.FailedResultFrom[*models.Event](result, "duplicate_transaction", "Event transaction_id already processed").AsHandled()

	case errors.As(err, &validationErr):
		s.errorReporter.Report(ctx, event.OrganizationID, event, validationErr.ErrorMap())
		return utils.FailedResultFrom[*models.Event](result, "invalid_event", "Event is invalid").AsHandled()
	}

	return utils.FailedResultFrom[*models.Event](result, result.ErrorCode(), result.ErrorMessage())
}
