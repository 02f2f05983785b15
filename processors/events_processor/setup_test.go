package events_processor

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/getlago/lago/billing-processor/config/database"
	"github.com/getlago/lago/billing-processor/models"
	"github.com/getlago/lago/billing-processor/tests"
)

const testOrganizationID = "1a901a90-1a90-1a90-1a90-1a901a901a90"

type testEnv struct {
	ctx          context.Context
	db           *database.DB
	store        *models.ApiStore
	cacheStore   *tests.MockCacheStore
	flagStore    *tests.MockFlagStore
	deprecations *tests.MockDeprecationStore
	submitter    *tests.MockSubmitter
	deadLetter   *tests.MockMessageProducer
	reporter     *ErrorReporterService
	service      *PostProcessService
	processor    *EventProcessor
}

func setupTestEnv(t *testing.T) *testEnv {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))

	db, cleanup := tests.SetupSQLiteStore(t)
	t.Cleanup(cleanup)
	require.NoError(t, models.Migrate(db))

	env := &testEnv{
		ctx:          context.Background(),
		db:           db,
		store:        models.NewApiStore(db),
		cacheStore:   &tests.MockCacheStore{},
		flagStore:    &tests.MockFlagStore{},
		deprecations: &tests.MockDeprecationStore{},
		submitter:    &tests.MockSubmitter{},
		deadLetter:   &tests.MockMessageProducer{},
	}

	env.reporter = NewErrorReporterService(env.store, env.submitter, logger)
	env.service = NewPostProcessService(env.store, PostProcessServices{
		Resolver:       NewSubscriptionResolver(env.deprecations, logger),
		CacheService:   NewCacheService(models.NewChargeCache(env.cacheStore)),
		RefreshService: NewSubscriptionRefreshService(env.flagStore),
		PayInAdvance:   NewPayInAdvanceService(env.store, env.submitter, logger),
		ErrorReporter:  env.reporter,
	}, logger)
	env.processor = NewEventProcessor(logger, env.service, NewEventProducerService(env.deadLetter, logger))

	return env
}

func (env *testEnv) create(t *testing.T, records ...any) {
	for _, record := range records {
		require.NoError(t, env.db.Connection.Create(record).Error)
	}
}

type fixtures struct {
	customer *models.Customer
	plan     *models.Plan
	bm       *models.BillableMetric
}

func (env *testEnv) seed(t *testing.T, aggregation models.AggregationType) fixtures {
	f := fixtures{
		customer: &models.Customer{ID: "cus_1", OrganizationID: testOrganizationID, ExternalID: "customer_ext", Currency: "EUR"},
		plan:     &models.Plan{ID: "plan_1", OrganizationID: testOrganizationID, Code: "premium", Interval: models.PlanIntervalMonthly, AmountCurrency: "EUR"},
		bm: &models.BillableMetric{
			ID:              "bm_1",
			OrganizationID:  testOrganizationID,
			Code:            "api_calls",
			AggregationType: aggregation,
			FieldName:       "api_requests",
		},
	}

	env.create(t, &models.Organization{ID: testOrganizationID, Name: "Lago"}, f.customer, f.plan, f.bm)
	return f
}

func newSubscription(id string, externalID string, planID string, startedAt time.Time, terminatedAt *time.Time) *models.Subscription {
	sub := &models.Subscription{
		ID:             id,
		OrganizationID: testOrganizationID,
		CustomerID:     "cus_1",
		PlanID:         planID,
		ExternalID:     externalID,
		StartedAt:      sql.NullTime{Time: startedAt, Valid: true},
	}

	if terminatedAt != nil {
		sub.TerminatedAt = sql.NullTime{Time: *terminatedAt, Valid: true}
	}

	return sub
}

func newCharge(id string, planID string, payInAdvance bool, invoiceable bool) *models.Charge {
	return &models.Charge{
		ID:               id,
		OrganizationID:   testOrganizationID,
		PlanID:           planID,
		BillableMetricID: "bm_1",
		ChargeModel:      models.ChargeModelStandard,
		PayInAdvance:     payInAdvance,
		Invoiceable:      invoiceable,
		Properties:       datatypes.JSONMap{"amount": "1.10"},
		UpdatedAt:        time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	}
}

func newRawEvent(transactionID string, timestamp time.Time, properties map[string]any) *models.RawEvent {
	return &models.RawEvent{
		OrganizationID:         testOrganizationID,
		ExternalCustomerID:     "customer_ext",
		ExternalSubscriptionID: "sub_ext",
		TransactionID:          transactionID,
		Code:                   "api_calls",
		Properties:             properties,
		Timestamp:              float64(timestamp.Unix()),
	}
}

func ptr[T any](value T) *T {
	return &value
}
