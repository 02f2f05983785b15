package invoices_processor

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/getlago/lago/billing-processor/config/database"
	"github.com/getlago/lago/billing-processor/fees"
	"github.com/getlago/lago/billing-processor/models"
	"github.com/getlago/lago/billing-processor/tests"
)

const testOrganizationID = "1a901a90-1a90-1a90-1a90-1a901a901a90"

type mockEstimator struct {
	mock.Mock
}

func (m *mockEstimator) Estimate(ctx context.Context, input fees.EstimateInput) ([]*models.Fee, error) {
	args := m.Called(ctx, input)
	estimated, _ := args.Get(0).([]*models.Fee)
	return estimated, args.Error(1)
}

type reportedError struct {
	organizationID string
	event          *models.Event
	payload        map[string]any
}

type mockErrorReporter struct {
	mu      sync.Mutex
	reports []reportedError
}

func (r *mockErrorReporter) Report(ctx context.Context, organizationID string, event *models.Event, errorPayload map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.reports = append(r.reports, reportedError{organizationID: organizationID, event: event, payload: errorPayload})
}

func (r *mockErrorReporter) Reports() []reportedError {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]reportedError(nil), r.reports...)
}

type testEnv struct {
	ctx        context.Context
	db         *database.DB
	store      *models.ApiStore
	reporter   *mockErrorReporter
	submitter  *tests.MockSubmitter
	deadLetter *tests.MockMessageProducer
	logger     *slog.Logger

	customer     *models.Customer
	plan         *models.Plan
	bm           *models.BillableMetric
	subscription *models.Subscription
	charge       *models.Charge
}

func setupTestEnv(t *testing.T) *testEnv {
	db, cleanup := tests.SetupSQLiteStore(t)
	t.Cleanup(cleanup)
	require.NoError(t, models.Migrate(db))

	env := &testEnv{
		ctx:        context.Background(),
		db:         db,
		store:      models.NewApiStore(db),
		reporter:   &mockErrorReporter{},
		submitter:  &tests.MockSubmitter{},
		deadLetter: &tests.MockMessageProducer{},
		logger:     slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn})),

		customer: &models.Customer{ID: "cus_1", OrganizationID: testOrganizationID, ExternalID: "customer_ext", Currency: "EUR"},
		plan:     &models.Plan{ID: "plan_1", OrganizationID: testOrganizationID, Code: "premium", Interval: models.PlanIntervalMonthly, AmountCurrency: "EUR"},
		bm:       &models.BillableMetric{ID: "bm_1", OrganizationID: testOrganizationID, Code: "api_calls", AggregationType: models.AggregationTypeCount},
		subscription: &models.Subscription{
			ID:             "sub_1",
			OrganizationID: testOrganizationID,
			CustomerID:     "cus_1",
			PlanID:         "plan_1",
			ExternalID:     "sub_ext",
			StartedAt:      sql.NullTime{Time: time.Date(2024, 3, 5, 12, 12, 0, 0, time.UTC), Valid: true},
		},
		charge: &models.Charge{
			ID:               "charge_1",
			OrganizationID:   testOrganizationID,
			PlanID:           "plan_1",
			BillableMetricID: "bm_1",
			ChargeModel:      models.ChargeModelStandard,
			PayInAdvance:     true,
			Invoiceable:      true,
			Properties:       datatypes.JSONMap{"amount": "1.10"},
		},
	}

	env.create(t,
		&models.Organization{ID: testOrganizationID, Name: "Lago"},
		env.customer, env.plan, env.bm, env.subscription, env.charge,
	)

	return env
}

func (env *testEnv) create(t *testing.T, records ...any) {
	for _, record := range records {
		require.NoError(t, env.db.Connection.Create(record).Error)
	}
}

func (env *testEnv) event(t *testing.T, transactionID string, timestamp time.Time) *models.Event {
	event := &models.Event{
		ID:                     "event_" + transactionID,
		OrganizationID:         testOrganizationID,
		TransactionID:          transactionID,
		CustomerID:             &env.customer.ID,
		SubscriptionID:         &env.subscription.ID,
		ExternalCustomerID:     env.customer.ExternalID,
		ExternalSubscriptionID: env.subscription.ExternalID,
		Code:                   "api_calls",
		Timestamp:              timestamp,
		Properties:             datatypes.JSONMap{},
	}
	env.create(t, event)

	return event
}

func (env *testEnv) invoiceService(estimator fees.Estimator) *AccumulatingInvoiceService {
	return NewAccumulatingInvoiceService(env.store, estimator, env.reporter, env.logger)
}

func (env *testEnv) attachInput(event *models.Event) AttachInput {
	return AttachInput{
		Charge:       env.charge,
		Event:        event,
		Subscription: env.subscription,
		Timestamp:    event.Timestamp,
	}
}

func (env *testEnv) invoiceFees(t *testing.T, invoiceID string) []*models.Fee {
	result := env.store.FetchInvoiceFees(invoiceID)
	require.True(t, result.Success())
	return result.Value()
}

func (env *testEnv) invoiceCount(t *testing.T) int64 {
	result := env.store.CountCustomerInvoices(env.customer.ID)
	require.True(t, result.Success())
	return result.Value()
}
