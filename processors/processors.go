package processors

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/twmb/franz-go/pkg/kgo"
	"golang.org/x/sync/errgroup"

	"github.com/getlago/lago/billing-processor/config/database"
	"github.com/getlago/lago/billing-processor/config/kafka"
	"github.com/getlago/lago/billing-processor/config/redis"
	"github.com/getlago/lago/billing-processor/config/tracing"
	"github.com/getlago/lago/billing-processor/fees"
	"github.com/getlago/lago/billing-processor/models"
	"github.com/getlago/lago/billing-processor/processors/events_processor"
	"github.com/getlago/lago/billing-processor/processors/invoices_processor"
	"github.com/getlago/lago/billing-processor/tasks"
	"github.com/getlago/lago/billing-processor/utils"
)

const (
	envEnv                                       = "ENV"
	envDatabaseURL                               = "DATABASE_URL"
	envLagoEventsProcessorDatabaseMaxConnections = "LAGO_EVENTS_PROCESSOR_DATABASE_MAX_CONNECTIONS"
	envLagoKafkaBootstrapServers                 = "LAGO_KAFKA_BOOTSTRAP_SERVERS"
	envLagoKafkaConsumerGroup                    = "LAGO_KAFKA_CONSUMER_GROUP"
	envLagoKafkaEventsDeadLetterTopic            = "LAGO_KAFKA_EVENTS_DEAD_LETTER_TOPIC"
	envLagoKafkaPassword                         = "LAGO_KAFKA_PASSWORD"
	envLagoKafkaRawEventsTopic                   = "LAGO_KAFKA_RAW_EVENTS_TOPIC"
	envLagoKafkaScramAlgorithm                   = "LAGO_KAFKA_SCRAM_ALGORITHM"
	envLagoKafkaTasksDeadLetterTopic             = "LAGO_KAFKA_TASKS_DEAD_LETTER_TOPIC"
	envLagoKafkaTasksTopic                       = "LAGO_KAFKA_TASKS_TOPIC"
	envLagoKafkaTLS                              = "LAGO_KAFKA_TLS"
	envLagoKafkaUsername                         = "LAGO_KAFKA_USERNAME"
	envLagoKafkaWebhooksTopic                    = "LAGO_KAFKA_WEBHOOKS_TOPIC"
	envLagoProcessorMode                         = "LAGO_PROCESSOR_MODE"
	envLagoRedisCacheDB                          = "LAGO_REDIS_CACHE_DB"
	envLagoRedisCachePassword                    = "LAGO_REDIS_CACHE_PASSWORD"
	envLagoRedisCacheURL                         = "LAGO_REDIS_CACHE_URL"
	envLagoRedisCacheTLS                         = "LAGO_REDIS_CACHE_TLS"
	envLagoRedisStoreDB                          = "LAGO_REDIS_STORE_DB"
	envLagoRedisStorePassword                    = "LAGO_REDIS_STORE_PASSWORD"
	envLagoRedisStoreURL                         = "LAGO_REDIS_STORE_URL"
	envLagoRedisStoreTLS                         = "LAGO_REDIS_STORE_TLS"
	envLagoTasksMaxAttempts                      = "LAGO_TASKS_MAX_ATTEMPTS"
	envLagoTasksMaxConcurrency                   = "LAGO_TASKS_MAX_CONCURRENCY"
)

// Mode selects the consumers started by the process.
type Mode string

const (
	ModeEvents Mode = "events"
	ModeTasks  Mode = "tasks"
	ModeAll    Mode = "all"
)

func ParseMode(value string) (Mode, error) {
	switch Mode(value) {
	case "", ModeAll:
		return ModeAll, nil
	case ModeEvents, ModeTasks:
		return Mode(value), nil
	}

	return "", fmt.Errorf("invalid %s value: %q", envLagoProcessorMode, value)
}

func (m Mode) consumesEvents() bool {
	return m == ModeEvents || m == ModeAll
}

func (m Mode) consumesTasks() bool {
	return m == ModeTasks || m == ModeAll
}

type Config struct {
	Logger         *slog.Logger
	UseTelemetry   bool
	TracerProvider tracing.TracerProvider
}

type runtime struct {
	config      *Config
	kafkaConfig kafka.ServerConfig
	apiStore    *models.ApiStore
	submitter   tasks.Submitter
	reporter    *events_processor.ErrorReporterService
}

func initProducer(ctx context.Context, kafkaConfig kafka.ServerConfig, topicEnv string) (*kafka.Producer, error) {
	topic, err := utils.RequireEnv(topicEnv)
	if err != nil {
		return nil, err
	}

	producer, err := kafka.NewProducer(
		kafkaConfig,
		&kafka.ProducerConfig{
			Topic: topic,
		})
	if err != nil {
		return nil, err
	}

	err = producer.Ping(ctx)
	if err != nil {
		return nil, err
	}

	return producer, nil
}

func initStoreRedis(ctx context.Context, useTracer bool) (*redis.RedisDB, error) {
	redisDb, err := utils.GetEnvAsInt(envLagoRedisStoreDB, 0)
	if err != nil {
		return nil, err
	}

	// Deprecated: Use env LAGO_REDIS_STORE_TLS instead
	legacyTLS := os.Getenv(envEnv) == "production"

	return redis.NewRedisDB(ctx, redis.RedisConfig{
		Name:      "store",
		Address:   os.Getenv(envLagoRedisStoreURL),
		Password:  os.Getenv(envLagoRedisStorePassword),
		DB:        redisDb,
		UseTracer: useTracer,
		UseTLS:    utils.GetEnvAsBool(envLagoRedisStoreTLS, legacyTLS),
	})
}

func initChargeCacheStore(ctx context.Context, useTracer bool) (*models.ChargeCache, *models.CacheStore, error) {
	redisDb, err := utils.GetEnvAsInt(envLagoRedisCacheDB, 0)
	if err != nil {
		return nil, nil, err
	}

	db, err := redis.NewRedisDB(ctx, redis.RedisConfig{
		Name:      "cache",
		Address:   os.Getenv(envLagoRedisCacheURL),
		Password:  os.Getenv(envLagoRedisCachePassword),
		DB:        redisDb,
		UseTracer: useTracer,
		UseTLS:    utils.GetEnvAsBool(envLagoRedisCacheTLS, false),
	})
	if err != nil {
		return nil, nil, err
	}

	cacheStore := models.NewCacheStore(ctx, db)
	return models.NewChargeCache(cacheStore), cacheStore, nil
}

// StartProcessing connects the shared dependencies and runs the consumers
// selected by LAGO_PROCESSOR_MODE until the context is canceled.
func StartProcessing(ctx context.Context, config *Config) {
	mode, err := ParseMode(os.Getenv(envLagoProcessorMode))
	if err != nil {
		utils.LogAndPanic(config.Logger, err, "Invalid processor mode")
	}

	serverBrokers := utils.ParseBrokersEnv(os.Getenv(envLagoKafkaBootstrapServers))
	if len(serverBrokers) == 0 {
		config.Logger.Error("brokers not found")
		panic("brokers not found")
	}

	rt := &runtime{
		config: config,
		kafkaConfig: kafka.ServerConfig{
			ScramAlgorithm: os.Getenv(envLagoKafkaScramAlgorithm),
			TLS:            utils.GetEnvAsBool(envLagoKafkaTLS, false),
			Servers:        serverBrokers,
			UseTelemetry:   config.UseTelemetry,
			UserName:       os.Getenv(envLagoKafkaUsername),
			Password:       os.Getenv(envLagoKafkaPassword),
			TracerProvider: config.TracerProvider,
		},
	}

	maxConns, err := utils.GetEnvAsInt(envLagoEventsProcessorDatabaseMaxConnections, 200)
	if err != nil {
		utils.LogAndPanic(config.Logger, err, "Error converting max connections into integer")
	}

	db, err := database.NewConnection(database.DBConfig{
		Url:      os.Getenv(envDatabaseURL),
		MaxConns: int32(maxConns),
	})
	if err != nil {
		utils.LogAndPanic(config.Logger, err, "Error connecting to the database")
	}
	defer db.Close()
	rt.apiStore = models.NewApiStore(db)

	tasksProducer, err := initProducer(ctx, rt.kafkaConfig, envLagoKafkaTasksTopic)
	if err != nil {
		utils.LogAndPanic(config.Logger, err, "failed to initialize tasks producer")
	}
	defer tasksProducer.Close()

	webhooksProducer, err := initProducer(ctx, rt.kafkaConfig, envLagoKafkaWebhooksTopic)
	if err != nil {
		utils.LogAndPanic(config.Logger, err, "failed to initialize webhooks producer")
	}
	defer webhooksProducer.Close()

	rt.submitter = tasks.NewKafkaSubmitter(tasksProducer, webhooksProducer)
	rt.reporter = events_processor.NewErrorReporterService(rt.apiStore, rt.submitter, config.Logger)
	defer rt.reporter.Wait()

	consumers := make(map[string]*kafka.ConsumerGroup)

	if mode.consumesEvents() {
		cg, cleanup := rt.eventsConsumer(ctx)
		defer cleanup()
		consumers["events"] = cg
	}

	if mode.consumesTasks() {
		cg, cleanup := rt.tasksConsumer(ctx)
		defer cleanup()
		consumers["tasks"] = cg
	}

	g, gctx := errgroup.WithContext(ctx)
	for name, cg := range consumers {
		g.Go(func() error {
			config.Logger.Info("Starting consumer", slog.String("consumer", name))

			err := cg.Start(gctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	if err := g.Wait(); err != nil {
		config.Logger.Error("Processor stopped with error", slog.String("error", err.Error()))
		utils.CaptureError(err)
		return
	}

	config.Logger.Info("Processor stopped", slog.String("mode", string(mode)))
}

func (rt *runtime) eventsConsumer(ctx context.Context) (*kafka.ConsumerGroup, func()) {
	logger := rt.config.Logger

	deadLetterProducer, err := initProducer(ctx, rt.kafkaConfig, envLagoKafkaEventsDeadLetterTopic)
	if err != nil {
		utils.LogAndPanic(logger, err, "failed to initialize events dead letter queue producer")
	}

	storeRedis, err := initStoreRedis(ctx, rt.config.UseTelemetry)
	if err != nil {
		utils.LogAndPanic(logger, err, "Error connecting to the flag store")
	}

	chargeCache, cacheStore, err := initChargeCacheStore(ctx, rt.config.UseTelemetry)
	if err != nil {
		utils.LogAndPanic(logger, err, "Error connecting to the charge cache store")
	}

	flagStore := models.NewFlagStore(ctx, storeRedis, "subscription_refreshed")
	deprecationStore := models.NewDeprecationStore(ctx, storeRedis)

	processor := events_processor.NewEventProcessor(
		logger,
		events_processor.NewPostProcessService(
			rt.apiStore,
			events_processor.PostProcessServices{
				Resolver:       events_processor.NewSubscriptionResolver(deprecationStore, logger),
				CacheService:   events_processor.NewCacheService(chargeCache),
				RefreshService: events_processor.NewSubscriptionRefreshService(flagStore),
				PayInAdvance:   events_processor.NewPayInAdvanceService(rt.apiStore, rt.submitter, logger),
				ErrorReporter:  rt.reporter,
			},
			logger,
		),
		events_processor.NewEventProducerService(deadLetterProducer, logger),
	)

	cg, err := kafka.NewConsumerGroup(
		rt.kafkaConfig,
		&kafka.ConsumerGroupConfig{
			Topic:         os.Getenv(envLagoKafkaRawEventsTopic),
			ConsumerGroup: os.Getenv(envLagoKafkaConsumerGroup),
			ProcessRecords: func(ctx context.Context, records []*kgo.Record) []*kgo.Record {
				return processor.ProcessEvents(ctx, records)
			},
		})
	if err != nil {
		utils.LogAndPanic(logger, err, "Error starting the event consumer")
	}

	return cg, func() {
		deadLetterProducer.Close()
		flagStore.Close()
		cacheStore.Close()
	}
}

func (rt *runtime) tasksConsumer(ctx context.Context) (*kafka.ConsumerGroup, func()) {
	logger := rt.config.Logger

	deadLetterProducer, err := initProducer(ctx, rt.kafkaConfig, envLagoKafkaTasksDeadLetterTopic)
	if err != nil {
		utils.LogAndPanic(logger, err, "failed to initialize tasks dead letter queue producer")
	}

	maxConcurrency, err := utils.GetEnvAsInt(envLagoTasksMaxConcurrency, 10)
	if err != nil {
		utils.LogAndPanic(logger, err, "Error converting tasks max concurrency into integer")
	}

	maxAttempts, err := utils.GetEnvAsInt(envLagoTasksMaxAttempts, 5)
	if err != nil {
		utils.LogAndPanic(logger, err, "Error converting tasks max attempts into integer")
	}

	estimator := fees.NewStandardEstimator()
	processor := invoices_processor.NewTaskProcessor(
		logger,
		rt.apiStore,
		invoices_processor.NewAccumulatingInvoiceService(rt.apiStore, estimator, rt.reporter, logger),
		invoices_processor.NewPayInAdvanceFeeService(rt.apiStore, estimator, rt.reporter, logger),
		rt.submitter,
		deadLetterProducer,
		invoices_processor.TaskProcessorConfig{
			MaxConcurrency: maxConcurrency,
			MaxAttempts:    maxAttempts,
		},
	)

	cg, err := kafka.NewConsumerGroup(
		rt.kafkaConfig,
		&kafka.ConsumerGroupConfig{
			Topic:          os.Getenv(envLagoKafkaTasksTopic),
			ConsumerGroup:  os.Getenv(envLagoKafkaConsumerGroup),
			MaxPollRecords: maxConcurrency * 100,
			ProcessRecords: func(ctx context.Context, records []*kgo.Record) []*kgo.Record {
				return processor.ProcessTasks(ctx, records)
			},
		})
	if err != nil {
		utils.LogAndPanic(logger, err, "Error starting the task consumer")
	}

	return cg, deadLetterProducer.Close
}
