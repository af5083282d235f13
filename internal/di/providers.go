package di

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"PerpHelm/internal/domain/models"
	domrepo "PerpHelm/internal/domain/repository"
	"PerpHelm/internal/domain/service"
	"PerpHelm/internal/handler/api"
	mid "PerpHelm/internal/middleware"
	"PerpHelm/internal/providers"
	internalrepo "PerpHelm/internal/repository"
	"PerpHelm/internal/service/exchange"
	"PerpHelm/internal/service/ratelimit"
	"PerpHelm/internal/services/classifier"
	"PerpHelm/internal/usecase"
	"PerpHelm/pkg/cache"
	pkgch "PerpHelm/pkg/clickhouse"
	"PerpHelm/pkg/config"
	xhttp "PerpHelm/pkg/http"
	pkgkafka "PerpHelm/pkg/kafka"
	"PerpHelm/pkg/logger"
	"PerpHelm/pkg/metrics"
	"PerpHelm/pkg/server"

	"github.com/shopspring/decimal"
)

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*logger.Logger, error) {
	return logger.New(&logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
}

// ProvideMetrics creates the Prometheus metrics recorder.
func ProvideMetrics() *metrics.Recorder {
	return metrics.New()
}

// ProvideCacheStore builds the signal cache from the configured backend.
// A nil store means caching is disabled and every fetch goes upstream.
func ProvideCacheStore(cfg *config.Config) (cache.Store, error) {
	if !cfg.Cache.Enabled {
		return nil, nil
	}
	switch cfg.Cache.Backend {
	case "memory":
		return cache.NewMemoryCache(
			cache.WithMemoryMaxSize(cfg.Cache.MemoryMaxSize),
			cache.WithMemoryCleanup(cfg.Cache.CleanupInterval),
		), nil
	case "disk":
		return cache.NewBadgerCache(cache.WithBadgerPath(cfg.Cache.DBPath))
	case "redis":
		return provideRedisCache(cfg)
	case "layered":
		backing, err := cache.NewBadgerCache(cache.WithBadgerPath(cfg.Cache.DBPath))
		if err != nil {
			return nil, err
		}
		return cache.NewLayeredCache(backing,
			cache.WithLayeredMemorySize(cfg.Cache.MemoryMaxSize),
		), nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Cache.Backend)
	}
}

func provideRedisCache(cfg *config.Config) (cache.Store, error) {
	host, portStr, err := net.SplitHostPort(cfg.Cache.Redis.Addr)
	if err != nil {
		return nil, fmt.Errorf("redis addr %q: %w", cfg.Cache.Redis.Addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("redis port %q: %w", portStr, err)
	}
	return cache.NewRedisCache(
		cache.WithRedisHost(host),
		cache.WithRedisPort(port),
		cache.WithRedisPassword(cfg.Cache.Redis.Password),
		cache.WithRedisDB(cfg.Cache.Redis.DB),
	)
}

// ProvideRateLimiter creates the shared per-provider token buckets.
func ProvideRateLimiter() *ratelimit.Limiter {
	return ratelimit.New()
}

// ProvideComputedSource creates the tick-window feature source.
func ProvideComputedSource(cfg *config.Config) *providers.ComputedSource {
	return providers.NewComputedSource(cfg.Providers.Computed.WindowSize)
}

// ProvideDataProviders builds the five guarded providers.
func ProvideDataProviders(
	cfg *config.Config,
	store cache.Store,
	limiter *ratelimit.Limiter,
	rec *metrics.Recorder,
	log *logger.Logger,
	computed *providers.ComputedSource,
) []service.DataProvider {
	client := xhttp.NewClient(xhttp.WithTimeout(cfg.Orchestrator.SlowTimeout))

	guard := func(src providers.Source, ttl time.Duration) service.DataProvider {
		return providers.NewGuard(src, store, limiter, rec, log, providers.GuardConfig{
			CacheTTL:         ttl,
			FailureThreshold: cfg.Providers.Breaker.FailureThreshold,
			Cooldown:         cfg.Providers.Breaker.Cooldown,
			MaxAttempts:      cfg.Providers.Retry.MaxAttempts,
			InitialDelay:     cfg.Providers.Retry.InitialDelay,
			BackoffFactor:    cfg.Providers.Retry.BackoffFactor,
			MaxDelay:         cfg.Providers.Retry.MaxDelay,
			RateCapacity:     cfg.Providers.RateLimit.Capacity,
			RateRefillPerSec: cfg.Providers.RateLimit.RefillPerSec,
		})
	}

	return []service.DataProvider{
		guard(providers.NewExchangeSource(cfg.Providers.Exchange.BaseURL, client), cfg.Providers.Exchange.CacheTTL),
		guard(providers.NewOnChainSource(cfg.Providers.OnChain.BaseURL, client), cfg.Providers.OnChain.CacheTTL),
		guard(providers.NewExtMarketSource(cfg.Providers.ExtMarket.BaseURL, client), cfg.Providers.ExtMarket.CacheTTL),
		guard(providers.NewSentimentSource(cfg.Providers.Sentiment.BaseURL, client), cfg.Providers.Sentiment.CacheTTL),
		guard(computed, cfg.Providers.Computed.CacheTTL),
	}
}

// ProvideOrchestrator creates the signal orchestrator.
func ProvideOrchestrator(
	cfg *config.Config,
	dataProviders []service.DataProvider,
	rec *metrics.Recorder,
	log *logger.Logger,
) *usecase.SignalOrchestrator {
	return usecase.NewSignalOrchestrator(dataProviders, usecase.OrchestratorTimeouts{
		Fast:   cfg.Orchestrator.FastTimeout,
		Medium: cfg.Orchestrator.MediumTimeout,
		Slow:   cfg.Orchestrator.SlowTimeout,
	}, rec, log)
}

// ProvideClassifier selects the external classifier when configured,
// otherwise the built-in heuristic rules.
func ProvideClassifier(cfg *config.Config, log *logger.Logger) service.RegimeClassifier {
	if cfg.Classifier.BaseURL != "" {
		client := xhttp.NewClient(xhttp.WithTimeout(cfg.Classifier.Timeout))
		return classifier.NewHTTPClassifier(cfg.Classifier.BaseURL, client, log)
	}
	return classifier.NewHeuristicClassifier()
}

// ProvideKafkaProducer creates a Kafka producer, nil when disabled.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideEventPublisher creates the audit publisher.
func ProvideEventPublisher(producer *pkgkafka.Producer, cfg *config.Config) domrepo.EventPublisher {
	if producer == nil {
		return internalrepo.NopEventPublisher{}
	}
	return internalrepo.NewKafkaEventPublisher(producer, cfg.Kafka.AuditTopic)
}

// ProvideHistoryStore creates the ClickHouse history sink.
func ProvideHistoryStore(cfg *config.Config) (domrepo.HistoryStore, error) {
	if !cfg.ClickHouse.Enabled {
		return internalrepo.NopHistoryStore{}, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	store, err := internalrepo.NewClickHouseHistoryStore(ctx, client)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	return store, nil
}

// ProvideStateStore creates the governor's persistent store.
func ProvideStateStore(cfg *config.Config) (domrepo.StateStore, error) {
	return internalrepo.NewBadgerStateStore(cfg.Governor.StatePath, false)
}

// ProvideRegimeDetector creates the hysteresis detector.
func ProvideRegimeDetector(
	cfg *config.Config,
	cls service.RegimeClassifier,
	history domrepo.HistoryStore,
	pub domrepo.EventPublisher,
	rec *metrics.Recorder,
	log *logger.Logger,
) *usecase.RegimeDetector {
	return usecase.NewRegimeDetector(cls, usecase.RegimeConfig{
		ConfirmationCycles: cfg.Regime.ConfirmationCycles,
		EnterThreshold:     cfg.Regime.EnterThreshold,
		ExitThreshold:      cfg.Regime.ExitThreshold,
		HistorySize:        cfg.Regime.HistorySize,
		EventLockLead:      cfg.Regime.EventLockLead,
		EventLockLag:       cfg.Regime.EventLockLag,
	}, history, pub, rec, log)
}

// ProvideGovernor creates the plan-change governor.
func ProvideGovernor(
	cfg *config.Config,
	store domrepo.StateStore,
	pub domrepo.EventPublisher,
	rec *metrics.Recorder,
	log *logger.Logger,
) (*usecase.StrategyGovernor, error) {
	return usecase.NewStrategyGovernor(usecase.GovernorConfig{
		CooldownAfterChange: cfg.Governor.CooldownAfterChange,
		MinimumDwell:        cfg.Governor.MinimumDwell,
		MinAdvantageBps:     cfg.Governor.MinAdvantageBps,
		PartialRotationPct:  cfg.Governor.PartialRotationPct,
	}, store, pub, rec, log)
}

// ProvideTripwires creates the tripwire service.
func ProvideTripwires(cfg *config.Config, pub domrepo.EventPublisher, rec *metrics.Recorder, log *logger.Logger) *usecase.TripwireService {
	return usecase.NewTripwireService(usecase.TripwireConfig{
		MinMarginRatio:     cfg.Tripwire.MinMarginRatio,
		LiqProximityPct:    cfg.Tripwire.LiqProximityPct,
		DailyLossLimitPct:  cfg.Tripwire.DailyLossLimitPct,
		MaxDataStaleness:   cfg.Tripwire.MaxDataStaleness,
		MaxAPIFailureCount: cfg.Tripwire.MaxAPIFailureCount,
		PlanInvalidation:   cfg.Tripwire.PlanInvalidation,
		JournalSize:        cfg.Tripwire.JournalSize,
	}, pub, rec, log)
}

// ProvideScorekeeper creates the plan scorekeeper.
func ProvideScorekeeper(history domrepo.HistoryStore, rec *metrics.Recorder, log *logger.Logger) *usecase.PlanScorekeeper {
	return usecase.NewPlanScorekeeper(history, rec, log)
}

// ProvideMarketStream creates the exchange WebSocket feed, nil when
// disabled.
func ProvideMarketStream(cfg *config.Config, log *logger.Logger) *exchange.Stream {
	if !cfg.Stream.Enabled {
		return nil
	}
	return exchange.NewStream(exchange.StreamConfig{
		URL:            cfg.Stream.URL,
		APIKey:         cfg.Stream.APIKey,
		ReconnectDelay: cfg.Stream.ReconnectDelay,
		PingInterval:   cfg.Stream.PingInterval,
		BufferSize:     cfg.Stream.BufferSize,
	}, log)
}

// ProvideTickPipeline feeds validated stream ticks into the feature
// window.
func ProvideTickPipeline(cfg *config.Config, computed *providers.ComputedSource, rec *metrics.Recorder) *mid.TickPipeline {
	sink := mid.TickSinkFunc(func(_ context.Context, t models.Tick) error {
		computed.Observe(t)
		return nil
	})
	return mid.NewTickPipeline(sink, rec,
		mid.WithMaxRPS(cfg.Stream.MaxRPS),
		mid.WithBufferSize(cfg.Stream.BufferSize),
	)
}

// ProvideKafkaConsumer creates the macro-events consumer, nil when
// Kafka is disabled.
func ProvideKafkaConsumer(cfg *config.Config) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return consumer, nil
}

// ProvideMacroEventsHandler routes scheduled-event messages into the
// detector's lock calendar.
func ProvideMacroEventsHandler(cfg *config.Config, detector *usecase.RegimeDetector, log *logger.Logger) *usecase.MacroEventsHandler {
	return usecase.NewMacroEventsHandler(cfg.Kafka.EventsTopic, detector, log)
}

// ProvideAccountReader supplies the account snapshot source. Without an
// attached trading engine the snapshot is a healthy static placeholder.
func ProvideAccountReader() usecase.AccountReader {
	return &usecase.StaticAccountReader{
		State: &models.AccountState{
			Equity:                  decimal.Zero,
			MarginRatio:             1,
			LiquidationProximityPct: 1,
		},
	}
}

// ProvideCycleRunner creates the medium-loop driver.
func ProvideCycleRunner(
	cfg *config.Config,
	orchestrator *usecase.SignalOrchestrator,
	detector *usecase.RegimeDetector,
	governor *usecase.StrategyGovernor,
	tripwires *usecase.TripwireService,
	scorekeeper *usecase.PlanScorekeeper,
	account usecase.AccountReader,
	rec *metrics.Recorder,
	log *logger.Logger,
) *usecase.CycleRunner {
	return usecase.NewCycleRunner(
		cfg.Stream.Symbols,
		cfg.Orchestrator.CycleInterval,
		orchestrator, detector, governor, tripwires, scorekeeper,
		account, rec, log,
	)
}

// ProvideStatusHandler creates the Echo API handler.
func ProvideStatusHandler(
	log *logger.Logger,
	orchestrator *usecase.SignalOrchestrator,
	detector *usecase.RegimeDetector,
	governor *usecase.StrategyGovernor,
	tripwires *usecase.TripwireService,
	scorekeeper *usecase.PlanScorekeeper,
	signalCache cache.Store,
) xhttp.Handler {
	return api.NewStatusEchoHandler(log, orchestrator, detector, governor, tripwires, scorekeeper, signalCache)
}

// ProvideApp assembles the application.
func ProvideApp(
	cfg *config.Config,
	log *logger.Logger,
	stream *exchange.Stream,
	pipeline *mid.TickPipeline,
	runner *usecase.CycleRunner,
	consumer *pkgkafka.Consumer,
	eventsHandler *usecase.MacroEventsHandler,
	handler xhttp.Handler,
	pub domrepo.EventPublisher,
	history domrepo.HistoryStore,
	state domrepo.StateStore,
	signalCache cache.Store,
) *server.App {
	return server.New(cfg, log, stream, pipeline, runner, consumer, eventsHandler, handler, pub, history, state, signalCache)
}
