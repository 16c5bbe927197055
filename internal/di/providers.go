package di

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"SolSignal/internal/domain/models"
	"SolSignal/internal/domain/repository"
	domsvc "SolSignal/internal/domain/service"
	"SolSignal/internal/handler/api"
	mid "SolSignal/internal/middleware"
	internalrepo "SolSignal/internal/repository"
	"SolSignal/internal/service/pricefeed"
	"SolSignal/internal/services/analytics"
	"SolSignal/internal/usecase"
	pkgcache "SolSignal/pkg/cache"
	pkgch "SolSignal/pkg/clickhouse"
	"SolSignal/pkg/config"
	pkgkafka "SolSignal/pkg/kafka"
	applogger "SolSignal/pkg/logger"
	"SolSignal/pkg/metrics"
	pkgqueue "SolSignal/pkg/queue"
	"SolSignal/pkg/server"
)

// ProvideLogger creates the shared structured logger.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	level := "info"
	format := "json"
	if cfg.Environment == "development" {
		level = "debug"
		format = "console"
	}
	return applogger.New(&applogger.Config{Level: level, Format: format, Output: "stdout"})
}

// candleSchema lists the tables the ClickHouse candle source and the signal
// history sink expect.
func candleSchema(db string) []string {
	stmts := []string{"CREATE DATABASE IF NOT EXISTS " + db}
	for _, tf := range []string{"1m", "5m", "1h", "1d"} {
		stmts = append(stmts, fmt.Sprintf(
			"CREATE TABLE IF NOT EXISTS %s.candles_%s (bucket DateTime, symbol String, open Float64, high Float64, low Float64, close Float64, vol Float64) ENGINE=MergeTree ORDER BY (symbol, bucket)",
			db, tf))
	}
	stmts = append(stmts, fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s.signals (ts DateTime, symbol String, action String, confidence Float64, price Float64, rsi Float64, rsi_state String, macd_hist Float64, macd_state String, trend String, trend_conf Float64, bullish UInt8, bearish UInt8, ensemble Nullable(Float64), event_id String, seq UInt64) ENGINE=ReplacingMergeTree(seq) ORDER BY (symbol, ts)",
		db))
	return stmts
}

// ProvideClickHouseClient creates a ClickHouse client when either the candle
// source or the history backend needs one. Returns nil otherwise.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if cfg.Market.Source != "clickhouse" && cfg.Backend.Type != "clickhouse" {
		return nil, nil
	}

	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := client.InitSchema(ctx, candleSchema(cfg.ClickHouse.Database)); err != nil {
		_ = client.Close() // cannot log here (DI layer no logger); propagate error
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}

	return client, nil
}

// ProvideRedisClient creates the shared Redis client, nil when disabled.
func ProvideRedisClient(cfg *config.Config) *redis.Client {
	if !cfg.Redis.Enabled {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideTokens maps the config registry into domain tokens.
func ProvideTokens(cfg *config.Config) []models.Token {
	tokens := make([]models.Token, len(cfg.Market.Tokens))
	for i, t := range cfg.Market.Tokens {
		tokens[i] = models.Token{
			Symbol:   t.Symbol,
			Name:     t.Name,
			Mint:     t.Mint,
			Decimals: t.Decimals,
		}
	}
	return tokens
}

// ProvideCandleSource selects the configured candle source.
func ProvideCandleSource(cfg *config.Config, chClient *pkgch.Client, lgr *applogger.Logger) (repository.CandleSource, error) {
	switch cfg.Market.Source {
	case "clickhouse":
		if chClient == nil {
			return nil, fmt.Errorf("clickhouse candle source requires a client")
		}
		return internalrepo.NewCHCandleStore(chClient, cfg.ClickHouse.Database, lgr), nil
	default:
		return internalrepo.NewSyntheticCandleSource(cfg.Market.BasePrices), nil
	}
}

// ProvideModelStore creates the model bundle filestore.
func ProvideModelStore(cfg *config.Config, lgr *applogger.Logger) *internalrepo.ModelFileStore {
	store := internalrepo.NewModelFileStore(cfg.Models.Dir)
	store.SetLogger(lgr)
	return store
}

// ProvideModelManager creates the in-memory model registry.
func ProvideModelManager(store *internalrepo.ModelFileStore, lgr *applogger.Logger) *usecase.ModelManager {
	return usecase.NewModelManager(store, lgr)
}

// ProvideRedisCache connects the shared cache-service Redis client. Nil when
// Redis is disabled or unreachable; consumers then fall back to in-process
// caches.
func ProvideRedisCache(cfg *config.Config, lgr *applogger.Logger) *pkgcache.RedisCache {
	if !cfg.Redis.Enabled {
		return nil
	}
	host, port := splitAddr(cfg.Redis.Addr)
	rc, err := pkgcache.NewRedisCache(
		pkgcache.WithRedisHost(host),
		pkgcache.WithRedisPort(port),
		pkgcache.WithRedisPassword(cfg.Redis.Password),
		pkgcache.WithRedisDB(cfg.Redis.DB),
	)
	if err != nil {
		lgr.Warn("redis cache unavailable, falling back to in-process caches", applogger.Error(err))
		return nil
	}
	return rc
}

// ProvideLockCache picks the service holding train locks and latest-signal
// snapshots: Redis when available so replicas agree, in-process otherwise.
func ProvideLockCache(rc *pkgcache.RedisCache) pkgcache.Service {
	if rc == nil {
		return pkgcache.NewMemoryCache()
	}
	return rc
}

// responseCache builds the endpoint response cache: an in-process layer over
// the shared Redis so hot reads skip the network hop, memory-only without
// Redis.
func responseCache(rc *pkgcache.RedisCache) pkgcache.Service {
	if rc == nil {
		return pkgcache.NewMemoryCache(pkgcache.WithMemoryMaxSize(512))
	}
	return pkgcache.NewLayeredCache(rc,
		pkgcache.WithLayeredMemorySize(512),
		pkgcache.WithLayeredMemoryTTL(15*time.Second),
	)
}

func splitAddr(addr string) (string, int) {
	host, portStr, ok := strings.Cut(addr, ":")
	if !ok {
		return addr, 6379
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return host, 6379
	}
	return host, port
}

// ProvideKafkaProducer creates a Kafka producer for the kafka backend.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if cfg.Backend.Type != "kafka" {
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

// ProvideKafkaConsumer creates a Kafka consumer for the kafka backend.
func ProvideKafkaConsumer(cfg *config.Config, lgr *applogger.Logger) (*pkgkafka.Consumer, error) {
	if cfg.Backend.Type != "kafka" {
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
		pkgkafka.WithConsumerLogger(lgr),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.WithConsumerHook(pkgkafka.NewTraceHook(lgr))
	return consumer, nil
}

// ProvideSignalStorage creates ClickHouse signal storage when a client exists.
func ProvideSignalStorage(chClient *pkgch.Client, cfg *config.Config) repository.SignalStorage {
	if chClient == nil {
		return nil
	}
	return internalrepo.NewClickHouseSignalStorage(chClient.DB(), cfg.ClickHouse.Database+".signals")
}

// ProvideSignalPublisher creates the Kafka signal publisher when configured.
func ProvideSignalPublisher(producer *pkgkafka.Producer, cfg *config.Config) repository.SignalPublisher {
	if producer == nil {
		return nil
	}
	return internalrepo.NewKafkaSignalPublisher(producer, cfg.Kafka.Topic)
}

// ProvideKafkaSignalsHandler relays published signals into ClickHouse. Only
// active when the kafka backend and a storage sink are both configured.
func ProvideKafkaSignalsHandler(store repository.SignalStorage, m repository.Metrics, cfg *config.Config) *usecase.KafkaSignalsHandler {
	if cfg.Backend.Type != "kafka" || store == nil {
		return nil
	}
	return usecase.NewKafkaSignalsHandler(cfg.Kafka.Topic, store, m)
}

// ProvideSignalRecorder creates the signal sink for the configured backend.
func ProvideSignalRecorder(
	pub repository.SignalPublisher,
	store repository.SignalStorage,
	m repository.Metrics,
	cfg *config.Config,
) *usecase.SignalRecorder {
	return usecase.NewSignalRecorder(pub, store, m, cfg.Backend.Type)
}

// ProvideSignalEngine creates the signal generation engine.
func ProvideSignalEngine(source repository.CandleSource, manager *usecase.ModelManager, m repository.Metrics) *usecase.SignalEngine {
	return usecase.NewSignalEngine(source, manager, m)
}

// ProvideTrainer creates the training use case.
func ProvideTrainer(
	source repository.CandleSource,
	manager *usecase.ModelManager,
	lock pkgcache.Service,
	m repository.Metrics,
	lgr *applogger.Logger,
	cfg *config.Config,
) *usecase.Trainer {
	t := usecase.NewTrainer(source, manager, lock, m, lgr)
	t.SetDefaultN(cfg.Models.TrainN)
	return t
}

// ProvidePriceFeed creates the spot price client, nil when disabled.
func ProvidePriceFeed(cfg *config.Config) domsvc.PriceFeed {
	if !cfg.PriceFeed.Enabled {
		return nil
	}
	return pricefeed.New(cfg.PriceFeed.BaseURL, cfg.PriceFeed.Timeout, cfg.PriceFeed.Attempts)
}

// ProvideMarketUseCase creates the market view use case.
func ProvideMarketUseCase(
	source repository.CandleSource,
	feed domsvc.PriceFeed,
	m repository.Metrics,
	lgr *applogger.Logger,
	tokens []models.Token,
) *usecase.MarketUseCase {
	return usecase.NewMarketUseCase(
		source,
		analytics.NewRiskService(),
		analytics.NewPatternService(),
		feed,
		m,
		lgr,
		tokens,
	)
}

// ProvideCandlesUseCase creates the candle query use case.
func ProvideCandlesUseCase(source repository.CandleSource) *usecase.CandlesUseCase {
	return usecase.NewCandlesUseCase(source)
}

// ProvideScanner creates the periodic scanner with its throttling pipeline.
func ProvideScanner(
	engine *usecase.SignalEngine,
	rec *usecase.SignalRecorder,
	m repository.Metrics,
	lgr *applogger.Logger,
	tokens []models.Token,
	cfg *config.Config,
	lock pkgcache.Service,
) *usecase.Scanner {
	pipe := mid.NewSignalPipeline(rec, m,
		mid.WithMaxRPS(50),
		mid.WithBufferSize(2000),
	)
	s := usecase.NewScanner(
		engine,
		rec,
		m,
		pipe,
		lgr,
		tokens,
		cfg.Market.ScanInterval,
		repository.Timeframe(cfg.Market.Timeframe),
		cfg.Market.ScanBars,
	)
	s.SetLatestCache(lock)
	return s
}

// ProvideTrainingQueue creates the Redis-backed training queue, nil without Redis.
func ProvideTrainingQueue(
	cfg *config.Config,
	client *redis.Client,
	trainer *usecase.Trainer,
	lgr *applogger.Logger,
) *pkgqueue.RedisQueue {
	if client == nil {
		return nil
	}
	qcfg := &pkgqueue.QueueConfig{
		Workers:    cfg.Queue.Workers,
		QueueSize:  cfg.Queue.QueueSize,
		RetryLimit: cfg.Queue.RetryLimit,
		RetryDelay: cfg.Queue.RetryDelay,
	}
	q := pkgqueue.NewRedisQueue(lgr, qcfg, client)
	q.RegisterJobs([]pkgqueue.Job{
		usecase.NewTrainJob(trainer, lgr),
		usecase.NewLogDigestJob(lgr),
	})
	lgr.AddCollector(&applogger.CollectionConfig{
		TimeInterval:   30 * time.Second,
		CountThreshold: 100,
		Topic:          usecase.ErrorDigestMessage,
		Publisher:      q,
	})
	return q
}

// ProvideHub creates the websocket broadcast hub.
func ProvideHub(
	lgr *applogger.Logger,
	market *usecase.MarketUseCase,
	scanner *usecase.Scanner,
	lock pkgcache.Service,
	tokens []models.Token,
) *api.Hub {
	hub := api.NewHub(lgr, market, 5*time.Second)
	symbols := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		symbols = append(symbols, tok.Symbol)
	}
	hub.SetLatestSource(lock, symbols)
	scanner.SetBroadcaster(hub)
	return hub
}

// healthProbe reports per-dependency status for /healthz.
func healthProbe(ch *pkgch.Client, rc *redis.Client) func(ctx context.Context) map[string]string {
	return func(ctx context.Context) map[string]string {
		checks := map[string]string{}
		if ch != nil {
			if err := ch.Health(ctx); err != nil {
				checks["clickhouse"] = err.Error()
			} else {
				checks["clickhouse"] = "ok"
			}
		}
		if rc != nil {
			if err := rc.Ping(ctx).Err(); err != nil {
				checks["redis"] = err.Error()
			} else {
				checks["redis"] = "ok"
			}
		}
		return checks
	}
}

// ProvideHTTPHandler assembles the API handler with its optional extras.
func ProvideHTTPHandler(
	lgr *applogger.Logger,
	engine *usecase.SignalEngine,
	manager *usecase.ModelManager,
	trainer *usecase.Trainer,
	rec *usecase.SignalRecorder,
	market *usecase.MarketUseCase,
	candles *usecase.CandlesUseCase,
	hub *api.Hub,
	q *pkgqueue.RedisQueue,
	rc *pkgcache.RedisCache,
	chClient *pkgch.Client,
	redisClient *redis.Client,
	cfg *config.Config,
) *api.SignalsEchoHandler {
	h := api.NewSignalsEchoHandler(lgr, engine, manager, trainer, rec, market, candles)
	h.SetCache(responseCache(rc))
	h.SetHub(hub)
	h.SetHealth(healthProbe(chClient, redisClient))
	h.SetCacheTTL(api.CacheTTL{
		Signal:   cfg.Analytics.CacheTTL.Signal,
		Overview: cfg.Analytics.CacheTTL.Overview,
		Analysis: cfg.Analytics.CacheTTL.Analysis,
		Insights: cfg.Analytics.CacheTTL.Insights,
	})
	if q != nil {
		h.SetQueue(q)
	}
	return h
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	lgr *applogger.Logger,
	scanner *usecase.Scanner,
	manager *usecase.ModelManager,
	consumer *pkgkafka.Consumer,
	kh *usecase.KafkaSignalsHandler,
	chClient *pkgch.Client,
	redisClient *redis.Client,
	q *pkgqueue.RedisQueue,
	hub *api.Hub,
	handler *api.SignalsEchoHandler,
) *server.App {
	// keep the handler interface nil when no relay is configured
	var mh pkgkafka.MessageHandler
	if kh != nil {
		mh = kh
	}

	app := server.New(cfg, lgr, scanner, manager, consumer, mh, chClient)
	app.SetHTTPHandler(handler)
	app.SetHub(hub)
	app.SetRedisClient(redisClient)
	if q != nil {
		app.SetQueue(q)
	}
	if scanner != nil {
		app.Recorder = scanner.Recorder()
	}
	return app
}
