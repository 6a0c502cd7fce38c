package di

import (
	"context"
	"fmt"
	"time"

	domrepo "SentiGate/internal/domain/repository"
	domsvc "SentiGate/internal/domain/service"
	"SentiGate/internal/decision"
	"SentiGate/internal/handler/api"
	"SentiGate/internal/merge"
	internalrepo "SentiGate/internal/repository"
	"SentiGate/internal/risk"
	"SentiGate/internal/sentiment"
	"SentiGate/internal/service/feed"
	"SentiGate/internal/service/indicators"
	"SentiGate/internal/service/scorer"
	"SentiGate/internal/usecase"
	"SentiGate/pkg/cache"
	pkgch "SentiGate/pkg/clickhouse"
	"SentiGate/pkg/config"
	pkgkafka "SentiGate/pkg/kafka"
	applogger "SentiGate/pkg/logger"
	"SentiGate/pkg/metrics"
	"SentiGate/pkg/server"
)

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l, nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() domrepo.Metrics {
	return metrics.New()
}

// ProvideKafkaProducer creates the Kafka producer for envelope and decision
// publishing.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithBatching(cfg.Kafka.Producer.BatchSize, cfg.Kafka.Producer.BatchBytes, cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideKafkaConsumer creates the events-topic consumer.
func ProvideKafkaConsumer(cfg *config.Config, log *applogger.Logger) (*pkgkafka.Consumer, error) {
	consumer, err := pkgkafka.NewConsumer(log,
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

// ProvidePublisher wraps the producer as the domain publisher.
func ProvidePublisher(producer *pkgkafka.Producer, cfg *config.Config) domrepo.Publisher {
	return internalrepo.NewKafkaPublisher(producer, cfg.Kafka.DecisionsTopic)
}

// ProvideClickHouseClient creates the ClickHouse client and runs the journal
// DDL. Returns nil when the journal is disabled.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if !cfg.ClickHouse.Enabled {
		return nil, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.InitSchema(ctx, internalrepo.SchemaStatements); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return client, nil
}

// ProvideJournal wraps the ClickHouse client as the decision journal. A nil
// client yields a nil interface so the pipeline skips journaling entirely.
func ProvideJournal(ch *pkgch.Client, log *applogger.Logger) domrepo.Journal {
	if ch == nil {
		return nil
	}
	return internalrepo.NewCHJournal(ch, log)
}

// ProvideDedup builds the redelivery guard: Redis-backed when Redis is on so
// restarts keep the seen-set, in-memory otherwise. With Redis, an event
// handled right before a crash stays suppressed after restart even though
// the in-memory sentiment state restarted empty; keep dedup_ttl at or below
// the aggregation window so such an observation ages out of relevance before
// its suppression does.
func ProvideDedup(cfg *config.Config) (domrepo.DedupSet, error) {
	if !cfg.Redis.Enabled {
		mc := cache.NewMemoryCache(cache.WithMaxSize(cfg.Pipeline.DedupSize))
		return usecase.NewCacheDedup(mc, "dedup:", cfg.Pipeline.DedupTTL), nil
	}
	rc, err := cache.NewRedisCache(
		cache.WithAddr(cfg.Redis.Addr),
		cache.WithCredentials(cfg.Redis.Password, cfg.Redis.DB),
		cache.WithPrefix(cfg.Redis.Prefix),
	)
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	return usecase.NewCacheDedup(rc, "dedup:", cfg.Pipeline.DedupTTL), nil
}

// ProvideSentimentCache creates the latest-sentiment cache.
func ProvideSentimentCache(cfg *config.Config) *sentiment.Cache {
	return sentiment.NewCache(cfg.Pipeline.StalenessThreshold)
}

// ProvideAggregator creates the rolling signal aggregator.
func ProvideAggregator(cfg *config.Config) *sentiment.Aggregator {
	return sentiment.NewAggregator(sentiment.AggregatorConfig{
		WindowLength:    cfg.Pipeline.WindowLength,
		SmoothingMethod: cfg.Pipeline.SmoothingMethod,
		SmoothingAlpha:  cfg.Pipeline.SmoothingAlpha,
		SmoothingK:      cfg.Pipeline.SmoothingK,
	})
}

// ProvideMergeEngine creates the candle/signal as-of merger.
func ProvideMergeEngine(cfg *config.Config) *merge.Engine {
	return merge.NewEngine(cfg.Pipeline.MergeTolerance)
}

// ProvideRiskManager creates the risk manager from configured limits.
func ProvideRiskManager(cfg *config.Config, log *applogger.Logger) *risk.Manager {
	return risk.NewManager(risk.Config{
		PortfolioValue:        cfg.Risk.PortfolioValue,
		RiskFraction:          cfg.Risk.RiskFraction,
		DailyLossFraction:     cfg.Risk.DailyLossFraction,
		StopPct:               cfg.Risk.StopPct,
		TakeProfitPct:         cfg.Risk.TakeProfitPct,
		MaxPositions:          cfg.Risk.MaxPositions,
		MaxExposurePerInstr:   cfg.Risk.MaxExposurePerInstr,
		MaxPerCorrelatedGroup: cfg.Risk.MaxPerCorrelatedGroup,
		CorrelationGroups:     cfg.Risk.CorrelationGroups,
	}, log)
}

// ProvideGate creates the decision gate.
func ProvideGate(cfg *config.Config) *decision.Gate {
	return decision.NewGate(decision.Config{
		BullishThreshold:   cfg.Gate.BullishThreshold,
		BearishThreshold:   cfg.Gate.BearishThreshold,
		StalenessThreshold: cfg.Pipeline.StalenessThreshold,
	})
}

// ProvideScorer creates the headline scorer client, or nil when no scoring
// service is configured. Scoreless headline-only payloads are then rejected
// at validation.
func ProvideScorer(cfg *config.Config) domsvc.Scorer {
	if cfg.Scorer.URL == "" {
		return nil
	}
	return scorer.NewHTTPScorer(cfg.Scorer.URL, cfg.Scorer.Timeout)
}

// ProvideTechnicalProvider creates the indicator service client.
func ProvideTechnicalProvider(cfg *config.Config) domsvc.TechnicalProvider {
	return indicators.NewHTTPProvider(cfg.Indicators.URL, cfg.Indicators.Timeout)
}

// ProvideDecisionPipeline creates the per-candle evaluation pipeline.
func ProvideDecisionPipeline(
	cfg *config.Config,
	store *sentiment.Cache,
	agg *sentiment.Aggregator,
	engine *merge.Engine,
	tech domsvc.TechnicalProvider,
	gate *decision.Gate,
	riskMgr *risk.Manager,
	pub domrepo.Publisher,
	journal domrepo.Journal,
	m domrepo.Metrics,
	log *applogger.Logger,
) *usecase.DecisionPipeline {
	return usecase.NewDecisionPipeline(usecase.PipelineConfig{
		PublishAttempts: cfg.Kafka.Producer.MaxAttempts,
		BackoffMin:      cfg.Kafka.Producer.BackoffMin,
		BackoffMax:      cfg.Kafka.Producer.BackoffMax,
	}, store, agg, engine, tech, gate, riskMgr, pub, journal, m, log)
}

// ProvideEnvelopeHandler creates the events-topic message handler with the
// pipeline as its candle sink.
func ProvideEnvelopeHandler(
	cfg *config.Config,
	store *sentiment.Cache,
	agg *sentiment.Aggregator,
	dedup domrepo.DedupSet,
	pipeline *usecase.DecisionPipeline,
	sc domsvc.Scorer,
	m domrepo.Metrics,
	log *applogger.Logger,
) *usecase.EnvelopeHandler {
	return usecase.NewEnvelopeHandler(cfg.Kafka.EventsTopic, store, agg, dedup, pipeline, sc, m, log)
}

// ProvideFeedCollector creates the websocket candle collector, or nil when
// the feed is disabled and candles arrive from an external producer.
func ProvideFeedCollector(cfg *config.Config, pub domrepo.Publisher, m domrepo.Metrics, log *applogger.Logger) *feed.Collector {
	if !cfg.Feed.Enabled {
		return nil
	}
	stream := feed.New(
		cfg.Feed.WebSocketURL,
		cfg.Feed.Instruments,
		cfg.Feed.Timeframe,
		cfg.Feed.ReconnectDelay,
		cfg.Feed.PingInterval,
		log,
	)
	return feed.NewCollector(feed.CollectorConfig{
		EventsTopic:     cfg.Kafka.EventsTopic,
		MaxRPS:          float64(cfg.Feed.MaxRPS),
		PublishAttempts: cfg.Kafka.Producer.MaxAttempts,
		BackoffMin:      cfg.Kafka.Producer.BackoffMin,
		BackoffMax:      cfg.Kafka.Producer.BackoffMax,
	}, stream, pub, m, log)
}

// ProvideSignalsHandler creates the ops HTTP handler.
func ProvideSignalsHandler(
	log *applogger.Logger,
	store *sentiment.Cache,
	agg *sentiment.Aggregator,
	riskMgr *risk.Manager,
	pipeline *usecase.DecisionPipeline,
	collector *feed.Collector,
) *api.SignalsHandler {
	feedUp := func() bool { return true }
	if collector != nil {
		feedUp = collector.IsConnected
	}
	return api.NewSignalsHandler(log, store, agg, riskMgr, pipeline, feedUp)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	log *applogger.Logger,
	consumer *pkgkafka.Consumer,
	handler *usecase.EnvelopeHandler,
	collector *feed.Collector,
	pub domrepo.Publisher,
	chClient *pkgch.Client,
	httpHandler *api.SignalsHandler,
) *server.App {
	app := server.New(cfg, log, consumer, handler, collector, pub, chClient)
	app.SetHTTPHandler(httpHandler)
	return app
}
