package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	domrepo "SentiGate/internal/domain/repository"
	"SentiGate/internal/service/feed"
	"SentiGate/internal/usecase"
	pkgch "SentiGate/pkg/clickhouse"
	"SentiGate/pkg/config"
	xhttp "SentiGate/pkg/http"
	pkgkafka "SentiGate/pkg/kafka"
	applogger "SentiGate/pkg/logger"
)

// App encapsulates the application lifecycle: candle feed in, consumer and
// decision pipeline in the middle, ops HTTP on the side. Shutdown order is
// intake first (feed, consumer), then in-flight drain, then outputs.
type App struct {
	cfg       *config.Config
	log       *applogger.Logger
	consumer  *pkgkafka.Consumer
	handler   *usecase.EnvelopeHandler
	collector *feed.Collector
	publisher domrepo.Publisher
	chClient  *pkgch.Client

	httpServer  *xhttp.Server
	httpHandler xhttp.Handler
}

// New creates an App. collector and chClient may be nil when the feed or
// the journal is disabled.
func New(
	cfg *config.Config,
	log *applogger.Logger,
	consumer *pkgkafka.Consumer,
	handler *usecase.EnvelopeHandler,
	collector *feed.Collector,
	publisher domrepo.Publisher,
	chClient *pkgch.Client,
) *App {
	return &App{
		cfg:       cfg,
		log:       log,
		consumer:  consumer,
		handler:   handler,
		collector: collector,
		publisher: publisher,
		chClient:  chClient,
	}
}

// SetHTTPHandler injects the ops HTTP handler.
func (a *App) SetHTTPHandler(h xhttp.Handler) { a.httpHandler = h }

// Run starts everything and blocks until SIGINT/SIGTERM.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a.httpServer = xhttp.NewServer(a.httpHandler,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
		xhttp.WithLogger(a.log),
	)

	if a.collector != nil {
		if err := a.collector.Start(ctx); err != nil {
			return err
		}
		a.log.Info("candle feed started",
			applogger.Strings("instruments", a.cfg.Feed.Instruments),
			applogger.String("timeframe", a.cfg.Feed.Timeframe))
	}

	a.consumer.RegisterHandler(a.handler)
	go func() {
		if err := a.consumer.Start(); err != nil {
			a.log.Error("kafka consumer error", applogger.Error(err))
		}
	}()
	a.log.Info("kafka consumer started", applogger.String("topic", a.handler.Topic()))

	if err := a.httpServer.Start(); err != nil {
		a.log.Error("http server start error", applogger.Error(err))
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	a.log.Info("shutdown signal received")
	return a.shutdown(ctx)
}

func (a *App) shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if a.collector != nil {
		if err := a.collector.Shutdown(shutdownCtx); err != nil {
			a.log.Warn("feed stop error", applogger.Error(err))
		}
	}

	if err := a.consumer.Stop(shutdownCtx); err != nil {
		a.log.Warn("kafka consumer stop error", applogger.Error(err))
	}
	a.handler.Drain()

	if err := a.httpServer.Stop(shutdownCtx); err != nil {
		a.log.Error("http shutdown error", applogger.Error(err))
	}

	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.log.Warn("publisher close error", applogger.Error(err))
		}
	}
	if a.chClient != nil {
		if err := a.chClient.Close(); err != nil {
			a.log.Warn("clickhouse close error", applogger.Error(err))
		}
	}

	a.log.Info("shutdown complete")
	return nil
}
