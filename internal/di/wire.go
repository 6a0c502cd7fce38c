//go:build wireinject
// +build wireinject

package di

import (
	"SentiGate/pkg/config"
	"SentiGate/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Observability
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideKafkaProducer,
		ProvideKafkaConsumer,
		ProvideClickHouseClient,

		// Repositories
		ProvidePublisher,
		ProvideJournal,
		ProvideDedup,

		// Core state and evaluators
		ProvideSentimentCache,
		ProvideAggregator,
		ProvideMergeEngine,
		ProvideRiskManager,
		ProvideGate,

		// External collaborators
		ProvideScorer,
		ProvideTechnicalProvider,

		// Use cases
		ProvideDecisionPipeline,
		ProvideEnvelopeHandler,
		ProvideFeedCollector,

		// HTTP surface and application server
		ProvideSignalsHandler,
		ProvideApp,
	)
	return &server.App{}, nil
}
