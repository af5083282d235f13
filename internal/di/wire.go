//go:build wireinject
// +build wireinject

package di

import (
	"PerpHelm/pkg/config"
	"PerpHelm/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Ambient
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure
		ProvideCacheStore,
		ProvideRateLimiter,
		ProvideKafkaProducer,
		ProvideEventPublisher,
		ProvideHistoryStore,
		ProvideStateStore,
		ProvideKafkaConsumer,

		// Providers and classification
		ProvideComputedSource,
		ProvideDataProviders,
		ProvideClassifier,

		// Use cases
		ProvideOrchestrator,
		ProvideRegimeDetector,
		ProvideGovernor,
		ProvideTripwires,
		ProvideScorekeeper,
		ProvideAccountReader,
		ProvideCycleRunner,
		ProvideMacroEventsHandler,

		// Stream plumbing
		ProvideMarketStream,
		ProvideTickPipeline,

		// HTTP and application
		ProvideStatusHandler,
		ProvideApp,
	)
	return &server.App{}, nil
}
