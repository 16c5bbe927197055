//go:build wireinject
// +build wireinject

package di

import (
	"SolSignal/pkg/config"
	"SolSignal/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Ambient services
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvideRedisClient,
		ProvideRedisCache,
		ProvideKafkaProducer,
		ProvideKafkaConsumer,

		// Repositories
		ProvideTokens,
		ProvideCandleSource,
		ProvideModelStore,
		ProvideSignalStorage,
		ProvideSignalPublisher,
		ProvidePriceFeed,

		// Use cases
		ProvideModelManager,
		ProvideLockCache,
		ProvideKafkaSignalsHandler,
		ProvideSignalRecorder,
		ProvideSignalEngine,
		ProvideTrainer,
		ProvideMarketUseCase,
		ProvideCandlesUseCase,
		ProvideScanner,
		ProvideTrainingQueue,

		// HTTP surface
		ProvideHub,
		ProvideHTTPHandler,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
