//go:build wireinject
// +build wireinject

package di

import (
	"TrendScan/pkg/config"
	"TrendScan/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Infrastructure clients
		ProvideKafkaProducer,
		ProvideLogger,
		ProvideClickHouseClient,
		ProvideCache,
		ProvideMetrics,

		// Repositories
		ProvidePriceSource,
		ProvideResultStore,
		ProvideSignalPublisher,
		ProvideSnapshotCache,
		ProvideRunLock,

		// Core and use cases
		ProvideEngine,
		ProvideBatchRunner,
		ProvideQueue,

		// Delivery
		ProvideHandler,
		ProvideApp,
	)
	return &server.App{}, nil
}
