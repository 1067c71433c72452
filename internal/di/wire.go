//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	"github.com/WebOleg/new-clean-payment-plugin-sub000/internal/app"
	"github.com/WebOleg/new-clean-payment-plugin-sub000/internal/repository"
	"github.com/WebOleg/new-clean-payment-plugin-sub000/internal/service"
)

func InitializeApp() (*app.App, error) {
	panic(wire.Build(
		ConfigSet,
		ObservabilitySet,
		RuntimeInfraSet,
		RepositorySet,
		SecuritySet,
		ServiceSet,
		HTTPSet,
		AppSet,
	))
}

func InitializeMigrationRunner() (*MigrationRunner, error) {
	panic(wire.Build(
		ConfigSet,
		ObservabilitySet,
		provideOpenDB,
		NewMigrationRunner,
	))
}

func InitializeConnectionService() (*service.ConnectionService, error) {
	panic(wire.Build(
		ConfigSet,
		ObservabilitySet,
		provideClientFactory,
		provideConnectionService,
	))
}

func InitializeOrderRepository() (repository.OrderRepository, error) {
	panic(wire.Build(
		ConfigSet,
		provideOpenDB,
		RepositorySet,
	))
}
