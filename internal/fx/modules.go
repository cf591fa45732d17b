package fx

import (
	"table-allocator/internal/allocator"
	"table-allocator/internal/api"
	"table-allocator/internal/config"
	"table-allocator/internal/database"
	"table-allocator/internal/logger"
	"table-allocator/internal/repository"
	"table-allocator/internal/server"
	"table-allocator/internal/service"

	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

func ProvideAllocationService(bcp *api.BCPClient, tournamentRepo *repository.TournamentRepository, tableRepo *repository.TableRepository, allocationRepo *repository.AllocationRepository, engine *allocator.Engine, log zerolog.Logger) *service.AllocationService {
	return service.NewAllocationService(bcp, tournamentRepo, tableRepo, allocationRepo, engine, log)
}

func ProvideAdjustmentService(allocationRepo *repository.AllocationRepository, tableRepo *repository.TableRepository, log zerolog.Logger) *service.AdjustmentService {
	return service.NewAdjustmentService(allocationRepo, tableRepo, log)
}

var Module = fx.Options(
	fx.Provide(logger.New),
	fx.Provide(config.Load),
	fx.Provide(database.New),
	// repos
	fx.Provide(repository.NewTournamentRepository),
	fx.Provide(repository.NewTableRepository),
	fx.Provide(repository.NewAllocationRepository),
	// pairing source
	fx.Provide(api.NewBCPClient),
	// engine + svc
	fx.Provide(allocator.NewEngine),
	fx.Provide(ProvideAllocationService),
	fx.Provide(ProvideAdjustmentService),
	// server
	fx.Provide(server.NewAllocatorServer),
)
