package bootstrap

import (
	"context"

	"go.uber.org/fx"
	"gorm.io/gorm"

	"assetflow/internal/bootstrap/config"
	"assetflow/internal/bootstrap/database"
	"assetflow/internal/infrastructure/cache"
	"assetflow/internal/infrastructure/persistence/sqlite/repository"
	"assetflow/internal/infrastructure/persistence/sqlite/uow"
	"assetflow/internal/ports"
	"assetflow/internal/usecase/orchestrate"
)

type configParams struct {
	fx.In

	Ctx        context.Context
	ConfigFile string `name:"configFile"`
}

func provideConfig(p configParams) (config.Config, error) {
	return config.Load(p.Ctx, p.ConfigFile)
}

func provideDatabase(ctx context.Context, cfg config.Config, lc fx.Lifecycle) (*gorm.DB, error) {
	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return (&App{DB: db}).Close(ctx)
		},
	})
	return db, nil
}

func provideApp(cfg config.Config, db *gorm.DB) *App {
	return &App{Config: cfg, DB: db}
}

// Module wires configuration, database, persistence adapters and the
// orchestration service for fx-based commands. The caller provides the
// command context and the config file path (tagged name:"configFile").
var Module = fx.Options(
	fx.Provide(
		provideConfig,
		provideDatabase,
		provideApp,
		fx.Annotate(repository.NewEventLogRepository, fx.As(new(ports.EventLog))),
		fx.Annotate(uow.NewUnitOfWork, fx.As(new(ports.UnitOfWork))),
		fx.Annotate(cache.NewSQLiteCache, fx.As(new(ports.Cache))),
		orchestrate.NewService,
	),
)
