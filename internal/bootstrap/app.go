package bootstrap

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"assetflow/internal/bootstrap/config"
	"assetflow/internal/bootstrap/database"
	"assetflow/internal/errs"
	"assetflow/internal/infrastructure/persistence/sqlite/model"
)

// App bundles the process-level dependencies: loaded configuration and the
// open database handle.
type App struct {
	Config config.Config
	DB     *gorm.DB
}

func New(ctx context.Context, configFile string) (*App, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}

	cfg, err := config.Load(ctx, configFile)
	if err != nil {
		return nil, err
	}

	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	return &App{Config: cfg, DB: db}, nil
}

// InitSchema creates or migrates the persistent tables.
func (a *App) InitSchema(ctx context.Context) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	if a.DB == nil {
		return errors.New("database is not open")
	}

	if err := a.DB.WithContext(ctx).AutoMigrate(
		&model.EventRecord{},
		&model.StateKV{},
	); err != nil {
		return errs.Wrap(err, "migrate schema")
	}
	return nil
}

func (a *App) Close(ctx context.Context) error {
	if a == nil || a.DB == nil {
		return nil
	}

	sqlDB, err := a.DB.DB()
	if err != nil {
		return errs.Wrap(err, "get sql db")
	}
	if err := sqlDB.Close(); err != nil {
		return errs.Wrap(err, "close sql db")
	}
	return nil
}
