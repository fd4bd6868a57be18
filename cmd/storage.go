package cmd

import (
	"fmt"

	"github.com/mselser95/polymarket-surveillance/internal/app"
	"github.com/mselser95/polymarket-surveillance/internal/storage"
	"github.com/mselser95/polymarket-surveillance/pkg/config"
	"go.uber.org/zap"
)

// openStorage connects to the persisted store without migrating it.
func openStorage(cfg *config.Config, logger *zap.Logger) (*storage.PostgresStorage, error) {
	if cfg.StorageMode != "postgres" {
		return nil, fmt.Errorf("STORAGE_MODE is %q, this command reads the postgres store", cfg.StorageMode)
	}

	pgConfig := app.PostgresConfig(cfg, logger)
	pgConfig.AutoMigrate = false

	store, err := storage.NewPostgresStorage(pgConfig)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	return store, nil
}
