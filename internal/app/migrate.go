package app

import (
	"fmt"

	"valuewatcher/internal/config"
	"valuewatcher/internal/storage"
)

// Migrate applies the embedded postgres schema.
func (a *App) Migrate() (uint, error) {
	if a.Config.Storage.Driver != "postgres" {
		return 0, fmt.Errorf("%w: migrations only apply to the postgres driver, got %q", config.ErrInvalid, a.Config.Storage.Driver)
	}
	if a.Config.Database.DSN == "" {
		return 0, fmt.Errorf("%w: database.dsn is required", config.ErrInvalid)
	}
	version, err := storage.Migrate(a.Config.Database.DSN)
	if err != nil {
		return 0, err
	}
	a.Logger.Info().Uint("version", version).Msg("schema migrated")
	return version, nil
}
