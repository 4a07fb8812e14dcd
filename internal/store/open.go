package store

import (
	"fmt"

	"deepvision/internal/config"
)

// Open constructs the store named by cfg.Storage.Backend.
func Open(cfg *config.Config) (Store, error) {
	switch cfg.Storage.Backend {
	case "file":
		return NewFileStore(cfg.Storage.DataDir)
	case "sqlite":
		return NewSQLiteStore(cfg.GetDatabasePath())
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", cfg.Storage.Backend)
	}
}
