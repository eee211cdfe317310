package store

import (
	"context"
	"fmt"

	"github.com/HaoYang670/rucat/internal/config"
	"github.com/HaoYang670/rucat/internal/store/memstore"
	"github.com/HaoYang670/rucat/internal/store/sqlstore"
)

// Open selects and constructs the EngineStore named by cfg.
func Open(ctx context.Context, cfg config.DatabaseConfig) (EngineStore, error) {
	driver, dsn, err := cfg.DSN()
	if err != nil {
		return nil, err
	}

	switch driver {
	case "memory":
		return memstore.New(), nil
	case "sqlite":
		return sqlstore.Open(ctx, dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}
