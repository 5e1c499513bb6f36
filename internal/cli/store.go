package cli

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/crmkeeper/internal/storage"
	"github.com/dmitrijs2005/crmkeeper/internal/storage/memory"
	"github.com/dmitrijs2005/crmkeeper/internal/storage/postgres"
	"github.com/dmitrijs2005/crmkeeper/internal/storage/sqlite"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// openStore opens the durable store named by driver. The returned func
// releases it.
func openStore(ctx context.Context, driver, dsn string) (storage.Store, func() error, error) {
	switch driver {
	case DriverSQLite, "":
		s, err := sqlite.Open(ctx, dsn)
		if err != nil {
			return nil, nil, fmt.Errorf("sqlite init error: %w", err)
		}
		return s, s.Close, nil
	case DriverPostgres:
		s, err := postgres.Open(ctx, dsn)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres init error: %w", err)
		}
		return s, s.Close, nil
	case DriverMemory:
		return memory.New(), func() error { return nil }, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage driver %q", driver)
	}
}
