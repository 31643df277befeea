package store

import (
	"context"
	"fmt"

	"github.com/i474232898/weather-report/internal/forecast"
)

// Backend is a forecast store the process owns: it can be health-checked and closed.
type Backend interface {
	forecast.Store
	Ping(ctx context.Context) error
	Close() error
}

var (
	_ Backend = (*SQLStore)(nil)
	_ Backend = (*MemoryStore)(nil)
)

// Open builds the store for driver. dsn is a connection string for postgres
// and a file path for sqlite; it is ignored for memory.
func Open(driver, dsn string, migrate bool) (Backend, error) {
	var (
		st  *SQLStore
		err error
	)
	switch driver {
	case "memory":
		return NewMemoryStore(), nil
	case Postgres.Name:
		st, err = OpenPostgres(dsn)
	case SQLite.Name:
		st, err = OpenSQLite(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
	if err != nil {
		return nil, err
	}

	if migrate {
		if err := st.Migrate(); err != nil {
			st.Close()
			return nil, err
		}
	}
	return st, nil
}
