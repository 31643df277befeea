package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/i474232898/weather-report/internal/forecast"
)

// SQLStore persists forecast rows in the forecast_records table.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
}

// NewSQLStore wraps an open database handle.
func NewSQLStore(db *sql.DB, dialect Dialect) *SQLStore {
	return &SQLStore{db: db, dialect: dialect, now: time.Now}
}

// OpenPostgres connects to PostgreSQL and checks the connection.
func OpenPostgres(dsn string) (*SQLStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)

	return NewSQLStore(db, Postgres), nil
}

// OpenSQLite opens (or creates) the database file at path.
func OpenSQLite(path string) (*SQLStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	// A single connection avoids SQLITE_BUSY between concurrent writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}

	return NewSQLStore(db, SQLite), nil
}

// Insert writes rec and fills in its ID and insertion time.
func (s *SQLStore) Insert(ctx context.Context, rec *forecast.Record) error {
	insertedAt := s.now().UTC()
	query, args := buildInsertQuery(s.dialect, rec, insertedAt)

	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&rec.ID); err != nil {
		return fmt.Errorf("insert forecast for %s on %s: %w",
			rec.City, rec.ForecastDate.Format(forecast.DateLayout), err)
	}
	rec.InsertedAt = insertedAt
	return nil
}

// Find runs the ranked query for c.
func (s *SQLStore) Find(ctx context.Context, c forecast.Criteria) ([]forecast.Record, error) {
	query, args := buildFindQuery(s.dialect, c)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query forecasts (%s): %w", c.Match, err)
	}
	defer rows.Close()

	var records []forecast.Record
	for rows.Next() {
		var (
			rec        forecast.Record
			date       timeValue
			insertedAt timeValue
		)
		if err := rows.Scan(
			&rec.ID,
			&date,
			&rec.TemperatureMin,
			&rec.TemperatureMax,
			&rec.ConditionCode,
			&rec.WindSpeed,
			&rec.WindDirection,
			&rec.PrecipitationProbability,
			&rec.City,
			&rec.Latitude,
			&rec.Longitude,
			&insertedAt,
		); err != nil {
			return nil, fmt.Errorf("scan forecast row: %w", err)
		}
		rec.ForecastDate = date.Time.UTC()
		rec.InsertedAt = insertedAt.Time.UTC()
		records = append(records, rec)
	}

	return records, rows.Err()
}

// Ping checks the connection.
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the underlying database handle.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// timeValue scans DATE and TIMESTAMP columns whether the driver hands back a
// time.Time (lib/pq) or text (sqlite).
type timeValue struct {
	time.Time
}

var timeLayouts = []string{
	sqliteTimeLayout,
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	forecast.DateLayout,
}

func (v *timeValue) Scan(src any) error {
	switch t := src.(type) {
	case time.Time:
		v.Time = t
		return nil
	case string:
		return v.parse(t)
	case []byte:
		return v.parse(string(t))
	case nil:
		v.Time = time.Time{}
		return nil
	default:
		return fmt.Errorf("unsupported time value %T", src)
	}
}

func (v *timeValue) parse(s string) error {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			v.Time = t
			return nil
		}
	}
	return fmt.Errorf("unrecognized time value %q", s)
}
