package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/i474232898/weather-report/internal/forecast"
)

// MemoryStore is a concurrency-safe in-memory forecast store. It keeps every
// inserted row and deduplicates at read time like the SQL store does.
type MemoryStore struct {
	mu sync.RWMutex

	records []forecast.Record
	nextID  int64
	now     func() time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{now: time.Now}
}

// Insert appends a copy of rec and fills in its ID and insertion time.
func (s *MemoryStore) Insert(_ context.Context, rec *forecast.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	rec.ID = s.nextID
	rec.InsertedAt = s.now().UTC()
	s.records = append(s.records, *rec)
	return nil
}

// Find groups the matching rows per day and location and keeps the one with
// the latest insertion time (highest ID on ties).
func (s *MemoryStore) Find(_ context.Context, c forecast.Criteria) ([]forecast.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	latest := make(map[string]forecast.Record)
	for _, rec := range s.records {
		if !matches(rec, c) {
			continue
		}
		key := partitionKey(rec, c.Match)
		cur, ok := latest[key]
		if !ok || newer(rec, cur) {
			latest[key] = rec
		}
	}

	result := make([]forecast.Record, 0, len(latest))
	for _, rec := range latest {
		result = append(result, rec)
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].ForecastDate.Equal(result[j].ForecastDate) {
			return result[i].ForecastDate.Before(result[j].ForecastDate)
		}
		return result[i].City < result[j].City
	})
	return result, nil
}

// Ping always succeeds.
func (s *MemoryStore) Ping(context.Context) error {
	return nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error {
	return nil
}

func matches(rec forecast.Record, c forecast.Criteria) bool {
	switch c.Match {
	case forecast.MatchCity:
		if !strings.EqualFold(rec.City, c.City) {
			return false
		}
	case forecast.MatchCoordinates:
		if rec.Latitude != c.Latitude || rec.Longitude != c.Longitude {
			return false
		}
	}
	if c.Range != nil {
		if rec.ForecastDate.Before(c.Range.From) || !rec.ForecastDate.Before(c.Range.EndExclusive()) {
			return false
		}
	}
	return true
}

func partitionKey(rec forecast.Record, m forecast.MatchKind) string {
	day := rec.ForecastDate.Format(forecast.DateLayout)
	if m == forecast.MatchCoordinates {
		return day + "|" + formatCoordinate(rec.Latitude) + "," + formatCoordinate(rec.Longitude)
	}
	return day + "|" + rec.City
}

func newer(a, b forecast.Record) bool {
	if !a.InsertedAt.Equal(b.InsertedAt) {
		return a.InsertedAt.After(b.InsertedAt)
	}
	return a.ID > b.ID
}
