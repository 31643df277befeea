package forecast

import (
	"context"
)

// LocationResolver maps a free-text place name to canonical coordinates.
// Implementations return ErrLocationNotFound when the search has no results.
type LocationResolver interface {
	Resolve(ctx context.Context, query string) (Location, error)
}

// Provider fetches a daily forecast series for a coordinate pair.
type Provider interface {
	Forecast(ctx context.Context, lat, lon float64) (DailySeries, error)
}

// Store is the contract the SQL and in-memory forecast stores satisfy.
// Find returns the deduplicated rows (latest insert per day and location)
// ordered by forecast date.
type Store interface {
	Insert(ctx context.Context, rec *Record) error
	Find(ctx context.Context, c Criteria) ([]Record, error)
}

// Locker serializes work on a key. The returned func releases the lock.
type Locker interface {
	Lock(ctx context.Context, key string) (func(), error)
}

// Recorder receives workflow counters.
type Recorder interface {
	CacheLookup(hit bool)
	ProviderCall(endpoint string, err error)
	RecordsPersisted(n int)
}

type nopRecorder struct{}

func (nopRecorder) CacheLookup(bool)           {}
func (nopRecorder) ProviderCall(string, error) {}
func (nopRecorder) RecordsPersisted(int)       {}
