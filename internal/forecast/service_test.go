package forecast

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeResolver struct {
	loc   Location
	err   error
	calls int
}

func (f *fakeResolver) Resolve(_ context.Context, _ string) (Location, error) {
	f.calls++
	return f.loc, f.err
}

type fakeProvider struct {
	series DailySeries
	err    error
	calls  int
	lat    float64
	lon    float64
}

func (f *fakeProvider) Forecast(_ context.Context, lat, lon float64) (DailySeries, error) {
	f.calls++
	f.lat, f.lon = lat, lon
	return f.series, f.err
}

// fakeStore keeps rows in insertion order and answers Find by city or
// coordinates and range, without dedup.
type fakeStore struct {
	mu        sync.Mutex
	rows      []Record
	inserts   int
	finds     []Criteria
	failAfter int // insert fails once this many rows are stored; 0 never fails
	findErr   error
}

func (f *fakeStore) Insert(_ context.Context, rec *Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inserts++
	if f.failAfter > 0 && len(f.rows) >= f.failAfter {
		return errors.New("disk full")
	}
	rec.ID = int64(len(f.rows) + 1)
	f.rows = append(f.rows, *rec)
	return nil
}

func (f *fakeStore) Find(_ context.Context, c Criteria) ([]Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finds = append(f.finds, c)
	if f.findErr != nil {
		return nil, f.findErr
	}
	var out []Record
	for _, r := range f.rows {
		switch c.Match {
		case MatchCity:
			if !strings.EqualFold(r.City, c.City) {
				continue
			}
		case MatchCoordinates:
			if r.Latitude != c.Latitude || r.Longitude != c.Longitude {
				continue
			}
		}
		if c.Range != nil && (r.ForecastDate.Before(c.Range.From) || !r.ForecastDate.Before(c.Range.EndExclusive())) {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func ptr(v float64) *float64 { return &v }

func threeDays() DailySeries {
	return DailySeries{
		Time:                     []string{"2024-01-01", "2024-01-02", "2024-01-03"},
		TemperatureMin:           []*float64{nil, ptr(-1), ptr(0.5)},
		TemperatureMax:           []*float64{ptr(4), ptr(5), ptr(6)},
		Pictocode:                []*float64{ptr(3), nil, ptr(0)},
		WindSpeedMax:             []*float64{ptr(10), ptr(11), ptr(12)},
		WindDirection:            []*float64{ptr(270), nil, ptr(90)},
		PrecipitationProbability: []*float64{ptr(20), ptr(30), ptr(40)},
	}
}

func newTestService(st Store, res LocationResolver, prov Provider, opts ...Option) *Service {
	clock := func() time.Time { return time.Date(2024, 1, 1, 9, 30, 0, 0, time.UTC) }
	return NewService(st, res, prov, append([]Option{WithClock(clock)}, opts...)...)
}

func berlin() *fakeResolver {
	return &fakeResolver{loc: Location{Name: "Berlin", Latitude: "52.52437", Longitude: "13.41053"}}
}

func TestIngestStoresCanonicalCityAndCachesRepeat(t *testing.T) {
	st := &fakeStore{}
	res := berlin()
	prov := &fakeProvider{series: threeDays()}
	svc := newTestService(st, res, prov)

	req := IngestRequest{City: "  berlin ", StartDate: "2024-01-01", EndDate: "2024-01-03"}
	got, err := svc.Ingest(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, IngestResult{Count: 3, City: "Berlin"}, got)
	assert.Equal(t, "3 previsões salvas com sucesso para Berlin.", got.Message())
	assert.Equal(t, 1, res.calls)
	assert.Equal(t, 1, prov.calls)
	require.Len(t, st.rows, 3)
	for _, r := range st.rows {
		assert.Equal(t, "Berlin", r.City)
		assert.Equal(t, 52.52437, r.Latitude)
	}
	assert.Zero(t, st.rows[0].TemperatureMin)
	assert.Equal(t, "3", st.rows[0].ConditionCode)
	assert.Equal(t, UnknownCondition, st.rows[2].ConditionCode)
	assert.Equal(t, UnknownWindDirection, st.rows[1].WindDirection)

	again, err := svc.Ingest(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, again.Cached)
	assert.Equal(t, 3, again.Count)
	assert.Equal(t, "3 previsões encontradas em cache para Berlin.", again.Message())
	assert.Equal(t, 1, prov.calls)
	assert.Equal(t, 3, st.inserts)
}

func TestIngestRejectsMissingLocationWithoutCalls(t *testing.T) {
	cases := []IngestRequest{
		{},
		{City: "   "},
		{Latitude: "52.5"},
		{Latitude: "north", Longitude: "13.4"},
	}
	for _, req := range cases {
		st := &fakeStore{}
		res := berlin()
		prov := &fakeProvider{series: threeDays()}
		svc := newTestService(st, res, prov)

		_, err := svc.Ingest(context.Background(), req)
		require.Error(t, err)
		assert.True(t, IsKind(err, KindInvalidRequest), "%+v: %v", req, err)
		assert.Zero(t, res.calls)
		assert.Zero(t, prov.calls)
		assert.Empty(t, st.finds)
		assert.Zero(t, st.inserts)
	}
}

func TestIngestRejectsMalformedDates(t *testing.T) {
	svc := newTestService(&fakeStore{}, berlin(), &fakeProvider{})
	_, err := svc.Ingest(context.Background(), IngestRequest{City: "Berlin", StartDate: "01/01/2024", EndDate: "2024-01-03"})
	assert.True(t, IsKind(err, KindInvalidRequest))
}

func TestIngestOutOfRangeCoordinatesReachProvider(t *testing.T) {
	st := &fakeStore{}
	prov := &fakeProvider{err: &UpstreamError{Status: http.StatusBadRequest, Body: "latitude out of range"}}
	svc := newTestService(st, berlin(), prov)

	_, err := svc.Ingest(context.Background(), IngestRequest{Latitude: "200", Longitude: "50"})
	require.Error(t, err)

	var fe *Error
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, KindProviderError, fe.Kind)
	assert.Equal(t, http.StatusBadRequest, fe.Status)
	assert.Equal(t, "latitude out of range", fe.Details)
	assert.Equal(t, 200.0, prov.lat)
	assert.Equal(t, 50.0, prov.lon)
}

func TestIngestCoordinatesUseSentinelCity(t *testing.T) {
	st := &fakeStore{}
	res := berlin()
	prov := &fakeProvider{series: threeDays()}
	svc := newTestService(st, res, prov)

	got, err := svc.Ingest(context.Background(), IngestRequest{Latitude: "48.8566", Longitude: "2.3522"})
	require.NoError(t, err)
	assert.Equal(t, CoordinatesCity, got.City)
	assert.Zero(t, res.calls)
	require.Len(t, st.finds, 1)
	assert.Equal(t, MatchCoordinates, st.finds[0].Match)
	for _, r := range st.rows {
		assert.Equal(t, CoordinatesCity, r.City)
	}
}

func TestIngestDefaultCacheWindow(t *testing.T) {
	st := &fakeStore{}
	svc := newTestService(st, berlin(), &fakeProvider{series: threeDays()})

	_, err := svc.Ingest(context.Background(), IngestRequest{City: "Berlin", StartDate: "2024-01-01"})
	require.NoError(t, err)

	require.Len(t, st.finds, 1)
	rng := st.finds[0].Range
	require.NotNil(t, rng)
	assert.Equal(t, "2024-01-01..2024-01-08", rng.String())
}

func TestIngestResolverFailures(t *testing.T) {
	svc := newTestService(&fakeStore{}, &fakeResolver{err: ErrLocationNotFound}, &fakeProvider{})
	_, err := svc.Ingest(context.Background(), IngestRequest{City: "Atlantis"})
	assert.True(t, IsKind(err, KindLocationNotFound))

	svc = newTestService(&fakeStore{}, &fakeResolver{err: errors.New("dial tcp: timeout")}, &fakeProvider{})
	_, err = svc.Ingest(context.Background(), IngestRequest{City: "Berlin"})
	var fe *Error
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, KindProviderError, fe.Kind)
	assert.Equal(t, http.StatusInternalServerError, fe.Status)
	assert.Contains(t, fe.Details, "timeout")
}

func TestIngestUnparseableResolvedCoordinates(t *testing.T) {
	res := &fakeResolver{loc: Location{Name: "Nowhere", Latitude: "", Longitude: "x"}}
	svc := newTestService(&fakeStore{}, res, &fakeProvider{})
	_, err := svc.Ingest(context.Background(), IngestRequest{City: "Nowhere"})
	assert.True(t, IsKind(err, KindInvalidCoordinates))
}

func TestIngestEmptyForecast(t *testing.T) {
	st := &fakeStore{}
	svc := newTestService(st, berlin(), &fakeProvider{})
	_, err := svc.Ingest(context.Background(), IngestRequest{City: "Berlin"})
	assert.True(t, IsKind(err, KindEmptyForecast))
	assert.Zero(t, st.inserts)
}

func TestIngestStorageFailureMidLoopKeepsEarlierRows(t *testing.T) {
	st := &fakeStore{failAfter: 2}
	svc := newTestService(st, berlin(), &fakeProvider{series: threeDays()})

	_, err := svc.Ingest(context.Background(), IngestRequest{City: "Berlin"})
	var fe *Error
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, KindStorageError, fe.Kind)
	assert.Equal(t, "disk full", fe.Details)
	assert.Len(t, st.rows, 2)
}

type countingLocker struct {
	mu   sync.Mutex
	keys []string
	err  error
}

func (l *countingLocker) Lock(_ context.Context, key string) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.keys = append(l.keys, key)
	if l.err != nil {
		return nil, l.err
	}
	return func() {}, nil
}

func TestIngestLocksPerCityAndRange(t *testing.T) {
	l := &countingLocker{}
	svc := newTestService(&fakeStore{}, berlin(), &fakeProvider{series: threeDays()}, WithLocker(l))

	_, err := svc.Ingest(context.Background(), IngestRequest{City: "berlin", StartDate: "2024-01-01", EndDate: "2024-01-03"})
	require.NoError(t, err)
	assert.Equal(t, []string{"city:berlin|2024-01-01..2024-01-03"}, l.keys)

	_, err = svc.Ingest(context.Background(), IngestRequest{Latitude: "1.5", Longitude: "-2"})
	require.NoError(t, err)
	assert.Equal(t, "coords:1.500000,-2.000000|2024-01-01..2024-01-08", l.keys[1])
}

func TestIngestContinuesWhenLockFails(t *testing.T) {
	l := &countingLocker{err: errors.New("redis down")}
	st := &fakeStore{}
	svc := newTestService(st, berlin(), &fakeProvider{series: threeDays()}, WithLocker(l))

	got, err := svc.Ingest(context.Background(), IngestRequest{City: "Berlin"})
	require.NoError(t, err)
	assert.Equal(t, 3, got.Count)
}

type recorded struct {
	hits, misses, persisted int
	calls                   map[string]int
}

func (r *recorded) CacheLookup(hit bool) {
	if hit {
		r.hits++
	} else {
		r.misses++
	}
}

func (r *recorded) ProviderCall(endpoint string, _ error) { r.calls[endpoint]++ }
func (r *recorded) RecordsPersisted(n int)               { r.persisted += n }

func TestIngestReportsCounters(t *testing.T) {
	rec := &recorded{calls: map[string]int{}}
	svc := newTestService(&fakeStore{}, berlin(), &fakeProvider{series: threeDays()}, WithRecorder(rec))

	req := IngestRequest{City: "Berlin", StartDate: "2024-01-01", EndDate: "2024-01-03"}
	_, err := svc.Ingest(context.Background(), req)
	require.NoError(t, err)
	_, err = svc.Ingest(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, 1, rec.hits)
	assert.Equal(t, 1, rec.misses)
	assert.Equal(t, 3, rec.persisted)
	assert.Equal(t, map[string]int{"location": 2, "forecast": 1}, rec.calls)
}
