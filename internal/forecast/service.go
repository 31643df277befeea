package forecast

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// cacheWindowDays is how far ahead the cache lookup looks when the request has no dates.
const cacheWindowDays = 7

// Service orchestrates location resolution, the cache lookup, the provider
// fetch and the store.
type Service struct {
	store    Store
	resolver LocationResolver
	provider Provider
	locker   Locker
	recorder Recorder
	now      func() time.Time
}

// Option customizes a Service.
type Option func(*Service)

// WithLocker serializes fetches per city (or coordinates) and date range.
func WithLocker(l Locker) Option {
	return func(s *Service) { s.locker = l }
}

// WithRecorder reports cache and provider counters.
func WithRecorder(r Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

// WithClock overrides the clock used for the default cache window.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a new Service.
func NewService(store Store, resolver LocationResolver, provider Provider, opts ...Option) *Service {
	s := &Service{
		store:    store,
		resolver: resolver,
		provider: provider,
		recorder: nopRecorder{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type coordinateInput struct {
	Latitude  string `validate:"required,numeric"`
	Longitude string `validate:"required,numeric"`
}

type dateInput struct {
	StartDate string `validate:"omitempty,datetime=2006-01-02"`
	EndDate   string `validate:"omitempty,datetime=2006-01-02"`
}

// Ingest resolves the requested location and either reports rows already in
// the store or fetches the forecast and persists one row per day.
//
// Rows are written one by one without a transaction; a store failure part way
// through leaves the earlier rows in place.
func (s *Service) Ingest(ctx context.Context, req IngestRequest) (IngestResult, error) {
	req.City = strings.TrimSpace(req.City)
	req.Latitude = strings.TrimSpace(req.Latitude)
	req.Longitude = strings.TrimSpace(req.Longitude)

	log.Printf("DEBUG: ingest request: city=%q lat=%q lon=%q start=%q end=%q",
		req.City, req.Latitude, req.Longitude, req.StartDate, req.EndDate)

	if req.City == "" {
		if err := validate.Struct(coordinateInput{Latitude: req.Latitude, Longitude: req.Longitude}); err != nil {
			return IngestResult{}, invalidRequest("Por favor, forneça uma cidade OU latitude e longitude.", err)
		}
	}

	rng, err := parseRange(req.StartDate, req.EndDate)
	if err != nil {
		return IngestResult{}, err
	}

	city, latText, lonText := req.City, req.Latitude, req.Longitude
	if req.City != "" {
		loc, err := s.resolver.Resolve(ctx, req.City)
		s.recorder.ProviderCall("location", err)
		if err != nil {
			if errors.Is(err, ErrLocationNotFound) {
				log.Printf("INFO: no location found for %q", req.City)
				return IngestResult{}, locationNotFound(req.City)
			}
			log.Printf("ERROR: location search failed for %q: %v", req.City, err)
			return IngestResult{}, providerError("Erro na API de busca de localização.", err)
		}
		city, latText, lonText = loc.Name, loc.Latitude, loc.Longitude
		log.Printf("INFO: resolved %q to %q (%s, %s)", req.City, city, latText, lonText)
	} else {
		city = CoordinatesCity
	}

	lat, lon, err := ParseCoordinates(latText, lonText)
	if err != nil {
		return IngestResult{}, invalidCoordinates(err)
	}

	lookup := s.cacheCriteria(req.City != "", city, lat, lon, rng)

	if s.locker != nil {
		key := lockKey(lookup)
		unlock, err := s.locker.Lock(ctx, key)
		if err != nil {
			// Duplicate fetches are tolerated; the report keeps the latest row.
			log.Printf("WARN: could not lock %s, continuing unlocked: %v", key, err)
		} else {
			defer unlock()
		}
	}

	cached, err := s.store.Find(ctx, lookup)
	if err != nil {
		return IngestResult{}, storageError("Erro ao consultar previsões em cache.", err)
	}
	s.recorder.CacheLookup(len(cached) > 0)
	if len(cached) > 0 {
		log.Printf("INFO: cache hit for %q: %d rows in %s", city, len(cached), lookup.Range)
		return IngestResult{Count: len(cached), City: city, Cached: true}, nil
	}

	log.Printf("INFO: cache miss for %q, fetching forecast for %f,%f", city, lat, lon)
	series, err := s.provider.Forecast(ctx, lat, lon)
	s.recorder.ProviderCall("forecast", err)
	if err != nil {
		log.Printf("ERROR: forecast fetch failed for %f,%f: %v", lat, lon, err)
		return IngestResult{}, providerError("Erro na API de previsão Meteoblue.", err)
	}
	if series.Len() == 0 {
		return IngestResult{}, emptyForecast()
	}

	records, err := BuildRecords(series, city, lat, lon)
	if err != nil {
		return IngestResult{}, providerError("Resposta de previsão inválida.", err)
	}

	saved := 0
	for i := range records {
		if err := s.store.Insert(ctx, &records[i]); err != nil {
			log.Printf("ERROR: insert failed after %d of %d rows for %q: %v", saved, len(records), city, err)
			s.recorder.RecordsPersisted(saved)
			return IngestResult{}, storageError("Erro ao salvar previsões no banco de dados.", err)
		}
		saved++
	}
	s.recorder.RecordsPersisted(saved)

	return IngestResult{Count: saved, City: city}, nil
}

// Message is the human-readable outcome returned to the form.
func (r IngestResult) Message() string {
	if r.Cached {
		return fmt.Sprintf("%d previsões encontradas em cache para %s.", r.Count, r.City)
	}
	return fmt.Sprintf("%d previsões salvas com sucesso para %s.", r.Count, r.City)
}

// cacheCriteria matches the city for named requests and the exact coordinates
// otherwise. Without an explicit range it looks at today through today+7,
// computed on every call.
func (s *Service) cacheCriteria(named bool, city string, lat, lon float64, rng *DateRange) Criteria {
	if rng == nil {
		today := truncateDay(s.now())
		rng = &DateRange{From: today, To: today.AddDate(0, 0, cacheWindowDays)}
	}
	if named {
		return Criteria{Match: MatchCity, City: city, Range: rng}
	}
	return Criteria{Match: MatchCoordinates, Latitude: lat, Longitude: lon, Range: rng}
}

func lockKey(c Criteria) string {
	var b strings.Builder
	switch c.Match {
	case MatchCity:
		b.WriteString("city:")
		b.WriteString(strings.ToLower(c.City))
	default:
		fmt.Fprintf(&b, "coords:%.6f,%.6f", c.Latitude, c.Longitude)
	}
	if c.Range != nil {
		b.WriteString("|")
		b.WriteString(c.Range.String())
	}
	return b.String()
}

// parseRange returns nil unless both dates are given.
func parseRange(start, end string) (*DateRange, error) {
	start, end = strings.TrimSpace(start), strings.TrimSpace(end)
	if err := validate.Struct(dateInput{StartDate: start, EndDate: end}); err != nil {
		return nil, invalidRequest("Datas devem estar no formato AAAA-MM-DD.", err)
	}
	if start == "" || end == "" {
		return nil, nil
	}
	from, err := ParseDate(start)
	if err != nil {
		return nil, invalidRequest("Data inicial inválida.", err)
	}
	to, err := ParseDate(end)
	if err != nil {
		return nil, invalidRequest("Data final inválida.", err)
	}
	return &DateRange{From: from, To: to}, nil
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
