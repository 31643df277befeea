package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/weather-report/internal/forecast"
	"github.com/i474232898/weather-report/internal/store"
)

type stubResolver struct{ calls int }

func (s *stubResolver) Resolve(_ context.Context, query string) (forecast.Location, error) {
	s.calls++
	if strings.EqualFold(query, "atlantis") {
		return forecast.Location{}, forecast.ErrLocationNotFound
	}
	return forecast.Location{Name: "Berlin", Latitude: "52.52437", Longitude: "13.41053"}, nil
}

type stubProvider struct{ calls int }

func (s *stubProvider) Forecast(_ context.Context, lat, _ float64) (forecast.DailySeries, error) {
	s.calls++
	if lat > 90 {
		return forecast.DailySeries{}, &forecast.UpstreamError{Status: http.StatusBadRequest, Body: "invalid latitude"}
	}
	v := func(f float64) *float64 { return &f }
	return forecast.DailySeries{
		Time:                     []string{"2024-01-01", "2024-01-02", "2024-01-03"},
		TemperatureMin:           []*float64{nil, v(1), v(2)},
		TemperatureMax:           []*float64{v(5), v(6), v(7)},
		Pictocode:                []*float64{v(1), v(4), v(22)},
		WindSpeedMax:             []*float64{v(3), v(3), v(3)},
		WindDirection:            []*float64{v(0), v(90), v(180)},
		PrecipitationProbability: []*float64{v(0), v(10), v(20)},
	}, nil
}

type fixture struct {
	app      *fiber.App
	resolver *stubResolver
	provider *stubProvider
}

func newFixture(t *testing.T) fixture {
	t.Helper()

	f := fixture{resolver: &stubResolver{}, provider: &stubProvider{}}
	clock := func() time.Time { return time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC) }
	svc := forecast.NewService(store.NewMemoryStore(), f.resolver, f.provider, forecast.WithClock(clock))

	f.app = fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	f.app.Use(recover.New())
	RegisterRoutes(f.app, svc)
	f.app.Get("/boom", func(c *fiber.Ctx) error { panic("boom") })
	f.app.Get("/fail", func(c *fiber.Ctx) error { return errors.New("secret detail") })
	f.app.Use(NotFound)
	return f
}

func (f fixture) do(t *testing.T, method, target, body string) (int, []byte) {
	t.Helper()

	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := f.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, raw
}

func decodeMap(t *testing.T, raw []byte) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(raw, &m), string(raw))
	return m
}

func TestIngestThenCacheHit(t *testing.T) {
	f := newFixture(t)
	body := `{"cidade":"berlin","startDate":"2024-01-01","endDate":"2024-01-03"}`

	status, raw := f.do(t, http.MethodPost, "/api/weather", body)
	require.Equal(t, http.StatusOK, status, string(raw))
	got := decodeMap(t, raw)
	assert.Equal(t, "3 previsões salvas com sucesso para Berlin.", got["message"])
	assert.Equal(t, "Berlin", got["city_name_official"])
	assert.NotContains(t, got, "cached")

	status, raw = f.do(t, http.MethodPost, "/api/weather", body)
	require.Equal(t, http.StatusOK, status)
	got = decodeMap(t, raw)
	assert.Equal(t, true, got["cached"])
	assert.Equal(t, "3 previsões encontradas em cache para Berlin.", got["message"])

	assert.Equal(t, 2, f.resolver.calls)
	assert.Equal(t, 1, f.provider.calls)
}

func TestIngestInvalidRequests(t *testing.T) {
	f := newFixture(t)

	for _, body := range []string{"", `{}`, `{"latitude":52.5}`, `{"latitude":"x","longitude":"1"}`, `{"cidade":`} {
		status, raw := f.do(t, http.MethodPost, "/api/weather", body)
		assert.Equal(t, http.StatusBadRequest, status, body)
		got := decodeMap(t, raw)
		assert.Equal(t, true, got["error"])
		assert.NotEmpty(t, got["message"])
	}
	assert.Zero(t, f.resolver.calls)
	assert.Zero(t, f.provider.calls)
}

func TestIngestUnknownCity(t *testing.T) {
	f := newFixture(t)
	status, raw := f.do(t, http.MethodPost, "/api/weather", `{"cidade":"Atlantis"}`)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Contains(t, decodeMap(t, raw)["message"], "Atlantis")
}

func TestIngestOutOfRangeCoordinatesSurfaceProviderError(t *testing.T) {
	f := newFixture(t)
	status, raw := f.do(t, http.MethodPost, "/api/weather", `{"latitude":200,"longitude":"50"}`)
	assert.Equal(t, http.StatusBadRequest, status)

	got := decodeMap(t, raw)
	assert.Equal(t, "Erro na API de previsão Meteoblue.", got["message"])
	assert.Equal(t, "invalid latitude", got["details"])
	assert.Equal(t, 1, f.provider.calls)
}

func TestReportReturnsAllRowsOrdered(t *testing.T) {
	f := newFixture(t)

	status, raw := f.do(t, http.MethodGet, "/api/weather/report", "")
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `[]`, string(raw))

	for _, body := range []string{`{"cidade":"Berlin"}`, `{"latitude":"48.85","longitude":"2.35"}`} {
		status, _ = f.do(t, http.MethodPost, "/api/weather", body)
		require.Equal(t, http.StatusOK, status)
	}
	// A second fetch for the same place replaces rows at read time.
	status, _ = f.do(t, http.MethodPost, "/api/weather", `{"cidade":"Berlin","startDate":"2023-12-01","endDate":"2023-12-02"}`)
	require.Equal(t, http.StatusOK, status)

	status, raw = f.do(t, http.MethodGet, "/api/weather/report", "")
	require.Equal(t, http.StatusOK, status)

	var rows []map[string]any
	require.NoError(t, json.Unmarshal(raw, &rows))
	require.Len(t, rows, 6)

	var prev string
	for _, r := range rows {
		d := r["DataPrevisao"].(string)
		assert.GreaterOrEqual(t, d, prev)
		prev = d
	}
	assert.Equal(t, "Berlin", rows[0]["Cidade"])
	assert.Equal(t, forecast.CoordinatesCity, rows[1]["Cidade"])
	assert.Equal(t, "Ensolarado, céu sem nuvens", rows[0]["CondicoesClimaticas"])
	assert.Equal(t, 0.0, rows[0]["TemperaturaMin"])
	assert.Equal(t, "22", rows[4]["CondicoesClimaticas"])

	status, raw = f.do(t, http.MethodGet, "/api/weather/report?cidade=BERLIN&startDate=2024-01-02&endDate=2024-01-03", "")
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(raw, &rows))
	require.Len(t, rows, 2)
	assert.Equal(t, "2024-01-02", rows[0]["DataPrevisao"])
}

func TestReportRejectsMalformedDate(t *testing.T) {
	f := newFixture(t)
	status, _ := f.do(t, http.MethodGet, "/api/weather/report?startDate=yesterday&endDate=2024-01-01", "")
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestFallbackResponses(t *testing.T) {
	f := newFixture(t)

	status, raw := f.do(t, http.MethodGet, "/nope", "")
	assert.Equal(t, http.StatusNotFound, status)
	assert.JSONEq(t, `{"error":true,"message":"recurso não encontrado"}`, string(raw))

	status, raw = f.do(t, http.MethodGet, "/boom", "")
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.JSONEq(t, `{"error":true,"message":"erro interno do servidor"}`, string(raw))

	status, raw = f.do(t, http.MethodGet, "/fail", "")
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.NotContains(t, string(raw), "secret detail")
}

type observations struct{ routes []string }

func (o *observations) ObserveRequest(method, route string, status int, _ time.Duration) {
	o.routes = append(o.routes, method+" "+route+" "+http.StatusText(status))
}

func TestInstrumentReportsRoutePattern(t *testing.T) {
	obs := &observations{}
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	app.Use(Instrument(obs))
	app.Get("/items/:id", func(c *fiber.Ctx) error {
		if c.Params("id") == "0" {
			return fiber.NewError(fiber.StatusBadRequest, "bad id")
		}
		return c.SendString("ok")
	})

	for _, target := range []string{"/items/7", "/items/0"} {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, target, nil))
		require.NoError(t, err)
		resp.Body.Close()
	}

	assert.Equal(t, []string{"GET /items/:id OK", "GET /items/:id Bad Request"}, obs.routes)
}
