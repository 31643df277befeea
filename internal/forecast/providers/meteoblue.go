package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"

	"github.com/sony/gobreaker"

	"github.com/i474232898/weather-report/internal/common"
	"github.com/i474232898/weather-report/internal/forecast"
)

const (
	meteoblueSearchURL   = "https://www.meteoblue.com/en/server/search/query3"
	meteoblueForecastURL = "https://my.meteoblue.com/packages/basic-day"
	userAgent            = "WeatherReport/1.0"
)

// MeteoblueClient implements forecast.LocationResolver and forecast.Provider
// against the Meteoblue location search and basic-day package.
type MeteoblueClient struct {
	apiKey      string
	searchURL   string
	forecastURL string
	httpCfg     HTTPClientConfig
	circuit     *gobreaker.CircuitBreaker
}

var (
	_ forecast.LocationResolver = (*MeteoblueClient)(nil)
	_ forecast.Provider         = (*MeteoblueClient)(nil)
)

func NewMeteoblueClient(cfg HTTPClientConfig, apiKey string) *MeteoblueClient {
	return &MeteoblueClient{
		apiKey:      apiKey,
		searchURL:   meteoblueSearchURL,
		forecastURL: meteoblueForecastURL,
		httpCfg:     cfg,
		circuit:     newCircuitBreaker("meteoblue"),
	}
}

type searchResult struct {
	Name    string          `json:"name"`
	Lat     json.RawMessage `json:"lat"`
	Lon     json.RawMessage `json:"lon"`
	Country string          `json:"country"`
	Admin1  string          `json:"admin1"`
}

// Resolve returns the first search result; there is no ranking among matches.
func (c *MeteoblueClient) Resolve(ctx context.Context, query string) (forecast.Location, error) {
	buildRequest := func() (*http.Request, error) {
		values := url.Values{}
		values.Set("query", query)
		values.Set("apikey", c.apiKey)
		values.Set("format", "json")

		req, err := http.NewRequest(http.MethodGet, c.searchURL+"?"+values.Encode(), nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", userAgent)
		return req, nil
	}

	resp, err := doRequestWithResilience(ctx, c.httpCfg, c.circuit, buildRequest)
	if err != nil {
		return forecast.Location{}, err
	}
	defer resp.Body.Close()

	var payload struct {
		Results []searchResult `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return forecast.Location{}, fmt.Errorf("decode meteoblue search response: %w", err)
	}

	if len(payload.Results) == 0 {
		return forecast.Location{}, forecast.ErrLocationNotFound
	}

	first := payload.Results[0]
	log.Printf("DEBUG: meteoblue search %q: %d results, using %q (%s, %s)",
		query, len(payload.Results), first.Name, first.Admin1, first.Country)

	return forecast.Location{
		Name:      first.Name,
		Latitude:  common.FlexText(first.Lat),
		Longitude: common.FlexText(first.Lon),
	}, nil
}

// Forecast fetches the daily series for the coordinates.
func (c *MeteoblueClient) Forecast(ctx context.Context, lat, lon float64) (forecast.DailySeries, error) {
	buildRequest := func() (*http.Request, error) {
		values := url.Values{}
		values.Set("apikey", c.apiKey)
		values.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
		values.Set("lon", strconv.FormatFloat(lon, 'f', -1, 64))
		values.Set("asl", "0")
		values.Set("format", "json")

		req, err := http.NewRequest(http.MethodGet, c.forecastURL+"?"+values.Encode(), nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", userAgent)
		return req, nil
	}

	resp, err := doRequestWithResilience(ctx, c.httpCfg, c.circuit, buildRequest)
	if err != nil {
		return forecast.DailySeries{}, err
	}
	defer resp.Body.Close()

	var payload struct {
		DataDay *struct {
			Time                     []string   `json:"time"`
			TemperatureMin           []*float64 `json:"temperature_min"`
			TemperatureMax           []*float64 `json:"temperature_max"`
			Pictocode                []*float64 `json:"pictocode"`
			WindSpeedMax             []*float64 `json:"windspeed_max"`
			WindDirection            []*float64 `json:"winddirection"`
			PrecipitationProbability []*float64 `json:"precipitation_probability"`
		} `json:"data_day"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return forecast.DailySeries{}, fmt.Errorf("decode meteoblue forecast response: %w", err)
	}

	if payload.DataDay == nil {
		return forecast.DailySeries{}, nil
	}

	d := payload.DataDay
	return forecast.DailySeries{
		Time:                     d.Time,
		TemperatureMin:           d.TemperatureMin,
		TemperatureMax:           d.TemperatureMax,
		Pictocode:                d.Pictocode,
		WindSpeedMax:             d.WindSpeedMax,
		WindDirection:            d.WindDirection,
		PrecipitationProbability: d.PrecipitationProbability,
	}, nil
}
