package providers

import (
	"context"
	"fmt"
	"log"
	"strconv"

	"github.com/kelvins/geocoder"
	"golang.org/x/time/rate"

	"github.com/i474232898/weather-report/internal/common"
	"github.com/i474232898/weather-report/internal/forecast"
)

// GoogleResolver resolves city names through the Google Geocoding API. The
// canonical name comes from a reverse lookup of the geocoded point.
type GoogleResolver struct {
	limiter *rate.Limiter
}

var _ forecast.LocationResolver = (*GoogleResolver)(nil)

// NewGoogleResolver configures the geocoder package's API key. The key is
// process-wide, so create at most one resolver.
func NewGoogleResolver(apiKey string, limiter *rate.Limiter) *GoogleResolver {
	geocoder.ApiKey = apiKey
	return &GoogleResolver{limiter: limiter}
}

func (g *GoogleResolver) Resolve(ctx context.Context, query string) (forecast.Location, error) {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return forecast.Location{}, fmt.Errorf("rate limit wait canceled: %w", err)
		}
	}

	loc, err := geocoder.Geocoding(geocoder.Address{City: query})
	if err != nil {
		if isZeroResults(err) {
			return forecast.Location{}, forecast.ErrLocationNotFound
		}
		return forecast.Location{}, fmt.Errorf("google geocoding %q: %w", query, err)
	}

	name := query
	addresses, err := geocoder.GeocodingReverse(loc)
	if err != nil {
		log.Printf("WARN: google reverse geocoding failed for %q, keeping the query as name: %v", query, err)
	} else if len(addresses) > 0 && addresses[0].City != "" {
		name = addresses[0].City
	}

	return forecast.Location{
		Name:      name,
		Latitude:  strconv.FormatFloat(loc.Latitude, 'f', -1, 64),
		Longitude: strconv.FormatFloat(loc.Longitude, 'f', -1, 64),
	}, nil
}

func isZeroResults(err error) bool {
	return common.HasAny(err.Error(), "zero_results", "no results")
}
