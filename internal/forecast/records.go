package forecast

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// BuildRecords turns a provider series into rows. Missing numeric values
// become zero and missing codes become their sentinels, so nothing nullable
// reaches the store.
func BuildRecords(series DailySeries, city string, lat, lon float64) ([]Record, error) {
	records := make([]Record, 0, series.Len())

	for i, day := range series.Time {
		date, err := ParseDate(day)
		if err != nil {
			return nil, fmt.Errorf("day %d: %w", i, err)
		}

		rec := Record{
			ForecastDate:             date,
			TemperatureMin:           valueOrZero(series.TemperatureMin, i),
			TemperatureMax:           valueOrZero(series.TemperatureMax, i),
			ConditionCode:            UnknownCondition,
			WindSpeed:                valueOrZero(series.WindSpeedMax, i),
			WindDirection:            UnknownWindDirection,
			PrecipitationProbability: valueOrZero(series.PrecipitationProbability, i),
			City:                     city,
			Latitude:                 RoundCoordinate(lat),
			Longitude:                RoundCoordinate(lon),
		}

		// Pictocodes start at 1; zero means the provider had nothing.
		if code := at(series.Pictocode, i); code != nil && *code != 0 {
			rec.ConditionCode = formatNumber(*code)
		}
		if dir := at(series.WindDirection, i); dir != nil {
			rec.WindDirection = formatNumber(*dir)
		}

		records = append(records, rec)
	}

	return records, nil
}

func at(values []*float64, i int) *float64 {
	if i >= len(values) {
		return nil
	}
	v := values[i]
	if v == nil || math.IsNaN(*v) {
		return nil
	}
	return v
}

func valueOrZero(values []*float64, i int) float64 {
	if v := at(values, i); v != nil {
		return *v
	}
	return 0
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// ParseDate parses a YYYY-MM-DD day (a trailing time part is ignored) into UTC midnight.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if len(s) > len(DateLayout) {
		s = s[:len(DateLayout)]
	}
	return time.Parse(DateLayout, s)
}

// ParseCoordinates coerces both coordinates to finite numbers rounded to six digits.
func ParseCoordinates(lat, lon string) (float64, float64, error) {
	la, err := parseCoordinate(lat)
	if err != nil {
		return 0, 0, fmt.Errorf("latitude %q: %w", lat, err)
	}
	lo, err := parseCoordinate(lon)
	if err != nil {
		return 0, 0, fmt.Errorf("longitude %q: %w", lon, err)
	}
	return la, lo, nil
}

var errNotFinite = errors.New("not a finite number")

func parseCoordinate(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, errNotFinite
	}
	return RoundCoordinate(v), nil
}

// RoundCoordinate keeps six fractional digits.
func RoundCoordinate(v float64) float64 {
	return math.Round(v*coordinatePrecision) / coordinatePrecision
}
