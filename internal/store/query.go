package store

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/i474232898/weather-report/internal/forecast"
)

// Dialect covers the differences between the supported SQL engines.
type Dialect struct {
	Name        string
	placeholder func(n int) string
	timestamp   func(t time.Time) any
}

var (
	// Postgres binds $1, $2, ... and passes timestamps as time.Time.
	Postgres = Dialect{
		Name:        "postgres",
		placeholder: func(n int) string { return "$" + strconv.Itoa(n) },
		timestamp:   func(t time.Time) any { return t.UTC() },
	}

	// SQLite binds ? and stores timestamps as fixed-width text so that they
	// sort lexically.
	SQLite = Dialect{
		Name:        "sqlite",
		placeholder: func(int) string { return "?" },
		timestamp:   func(t time.Time) any { return t.UTC().Format(sqliteTimeLayout) },
	}
)

const sqliteTimeLayout = "2006-01-02 15:04:05.000000000"

const recordColumns = `id, forecast_date, temperature_min, temperature_max, condition_code,
		wind_speed, wind_direction, precipitation_probability, city,
		latitude, longitude, inserted_at`

// Rows with any missing weather value never take part in ranking.
const completeRows = `temperature_min IS NOT NULL AND temperature_max IS NOT NULL
		AND condition_code IS NOT NULL AND wind_speed IS NOT NULL
		AND wind_direction IS NOT NULL AND precipitation_probability IS NOT NULL`

// queryBuilder composes named predicate fragments with bound parameters.
type queryBuilder struct {
	dialect Dialect
	where   []string
	args    []any
}

func newQueryBuilder(d Dialect) *queryBuilder {
	return &queryBuilder{dialect: d}
}

func (b *queryBuilder) bind(v any) string {
	b.args = append(b.args, v)
	return b.dialect.placeholder(len(b.args))
}

func (b *queryBuilder) cityMatch(city string) {
	b.where = append(b.where, "LOWER(city) = LOWER(CAST("+b.bind(city)+" AS VARCHAR(255)))")
}

func (b *queryBuilder) coordinateMatch(lat, lon float64) {
	b.where = append(b.where,
		"latitude = "+b.bind(lat),
		"longitude = "+b.bind(lon),
	)
}

func (b *queryBuilder) dateRange(r forecast.DateRange) {
	b.where = append(b.where,
		"forecast_date >= "+b.bind(r.From.Format(forecast.DateLayout)),
		"forecast_date < "+b.bind(r.EndExclusive().Format(forecast.DateLayout)),
	)
}

// buildFindQuery ranks the matching rows per partition by insertion time and
// keeps the first of each, ordered by forecast date.
func buildFindQuery(d Dialect, c forecast.Criteria) (string, []any) {
	b := newQueryBuilder(d)
	partition := "forecast_date, city"

	switch c.Match {
	case forecast.MatchCity:
		b.cityMatch(c.City)
	case forecast.MatchCoordinates:
		b.coordinateMatch(c.Latitude, c.Longitude)
		partition = "forecast_date, latitude, longitude"
	}
	if c.Range != nil {
		b.dateRange(*c.Range)
	}

	where := append([]string{completeRows}, b.where...)

	query := fmt.Sprintf(`
WITH ranked AS (
	SELECT %s,
		ROW_NUMBER() OVER (PARTITION BY %s ORDER BY inserted_at DESC, id DESC) AS rn
	FROM forecast_records
	WHERE %s
)
SELECT %s
FROM ranked
WHERE rn = 1
ORDER BY forecast_date ASC, city ASC`,
		recordColumns, partition, strings.Join(where, "\n\t\tAND "), recordColumns)

	return query, b.args
}

func buildInsertQuery(d Dialect, rec *forecast.Record, insertedAt time.Time) (string, []any) {
	b := newQueryBuilder(d)
	values := []string{
		b.bind(rec.ForecastDate.Format(forecast.DateLayout)),
		b.bind(rec.TemperatureMin),
		b.bind(rec.TemperatureMax),
		b.bind(rec.ConditionCode),
		b.bind(rec.WindSpeed),
		b.bind(rec.WindDirection),
		b.bind(rec.PrecipitationProbability),
		b.bind(rec.City),
		b.bind(rec.Latitude),
		b.bind(rec.Longitude),
		b.bind(d.timestamp(insertedAt)),
	}

	query := fmt.Sprintf(`
INSERT INTO forecast_records (
	forecast_date, temperature_min, temperature_max, condition_code,
	wind_speed, wind_direction, precipitation_probability, city,
	latitude, longitude, inserted_at
) VALUES (%s)
RETURNING id`, strings.Join(values, ", "))

	return query, b.args
}

func formatCoordinate(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}
