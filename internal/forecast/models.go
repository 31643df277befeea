package forecast

import (
	"encoding/json"
	"time"
)

const (
	// CoordinatesCity is stored as the city of rows fetched for a coordinate-only request.
	CoordinatesCity = "coordenadas fornecidas"

	// UnknownCondition replaces a missing pictocode.
	UnknownCondition = "Desconhecido"

	// UnknownWindDirection replaces a missing wind direction.
	UnknownWindDirection = "N/A"

	// DateLayout is the calendar-date format used on the wire and in the store.
	DateLayout = "2006-01-02"

	// coordinatePrecision keeps six fractional digits, matching NUMERIC(9,6).
	coordinatePrecision = 1e6
)

// Record is one persisted day-ahead forecast row.
type Record struct {
	ID                       int64
	ForecastDate             time.Time // UTC midnight
	TemperatureMin           float64
	TemperatureMax           float64
	ConditionCode            string
	WindSpeed                float64
	WindDirection            string
	PrecipitationProbability float64
	City                     string
	Latitude                 float64
	Longitude                float64
	InsertedAt               time.Time // set by the store
}

// recordJSON keeps the field spelling existing report consumers expect.
type recordJSON struct {
	ID                       int64     `json:"Id"`
	ForecastDate             string    `json:"DataPrevisao"`
	TemperatureMin           float64   `json:"TemperaturaMin"`
	TemperatureMax           float64   `json:"TemperaturaMax"`
	ConditionCode            string    `json:"CondicoesClimaticas"`
	WindSpeed                float64   `json:"VelocidadeVento"`
	WindDirection            string    `json:"DirecaoVento"`
	PrecipitationProbability float64   `json:"ProbabilidadePrecipitacao"`
	City                     string    `json:"Cidade"`
	Latitude                 float64   `json:"Latitude"`
	Longitude                float64   `json:"Longitude"`
	InsertedAt               time.Time `json:"DataRegistro"`
}

func (r Record) MarshalJSON() ([]byte, error) {
	return json.Marshal(recordJSON{
		ID:                       r.ID,
		ForecastDate:             r.ForecastDate.Format(DateLayout),
		TemperatureMin:           r.TemperatureMin,
		TemperatureMax:           r.TemperatureMax,
		ConditionCode:            r.ConditionCode,
		WindSpeed:                r.WindSpeed,
		WindDirection:            r.WindDirection,
		PrecipitationProbability: r.PrecipitationProbability,
		City:                     r.City,
		Latitude:                 r.Latitude,
		Longitude:                r.Longitude,
		InsertedAt:               r.InsertedAt.UTC(),
	})
}

// IngestRequest is what the form submits. Coordinates stay textual until the
// workflow coerces them.
type IngestRequest struct {
	City      string
	Latitude  string
	Longitude string
	StartDate string
	EndDate   string
}

// IngestResult summarizes a fetch-and-store or a cache hit.
type IngestResult struct {
	Count  int
	City   string
	Cached bool
}

// ReportFilter carries the optional report query parameters.
type ReportFilter struct {
	City      string
	Latitude  string
	Longitude string
	StartDate string
	EndDate   string
}

// DateRange is an inclusive range of calendar days.
type DateRange struct {
	From time.Time
	To   time.Time
}

// EndExclusive returns the first day after the range.
func (r DateRange) EndExclusive() time.Time {
	return r.To.AddDate(0, 0, 1)
}

func (r DateRange) String() string {
	return r.From.Format(DateLayout) + ".." + r.To.Format(DateLayout)
}

// MatchKind selects which predicate a store query is built around.
type MatchKind int

const (
	MatchAll MatchKind = iota
	MatchCity
	MatchCoordinates
	MatchDateRange
)

func (k MatchKind) String() string {
	switch k {
	case MatchCity:
		return "city"
	case MatchCoordinates:
		return "coordinates"
	case MatchDateRange:
		return "date-range"
	default:
		return "all"
	}
}

// Criteria is a resolved store query. Range is optional for the city and
// coordinate matches and required for MatchDateRange.
type Criteria struct {
	Match     MatchKind
	City      string
	Latitude  float64
	Longitude float64
	Range     *DateRange
}

// Location is a resolved place. Coordinates are kept as the provider sent them.
type Location struct {
	Name      string
	Latitude  string
	Longitude string
}

// DailySeries is the provider's day-indexed forecast. Missing values are nil.
type DailySeries struct {
	Time                     []string
	TemperatureMin           []*float64
	TemperatureMax           []*float64
	Pictocode                []*float64
	WindSpeedMax             []*float64
	WindDirection            []*float64
	PrecipitationProbability []*float64
}

// Len returns the number of days in the series.
func (s DailySeries) Len() int {
	return len(s.Time)
}
