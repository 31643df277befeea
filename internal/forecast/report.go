package forecast

import (
	"context"
	"log"
	"strings"
)

// ReportCriteria applies the filter precedence: city, then coordinates, then
// date range, then everything. The first branch that applies wins; dates only
// narrow the city and coordinate branches when both are given.
func ReportCriteria(f ReportFilter) (Criteria, error) {
	rng, err := parseRange(f.StartDate, f.EndDate)
	if err != nil {
		return Criteria{}, err
	}

	city := strings.TrimSpace(f.City)
	if city != "" && !strings.EqualFold(city, CoordinatesCity) {
		return Criteria{Match: MatchCity, City: city, Range: rng}, nil
	}

	if lat, lon, err := ParseCoordinates(f.Latitude, f.Longitude); err == nil {
		return Criteria{Match: MatchCoordinates, Latitude: lat, Longitude: lon, Range: rng}, nil
	}

	if rng != nil {
		return Criteria{Match: MatchDateRange, Range: rng}, nil
	}

	return Criteria{Match: MatchAll}, nil
}

// Report returns the latest row per day and location matching the filter,
// ordered by forecast date, with pictocodes replaced by their description.
func (s *Service) Report(ctx context.Context, f ReportFilter) ([]Record, error) {
	c, err := ReportCriteria(f)
	if err != nil {
		return nil, err
	}

	log.Printf("DEBUG: report query: match=%s city=%q range=%v", c.Match, c.City, c.Range)

	records, err := s.store.Find(ctx, c)
	if err != nil {
		log.Printf("ERROR: report query failed: %v", err)
		return nil, storageError("Erro ao buscar previsões salvas.", err)
	}

	for i := range records {
		records[i].ConditionCode = DescribeCondition(records[i].ConditionCode)
	}
	if records == nil {
		records = []Record{}
	}
	return records, nil
}
