package usecase

import (
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"attributiongo/internal/domain"
)

// accepted spelling of a record's day
var recordDateFormats = []string{
	"2006-01-02",      // YYYY-MM-DD
	"Jan 2, 2006",     // Jun 1, 2025
	"January 2, 2006", // June 1, 2025
	"2006/01/02",      // YYYY/MM/DD
	time.RFC3339,      // 2006-01-02T15:04:05Z07:00
}

// ParseSpendRecords converts a raw batch and stops at the first malformed record
func ParseSpendRecords(raw []domain.RawSpendRecord) ([]domain.SpendRecord, error) {
	records := make([]domain.SpendRecord, 0, len(raw))
	for i, r := range raw {
		record, err := ParseSpendRecord(r)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		records = append(records, record)
	}
	return records, nil
}

// ParseSpendRecord converts one raw record
func ParseSpendRecord(raw domain.RawSpendRecord) (domain.SpendRecord, error) {
	date, err := parseRecordDate(raw.Day)
	if err != nil {
		return domain.SpendRecord{}, err
	}

	record := domain.SpendRecord{
		Date:        date,
		MediaSource: strings.TrimSpace(raw.MediaSource),
		Campaign:    strings.TrimSpace(raw.Campaign),
		Cost:        raw.Cost,
		Impressions: raw.Impressions,
		Clicks:      raw.Clicks,
		Apps:        domain.SplitApps(raw.Apps),
	}

	if err := validateRecord(record); err != nil {
		return domain.SpendRecord{}, err
	}
	return record, nil
}

func parseRecordDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, format := range recordDateFormats {
		if date, err := time.Parse(format, value); err == nil {
			return domain.TruncateDay(date), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: unparseable date %q", domain.ErrInvalidRecord, value)
}

func validateRecord(record domain.SpendRecord) error {
	switch {
	case record.Date.IsZero():
		return fmt.Errorf("%w: missing date", domain.ErrInvalidRecord)
	case record.Campaign == "":
		return fmt.Errorf("%w: missing campaign", domain.ErrInvalidRecord)
	case len(record.Apps) == 0:
		return fmt.Errorf("%w: campaign %q has no apps", domain.ErrInvalidRecord, record.Campaign)
	case slices.Contains(record.Apps, domain.UnknownKey):
		return fmt.Errorf("%w: campaign %q lists the reserved app %q", domain.ErrInvalidRecord, record.Campaign, domain.UnknownKey)
	case record.Cost < 0 || record.Impressions < 0 || record.Clicks < 0:
		return fmt.Errorf("%w: campaign %q has a negative measure", domain.ErrInvalidRecord, record.Campaign)
	}
	return nil
}

// SortRecords orders records in place by field; text columns compare lexically, measures numerically
func SortRecords(records []domain.SpendRecord, field domain.RecordSortField, desc bool) {
	if field == domain.SortNone {
		return
	}

	compare := func(a, b domain.SpendRecord) int {
		switch field {
		case domain.SortDate:
			return a.Date.Compare(b.Date)
		case domain.SortMediaSource:
			return strings.Compare(a.MediaSource, b.MediaSource)
		case domain.SortCampaign:
			return strings.Compare(a.Campaign, b.Campaign)
		case domain.SortApps:
			return strings.Compare(a.AppsLabel(), b.AppsLabel())
		case domain.SortCost:
			return compareNumbers(a.Cost, b.Cost)
		case domain.SortImpressions:
			return compareNumbers(float64(a.Impressions), float64(b.Impressions))
		case domain.SortClicks:
			return compareNumbers(float64(a.Clicks), float64(b.Clicks))
		}
		return 0
	}

	sort.SliceStable(records, func(i, j int) bool {
		c := compare(records[i], records[j])
		if desc {
			return c > 0
		}
		return c < 0
	})
}

func compareNumbers(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// TotalsOf sums the measures of records
func TotalsOf(records []domain.SpendRecord) domain.RecordTotals {
	var totals domain.RecordTotals
	for _, record := range records {
		totals.Cost += record.Cost
		totals.Impressions += record.Impressions
		totals.Clicks += record.Clicks
	}
	return totals
}
