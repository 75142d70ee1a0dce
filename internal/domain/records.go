package domain

// RecordSortField is a column of the raw spend table
type RecordSortField string

const (
	SortNone        RecordSortField = ""
	SortDate        RecordSortField = "date"
	SortMediaSource RecordSortField = "media_source"
	SortCampaign    RecordSortField = "campaign"
	SortApps        RecordSortField = "apps"
	SortCost        RecordSortField = "cost"
	SortImpressions RecordSortField = "impressions"
	SortClicks      RecordSortField = "clicks"
)

// IsValid reports whether the field is a known column (or no sorting)
func (f RecordSortField) IsValid() bool {
	switch f {
	case SortNone, SortDate, SortMediaSource, SortCampaign, SortApps, SortCost, SortImpressions, SortClicks:
		return true
	}
	return false
}

// represents a raw spend listing request
type RecordsQuery struct {
	SortField RecordSortField `json:"sort,omitempty"`
	SortDesc  bool            `json:"desc,omitempty"`
	Limit     int             `json:"limit,omitempty"`
}

type RecordTotals struct {
	Cost        float64 `json:"cost"`
	Impressions int     `json:"impressions"`
	Clicks      int     `json:"clicks"`
}

// RecordsPage holds a page of raw spend rows; Totals cover the whole dataset
type RecordsPage struct {
	Records []SpendRecord `json:"records"`
	Totals  RecordTotals  `json:"totals"`
	Total   int           `json:"total"`
	HasMore bool          `json:"has_more"`
}
