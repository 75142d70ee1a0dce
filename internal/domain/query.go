package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Dimension is a grouping axis of the attribution table
type Dimension string

const (
	DimensionApp         Dimension = "app"
	DimensionMediaSource Dimension = "media_source"
	DimensionCampaign    Dimension = "campaign"
	DimensionDate        Dimension = "date"
	DimensionNone        Dimension = ""
)

// UnknownKey is the row collecting cost that cannot be tied to a single selected app
const UnknownKey = "Unknown"

// Dimensions lists the supported grouping dimensions in display order
var Dimensions = []Dimension{DimensionCampaign, DimensionMediaSource, DimensionDate, DimensionApp}

// Label returns the display name of the dimension
func (d Dimension) Label() string {
	switch d {
	case DimensionApp:
		return "App"
	case DimensionMediaSource:
		return "Media Source"
	case DimensionDate:
		return "Date"
	case DimensionNone:
		return ""
	default:
		return "Campaign"
	}
}

// Normalize maps unrecognized dimensions to campaign. DimensionNone stays empty.
func (d Dimension) Normalize() Dimension {
	switch d {
	case DimensionApp, DimensionMediaSource, DimensionCampaign, DimensionDate, DimensionNone:
		return d
	default:
		return DimensionCampaign
	}
}

// ParseDimension trims and lower-cases s before normalizing it
func ParseDimension(s string) Dimension {
	return Dimension(strings.ToLower(strings.TrimSpace(s))).Normalize()
}

// Query is one attribution request
type Query struct {
	DateFrom         time.Time  `json:"date_from"`
	DateTo           *time.Time `json:"date_to,omitempty"`
	SelectedApps     []string   `json:"selected_apps"`
	PrimaryGroupBy   Dimension  `json:"primary_group_by"`
	SecondaryGroupBy Dimension  `json:"secondary_group_by,omitempty"`
	AppLevelCostView bool       `json:"app_level_cost_view"`
}

// Normalized returns a copy with day-truncated dates, deduplicated apps and
// normalized dimensions. Two queries with the same meaning normalize equally.
// UnknownKey is dropped from the selection since no record may list it.
func (q Query) Normalized() Query {
	out := Query{
		DateFrom:         TruncateDay(q.DateFrom),
		SelectedApps:     WithoutReservedApps(UniqueApps(q.SelectedApps)),
		PrimaryGroupBy:   q.PrimaryGroupBy.Normalize(),
		SecondaryGroupBy: q.SecondaryGroupBy.Normalize(),
		AppLevelCostView: q.AppLevelCostView,
	}
	if out.PrimaryGroupBy == DimensionNone {
		out.PrimaryGroupBy = DimensionCampaign
	}
	if q.DateTo != nil {
		to := TruncateDay(*q.DateTo)
		out.DateTo = &to
	}
	return out
}

// UniqueApps drops blanks and duplicates, keeping first occurrence order
func UniqueApps(apps []string) []string {
	seen := make(map[string]struct{}, len(apps))
	out := make([]string, 0, len(apps))
	for _, app := range apps {
		app = strings.TrimSpace(app)
		if app == "" {
			continue
		}
		if _, ok := seen[app]; ok {
			continue
		}
		seen[app] = struct{}{}
		out = append(out, app)
	}
	return out
}

// WithoutReservedApps drops UnknownKey, which names the bucket and never an app
func WithoutReservedApps(apps []string) []string {
	out := make([]string, 0, len(apps))
	for _, app := range apps {
		if app != UnknownKey {
			out = append(out, app)
		}
	}
	return out
}

// SplitApps parses a comma-separated app list such as "Wolt iOS, Wolt Android"
func SplitApps(s string) []string {
	return UniqueApps(strings.Split(s, ","))
}

// ErrInvalidQuery marks query parameters that cannot be interpreted
var ErrInvalidQuery = errors.New("invalid attribution query")

// ParseDay parses a YYYY-MM-DD day
func ParseDay(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date %q must be in YYYY-MM-DD format", ErrInvalidQuery, s)
	}
	return t, nil
}

// QueryParams is the textual form of a Query accepted by the HTTP and CLI surfaces.
// Apps entries may themselves be comma-separated lists.
type QueryParams struct {
	From             string   `json:"from"`
	To               string   `json:"to,omitempty"`
	Apps             []string `json:"apps"`
	GroupBy          string   `json:"group_by"`
	ThenBy           string   `json:"then_by,omitempty"`
	AppLevelCostView *bool    `json:"app_level_cost_view,omitempty"`
}

// Query converts the params; costView is used when AppLevelCostView is unset
func (p QueryParams) Query(costView bool) (Query, error) {
	if strings.TrimSpace(p.From) == "" {
		return Query{}, fmt.Errorf("%w: from is required", ErrInvalidQuery)
	}

	from, err := ParseDay(p.From)
	if err != nil {
		return Query{}, err
	}

	q := Query{
		DateFrom:         from,
		PrimaryGroupBy:   ParseDimension(p.GroupBy),
		SecondaryGroupBy: ParseDimension(p.ThenBy),
		AppLevelCostView: costView,
	}

	if strings.TrimSpace(p.To) != "" {
		to, err := ParseDay(p.To)
		if err != nil {
			return Query{}, err
		}
		q.DateTo = &to
	}

	for _, apps := range p.Apps {
		for _, app := range SplitApps(apps) {
			if app == UnknownKey {
				return Query{}, fmt.Errorf("%w: %q is reserved for unattributed spend", ErrInvalidQuery, app)
			}
			q.SelectedApps = append(q.SelectedApps, app)
		}
	}

	if p.AppLevelCostView != nil {
		q.AppLevelCostView = *p.AppLevelCostView
	}

	return q.Normalized(), nil
}
