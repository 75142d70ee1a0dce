package domain

import (
	"errors"
	"sort"
	"strings"
	"time"
)

// DateLayout is the canonical day format used on the wire and as the date dimension value
const DateLayout = "2006-01-02"

// ErrInvalidRecord marks spend records that cannot be loaded
var ErrInvalidRecord = errors.New("invalid spend record")

// RawSpendRecord is a spend row as delivered by the upstream API or a fixture file
type RawSpendRecord struct {
	Day         string  `json:"day" yaml:"day" toml:"day"`
	MediaSource string  `json:"media_source" yaml:"media_source" toml:"media_source"`
	Campaign    string  `json:"campaign" yaml:"campaign" toml:"campaign"`
	Cost        float64 `json:"cost" yaml:"cost" toml:"cost"`
	Impressions int     `json:"impressions" yaml:"impressions" toml:"impressions"`
	Clicks      int     `json:"clicks" yaml:"clicks" toml:"clicks"`
	Apps        string  `json:"apps" yaml:"apps" toml:"apps"`
}

type SpendData struct {
	External struct {
		Ads struct {
			Spend []RawSpendRecord `json:"spend"`
		} `json:"ads"`
	} `json:"external"`
}

// SpendRecord is one campaign-day of spend. Cost, impressions and clicks belong
// to the campaign as a whole and are never split across Apps.
type SpendRecord struct {
	Date        time.Time `json:"date"`
	MediaSource string    `json:"media_source"`
	Campaign    string    `json:"campaign"`
	Cost        float64   `json:"cost"`
	Impressions int       `json:"impressions"`
	Clicks      int       `json:"clicks"`
	Apps        []string  `json:"apps"`
}

// Day returns the record date formatted with DateLayout
func (r SpendRecord) Day() string {
	return r.Date.Format(DateLayout)
}

// AppsLabel joins the record's apps the way they are displayed
func (r SpendRecord) AppsLabel() string {
	return strings.Join(r.Apps, ", ")
}

// HasAnyApp reports whether at least one of the record's apps is in set
func (r SpendRecord) HasAnyApp(set map[string]struct{}) bool {
	for _, app := range r.Apps {
		if _, ok := set[app]; ok {
			return true
		}
	}
	return false
}

// Identity is the upsert key: two records with the same identity describe the same campaign-day
func (r SpendRecord) Identity() RecordKey {
	apps := append([]string(nil), r.Apps...)
	sort.Strings(apps)
	return RecordKey{
		Day:         r.Day(),
		MediaSource: r.MediaSource,
		Campaign:    r.Campaign,
		Apps:        strings.Join(apps, ","),
	}
}

// campaign-day identity for data correlation
type RecordKey struct {
	Day         string
	MediaSource string
	Campaign    string
	Apps        string
}

// String returns a string representation of RecordKey for use as cache or storage key
func (k RecordKey) String() string {
	return k.Day + "|" + k.MediaSource + "|" + k.Campaign + "|" + k.Apps
}

// TruncateDay normalizes t to midnight UTC of its calendar day
func TruncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
