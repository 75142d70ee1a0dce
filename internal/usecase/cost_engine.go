package usecase

import (
	"fmt"

	"attributiongo/internal/domain"
)

// EngineOption configures a CostEngine
type EngineOption func(*CostEngine)

// WithAppUniverse sets the full list of known apps. Without it the universe is
// every app that appears in the dataset.
func WithAppUniverse(apps ...string) EngineOption {
	return func(e *CostEngine) {
		e.universe = domain.WithoutReservedApps(domain.UniqueApps(apps))
	}
}

// CostEngine attributes campaign spend to apps and dimensions. It is immutable
// once built, so one engine may serve concurrent queries.
type CostEngine struct {
	records  []domain.SpendRecord
	universe []string
}

// creates an engine over a copy of records, rejecting malformed ones
func NewCostEngine(records []domain.SpendRecord, opts ...EngineOption) (*CostEngine, error) {
	e := &CostEngine{
		records: make([]domain.SpendRecord, 0, len(records)),
	}

	for i, record := range records {
		if err := validateRecord(record); err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		record.Date = domain.TruncateDay(record.Date)
		record.Apps = append([]string(nil), record.Apps...)
		e.records = append(e.records, record)
	}

	for _, opt := range opts {
		opt(e)
	}

	if len(e.universe) == 0 {
		var apps []string
		for _, record := range e.records {
			apps = append(apps, record.Apps...)
		}
		e.universe = domain.UniqueApps(apps)
	}

	return e, nil
}

// Apps returns the app universe
func (e *CostEngine) Apps() []string {
	return append([]string(nil), e.universe...)
}

// Process computes the total cost and the grouped table for q
func (e *CostEngine) Process(q domain.Query) *domain.EngineResult {
	return &domain.EngineResult{
		TotalCost: e.TotalCost(q),
		TableRows: e.TableRows(q),
	}
}

// TotalCost sums the spend attributable to the selected apps. A campaign counts
// in full when any of its records in range lists a selected app.
func (e *CostEngine) TotalCost(q domain.Query) float64 {
	q = q.Normalized()
	if len(q.SelectedApps) == 0 {
		return 0
	}

	records := e.filterByDateRange(q)
	selected := appSet(q.SelectedApps)

	if e.coversUniverse(selected) {
		var total float64
		for _, record := range records {
			total += record.Cost
		}
		return total
	}

	relevant := campaignRelevance(records, selected)

	var total float64
	for _, c := range summarizeCampaigns(records) {
		if relevant[c.name] {
			total += c.cost
		}
	}
	return total
}

// TableRows groups attributable spend by the primary dimension and, when set, the secondary one
func (e *CostEngine) TableRows(q domain.Query) *domain.RowMap {
	q = q.Normalized()
	if len(q.SelectedApps) == 0 {
		return domain.NewRowMap()
	}

	records := e.filterBySelectedApps(e.filterByDateRange(q), q.SelectedApps)
	if len(records) == 0 {
		return domain.NewRowMap()
	}

	if q.PrimaryGroupBy == domain.DimensionApp {
		return appGroupedRows(records, q)
	}
	return dimensionGroupedRows(records, q)
}

// filterByDateRange keeps records dated within [DateFrom, DateTo], or on DateFrom when DateTo is nil
func (e *CostEngine) filterByDateRange(q domain.Query) []domain.SpendRecord {
	from := q.DateFrom
	to := from
	if q.DateTo != nil {
		to = *q.DateTo
	}

	var out []domain.SpendRecord
	for _, record := range e.records {
		if record.Date.Before(from) || record.Date.After(to) {
			continue
		}
		out = append(out, record)
	}
	return out
}

// filterBySelectedApps keeps every record of the campaigns relevant to the selection
func (e *CostEngine) filterBySelectedApps(records []domain.SpendRecord, selectedApps []string) []domain.SpendRecord {
	selected := appSet(selectedApps)
	if e.coversUniverse(selected) {
		return records
	}

	relevant := campaignRelevance(records, selected)

	var out []domain.SpendRecord
	for _, record := range records {
		if relevant[record.Campaign] {
			out = append(out, record)
		}
	}
	return out
}

func (e *CostEngine) coversUniverse(selected map[string]struct{}) bool {
	for _, app := range e.universe {
		if _, ok := selected[app]; !ok {
			return false
		}
	}
	return true
}

// campaignRelevance returns the campaigns with at least one record listing a selected app
func campaignRelevance(records []domain.SpendRecord, selected map[string]struct{}) map[string]bool {
	relevant := make(map[string]bool)
	for _, record := range records {
		if record.HasAnyApp(selected) {
			relevant[record.Campaign] = true
		}
	}
	return relevant
}

// appGroupedRows builds one row per selected app plus an Unknown row for spend
// that cannot be tied to exactly one of them
func appGroupedRows(records []domain.SpendRecord, q domain.Query) *domain.RowMap {
	rows := domain.NewRowMap()
	nested := q.SecondaryGroupBy != domain.DimensionNone

	for _, app := range q.SelectedApps {
		row := rows.Upsert(app)
		if nested {
			row.SubRows = domain.NewRowMap()
		}
	}

	campaigns := summarizeCampaigns(records)

	var unknownCost float64
	for _, c := range campaigns {
		if !q.AppLevelCostView {
			unknownCost += c.cost
			continue
		}
		if app, ok := c.singleApp(); ok {
			if row, ok := rows.Get(app); ok {
				row.Cost += c.cost
				continue
			}
		}
		unknownCost += c.cost
	}

	if q.SecondaryGroupBy == domain.DimensionCampaign {
		for _, app := range q.SelectedApps {
			row, _ := rows.Get(app)
			for _, c := range campaigns {
				sub := &domain.ResultRow{Key: c.name, Label: c.name}
				if single, ok := c.singleApp(); ok && q.AppLevelCostView && single == app {
					sub.Cost = c.cost
				}
				row.SubRows.Set(sub)
			}
		}
	}

	if unknownCost > 0 {
		unknown := rows.Upsert(domain.UnknownKey)
		unknown.Cost += unknownCost
		if nested && unknown.SubRows == nil {
			unknown.SubRows = domain.NewRowMap()
		}
	}

	return rows
}

// dimensionGroupedRows groups records by the primary dimension value, nesting
// each group's records by campaign and then by the secondary dimension value
func dimensionGroupedRows(records []domain.SpendRecord, q domain.Query) *domain.RowMap {
	rows := domain.NewRowMap()
	nested := q.SecondaryGroupBy != domain.DimensionNone

	byCampaign := make(map[string]map[string][]domain.SpendRecord)
	campaignOrder := make(map[string][]string)

	for _, record := range records {
		key := dimensionValue(record, q.PrimaryGroupBy)
		row := rows.Upsert(key)
		row.Cost += record.Cost

		if !nested {
			continue
		}
		if row.SubRows == nil {
			row.SubRows = domain.NewRowMap()
			byCampaign[key] = make(map[string][]domain.SpendRecord)
		}
		if _, seen := byCampaign[key][record.Campaign]; !seen {
			campaignOrder[key] = append(campaignOrder[key], record.Campaign)
		}
		byCampaign[key][record.Campaign] = append(byCampaign[key][record.Campaign], record)
	}

	if !nested {
		return rows
	}

	for _, row := range rows.Rows() {
		for _, campaign := range campaignOrder[row.Key] {
			for _, record := range byCampaign[row.Key][campaign] {
				sub := row.SubRows.Upsert(dimensionValue(record, q.SecondaryGroupBy))
				sub.Cost += record.Cost
			}
		}
	}

	return rows
}

func dimensionValue(record domain.SpendRecord, dimension domain.Dimension) string {
	switch dimension {
	case domain.DimensionMediaSource:
		return record.MediaSource
	case domain.DimensionDate:
		return record.Day()
	case domain.DimensionApp:
		return record.AppsLabel()
	default:
		return record.Campaign
	}
}

// per-campaign rollup within the filtered records
type campaignSummary struct {
	name string
	cost float64
	apps []string
}

// singleApp returns the campaign's only app when exactly one is associated with it
func (c campaignSummary) singleApp() (string, bool) {
	if len(c.apps) != 1 {
		return "", false
	}
	return c.apps[0], true
}

// summarizeCampaigns totals cost and unions apps per campaign, in first-seen order
func summarizeCampaigns(records []domain.SpendRecord) []campaignSummary {
	index := make(map[string]int)
	var out []campaignSummary

	for _, record := range records {
		i, ok := index[record.Campaign]
		if !ok {
			i = len(out)
			index[record.Campaign] = i
			out = append(out, campaignSummary{name: record.Campaign})
		}
		out[i].cost += record.Cost
		out[i].apps = domain.UniqueApps(append(out[i].apps, record.Apps...))
	}

	return out
}

func appSet(apps []string) map[string]struct{} {
	set := make(map[string]struct{}, len(apps))
	for _, app := range apps {
		set[app] = struct{}{}
	}
	return set
}
