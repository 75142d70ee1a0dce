package usecase

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"attributiongo/internal/domain"
)

func day(s string) time.Time {
	t, err := time.Parse(domain.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func dayPtr(s string) *time.Time {
	t := day(s)
	return &t
}

func rec(date, mediaSource, campaign string, cost float64, apps ...string) domain.SpendRecord {
	return domain.SpendRecord{
		Date:        day(date),
		MediaSource: mediaSource,
		Campaign:    campaign,
		Cost:        cost,
		Impressions: 1,
		Clicks:      1,
		Apps:        apps,
	}
}

const (
	iOS     = "Wolt iOS"
	android = "Wolt Android"
	web     = "Wolt Web"
)

// the dashboard's demo dataset
func woltRecords() []domain.SpendRecord {
	wolt1Apps := map[string][]string{
		"2025-06-02": {iOS, android},
		"2025-06-05": {iOS, android, web},
		"2025-06-08": {iOS, android},
	}

	var records []domain.SpendRecord
	for d := 1; d <= 8; d++ {
		date := time.Date(2025, time.June, d, 0, 0, 0, 0, time.UTC).Format(domain.DateLayout)
		apps, ok := wolt1Apps[date]
		if !ok {
			apps = []string{iOS}
		}
		records = append(records, rec(date, "Google", "wolt_1", 10, apps...))
	}
	for d := 1; d <= 8; d++ {
		date := time.Date(2025, time.June, d, 0, 0, 0, 0, time.UTC).Format(domain.DateLayout)
		records = append(records, rec(date, "TikTok", "wolt_2", 20, android))
	}
	return records
}

func mustEngine(t *testing.T, records []domain.SpendRecord, opts ...EngineOption) *CostEngine {
	t.Helper()
	engine, err := NewCostEngine(records, opts...)
	if err != nil {
		t.Fatalf("NewCostEngine: %v", err)
	}
	return engine
}

func rowCosts(m *domain.RowMap) map[string]float64 {
	out := make(map[string]float64, m.Len())
	for _, row := range m.Rows() {
		out[row.Key] = row.Cost
	}
	return out
}

func TestCostEngine_ConcreteUnknownScenario(t *testing.T) {
	engine := mustEngine(t, []domain.SpendRecord{
		rec("2025-06-01", "Google", "c1", 10, "A"),
		rec("2025-06-02", "Google", "c1", 5, "A", "B"),
	})

	q := domain.Query{
		DateFrom:         day("2025-06-01"),
		DateTo:           dayPtr("2025-06-02"),
		SelectedApps:     []string{"A"},
		PrimaryGroupBy:   domain.DimensionApp,
		AppLevelCostView: true,
	}

	result := engine.Process(q)

	if result.TotalCost != 15 {
		t.Fatalf("total cost = %v, want 15", result.TotalCost)
	}
	if got, want := result.TableRows.Keys(), []string{"A", domain.UnknownKey}; !reflect.DeepEqual(got, want) {
		t.Fatalf("row keys = %v, want %v", got, want)
	}
	costs := rowCosts(result.TableRows)
	if costs["A"] != 0 || costs[domain.UnknownKey] != 15 {
		t.Fatalf("row costs = %v, want A:0 Unknown:15", costs)
	}
}

func TestCostEngine_AppLevelCostViewOff(t *testing.T) {
	engine := mustEngine(t, []domain.SpendRecord{
		rec("2025-06-01", "Google", "c1", 10, "A"),
		rec("2025-06-01", "Google", "c2", 7, "A"),
		rec("2025-06-02", "Google", "c1", 5, "A", "B"),
	})

	q := domain.Query{
		DateFrom:         day("2025-06-01"),
		DateTo:           dayPtr("2025-06-02"),
		SelectedApps:     []string{"A"},
		PrimaryGroupBy:   domain.DimensionApp,
		AppLevelCostView: false,
	}

	costs := rowCosts(engine.TableRows(q))
	if costs["A"] != 0 {
		t.Fatalf("row A = %v, want 0", costs["A"])
	}
	if costs[domain.UnknownKey] != 22 {
		t.Fatalf("Unknown = %v, want 22", costs[domain.UnknownKey])
	}

	q.AppLevelCostView = true
	costs = rowCosts(engine.TableRows(q))
	if costs["A"] != 7 || costs[domain.UnknownKey] != 15 {
		t.Fatalf("flag on costs = %v, want A:7 Unknown:15", costs)
	}
}

func TestCostEngine_SingleDayQuery(t *testing.T) {
	engine := mustEngine(t, []domain.SpendRecord{
		rec("2025-06-01", "Google", "c1", 1, "A"),
		rec("2025-06-02", "Google", "c1", 2, "A"),
		rec("2025-06-03", "Google", "c1", 4, "A"),
	})

	q := domain.Query{
		DateFrom:       day("2025-06-02"),
		SelectedApps:   []string{"A"},
		PrimaryGroupBy: domain.DimensionDate,
	}

	result := engine.Process(q)
	if result.TotalCost != 2 {
		t.Fatalf("total cost = %v, want 2", result.TotalCost)
	}
	if got, want := result.TableRows.Keys(), []string{"2025-06-02"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("row keys = %v, want %v", got, want)
	}
}

func TestCostEngine_InvertedRangeIsEmpty(t *testing.T) {
	engine := mustEngine(t, woltRecords())

	q := domain.Query{
		DateFrom:       day("2025-06-08"),
		DateTo:         dayPtr("2025-06-01"),
		SelectedApps:   []string{iOS, android, web},
		PrimaryGroupBy: domain.DimensionCampaign,
	}

	result := engine.Process(q)
	if result.TotalCost != 0 || result.TableRows.Len() != 0 {
		t.Fatalf("inverted range = %v / %d rows, want empty", result.TotalCost, result.TableRows.Len())
	}
}

func TestCostEngine_EmptySelection(t *testing.T) {
	engine := mustEngine(t, woltRecords())

	for _, dim := range domain.Dimensions {
		q := domain.Query{
			DateFrom:         day("2025-06-01"),
			DateTo:           dayPtr("2025-06-08"),
			PrimaryGroupBy:   dim,
			AppLevelCostView: true,
		}
		result := engine.Process(q)
		if result.TotalCost != 0 || result.TableRows.Len() != 0 {
			t.Fatalf("%s: empty selection gave %v / %d rows", dim, result.TotalCost, result.TableRows.Len())
		}
	}
}

func TestCostEngine_FullSelectionEquivalence(t *testing.T) {
	records := woltRecords()
	engine := mustEngine(t, records)

	q := domain.Query{
		DateFrom:       day("2025-06-02"),
		DateTo:         dayPtr("2025-06-05"),
		SelectedApps:   []string{web, android, iOS},
		PrimaryGroupBy: domain.DimensionMediaSource,
	}

	var want float64
	for _, r := range records {
		if !r.Date.Before(day("2025-06-02")) && !r.Date.After(day("2025-06-05")) {
			want += r.Cost
		}
	}

	if got := engine.TotalCost(q); got != want {
		t.Fatalf("total cost = %v, want %v", got, want)
	}
}

func TestCostEngine_ConservationAcrossDimensions(t *testing.T) {
	engine := mustEngine(t, woltRecords())

	for _, apps := range [][]string{{iOS}, {android}, {web}, {iOS, web}, {iOS, android, web}} {
		for _, dim := range []domain.Dimension{domain.DimensionCampaign, domain.DimensionMediaSource, domain.DimensionDate} {
			q := domain.Query{
				DateFrom:         day("2025-06-01"),
				DateTo:           dayPtr("2025-06-08"),
				SelectedApps:     apps,
				PrimaryGroupBy:   dim,
				SecondaryGroupBy: domain.DimensionDate,
				AppLevelCostView: true,
			}
			result := engine.Process(q)

			if sum := result.TableRows.TotalCost(); sum != result.TotalCost {
				t.Fatalf("%v by %s: rows sum to %v, total is %v", apps, dim, sum, result.TotalCost)
			}
			for _, row := range result.TableRows.Rows() {
				if sub := row.SubRows.TotalCost(); sub != row.Cost {
					t.Fatalf("%v by %s: row %s sub-rows sum to %v, row is %v", apps, dim, row.Key, sub, row.Cost)
				}
			}
		}
	}
}

func TestCostEngine_WoltDataset(t *testing.T) {
	engine := mustEngine(t, woltRecords())

	if got, want := engine.Apps(), []string{iOS, android, web}; !reflect.DeepEqual(got, want) {
		t.Fatalf("apps = %v, want %v", got, want)
	}

	tests := []struct {
		name      string
		query     domain.Query
		wantTotal float64
		wantKeys  []string
		wantCosts map[string]float64
	}{
		{
			name: "all apps by app",
			query: domain.Query{
				DateFrom: day("2025-06-01"), DateTo: dayPtr("2025-06-08"),
				SelectedApps: []string{iOS, android, web}, PrimaryGroupBy: domain.DimensionApp, AppLevelCostView: true,
			},
			wantTotal: 240,
			wantKeys:  []string{iOS, android, web, domain.UnknownKey},
			wantCosts: map[string]float64{iOS: 0, android: 160, web: 0, domain.UnknownKey: 80},
		},
		{
			name: "iOS only by app",
			query: domain.Query{
				DateFrom: day("2025-06-01"), DateTo: dayPtr("2025-06-08"),
				SelectedApps: []string{iOS}, PrimaryGroupBy: domain.DimensionApp, AppLevelCostView: true,
			},
			wantTotal: 80,
			wantKeys:  []string{iOS, domain.UnknownKey},
			wantCosts: map[string]float64{iOS: 0, domain.UnknownKey: 80},
		},
		{
			name: "iOS on a single-app day",
			query: domain.Query{
				DateFrom:     day("2025-06-03"),
				SelectedApps: []string{iOS}, PrimaryGroupBy: domain.DimensionApp, AppLevelCostView: true,
			},
			wantTotal: 10,
			wantKeys:  []string{iOS},
			wantCosts: map[string]float64{iOS: 10},
		},
		{
			name: "android by media source on day one",
			query: domain.Query{
				DateFrom:     day("2025-06-01"),
				SelectedApps: []string{android}, PrimaryGroupBy: domain.DimensionMediaSource,
			},
			wantTotal: 20,
			wantKeys:  []string{"TikTok"},
			wantCosts: map[string]float64{"TikTok": 20},
		},
		{
			name: "all apps by campaign",
			query: domain.Query{
				DateFrom: day("2025-06-01"), DateTo: dayPtr("2025-06-08"),
				SelectedApps: []string{iOS, android, web}, PrimaryGroupBy: domain.DimensionCampaign,
			},
			wantTotal: 240,
			wantKeys:  []string{"wolt_1", "wolt_2"},
			wantCosts: map[string]float64{"wolt_1": 80, "wolt_2": 160},
		},
		{
			name: "web pulls in the whole multi-app campaign",
			query: domain.Query{
				DateFrom: day("2025-06-01"), DateTo: dayPtr("2025-06-08"),
				SelectedApps: []string{web}, PrimaryGroupBy: domain.DimensionApp, AppLevelCostView: true,
			},
			wantTotal: 80,
			wantKeys:  []string{web, domain.UnknownKey},
			wantCosts: map[string]float64{web: 0, domain.UnknownKey: 80},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := engine.Process(tt.query)
			if result.TotalCost != tt.wantTotal {
				t.Fatalf("total cost = %v, want %v", result.TotalCost, tt.wantTotal)
			}
			if got := result.TableRows.Keys(); !reflect.DeepEqual(got, tt.wantKeys) {
				t.Fatalf("row keys = %v, want %v", got, tt.wantKeys)
			}
			if got := rowCosts(result.TableRows); !reflect.DeepEqual(got, tt.wantCosts) {
				t.Fatalf("row costs = %v, want %v", got, tt.wantCosts)
			}
		})
	}
}

func TestCostEngine_AppRowsWithCampaignSubRows(t *testing.T) {
	engine := mustEngine(t, woltRecords())

	q := domain.Query{
		DateFrom:         day("2025-06-01"),
		DateTo:           dayPtr("2025-06-08"),
		SelectedApps:     []string{iOS, android},
		PrimaryGroupBy:   domain.DimensionApp,
		SecondaryGroupBy: domain.DimensionCampaign,
		AppLevelCostView: true,
	}

	rows := engine.TableRows(q)

	iosRow, ok := rows.Get(iOS)
	if !ok {
		t.Fatalf("missing %s row", iOS)
	}
	if got := rowCosts(iosRow.SubRows); !reflect.DeepEqual(got, map[string]float64{"wolt_1": 0, "wolt_2": 0}) {
		t.Fatalf("%s sub-rows = %v", iOS, got)
	}

	androidRow, _ := rows.Get(android)
	if got := rowCosts(androidRow.SubRows); !reflect.DeepEqual(got, map[string]float64{"wolt_1": 0, "wolt_2": 160}) {
		t.Fatalf("%s sub-rows = %v", android, got)
	}

	unknown, ok := rows.Get(domain.UnknownKey)
	if !ok {
		t.Fatalf("missing Unknown row")
	}
	if unknown.Cost != 80 || unknown.SubRows == nil || unknown.SubRows.Len() != 0 {
		t.Fatalf("Unknown = %v with %d sub-rows, want 80 with an empty map", unknown.Cost, unknown.SubRows.Len())
	}

	q.AppLevelCostView = false
	rows = engine.TableRows(q)
	androidRow, _ = rows.Get(android)
	if got := androidRow.SubRows.TotalCost(); got != 0 {
		t.Fatalf("flag off sub-rows sum to %v, want 0", got)
	}
}

func TestCostEngine_AppRowsWithOtherSecondaryHaveEmptySubRows(t *testing.T) {
	engine := mustEngine(t, woltRecords())

	rows := engine.TableRows(domain.Query{
		DateFrom:         day("2025-06-01"),
		SelectedApps:     []string{android},
		PrimaryGroupBy:   domain.DimensionApp,
		SecondaryGroupBy: domain.DimensionDate,
		AppLevelCostView: true,
	})

	for _, row := range rows.Rows() {
		if row.SubRows == nil || row.SubRows.Len() != 0 {
			t.Fatalf("row %s sub-rows = %v, want empty map", row.Key, row.SubRows)
		}
	}
}

func TestCostEngine_UnknownDimensionFallsBackToCampaign(t *testing.T) {
	engine := mustEngine(t, woltRecords())

	base := domain.Query{
		DateFrom:     day("2025-06-01"),
		DateTo:       dayPtr("2025-06-08"),
		SelectedApps: []string{iOS, android, web},
	}

	bogus := base
	bogus.PrimaryGroupBy = domain.Dimension("device")
	bogus.SecondaryGroupBy = domain.Dimension("country")

	explicit := base
	explicit.PrimaryGroupBy = domain.DimensionCampaign
	explicit.SecondaryGroupBy = domain.DimensionCampaign

	got, want := engine.TableRows(bogus), engine.TableRows(explicit)
	if !reflect.DeepEqual(got.Keys(), want.Keys()) || !reflect.DeepEqual(rowCosts(got), rowCosts(want)) {
		t.Fatalf("unknown dimension rows = %v, want %v", rowCosts(got), rowCosts(want))
	}
}

func TestCostEngine_SubRowOrderFollowsCampaigns(t *testing.T) {
	engine := mustEngine(t, []domain.SpendRecord{
		rec("2025-06-02", "Google", "b", 1, "A"),
		rec("2025-06-01", "Google", "a", 2, "A"),
		rec("2025-06-01", "Google", "b", 3, "A"),
	})

	rows := engine.TableRows(domain.Query{
		DateFrom:         day("2025-06-01"),
		DateTo:           dayPtr("2025-06-02"),
		SelectedApps:     []string{"A"},
		PrimaryGroupBy:   domain.DimensionMediaSource,
		SecondaryGroupBy: domain.DimensionDate,
	})

	google, _ := rows.Get("Google")
	if got, want := google.SubRows.Keys(), []string{"2025-06-02", "2025-06-01"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("sub-row keys = %v, want %v", got, want)
	}
	if got := rowCosts(google.SubRows); got["2025-06-02"] != 1 || got["2025-06-01"] != 5 {
		t.Fatalf("sub-row costs = %v", got)
	}
}

func TestCostEngine_IdempotentAndDoesNotMutateInput(t *testing.T) {
	records := woltRecords()
	snapshot := woltRecords()
	engine := mustEngine(t, records)

	q := domain.Query{
		DateFrom:         day("2025-06-01"),
		DateTo:           dayPtr("2025-06-08"),
		SelectedApps:     []string{iOS, iOS, android},
		PrimaryGroupBy:   domain.DimensionApp,
		SecondaryGroupBy: domain.DimensionCampaign,
		AppLevelCostView: true,
	}

	first, second := engine.Process(q), engine.Process(q)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("repeated queries differ")
	}
	if !reflect.DeepEqual(records, snapshot) {
		t.Fatalf("engine mutated its input records")
	}
	if got := first.TableRows.Keys(); !reflect.DeepEqual(got, []string{iOS, android, domain.UnknownKey}) {
		t.Fatalf("duplicate selection produced keys %v", got)
	}
}

func TestCostEngine_ConfiguredUniverse(t *testing.T) {
	records := []domain.SpendRecord{rec("2025-06-01", "Google", "c1", 10, "A")}

	derived := mustEngine(t, records)
	configured := mustEngine(t, records, WithAppUniverse("A", "B"))

	q := domain.Query{DateFrom: day("2025-06-01"), SelectedApps: []string{"A"}, PrimaryGroupBy: domain.DimensionCampaign}

	if got := derived.TotalCost(q); got != 10 {
		t.Fatalf("derived universe total = %v, want 10", got)
	}
	if got := configured.TotalCost(q); got != 10 {
		t.Fatalf("configured universe total = %v, want 10", got)
	}
	if got := configured.Apps(); !reflect.DeepEqual(got, []string{"A", "B"}) {
		t.Fatalf("apps = %v", got)
	}
}

func TestCostEngine_SingleAppOutsideSelectionGoesToUnknown(t *testing.T) {
	records := []domain.SpendRecord{
		rec("2025-06-01", "Google", "c1", 10, "A"),
		rec("2025-06-01", "TikTok", "c3", 7, "C"),
	}
	engine := mustEngine(t, records, WithAppUniverse("A", "B"))

	q := domain.Query{
		DateFrom:         day("2025-06-01"),
		SelectedApps:     []string{"A", "B"},
		PrimaryGroupBy:   domain.DimensionApp,
		SecondaryGroupBy: domain.DimensionCampaign,
		AppLevelCostView: true,
	}
	result := engine.Process(q)

	if result.TotalCost != 17 {
		t.Fatalf("total = %v, want 17", result.TotalCost)
	}
	if got, want := result.TableRows.Keys(), []string{"A", "B", domain.UnknownKey}; !reflect.DeepEqual(got, want) {
		t.Fatalf("row keys = %v, want %v", got, want)
	}
	if got, want := rowCosts(result.TableRows), map[string]float64{"A": 10, "B": 0, domain.UnknownKey: 7}; !reflect.DeepEqual(got, want) {
		t.Fatalf("row costs = %v, want %v", got, want)
	}

	// c3 belongs to no selected app, so neither app row credits it
	for _, app := range []string{"A", "B"} {
		row, _ := result.TableRows.Get(app)
		if sub, ok := row.SubRows.Get("c3"); !ok || sub.Cost != 0 {
			t.Fatalf("%s/c3 sub-row = %+v", app, sub)
		}
	}
}

func TestCostEngine_UnknownIsNotAnApp(t *testing.T) {
	records := []domain.SpendRecord{
		rec("2025-06-01", "Google", "c1", 10, "A"),
		rec("2025-06-02", "Google", "c1", 5, "A", "B"),
	}
	engine := mustEngine(t, records, WithAppUniverse("A", domain.UnknownKey, "B"))

	if got := engine.Apps(); !reflect.DeepEqual(got, []string{"A", "B"}) {
		t.Fatalf("apps = %v, want the reserved name dropped", got)
	}

	result := engine.Process(domain.Query{
		DateFrom:         day("2025-06-01"),
		DateTo:           dayPtr("2025-06-02"),
		SelectedApps:     []string{domain.UnknownKey, "A"},
		PrimaryGroupBy:   domain.DimensionApp,
		AppLevelCostView: true,
	})

	if got, want := result.TableRows.Keys(), []string{"A", domain.UnknownKey}; !reflect.DeepEqual(got, want) {
		t.Fatalf("row keys = %v, want %v", got, want)
	}
	if got, want := rowCosts(result.TableRows), map[string]float64{"A": 0, domain.UnknownKey: 15}; !reflect.DeepEqual(got, want) {
		t.Fatalf("row costs = %v, want %v", got, want)
	}
}

func TestNewCostEngine_RejectsMalformedRecords(t *testing.T) {
	tests := []struct {
		name   string
		record domain.SpendRecord
	}{
		{"zero date", domain.SpendRecord{Campaign: "c1", Apps: []string{"A"}}},
		{"negative cost", rec("2025-06-01", "Google", "c1", -1, "A")},
		{"no apps", rec("2025-06-01", "Google", "c1", 1)},
		{"reserved app", rec("2025-06-01", "Google", "c1", 1, "A", domain.UnknownKey)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCostEngine([]domain.SpendRecord{tt.record})
			if !errors.Is(err, domain.ErrInvalidRecord) {
				t.Fatalf("err = %v, want ErrInvalidRecord", err)
			}
		})
	}
}
