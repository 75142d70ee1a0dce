package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"attributiongo/internal/domain"

	"github.com/pterm/pterm"
)

const notApplicable = "NA"

// BuildTableData lays out an attribution result as table rows, header first and totals last.
// Zero costs read as NA on app rows and on campaign sub-rows, where zero means the cost
// could not be tied to that app.
func BuildTableData(q domain.Query, result *domain.EngineResult) [][]string {
	q = q.Normalized()

	data := [][]string{{q.PrimaryGroupBy.Label(), "Cost"}}

	for _, row := range result.TableRows.Rows() {
		cost := formatCost(row.Cost)
		if q.PrimaryGroupBy == domain.DimensionApp && row.Cost == 0 {
			cost = notApplicable
		}
		data = append(data, []string{row.Label, cost})

		for _, sub := range row.SubRows.Rows() {
			subCost := formatCost(sub.Cost)
			if q.SecondaryGroupBy == domain.DimensionCampaign && sub.Cost == 0 {
				subCost = notApplicable
			}
			data = append(data, []string{"  └ " + sub.Label, subCost})
		}
	}

	totals := result.TotalsRow()
	data = append(data, []string{totals.Label, formatCost(totals.Cost)})
	return data
}

// BuildRecordsTableData lays out a page of raw spend records with a totals row
func BuildRecordsTableData(page *domain.RecordsPage) [][]string {
	data := [][]string{{"Date", "Media Source", "Campaign", "Apps", "Cost", "Impressions", "Clicks"}}

	for _, record := range page.Records {
		data = append(data, []string{
			record.Day(),
			record.MediaSource,
			record.Campaign,
			record.AppsLabel(),
			formatCost(record.Cost),
			strconv.Itoa(record.Impressions),
			strconv.Itoa(record.Clicks),
		})
	}

	data = append(data, []string{
		"Total", "", "", "",
		formatCost(page.Totals.Cost),
		strconv.Itoa(page.Totals.Impressions),
		strconv.Itoa(page.Totals.Clicks),
	})
	return data
}

func formatCost(cost float64) string {
	return fmt.Sprintf("%.2f", cost)
}

func renderTable(w io.Writer, data [][]string) error {
	table, err := pterm.DefaultTable.WithHasHeader().WithBoxed().WithData(data).Srender()
	if err != nil {
		return fmt.Errorf("failed to render table: %w", err)
	}
	_, err = fmt.Fprintln(w, table)
	return err
}

func renderJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	return nil
}
