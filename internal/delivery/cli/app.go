package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"attributiongo/internal/domain"
	"attributiongo/internal/infrastructure"
	"attributiongo/internal/usecase"
	"attributiongo/pkg/logger"
	"attributiongo/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

// CLIApp runs one-shot attribution queries over a fixture file
type CLIApp struct {
	rootCmd *cobra.Command
	version string
}

type services struct {
	attribution *usecase.AttributionService
}

// NewCLIApp creates the command tree
func NewCLIApp(version string) *CLIApp {
	app := &CLIApp{version: version}

	rootCmd := &cobra.Command{
		Use:           "attribution",
		Short:         "Campaign spend attribution CLI",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringP("seed", "s", "data/spend_records.yaml", "Path to a TOML, YAML, or JSON spend fixture")
	rootCmd.PersistentFlags().StringP("output", "o", "table", "Output format: table or json")
	rootCmd.PersistentFlags().StringSlice("app-universe", nil, "Full set of known apps (default: every app in the fixture)")
	rootCmd.PersistentFlags().String("log-level", "warn", "Log level for diagnostics written to stderr")

	rootCmd.AddCommand(app.queryCommand(), app.recordsCommand())

	app.rootCmd = rootCmd
	return app
}

// Execute runs the CLI application
func (app *CLIApp) Execute() error {
	return app.rootCmd.Execute()
}

// SetArgs replaces os.Args, for tests
func (app *CLIApp) SetArgs(args []string) {
	app.rootCmd.SetArgs(args)
}

// SetOutput redirects command output, for tests
func (app *CLIApp) SetOutput(out io.Writer) {
	app.rootCmd.SetOut(out)
	app.rootCmd.SetErr(out)
}

func (app *CLIApp) queryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Compute total cost and the grouped cost table",
		Example: `  attribution query --from 2025-06-01 --to 2025-06-08 --apps "Wolt iOS" --group-by app --then-by campaign
  attribution query --from 2025-06-02 --apps "Wolt iOS,Wolt Android" --group-by media_source -o json`,
		RunE: app.runQuery,
	}

	cmd.Flags().String("from", "", "First day (YYYY-MM-DD)")
	cmd.Flags().String("to", "", "Last day, inclusive (YYYY-MM-DD); omitted means the single day")
	cmd.Flags().StringSliceP("apps", "a", nil, "Selected apps (comma-separated)")
	cmd.Flags().StringP("group-by", "g", string(domain.DimensionCampaign), "Primary dimension: app, media_source, campaign or date")
	cmd.Flags().StringP("then-by", "t", "", "Secondary dimension")
	cmd.Flags().Bool("app-level-cost-view", true, "Attribute single-app campaigns to their app")
	_ = cmd.MarkFlagRequired("from")

	return cmd
}

func (app *CLIApp) recordsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "records",
		Short: "List raw spend records with totals",
		RunE:  app.runRecords,
	}

	cmd.Flags().String("sort", "", "Sort column: date, media_source, campaign, apps, cost, impressions or clicks")
	cmd.Flags().Bool("desc", false, "Sort descending")
	cmd.Flags().IntP("limit", "l", 25, "Maximum rows to show, 0 for all")

	return cmd
}

func (app *CLIApp) runQuery(cmd *cobra.Command, args []string) error {
	from, _ := cmd.Flags().GetString("from")
	to, _ := cmd.Flags().GetString("to")
	apps, _ := cmd.Flags().GetStringSlice("apps")
	groupBy, _ := cmd.Flags().GetString("group-by")
	thenBy, _ := cmd.Flags().GetString("then-by")
	costView, _ := cmd.Flags().GetBool("app-level-cost-view")

	q, err := domain.QueryParams{
		From:    from,
		To:      to,
		Apps:    apps,
		GroupBy: groupBy,
		ThenBy:  thenBy,
	}.Query(costView)
	if err != nil {
		return err
	}

	svc, err := app.services(cmd)
	if err != nil {
		return err
	}

	result, err := svc.attribution.Query(cmd.Context(), q)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	switch output, _ := cmd.Flags().GetString("output"); strings.ToLower(output) {
	case "json":
		return renderJSON(out, map[string]any{"query": q, "data": result})
	case "table":
		if _, err := fmt.Fprintf(out, "Total cost: %s\n", formatCost(result.TotalCost)); err != nil {
			return err
		}
		return renderTable(out, BuildTableData(q, result))
	default:
		return fmt.Errorf("unsupported output format %q", output)
	}
}

func (app *CLIApp) runRecords(cmd *cobra.Command, args []string) error {
	sortField, _ := cmd.Flags().GetString("sort")
	desc, _ := cmd.Flags().GetBool("desc")
	limit, _ := cmd.Flags().GetInt("limit")

	svc, err := app.services(cmd)
	if err != nil {
		return err
	}

	page, err := svc.attribution.ListRecords(cmd.Context(), domain.RecordsQuery{
		SortField: domain.RecordSortField(strings.ToLower(sortField)),
		SortDesc:  desc,
		Limit:     limit,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	switch output, _ := cmd.Flags().GetString("output"); strings.ToLower(output) {
	case "json":
		return renderJSON(out, page)
	case "table":
		if err := renderTable(out, BuildRecordsTableData(page)); err != nil {
			return err
		}
		if page.HasMore {
			_, err = fmt.Fprintf(out, "Showing %d of %d records\n", len(page.Records), page.Total)
		}
		return err
	default:
		return fmt.Errorf("unsupported output format %q", output)
	}
}

// services loads the fixture into an in-memory repository behind the regular services
func (app *CLIApp) services(cmd *cobra.Command) (*services, error) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	seed, _ := cmd.Flags().GetString("seed")
	universe, _ := cmd.Flags().GetStringSlice("app-universe")
	level, _ := cmd.Flags().GetString("log-level")

	log := logger.NewWithOutput(level, os.Stderr)
	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	repo := infrastructure.NewSpendRepository(log)
	cache := infrastructure.NoopResultCache{}

	ingest := usecase.NewIngestService(repo, nil, cache, infrastructure.LoadSpendFixture, log, m, 1, 500)
	if _, err := ingest.LoadFixture(ctx, seed); err != nil {
		return nil, err
	}

	return &services{
		attribution: usecase.NewAttributionService(repo, cache, nil, universe, log, m),
	}, nil
}
