package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"attributiongo/internal/domain"
	"attributiongo/pkg/logger"
	"attributiongo/pkg/metrics"
)

// AttributionService answers attribution and raw-spend queries over the repository
type AttributionService struct {
	spendRepo    domain.SpendRepository
	cache        domain.ResultCache
	exportClient domain.ExportClient
	appUniverse  []string
	logger       *logger.Logger
	metrics      *metrics.Metrics
	now          func() time.Time
}

// NewAttributionService creates a new attribution service. appUniverse may be empty.
func NewAttributionService(
	spendRepo domain.SpendRepository,
	cache domain.ResultCache,
	exportClient domain.ExportClient,
	appUniverse []string,
	logger *logger.Logger,
	metrics *metrics.Metrics,
) *AttributionService {
	return &AttributionService{
		spendRepo:    spendRepo,
		cache:        cache,
		exportClient: exportClient,
		appUniverse:  domain.UniqueApps(appUniverse),
		logger:       logger,
		metrics:      metrics,
		now:          time.Now,
	}
}

// Query runs the attribution engine, serving repeated queries from the cache
func (s *AttributionService) Query(ctx context.Context, q domain.Query) (*domain.EngineResult, error) {
	start := time.Now()
	q = q.Normalized()
	groupBy := string(q.PrimaryGroupBy)

	log := s.logger.WithContext(ctx)
	log.WithFields(map[string]any{
		"from":                q.DateFrom.Format(domain.DateLayout),
		"to":                  formatOptionalDay(q.DateTo),
		"apps":                q.SelectedApps,
		"group_by":            q.PrimaryGroupBy,
		"then_by":             q.SecondaryGroupBy,
		"app_level_cost_view": q.AppLevelCostView,
	}).Info("Running attribution query")

	key, err := CacheKey(q)
	if err != nil {
		s.metrics.RecordAttributionQuery(groupBy, "failed", time.Since(start))
		return nil, err
	}

	// read before the snapshot so a concurrent ingest voids this result's cache write
	generation, genErr := s.cache.Generation(ctx)
	if genErr != nil {
		log.WithError(genErr).Warn("Attribution cache generation unavailable")
	}

	if cached, ok, err := s.cache.Get(ctx, key); err != nil {
		log.WithError(err).Warn("Attribution cache lookup failed")
	} else if ok {
		s.metrics.RecordCacheLookup(true)
		s.metrics.RecordAttributionQuery(groupBy, "cached", time.Since(start))
		log.WithField("total_cost", cached.TotalCost).Info("Served attribution result from cache")
		return cached, nil
	}
	s.metrics.RecordCacheLookup(false)

	engine, err := s.engine(ctx)
	if err != nil {
		s.metrics.RecordAttributionQuery(groupBy, "failed", time.Since(start))
		log.WithError(err).Error("Failed to build cost engine")
		return nil, err
	}

	result := engine.Process(q)

	if genErr == nil {
		if err := s.cache.Set(ctx, key, generation, result); err != nil {
			log.WithError(err).Warn("Failed to cache attribution result")
		}
	}

	s.metrics.RecordAttributionQuery(groupBy, "success", time.Since(start))

	log.WithFields(map[string]any{
		"total_cost": result.TotalCost,
		"rows":       result.TableRows.Len(),
		"duration":   time.Since(start),
	}).Info("Attribution query completed")

	return result, nil
}

// ListRecords returns the raw spend table, optionally sorted and limited
func (s *AttributionService) ListRecords(ctx context.Context, q domain.RecordsQuery) (*domain.RecordsPage, error) {
	log := s.logger.WithContext(ctx)

	if !q.SortField.IsValid() {
		return nil, fmt.Errorf("unknown sort field %q", q.SortField)
	}

	records, err := s.spendRepo.List(ctx)
	if err != nil {
		log.WithError(err).Error("Failed to list spend records")
		return nil, fmt.Errorf("failed to list spend records: %w", err)
	}

	SortRecords(records, q.SortField, q.SortDesc)

	page := &domain.RecordsPage{
		Records: records,
		Totals:  TotalsOf(records),
		Total:   len(records),
	}

	if q.Limit > 0 && q.Limit < len(records) {
		page.Records = records[:q.Limit]
		page.HasMore = true
	}

	log.WithFields(map[string]any{
		"sort":     q.SortField,
		"desc":     q.SortDesc,
		"returned": len(page.Records),
		"total":    page.Total,
	}).Info("Listed spend records")

	return page, nil
}

// Apps returns the configured app universe, or every app present in the data
func (s *AttributionService) Apps(ctx context.Context) ([]string, error) {
	engine, err := s.engine(ctx)
	if err != nil {
		return nil, err
	}
	return engine.Apps(), nil
}

// ExportReport computes the attribution result for q and pushes it to the export sink
func (s *AttributionService) ExportReport(ctx context.Context, q domain.Query) error {
	log := s.logger.WithContext(ctx)
	log.Info("Starting attribution export")

	result, err := s.Query(ctx, q)
	if err != nil {
		return fmt.Errorf("failed to compute report: %w", err)
	}

	report := domain.AttributionReport{
		Query:       q.Normalized(),
		Result:      result,
		GeneratedAt: s.now().UTC(),
	}

	if err := s.exportClient.Export(ctx, report); err != nil {
		log.WithError(err).Error("Failed to export attribution report")
		return fmt.Errorf("failed to export report: %w", err)
	}

	log.WithField("rows", result.TableRows.Len()).Info("Attribution export completed successfully")
	return nil
}

// engine builds a cost engine over the current repository snapshot
func (s *AttributionService) engine(ctx context.Context) (*CostEngine, error) {
	records, err := s.spendRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load spend records: %w", err)
	}

	engine, err := NewCostEngine(records, WithAppUniverse(s.appUniverse...))
	if err != nil {
		return nil, fmt.Errorf("failed to build cost engine: %w", err)
	}
	return engine, nil
}

// CacheKey identifies a normalized query
func CacheKey(q domain.Query) (string, error) {
	payload, err := json.Marshal(q.Normalized())
	if err != nil {
		return "", fmt.Errorf("failed to encode query: %w", err)
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:]), nil
}

func formatOptionalDay(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(domain.DateLayout)
}
