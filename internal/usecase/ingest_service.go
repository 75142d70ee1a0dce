package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"attributiongo/internal/domain"
	"attributiongo/pkg/logger"
	"attributiongo/pkg/metrics"
)

// FixtureLoader reads raw spend records from a file
type FixtureLoader func(path string) ([]domain.RawSpendRecord, error)

type IngestService struct {
	spendRepo   domain.SpendRepository
	source      domain.SpendSource
	cache       domain.ResultCache
	loadFixture FixtureLoader
	logger      *logger.Logger
	metrics     *metrics.Metrics
	workerPool  int
	batchSize   int
}

func NewIngestService(
	spendRepo domain.SpendRepository,
	source domain.SpendSource,
	cache domain.ResultCache,
	loadFixture FixtureLoader,
	logger *logger.Logger,
	metrics *metrics.Metrics,
	workerPool, batchSize int,
) *IngestService {
	if workerPool <= 0 {
		workerPool = 1
	}
	if batchSize <= 0 {
		batchSize = 500
	}
	return &IngestService{
		spendRepo:   spendRepo,
		source:      source,
		cache:       cache,
		loadFixture: loadFixture,
		logger:      logger,
		metrics:     metrics,
		workerPool:  workerPool,
		batchSize:   batchSize,
	}
}

// LoadFixture parses a fixture file and upserts its records
func (s *IngestService) LoadFixture(ctx context.Context, path string) (int, error) {
	start := time.Now()
	log := s.logger.WithContext(ctx).WithField("path", path)
	log.Info("Loading spend fixture")

	raw, err := s.loadFixture(path)
	if err != nil {
		s.metrics.RecordIngestJob("failed", "extract", time.Since(start))
		return 0, fmt.Errorf("failed to load fixture: %w", err)
	}

	count, err := s.ingest(ctx, "fixture", raw, start)
	if err != nil {
		return 0, err
	}

	log.WithFields(map[string]any{
		"records":  count,
		"duration": time.Since(start),
	}).Info("Spend fixture loaded")

	return count, nil
}

// RunIngest pulls spend records from the upstream API, keeping only days on or after since
func (s *IngestService) RunIngest(ctx context.Context, since *time.Time) (int, error) {
	start := time.Now()
	s.metrics.IncIngestJobsInProgress()
	defer s.metrics.DecIngestJobsInProgress()

	log := s.logger.WithContext(ctx)
	log.Info("Starting spend ingest")

	data, err := s.source.FetchSpendData(ctx)
	if err != nil {
		s.metrics.RecordIngestJob("failed", "extract", time.Since(start))
		return 0, fmt.Errorf("failed to extract spend data: %w", err)
	}

	raw := data.External.Ads.Spend
	if since != nil {
		raw, err = dropBefore(raw, domain.TruncateDay(*since))
		if err != nil {
			s.metrics.RecordIngestRejection("api", "date_parse")
			s.metrics.RecordIngestJob("failed", "transform", time.Since(start))
			return 0, fmt.Errorf("failed to filter spend data: %w", err)
		}
	}

	count, err := s.ingest(ctx, "api", raw, start)
	if err != nil {
		return 0, err
	}

	log.WithFields(map[string]any{
		"duration":     time.Since(start),
		"records":      count,
		"since_filter": since != nil,
	}).Info("Spend ingest completed successfully")

	return count, nil
}

// ingest parses, stores and invalidates; shared by every ingestion path
func (s *IngestService) ingest(ctx context.Context, source string, raw []domain.RawSpendRecord, start time.Time) (int, error) {
	log := s.logger.WithContext(ctx)

	records, err := s.parseWithWorkerPool(raw)
	if err != nil {
		s.metrics.RecordIngestRejection(source, rejectionType(err))
		s.metrics.RecordIngestJob("failed", "transform", time.Since(start))
		log.WithError(err).Warn("Rejected spend batch")
		return 0, fmt.Errorf("failed to parse spend records: %w", err)
	}

	if err := s.spendRepo.Store(ctx, records); err != nil {
		s.metrics.RecordIngestJob("failed", "load", time.Since(start))
		return 0, fmt.Errorf("failed to store spend records: %w", err)
	}

	if err := s.cache.Invalidate(ctx); err != nil {
		log.WithError(err).Warn("Failed to invalidate attribution cache")
	}

	if total, err := s.spendRepo.Count(ctx); err == nil {
		s.metrics.SetSpendRecordsStored(total)
	}

	s.metrics.RecordIngestRecords(source, len(records))
	s.metrics.RecordIngestJob("success", "complete", time.Since(start))
	return len(records), nil
}

type parseBatch struct {
	offset  int
	records []domain.RawSpendRecord
}

// parseWithWorkerPool parses batches concurrently; output order matches input and
// the reported error is the one with the lowest record index
func (s *IngestService) parseWithWorkerPool(raw []domain.RawSpendRecord) ([]domain.SpendRecord, error) {
	parsed := make([]domain.SpendRecord, len(raw))
	errs := make([]error, len(raw))

	jobs := make(chan parseBatch)

	var wg sync.WaitGroup
	for i := 0; i < s.workerPool; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for batch := range jobs {
				for j, r := range batch.records {
					idx := batch.offset + j
					parsed[idx], errs[idx] = ParseSpendRecord(r)
				}
			}
		}()
	}

	for offset := 0; offset < len(raw); offset += s.batchSize {
		end := min(offset+s.batchSize, len(raw))
		jobs <- parseBatch{offset: offset, records: raw[offset:end]}
	}
	close(jobs)
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
	}
	return parsed, nil
}

func dropBefore(raw []domain.RawSpendRecord, since time.Time) ([]domain.RawSpendRecord, error) {
	kept := make([]domain.RawSpendRecord, 0, len(raw))
	for i, r := range raw {
		date, err := parseRecordDate(r.Day)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		if date.Before(since) {
			continue
		}
		kept = append(kept, r)
	}
	return kept, nil
}

func rejectionType(err error) string {
	if errors.Is(err, domain.ErrInvalidRecord) {
		return "invalid_record"
	}
	return "unknown"
}
