package infrastructure

import (
	"context"
	"sort"
	"sync"

	"attributiongo/internal/domain"
	"attributiongo/pkg/logger"
)

// implements domain.SpendRepository in memory, bucketed by day
type SpendRepository struct {
	data   map[string][]domain.SpendRecord
	index  map[domain.RecordKey]int
	count  int
	mutex  sync.RWMutex
	logger *logger.Logger
}

// creates a new in-memory spend repository
func NewSpendRepository(logger *logger.Logger) *SpendRepository {
	return &SpendRepository{
		data:   make(map[string][]domain.SpendRecord),
		index:  make(map[domain.RecordKey]int),
		logger: logger,
	}
}

func (r *SpendRepository) Store(ctx context.Context, records []domain.SpendRecord) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	var inserted, replaced int
	for _, record := range records {
		record.Apps = append([]string(nil), record.Apps...)
		dateKey := record.Day()
		key := record.Identity()

		if i, exists := r.index[key]; exists {
			r.data[dateKey][i] = record
			replaced++
			continue
		}

		r.index[key] = len(r.data[dateKey])
		r.data[dateKey] = append(r.data[dateKey], record)
		inserted++
	}
	r.count += inserted

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"inserted": inserted,
		"replaced": replaced,
		"total":    r.count,
	}).Info("Stored spend records in memory")
	return nil
}

// List returns every record ordered by day, then by first insertion
func (r *SpendRepository) List(ctx context.Context) ([]domain.SpendRecord, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	days := make([]string, 0, len(r.data))
	for day := range r.data {
		days = append(days, day)
	}
	sort.Strings(days)

	result := make([]domain.SpendRecord, 0, r.count)
	for _, day := range days {
		for _, record := range r.data[day] {
			record.Apps = append([]string(nil), record.Apps...)
			result = append(result, record)
		}
	}

	return result, nil
}

func (r *SpendRepository) Count(ctx context.Context) (int, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	return r.count, nil
}
