package domain

import (
	"context"
)

// interface for spend record storage
type SpendRepository interface {
	// Store upserts records by identity
	Store(ctx context.Context, records []SpendRecord) error
	List(ctx context.Context) ([]SpendRecord, error)
	Count(ctx context.Context) (int, error)
}

// interface for the upstream spend API
type SpendSource interface {
	FetchSpendData(ctx context.Context) (*SpendData, error)
}

// interface for report export
type ExportClient interface {
	Export(ctx context.Context, report AttributionReport) error
}

// interface for caching attribution results
type ResultCache interface {
	// Generation identifies the current cache epoch; Invalidate advances it
	Generation(ctx context.Context) (uint64, error)
	Get(ctx context.Context, key string) (*EngineResult, bool, error)
	// Set stores a result computed during generation. It is dropped when the
	// cache has been invalidated since.
	Set(ctx context.Context, key string, generation uint64, result *EngineResult) error
	// Invalidate drops every cached result
	Invalidate(ctx context.Context) error
}
