package infrastructure

import (
	"context"
	"fmt"
	"time"

	"attributiongo/internal/domain"
	"attributiongo/pkg/config"
	"attributiongo/pkg/logger"

	"github.com/ClickHouse/clickhouse-go/v2"
)

// ReplacingMergeTree keyed by record identity, so re-ingesting a campaign-day replaces it
const createSpendTableSQL = `
	CREATE TABLE IF NOT EXISTS spend_records (
		day          Date,
		media_source String,
		campaign     String,
		cost         Float64,
		impressions  Int64,
		clicks       Int64,
		apps         Array(String),
		apps_key     String,
		inserted_at  DateTime64(3) DEFAULT now64(3)
	) ENGINE = ReplacingMergeTree(inserted_at)
	ORDER BY (day, media_source, campaign, apps_key)
`

// implements domain.SpendRepository on ClickHouse
type ClickHouseSpendRepository struct {
	conn   clickhouse.Conn
	logger *logger.Logger
}

// connects, pings and makes sure the spend table exists
func NewClickHouseSpendRepository(ctx context.Context, cfg config.ClickHouseConfig, logger *logger.Logger) (*ClickHouseSpendRepository, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open ClickHouse connection: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := conn.Ping(pingCtx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	if err := conn.Exec(ctx, createSpendTableSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create spend_records table: %w", err)
	}

	logger.WithField("addr", cfg.Addr).Info("Connected to ClickHouse")
	return &ClickHouseSpendRepository{conn: conn, logger: logger}, nil
}

func (r *ClickHouseSpendRepository) Store(ctx context.Context, records []domain.SpendRecord) error {
	if len(records) == 0 {
		return nil
	}

	batch, err := r.conn.PrepareBatch(ctx, `
		INSERT INTO spend_records (day, media_source, campaign, cost, impressions, clicks, apps, apps_key)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare batch insert: %w", err)
	}

	for _, record := range records {
		err := batch.Append(
			record.Date,
			record.MediaSource,
			record.Campaign,
			record.Cost,
			int64(record.Impressions),
			int64(record.Clicks),
			record.Apps,
			record.Identity().Apps,
		)
		if err != nil {
			return fmt.Errorf("failed to append campaign %q on %s: %w", record.Campaign, record.Day(), err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}

	r.logger.WithContext(ctx).WithField("count", len(records)).Info("Stored spend records in ClickHouse")
	return nil
}

func (r *ClickHouseSpendRepository) List(ctx context.Context) ([]domain.SpendRecord, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT day, media_source, campaign, cost, impressions, clicks, apps
		FROM spend_records FINAL
		ORDER BY day, media_source, campaign, apps_key
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query spend records: %w", err)
	}
	defer rows.Close()

	var records []domain.SpendRecord
	for rows.Next() {
		var (
			record      domain.SpendRecord
			impressions int64
			clicks      int64
		)
		if err := rows.Scan(&record.Date, &record.MediaSource, &record.Campaign, &record.Cost, &impressions, &clicks, &record.Apps); err != nil {
			return nil, fmt.Errorf("failed to scan spend record: %w", err)
		}
		record.Date = domain.TruncateDay(record.Date)
		record.Impressions = int(impressions)
		record.Clicks = int(clicks)
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row error during spend records query: %w", err)
	}

	return records, nil
}

func (r *ClickHouseSpendRepository) Count(ctx context.Context) (int, error) {
	var count uint64
	if err := r.conn.QueryRow(ctx, `SELECT count() FROM spend_records FINAL`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count spend records: %w", err)
	}
	return int(count), nil
}

func (r *ClickHouseSpendRepository) Close() error {
	return r.conn.Close()
}
