package clickhouse

import (
	"context"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"finresearch/pkg/errors"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS valuation_metrics (
		company               LowCardinality(String),
		year                  UInt16,
		quarter               UInt8,
		market_cap            Nullable(Decimal(38, 2)),
		enterprise_value      Nullable(Decimal(38, 2)),
		trailing_pe           Nullable(Decimal(18, 4)),
		forward_pe            Nullable(Decimal(18, 4)),
		peg_ratio             Nullable(Decimal(18, 4)),
		price_to_sales        Nullable(Decimal(18, 4)),
		price_to_book         Nullable(Decimal(18, 4)),
		enterprise_to_revenue Nullable(Decimal(18, 4)),
		enterprise_to_ebitda  Nullable(Decimal(18, 4)),
		updated_at            DateTime64(3, 'UTC')
	) ENGINE = ReplacingMergeTree(updated_at)
	ORDER BY (company, year, quarter)`,

	`CREATE TABLE IF NOT EXISTS research_responses (
		id             String,
		company        LowCardinality(String),
		query          String,
		start_quarter  LowCardinality(String),
		end_quarter    LowCardinality(String),
		agents         Array(LowCardinality(String)),
		agent_status   Map(String, String),
		outcome        LowCardinality(String),
		degraded       Bool,
		synthesis      String,
		citation_count UInt32,
		created_at     DateTime64(3, 'UTC')
	) ENGINE = MergeTree()
	PARTITION BY toYYYYMM(created_at)
	ORDER BY (company, created_at)
	TTL toDateTime(created_at) + INTERVAL 180 DAY`,
}

// EnsureSchema creates the tables used by the service
func EnsureSchema(ctx context.Context, conn driver.Conn) error {
	for _, ddl := range schema {
		if err := conn.Exec(ctx, ddl); err != nil {
			return errors.Wrap(err, "clickhouse schema")
		}
	}
	return nil
}
