package metrics

import (
	"context"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"finresearch/pkg/logger"
)

// CustomCollector collects data-volume gauges from the backing stores
type CustomCollector struct {
	log        *logger.Logger
	postgres   *sqlx.DB
	clickhouse driver.Conn
	redis      *redis.Client

	// Descriptors
	indexedPassages *prometheus.Desc
	valuationRows   *prometheus.Desc
	auditedRequests *prometheus.Desc
	cacheKeys       *prometheus.Desc
}

// NewCustomCollector creates a new custom metrics collector
func NewCustomCollector(log *logger.Logger, postgres *sqlx.DB, clickhouse driver.Conn, redis *redis.Client) *CustomCollector {
	return &CustomCollector{
		log:        log,
		postgres:   postgres,
		clickhouse: clickhouse,
		redis:      redis,

		indexedPassages: prometheus.NewDesc(
			"finresearch_indexed_passages",
			"Number of indexed report passages by fiscal year",
			[]string{"year"}, nil,
		),
		valuationRows: prometheus.NewDesc(
			"finresearch_valuation_rows",
			"Number of valuation metric rows by company",
			[]string{"company"}, nil,
		),
		auditedRequests: prometheus.NewDesc(
			"finresearch_audited_requests_24h",
			"Research responses recorded in the last 24h",
			nil, nil,
		),
		cacheKeys: prometheus.NewDesc(
			"finresearch_cache_keys",
			"Number of keys in the Redis cache database",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector
func (c *CustomCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.indexedPassages
	ch <- c.valuationRows
	ch <- c.auditedRequests
	ch <- c.cacheKeys
}

// Collect implements prometheus.Collector
func (c *CustomCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c.collectPassages(ctx, ch)
	c.collectValuationRows(ctx, ch)
	c.collectAuditedRequests(ctx, ch)
	c.collectCacheKeys(ctx, ch)
}

func (c *CustomCollector) collectPassages(ctx context.Context, ch chan<- prometheus.Metric) {
	if c.postgres == nil {
		return
	}

	type passageStat struct {
		Year  string `db:"year"`
		Count int    `db:"count"`
	}

	var stats []passageStat
	err := c.postgres.SelectContext(ctx, &stats, `
		SELECT year::text AS year, COUNT(*) AS count
		FROM report_passages
		GROUP BY year
	`)
	if err != nil {
		c.log.Warnw("Failed to collect passage stats", "error", err)
		return
	}

	for _, stat := range stats {
		ch <- prometheus.MustNewConstMetric(
			c.indexedPassages,
			prometheus.GaugeValue,
			float64(stat.Count),
			stat.Year,
		)
	}
}

func (c *CustomCollector) collectValuationRows(ctx context.Context, ch chan<- prometheus.Metric) {
	if c.clickhouse == nil {
		return
	}

	rows, err := c.clickhouse.Query(ctx, `
		SELECT company, count() AS count
		FROM valuation_metrics FINAL
		GROUP BY company
	`)
	if err != nil {
		c.log.Warnw("Failed to collect valuation row stats", "error", err)
		return
	}
	defer rows.Close()

	for rows.Next() {
		var (
			company string
			count   uint64
		)
		if err := rows.Scan(&company, &count); err != nil {
			c.log.Warnw("Failed to scan valuation row stats", "error", err)
			return
		}
		ch <- prometheus.MustNewConstMetric(
			c.valuationRows,
			prometheus.GaugeValue,
			float64(count),
			company,
		)
	}
}

func (c *CustomCollector) collectAuditedRequests(ctx context.Context, ch chan<- prometheus.Metric) {
	if c.clickhouse == nil {
		return
	}

	var count uint64
	err := c.clickhouse.QueryRow(ctx, `
		SELECT count()
		FROM research_responses
		WHERE created_at > now() - INTERVAL 24 HOUR
	`).Scan(&count)
	if err != nil {
		c.log.Warnw("Failed to collect audited request stats", "error", err)
		return
	}

	ch <- prometheus.MustNewConstMetric(
		c.auditedRequests,
		prometheus.GaugeValue,
		float64(count),
	)
}

func (c *CustomCollector) collectCacheKeys(ctx context.Context, ch chan<- prometheus.Metric) {
	if c.redis == nil {
		return
	}

	size, err := c.redis.DBSize(ctx).Result()
	if err != nil {
		c.log.Warnw("Failed to collect cache size", "error", err)
		return
	}

	ch <- prometheus.MustNewConstMetric(
		c.cacheKeys,
		prometheus.GaugeValue,
		float64(size),
	)
}

// RegisterCustomCollector registers the custom collector
func RegisterCustomCollector(collector *CustomCollector) {
	prometheus.MustRegister(collector)
}
