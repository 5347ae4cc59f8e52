package metrics

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Pool labels for the connection gauges.
const (
	poolPgx  = "pgx"
	poolSqlx = "sqlx"
)

// DBStatsCollector samples connection statistics from both database pools:
// the pgxpool behind the credential repository and the sqlx pool behind the
// entry repository.
type DBStatsCollector struct {
	pgxPool *pgxpool.Pool
	sqlxDB  *sql.DB
	stopCh  chan struct{}
}

// NewDBStatsCollector creates a new database stats collector
func NewDBStatsCollector(pgxPool *pgxpool.Pool, sqlxDB *sql.DB) *DBStatsCollector {
	return &DBStatsCollector{
		pgxPool: pgxPool,
		sqlxDB:  sqlxDB,
		stopCh:  make(chan struct{}),
	}
}

// Start begins collecting database statistics at regular intervals
func (c *DBStatsCollector) Start(interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		c.collect()

		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				return
			}
		}
	}()

	slog.Info("database stats collector started", "interval", interval)
}

// Stop stops the database stats collector
func (c *DBStatsCollector) Stop() {
	close(c.stopCh)
	slog.Info("database stats collector stopped")
}

// collect gathers pool statistics and updates the Prometheus gauges
func (c *DBStatsCollector) collect() {
	if c.pgxPool != nil {
		stat := c.pgxPool.Stat()
		DBConnectionsOpen.WithLabelValues(poolPgx).Set(float64(stat.TotalConns()))
		DBConnectionsInUse.WithLabelValues(poolPgx).Set(float64(stat.AcquiredConns()))
		DBConnectionsIdle.WithLabelValues(poolPgx).Set(float64(stat.IdleConns()))
		DBConnectionsMaxOpen.WithLabelValues(poolPgx).Set(float64(stat.MaxConns()))
	}

	if c.sqlxDB != nil {
		stats := c.sqlxDB.Stats()
		DBConnectionsOpen.WithLabelValues(poolSqlx).Set(float64(stats.OpenConnections))
		DBConnectionsInUse.WithLabelValues(poolSqlx).Set(float64(stats.InUse))
		DBConnectionsIdle.WithLabelValues(poolSqlx).Set(float64(stats.Idle))
		DBConnectionsMaxOpen.WithLabelValues(poolSqlx).Set(float64(stats.MaxOpenConnections))
	}
}

// RecordQueryDuration records the duration of a database query
func RecordQueryDuration(operation string, duration time.Duration) {
	DBQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// TimeQuery is a helper function to time database queries
// Usage: defer metrics.TimeQuery("resolve_pin")()
func TimeQuery(operation string) func() {
	start := time.Now()
	return func() {
		RecordQueryDuration(operation, time.Since(start))
	}
}

// PingDatabase checks database connectivity and records the result
func PingDatabase(ctx context.Context, pool *pgxpool.Pool) error {
	start := time.Now()
	err := pool.Ping(ctx)
	RecordQueryDuration("ping", time.Since(start))
	return err
}
