package database

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// PoolStatus grades a connection pool for the readiness report.
type PoolStatus string

const (
	PoolHealthy   PoolStatus = "healthy"
	PoolDegraded  PoolStatus = "degraded"
	PoolUnhealthy PoolStatus = "unhealthy"
)

// PoolStats is a point-in-time snapshot of a pool.
type PoolStats struct {
	TotalConns    int32 `json:"total_conns"`
	AcquiredConns int32 `json:"acquired_conns"`
	IdleConns     int32 `json:"idle_conns"`
	MaxConns      int32 `json:"max_conns"`
	Timeouts      int64 `json:"timeouts,omitempty"`
}

// PoolHealth is the graded snapshot.
type PoolHealth struct {
	Status      PoolStatus `json:"status"`
	Utilization float64    `json:"utilization"`
	Stats       PoolStats  `json:"stats"`
}

// PostgresPoolStats snapshots a pgx pool.
func PostgresPoolStats(pool *pgxpool.Pool) PoolStats {
	stat := pool.Stat()
	return PoolStats{
		TotalConns:    stat.TotalConns(),
		AcquiredConns: stat.AcquiredConns(),
		IdleConns:     stat.IdleConns(),
		MaxConns:      stat.MaxConns(),
	}
}

// RedisPoolStats snapshots a go-redis pool.
func RedisPoolStats(client *redis.Client) PoolStats {
	stat := client.PoolStats()
	idle := int32(stat.IdleConns)
	total := int32(stat.TotalConns)
	return PoolStats{
		TotalConns:    total,
		AcquiredConns: total - idle,
		IdleConns:     idle,
		MaxConns:      int32(client.Options().PoolSize),
		Timeouts:      int64(stat.Timeouts),
	}
}

// AssessPool grades utilization: 80% is degraded, 95% unhealthy.
func AssessPool(s PoolStats) PoolHealth {
	h := PoolHealth{Status: PoolHealthy, Stats: s}
	if s.MaxConns <= 0 {
		return h
	}

	h.Utilization = float64(s.AcquiredConns) / float64(s.MaxConns)
	switch {
	case h.Utilization >= 0.95:
		h.Status = PoolUnhealthy
	case h.Utilization >= 0.80:
		h.Status = PoolDegraded
	}
	return h
}
