// Package storage is the datastore layer. All state (inventory snapshots,
// access models, scan violations, notification log) lives in PostgreSQL
// reached through the deployment's local database proxy.
package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sentinelops/sentinel/internal/config"
	"github.com/sentinelops/sentinel/internal/jobs"
)

// Store wraps the connection pool and the typed accessors built on it.
type Store struct {
	pool     *pgxpool.Pool
	instance string
}

// Connect creates the connection pool. It does not verify connectivity;
// call WaitReady before serving traffic.
func Connect(ctx context.Context, cfg config.StorageConfig) (*Store, error) {
	if cfg.Connection == "" {
		return nil, fmt.Errorf("storage connection string not configured (set %s)", config.EnvSQLConnection)
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.Connection)
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.PoolSize)
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = 1 * time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	return &Store{pool: pool, instance: cfg.Instance}, nil
}

// WaitReady pings the datastore with exponential backoff until it responds
// or the timeout elapses. The server must not accept traffic before the
// proxy connection is up.
func (s *Store) WaitReady(ctx context.Context, cfg config.StorageConfig) error {
	deadline := time.Now().Add(cfg.ConnectTimeout)
	attempt := 0

	for {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := s.pool.Ping(pingCtx)
		cancel()
		if err == nil {
			slog.Info("datastore ready",
				"instance", s.instance,
				"attempts", attempt+1)
			return nil
		}

		attempt++
		delay := jobs.ExponentialBackoff(attempt-1, cfg.RetryBaseDelay, cfg.RetryMaxDelay)
		if time.Now().Add(delay).After(deadline) {
			return fmt.Errorf("datastore not reachable after %d attempts: %w", attempt, err)
		}

		slog.Warn("datastore not ready, retrying",
			"instance", s.instance,
			"attempt", attempt,
			"delay", delay,
			"error", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

// Ping verifies connectivity with a short timeout.
func (s *Store) Ping(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return s.pool.Ping(pingCtx)
}

// HealthDetails reports pool utilization. The degraded flag is set when the
// pool is near capacity.
func (s *Store) HealthDetails() (details map[string]string, degraded bool) {
	stats := s.pool.Stat()
	details = map[string]string{
		"instance": s.instance,
		"acquired": fmt.Sprintf("%d", stats.AcquiredConns()),
		"max":      fmt.Sprintf("%d", stats.MaxConns()),
		"idle":     fmt.Sprintf("%d", stats.IdleConns()),
	}
	degraded = stats.AcquiredConns() >= int32(float64(stats.MaxConns())*0.9)
	return details, degraded
}

// Instance returns the configured instance identifier.
func (s *Store) Instance() string {
	return s.instance
}

// Close releases the connection pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
		slog.Info("closed datastore connection pool")
	}
}
