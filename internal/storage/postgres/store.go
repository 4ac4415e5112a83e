// Package postgres archives completed sessions in PostgreSQL using pgx v5.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/cory-johannsen/gamerunner/internal/config"
)

// applicationName tags archive connections in pg_stat_activity.
const applicationName = "gamerunner"

// Store is the session_results archive. It implements runner.ResultStore.
type Store struct {
	pool *pgxpool.Pool
}

func poolConfig(cfg config.DatabaseConfig) (*pgxpool.Config, error) {
	pc, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parsing database config: %w", err)
	}
	pc.MaxConns = cfg.MaxConns
	pc.MinConns = cfg.MinConns
	pc.MaxConnLifetime = cfg.MaxConnLifetime
	pc.ConnConfig.RuntimeParams["application_name"] = applicationName
	return pc, nil
}

// Open connects to the database described by cfg.
//
// Precondition: cfg must hold valid connection parameters; the schema is
// managed separately by cmd/migrate.
// Postcondition: Returns a Store whose pool answered a ping, or a non-nil error.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*Store, error) {
	pc, err := poolConfig(cfg)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Ping checks that the database answers within timeout.
func (s *Store) Ping(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return s.pool.Ping(ctx)
}

// WatchHealth pings the database every interval until ctx is cancelled.
// Failures are logged; the archive is best effort, so they never stop the loop.
//
// Precondition: interval must be positive.
// Postcondition: Returns nil once ctx is cancelled.
func (s *Store) WatchHealth(ctx context.Context, interval time.Duration, logger *zap.Logger) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := s.Ping(ctx, interval/2); err != nil && ctx.Err() == nil {
				logger.Warn("database health check failed", zap.Error(err))
			}
		}
	}
}

// Close releases every pooled connection.
func (s *Store) Close() {
	s.pool.Close()
}
