// Package db implements a way to work with database
package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"statusflow/internal/config"
)

// A DB is a wrapper for database pool
type DB struct {
	pool *pgxpool.Pool
}

// NewDB creates a new instance of DB using pool
func NewDB(pool *pgxpool.Pool) *DB {
	return &DB{pool}
}

// NewDBWithConfig creates a new instance of DB based on the configuration file.
// Connecting is retried up to Database.Retry.MaxAttempts times
func NewDBWithConfig(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*DB, error) {
	if cfg == nil {
		return nil, errors.New("no config was provided")
	}
	dsn := fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s", cfg.Database.User, cfg.Database.Password,
		cfg.Database.Host, cfg.Database.Port, cfg.Database.Database, cfg.Database.SSLMode,
	)
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	if cfg.Database.MaxOpenConnections > 0 {
		poolCfg.MaxConns = int32(cfg.Database.MaxOpenConnections)
	}
	poolCfg.MinConns = int32(cfg.Database.MinOpenConnections)
	poolCfg.MinIdleConns = int32(cfg.Database.MinIdleConnections)
	if cfg.Database.HealthCheckPeriod > 0 {
		poolCfg.HealthCheckPeriod = cfg.Database.HealthCheckPeriod
	}

	attempts := uint(cfg.Database.Retry.MaxAttempts)
	if attempts == 0 {
		attempts = 1
	}

	var pool *pgxpool.Pool
	err = retry.Do(
		func() error {
			p, err := pgxpool.NewWithConfig(ctx, poolCfg)
			if err != nil {
				return err
			}
			if err := p.Ping(ctx); err != nil {
				p.Close()
				return err
			}
			pool = p
			return nil
		},
		retry.Attempts(attempts),
		retry.Delay(time.Second),
		retry.DelayType(retry.BackOffDelay),
		retry.MaxDelay(10*time.Second),
		retry.LastErrorOnly(true),
		retry.OnRetry(
			func(n uint, err error) {
				logger.Warn().
					Err(err).
					Uint("attempt", n+1).
					Msg("Retrying database connection")
			},
		),
		retry.Context(ctx),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return &DB{pool}, nil
}

// Ping calls the pool's ping
func (db *DB) Ping(ctx context.Context) error {
	return db.pool.Ping(ctx)
}

// WithTx wraps the function with database query in a transaction
func (db *DB) WithTx(ctx context.Context, fn func(tx pgx.Tx) (any, error)) (any, error) {
	tx, err := db.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return nil, err
	}

	defer func() { _ = tx.Rollback(ctx) }()
	res, err := fn(tx)
	if err != nil {
		return nil, err
	}

	err = tx.Commit(ctx)
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Close closes the connection to the pool
func (db *DB) Close() {
	db.pool.Close()
}
