package utils

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
)

// ApplicationName tags every session so pg_stat_activity shows which process holds a connection.
const ApplicationName = "carecall"

// PostgresPoolConfig sizes the shared pool. Zero fields take the defaults below.
type PostgresPoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	PingTimeout     time.Duration
}

// Workers, webhooks and the tick share one pool per process.
var defaultPool = PostgresPoolConfig{
	MaxOpenConns:    20,
	MaxIdleConns:    10,
	ConnMaxLifetime: 30 * time.Minute,
	ConnMaxIdleTime: 5 * time.Minute,
	PingTimeout:     5 * time.Second,
}

func orDefault[T int | time.Duration](v, def T) T {
	if v <= 0 {
		return def
	}
	return v
}

func (c PostgresPoolConfig) resolved() PostgresPoolConfig {
	c.MaxOpenConns = orDefault(c.MaxOpenConns, defaultPool.MaxOpenConns)
	c.MaxIdleConns = min(orDefault(c.MaxIdleConns, defaultPool.MaxIdleConns), c.MaxOpenConns)
	c.ConnMaxLifetime = orDefault(c.ConnMaxLifetime, defaultPool.ConnMaxLifetime)
	c.ConnMaxIdleTime = orDefault(c.ConnMaxIdleTime, defaultPool.ConnMaxIdleTime)
	c.PingTimeout = orDefault(c.PingTimeout, defaultPool.PingTimeout)
	return c
}

// OpenPostgres parses dsn with pgx, opens a database/sql pool over it and pings once.
// dsn carries credentials and is never included in returned errors.
func OpenPostgres(ctx context.Context, dsn string, pool PostgresPoolConfig) (*sql.DB, error) {
	connCfg, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, errors.New("postgres: invalid connection string")
	}
	if connCfg.RuntimeParams["application_name"] == "" {
		connCfg.RuntimeParams["application_name"] = ApplicationName
	}

	pool = pool.resolved()
	db := stdlib.OpenDB(*connCfg)
	db.SetMaxOpenConns(pool.MaxOpenConns)
	db.SetMaxIdleConns(pool.MaxIdleConns)
	db.SetConnMaxLifetime(pool.ConnMaxLifetime)
	db.SetConnMaxIdleTime(pool.ConnMaxIdleTime)

	if err := HealthCheck(ctx, db, pool.PingTimeout); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres %s:%d/%s: %w", connCfg.Host, connCfg.Port, connCfg.Database, err)
	}
	return db, nil
}

// HealthCheck reports whether the pool can reach the server within timeout.
func HealthCheck(ctx context.Context, db *sql.DB, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("db ping failed: %w", err)
	}
	return nil
}

// TxFunc is the unit of work passed to WithTx.
type TxFunc func(ctx context.Context, tx *sql.Tx) error

// WithTx commits when fn returns nil and rolls back otherwise, including on panic.
func WithTx(ctx context.Context, db *sql.DB, opts *sql.TxOptions, fn TxFunc) error {
	tx, err := db.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	committed = true
	return nil
}
