package dbx

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/subkeeper/internal/common"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// PoolConfig bounds the shared connection pool.
type PoolConfig struct {
	MaxOpenConns   int
	MaxIdleConns   int
	AcquireTimeout time.Duration
}

// Pool is the process-wide store client. It is created once at startup and
// passed to every service; nothing reaches for it through package state.
type Pool struct {
	db             *sql.DB
	acquireTimeout time.Duration
}

// NewPool applies cfg to db and wraps it.
func NewPool(db *sql.DB, cfg PoolConfig) *Pool {
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	return &Pool{db: db, acquireTimeout: cfg.AcquireTimeout}
}

// Open opens a pgx-backed database handle and wraps it in a Pool.
func Open(dsn string, cfg PoolConfig) (*Pool, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return NewPool(db, cfg), nil
}

// DB exposes the underlying handle for migrations and health checks.
func (p *Pool) DB() *sql.DB { return p.db }

// Acquire takes a dedicated connection from the pool, waiting at most the
// configured acquire timeout. The caller must Close the connection.
// Only the wait is bounded; ctx keeps governing the work done on the connection.
func (p *Pool) Acquire(ctx context.Context) (*sql.Conn, error) {
	actx := ctx
	if p.acquireTimeout > 0 {
		var cancel context.CancelFunc
		actx, cancel = context.WithTimeout(ctx, p.acquireTimeout)
		defer cancel()
	}

	conn, err := p.db.Conn(actx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, common.ErrorPoolTimeout
		}
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	return conn, nil
}

// Ping checks that a connection can be acquired and used.
func (p *Pool) Ping(ctx context.Context) error {
	conn, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()
	return conn.PingContext(ctx)
}

// Close releases every pooled connection.
func (p *Pool) Close() error {
	return p.db.Close()
}

// Runner scopes a store handle to the duration of a function.
type Runner interface {
	// Run hands fn a dedicated connection.
	Run(ctx context.Context, fn func(ctx context.Context, db DBTX) error) error
	// RunTx hands fn a transaction on a dedicated connection.
	RunTx(ctx context.Context, fn func(ctx context.Context, tx DBTX) error) error
}

// Run acquires a connection, runs fn on it and releases it.
func (p *Pool) Run(ctx context.Context, fn func(ctx context.Context, db DBTX) error) error {
	conn, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()
	return fn(ctx, conn)
}

// RunTx acquires a connection and runs fn inside WithTx on it.
func (p *Pool) RunTx(ctx context.Context, fn func(ctx context.Context, tx DBTX) error) error {
	conn, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()
	return WithTx(ctx, conn, nil, fn)
}
