package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"
)

type PoolOptions struct {
	MaxConns int32
	MinConns int32
}

func Open(ctx context.Context, databaseURL string, opts PoolOptions) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if opts.MaxConns > 0 {
		poolConfig.MaxConns = opts.MaxConns
	}
	if opts.MinConns >= 0 && opts.MinConns <= poolConfig.MaxConns {
		poolConfig.MinConns = opts.MinConns
	}
	poolConfig.MaxConnIdleTime = 5 * time.Minute
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return pool, nil
}

// Querier is the statement surface shared by pooled connections and transactions.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Gateway hands out connections pinned to a single schema. Every call acquires a
// connection, sets search_path, runs the callback and releases the connection.
type Gateway struct {
	pool      *pgxpool.Pool
	schema    string
	pinSchema string
}

func NewGateway(pool *pgxpool.Pool, schema string) (*Gateway, error) {
	if schema == "" {
		return nil, errors.New("schema is required")
	}
	return &Gateway{
		pool:      pool,
		schema:    schema,
		pinSchema: "SET search_path TO " + pgx.Identifier{schema}.Sanitize(),
	}, nil
}

func (g *Gateway) Schema() string {
	return g.schema
}

func (g *Gateway) Close() {
	g.pool.Close()
}

func (g *Gateway) acquire(ctx context.Context) (*pgxpool.Conn, error) {
	conn, err := g.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	if _, err := conn.Exec(ctx, g.pinSchema); err != nil {
		conn.Release()
		return nil, fmt.Errorf("pin schema %s: %w", g.schema, err)
	}
	return conn, nil
}

// Run executes fn on a pinned connection outside of a transaction.
func (g *Gateway) Run(ctx context.Context, fn func(context.Context, Querier) error) error {
	conn, err := g.acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()
	return fn(ctx, conn)
}

// InTx executes fn inside a read-committed transaction on a pinned connection.
// The transaction is rolled back before any error (or panic) leaves InTx.
func (g *Gateway) InTx(ctx context.Context, fn func(context.Context, pgx.Tx) error) error {
	conn, err := g.acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	tx, err := conn.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			rollback(ctx, tx)
			panic(p)
		}
	}()

	if err := fn(ctx, tx); err != nil {
		rollback(ctx, tx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func rollback(ctx context.Context, tx pgx.Tx) {
	// The request context may already be cancelled; the rollback still has to reach the server.
	rbCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := tx.Rollback(rbCtx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		log.WithError(err).Warn("store: rollback failed")
	}
}

func (g *Gateway) Ping(ctx context.Context) error {
	return g.Run(ctx, func(ctx context.Context, q Querier) error {
		var one int
		return q.QueryRow(ctx, `SELECT 1`).Scan(&one)
	})
}

// CurrentSchema returns the schema a pinned connection resolves to.
func (g *Gateway) CurrentSchema(ctx context.Context) (string, error) {
	var schema *string
	err := g.Run(ctx, func(ctx context.Context, q Querier) error {
		return q.QueryRow(ctx, `SELECT current_schema()`).Scan(&schema)
	})
	if err != nil {
		return "", fmt.Errorf("read current schema: %w", err)
	}
	if schema == nil {
		return "", nil
	}
	return *schema, nil
}
