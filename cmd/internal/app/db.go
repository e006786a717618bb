package app

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// dbPingTimeout bounds the connectivity probe during startup and readiness.
const dbPingTimeout = 3 * time.Second

// NewDBPool builds the pgx pool backing the room directory and validates
// connectivity before returning. It never creates or migrates tables: the
// rooms and room_members relations are owned by the deployment's migration
// step, and the store fails loudly at query time when they are missing.
func NewDBPool(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	pcfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	if cfg.DBMaxConns > 0 {
		pcfg.MaxConns = cfg.DBMaxConns
	}
	if cfg.DBMinConns >= 0 {
		pcfg.MinConns = cfg.DBMinConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, err
	}

	if err := PingDB(ctx, pool, dbPingTimeout); err != nil {
		pool.Close()
		return nil, err
	}

	return pool, nil
}

// PingDB acquires and releases one connection within timeout.
// Used at startup and by the readiness endpoint.
func PingDB(parent context.Context, pool *pgxpool.Pool, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return err
	}
	conn.Release()
	return nil
}
