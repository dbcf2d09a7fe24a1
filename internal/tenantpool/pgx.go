package tenantpool

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DB is the production Conn: a pgx pool for one tenant schema. Query methods
// are promoted from the embedded pool; Close adapts pgx's void close to the
// pool's error-tolerant contract.
type DB struct {
	*pgxpool.Pool
}

func (d *DB) Close() error {
	d.Pool.Close()
	return nil
}

// DialPgx opens a pgx pool against a tenant datasource URL and pings it so a
// bad URL or an unreachable server fails the dial rather than the first query.
func DialPgx(ctx context.Context, url string) (Conn, error) {
	config, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, err
	}
	config.MaxConns = 20
	config.MinConns = 5
	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &DB{Pool: pool}, nil
}
