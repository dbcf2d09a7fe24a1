package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"

	_ "github.com/lib/pq"

	"github.com/caremesh-solutions/caremesh-backend/internal/crypto"
)

// RedisClient is the subset of redis.Client the repository uses, kept as an
// interface so tests can swap it out.
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	SetEx(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Close() error
}

// TenantRepository is the tenant directory: it resolves tenant codes to
// metadata and datasource URLs out of the central registry database, with a
// redis read-through cache on code lookups.
type TenantRepository struct {
	db     *sql.DB
	redis  RedisClient
	cipher *crypto.Cipher
}

const tenantCacheTTL = 1 * time.Hour

// NewTenantRepository connects to the registry database and redis.
func NewTenantRepository(dsn, redisAddr string, cipher *crypto.Cipher) (*TenantRepository, error) {
	config, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	db := stdlib.OpenDB(*config)
	if err := db.Ping(); err != nil {
		return nil, err
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     redisAddr,
		Password: "",
		DB:       0,
	})

	return &TenantRepository{db: db, redis: rdb, cipher: cipher}, nil
}

// Close closes the registry database and redis connections.
func (r *TenantRepository) Close() error {
	if err := r.db.Close(); err != nil {
		r.redis.Close()
		return err
	}
	return r.redis.Close()
}
