package contact

import (
	"context"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"

	"github.com/coldreach/coldreach/internal/config"
)

// Reserve: take the key if free, or refresh it if the caller already owns it.
const reserveScript = `
local cur = redis.call('GET', KEYS[1])
if cur == ARGV[1] then
  redis.call('PEXPIRE', KEYS[1], ARGV[2])
  return 1
end
if redis.call('SET', KEYS[1], ARGV[1], 'NX', 'PX', ARGV[2]) then
  return 1
end
return 0`

// Release: delete only when the caller still owns the key.
const releaseScript = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0`

// evaler is the slice of the go-redis client the reserver needs.
type evaler interface {
	Eval(ctx context.Context, script string, keys []string, args ...any) *goredis.Cmd
}

// RedisReserver shares reservations across processes through Redis.
type RedisReserver struct {
	rdb    evaler
	prefix string
	close  func() error
}

// NewRedisReserver connects to Redis and verifies it with a ping.
func NewRedisReserver(ctx context.Context, cfg config.RedisConfig) (*RedisReserver, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, eris.Wrapf(err, "contact: redis ping %s", cfg.Addr)
	}

	return &RedisReserver{rdb: rdb, prefix: cfg.Prefix, close: rdb.Close}, nil
}

func (r *RedisReserver) key(companyURL, email string) string {
	return r.prefix + ":" + reservationKey(companyURL, email)
}

func (r *RedisReserver) Reserve(ctx context.Context, companyURL, email, holder string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		return false, eris.New("contact: reservation ttl must be positive")
	}
	n, err := r.rdb.Eval(ctx, reserveScript, []string{r.key(companyURL, email)}, holder, ttl.Milliseconds()).Int()
	if err != nil {
		return false, eris.Wrap(err, "contact: redis reserve")
	}
	return n == 1, nil
}

func (r *RedisReserver) Release(ctx context.Context, companyURL, email, holder string) error {
	if err := r.rdb.Eval(ctx, releaseScript, []string{r.key(companyURL, email)}, holder).Err(); err != nil {
		return eris.Wrap(err, "contact: redis release")
	}
	return nil
}

// Close closes the underlying client.
func (r *RedisReserver) Close() error {
	if r.close == nil {
		return nil
	}
	return r.close()
}

// NewReserver returns a RedisReserver when Redis is configured, otherwise a
// MemoryReserver.
func NewReserver(ctx context.Context, cfg config.RedisConfig) (Reserver, func() error, error) {
	if cfg.Addr == "" {
		return NewMemoryReserver(), func() error { return nil }, nil
	}
	r, err := NewRedisReserver(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return r, r.Close, nil
}
