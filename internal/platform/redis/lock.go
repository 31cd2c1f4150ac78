package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/aiwa-app/aiwa/pkg/config"
	"github.com/aiwa-app/aiwa/pkg/tool"
)

// Locker grants a best-effort exclusive lease on key for ttl. ok is false when
// another holder owns the lease.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (release func(context.Context) error, ok bool, err error)
}

// releaseScript deletes the key only if it still holds our token.
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

type RedisLocker struct {
	client *goredis.Client
}

func NewRedisLocker(client *goredis.Client) *RedisLocker { return &RedisLocker{client: client} }

func (l *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, bool, error) {
	token := tool.GenerateUUIDV7()
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("redis lock %s: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}
	release := func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil && !errors.Is(err, goredis.Nil) {
			return fmt.Errorf("redis unlock %s: %w", key, err)
		}
		return nil
	}
	return release, true, nil
}

// LocalLocker serializes holders inside one process. Used when redis is not configured.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]time.Time
}

func NewLocalLocker() *LocalLocker { return &LocalLocker{held: make(map[string]time.Time)} }

func (l *LocalLocker) TryLock(_ context.Context, key string, ttl time.Duration) (func(context.Context) error, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if exp, ok := l.held[key]; ok && exp.After(now) {
		return nil, false, nil
	}
	exp := now.Add(ttl)
	l.held[key] = exp
	release := func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		if l.held[key].Equal(exp) {
			delete(l.held, key)
		}
		return nil
	}
	return release, true, nil
}

// NewLocker connects to redis when an address is configured.
func NewLocker(lc fx.Lifecycle, cfg *config.Config, log *zap.SugaredLogger) (Locker, error) {
	if cfg.Redis.Addr == "" {
		log.Infow("redis not configured; using in-process lock")
		return NewLocalLocker(), nil
	}
	client := goredis.NewClient(&goredis.Options{
		Addr:         cfg.Redis.Addr,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		MinIdleConns: 1,
	})
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			if err := client.Ping(pingCtx).Err(); err != nil {
				return fmt.Errorf("failed to connect to redis: %w", err)
			}
			log.Infow("connected to redis", "addr", cfg.Redis.Addr)
			return nil
		},
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	return NewRedisLocker(client), nil
}

var Module = fx.Options(
	fx.Provide(NewLocker),
)
