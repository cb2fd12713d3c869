package settings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/xpense/backend/internal/models"
)

const (
	lastSyncKey     = "xpense:settings:last_sync_ms"
	baseCurrencyKey = "xpense:settings:base_currency"
)

// RedisProvider keeps the settings in Redis so every process sees the same
// last-sync time.
type RedisProvider struct {
	rdb  redis.Cmdable
	opts Options
}

func NewRedisProvider(rdb redis.Cmdable, opts Options) *RedisProvider {
	return &RedisProvider{rdb: rdb, opts: opts.withDefaults()}
}

func (p *RedisProvider) ShouldSyncNow(ctx context.Context) (bool, error) {
	last, err := p.GetLastSyncTime(ctx)
	if err != nil {
		return false, err
	}
	return isStale(p.opts.Now(), last, p.opts.Interval), nil
}

func (p *RedisProvider) SetLastSyncTime(ctx context.Context, t time.Time) error {
	if err := p.rdb.Set(ctx, lastSyncKey, t.UnixMilli(), 0).Err(); err != nil {
		return fmt.Errorf("store last sync time: %w", err)
	}
	return nil
}

func (p *RedisProvider) GetLastSyncTime(ctx context.Context) (time.Time, error) {
	ms, err := p.rdb.Get(ctx, lastSyncKey).Int64()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("load last sync time: %w", err)
	}
	return time.UnixMilli(ms), nil
}

func (p *RedisProvider) BaseCurrencyCode(ctx context.Context) (string, error) {
	code, err := p.rdb.Get(ctx, baseCurrencyKey).Result()
	if errors.Is(err, redis.Nil) {
		return models.NormalizeCurrency(p.opts.BaseCurrency), nil
	}
	if err != nil {
		return "", fmt.Errorf("load base currency: %w", err)
	}
	return code, nil
}

func (p *RedisProvider) SetBaseCurrencyCode(ctx context.Context, code string) error {
	if err := p.rdb.Set(ctx, baseCurrencyKey, models.NormalizeCurrency(code), 0).Err(); err != nil {
		return fmt.Errorf("store base currency: %w", err)
	}
	return nil
}
