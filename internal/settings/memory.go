package settings

import (
	"context"
	"sync"
	"time"

	"github.com/xpense/backend/internal/models"
)

// MemoryProvider keeps the settings for the life of the process.
type MemoryProvider struct {
	opts Options

	mu           sync.RWMutex
	lastSync     time.Time
	baseCurrency string
}

func NewMemoryProvider(opts Options) *MemoryProvider {
	opts = opts.withDefaults()
	return &MemoryProvider{
		opts:         opts,
		baseCurrency: models.NormalizeCurrency(opts.BaseCurrency),
	}
}

func (p *MemoryProvider) ShouldSyncNow(ctx context.Context) (bool, error) {
	last, err := p.GetLastSyncTime(ctx)
	if err != nil {
		return false, err
	}
	return isStale(p.opts.Now(), last, p.opts.Interval), nil
}

func (p *MemoryProvider) SetLastSyncTime(ctx context.Context, t time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	p.lastSync = t
	p.mu.Unlock()
	return nil
}

func (p *MemoryProvider) GetLastSyncTime(ctx context.Context) (time.Time, error) {
	if err := ctx.Err(); err != nil {
		return time.Time{}, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastSync, nil
}

func (p *MemoryProvider) BaseCurrencyCode(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.baseCurrency, nil
}

func (p *MemoryProvider) SetBaseCurrencyCode(ctx context.Context, code string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	p.baseCurrency = models.NormalizeCurrency(code)
	p.mu.Unlock()
	return nil
}
