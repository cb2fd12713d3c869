// Package settings stores the rate synchronisation preferences: when rates
// were last synced and which currency they are synced for.
package settings

import (
	"context"
	"time"
)

const (
	DefaultInterval     = 24 * time.Hour
	DefaultBaseCurrency = "RUB"
)

type Provider interface {
	// ShouldSyncNow reports whether at least the sync interval has passed since
	// the last sync. A provider that never synced is always due.
	ShouldSyncNow(ctx context.Context) (bool, error)
	SetLastSyncTime(ctx context.Context, t time.Time) error
	// GetLastSyncTime returns the zero time when no sync happened yet.
	GetLastSyncTime(ctx context.Context) (time.Time, error)
	BaseCurrencyCode(ctx context.Context) (string, error)
	SetBaseCurrencyCode(ctx context.Context, code string) error
}

// Options configure either provider.
type Options struct {
	Interval     time.Duration
	BaseCurrency string
	// Now defaults to time.Now.
	Now func() time.Time
}

func (o Options) withDefaults() Options {
	if o.Interval <= 0 {
		o.Interval = DefaultInterval
	}
	if o.BaseCurrency == "" {
		o.BaseCurrency = DefaultBaseCurrency
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

func isStale(now, last time.Time, interval time.Duration) bool {
	if last.IsZero() {
		return true
	}
	return now.Sub(last) >= interval
}
