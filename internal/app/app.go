// Package app wires configuration, storage and services into one value
// shared by the server and the CLI.
package app

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/xpense/backend/internal/audit"
	"github.com/xpense/backend/internal/config"
	"github.com/xpense/backend/internal/database"
	"github.com/xpense/backend/internal/exchangeapi"
	"github.com/xpense/backend/internal/handlers"
	"github.com/xpense/backend/internal/repository"
	"github.com/xpense/backend/internal/services"
	"github.com/xpense/backend/internal/settings"
)

type App struct {
	Config   *config.Config
	Store    repository.Store
	Services handlers.Services

	log   logrus.FieldLogger
	db    *sql.DB
	redis *redis.Client
}

// New opens the configured store, migrating Postgres when migrate is set,
// and builds every service. Without Redis the sync settings live in memory.
func New(ctx context.Context, cfg *config.Config, log logrus.FieldLogger, migrate bool) (*App, error) {
	a := &App{Config: cfg, log: log}

	switch cfg.StorageType {
	case config.StorageTypeMemory:
		a.Store = repository.NewMemoryStore()
	case config.StorageTypePostgres:
		db, err := database.InitDB(ctx)
		if err != nil {
			return nil, err
		}
		a.db = db
		if migrate {
			if _, err := a.Migrate(ctx); err != nil {
				db.Close()
				return nil, err
			}
		}
		a.Store = repository.NewPostgresStore(db)
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.StorageType)
	}

	opts := settings.Options{
		Interval:     cfg.Sync.Interval,
		BaseCurrency: cfg.Sync.BaseCurrency,
	}
	var provider settings.Provider
	if cfg.RedisEnabled {
		a.redis = database.InitRedis(ctx)
	}
	if a.redis != nil {
		provider = settings.NewRedisProvider(a.redis, opts)
	} else {
		provider = settings.NewMemoryProvider(opts)
	}

	auditLogger := audit.NewLogger(log)
	rates := services.NewRateCache(a.Store)
	client := exchangeapi.NewClient(cfg.Exchange.BaseURL, cfg.Exchange.APIKey, cfg.Exchange.Timeout, log)

	a.Services = handlers.Services{
		Accounts:   services.NewAccountService(a.Store, auditLogger, log),
		Expenses:   services.NewExpenseService(a.Store, auditLogger, log),
		Categories: services.NewCategoryService(a.Store, log),
		Debts:      services.NewDebtService(a.Store, log),
		Exchange:   services.NewExchangeService(rates, client, provider, log),
		Rates:      rates,
	}

	log.WithFields(logrus.Fields{
		"storage":  a.Store.StorageType(),
		"settings": fmt.Sprintf("%T", provider),
	}).Info("Application initialized")
	return a, nil
}

// Migrate applies pending schema migrations. It is a no-op for the memory
// store.
func (a *App) Migrate(ctx context.Context) ([]string, error) {
	if a.db == nil {
		return nil, nil
	}
	applied, err := database.Migrate(ctx, a.db)
	if err != nil {
		return nil, err
	}
	for _, version := range applied {
		a.log.WithField("version", version).Info("Applied migration")
	}
	return applied, nil
}

func (a *App) Close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.WithError(err).Warn("Failed to close Redis client")
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.WithError(err).Warn("Failed to close database")
		}
	}
}
