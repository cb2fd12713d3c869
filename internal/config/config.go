package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	StorageTypePostgres = "postgres"
	StorageTypeMemory   = "memory"
)

// envBindings maps every configuration key to its environment variable.
var envBindings = map[string]string{
	"app.env":   "APP_ENV",
	"log.level": "LOG_LEVEL",
	"log.dir":   "LOG_DIR",

	"server.port":  "SERVER_PORT",
	"storage.type": "STORAGE_TYPE",

	"database.host":              "DATABASE_HOST",
	"database.port":              "DATABASE_PORT",
	"database.user":              "DATABASE_USER",
	"database.password":          "DATABASE_PASSWORD",
	"database.name":              "DATABASE_NAME",
	"database.ssl_mode":          "DATABASE_SSL_MODE",
	"database.max_open_conns":    "DATABASE_MAX_OPEN_CONNS",
	"database.max_idle_conns":    "DATABASE_MAX_IDLE_CONNS",
	"database.conn_max_lifetime": "DATABASE_CONN_MAX_LIFETIME",
	"database.connect_timeout":   "DATABASE_CONNECT_TIMEOUT",

	"redis.enabled":  "REDIS_ENABLED",
	"redis.host":     "REDIS_HOST",
	"redis.port":     "REDIS_PORT",
	"redis.password": "REDIS_PASSWORD",
	"redis.db":       "REDIS_DB",

	"exchange.base_url": "EXCHANGE_BASE_URL",
	"exchange.api_key":  "EXCHANGE_API_KEY",
	"exchange.timeout":  "EXCHANGE_TIMEOUT",

	"sync.interval":      "SYNC_INTERVAL",
	"sync.base_currency": "SYNC_BASE_CURRENCY",
	"sync.worker_period": "SYNC_WORKER_PERIOD",

	"jwt.secret_key": "JWT_SECRET_KEY",
}

// Config is the application configuration outside of the database and
// Redis connection settings, which their packages read on their own.
type Config struct {
	Env         string
	LogLevel    string
	LogDir      string
	ServerPort  string
	StorageType string
	// RedisEnabled selects the Redis settings provider when Redis answers.
	RedisEnabled bool
	JWTSecret    string
	Exchange     ExchangeConfig
	Sync         SyncConfig
}

type ExchangeConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

type SyncConfig struct {
	Interval     time.Duration
	BaseCurrency string
	WorkerPeriod time.Duration
}

// Init points viper at configFile (usually .env), binds the environment and
// reads the file. A missing file is not an error.
func Init(configFile string) error {
	if configFile != "" {
		viper.SetConfigFile(configFile)
	}
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	for key, env := range envBindings {
		if err := viper.BindEnv(key, env); err != nil {
			return err
		}
	}
	SetDefaults()

	if configFile == "" {
		return nil
	}
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}

	// A dotenv file yields flat keys such as database_host. They rank below
	// the environment and above every default, including the ones the
	// database package registers later.
	for key, env := range envBindings {
		if _, inEnv := os.LookupEnv(env); inEnv {
			continue
		}
		if flat := strings.ToLower(env); viper.InConfig(flat) {
			viper.Set(key, viper.Get(flat))
		}
	}
	return nil
}

// SetDefaults registers the default of every key that has one.
func SetDefaults() {
	viper.SetDefault("app.env", "development")
	viper.SetDefault("log.level", "info")
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("storage.type", StorageTypePostgres)
	viper.SetDefault("redis.enabled", true)

	viper.SetDefault("exchange.base_url", "https://api.apilayer.com/exchangerates_data")
	viper.SetDefault("exchange.timeout", 15*time.Second)

	viper.SetDefault("sync.interval", 24*time.Hour)
	viper.SetDefault("sync.base_currency", "RUB")
	viper.SetDefault("sync.worker_period", time.Hour)
}

// Load snapshots the current viper state.
func Load() *Config {
	return &Config{
		Env:          strings.ToLower(viper.GetString("app.env")),
		LogLevel:     viper.GetString("log.level"),
		LogDir:       viper.GetString("log.dir"),
		ServerPort:   viper.GetString("server.port"),
		StorageType:  strings.ToLower(viper.GetString("storage.type")),
		RedisEnabled: viper.GetBool("redis.enabled"),
		JWTSecret:    viper.GetString("jwt.secret_key"),
		Exchange: ExchangeConfig{
			BaseURL: strings.TrimRight(viper.GetString("exchange.base_url"), "/"),
			APIKey:  viper.GetString("exchange.api_key"),
			Timeout: viper.GetDuration("exchange.timeout"),
		},
		Sync: SyncConfig{
			Interval:     viper.GetDuration("sync.interval"),
			BaseCurrency: strings.ToUpper(viper.GetString("sync.base_currency")),
			WorkerPeriod: viper.GetDuration("sync.worker_period"),
		},
	}
}
