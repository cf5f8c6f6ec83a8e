package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = "labops"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvDBDSN  = "LABOPS_DB_DSN"
	EnvDBHost = "LABOPS_DB_HOST"
	EnvDBUser = "LABOPS_DB_USER"
	EnvDBName = "LABOPS_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	Booking      BookingConfig
	Cron         CronConfig
	FeatureFlags FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"LABOPS_APP_ENV" required:"true"`
	Port         string `envconfig:"LABOPS_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"LABOPS_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"LABOPS_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"LABOPS_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"LABOPS_DB_DSN"`
	Driver string `envconfig:"LABOPS_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"LABOPS_DB_HOST"`
	LegacyPort     int    `envconfig:"LABOPS_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"LABOPS_DB_USER"`
	LegacyPassword string `envconfig:"LABOPS_DB_PASSWORD"`
	LegacyName     string `envconfig:"LABOPS_DB_NAME"`
	LegacySSLMode  string `envconfig:"LABOPS_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"LABOPS_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"LABOPS_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"LABOPS_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"LABOPS_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"LABOPS_REDIS_URL" required:"true"`
	Address      string        `envconfig:"LABOPS_REDIS_ADDR"`
	Password     string        `envconfig:"LABOPS_REDIS_PASSWORD"`
	DB           int           `envconfig:"LABOPS_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"LABOPS_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"LABOPS_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"LABOPS_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"LABOPS_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"LABOPS_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// BookingConfig controls booking lifecycle policy.
type BookingConfig struct {
	CancelCutoff time.Duration `envconfig:"LABOPS_BOOKING_CANCEL_CUTOFF" default:"24h"`
	MaxWindow    time.Duration `envconfig:"LABOPS_BOOKING_MAX_WINDOW" default:"720h"`
}

// CronConfig controls the cron worker cadence and lock.
type CronConfig struct {
	Interval   time.Duration `envconfig:"LABOPS_CRON_INTERVAL" default:"1h"`
	LockTTL    time.Duration `envconfig:"LABOPS_CRON_LOCK_TTL" default:"2h"`
	SweepBatch int           `envconfig:"LABOPS_SWEEP_BATCH_SIZE" default:"200"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"LABOPS_AUTO_MIGRATE" default:"false"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
