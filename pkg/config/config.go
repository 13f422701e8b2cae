package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = ""

	AppEnvDev  = "dev"
	AppEnvProd = "production"

	EnvAppEnv             = "KANTIN_APP_ENV"
	EnvPort               = "KANTIN_APP_PORT"
	EnvDBDSN              = "KANTIN_DB_DSN"
	EnvRedisURL           = "KANTIN_REDIS_URL"
	EnvJWTSecret          = "KANTIN_JWT_SECRET"
	EnvJWTIssuer          = "KANTIN_JWT_ISSUER"
	EnvJWTExpMins         = "KANTIN_JWT_EXPIRATION_MINUTES"
	EnvMidtransServerKey  = "KANTIN_MIDTRANS_SERVER_KEY"
	EnvOrderExpiryWindow  = "KANTIN_ORDER_EXPIRY_WINDOW"
	EnvSweepInterval      = "KANTIN_SWEEP_INTERVAL"
	EnvMinWithdrawalCents = "KANTIN_SETTLEMENT_MIN_WITHDRAWAL_CENTS"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Midtrans     MidtransConfig
	Orders       OrdersConfig
	Settlements  SettlementsConfig
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
	Env          string `envconfig:"KANTIN_APP_ENV" required:"true"`
	Port         string `envconfig:"KANTIN_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"KANTIN_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"KANTIN_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd) || strings.EqualFold(a.Env, "prod")
}

type ServiceConfig struct {
	Kind string `envconfig:"KANTIN_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"KANTIN_DB_DSN"`
	Driver string `envconfig:"KANTIN_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"KANTIN_DB_HOST"`
	Port     int    `envconfig:"KANTIN_DB_PORT" default:"5432"`
	User     string `envconfig:"KANTIN_DB_USER"`
	Password string `envconfig:"KANTIN_DB_PASSWORD"`
	Name     string `envconfig:"KANTIN_DB_NAME"`
	SSLMode  string `envconfig:"KANTIN_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"KANTIN_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"KANTIN_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"KANTIN_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"KANTIN_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

func (d *DBConfig) ensureDSN() error {
	if d.DSN != "" {
		return nil
	}
	if d.Host == "" || d.User == "" || d.Name == "" {
		return fmt.Errorf("either %s or KANTIN_DB_HOST/USER/NAME must be set", EnvDBDSN)
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.Name,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	d.DSN = u.String()
	return nil
}

type RedisConfig struct {
	URL          string        `envconfig:"KANTIN_REDIS_URL" required:"true"`
	Address      string        `envconfig:"KANTIN_REDIS_ADDR"`
	Password     string        `envconfig:"KANTIN_REDIS_PASSWORD"`
	DB           int           `envconfig:"KANTIN_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"KANTIN_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"KANTIN_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"KANTIN_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"KANTIN_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"KANTIN_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"KANTIN_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"KANTIN_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"KANTIN_JWT_EXPIRATION_MINUTES" required:"true"`
}

// Expiration returns the access token lifetime.
func (j JWTConfig) Expiration() time.Duration {
	if j.ExpirationMinutes <= 0 {
		return 0
	}
	return time.Duration(j.ExpirationMinutes) * time.Minute
}

type MidtransConfig struct {
	ServerKey   string        `envconfig:"KANTIN_MIDTRANS_SERVER_KEY" required:"true"`
	BaseURL     string        `envconfig:"KANTIN_MIDTRANS_BASE_URL" default:"https://app.sandbox.midtrans.com"`
	Environment string        `envconfig:"KANTIN_MIDTRANS_ENV" default:"sandbox"`
	Timeout     time.Duration `envconfig:"KANTIN_MIDTRANS_TIMEOUT" default:"15s"`
}

type OrdersConfig struct {
	// ExpiryWindow is how long a gateway order may sit in pending before the
	// sweeper cancels it.
	ExpiryWindow  time.Duration `envconfig:"KANTIN_ORDER_EXPIRY_WINDOW" default:"1h"`
	SweepInterval time.Duration `envconfig:"KANTIN_SWEEP_INTERVAL" default:"5m"`
}

type SettlementsConfig struct {
	MinWithdrawalCents int64 `envconfig:"KANTIN_SETTLEMENT_MIN_WITHDRAWAL_CENTS" default:"1000000"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"KANTIN_FEATURE_AUTO_MIGRATE" default:"false"`
}
