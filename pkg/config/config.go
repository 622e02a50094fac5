package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const EnvPrefix = ""

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

type Config struct {
	App      AppConfig
	DB       DBConfig
	Redis    RedisConfig
	JWT      JWTConfig
	Lock     LockConfig
	Commerce CommerceConfig
	GCP      GCPConfig
	PubSub   PubSubConfig
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
	Env          string `envconfig:"LOYALTY_APP_ENV" required:"true"`
	Port         string `envconfig:"LOYALTY_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"LOYALTY_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"LOYALTY_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN string `envconfig:"LOYALTY_DB_DSN"`

	Host     string `envconfig:"LOYALTY_DB_HOST"`
	Port     int    `envconfig:"LOYALTY_DB_PORT" default:"5432"`
	User     string `envconfig:"LOYALTY_DB_USER"`
	Password string `envconfig:"LOYALTY_DB_PASSWORD"`
	Name     string `envconfig:"LOYALTY_DB_NAME"`
	SSLMode  string `envconfig:"LOYALTY_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"LOYALTY_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"LOYALTY_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"LOYALTY_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"LOYALTY_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	AutoMigrate bool `envconfig:"LOYALTY_DB_AUTO_MIGRATE" default:"false"`
}

func (d *DBConfig) ensureDSN() error {
	if d.DSN != "" {
		return nil
	}
	if d.Host == "" || d.User == "" || d.Name == "" {
		return fmt.Errorf("either LOYALTY_DB_DSN or host/user/name parts are required")
	}
	d.DSN = fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, url.QueryEscape(d.Password), d.Name, d.SSLMode,
	)
	return nil
}

type RedisConfig struct {
	URL          string        `envconfig:"LOYALTY_REDIS_URL" required:"true"`
	Address      string        `envconfig:"LOYALTY_REDIS_ADDR"`
	Password     string        `envconfig:"LOYALTY_REDIS_PASSWORD"`
	DB           int           `envconfig:"LOYALTY_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"LOYALTY_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"LOYALTY_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"LOYALTY_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"LOYALTY_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"LOYALTY_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret string `envconfig:"LOYALTY_JWT_SECRET" required:"true"`
	Issuer string `envconfig:"LOYALTY_JWT_ISSUER" required:"true"`
}

// LockConfig bounds the per-cart redemption lock. The acquire timeout keeps a
// busy cart from blocking the request for long; the TTL keeps a crashed holder
// from blocking the cart forever.
type LockConfig struct {
	AcquireTimeout time.Duration `envconfig:"LOYALTY_LOCK_ACQUIRE_TIMEOUT" default:"2s"`
	TTL            time.Duration `envconfig:"LOYALTY_LOCK_TTL" default:"10s"`
}

// CommerceConfig points at the commerce platform that owns carts, orders and
// promotions.
type CommerceConfig struct {
	BaseURL string        `envconfig:"LOYALTY_COMMERCE_BASE_URL" required:"true"`
	APIKey  string        `envconfig:"LOYALTY_COMMERCE_API_KEY" required:"true"`
	Timeout time.Duration `envconfig:"LOYALTY_COMMERCE_TIMEOUT" default:"10s"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"LOYALTY_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	OrdersSubscription string `envconfig:"LOYALTY_PUBSUB_ORDERS_SUBSCRIPTION" default:"loyalty-order-events"`
	MaxOutstanding     int    `envconfig:"LOYALTY_PUBSUB_MAX_OUTSTANDING" default:"16"`

	IdempotencyTTL time.Duration `envconfig:"LOYALTY_PUBSUB_IDEMPOTENCY_TTL" default:"72h"`
}
