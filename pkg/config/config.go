package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = "LUMEN"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvDBDSN  = "LUMEN_DB_DSN"
	EnvDBHost = "LUMEN_DB_HOST"
	EnvDBUser = "LUMEN_DB_USER"
	EnvDBName = "LUMEN_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	RateLimit    RateLimitConfig
	FeatureFlags FeatureFlagsConfig
	Stripe       StripeConfig
	Apple        AppleConfig
	Webhooks     WebhookIdempotencyConfig
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
	Env          string `envconfig:"LUMEN_APP_ENV" required:"true"`
	Port         string `envconfig:"LUMEN_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"LUMEN_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"LUMEN_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"LUMEN_DB_DSN"`
	Driver string `envconfig:"LUMEN_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"LUMEN_DB_HOST"`
	LegacyPort     int    `envconfig:"LUMEN_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"LUMEN_DB_USER"`
	LegacyPassword string `envconfig:"LUMEN_DB_PASSWORD"`
	LegacyName     string `envconfig:"LUMEN_DB_NAME"`
	LegacySSLMode  string `envconfig:"LUMEN_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"LUMEN_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"LUMEN_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"LUMEN_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"LUMEN_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"LUMEN_REDIS_URL" required:"true"`
	Address      string        `envconfig:"LUMEN_REDIS_ADDR"`
	Password     string        `envconfig:"LUMEN_REDIS_PASSWORD"`
	DB           int           `envconfig:"LUMEN_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"LUMEN_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"LUMEN_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"LUMEN_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"LUMEN_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"LUMEN_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"LUMEN_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"LUMEN_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"LUMEN_JWT_EXPIRATION_MINUTES" default:"43200"`
}

type RateLimitConfig struct {
	ReceiptWindow    time.Duration `envconfig:"LUMEN_RATE_LIMIT_RECEIPT_WINDOW" default:"1m"`
	ReceiptUserLimit int           `envconfig:"LUMEN_RATE_LIMIT_RECEIPT_USER_LIMIT" default:"10"`
	ReceiptIPLimit   int           `envconfig:"LUMEN_RATE_LIMIT_RECEIPT_IP_LIMIT" default:"30"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"LUMEN_AUTO_MIGRATE" default:"false"`
}

type StripeConfig struct {
	APIKey        string `envconfig:"LUMEN_STRIPE_API_KEY"`
	WebhookSecret string `envconfig:"LUMEN_STRIPE_WEBHOOK_SECRET"`
	Env           string `envconfig:"LUMEN_STRIPE_ENV" default:"test"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

type AppleConfig struct {
	BundleID string `envconfig:"LUMEN_APPLE_BUNDLE_ID"`
}

type WebhookIdempotencyConfig struct {
	TTL time.Duration `envconfig:"LUMEN_WEBHOOK_IDEMPOTENCY_TTL" default:"168h"`
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
