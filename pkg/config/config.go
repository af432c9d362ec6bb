package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = "AURA"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvDBDSN  = "AURA_DB_DSN"
	EnvDBHost = "AURA_DB_HOST"
	EnvDBUser = "AURA_DB_USER"
	EnvDBName = "AURA_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Stripe       StripeConfig
	Checkout     CheckoutConfig
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
	Env          string `envconfig:"AURA_APP_ENV" required:"true"`
	Port         string `envconfig:"AURA_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"AURA_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"AURA_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"AURA_DB_DSN"`
	Driver string `envconfig:"AURA_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"AURA_DB_HOST"`
	LegacyPort     int    `envconfig:"AURA_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"AURA_DB_USER"`
	LegacyPassword string `envconfig:"AURA_DB_PASSWORD"`
	LegacyName     string `envconfig:"AURA_DB_NAME"`
	LegacySSLMode  string `envconfig:"AURA_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"AURA_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"AURA_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"AURA_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"AURA_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"AURA_REDIS_URL"`
	Address      string        `envconfig:"AURA_REDIS_ADDR"`
	Password     string        `envconfig:"AURA_REDIS_PASSWORD"`
	DB           int           `envconfig:"AURA_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"AURA_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"AURA_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"AURA_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"AURA_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"AURA_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"AURA_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"AURA_JWT_ISSUER" default:"aura-commerce"`
	ExpirationMinutes int    `envconfig:"AURA_JWT_EXPIRATION_MINUTES" default:"60"`
}

type StripeConfig struct {
	APIKey        string        `envconfig:"AURA_STRIPE_API_KEY"`
	WebhookSecret string        `envconfig:"AURA_STRIPE_WEBHOOK_SECRET"`
	Env           string        `envconfig:"AURA_STRIPE_ENV" default:"test"`
	EventTTL      time.Duration `envconfig:"AURA_STRIPE_EVENT_TTL" default:"720h"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

type CheckoutConfig struct {
	Currency         string        `envconfig:"AURA_CHECKOUT_CURRENCY" default:"usd"`
	SettingsCacheTTL time.Duration `envconfig:"AURA_SETTINGS_CACHE_TTL" default:"1m"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"AURA_AUTO_MIGRATE" default:"false"`
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
