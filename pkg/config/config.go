package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	// EnvPrefix scopes every environment variable consumed by the service.
	EnvPrefix = ""

	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

type Config struct {
	App           AppConfig
	DB            DBConfig
	Redis         RedisConfig
	JWT           JWTConfig
	Password      PasswordConfig
	AuthRateLimit AuthRateLimitConfig
	FeatureFlags  FeatureFlagsConfig
	Stripe        StripeConfig
	Mailer        MailerConfig
	Donations     DonationsConfig
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
	Env          string `envconfig:"GRACECHAPEL_APP_ENV" required:"true"`
	Port         string `envconfig:"GRACECHAPEL_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"GRACECHAPEL_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"GRACECHAPEL_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"GRACECHAPEL_DB_DSN"`
	Driver string `envconfig:"GRACECHAPEL_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"GRACECHAPEL_DB_HOST"`
	LegacyPort     int    `envconfig:"GRACECHAPEL_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"GRACECHAPEL_DB_USER"`
	LegacyPassword string `envconfig:"GRACECHAPEL_DB_PASSWORD"`
	LegacyName     string `envconfig:"GRACECHAPEL_DB_NAME"`
	LegacySSLMode  string `envconfig:"GRACECHAPEL_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"GRACECHAPEL_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"GRACECHAPEL_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"GRACECHAPEL_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"GRACECHAPEL_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

func (d *DBConfig) ensureDSN() error {
	if strings.TrimSpace(d.DSN) != "" {
		return nil
	}
	if d.LegacyHost == "" || d.LegacyUser == "" || d.LegacyName == "" {
		return fmt.Errorf("database DSN or host/user/name settings are required")
	}
	u := url.URL{
		Scheme: "postgres",
		Host:   fmt.Sprintf("%s:%d", d.LegacyHost, d.LegacyPort),
		Path:   d.LegacyName,
	}
	if d.LegacyPassword != "" {
		u.User = url.UserPassword(d.LegacyUser, d.LegacyPassword)
	} else {
		u.User = url.User(d.LegacyUser)
	}
	q := u.Query()
	q.Set("sslmode", d.LegacySSLMode)
	u.RawQuery = q.Encode()
	d.DSN = u.String()
	return nil
}

type RedisConfig struct {
	URL          string        `envconfig:"GRACECHAPEL_REDIS_URL" required:"true"`
	Address      string        `envconfig:"GRACECHAPEL_REDIS_ADDR"`
	Password     string        `envconfig:"GRACECHAPEL_REDIS_PASSWORD"`
	DB           int           `envconfig:"GRACECHAPEL_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"GRACECHAPEL_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"GRACECHAPEL_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"GRACECHAPEL_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"GRACECHAPEL_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"GRACECHAPEL_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret                 string `envconfig:"GRACECHAPEL_JWT_SECRET" required:"true"`
	Issuer                 string `envconfig:"GRACECHAPEL_JWT_ISSUER" required:"true"`
	ExpirationMinutes      int    `envconfig:"GRACECHAPEL_JWT_EXPIRATION_MINUTES" required:"true"`
	RefreshTokenTTLMinutes int    `envconfig:"GRACECHAPEL_REFRESH_TOKEN_TTL_MINUTES" default:"43200"`
}

// RefreshTokenTTL returns the refresh token TTL configured in minutes.
func (j JWTConfig) RefreshTokenTTL() time.Duration {
	if j.RefreshTokenTTLMinutes <= 0 {
		return 0
	}
	return time.Duration(j.RefreshTokenTTLMinutes) * time.Minute
}

type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"GRACECHAPEL_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"GRACECHAPEL_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"GRACECHAPEL_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"GRACECHAPEL_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"GRACECHAPEL_ARGON_KEY_LEN" default:"32"`
}

type AuthRateLimitConfig struct {
	LoginWindow     time.Duration `envconfig:"GRACECHAPEL_AUTH_RATE_LIMIT_LOGIN_WINDOW" default:"1m"`
	LoginEmailLimit int           `envconfig:"GRACECHAPEL_AUTH_RATE_LIMIT_LOGIN_EMAIL_LIMIT" default:"5"`
	LoginIPLimit    int           `envconfig:"GRACECHAPEL_AUTH_RATE_LIMIT_LOGIN_IP_LIMIT" default:"20"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"GRACECHAPEL_AUTO_MIGRATE" default:"false"`
}

type StripeConfig struct {
	APIKey        string        `envconfig:"GRACECHAPEL_STRIPE_API_KEY"`
	WebhookSecret string        `envconfig:"GRACECHAPEL_STRIPE_WEBHOOK_SECRET"`
	Env           string        `envconfig:"GRACECHAPEL_STRIPE_ENV" default:"test"`
	SuccessURL    string        `envconfig:"GRACECHAPEL_STRIPE_SUCCESS_URL" default:"https://gracechapel.org/give/thank-you"`
	CancelURL     string        `envconfig:"GRACECHAPEL_STRIPE_CANCEL_URL" default:"https://gracechapel.org/give"`
	Timeout       time.Duration `envconfig:"GRACECHAPEL_STRIPE_TIMEOUT" default:"15s"`
}

func (s StripeConfig) Environment() string {
	return s.Env
}

type MailerConfig struct {
	APIKey    string        `envconfig:"GRACECHAPEL_SENDGRID_API_KEY"`
	FromEmail string        `envconfig:"GRACECHAPEL_MAILER_FROM_EMAIL" default:"giving@gracechapel.org"`
	FromName  string        `envconfig:"GRACECHAPEL_MAILER_FROM_NAME" default:"Grace Chapel"`
	Timeout   time.Duration `envconfig:"GRACECHAPEL_MAILER_TIMEOUT" default:"10s"`
}

type DonationsConfig struct {
	DefaultCurrency string `envconfig:"GRACECHAPEL_DONATIONS_DEFAULT_CURRENCY" default:"usd"`
	MinAmountCents  int64  `envconfig:"GRACECHAPEL_DONATIONS_MIN_AMOUNT_CENTS" default:"100"`
	MaxAmountCents  int64  `envconfig:"GRACECHAPEL_DONATIONS_MAX_AMOUNT_CENTS" default:"100000000"`
}
