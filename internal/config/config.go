package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ilyakaznacheev/cleanenv"
)

const minSessionSecretLength = 32

var (
	ErrSecretsNotDistinct = errors.New("SESSION_SECRET must differ from TELEGRAM_BOT_TOKEN")
)

type Config struct {
	Env      string `env:"ENV" env-default:"development" validate:"oneof=development staging production test"`
	Port     string `env:"PORT" env-default:"8080" validate:"required,numeric"`
	LogLevel string `env:"LOG_LEVEL" env-default:"info" validate:"oneof=debug info warn error"`

	Database DatabaseConfig
	Telegram TelegramConfig
	Session  SessionConfig
	CSRF     CSRFConfig
	CORS     CORSConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
}

type DatabaseConfig struct {
	// Empty selects the in-memory account store.
	ConnectionString string `env:"DB_CONNECTION_STRING"`
	RunMigrations    bool   `env:"DB_RUN_MIGRATIONS" env-default:"true"`
}

type TelegramConfig struct {
	BotToken          string        `env:"TELEGRAM_BOT_TOKEN" validate:"required"`
	AuthMaxAge        time.Duration `env:"TELEGRAM_AUTH_MAX_AGE" env-default:"24h" validate:"gt=0"`
	RequireAuthDate   bool          `env:"TELEGRAM_REQUIRE_AUTH_DATE" env-default:"false"`
	AdminIDs          []int64       `env:"TELEGRAM_ADMIN_IDS" env-separator:","`
	NotifyNewAccounts bool          `env:"TELEGRAM_NOTIFY_NEW_ACCOUNTS" env-default:"false"`
	APIBaseURL        string        `env:"TELEGRAM_API_BASE_URL" env-default:"https://api.telegram.org" validate:"url"`
	TemplatesDir      string        `env:"TELEGRAM_TEMPLATES_DIR" env-default:"messages"`
}

type SessionConfig struct {
	Secret       string        `env:"SESSION_SECRET" validate:"required"`
	TTL          time.Duration `env:"SESSION_TTL" env-default:"24h" validate:"gt=0"`
	Issuer       string        `env:"SESSION_ISSUER" env-default:"facecards"`
	SecureCookie bool          `env:"SESSION_SECURE_COOKIE" env-default:"true"`
}

type CSRFConfig struct {
	AuthKey        string   `env:"CSRF_AUTH_KEY"`
	TrustedOrigins []string `env:"CSRF_TRUSTED_ORIGINS" env-separator:","`
	Secure         bool     `env:"CSRF_SECURE" env-default:"true"`
	SameSite       string   `env:"CSRF_SAMESITE" env-default:"lax" validate:"oneof=lax strict none"`
}

type CORSConfig struct {
	AllowedOrigin string `env:"CORS_ALLOWED_ORIGIN" env-default:"*"`
}

type RedisConfig struct {
	// Empty keeps the upsert lock in-process.
	URL     string        `env:"REDIS_URL"`
	LockTTL time.Duration `env:"REDIS_LOCK_TTL" env-default:"5s" validate:"gt=0"`
}

type KafkaConfig struct {
	// Empty disables account event publishing.
	Brokers []string `env:"KAFKA_BROKERS" env-separator:","`
	Topic   string   `env:"KAFKA_TOPIC" env-default:"facecards.accounts"`
}

// Load reads the process environment into a validated Config.
func Load() (*Config, error) {
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("reading environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if len(c.Session.Secret) < minSessionSecretLength {
		return fmt.Errorf("invalid configuration: SESSION_SECRET must be at least %d bytes", minSessionSecretLength)
	}
	if c.Session.Secret == c.Telegram.BotToken {
		return ErrSecretsNotDistinct
	}
	if c.CSRF.AuthKey != "" && len(c.CSRF.AuthKey) < 32 {
		return fmt.Errorf("invalid configuration: CSRF_AUTH_KEY must be at least 32 bytes; got %d", len(c.CSRF.AuthKey))
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return ":" + c.Port
}
