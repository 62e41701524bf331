// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// OTP challenge store backends.
const (
	OTPStoreMemory = "memory"
	OTPStoreRedis  = "redis"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// APIBaseURL is the banking backend base URL (e.g. https://api.example-bank.com/v1).
	APIBaseURL string `mapstructure:"API_BASE_URL" validate:"required,url"`
	// APIAccessToken is the bearer token sent on every backend call.
	APIAccessToken string `mapstructure:"API_ACCESS_TOKEN"`
	// HTTPTimeout caps a single backend request (e.g. "15s").
	HTTPTimeout string `mapstructure:"HTTP_TIMEOUT"`

	// OTPChallengeTTL is the local verification deadline for a challenge when the backend sends none.
	OTPChallengeTTL string `mapstructure:"OTP_CHALLENGE_TTL"`
	// OTPStore selects where outstanding challenges live: memory or redis.
	OTPStore string `mapstructure:"OTP_STORE" validate:"oneof=memory redis"`
	// OTPResendInterval is the minimum gap between challenge refreshes for one run.
	OTPResendInterval string `mapstructure:"OTP_RESEND_INTERVAL"`

	// RedisAddr is the redis address used when OTPStore is redis.
	RedisAddr string `mapstructure:"REDIS_ADDR"`
	// RedisPassword is optional.
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	// RedisDB is the logical redis database.
	RedisDB int `mapstructure:"REDIS_DB" validate:"min=0,max=15"`

	// DatabaseURL is the Postgres DSN for the audit trail; empty disables persistence.
	DatabaseURL string `mapstructure:"DATABASE_URL"`

	// TelemetryKafkaBrokers is a comma-separated list of Kafka broker addresses (e.g. "localhost:9092").
	TelemetryKafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	// TelemetryKafkaTopic is the Kafka topic for workflow events.
	TelemetryKafkaTopic string `mapstructure:"TELEMETRY_KAFKA_TOPIC"`
	// KafkaGroupID is the consumer group ID for the telemetry worker.
	KafkaGroupID string `mapstructure:"KAFKA_GROUP_ID"`
	// LokiURL is where the telemetry worker pushes logs (e.g. http://localhost:3100).
	LokiURL string `mapstructure:"LOKI_URL"`

	// OTLPEndpoint is the OpenTelemetry collector endpoint; empty disables export.
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	// OTLPInsecure forces a plaintext connection to the collector.
	OTLPInsecure bool `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`

	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`
	// LogLevel is a zap level name (debug, info, warn, error).
	LogLevel string `mapstructure:"LOG_LEVEL" validate:"oneof=debug info warn error"`

	// FXMinAmount is the smallest source amount accepted for a currency exchange.
	FXMinAmount string `mapstructure:"FX_MIN_AMOUNT"`
	// PolicyFile is an optional Rego file replacing the default submission policy.
	PolicyFile string `mapstructure:"POLICY_FILE"`

	// SimAddr is the listen address of the simulated banking backend.
	SimAddr string `mapstructure:"SIM_ADDR"`
	// WSAddr is the listen address of the websocket confirmation server.
	WSAddr string `mapstructure:"WS_ADDR"`

	// JWTPrivateKey is the PEM-encoded private key (RSA or ECDSA) or path to file. Simulated backend only.
	JWTPrivateKey string `mapstructure:"JWT_PRIVATE_KEY"`
	// JWTPublicKey is the PEM-encoded public key or path to file; used with JWT_PRIVATE_KEY.
	JWTPublicKey string `mapstructure:"JWT_PUBLIC_KEY"`
	// JWTIssuer is the iss claim of backend access tokens.
	JWTIssuer string `mapstructure:"JWT_ISSUER"`
	// JWTAudience is the aud claim of backend access tokens.
	JWTAudience string `mapstructure:"JWT_AUDIENCE"`
	// JWTAccessTTL is the access token lifetime (e.g. "15m").
	JWTAccessTTL string `mapstructure:"JWT_ACCESS_TTL"`

	// OTPReturnToClient when true enables dev OTP mode on the simulated backend: codes are readable via
	// GET /dev/otp. Must not be true when Env is production.
	OTPReturnToClient bool `mapstructure:"OTP_RETURN_TO_CLIENT"`
	// SMSLocalAPIKey is the API key for SMS Local; empty disables SMS delivery in the simulated backend.
	SMSLocalAPIKey string `mapstructure:"SMS_LOCAL_API_KEY"`
	// SMSLocalBaseURL is the SMS Local API base URL.
	SMSLocalBaseURL string `mapstructure:"SMS_LOCAL_BASE_URL"`
	// SMSLocalSender is the optional sender ID for SMS Local.
	SMSLocalSender string `mapstructure:"SMS_LOCAL_SENDER"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("API_BASE_URL", "http://localhost:8090")
	v.SetDefault("API_ACCESS_TOKEN", "")
	v.SetDefault("HTTP_TIMEOUT", "15s")
	v.SetDefault("OTP_CHALLENGE_TTL", "5m")
	v.SetDefault("OTP_STORE", OTPStoreMemory)
	v.SetDefault("OTP_RESEND_INTERVAL", "30s")
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("TELEMETRY_KAFKA_TOPIC", "bizbank-workflow-events")
	v.SetDefault("KAFKA_GROUP_ID", "bizbank-telemetry-worker")
	v.SetDefault("LOKI_URL", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("APP_ENV", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("FX_MIN_AMOUNT", "50")
	v.SetDefault("POLICY_FILE", "")
	v.SetDefault("SIM_ADDR", ":8090")
	v.SetDefault("WS_ADDR", ":8081")
	v.SetDefault("JWT_PRIVATE_KEY", "")
	v.SetDefault("JWT_PUBLIC_KEY", "")
	v.SetDefault("JWT_ISSUER", "bizbank-sim")
	v.SetDefault("JWT_AUDIENCE", "bizbank-api")
	v.SetDefault("JWT_ACCESS_TTL", "1h")
	v.SetDefault("OTP_RETURN_TO_CLIENT", false)
	v.SetDefault("SMS_LOCAL_API_KEY", "")
	v.SetDefault("SMS_LOCAL_BASE_URL", "https://app.smslocal.in/api/smsapi")
	v.SetDefault("SMS_LOCAL_SENDER", "")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	cfg.OTPStore = strings.ToLower(strings.TrimSpace(cfg.OTPStore))
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	if cfg.OTPReturnToClient && cfg.Env == "production" {
		return nil, errors.New("config: OTP_RETURN_TO_CLIENT must not be true when APP_ENV=production")
	}
	if cfg.OTPStore == OTPStoreRedis && strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil, errors.New("config: REDIS_ADDR must be set when OTP_STORE=redis")
	}
	if _, err := cfg.FXMinimum(); err != nil {
		return nil, errors.New("config: FX_MIN_AMOUNT must be a positive decimal")
	}

	return &cfg, nil
}

// IsProduction reports whether APP_ENV is production.
func (c *Config) IsProduction() bool {
	return c != nil && c.Env == "production"
}

// RequestTimeout parses HTTPTimeout. Returns 15s if unset or invalid.
func (c *Config) RequestTimeout() time.Duration {
	return parseDuration(c.HTTPTimeout, 15*time.Second)
}

// ChallengeTTL parses OTPChallengeTTL. Returns 5m if unset or invalid.
func (c *Config) ChallengeTTL() time.Duration {
	return parseDuration(c.OTPChallengeTTL, 5*time.Minute)
}

// ResendInterval parses OTPResendInterval. Returns 30s if unset or invalid.
func (c *Config) ResendInterval() time.Duration {
	return parseDuration(c.OTPResendInterval, 30*time.Second)
}

// AccessTTL parses JWTAccessTTL. Returns 1h if unset or invalid.
func (c *Config) AccessTTL() time.Duration {
	return parseDuration(c.JWTAccessTTL, time.Hour)
}

// FXMinimum parses FXMinAmount as a positive decimal.
func (c *Config) FXMinimum() (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(c.FXMinAmount))
	if err != nil {
		return decimal.Zero, err
	}
	if !d.IsPositive() {
		return decimal.Zero, fmt.Errorf("fx minimum %s is not positive", d)
	}
	return d, nil
}

// TelemetryKafkaBrokersList returns Kafka broker addresses from the comma-separated config.
// Used to decide if telemetry is enabled (non-empty list) and to create the producer.
func (c *Config) TelemetryKafkaBrokersList() []string {
	if c == nil || c.TelemetryKafkaBrokers == "" {
		return nil
	}
	parts := strings.Split(c.TelemetryKafkaBrokers, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
