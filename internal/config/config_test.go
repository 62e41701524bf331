package config

import (
	"os"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	os.Clearenv()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg == nil {
		t.Fatal("Load returned nil config")
	}
	if cfg.APIBaseURL != "http://localhost:8090" {
		t.Errorf("APIBaseURL = %q, want %q", cfg.APIBaseURL, "http://localhost:8090")
	}
	if cfg.OTPStore != OTPStoreMemory {
		t.Errorf("OTPStore = %q, want %q", cfg.OTPStore, OTPStoreMemory)
	}
	if cfg.JWTIssuer != "bizbank-sim" {
		t.Errorf("JWTIssuer = %q, want %q", cfg.JWTIssuer, "bizbank-sim")
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "info")
	}
	if cfg.SMSLocalBaseURL != "https://app.smslocal.in/api/smsapi" {
		t.Errorf("SMSLocalBaseURL = %q, want default", cfg.SMSLocalBaseURL)
	}
	if cfg.OTPReturnToClient {
		t.Error("OTPReturnToClient should default to false")
	}
	fxMin, err := cfg.FXMinimum()
	if err != nil {
		t.Fatalf("FXMinimum: %v", err)
	}
	if fxMin.String() != "50" {
		t.Errorf("FXMinimum = %s, want 50", fxMin)
	}
}

func TestLoad_EnvVarOverride(t *testing.T) {
	os.Clearenv()
	os.Setenv("API_BASE_URL", "https://api.example-bank.com/v1")
	os.Setenv("JWT_ISSUER", "custom-issuer")
	os.Setenv("REDIS_DB", "3")
	os.Setenv("OTP_STORE", " Redis ")
	os.Setenv("LOG_LEVEL", "DEBUG")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.APIBaseURL != "https://api.example-bank.com/v1" {
		t.Errorf("APIBaseURL = %q, want override", cfg.APIBaseURL)
	}
	if cfg.JWTIssuer != "custom-issuer" {
		t.Errorf("JWTIssuer = %q, want %q", cfg.JWTIssuer, "custom-issuer")
	}
	if cfg.RedisDB != 3 {
		t.Errorf("RedisDB = %d, want 3", cfg.RedisDB)
	}
	if cfg.OTPStore != OTPStoreRedis {
		t.Errorf("OTPStore = %q, want %q", cfg.OTPStore, OTPStoreRedis)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "debug")
	}
}

func TestLoad_Rejects(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"dev otp in production", map[string]string{"OTP_RETURN_TO_CLIENT": "true", "APP_ENV": "production"}},
		{"unknown otp store", map[string]string{"OTP_STORE": "memcached"}},
		{"redis without address", map[string]string{"OTP_STORE": "redis", "REDIS_ADDR": " "}},
		{"bad base url", map[string]string{"API_BASE_URL": "not a url"}},
		{"negative fx minimum", map[string]string{"FX_MIN_AMOUNT": "-5"}},
		{"non-numeric fx minimum", map[string]string{"FX_MIN_AMOUNT": "fifty"}},
		{"unknown log level", map[string]string{"LOG_LEVEL": "verbose"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Clearenv()
			for k, v := range tt.env {
				os.Setenv(k, v)
			}
			if _, err := Load(); err == nil {
				t.Fatal("Load: expected error")
			}
		})
	}
}

func TestLoad_DevOTPOutsideProduction(t *testing.T) {
	os.Clearenv()
	os.Setenv("OTP_RETURN_TO_CLIENT", "true")
	os.Setenv("APP_ENV", "development")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.OTPReturnToClient {
		t.Error("OTPReturnToClient = false, want true")
	}
	if cfg.IsProduction() {
		t.Error("IsProduction = true, want false")
	}
}

func TestConfig_Durations(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		get  func(*Config) time.Duration
		want time.Duration
	}{
		{"timeout set", Config{HTTPTimeout: "3s"}, (*Config).RequestTimeout, 3 * time.Second},
		{"timeout invalid", Config{HTTPTimeout: "soon"}, (*Config).RequestTimeout, 15 * time.Second},
		{"ttl set", Config{OTPChallengeTTL: "2m"}, (*Config).ChallengeTTL, 2 * time.Minute},
		{"ttl empty", Config{}, (*Config).ChallengeTTL, 5 * time.Minute},
		{"resend negative", Config{OTPResendInterval: "-1s"}, (*Config).ResendInterval, 30 * time.Second},
		{"access ttl", Config{JWTAccessTTL: "15m"}, (*Config).AccessTTL, 15 * time.Minute},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			if got := tt.get(&cfg); got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTelemetryKafkaBrokersList(t *testing.T) {
	cfg := &Config{TelemetryKafkaBrokers: " a:9092, ,b:9092 "}
	got := cfg.TelemetryKafkaBrokersList()
	if len(got) != 2 || got[0] != "a:9092" || got[1] != "b:9092" {
		t.Errorf("TelemetryKafkaBrokersList = %v, want [a:9092 b:9092]", got)
	}
	if (&Config{}).TelemetryKafkaBrokersList() != nil {
		t.Error("empty brokers should return nil")
	}
}
