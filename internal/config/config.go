package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

type Config struct {
	Port        string `envconfig:"PORT" default:"8080"`
	GinMode     string `envconfig:"GIN_MODE" default:"release"`
	DatabaseURL string `envconfig:"DATABASE_URL"`
	EnableDB    bool   `envconfig:"ENABLE_DB" default:"false"`
	CORSOrigins string `envconfig:"CORS_ORIGINS" default:"*"`

	// TrustedProxies lists proxy IPs or CIDRs allowed to set X-Forwarded-For.
	TrustedProxies []string `envconfig:"TRUSTED_PROXIES"`

	ModelDir string `envconfig:"MODEL_DIR" default:"artifacts"`

	RateLimitPerMinute int    `envconfig:"RATE_LIMIT_PER_MINUTE" default:"20"`
	RateLimitBackend   string `envconfig:"RATE_LIMIT_BACKEND" default:"memory"`
	RedisAddr          string `envconfig:"REDIS_ADDR"`
	RedisPassword      string `envconfig:"REDIS_PASSWORD"`
	RedisDB            int    `envconfig:"REDIS_DB" default:"0"`

	TFIDFThreshold    float64 `envconfig:"TFIDF_THRESHOLD" default:"0.12"`
	SemanticThreshold float64 `envconfig:"SEMANTIC_THRESHOLD" default:"0.55"`

	Encoder EncoderConfig

	MQTTBroker   string `envconfig:"MQTT_BROKER"`
	MQTTClientID string `envconfig:"MQTT_CLIENT_ID" default:"proactivecare"`
	MQTTTopic    string `envconfig:"MQTT_TOPIC" default:"proactivecare/emergency"`
	MQTTUsername string `envconfig:"MQTT_USERNAME"`
	MQTTPassword string `envconfig:"MQTT_PASSWORD"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`

	SentryDSN         string `envconfig:"SENTRY_DSN"`
	SentryEnvironment string `envconfig:"SENTRY_ENVIRONMENT" default:"development"`
}

// EncoderConfig points at an ONNX text encoder. An empty ModelPath disables
// semantic extraction.
type EncoderConfig struct {
	ModelPath     string `envconfig:"ENCODER_MODEL_PATH"`
	TokenizerPath string `envconfig:"ENCODER_TOKENIZER_PATH"`
	OrtLibrary    string `envconfig:"ENCODER_ORT_LIBRARY"`
	MaxSeqLen     int    `envconfig:"ENCODER_MAX_SEQ_LEN" default:"128"`

	// RequireGPU disables the encoder when no CUDA provider can be attached.
	RequireGPU bool `envconfig:"ENCODER_REQUIRE_GPU" default:"true"`
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	cfg.RateLimitBackend = strings.ToLower(strings.TrimSpace(cfg.RateLimitBackend))

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.EnableDB && c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required when ENABLE_DB=true")
	}
	switch c.RateLimitBackend {
	case BackendMemory:
	case BackendRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("REDIS_ADDR is required when RATE_LIMIT_BACKEND=redis")
		}
	default:
		return fmt.Errorf("unknown RATE_LIMIT_BACKEND %q", c.RateLimitBackend)
	}
	if c.RateLimitPerMinute <= 0 {
		return fmt.Errorf("RATE_LIMIT_PER_MINUTE must be positive, got %d", c.RateLimitPerMinute)
	}
	return nil
}

// CORSList splits CORS_ORIGINS on commas.
func (c *Config) CORSList() []string {
	var out []string
	for _, origin := range strings.Split(c.CORSOrigins, ",") {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
