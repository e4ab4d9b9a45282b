// Package config provides environment configuration for the API server.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/capitalize-ai/calendar-agent/internal/llm"
	"github.com/capitalize-ai/calendar-agent/pkg/logger"
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	ServerPort         string        `yaml:"port"`
	ServerReadTimeout  time.Duration `yaml:"server_read_timeout"`
	ServerWriteTimeout time.Duration `yaml:"server_write_timeout"`
	Environment        string        `yaml:"env"`

	// Calendar sink
	AppsScriptURL          string        `yaml:"apps_script_url"`
	CommitTimeout          time.Duration `yaml:"commit_timeout"`
	RestoreOnCommitFailure bool          `yaml:"restore_on_commit_failure"`

	// AI proposal source
	AIProvider      string        `yaml:"ai_provider"`
	OpenAIAPIKey    string        `yaml:"openai_api_key"`
	AnthropicAPIKey string        `yaml:"anthropic_api_key"`
	AIModel         string        `yaml:"ai_model"`
	AITimeout       time.Duration `yaml:"ai_timeout"`

	// NATS settings; an empty URL keeps the activity log in memory
	NATSURL           string        `yaml:"nats_url"`
	NATSCAFile        string        `yaml:"nats_ca_file"`
	NATSCertFile      string        `yaml:"nats_cert_file"`
	NATSKeyFile       string        `yaml:"nats_key_file"`
	NATSToken         string        `yaml:"nats_token"`
	ActivityRetention time.Duration `yaml:"activity_retention"`

	// JWT settings
	JWTSecret string `yaml:"jwt_secret"`

	// CORS
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins"`

	// Rate limiting
	RateLimitRequests int           `yaml:"rate_limit_requests"`
	RateLimitWindow   time.Duration `yaml:"rate_limit_window"`

	// Sessions
	SessionIdleTTL       time.Duration `yaml:"session_idle_ttl"`
	SessionSweepSchedule string        `yaml:"session_sweep_schedule"`

	// Logging
	LogLevel string `yaml:"log_level"`

	// Tracing
	TracingEndpoint string `yaml:"tracing_endpoint"`
	TracingEnabled  bool   `yaml:"tracing_enabled"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		ServerPort:         "8080",
		ServerReadTimeout:  30 * time.Second,
		ServerWriteTimeout: 120 * time.Second,
		Environment:        "production",

		CommitTimeout: 30 * time.Second,

		AIProvider: string(llm.ProviderOpenAI),
		AITimeout:  60 * time.Second,

		ActivityRetention: 30 * 24 * time.Hour,

		JWTSecret: "development-secret-change-in-production",

		CORSAllowedOrigins: []string{"https://*", "http://*", "chrome-extension://*"},

		RateLimitRequests: 60,
		RateLimitWindow:   time.Minute,

		SessionIdleTTL:       24 * time.Hour,
		SessionSweepSchedule: "*/5 * * * *",

		LogLevel: "info",

		TracingEndpoint: "localhost:4318",
	}
}

// Load builds the configuration from defaults, the optional YAML file named
// by CONFIG_FILE, and environment variables, in that order.
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	// Server
	c.ServerPort = getEnv("PORT", c.ServerPort)
	c.ServerReadTimeout = getDurationEnv("SERVER_READ_TIMEOUT", c.ServerReadTimeout)
	c.ServerWriteTimeout = getDurationEnv("SERVER_WRITE_TIMEOUT", c.ServerWriteTimeout)
	c.Environment = getEnv("ENV", c.Environment)

	// Calendar sink
	c.AppsScriptURL = getEnv("APPS_SCRIPT_URL", c.AppsScriptURL)
	c.CommitTimeout = getDurationEnv("COMMIT_TIMEOUT", c.CommitTimeout)
	c.RestoreOnCommitFailure = getBoolEnv("RESTORE_ON_COMMIT_FAILURE", c.RestoreOnCommitFailure)

	// AI
	c.AIProvider = strings.ToLower(getEnv("AI_PROVIDER", c.AIProvider))
	c.OpenAIAPIKey = getEnv("OPENAI_API_KEY", c.OpenAIAPIKey)
	c.AnthropicAPIKey = getEnv("ANTHROPIC_API_KEY", c.AnthropicAPIKey)
	c.AIModel = getEnv("AI_MODEL", c.AIModel)
	c.AITimeout = getDurationEnv("AI_TIMEOUT", c.AITimeout)

	// NATS
	c.NATSURL = getEnv("NATS_URL", c.NATSURL)
	c.NATSCAFile = getEnv("NATS_CA_FILE", c.NATSCAFile)
	c.NATSCertFile = getEnv("NATS_CERT_FILE", c.NATSCertFile)
	c.NATSKeyFile = getEnv("NATS_KEY_FILE", c.NATSKeyFile)
	c.NATSToken = getEnv("NATS_TOKEN", c.NATSToken)
	c.ActivityRetention = getDurationEnv("ACTIVITY_RETENTION", c.ActivityRetention)

	// JWT
	c.JWTSecret = getEnv("JWT_SECRET", c.JWTSecret)

	// CORS
	c.CORSAllowedOrigins = getListEnv("CORS_ALLOWED_ORIGINS", c.CORSAllowedOrigins)

	// Rate limiting
	c.RateLimitRequests = getIntEnv("RATE_LIMIT_REQUESTS", c.RateLimitRequests)
	c.RateLimitWindow = getDurationEnv("RATE_LIMIT_WINDOW", c.RateLimitWindow)

	// Sessions
	c.SessionIdleTTL = getDurationEnv("SESSION_IDLE_TTL", c.SessionIdleTTL)
	c.SessionSweepSchedule = getEnv("SESSION_SWEEP_SCHEDULE", c.SessionSweepSchedule)

	// Logging
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)

	// Tracing
	c.TracingEndpoint = getEnv("TRACING_ENDPOINT", c.TracingEndpoint)
	c.TracingEnabled = getBoolEnv("TRACING_ENABLED", c.TracingEnabled)
}

// Validate reports fatal misconfiguration. A missing Apps Script URL or AI key
// is not fatal; requests that need them fail individually.
func (c *Config) Validate() error {
	var errs []error

	if !logger.ValidLevel(c.LogLevel) {
		errs = append(errs, fmt.Errorf("invalid LOG_LEVEL %q", c.LogLevel))
	}
	if !llm.Provider(c.AIProvider).Valid() {
		errs = append(errs, fmt.Errorf("unknown AI_PROVIDER %q", c.AIProvider))
	}

	for name, d := range map[string]time.Duration{
		"SERVER_READ_TIMEOUT":  c.ServerReadTimeout,
		"SERVER_WRITE_TIMEOUT": c.ServerWriteTimeout,
		"COMMIT_TIMEOUT":       c.CommitTimeout,
		"AI_TIMEOUT":           c.AITimeout,
		"RATE_LIMIT_WINDOW":    c.RateLimitWindow,
		"SESSION_IDLE_TTL":     c.SessionIdleTTL,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", name, d))
		}
	}

	if c.RateLimitRequests <= 0 {
		errs = append(errs, fmt.Errorf("RATE_LIMIT_REQUESTS must be positive, got %d", c.RateLimitRequests))
	}
	if _, err := cron.ParseStandard(c.SessionSweepSchedule); err != nil {
		errs = append(errs, fmt.Errorf("invalid SESSION_SWEEP_SCHEDULE %q: %w", c.SessionSweepSchedule, err))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}

	return errors.Join(errs...)
}

// IsDevelopment reports whether ENV=development.
func (c *Config) IsDevelopment() bool {
	return strings.EqualFold(c.Environment, "development")
}

// AIKey returns the API key of the selected provider.
func (c *Config) AIKey() string {
	if llm.Provider(c.AIProvider) == llm.ProviderAnthropic {
		return c.AnthropicAPIKey
	}
	return c.OpenAIAPIKey
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getListEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
