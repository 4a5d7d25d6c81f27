// Package config provides environment configuration for the API server.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/capitalize-ai/neighborhood-advisor/internal/poller"
	"github.com/capitalize-ai/neighborhood-advisor/pkg/logger"
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	ServerPort         string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration

	// OpenAI settings
	OpenAIAPIKey          string
	OpenAIBaseURL         string
	OpenAIAssistantID     string
	OpenAIChatModel       string
	OpenAIResponseTimeout time.Duration

	// Polling and chat
	PollInterval     time.Duration
	PollMaxAttempts  int
	ChatHistoryLimit int

	// NATS settings; an empty URL disables the event stream.
	NATSURL      string
	NATSCAFile   string
	NATSCertFile string
	NATSKeyFile  string
	NATSToken    string

	// JWT settings; an empty secret disables authentication.
	JWTSecret string

	// Rate limiting
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// CORS
	CORSOrigins []string

	// Logging
	LogLevel  string
	LogFormat string

	// Tracing
	TracingEndpoint string
	TracingEnabled  bool
}

// Load reads configuration from environment variables.
func Load() *Config {
	return &Config{
		// Server
		ServerPort:         getEnv("PORT", "8080"),
		ServerReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
		ServerWriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 120*time.Second),

		// OpenAI
		OpenAIAPIKey:          getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:         getEnv("OPENAI_BASE_URL", ""),
		OpenAIAssistantID:     getEnv("OPENAI_ASSISTANT_ID", ""),
		OpenAIChatModel:       getEnv("OPENAI_CHAT_MODEL", "gpt-4o"),
		OpenAIResponseTimeout: getDurationEnv("OPENAI_RESPONSE_TIMEOUT", 60*time.Second),

		// Polling and chat
		PollInterval:     getDurationEnv("POLL_INTERVAL", time.Second),
		PollMaxAttempts:  getIntEnv("POLL_MAX_ATTEMPTS", 20),
		ChatHistoryLimit: getIntEnv("CHAT_HISTORY_LIMIT", 20),

		// NATS
		NATSURL:      getEnv("NATS_URL", ""),
		NATSCAFile:   getEnv("NATS_CA_FILE", ""),
		NATSCertFile: getEnv("NATS_CERT_FILE", ""),
		NATSKeyFile:  getEnv("NATS_KEY_FILE", ""),
		NATSToken:    getEnv("NATS_TOKEN", ""),

		// JWT
		JWTSecret: getEnv("JWT_SECRET", ""),

		// Rate limiting
		RateLimitRequests: getIntEnv("RATE_LIMIT_REQUESTS", 60),
		RateLimitWindow:   getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),

		// CORS
		CORSOrigins: getListEnv("CORS_ORIGINS"),

		// Logging
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		// Tracing
		TracingEndpoint: getEnv("TRACING_ENDPOINT", "localhost:4318"),
		TracingEnabled:  getBoolEnv("TRACING_ENABLED", false),
	}
}

// Validate reports every missing or out-of-range setting at once.
func (c *Config) Validate() error {
	var errs []error
	if c.OpenAIAPIKey == "" {
		errs = append(errs, errors.New("OPENAI_API_KEY is required"))
	}
	if c.OpenAIAssistantID == "" {
		errs = append(errs, errors.New("OPENAI_ASSISTANT_ID is required"))
	}
	if err := c.PollOptions().Validate(); err != nil {
		errs = append(errs, errors.New("POLL_INTERVAL/POLL_MAX_ATTEMPTS: "+err.Error()))
	}
	if c.ChatHistoryLimit < 0 {
		errs = append(errs, errors.New("CHAT_HISTORY_LIMIT must not be negative"))
	}
	if c.RateLimitRequests <= 0 || c.RateLimitWindow <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_REQUESTS and RATE_LIMIT_WINDOW must be positive"))
	}
	if f := logger.Format(c.LogFormat); f != logger.FormatJSON && f != logger.FormatConsole {
		errs = append(errs, errors.New("LOG_FORMAT must be json or console"))
	}
	if (c.NATSCertFile == "") != (c.NATSKeyFile == "") {
		errs = append(errs, errors.New("NATS_CERT_FILE and NATS_KEY_FILE must be set together"))
	}
	return errors.Join(errs...)
}

// PollOptions returns the poll budget for get-response.
func (c *Config) PollOptions() poller.Options {
	return poller.Options{
		Interval:    c.PollInterval,
		MaxAttempts: c.PollMaxAttempts,
	}
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

func getListEnv(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
