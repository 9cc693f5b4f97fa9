package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port     string
	Env      string
	LogLevel string

	// Database
	DatabaseURL string

	// Redis
	RedisURL string

	// JWT (reviewer routes)
	JWTSecret string

	// Scoring oracle
	LLMProvider          string
	GeminiAPIKey         string
	GeminiModel          string
	OpenAIAPIKey         string
	OpenAIModel          string
	OracleConcurrentReqs int
	ReviewWorkers        int

	// Storage
	StoragePath         string
	PublicUploadsPrefix string
	GCSBucket           string
	GCSCredentialsFile  string

	// Submission policy
	SubmitDeadlineEnforced bool
	SubmitGracePeriod      time.Duration

	// Rate limiting for client reporting endpoints
	EventRateLimit int

	// Alerts
	DiscordBotToken  string
	DiscordChannelID string
	SMTPHost         string
	SMTPPort         string
	SMTPUser         string
	SMTPPass         string
	SMTPFrom         string
	AlertEmailTo     []string

	// Frontend
	FrontendURL string
}

func Load() *Config {
	// Load .env file if it exists
	godotenv.Load()

	cfg := &Config{
		Port:                   getEnvOrDefault("PORT", "8080"),
		Env:                    getEnvOrDefault("ENV", "development"),
		LogLevel:               getEnvOrDefault("LOG_LEVEL", "info"),
		DatabaseURL:            mustGetEnv("DATABASE_URL"),
		RedisURL:               mustGetEnv("REDIS_URL"),
		JWTSecret:              mustGetEnv("JWT_SECRET"),
		LLMProvider:            getEnvOrDefault("LLM_PROVIDER", "gemini"),
		GeminiAPIKey:           getEnvOrDefault("GEMINI_API_KEY", ""),
		GeminiModel:            getEnvOrDefault("GEMINI_MODEL", "gemini-2.0-flash"),
		OpenAIAPIKey:           getEnvOrDefault("OPENAI_API_KEY", ""),
		OpenAIModel:            getEnvOrDefault("OPENAI_MODEL", "gpt-4o-mini"),
		OracleConcurrentReqs:   getEnvAsIntOrDefault("ORACLE_CONCURRENT_REQUESTS", 5),
		ReviewWorkers:          getEnvAsIntOrDefault("REVIEW_WORKERS", 3),
		StoragePath:            getEnvOrDefault("STORAGE_PATH", "./uploads"),
		PublicUploadsPrefix:    getEnvOrDefault("PUBLIC_UPLOADS_PREFIX", "/uploads"),
		GCSBucket:              getEnvOrDefault("GCS_BUCKET", ""),
		GCSCredentialsFile:     getEnvOrDefault("GCS_CREDENTIALS_FILE", ""),
		SubmitDeadlineEnforced: getEnvAsBoolOrDefault("SUBMIT_DEADLINE_ENFORCED", false),
		SubmitGracePeriod:      getEnvAsDurationOrDefault("SUBMIT_GRACE_PERIOD", 2*time.Minute),
		EventRateLimit:         getEnvAsIntOrDefault("EVENT_RATE_LIMIT", 120),
		DiscordBotToken:        getEnvOrDefault("DISCORD_BOT_TOKEN", ""),
		DiscordChannelID:       getEnvOrDefault("DISCORD_CHANNEL_ID", ""),
		SMTPHost:               getEnvOrDefault("SMTP_HOST", ""),
		SMTPPort:               getEnvOrDefault("SMTP_PORT", "587"),
		SMTPUser:               getEnvOrDefault("SMTP_USER", ""),
		SMTPPass:               getEnvOrDefault("SMTP_PASS", ""),
		SMTPFrom:               getEnvOrDefault("SMTP_FROM", "noreply@isuma.ai"),
		AlertEmailTo:           getEnvAsListOrDefault("ALERT_EMAIL_TO", nil),
		FrontendURL:            getEnvOrDefault("FRONTEND_URL", "http://localhost:3000"),
	}

	return cfg
}

// OracleAPIKey returns the credential for the configured provider.
func (c *Config) OracleAPIKey() string {
	if c.LLMProvider == "openai" {
		return c.OpenAIAPIKey
	}
	return c.GeminiAPIKey
}

// OracleModel returns the model name for the configured provider.
func (c *Config) OracleModel() string {
	if c.LLMProvider == "openai" {
		return c.OpenAIModel
	}
	return c.GeminiModel
}

func mustGetEnv(key string) string {
	val := os.Getenv(key)
	if val == "" {
		panic(fmt.Sprintf("required environment variable %s is not set", key))
	}
	return val
}

func getEnvOrDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func getEnvAsIntOrDefault(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}

func getEnvAsListOrDefault(key string, defaultVal []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvAsBoolOrDefault(key string, defaultVal bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvAsDurationOrDefault(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(val)
	if err != nil || d < 0 {
		return defaultVal
	}
	return d
}
