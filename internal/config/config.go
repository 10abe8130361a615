package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/wolfman30/medbook-agent/internal/clinic"
)

// Config holds application configuration
type Config struct {
	Port        string
	Env         string
	LogLevel    string
	DatabaseURL string

	// Clinic scheduling
	ClinicTimezone  string
	ClinicOpenHour  int
	ClinicCloseHour int
	SlotMinutes     int

	// Agent loop
	AgentMaxRounds        int
	AgentMaxParallelTools int
	LLMProvider           string
	LLMTemperature        float64
	LLMMaxTokens          int
	BedrockModelID        string
	GeminiAPIKey          string
	GeminiModelID         string

	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string

	// Email
	EmailProvider  string
	EmailFrom      string
	EmailFromName  string
	SendGridAPIKey string

	// Google Calendar
	GoogleServiceAccountJSON string
	GoogleCalendarID         string

	// Slack
	SlackBotToken string

	// HTTP edge
	JWTSecret          string
	CORSAllowedOrigins []string
	HTTPRateLimitRPS   float64
	HTTPRateLimitBurst int
	ChatRateLimit      int
	ChatRateWindow     time.Duration
	RedisAddr          string
	RedisPassword      string
	RedisTLS           bool
	ShutdownTimeout    time.Duration
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:        getEnv("PORT", "8080"),
		Env:         getEnv("ENV", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		DatabaseURL: getEnv("DATABASE_URL", ""),

		ClinicTimezone:  getEnv("CLINIC_TIMEZONE", "Asia/Kolkata"),
		ClinicOpenHour:  getEnvAsInt("CLINIC_OPEN_HOUR", 10),
		ClinicCloseHour: getEnvAsInt("CLINIC_CLOSE_HOUR", 17),
		SlotMinutes:     getEnvAsInt("SLOT_MINUTES", 60),

		AgentMaxRounds:        getEnvAsInt("AGENT_MAX_ROUNDS", 5),
		AgentMaxParallelTools: getEnvAsInt("AGENT_MAX_PARALLEL_TOOLS", 4),
		LLMProvider:           strings.ToLower(strings.TrimSpace(getEnv("LLM_PROVIDER", "bedrock"))),
		LLMTemperature:        getEnvAsFloat("LLM_TEMPERATURE", 0.1),
		LLMMaxTokens:          getEnvAsInt("LLM_MAX_TOKENS", 1024),
		BedrockModelID:        getEnv("BEDROCK_MODEL_ID", ""),
		GeminiAPIKey:          getEnv("GEMINI_API_KEY", ""),
		GeminiModelID:         getEnv("GEMINI_MODEL_ID", "gemini-1.5-flash"),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),

		EmailProvider:  strings.ToLower(strings.TrimSpace(getEnv("EMAIL_PROVIDER", "stub"))),
		EmailFrom:      getEnv("EMAIL_FROM", ""),
		EmailFromName:  getEnv("EMAIL_FROM_NAME", "Clinic Appointments"),
		SendGridAPIKey: getEnv("SENDGRID_API_KEY", ""),

		GoogleServiceAccountJSON: getEnv("GOOGLE_SERVICE_ACCOUNT_JSON", ""),
		GoogleCalendarID:         getEnv("GOOGLE_CALENDAR_ID", "primary"),

		SlackBotToken: getEnv("SLACK_BOT_TOKEN", ""),

		JWTSecret:          getEnv("JWT_SECRET", ""),
		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		HTTPRateLimitRPS:   getEnvAsFloat("HTTP_RATE_LIMIT_RPS", 10),
		HTTPRateLimitBurst: getEnvAsInt("HTTP_RATE_LIMIT_BURST", 20),
		ChatRateLimit:      getEnvAsInt("CHAT_RATE_LIMIT", 20),
		ChatRateWindow:     getEnvAsDuration("CHAT_RATE_WINDOW", time.Minute),
		RedisAddr:          getEnv("REDIS_ADDR", ""),
		RedisPassword:      getEnv("REDIS_PASSWORD", ""),
		RedisTLS:           getEnvAsBool("REDIS_TLS", false),
		ShutdownTimeout:    getEnvAsDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
	}
}

// Validate checks the clinic scheduling parameters; everything else has safe defaults.
func (c *Config) Validate() error {
	if _, err := clinic.LoadLocation(c.ClinicTimezone); err != nil {
		return fmt.Errorf("config: invalid CLINIC_TIMEZONE %q: %w", c.ClinicTimezone, err)
	}
	if c.ClinicOpenHour < 0 || c.ClinicCloseHour > 24 || c.ClinicOpenHour >= c.ClinicCloseHour {
		return fmt.Errorf("config: clinic hours %d-%d are invalid", c.ClinicOpenHour, c.ClinicCloseHour)
	}
	if c.SlotMinutes <= 0 || (c.ClinicCloseHour-c.ClinicOpenHour)*60 < c.SlotMinutes {
		return fmt.Errorf("config: SLOT_MINUTES %d does not fit the working day", c.SlotMinutes)
	}
	if c.AgentMaxRounds <= 0 {
		return fmt.Errorf("config: AGENT_MAX_ROUNDS must be positive")
	}
	return nil
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
