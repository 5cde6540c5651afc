package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds server configuration.
type Config struct {
	Port     string
	LogLevel string
	LogFile  string

	// DatabaseURL selects Postgres; empty means lite mode on SQLitePath.
	DatabaseURL string
	SQLitePath  string
	RedisAddr   string
	NATSURL     string

	OTelEnabled  bool
	OTelEndpoint string

	ArtifactBackend string
	ArtifactBucket  string
	ArtifactDir     string
	AWSRegion       string
	S3Endpoint      string

	CheckoutProviderURL   string
	CheckoutSecretKey     string
	CheckoutWebhookSecret string
	FunctionsURL          string
	PublicURL             string

	AdminEmail        string
	AdminPasswordHash string

	DemoProfile      string
	RateLimitRPS     float64
	SessionIdleTTL   time.Duration
	MinClientVersion string
}

// Load loads configuration from environment variables.
func Load() *Config {
	return &Config{
		Port:     getenv("PORT", "8080"),
		LogLevel: getenv("LOG_LEVEL", "INFO"),
		LogFile:  os.Getenv("LOG_FILE"),

		DatabaseURL: os.Getenv("DATABASE_URL"),
		SQLitePath:  getenv("SQLITE_PATH", "data/sita.db"),
		RedisAddr:   os.Getenv("REDIS_ADDR"),
		NATSURL:     os.Getenv("NATS_URL"),

		OTelEnabled:  os.Getenv("OTEL_ENABLED") == "true",
		OTelEndpoint: getenv("OTEL_ENDPOINT", "localhost:4317"),

		ArtifactBackend: getenv("ARTIFACT_BACKEND", "file"),
		ArtifactBucket:  os.Getenv("ARTIFACT_BUCKET"),
		ArtifactDir:     getenv("ARTIFACT_DIR", "data/artifacts"),
		AWSRegion:       getenv("AWS_REGION", "us-east-1"),
		S3Endpoint:      os.Getenv("S3_ENDPOINT"),

		CheckoutProviderURL:   os.Getenv("CHECKOUT_PROVIDER_URL"),
		CheckoutSecretKey:     os.Getenv("CHECKOUT_SECRET_KEY"),
		CheckoutWebhookSecret: os.Getenv("CHECKOUT_WEBHOOK_SECRET"),
		FunctionsURL:          os.Getenv("FUNCTIONS_URL"),
		PublicURL:             getenv("PUBLIC_URL", "http://localhost:8080"),

		AdminEmail:        os.Getenv("ADMIN_EMAIL"),
		AdminPasswordHash: os.Getenv("ADMIN_PASSWORD_HASH"),

		DemoProfile:      os.Getenv("DEMO_PROFILE"),
		RateLimitRPS:     getfloat("RATE_LIMIT_RPS", 20),
		SessionIdleTTL:   getduration("SESSION_IDLE_TTL", 30*time.Minute),
		MinClientVersion: getenv("MIN_CLIENT_VERSION", "1.0.0"),
	}
}

// LiteMode reports whether records live in the embedded SQLite database.
func (c *Config) LiteMode() bool {
	return c.DatabaseURL == ""
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getfloat(key string, def float64) float64 {
	v, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil || v <= 0 {
		return def
	}
	return v
}

func getduration(key string, def time.Duration) time.Duration {
	v, err := time.ParseDuration(os.Getenv(key))
	if err != nil || v <= 0 {
		return def
	}
	return v
}
