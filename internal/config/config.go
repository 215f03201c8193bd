package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	StoreDriverDynamo = "dynamo"
	StoreDriverMemory = "memory"
	StoreDriverNone   = "none"
)

// Config holds all runtime configuration loaded from environment variables.
type Config struct {
	AppPort   string
	AppEnv    string
	LogLevel  string
	LogFormat string

	StoreDriver    string
	AWSRegion      string
	AWSEndpointURL string // empty in prod, set to LocalStack URL in dev
	AWSAccessKeyID string
	AWSSecretKey   string
	DynamoTables   DynamoTables
	S3BucketName   string

	RedisURL       string
	RaffleCacheTTL time.Duration

	SNSRegion       string
	AdminAlertPhone string
	SMTPHost        string
	SMTPPort        string
	SMTPFrom        string
	SMTPUsername    string
	SMTPPassword    string
	AdminAlertEmail string

	AdminUsername     string
	AdminPasswordHash string // bcrypt
	JWTPrivateKeyPath string
	JWTPublicKeyPath  string
	JWTExpiry         time.Duration

	PublicBaseURL            string
	AllowedOrigins           []string // CORS allowed origins
	AvailabilityPollInterval time.Duration
	LinkClaimTTL             time.Duration
	MaxNumbersPerSession     int
}

// DynamoTables holds the DynamoDB table name for each entity.
type DynamoTables struct {
	Raffles       string
	Participants  string
	Links         string
	Notifications string
}

// Load reads all configuration from environment variables.
func Load() *Config {
	return &Config{
		AppPort:   getEnv("APP_PORT", "3000"),
		AppEnv:    getEnv("APP_ENV", "development"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		StoreDriver:    strings.ToLower(getEnv("STORE_DRIVER", StoreDriverDynamo)),
		AWSRegion:      getEnv("AWS_REGION", "us-east-1"),
		AWSEndpointURL: getEnv("AWS_ENDPOINT_URL", ""),
		AWSAccessKeyID: getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretKey:   getEnv("AWS_SECRET_ACCESS_KEY", ""),
		DynamoTables: DynamoTables{
			Raffles:       getEnv("DYNAMO_TABLE_RAFFLES", "raffles"),
			Participants:  getEnv("DYNAMO_TABLE_PARTICIPANTS", "participants"),
			Links:         getEnv("DYNAMO_TABLE_LINKS", "custom_links"),
			Notifications: getEnv("DYNAMO_TABLE_NOTIFICATIONS", "admin_notifications"),
		},
		S3BucketName: getEnv("S3_BUCKET_NAME", "raffle-exports"),

		RedisURL:       getEnv("REDIS_URL", ""),
		RaffleCacheTTL: getEnvDuration("RAFFLE_CACHE_TTL", 24*time.Hour),

		SNSRegion:       getEnv("SNS_REGION", "us-east-1"),
		AdminAlertPhone: getEnv("ADMIN_ALERT_PHONE", ""),
		SMTPHost:        getEnv("SMTP_HOST", "localhost"),
		SMTPPort:        getEnv("SMTP_PORT", "1025"),
		SMTPFrom:        getEnv("SMTP_FROM", "noreply@example.com"),
		SMTPUsername:    getEnv("SMTP_USERNAME", ""),
		SMTPPassword:    getEnv("SMTP_PASSWORD", ""),
		AdminAlertEmail: getEnv("ADMIN_ALERT_EMAIL", ""),

		AdminUsername:     getEnv("ADMIN_USERNAME", "admin"),
		AdminPasswordHash: getEnv("ADMIN_PASSWORD_HASH", ""),
		JWTPrivateKeyPath: getEnv("JWT_PRIVATE_KEY_PATH", "./private_key.pem"),
		JWTPublicKeyPath:  getEnv("JWT_PUBLIC_KEY_PATH", "./public_key.pem"),
		JWTExpiry:         time.Duration(getEnvInt("JWT_EXPIRY_HOURS", 12)) * time.Hour,

		PublicBaseURL:            strings.TrimRight(getEnv("PUBLIC_BASE_URL", "http://localhost:5173"), "/"),
		AllowedOrigins:           strings.Split(getEnv("ALLOWED_ORIGINS", "*"), ","),
		AvailabilityPollInterval: getEnvDuration("AVAILABILITY_POLL_INTERVAL", 30*time.Second),
		LinkClaimTTL:             getEnvDuration("LINK_CLAIM_TTL", 2*time.Minute),
		MaxNumbersPerSession:     getEnvInt("MAX_NUMBERS_PER_SESSION", 100),
	}
}

// StoreConfigured reports whether a remote store backend was configured at all.
func (c *Config) StoreConfigured() bool {
	return c.StoreDriver == StoreDriverDynamo || c.StoreDriver == StoreDriverMemory
}

// StoreEndpoint is a human-readable description of where the store lives.
func (c *Config) StoreEndpoint() string {
	switch c.StoreDriver {
	case StoreDriverDynamo:
		if c.AWSEndpointURL != "" {
			return c.AWSEndpointURL
		}
		return "dynamodb." + c.AWSRegion + ".amazonaws.com"
	case StoreDriverMemory:
		return "memory"
	}
	return ""
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
