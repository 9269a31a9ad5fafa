package config

import (
	"fmt"     // For DSN formatting
	"os"      // For environment variables
	"strconv" // For string to int conversion
	"time"    // For job intervals

	"github.com/joho/godotenv" // For loading .env files
)

// Config holds the application configuration
type Config struct {
	AppPort         string        // Application port
	DBUser          string        // Database user
	DBPassword      string        // Database password
	DBHost          string        // Database host
	DBPort          string        // Database port
	DBName          string        // Database name
	JWTSecret       string        // JWT secret key
	RedisAddr       string        // Redis server address
	RedisPass       string        // Redis password
	RedisDB         int           // Redis database number
	IsProd          bool          // Is production environment
	LogLevel        string        // Logrus level name
	Currency        string        // Currency of newly created wallets
	NotifyChannel   string        // Redis pub/sub channel for billing events
	WebhookURL      string        // Optional operator webhook for billing events
	WebhookSecret   string        // HMAC key for webhook signatures
	OTLPEndpoint    string        // OTLP/HTTP collector endpoint, empty disables telemetry
	ServiceName     string        // Service name reported to telemetry
	HourlyInterval  time.Duration // In-process hourly billing interval, 0 disables
	RenewalInterval time.Duration // In-process auto-renewal interval, 0 disables
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	_ = godotenv.Load() // Load .env file if present
	redisDB, _ := strconv.Atoi(os.Getenv("REDIS_DB"))
	return &Config{
		AppPort:         getEnv("APP_PORT", "8080"),                 // Application port
		DBUser:          os.Getenv("DB_USER"),                       // Database user
		DBPassword:      os.Getenv("DB_PASSWORD"),                   // Database password
		DBHost:          getEnv("DB_HOST", "localhost"),             // Database host
		DBPort:          getEnv("DB_PORT", "3306"),                  // Database port
		DBName:          os.Getenv("DB_NAME"),                       // Database name
		JWTSecret:       os.Getenv("JWT_SECRET"),                    // JWT secret key
		RedisAddr:       getEnv("REDIS_ADDR", "localhost:6379"),     // Redis server address
		RedisPass:       os.Getenv("REDIS_PASS"),                    // Redis password
		RedisDB:         redisDB,                                    // Redis database number
		IsProd:          os.Getenv("IS_PROD") == "true",             // Is production environment
		LogLevel:        getEnv("LOG_LEVEL", "info"),                // Log level
		Currency:        getEnv("WALLET_CURRENCY", "USD"),           // Wallet currency
		NotifyChannel:   getEnv("NOTIFY_CHANNEL", "billing.events"), // Pub/sub channel
		WebhookURL:      os.Getenv("WEBHOOK_URL"),                   // Webhook URL
		WebhookSecret:   os.Getenv("WEBHOOK_SECRET"),                // Webhook secret
		OTLPEndpoint:    os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),   // Collector endpoint
		ServiceName:     getEnv("SERVICE_NAME", "vps-billing"),      // Service name
		HourlyInterval:  getDuration("HOURLY_BILLING_INTERVAL", 0),  // Hourly job interval
		RenewalInterval: getDuration("AUTO_RENEWAL_INTERVAL", 0),    // Renewal job interval
	}
}

// DSN returns the MySQL connection string
func (c *Config) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName)
}

// getEnv returns the variable or fallback when unset
func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// getDuration parses a Go duration, falling back on unset or invalid input
func getDuration(key string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return d
}
