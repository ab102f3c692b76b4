package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

func init() {
	// Load .env file - ignore error if file doesn't exist
	if err := godotenv.Load(); err != nil {
		fmt.Printf("Note: .env file not found or could not be loaded: %v\n", err)
	}
}

type Config struct {
	Primary       PrimaryConfig
	Database      DatabaseConfig
	Server        ServerConfig
	Redis         RedisConfig
	Kafka         KafkaConfig
	JWT           JWTConfig
	Stripe        StripeConfig
	Gateway       GatewayConfig
	Observability *ObservabilityConfig
}

type PrimaryConfig struct {
	Env string
}

type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int
	ConnMaxIdleTime int
}

type ServerConfig struct {
	Port               string
	ReadTimeout        int
	WriteTimeout       int
	IdleTimeout        int
	CORSAllowedOrigins []string
}

type RedisConfig struct {
	Address      string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	LockTTL      time.Duration
	KeyPrefix    string
}

type KafkaConfig struct {
	Brokers []string
}

type JWTConfig struct {
	Secret     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	BaseURL       string
	// Provider selects the processor implementation: "stripe" or "fake".
	Provider string
	Currency string
	Timeout  time.Duration
}

// GatewayConfig holds the edge configuration: where the gateway listens,
// where the backend services live, and how aggressively clients are limited.
type GatewayConfig struct {
	Port               string
	PropertyServiceURL string
	UserServiceURL     string
	ContactServiceURL  string
	AnalyticsURL       string
	TransactionURL     string
	RateLimit          int64
	RateWindow         time.Duration
	ClaimsCacheSize    int
	ClaimsCacheTTL     time.Duration
}

type ObservabilityConfig struct {
	ServiceName  string
	Environment  string
	Logging      LoggingConfig
	NewRelic     NewRelicConfig
	HealthChecks HealthChecksConfig
}

type LoggingConfig struct {
	Level              string
	Format             string
	SlowQueryThreshold time.Duration
}

type NewRelicConfig struct {
	LicenseKey                string
	AppLogForwardingEnabled   bool
	DistributedTracingEnabled bool
	DebugLogging              bool
}

type HealthChecksConfig struct {
	Enabled  bool
	Interval time.Duration
	Timeout  time.Duration
	Checks   []string
}

// Helper functions for parsing env vars
func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvSlice(key string, fallback []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return fallback
}

func (c *ObservabilityConfig) GetLogLevel() string {
	if c.Logging.Level == "" {
		switch c.Environment {
		case "production":
			return "info"
		case "development":
			return "debug"
		default:
			return "info"
		}
	}
	return c.Logging.Level
}

func (c *ObservabilityConfig) IsProduction() bool {
	return c.Environment == "production"
}

func LoadConfig() (*Config, error) {
	cfg := &Config{
		Primary: PrimaryConfig{
			Env: getEnv("HEARTH_ENV", "development"),
		},
		Database: DatabaseConfig{
			Host:            getEnv("HEARTH_DB_HOST", "localhost"),
			Port:            getEnvInt("HEARTH_DB_PORT", 5432),
			User:            getEnv("HEARTH_DB_USER", "hearth"),
			Password:        getEnv("HEARTH_DB_PASSWORD", ""),
			Name:            getEnv("HEARTH_DB_NAME", "hearth"),
			SSLMode:         getEnv("HEARTH_DB_SSLMODE", "disable"),
			MaxOpenConns:    getEnvInt("HEARTH_DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("HEARTH_DB_MAX_IDLE_CONNS", 10),
			ConnMaxLifetime: getEnvInt("HEARTH_DB_CONN_MAX_LIFETIME", 300),
			ConnMaxIdleTime: getEnvInt("HEARTH_DB_CONN_MAX_IDLE_TIME", 60),
		},
		Server: ServerConfig{
			Port:               getEnv("HEARTH_SERVER_PORT", "8080"),
			ReadTimeout:        getEnvInt("HEARTH_SERVER_READ_TIMEOUT", 30),
			WriteTimeout:       getEnvInt("HEARTH_SERVER_WRITE_TIMEOUT", 30),
			IdleTimeout:        getEnvInt("HEARTH_SERVER_IDLE_TIMEOUT", 60),
			CORSAllowedOrigins: getEnvSlice("HEARTH_SERVER_CORS_ORIGINS", []string{"*"}),
		},
		Redis: RedisConfig{
			Address:      getEnv("HEARTH_REDIS_ADDRESS", "localhost:6379"),
			Password:     getEnv("HEARTH_REDIS_PASSWORD", ""),
			DB:           getEnvInt("HEARTH_REDIS_DB", 0),
			PoolSize:     getEnvInt("HEARTH_REDIS_POOL_SIZE", 10),
			MinIdleConns: getEnvInt("HEARTH_REDIS_MIN_IDLE_CONNS", 5),
			DialTimeout:  getEnvDuration("HEARTH_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getEnvDuration("HEARTH_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getEnvDuration("HEARTH_REDIS_WRITE_TIMEOUT", 3*time.Second),
			LockTTL:      getEnvDuration("HEARTH_REDIS_LOCK_TTL", 30*time.Second),
			KeyPrefix:    getEnv("HEARTH_REDIS_KEY_PREFIX", "hearth:"),
		},
		Kafka: KafkaConfig{
			Brokers: getEnvSlice("HEARTH_KAFKA_BROKERS", []string{"localhost:9092"}),
		},
		JWT: JWTConfig{
			Secret:     getEnv("HEARTH_JWT_SECRET", ""),
			AccessTTL:  getEnvDuration("HEARTH_JWT_ACCESS_TTL", 1*time.Hour),
			RefreshTTL: getEnvDuration("HEARTH_JWT_REFRESH_TTL", 7*24*time.Hour),
		},
		Stripe: StripeConfig{
			SecretKey:     getEnv("HEARTH_STRIPE_SECRET_KEY", ""),
			WebhookSecret: getEnv("HEARTH_STRIPE_WEBHOOK_SECRET", ""),
			BaseURL:       getEnv("HEARTH_STRIPE_BASE_URL", "https://api.stripe.com"),
			Provider:      getEnv("HEARTH_PAYMENTS_PROVIDER", "stripe"),
			Currency:      getEnv("HEARTH_PAYMENTS_CURRENCY", "usd"),
			Timeout:       getEnvDuration("HEARTH_STRIPE_TIMEOUT", 5*time.Second),
		},
		Gateway: GatewayConfig{
			Port:               getEnv("HEARTH_GATEWAY_PORT", "8000"),
			PropertyServiceURL: getEnv("HEARTH_GATEWAY_PROPERTY_URL", "http://localhost:8081"),
			UserServiceURL:     getEnv("HEARTH_GATEWAY_USER_URL", "http://localhost:8082"),
			ContactServiceURL:  getEnv("HEARTH_GATEWAY_CONTACT_URL", "http://localhost:8083"),
			AnalyticsURL:       getEnv("HEARTH_GATEWAY_ANALYTICS_URL", "http://localhost:8084"),
			TransactionURL:     getEnv("HEARTH_GATEWAY_TRANSACTION_URL", "http://localhost:8080"),
			RateLimit:          getEnvInt64("HEARTH_GATEWAY_RATE_LIMIT", 100),
			RateWindow:         getEnvDuration("HEARTH_GATEWAY_RATE_WINDOW", 1*time.Minute),
			ClaimsCacheSize:    getEnvInt("HEARTH_GATEWAY_CLAIMS_CACHE_SIZE", 10000),
			ClaimsCacheTTL:     getEnvDuration("HEARTH_GATEWAY_CLAIMS_CACHE_TTL", 1*time.Minute),
		},
		Observability: &ObservabilityConfig{
			ServiceName: "Hearth",
			Environment: getEnv("HEARTH_ENV", "development"),
			Logging: LoggingConfig{
				Level:              getEnv("HEARTH_LOG_LEVEL", "debug"),
				Format:             getEnv("HEARTH_LOG_FORMAT", "console"),
				SlowQueryThreshold: getEnvDuration("HEARTH_LOG_SLOW_QUERY_THRESHOLD", 100*time.Millisecond),
			},
			NewRelic: NewRelicConfig{
				LicenseKey:                getEnv("HEARTH_NEWRELIC_LICENSE_KEY", ""),
				AppLogForwardingEnabled:   getEnvBool("HEARTH_NEWRELIC_LOG_FORWARDING", true),
				DistributedTracingEnabled: getEnvBool("HEARTH_NEWRELIC_DISTRIBUTED_TRACING", true),
				DebugLogging:              getEnvBool("HEARTH_NEWRELIC_DEBUG", false),
			},
			HealthChecks: HealthChecksConfig{
				Enabled:  getEnvBool("HEARTH_HEALTHCHECK_ENABLED", true),
				Interval: getEnvDuration("HEARTH_HEALTHCHECK_INTERVAL", 30*time.Second),
				Timeout:  getEnvDuration("HEARTH_HEALTHCHECK_TIMEOUT", 5*time.Second),
				Checks:   getEnvSlice("HEARTH_HEALTHCHECK_CHECKS", []string{"database", "redis"}),
			},
		},
	}

	// Validate required fields
	if cfg.Database.Host == "" {
		return nil, fmt.Errorf("HEARTH_DB_HOST is required")
	}
	if cfg.Database.Name == "" {
		return nil, fmt.Errorf("HEARTH_DB_NAME is required")
	}
	if cfg.JWT.Secret == "" && cfg.Primary.Env == "production" {
		return nil, fmt.Errorf("HEARTH_JWT_SECRET is required in production")
	}

	return cfg, nil
}
