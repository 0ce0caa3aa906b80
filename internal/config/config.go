package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kevin07696/settlement-service/pkg/timeutil"
	"github.com/shopspring/decimal"
)

// Storage backends
const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

const defaultCronSecret = "change-me-in-production"

// Config holds all application configuration
type Config struct {
	Environment  string
	Storage      string
	SeedDemoData bool // memory storage only

	Server     ServerConfig
	Database   DatabaseConfig
	Settlement SettlementConfig
	Redis      RedisConfig
	Kafka      KafkaConfig
	Secrets    SecretsConfig
	Cron       CronConfig
	RateLimit  RateLimitConfig
	Logger     LoggerConfig
}

// ServerConfig holds HTTP listener configuration
type ServerConfig struct {
	HTTPPort        int
	MetricsPort     int
	ShutdownTimeout time.Duration
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Host             string
	Port             int
	User             string
	Password         string
	Database         string
	SSLMode          string
	MaxConns         int32
	MinConns         int32
	StatementTimeout time.Duration
}

// SettlementConfig holds engine and daily batch defaults
type SettlementConfig struct {
	EngineVersion     string
	PreventDuplicates bool
	CompareWithV1     bool
	Timezone          string
	RunLockTTL        time.Duration
	CronTimeout       time.Duration

	DefaultCurrency  string
	DefaultTaxRate   decimal.Decimal
	DefaultMinPayout decimal.Decimal
	DefaultHoldDays  int
}

// RedisConfig holds the run-lock redis connection. Empty Addr selects the in-process lock.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// KafkaConfig holds settlement event publishing. No brokers disables publishing.
type KafkaConfig struct {
	Brokers         []string
	SettlementTopic string
	MaxAttempts     int
}

// SecretsConfig selects where startup secrets are read from
type SecretsConfig struct {
	Backend   string // local, aws, vault
	CacheTTL  time.Duration
	LocalPath string

	AWSRegion   string
	AWSProfile  string
	AWSEndpoint string

	VaultAddr      string
	VaultToken     string
	VaultNamespace string
	VaultMount     string
	VaultKVVersion string

	// Paths resolved at startup; empty keeps the plain env value
	DBPasswordPath string
	CronSecretPath string
}

// CronConfig holds cron endpoint authentication
type CronConfig struct {
	Secret string
}

// RateLimitConfig holds per-IP limits for the API listener
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
}

// LoggerConfig holds logging configuration
type LoggerConfig struct {
	Level       string // debug, info, warn, error
	Development bool
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() (*Config, error) {
	env := getEnv("ENVIRONMENT", "development")
	cfg := &Config{
		Environment:  env,
		Storage:      strings.ToLower(getEnv("STORAGE", StoragePostgres)),
		SeedDemoData: getEnvAsBool("SEED_DEMO_DATA", false),
		Server: ServerConfig{
			HTTPPort:        getEnvAsInt("HTTP_PORT", 8081),
			MetricsPort:     getEnvAsInt("METRICS_PORT", 9090),
			ShutdownTimeout: getEnvAsDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			Host:             getEnv("DB_HOST", "localhost"),
			Port:             getEnvAsInt("DB_PORT", 5432),
			User:             getEnv("DB_USER", "postgres"),
			Password:         getEnv("DB_PASSWORD", ""),
			Database:         getEnv("DB_NAME", "settlement_service"),
			SSLMode:          getEnv("DB_SSL_MODE", "disable"),
			MaxConns:         int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns:         int32(getEnvAsInt("DB_MIN_CONNS", 5)),
			StatementTimeout: getEnvAsDuration("DB_STATEMENT_TIMEOUT", 30*time.Second),
		},
		Settlement: SettlementConfig{
			EngineVersion:     getEnv("SETTLEMENT_ENGINE_VERSION", "v2"),
			PreventDuplicates: getEnvAsBool("SETTLEMENT_PREVENT_DUPLICATES", true),
			CompareWithV1:     getEnvAsBool("SETTLEMENT_COMPARE_WITH_V1", false),
			Timezone:          getEnv("SETTLEMENT_TIMEZONE", "UTC"),
			RunLockTTL:        getEnvAsDuration("SETTLEMENT_RUN_LOCK_TTL", 30*time.Minute),
			CronTimeout:       getEnvAsDuration("SETTLEMENT_CRON_TIMEOUT", 10*time.Minute),
			DefaultCurrency:   strings.ToUpper(getEnv("SETTLEMENT_DEFAULT_CURRENCY", "KRW")),
			DefaultTaxRate:    getEnvAsDecimal("SETTLEMENT_DEFAULT_TAX_RATE", decimal.Zero),
			DefaultMinPayout:  getEnvAsDecimal("SETTLEMENT_DEFAULT_MIN_PAYOUT", decimal.Zero),
			DefaultHoldDays:   getEnvAsInt("SETTLEMENT_DEFAULT_HOLD_DAYS", 0),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Kafka: KafkaConfig{
			Brokers:         getEnvAsList("KAFKA_BROKERS"),
			SettlementTopic: getEnv("KAFKA_SETTLEMENT_TOPIC", "settlement.created"),
			MaxAttempts:     getEnvAsInt("KAFKA_MAX_ATTEMPTS", 3),
		},
		Secrets: SecretsConfig{
			Backend:        strings.ToLower(getEnv("SECRET_MANAGER", "local")),
			CacheTTL:       getEnvAsDuration("SECRET_CACHE_TTL", 5*time.Minute),
			LocalPath:      getEnv("SECRET_LOCAL_PATH", "./secrets"),
			AWSRegion:      getEnv("AWS_REGION", "us-east-1"),
			AWSProfile:     getEnv("AWS_PROFILE", ""),
			AWSEndpoint:    getEnv("AWS_SECRETS_ENDPOINT", ""),
			VaultAddr:      getEnv("VAULT_ADDR", "http://localhost:8200"),
			VaultToken:     getEnv("VAULT_TOKEN", ""),
			VaultNamespace: getEnv("VAULT_NAMESPACE", ""),
			VaultMount:     getEnv("VAULT_MOUNT_PATH", "secret"),
			VaultKVVersion: getEnv("VAULT_KV_VERSION", "v2"),
			DBPasswordPath: getEnv("DB_PASSWORD_SECRET", ""),
			CronSecretPath: getEnv("CRON_SECRET_PATH", ""),
		},
		Cron: CronConfig{
			Secret: getEnv("CRON_SECRET", defaultCronSecret),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: getEnvAsFloat("RATE_LIMIT_RPS", 10),
			Burst:             getEnvAsInt("RATE_LIMIT_BURST", 20),
		},
		Logger: LoggerConfig{
			Level:       getEnv("LOG_LEVEL", "info"),
			Development: getEnvAsBool("LOG_DEVELOPMENT", env != "production"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required fields and value ranges
func (c *Config) Validate() error {
	switch c.Storage {
	case StorageMemory, StoragePostgres:
	default:
		return fmt.Errorf("STORAGE must be %q or %q, got %q", StorageMemory, StoragePostgres, c.Storage)
	}

	if c.Storage == StoragePostgres && c.Database.Password == "" && c.Secrets.DBPasswordPath == "" {
		return fmt.Errorf("DB_PASSWORD or DB_PASSWORD_SECRET is required")
	}

	s := c.Settlement
	if s.EngineVersion == "" {
		return fmt.Errorf("SETTLEMENT_ENGINE_VERSION is required")
	}
	if _, err := timeutil.LoadLocation(s.Timezone); err != nil {
		return fmt.Errorf("SETTLEMENT_TIMEZONE: %w", err)
	}
	if len(s.DefaultCurrency) != 3 {
		return fmt.Errorf("SETTLEMENT_DEFAULT_CURRENCY must be an ISO 4217 code, got %q", s.DefaultCurrency)
	}
	if s.DefaultTaxRate.IsNegative() || s.DefaultTaxRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return fmt.Errorf("SETTLEMENT_DEFAULT_TAX_RATE must be in [0, 1), got %s", s.DefaultTaxRate)
	}
	if s.DefaultMinPayout.IsNegative() {
		return fmt.Errorf("SETTLEMENT_DEFAULT_MIN_PAYOUT must not be negative")
	}
	if s.DefaultHoldDays < 0 {
		return fmt.Errorf("SETTLEMENT_DEFAULT_HOLD_DAYS must not be negative")
	}

	if c.Environment == "production" && (c.Cron.Secret == defaultCronSecret && c.Secrets.CronSecretPath == "") {
		return fmt.Errorf("CRON_SECRET or CRON_SECRET_PATH is required in production")
	}

	return nil
}

// Location returns the settlement day-boundary location
func (s *SettlementConfig) Location() *time.Location {
	loc, err := timeutil.LoadLocation(s.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ConnectionString returns the PostgreSQL connection URL
func (c *DatabaseConfig) ConnectionString() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     c.Database,
		RawQuery: "sslmode=" + url.QueryEscape(c.SSLMode),
	}
	return u.String()
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDecimal(key string, defaultValue decimal.Decimal) decimal.Decimal {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := decimal.NewFromString(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsList splits a comma-separated value, dropping blanks
func getEnvAsList(key string) []string {
	var values []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			values = append(values, part)
		}
	}
	return values
}
