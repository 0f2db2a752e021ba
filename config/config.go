package config

import (
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the settings shared by the enricher binaries. Values come from
// the environment, optionally seeded by LoadEnv.
type Config struct {
	AppEnv   string
	LogLevel string

	OpensearchEndpoint string
	OpensearchUser     string
	OpensearchPassword string
	EnrichIndex        string
	MaxItemsBulk       int

	SortinghatEnabled bool
	IdentityCacheTTL  time.Duration

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	ValkeyAddress  string
	ValkeyPassword string
	ValkeyTLS      bool

	KafkaBroker  string
	KafkaGroupID string
	KafkaTopic   string
}

func Load() Config {
	return Config{
		AppEnv:   getEnv("APP_ENV", "dev"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		OpensearchEndpoint: getEnv("OPENSEARCH_ENDPOINT", "http://localhost:9200"),
		OpensearchUser:     getEnv("OPENSEARCH_USER", "admin"),
		OpensearchPassword: getEnv("OPENSEARCH_PASSWORD", ""),
		EnrichIndex:        getEnv("ENRICH_INDEX", "stackexchange"),
		MaxItemsBulk:       getEnvInt("MAX_ITEMS_BULK", 100),

		SortinghatEnabled: getEnvBool("SORTINGHAT_ENABLED", true),
		IdentityCacheTTL:  getEnvDuration("IDENTITY_CACHE_TTL", 24*time.Hour),

		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "sortinghat"),
		DBPassword: getEnv("DB_PASSWORD", ""),
		DBName:     getEnv("DB_NAME", "sortinghat"),

		ValkeyAddress:  getEnv("VALKEY_INIT_ADDRESS", ""),
		ValkeyPassword: getEnv("VALKEY_PASSWORD", ""),
		ValkeyTLS:      getEnvBool("VALKEY_TLS", false),

		KafkaBroker:  getEnv("KAFKA_BROKER", "localhost:29092"),
		KafkaGroupID: getEnv("KAFKA_CONSUMER_GROUP_ID", "stackenrich-consumer-group"),
		KafkaTopic:   getEnv("KAFKA_CONSUMER_TOPIC", "stackexchange-raw"),
	}
}

// DSN returns the PostgreSQL connection string for the identity store.
func (c Config) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.DBUser, c.DBPassword),
		Host:     net.JoinHostPort(c.DBHost, c.DBPort),
		Path:     "/" + c.DBName,
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

// IsProd reports whether the OpenSearch domain should be reached through
// AWS request signing.
func (c Config) IsProd() bool {
	return c.AppEnv == "prod"
}

func getEnv(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(strings.TrimSpace(value)); err == nil {
			return d
		}
	}
	return defaultValue
}
