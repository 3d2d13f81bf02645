package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Kafka    KafkaConfig
	Redis    RedisConfig
	Sync     SyncConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port string
	Host string
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// KafkaConfig holds Kafka/Redpanda configuration
type KafkaConfig struct {
	Brokers          []string
	ReplicationTopic string
	SyncRequestTopic string
	ConsumerGroup    string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// SyncConfig holds sync windowing and scheduling configuration
type SyncConfig struct {
	// FirstSyncWindow is the trailing window fetched on a connection's very
	// first sync.
	FirstSyncWindow time.Duration
	// ResyncOverlap is refetched before the last success on incremental runs.
	ResyncOverlap time.Duration
	// FetchTimeout bounds each broker API request.
	FetchTimeout time.Duration
	// StatsCacheTTL bounds the cached account aggregates.
	StatsCacheTTL time.Duration
	// Schedule is the cron spec driving periodic syncs of all connections.
	Schedule string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8082"),
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "postgres"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "trader"),
			Password: getEnv("DB_PASSWORD", "trader5"),
			DBName:   getEnv("DB_NAME", "trading_platform"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Kafka: KafkaConfig{
			Brokers:          parseBrokers(getEnv("KAFKA_BROKERS", "localhost:19092")),
			ReplicationTopic: getEnv("KAFKA_REPLICATION_TOPIC", "trading.replication"),
			SyncRequestTopic: getEnv("KAFKA_SYNC_REQUEST_TOPIC", "trading.sync-requests"),
			ConsumerGroup:    getEnv("KAFKA_CONSUMER_GROUP", "trade-sync-service"),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Sync: SyncConfig{
			FirstSyncWindow: getEnvDuration("SYNC_FIRST_WINDOW", 30*24*time.Hour),
			ResyncOverlap:   getEnvDuration("SYNC_RESYNC_OVERLAP", 7*24*time.Hour),
			FetchTimeout:    getEnvDuration("SYNC_FETCH_TIMEOUT", 30*time.Second),
			StatsCacheTTL:   getEnvDuration("SYNC_STATS_CACHE_TTL", time.Hour),
			Schedule:        getEnv("SYNC_SCHEDULE", "@every 15m"),
		},
	}
}

// ConnectionString returns the PostgreSQL connection string
func (d *DatabaseConfig) ConnectionString() string {
	return "postgres://" + d.User + ":" + d.Password + "@" + d.Host + ":" + d.Port + "/" + d.DBName + "?sslmode=" + d.SSLMode
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// parseBrokers splits a comma-separated broker list
func parseBrokers(brokers string) []string {
	parts := strings.Split(brokers, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

// Address returns the Redis address in host:port format
func (r *RedisConfig) Address() string {
	return r.Host + ":" + r.Port
}
