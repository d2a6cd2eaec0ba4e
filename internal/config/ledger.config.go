package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type AppConfig struct {
	HTTPAddr     string
	GRPCAddr     string
	RedisPass    string
	RedisAddr    string
	KafkaBrokers []string
	KafkaTopic   string

	// postgres | memory
	StoreBackend string

	// file | redis
	CacheBackend   string
	CacheFile      string
	CacheKey       string
	CacheFreshness time.Duration

	OpTimeout time.Duration

	JWTSecret string
	JWTIssuer string
	JWTTTL    time.Duration
	AdminKey  string

	LoginRateLimit  int
	LoginRateWindow time.Duration
	LoginBlockFor   time.Duration
}

func Load() AppConfig {
	return AppConfig{
		HTTPAddr:     getEnv("HTTP_ADDR", ":8031"),
		GRPCAddr:     getEnv("GRPC_ADDR", ":8032"),
		RedisAddr:    getEnv("REDIS_ADDR", "redis:6379"),
		RedisPass:    getEnv("REDIS_PASS", ""),
		KafkaBrokers: getEnvSlice("KAFKA_BROKERS", []string{"kafka:9092"}),
		KafkaTopic:   getEnv("KAFKA_TOPIC", "ledger.events"),

		StoreBackend: getEnv("STORE_BACKEND", "postgres"),

		CacheBackend:   getEnv("CACHE_BACKEND", "file"),
		CacheFile:      getEnv("CACHE_FILE", "cache.json"),
		CacheKey:       getEnv("CACHE_KEY", "ledger:cache:snapshot"),
		CacheFreshness: getEnvAsDuration("CACHE_FRESHNESS", 30*time.Minute),

		OpTimeout: getEnvAsDuration("OP_TIMEOUT", 5*time.Second),

		JWTSecret: getEnv("JWT_SECRET", "change-me"),
		JWTIssuer: getEnv("JWT_ISSUER", "ledger-service"),
		JWTTTL:    getEnvAsDuration("JWT_TTL", 24*time.Hour),
		AdminKey:  getEnv("ADMIN_KEY", ""),

		LoginRateLimit:  getEnvAsInt("LOGIN_RATE_LIMIT", 5),
		LoginRateWindow: getEnvAsDuration("LOGIN_RATE_WINDOW", time.Minute),
		LoginBlockFor:   getEnvAsDuration("LOGIN_BLOCK_FOR", 15*time.Minute),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

// getEnvAsDuration accepts Go duration strings ("30m") or plain seconds.
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}
