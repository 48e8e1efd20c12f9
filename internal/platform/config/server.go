package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// ServerConfig is the process configuration of cmd/api.
type ServerConfig struct {
	Port string

	// AuthMode is "jwt" (default) or "dev" (X-Debug-Subject, local only).
	AuthMode   string
	DevSubject string
	DevIssuer  string

	// StorageBackend is "memory" (default), "postgres" or "firestore".
	StorageBackend     string
	DatabaseURL        string
	DatabaseMaxConns   int
	MigrateOnStart     bool
	FirestoreProjectID string
	FirestoreProfiles  string

	// IdempotencyBackend is "memory" (default), "postgres" or "redis".
	IdempotencyBackend string
	IdempotencyTTL     time.Duration
	RedisAddr          string
	RedisPassword      string
	RedisDB            int

	LogLevel  string
	LogFormat string
}

// LoadServerConfig reads the environment after loading a .env file, if present.
func LoadServerConfig() ServerConfig {
	_ = godotenv.Load()
	return ServerConfig{
		Port:               getenv("PORT", "8080"),
		AuthMode:           getenv("AUTH_MODE", "jwt"),
		DevSubject:         getenv("DEV_SUBJECT", "dev|local"),
		DevIssuer:          getenv("DEV_ISSUER", "dev"),
		StorageBackend:     getenv("STORAGE_BACKEND", "memory"),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		DatabaseMaxConns:   getenvInt("DATABASE_MAX_CONNS", 0),
		MigrateOnStart:     getenvBool("MIGRATE_ON_START", true),
		FirestoreProjectID: os.Getenv("FIRESTORE_PROJECT_ID"),
		FirestoreProfiles:  getenv("FIRESTORE_COLLECTION", "profiles"),
		IdempotencyBackend: getenv("IDEMPOTENCY_BACKEND", "memory"),
		IdempotencyTTL:     getenvDuration("IDEMPOTENCY_TTL", 24*time.Hour),
		RedisAddr:          getenv("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword:      os.Getenv("REDIS_PASSWORD"),
		RedisDB:            getenvInt("REDIS_DB", 0),
		LogLevel:           getenv("LOG_LEVEL", "info"),
		LogFormat:          getenv("LOG_FORMAT", "json"),
	}
}

func getenv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if parsed, err := time.ParseDuration(val); err == nil {
			return parsed
		}
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return fallback
}

func getenvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseBool(val); err == nil {
			return parsed
		}
	}
	return fallback
}
