package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration values.
type Config struct {
	Secret      string
	DatabaseDSN string
	HTTPPort    string
	Env         string
	LogLevel    string
	SeedFile    string
	SeedItems   string
	BackupDir   string
	Sync        SyncConfig
	Redis       RedisConfig
	Admin       AdminConfig
}

// SyncConfig points at the remote bulk sync endpoint.
type SyncConfig struct {
	BackendURL string
	APIKey     string
	Timeout    time.Duration
	RateLimit  string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// AdminConfig is the bootstrap account created on first start.
type AdminConfig struct {
	Username string
	Password string
	FullName string
}

// Load reads configuration from an optional .env file and the environment,
// falling back to defaults suitable for a single device install.
func Load() Config {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, using environment variables")
	}

	port := getEnv("HTTP_PORT", "8080")
	// Validate that port is numeric.
	if _, err := strconv.Atoi(port); err != nil {
		log.Printf("invalid HTTP_PORT value %q, defaulting to 8080", port)
		port = "8080"
	}

	return Config{
		Secret:      getEnv("SECRET", "dev_secret"),
		DatabaseDSN: getEnv("DATABASE_DSN", "partflow.db"),
		HTTPPort:    port,
		Env:         getEnv("APP_ENV", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		SeedFile:    getEnv("SEED_FILE", ""),
		SeedItems:   getEnv("SEED_ITEMS_CSV", ""),
		BackupDir:   getEnv("BACKUP_DIR", "backups"),
		Sync: SyncConfig{
			BackendURL: getEnv("SYNC_BACKEND_URL", "http://localhost:5000"),
			APIKey:     getEnv("SYNC_API_KEY", ""),
			Timeout:    getEnvAsDuration("SYNC_TIMEOUT", 30*time.Second),
			RateLimit:  getEnv("SYNC_RATE_LIMIT", "10-M"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Admin: AdminConfig{
			Username: getEnv("ADMIN_USERNAME", "admin"),
			Password: getEnv("ADMIN_PASSWORD", "admin123"),
			FullName: getEnv("ADMIN_FULL_NAME", "Administrator"),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, err := time.ParseDuration(getEnv(key, "")); err == nil {
		return value
	}
	return defaultValue
}
