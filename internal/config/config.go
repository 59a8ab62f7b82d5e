package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	// Server
	Port string
	Env  string

	// Database
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// Auth: the single-owner access key exchanged for a JWT
	AccessKey        string
	JWTSecret        string
	JWTExpirationDur time.Duration

	// Engine: how long a mutation waits for its (account, security) lock
	// before giving up with a retryable contention error.
	LockTimeout time.Duration
}

var appConfig *Config

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if not already loaded
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found")
	}

	config := &Config{
		// Server
		Port: getEnv("PORT", "8080"),
		Env:  getEnv("ENV", "development"),

		// Database
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "lotkeeper"),
		DBPassword: getEnv("DB_PASSWORD", "lotkeeper"),
		DBName:     getEnv("DB_NAME", "lotkeeper"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),

		// Auth
		AccessKey:        getEnv("ACCESS_KEY", "dev-access-key"),
		JWTSecret:        getEnv("JWT_SECRET", "dev-secret-change-me"),
		JWTExpirationDur: getDurationEnv("JWT_EXPIRATION", 24*time.Hour),

		// Engine
		LockTimeout: getDurationEnv("LOCK_TIMEOUT", 3*time.Second),
	}

	appConfig = config
	return config, nil
}

// Get returns the loaded configuration, loading it first if necessary.
func Get() *Config {
	if appConfig == nil {
		if _, err := Load(); err != nil {
			log.Fatalf("failed to load configuration: %v", err)
		}
	}
	return appConfig
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// getDurationEnv parses a duration env var, accepting Go duration strings
// ("30s", "5m") or a plain number of seconds.
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	log.Printf("Warning: invalid duration for %s: %q, using default", key, value)
	return defaultValue
}
