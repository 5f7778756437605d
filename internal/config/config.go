package config

import (
	"errors"
	"os"
	"strconv"
	"time"
)

// defaultJWTSecret keeps local development working without any environment
// setup. Validate rejects it outside development.
const defaultJWTSecret = "default-secret-key"

type Config struct {
	HTTPAddr             string
	Environment          string
	MongoURL             string
	MongoDatabase        string
	JWTSecret            string
	JWTIssuer            string
	SessionTTL           time.Duration
	SingleActiveSession  bool
	SessionSweepInterval time.Duration
	RedisAddr            string
	RedisPassword        string
}

func Load() Config {
	return Config{
		HTTPAddr:             getenv("HTTP_ADDR", ":8084"),
		Environment:          getenv("APP_ENV", "development"),
		MongoURL:             getenv("MONGODB_URL", "mongodb://127.0.0.1:27017"),
		MongoDatabase:        getenv("MONGODB_DB", "kairos"),
		JWTSecret:            getenv("JWT_SECRET", defaultJWTSecret),
		JWTIssuer:            getenv("JWT_ISSUER", "kairos-server"),
		SessionTTL:           getenvDuration("SESSION_TTL", 24*time.Hour),
		SingleActiveSession:  getenvBool("SINGLE_ACTIVE_SESSION", true),
		SessionSweepInterval: getenvDuration("SESSION_SWEEP_INTERVAL", time.Hour),
		RedisAddr:            getenv("REDIS_ADDR", ""),
		RedisPassword:        getenv("REDIS_PASSWORD", ""),
	}
}

// Validate rejects configurations that must never reach production, most
// importantly the fallback signing secret.
func (c Config) Validate() error {
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET must not be empty")
	}
	if c.Environment == "production" && c.JWTSecret == defaultJWTSecret {
		return errors.New("JWT_SECRET must be set in production")
	}
	if c.SessionTTL <= 0 {
		return errors.New("SESSION_TTL must be positive")
	}
	return nil
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
	if val := os.Getenv(key + "_SECONDS"); val != "" {
		if seconds, err := strconv.Atoi(val); err == nil {
			return time.Duration(seconds) * time.Second
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
