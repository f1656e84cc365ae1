// Package config loads the proxy's configuration from environment variables
// with sensible defaults and validates it before the process starts serving.
//
// Environment Variables:
//
// Application Settings:
//   - PORT: HTTP listener port (default: 8080)
//   - HTTPS_PORT: HTTPS listener port; empty disables TLS (default: 8443)
//   - LOG_LEVEL: Logging level (default: info)
//   - WORKER_ID: Round-robin worker id; empty derives it from the pid
//
// Redis Configuration:
//   - REDIS_ADDRESS: Redis server address (default: localhost:6379)
//   - REDIS_PASSWORD: Redis password
//   - REDIS_DB: Redis database number 0-15 (default: 0)
//   - REDIS_POOL_SIZE: Redis connection pool size (default: 10)
package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds all configuration values for the proxy. All fields map to
// environment variables; load with Load() and check with Validate() before
// use.
type Config struct {
	Port      string // HTTP listener port
	HTTPSPort string // HTTPS listener port, empty disables the TLS listener
	LogLevel  string // Logging level (debug, info, warn, error)
	WorkerID  string // Round-robin worker id, empty falls back to the pid

	// Redis config store
	RedisAddress  string // Redis server address (host:port)
	RedisPassword string // Redis authentication password
	RedisDB       string // Redis database number (0-15)
	RedisPoolSize string // Redis connection pool size
}

// Load creates a Config from environment variables, falling back to defaults
// for anything unset. It performs no validation; call Validate() on the
// result.
func Load() *Config {
	return &Config{
		Port:      getEnv("PORT", "8080"),
		HTTPSPort: getEnv("HTTPS_PORT", "8443"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		WorkerID:  getEnv("WORKER_ID", ""),

		RedisAddress:  getEnv("REDIS_ADDRESS", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnv("REDIS_DB", "0"),
		RedisPoolSize: getEnv("REDIS_POOL_SIZE", "10"),
	}
}

// getEnv retrieves an environment variable or the default when unset or
// empty.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// Validate checks that every configured value is usable: ports are in range,
// the Redis database number and pool size parse. The process must not start
// serving with a config that fails here.
func (c *Config) Validate() error {
	if port, err := strconv.Atoi(c.Port); err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("PORT must be a valid port number between 1 and 65535")
	}

	if c.HTTPSPort != "" {
		if port, err := strconv.Atoi(c.HTTPSPort); err != nil || port < 1 || port > 65535 {
			return fmt.Errorf("HTTPS_PORT must be a valid port number between 1 and 65535")
		}
		if c.HTTPSPort == c.Port {
			return fmt.Errorf("HTTPS_PORT must differ from PORT")
		}
	}

	if c.WorkerID != "" {
		if _, err := strconv.ParseUint(c.WorkerID, 10, 64); err != nil {
			return fmt.Errorf("WORKER_ID must be a non-negative number")
		}
	}

	if c.RedisAddress == "" {
		return fmt.Errorf("REDIS_ADDRESS is required")
	}
	if db, err := strconv.Atoi(c.RedisDB); err != nil || db < 0 || db > 15 {
		return fmt.Errorf("REDIS_DB must be a number between 0 and 15")
	}
	if poolSize, err := strconv.Atoi(c.RedisPoolSize); err != nil || poolSize < 1 {
		return fmt.Errorf("REDIS_POOL_SIZE must be a positive number")
	}

	return nil
}

// RedisDBNumber returns the parsed Redis database number. Call only after
// Validate has passed.
func (c *Config) RedisDBNumber() int {
	db, _ := strconv.Atoi(c.RedisDB)
	return db
}

// RedisPoolSizeNumber returns the parsed Redis pool size. Call only after
// Validate has passed.
func (c *Config) RedisPoolSizeNumber() int {
	size, _ := strconv.Atoi(c.RedisPoolSize)
	return size
}

// WorkerIDNumber returns the parsed worker id. Call only when WorkerID is set
// and Validate has passed.
func (c *Config) WorkerIDNumber() uint64 {
	id, _ := strconv.ParseUint(c.WorkerID, 10, 64)
	return id
}
