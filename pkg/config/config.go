// Package config provides configuration management for the yar services.
// Settings load from environment variables and .env files with validation and
// defaults; command-line flags parsed in the mainlines override them. The
// resulting Config is immutable once a service has been constructed around it.
package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Default service locations, matching the documented command-line defaults.
const (
	DefaultAuthListenOn = "127.0.0.1:8000"
	DefaultKeyListenOn  = "127.0.0.1:8070"
	DefaultKeyStore     = "127.0.0.1:5984/creds"
	DefaultAppServer    = "127.0.0.1:8080"
	DefaultMaxAge       = 30
	DefaultAuthMethod   = "DAS"
	DefaultLogLevel     = "ERROR"
)

// Config holds the settings for both the auth server and the key server.
type Config struct {
	// Auth server
	AuthListenOn   string // auth server bind address (host:port)
	KeyServer      string // key server address (host:port)
	AppServer      string // protected app server address (host:port)
	MaxAge         int    // freshness window in seconds
	AuthMethod     string // app server's authorization method
	NonceStorePath string // sqlite nonce store path; empty selects the in-memory checker
	HostIfNotFound string // host used when a request carries no Host header
	PortIfNotFound string // port used when the Host header carries no port

	// Key server
	KeyListenOn string // key server bind address (host:port)
	KeyStore    string // key store location (host:port/database)

	// Logging
	LogLevel string // DEBUG, INFO, WARNING, ERROR, CRITICAL or FATAL
	LogFile  string // optional JSON log file
	Syslog   string // optional syslog unix domain socket
}

// Load reads configuration from environment variables and an optional .env
// file. Environment variables take precedence over .env entries.
func Load() (*Config, error) {
	_ = godotenv.Load()

	config := &Config{
		AuthListenOn:   getEnv("YAR_AUTH_LISTEN_ON", DefaultAuthListenOn),
		KeyServer:      getEnv("YAR_KEY_SERVER", DefaultKeyListenOn),
		AppServer:      getEnv("YAR_APP_SERVER", DefaultAppServer),
		MaxAge:         getEnvAsInt("YAR_MAXAGE", DefaultMaxAge),
		AuthMethod:     getEnv("YAR_AUTH_METHOD", DefaultAuthMethod),
		NonceStorePath: getEnv("YAR_NONCE_STORE", ""),
		HostIfNotFound: getEnv("YAR_HOST_IF_NOT_FOUND", "127.0.0.1"),
		PortIfNotFound: getEnv("YAR_PORT_IF_NOT_FOUND", "80"),

		KeyListenOn: getEnv("YAR_KEY_LISTEN_ON", DefaultKeyListenOn),
		KeyStore:    getEnv("YAR_KEY_STORE", DefaultKeyStore),

		LogLevel: getEnv("YAR_LOG_LEVEL", DefaultLogLevel),
		LogFile:  getEnv("YAR_LOG_FILE", ""),
		Syslog:   getEnv("YAR_SYSLOG", ""),
	}

	return config, config.Validate()
}

// Validate ensures the configuration values are well formed. Called again by
// the mainlines after flag overrides have been applied.
func (c *Config) Validate() error {
	for name, addr := range map[string]string{
		"auth listen address": c.AuthListenOn,
		"key listen address":  c.KeyListenOn,
		"key server address":  c.KeyServer,
		"app server address":  c.AppServer,
	} {
		if _, _, err := net.SplitHostPort(addr); err != nil {
			return fmt.Errorf("invalid %s %q: %w", name, addr, err)
		}
	}

	if c.MaxAge <= 0 {
		return fmt.Errorf("maxage must be positive, got %d", c.MaxAge)
	}

	if _, _, err := c.KeyStoreHostAndDatabase(); err != nil {
		return err
	}

	return nil
}

// KeyStoreHostAndDatabase splits the key store location into its host:port
// and database name components.
func (c *Config) KeyStoreHostAndDatabase() (string, string, error) {
	host, database, found := strings.Cut(c.KeyStore, "/")
	if !found || host == "" || database == "" {
		return "", "", fmt.Errorf("key store %q must be host:port/database", c.KeyStore)
	}
	if _, _, err := net.SplitHostPort(host); err != nil {
		return "", "", fmt.Errorf("invalid key store address %q: %w", host, err)
	}
	return host, database, nil
}

// GetMaxAge returns the freshness window as a time.Duration.
func (c *Config) GetMaxAge() time.Duration {
	return time.Duration(c.MaxAge) * time.Second
}

// getEnv retrieves an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as integer or returns a default.
func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
