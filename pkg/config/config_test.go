package config

import (
	"os"
	"testing"
	"time"
)

// Helper function to clear all environment variables used by the config
func clearConfigEnv() {
	envVars := []string{
		"YAR_AUTH_LISTEN_ON", "YAR_KEY_SERVER", "YAR_APP_SERVER", "YAR_MAXAGE",
		"YAR_AUTH_METHOD", "YAR_NONCE_STORE", "YAR_HOST_IF_NOT_FOUND",
		"YAR_PORT_IF_NOT_FOUND", "YAR_KEY_LISTEN_ON", "YAR_KEY_STORE",
		"YAR_LOG_LEVEL", "YAR_LOG_FILE", "YAR_SYSLOG",
	}
	for _, envVar := range envVars {
		os.Unsetenv(envVar)
	}
}

func TestConfig_Load_WithDefaults(t *testing.T) {
	clearConfigEnv()
	defer clearConfigEnv()

	config, err := Load()
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if config.AuthListenOn != "127.0.0.1:8000" {
		t.Errorf("Expected AuthListenOn '127.0.0.1:8000', got '%s'", config.AuthListenOn)
	}

	if config.KeyListenOn != "127.0.0.1:8070" {
		t.Errorf("Expected KeyListenOn '127.0.0.1:8070', got '%s'", config.KeyListenOn)
	}

	if config.KeyStore != "127.0.0.1:5984/creds" {
		t.Errorf("Expected KeyStore '127.0.0.1:5984/creds', got '%s'", config.KeyStore)
	}

	if config.MaxAge != 30 {
		t.Errorf("Expected MaxAge 30, got %d", config.MaxAge)
	}

	if config.AuthMethod != "DAS" {
		t.Errorf("Expected AuthMethod 'DAS', got '%s'", config.AuthMethod)
	}

	if config.LogLevel != "ERROR" {
		t.Errorf("Expected LogLevel 'ERROR', got '%s'", config.LogLevel)
	}

	if config.GetMaxAge() != 30*time.Second {
		t.Errorf("Expected GetMaxAge 30s, got %v", config.GetMaxAge())
	}
}

func TestConfig_Load_WithEnvironmentOverrides(t *testing.T) {
	clearConfigEnv()
	defer clearConfigEnv()

	os.Setenv("YAR_AUTH_LISTEN_ON", "0.0.0.0:9000")
	os.Setenv("YAR_MAXAGE", "300")
	os.Setenv("YAR_KEY_STORE", "couch.internal:5984/yar_creds")

	config, err := Load()
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if config.AuthListenOn != "0.0.0.0:9000" {
		t.Errorf("Expected AuthListenOn '0.0.0.0:9000', got '%s'", config.AuthListenOn)
	}

	if config.MaxAge != 300 {
		t.Errorf("Expected MaxAge 300, got %d", config.MaxAge)
	}

	host, database, err := config.KeyStoreHostAndDatabase()
	if err != nil {
		t.Fatalf("Failed to split key store: %v", err)
	}
	if host != "couch.internal:5984" {
		t.Errorf("Expected host 'couch.internal:5984', got '%s'", host)
	}
	if database != "yar_creds" {
		t.Errorf("Expected database 'yar_creds', got '%s'", database)
	}
}

func TestConfig_Validate_Rejects(t *testing.T) {
	clearConfigEnv()
	defer clearConfigEnv()

	cases := map[string]func(*Config){
		"BadListenAddress": func(c *Config) { c.AuthListenOn = "no-port" },
		"ZeroMaxAge":       func(c *Config) { c.MaxAge = 0 },
		"NegativeMaxAge":   func(c *Config) { c.MaxAge = -1 },
		"KeyStoreNoDB":     func(c *Config) { c.KeyStore = "127.0.0.1:5984" },
		"KeyStoreNoPort":   func(c *Config) { c.KeyStore = "127.0.0.1/creds" },
	}

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			config, err := Load()
			if err != nil {
				t.Fatalf("Failed to load config: %v", err)
			}
			mutate(config)
			if err := config.Validate(); err == nil {
				t.Error("Expected validation error, got nil")
			}
		})
	}
}
