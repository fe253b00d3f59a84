// Package config loads server configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Config is everything the server binary needs to start.
type Config struct {
	HTTPAddr string

	DatabaseURL string

	RedisAddr     string
	RedisPassword string

	KafkaBrokers  []string
	AuditTopic    string
	RelayInterval time.Duration

	TokenSecret   string
	TokenLifetime time.Duration

	LogLevel string
}

// Load reads the environment, applying defaults for everything except the
// secrets and endpoints that have no safe default.
func Load() (*Config, error) {
	cfg := &Config{
		HTTPAddr:      envOr("COMITIA_HTTP_ADDR", ":8080"),
		DatabaseURL:   os.Getenv("COMITIA_DATABASE_URL"),
		RedisAddr:     envOr("COMITIA_REDIS_ADDR", ""),
		RedisPassword: os.Getenv("COMITIA_REDIS_PASSWORD"),
		AuditTopic:    envOr("COMITIA_AUDIT_TOPIC", "comitia.audit.events"),
		TokenSecret:   os.Getenv("COMITIA_TOKEN_SECRET"),
		LogLevel:      envOr("COMITIA_LOG_LEVEL", "info"),
	}

	if brokers := os.Getenv("COMITIA_KAFKA_BROKERS"); brokers != "" {
		for _, b := range strings.Split(brokers, ",") {
			if b = strings.TrimSpace(b); b != "" {
				cfg.KafkaBrokers = append(cfg.KafkaBrokers, b)
			}
		}
	}

	var err error
	if cfg.RelayInterval, err = durationOr("COMITIA_RELAY_INTERVAL", 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.TokenLifetime, err = durationOr("COMITIA_TOKEN_LIFETIME", time.Hour); err != nil {
		return nil, err
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("COMITIA_DATABASE_URL is required")
	}
	if len(cfg.TokenSecret) < 32 {
		return nil, fmt.Errorf("COMITIA_TOKEN_SECRET must be at least 32 bytes")
	}
	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func durationOr(key string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
