// Package config loads service configuration from the environment once at
// startup. The resulting struct is passed down explicitly; nothing in this
// codebase reads configuration from package globals.
package config

import (
	"fmt"
	"os"
)

type Config struct {
	Addr          string
	DatabaseDSN   string
	RedisAddr     string
	JWTSecret     string
	WalletBaseURL string
	SMSBaseURL    string
	MailBaseURL   string
	PublicBaseURL string
	LogLevel      string
}

func Load() (*Config, error) {
	cfg := &Config{
		Addr:          getenv("ADDR", ":8080"),
		DatabaseDSN:   os.Getenv("DB_DSN"),
		RedisAddr:     getenv("REDIS_ADDR", "localhost:6379"),
		JWTSecret:     os.Getenv("JWT_SECRET"),
		WalletBaseURL: os.Getenv("WALLET_SERVICE_URL"),
		SMSBaseURL:    os.Getenv("SMS_SERVICE_URL"),
		MailBaseURL:   os.Getenv("MAIL_SERVICE_URL"),
		PublicBaseURL: getenv("PUBLIC_BASE_URL", "http://localhost:8080"),
		LogLevel:      getenv("LOG_LEVEL", "info"),
	}

	if cfg.DatabaseDSN == "" {
		return nil, fmt.Errorf("DB_DSN is not set")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is not set")
	}
	return cfg, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
