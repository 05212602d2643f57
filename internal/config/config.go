package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config carries everything the process needs at startup. It is loaded once
// in main and passed down explicitly; nothing else reads the environment.
type Config struct {
	Port        string
	DatabaseURL string

	DBHost     string
	DBUser     string
	DBPassword string
	DBName     string
	DBPort     string

	JWTSecret string

	PaystackSecretKey string
	PaystackBaseURL   string
	GatewayTimeout    time.Duration

	// PlatformFeePercent is the commission taken on every release, 0-100.
	PlatformFeePercent float64

	ResendAPIKey string
	FromEmail    string
}

// Load reads .env (when present) and the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, using environment variables")
	}

	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		DBHost:      os.Getenv("DB_HOST"),
		DBUser:      os.Getenv("DB_USER"),
		DBPassword:  os.Getenv("DB_PASSWORD"),
		DBName:      os.Getenv("DB_NAME"),
		DBPort:      os.Getenv("DB_PORT"),

		JWTSecret: os.Getenv("JWT_SECRET"),

		PaystackSecretKey: os.Getenv("PAYSTACK_SECRET_KEY"),
		PaystackBaseURL:   getEnv("PAYSTACK_BASE_URL", "https://api.paystack.co"),

		ResendAPIKey: os.Getenv("RESEND_API_KEY"),
		FromEmail:    os.Getenv("FROM_EMAIL"),
	}

	feeRaw := getEnv("PLATFORM_FEE_PERCENT", "8")
	fee, err := strconv.ParseFloat(strings.TrimSpace(feeRaw), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid PLATFORM_FEE_PERCENT %q: %w", feeRaw, err)
	}
	if fee < 0 || fee > 100 {
		return nil, fmt.Errorf("PLATFORM_FEE_PERCENT must be between 0 and 100, got %v", fee)
	}
	cfg.PlatformFeePercent = fee

	timeoutRaw := getEnv("GATEWAY_TIMEOUT_SECONDS", "15")
	seconds, err := strconv.Atoi(strings.TrimSpace(timeoutRaw))
	if err != nil || seconds <= 0 {
		return nil, fmt.Errorf("invalid GATEWAY_TIMEOUT_SECONDS %q", timeoutRaw)
	}
	cfg.GatewayTimeout = time.Duration(seconds) * time.Second

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	return cfg, nil
}

// DSN builds the postgres connection string, preferring DATABASE_URL.
func (c *Config) DSN() (string, error) {
	if c.DatabaseURL != "" {
		log.Println("Using DATABASE_URL")
		return c.DatabaseURL, nil
	}
	if c.DBHost == "" || c.DBUser == "" || c.DBPassword == "" || c.DBName == "" || c.DBPort == "" {
		return "", fmt.Errorf("database configuration not provided: either set DATABASE_URL or all of DB_HOST, DB_USER, DB_PASSWORD, DB_NAME, and DB_PORT")
	}
	log.Println("Using individual database environment variables")
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC",
		c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort,
	), nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
