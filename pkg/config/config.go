// Package config reads service settings from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

type Config struct {
	Env      string
	Port     string
	LogLevel string

	Database DatabaseSettings
	Market   MarketSettings
	Auth     AuthSettings
	CORS     CORSSettings
	TLS      TLSSettings
	Email    EmailSettings

	KeeperSchedule string
	EnableFaucet   bool
	MetricsEnabled bool
}

// DatabaseSettings configure the Postgres pool. An empty URL selects in-memory storage.
type DatabaseSettings struct {
	URL             string
	MaxConns        int
	MinConns        int
	MaxConnIdleTime time.Duration
	ApplySchema     bool
	SchemaPath      string
}

type MarketSettings struct {
	Admin              common.Address
	Operator           common.Address
	Keeper             common.Address
	DefaultFeeBps      uint32
	MinAuctionDuration time.Duration
	MinOfferDuration   time.Duration
}

type AuthSettings struct {
	MaxSkew time.Duration
}

type CORSSettings struct {
	AllowedOrigins   []string
	AllowCredentials bool
}

// TLSSettings holds environment-driven TLS configuration.
type TLSSettings struct {
	EnableTLS       bool
	CertPath        string
	KeyPath         string
	AllowSelfSigned bool
}

type EmailSettings struct {
	SendGridAPIKey string
	SenderEmail    string
	SenderName     string
	AlertRecipient string
}

// Load reads the configuration from environment variables.
func Load() Config {
	env := strings.ToLower(strings.TrimSpace(os.Getenv("APP_ENV")))
	if env == "" {
		env = strings.ToLower(strings.TrimSpace(os.Getenv("ENV")))
	}
	if env == "" {
		env = "development"
	}

	enableTLS := strings.EqualFold(os.Getenv("ENABLE_TLS"), "true")
	if env == "production" {
		enableTLS = true
	}

	admin := getEnvAsAddress("ADMIN_ADDRESS")
	operator := getEnvAsAddress("OPERATOR_ADDRESS")
	keeper := getEnvAsAddress("KEEPER_ADDRESS")
	if keeper == (common.Address{}) {
		keeper = operator
	}

	cfg := Config{
		Env:      env,
		Port:     os.Getenv("SERVER_PORT"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		Database: DatabaseSettings{
			URL:             os.Getenv("DATABASE_URL"),
			MaxConns:        getEnvAsInt("DB_MAX_CONNS", 10),
			MinConns:        getEnvAsInt("DB_MIN_CONNS", 2),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 5*time.Minute),
			ApplySchema:     !strings.EqualFold(os.Getenv("APPLY_SCHEMA_ON_START"), "false"),
			SchemaPath:      os.Getenv("SCHEMA_PATH"),
		},
		Market: MarketSettings{
			Admin:              admin,
			Operator:           operator,
			Keeper:             keeper,
			DefaultFeeBps:      uint32(getEnvAsInt("DEFAULT_FEE_BPS", 250)),
			MinAuctionDuration: getEnvAsDuration("MIN_AUCTION_DURATION", time.Hour),
			MinOfferDuration:   getEnvAsDuration("MIN_OFFER_DURATION", time.Hour),
		},
		Auth: AuthSettings{
			MaxSkew: getEnvAsDuration("AUTH_MAX_SKEW", 5*time.Minute),
		},
		CORS: CORSSettings{
			AllowedOrigins:   splitOrigins(os.Getenv("CORS_ALLOWED_ORIGINS")),
			AllowCredentials: strings.EqualFold(os.Getenv("CORS_ALLOW_CREDENTIALS"), "true"),
		},
		TLS: TLSSettings{
			EnableTLS:       enableTLS,
			CertPath:        os.Getenv("TLS_CERT_PATH"),
			KeyPath:         os.Getenv("TLS_KEY_PATH"),
			AllowSelfSigned: !strings.EqualFold(os.Getenv("TLS_SELF_SIGNED"), "false"),
		},
		Email: EmailSettings{
			SendGridAPIKey: os.Getenv("SENDGRID_API_KEY"),
			SenderEmail:    os.Getenv("SENDGRID_SENDER_EMAIL"),
			SenderName:     os.Getenv("SENDGRID_SENDER_NAME"),
			AlertRecipient: os.Getenv("ALERT_EMAIL"),
		},
		KeeperSchedule: getEnv("KEEPER_SCHEDULE", "@every 1m"),
		EnableFaucet:   strings.EqualFold(os.Getenv("ENABLE_FAUCET"), "true"),
		MetricsEnabled: !strings.EqualFold(os.Getenv("METRICS_ENABLED"), "false"),
	}

	if cfg.Port == "" {
		if cfg.TLS.EnableTLS {
			cfg.Port = "8443"
		} else {
			cfg.Port = "8080"
		}
	}
	return cfg
}

// Validate ensures the settings are usable for the selected environment.
func (c Config) Validate() error {
	if c.Market.Admin == (common.Address{}) {
		return fmt.Errorf("ADMIN_ADDRESS must be a valid non-zero address")
	}
	if c.Market.Operator == (common.Address{}) {
		return fmt.Errorf("OPERATOR_ADDRESS must be a valid non-zero address")
	}
	if c.Market.DefaultFeeBps > 1000 {
		return fmt.Errorf("DEFAULT_FEE_BPS must be at most 1000, got %d", c.Market.DefaultFeeBps)
	}
	if c.Market.MinAuctionDuration <= 0 || c.Market.MinOfferDuration <= 0 {
		return fmt.Errorf("minimum auction and offer durations must be positive")
	}
	if c.Env == "production" {
		if !c.TLS.EnableTLS {
			return fmt.Errorf("TLS must be enabled in production")
		}
		if c.TLS.CertPath == "" || c.TLS.KeyPath == "" {
			return fmt.Errorf("TLS_CERT_PATH and TLS_KEY_PATH are required in production")
		}
		if c.Database.URL == "" {
			return fmt.Errorf("DATABASE_URL is required in production")
		}
		if c.EnableFaucet {
			return fmt.Errorf("ENABLE_FAUCET must be off in production")
		}
	}
	return nil
}

// MemoryMode reports whether no database is configured.
func (c Config) MemoryMode() bool {
	return c.Database.URL == ""
}

func getEnv(key, defaultValue string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	duration, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return duration
}

func getEnvAsAddress(key string) common.Address {
	v := strings.TrimSpace(os.Getenv(key))
	if !common.IsHexAddress(v) {
		return common.Address{}
	}
	return common.HexToAddress(v)
}

func splitOrigins(raw string) []string {
	if raw == "" {
		return []string{"*"}
	}
	parts := strings.Split(raw, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		if o := strings.TrimSpace(p); o != "" {
			origins = append(origins, o)
		}
	}
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}
