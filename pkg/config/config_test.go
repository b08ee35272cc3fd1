package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const (
	adminHex    = "0x00000000000000000000000000000000000000aD"
	operatorHex = "0x00000000000000000000000000000000000000F0"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("APP_ENV", "")
	t.Setenv("ENV", "")
	t.Setenv("ADMIN_ADDRESS", adminHex)
	t.Setenv("OPERATOR_ADDRESS", operatorHex)
	t.Setenv("DATABASE_URL", "")
	t.Setenv("ENABLE_TLS", "")
	t.Setenv("SERVER_PORT", "")
	t.Setenv("CORS_ALLOWED_ORIGINS", "")

	cfg := Load()

	require.Equal(t, "development", cfg.Env)
	require.Equal(t, "8080", cfg.Port)
	require.True(t, cfg.MemoryMode())
	require.Equal(t, uint32(250), cfg.Market.DefaultFeeBps)
	require.Equal(t, time.Hour, cfg.Market.MinAuctionDuration)
	require.Equal(t, cfg.Market.Operator, cfg.Market.Keeper)
	require.Equal(t, []string{"*"}, cfg.CORS.AllowedOrigins)
	require.NoError(t, cfg.Validate())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("ADMIN_ADDRESS", adminHex)
	t.Setenv("OPERATOR_ADDRESS", operatorHex)
	t.Setenv("DEFAULT_FEE_BPS", "100")
	t.Setenv("MIN_OFFER_DURATION", "30m")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, ,https://b.example")
	t.Setenv("DB_MAX_CONNS", "not-a-number")

	cfg := Load()

	require.Equal(t, uint32(100), cfg.Market.DefaultFeeBps)
	require.Equal(t, 30*time.Minute, cfg.Market.MinOfferDuration)
	require.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORS.AllowedOrigins)
	require.Equal(t, 10, cfg.Database.MaxConns)
}

func TestValidate(t *testing.T) {
	t.Setenv("ADMIN_ADDRESS", adminHex)
	t.Setenv("OPERATOR_ADDRESS", operatorHex)

	base := Load()

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"missing admin", func(c *Config) { c.Market.Admin = [20]byte{} }, true},
		{"fee too high", func(c *Config) { c.Market.DefaultFeeBps = 1001 }, true},
		{"production without tls files", func(c *Config) { c.Env = "production"; c.TLS.EnableTLS = true }, true},
		{"production with faucet", func(c *Config) {
			c.Env = "production"
			c.TLS = TLSSettings{EnableTLS: true, CertPath: "c", KeyPath: "k"}
			c.Database.URL = "postgres://x"
			c.EnableFaucet = true
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			require.Equal(t, tt.wantErr, cfg.Validate() != nil)
		})
	}
}
