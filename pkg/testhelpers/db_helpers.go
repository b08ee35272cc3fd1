package testhelpers

import (
	"context"
	"crypto/rand"
	"os"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/stretchr/testify/require"

	"bazaar/pkg/db"
)

// SetupTestPool connects to DATABASE_URL_FOR_TEST and applies the schema,
// skipping the test when the variable is unset.
func SetupTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	_ = godotenv.Load("../../.env")

	dsn := os.Getenv("DATABASE_URL_FOR_TEST")
	if dsn == "" {
		t.Skip("DATABASE_URL_FOR_TEST not set; skipping postgres tests")
	}

	ctx := context.Background()
	cfg, err := pgxpool.ParseConfig(dsn)
	require.NoError(t, err)

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	require.NoError(t, err)
	require.NoError(t, pool.Ping(ctx))
	require.NoError(t, db.ApplySchema(ctx, pool, ""))

	t.Cleanup(pool.Close)
	return pool
}

// CleanTables empties every table the service owns.
func CleanTables(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()
	_, err := pool.Exec(context.Background(),
		"TRUNCATE TABLE market_events, market_offers, market_auctions, market_listings, market_state, registry_assets, accounts RESTART IDENTITY")
	require.NoError(t, err)
}

// RandomAddress returns a fresh account address.
func RandomAddress(t *testing.T) common.Address {
	t.Helper()

	var addr common.Address
	_, err := rand.Read(addr[:])
	require.NoError(t, err)
	return addr
}
