package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"bazaar/pkg/testhelpers"
	"bazaar/pkg/txn"
)

func TestPostgresLedger_CollectSend(t *testing.T) {
	pool := testhelpers.SetupTestPool(t)
	testhelpers.CleanTables(t, pool)

	vault := testhelpers.RandomAddress(t)
	l := NewPostgresLedger(pool, vault)
	ctx := context.Background()
	payer := testhelpers.RandomAddress(t)
	payee := testhelpers.RandomAddress(t)

	bal, err := l.Deposit(ctx, payer, 1000)
	require.NoError(t, err)
	require.Equal(t, int64(1000), bal)

	require.NoError(t, l.Collect(ctx, payer, 400))
	require.NoError(t, l.Send(ctx, payee, 300))

	require.Equal(t, int64(600), balanceOf(t, l, payer))
	require.Equal(t, int64(300), balanceOf(t, l, payee))
	require.Equal(t, int64(100), balanceOf(t, l, vault))

	require.ErrorIs(t, l.Collect(ctx, payee, 301), ErrInsufficientFunds)
	require.Equal(t, int64(300), balanceOf(t, l, payee))
}

func TestPostgresLedger_OuterTxRollback(t *testing.T) {
	pool := testhelpers.SetupTestPool(t)
	testhelpers.CleanTables(t, pool)

	vault := testhelpers.RandomAddress(t)
	l := NewPostgresLedger(pool, vault)
	tx := txn.NewPostgresTransactor(pool)
	ctx := context.Background()
	payer := testhelpers.RandomAddress(t)

	_, err := l.Deposit(ctx, payer, 50)
	require.NoError(t, err)

	err = tx.WithinTx(ctx, func(ctx context.Context) error {
		require.NoError(t, l.Collect(ctx, payer, 50))
		return errors.New("abort")
	})
	require.Error(t, err)

	require.Equal(t, int64(50), balanceOf(t, l, payer))
	require.Equal(t, int64(0), balanceOf(t, l, vault))
}
