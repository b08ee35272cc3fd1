package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"bazaar/pkg/txn"
)

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidAmount     = errors.New("amount must be positive")
	ErrZeroAddress       = errors.New("zero address")
	ErrTransferRejected  = errors.New("recipient rejected transfer")
)

// Ledger holds native balances. Funds taken with Collect sit in the custody
// account until Send pays them out.
type Ledger interface {
	Custody() common.Address
	Balance(ctx context.Context, addr common.Address) (int64, error)
	// Deposit credits new funds to addr and returns the resulting balance.
	Deposit(ctx context.Context, addr common.Address, amount int64) (int64, error)
	// Collect moves amount from addr into custody.
	Collect(ctx context.Context, from common.Address, amount int64) error
	// Send moves amount from custody to addr.
	Send(ctx context.Context, to common.Address, amount int64) error
}

type postgresLedger struct {
	pool    *pgxpool.Pool
	tx      txn.Transactor
	custody common.Address
}

func NewPostgresLedger(pool *pgxpool.Pool, custody common.Address) Ledger {
	return &postgresLedger{pool: pool, tx: txn.NewPostgresTransactor(pool), custody: custody}
}

func (l *postgresLedger) Custody() common.Address {
	return l.custody
}

func (l *postgresLedger) Balance(ctx context.Context, addr common.Address) (int64, error) {
	var balance int64
	err := txn.Conn(ctx, l.pool).QueryRow(ctx, "SELECT balance FROM accounts WHERE address = $1", addr.Hex()).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, err
	}
	return balance, nil
}

func (l *postgresLedger) Deposit(ctx context.Context, addr common.Address, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	if addr == (common.Address{}) {
		return 0, ErrZeroAddress
	}
	return l.credit(ctx, addr, amount)
}

func (l *postgresLedger) Collect(ctx context.Context, from common.Address, amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	return l.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := l.debit(ctx, from, amount); err != nil {
			return err
		}
		_, err := l.credit(ctx, l.custody, amount)
		return err
	})
}

func (l *postgresLedger) Send(ctx context.Context, to common.Address, amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if to == (common.Address{}) {
		return ErrZeroAddress
	}
	return l.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := l.debit(ctx, l.custody, amount); err != nil {
			return fmt.Errorf("custody: %w", err)
		}
		_, err := l.credit(ctx, to, amount)
		return err
	})
}

func (l *postgresLedger) debit(ctx context.Context, addr common.Address, amount int64) error {
	cmd, err := txn.Conn(ctx, l.pool).Exec(ctx,
		"UPDATE accounts SET balance = balance - $2, updated_at = NOW() WHERE address = $1 AND balance >= $2",
		addr.Hex(), amount)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrInsufficientFunds
	}
	return nil
}

func (l *postgresLedger) credit(ctx context.Context, addr common.Address, amount int64) (int64, error) {
	query := `INSERT INTO accounts (address, balance, updated_at)
              VALUES ($1, $2, NOW())
              ON CONFLICT (address) DO UPDATE
              SET balance = accounts.balance + EXCLUDED.balance, updated_at = NOW()
              RETURNING balance`

	var balance int64
	if err := txn.Conn(ctx, l.pool).QueryRow(ctx, query, addr.Hex(), amount).Scan(&balance); err != nil {
		return 0, fmt.Errorf("credit %s: %w", addr.Hex(), err)
	}
	return balance, nil
}
