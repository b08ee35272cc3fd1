package ledger

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"bazaar/pkg/txn"
)

// ReceiveHook runs when funds arrive at an address, standing in for recipient
// code. A non-nil error rejects the transfer.
type ReceiveHook func(ctx context.Context, amount int64) error

// MemoryLedger keeps balances in process. Mutations made inside a memory
// transaction are undone when it rolls back.
type MemoryLedger struct {
	mu       sync.Mutex
	custody  common.Address
	balances map[common.Address]int64
	hooks    map[common.Address]ReceiveHook
}

func NewMemoryLedger(custody common.Address) *MemoryLedger {
	return &MemoryLedger{
		custody:  custody,
		balances: make(map[common.Address]int64),
		hooks:    make(map[common.Address]ReceiveHook),
	}
}

// OnReceive installs hook for addr; a nil hook removes it.
func (l *MemoryLedger) OnReceive(addr common.Address, hook ReceiveHook) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if hook == nil {
		delete(l.hooks, addr)
		return
	}
	l.hooks[addr] = hook
}

func (l *MemoryLedger) Custody() common.Address {
	return l.custody
}

func (l *MemoryLedger) Balance(_ context.Context, addr common.Address) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[addr], nil
}

func (l *MemoryLedger) Deposit(ctx context.Context, addr common.Address, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	if addr == (common.Address{}) {
		return 0, ErrZeroAddress
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.balances[addr] > math.MaxInt64-amount {
		return 0, fmt.Errorf("deposit overflows balance of %s", addr.Hex())
	}
	l.adjust(ctx, addr, amount)
	return l.balances[addr], nil
}

func (l *MemoryLedger) Collect(ctx context.Context, from common.Address, amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	return l.move(ctx, from, l.custody, amount)
}

func (l *MemoryLedger) Send(ctx context.Context, to common.Address, amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if to == (common.Address{}) {
		return ErrZeroAddress
	}

	l.mu.Lock()
	if err := l.move(ctx, l.custody, to, amount); err != nil {
		l.mu.Unlock()
		return fmt.Errorf("custody: %w", err)
	}
	hook := l.hooks[to]
	l.mu.Unlock()

	if hook == nil {
		return nil
	}
	if err := hook(ctx, amount); err != nil {
		l.mu.Lock()
		_ = l.move(ctx, to, l.custody, amount)
		l.mu.Unlock()
		return fmt.Errorf("%w: %v", ErrTransferRejected, err)
	}
	return nil
}

// move transfers between two accounts. Caller holds l.mu.
func (l *MemoryLedger) move(ctx context.Context, from, to common.Address, amount int64) error {
	if l.balances[from] < amount {
		return ErrInsufficientFunds
	}
	if from == to {
		return nil
	}
	if l.balances[to] > math.MaxInt64-amount {
		return fmt.Errorf("credit overflows balance of %s", to.Hex())
	}
	l.adjust(ctx, from, -amount)
	l.adjust(ctx, to, amount)
	return nil
}

// adjust applies delta to a balance and records the opposite delta for
// rollback, so credits and debits made outside the transaction survive it.
// Caller holds l.mu.
func (l *MemoryLedger) adjust(ctx context.Context, addr common.Address, delta int64) {
	l.balances[addr] += delta
	txn.Record(ctx, func() {
		l.mu.Lock()
		l.balances[addr] -= delta
		l.mu.Unlock()
	})
}
