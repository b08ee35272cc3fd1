// Package txn lets the engine store, the asset registry and the funds ledger
// take part in one unit of work carried on the context.
package txn

import (
	"context"
	"sync"
)

// Transactor runs fn as a single all-or-nothing unit. A call made while a
// transaction is already open on ctx joins it.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type journalKey struct{}

type journal struct {
	mu     sync.Mutex
	undo   []func()
	finish []func()
}

func (j *journal) add(fn func()) {
	j.mu.Lock()
	j.undo = append(j.undo, fn)
	j.mu.Unlock()
}

func (j *journal) onFinish(fn func()) {
	j.mu.Lock()
	j.finish = append(j.finish, fn)
	j.mu.Unlock()
}

func (j *journal) done() {
	j.mu.Lock()
	finish := j.finish
	j.finish = nil
	j.mu.Unlock()

	for _, fn := range finish {
		fn()
	}
}

func (j *journal) rollback() {
	j.mu.Lock()
	undo := j.undo
	j.undo = nil
	j.mu.Unlock()

	for i := len(undo) - 1; i >= 0; i-- {
		undo[i]()
	}
}

// Record registers an undo step for an in-memory mutation. Outside a memory
// transaction it does nothing and the mutation is permanent.
func Record(ctx context.Context, undo func()) {
	if j, ok := ctx.Value(journalKey{}).(*journal); ok {
		j.add(undo)
	}
}

// OnFinish registers fn to run once the memory transaction on ctx has
// committed or rolled back. Outside a memory transaction it does nothing.
func OnFinish(ctx context.Context, fn func()) {
	if j, ok := ctx.Value(journalKey{}).(*journal); ok {
		j.onFinish(fn)
	}
}

// Unit identifies the memory transaction on ctx. It is nil outside one, and
// every context joined to the same transaction yields the same value.
func Unit(ctx context.Context) any {
	if j, ok := ctx.Value(journalKey{}).(*journal); ok {
		return j
	}
	return nil
}

// InMemoryTx reports whether ctx carries an open memory transaction.
func InMemoryTx(ctx context.Context) bool {
	_, ok := ctx.Value(journalKey{}).(*journal)
	return ok
}

// MemoryTransactor rolls back in-memory collaborators by replaying the undo
// steps they recorded, newest first. Undo steps must reverse only their own
// change, since writes made outside the transaction are not held back.
type MemoryTransactor struct{}

func NewMemoryTransactor() *MemoryTransactor {
	return &MemoryTransactor{}
}

func (t *MemoryTransactor) WithinTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if InMemoryTx(ctx) {
		return fn(ctx)
	}

	j := &journal{}
	ctx = context.WithValue(ctx, journalKey{}, j)

	defer j.done()
	defer func() {
		if p := recover(); p != nil {
			j.rollback()
			panic(p)
		}
	}()

	if err := fn(ctx); err != nil {
		j.rollback()
		return err
	}
	return nil
}
