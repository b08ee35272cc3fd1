package registry

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"bazaar/pkg/txn"
)

// MemoryRegistry keeps assets in process. Mutations made inside a memory
// transaction are undone when it rolls back, and the assets they touch are
// claimed by that transaction until it ends.
type MemoryRegistry struct {
	mu       sync.RWMutex
	operator common.Address
	nextID   uint64
	assets   map[uint64]Asset
	claims   map[uint64]any
	now      func() time.Time
}

func NewMemoryRegistry(operator common.Address) *MemoryRegistry {
	return &MemoryRegistry{
		operator: operator,
		assets:   make(map[uint64]Asset),
		claims:   make(map[uint64]any),
		now:      time.Now,
	}
}

func (r *MemoryRegistry) Mint(ctx context.Context, owner common.Address, tokenURI string) (Asset, error) {
	if owner == (common.Address{}) {
		return Asset{}, ErrZeroAddress
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	a := Asset{ID: r.nextID, Owner: owner, TokenURI: tokenURI, CreatedAt: r.now()}
	r.assets[a.ID] = a

	txn.Record(ctx, func() {
		r.mu.Lock()
		delete(r.assets, a.ID)
		if r.nextID == a.ID {
			r.nextID--
		}
		r.mu.Unlock()
	})
	return a, nil
}

func (r *MemoryRegistry) GetAsset(_ context.Context, id uint64) (Asset, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.assets[id]
	if !ok {
		return Asset{}, ErrAssetNotFound
	}
	return a, nil
}

func (r *MemoryRegistry) ListAssetsByOwner(_ context.Context, owner common.Address, limit, offset int) ([]Asset, int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	owned := make([]Asset, 0)
	for _, a := range r.assets {
		if a.Owner == owner {
			owned = append(owned, a)
		}
	}
	sort.Slice(owned, func(i, j int) bool { return owned[i].ID < owned[j].ID })

	total := int64(len(owned))
	if offset >= len(owned) {
		return []Asset{}, total, nil
	}
	end := offset + limit
	if end > len(owned) {
		end = len(owned)
	}
	return owned[offset:end], total, nil
}

func (r *MemoryRegistry) OwnerOf(_ context.Context, id uint64) (common.Address, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.assets[id]
	if !ok {
		return common.Address{}, ErrAssetNotFound
	}
	return a.Owner, nil
}

func (r *MemoryRegistry) IsApproved(_ context.Context, id uint64, operator common.Address) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.assets[id]
	if !ok {
		return false, ErrAssetNotFound
	}
	return a.Approved != nil && *a.Approved == operator, nil
}

func (r *MemoryRegistry) Approve(ctx context.Context, owner common.Address, id uint64, operator common.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.assets[id]
	if !ok {
		return ErrAssetNotFound
	}
	if a.Owner != owner {
		return ErrNotAssetOwner
	}
	if err := r.claim(ctx, id); err != nil {
		return err
	}
	op := operator
	a.Approved = &op
	r.put(ctx, a)
	return nil
}

func (r *MemoryRegistry) OwnerTransfer(ctx context.Context, owner, to common.Address, id uint64) error {
	if to == (common.Address{}) {
		return ErrZeroAddress
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.assets[id]
	if !ok {
		return ErrAssetNotFound
	}
	if a.Owner != owner {
		return ErrNotAssetOwner
	}
	if err := r.claim(ctx, id); err != nil {
		return err
	}
	a.Owner = to
	a.Approved = nil
	r.put(ctx, a)
	return nil
}

func (r *MemoryRegistry) Transfer(ctx context.Context, from, to common.Address, id uint64) error {
	if to == (common.Address{}) {
		return ErrZeroAddress
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.assets[id]
	if !ok {
		return ErrAssetNotFound
	}
	if a.Owner != from {
		return ErrNotAssetOwner
	}
	if a.Approved == nil || *a.Approved != r.operator {
		return ErrNotApproved
	}
	if err := r.claim(ctx, id); err != nil {
		return err
	}
	a.Owner = to
	a.Approved = nil
	r.put(ctx, a)
	return nil
}

// put stores a and records the previous value for rollback. Caller holds r.mu.
func (r *MemoryRegistry) put(ctx context.Context, a Asset) {
	prev := r.assets[a.ID]
	r.assets[a.ID] = a
	txn.Record(ctx, func() {
		r.mu.Lock()
		r.assets[prev.ID] = prev
		r.mu.Unlock()
	})
}

// claim reserves id for the memory transaction on ctx until it ends. A write
// from anywhere else meanwhile fails with ErrAssetBusy. Caller holds r.mu.
func (r *MemoryRegistry) claim(ctx context.Context, id uint64) error {
	unit := txn.Unit(ctx)
	if holder, ok := r.claims[id]; ok {
		if holder == unit {
			return nil
		}
		return ErrAssetBusy
	}
	if unit == nil {
		return nil
	}

	r.claims[id] = unit
	txn.OnFinish(ctx, func() {
		r.mu.Lock()
		delete(r.claims, id)
		r.mu.Unlock()
	})
	return nil
}
