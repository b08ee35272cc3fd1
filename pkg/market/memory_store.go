package market

import (
	"context"
	"sync"

	"bazaar/pkg/txn"
)

// MemoryStore keeps records in process, keyed by id. Writes made inside a
// memory transaction are undone when it rolls back.
type MemoryStore struct {
	mu       sync.RWMutex
	state    State
	listings map[uint64]Listing
	auctions map[uint64]Auction
	offers   map[uint64]Offer
}

func NewMemoryStore(feeBps uint32) *MemoryStore {
	return &MemoryStore{
		state:    State{FeeBps: feeBps},
		listings: make(map[uint64]Listing),
		auctions: make(map[uint64]Auction),
		offers:   make(map[uint64]Offer),
	}
}

func (s *MemoryStore) LockState(ctx context.Context) (State, error) {
	return s.State(ctx)
}

func (s *MemoryStore) State(_ context.Context) (State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state, nil
}

func (s *MemoryStore) SaveState(ctx context.Context, st State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.state
	s.state = st
	txn.Record(ctx, func() {
		s.mu.Lock()
		s.state = prev
		s.mu.Unlock()
	})
	return nil
}

func (s *MemoryStore) Listing(_ context.Context, id uint64) (Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.listings[id]
	if !ok {
		return Listing{}, errRecordNotFound
	}
	return l, nil
}

func (s *MemoryStore) PutListing(ctx context.Context, l Listing) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	put(ctx, &s.mu, s.listings, l.ID, l)
	return nil
}

func (s *MemoryStore) Auction(_ context.Context, id uint64) (Auction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.auctions[id]
	if !ok {
		return Auction{}, errRecordNotFound
	}
	return a, nil
}

func (s *MemoryStore) PutAuction(ctx context.Context, a Auction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	put(ctx, &s.mu, s.auctions, a.ID, a)
	return nil
}

func (s *MemoryStore) Offer(_ context.Context, id uint64) (Offer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.offers[id]
	if !ok {
		return Offer{}, errRecordNotFound
	}
	return o, nil
}

func (s *MemoryStore) PutOffer(ctx context.Context, o Offer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	put(ctx, &s.mu, s.offers, o.ID, o)
	return nil
}

func (s *MemoryStore) ScanListings(_ context.Context, fn func(Listing) bool) error {
	scan(&s.mu, s.listings, &s.state.ListingCount, fn)
	return nil
}

func (s *MemoryStore) ScanAuctions(_ context.Context, fn func(Auction) bool) error {
	scan(&s.mu, s.auctions, &s.state.AuctionCount, fn)
	return nil
}

func (s *MemoryStore) ScanOffers(_ context.Context, fn func(Offer) bool) error {
	scan(&s.mu, s.offers, &s.state.OfferCount, fn)
	return nil
}

// put writes v under id and records the previous value for rollback. Caller holds mu.
func put[T any](ctx context.Context, mu *sync.RWMutex, m map[uint64]T, id uint64, v T) {
	prev, existed := m[id]
	m[id] = v
	txn.Record(ctx, func() {
		mu.Lock()
		defer mu.Unlock()
		if existed {
			m[id] = prev
		} else {
			delete(m, id)
		}
	})
}

// scan visits ids 1..last in order. It copies the records first so fn runs unlocked.
func scan[T any](mu *sync.RWMutex, m map[uint64]T, last *uint64, fn func(T) bool) {
	mu.RLock()
	items := make([]T, 0, len(m))
	for id := uint64(1); id <= *last; id++ {
		if v, ok := m[id]; ok {
			items = append(items, v)
		}
	}
	mu.RUnlock()

	for _, v := range items {
		if !fn(v) {
			return
		}
	}
}
