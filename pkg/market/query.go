package market

import (
	"context"
	"errors"
)

// page walks scan in ascending id order, skips the first start records that
// keep accepts and returns up to count of the rest. It never pads.
func page[T any](ctx context.Context, scan func(context.Context, func(T) bool) error, keep func(T) bool, start, count int) ([]T, error) {
	out := make([]T, 0)
	if start < 0 || count <= 0 {
		return out, nil
	}

	skipped := 0
	err := scan(ctx, func(item T) bool {
		if !keep(item) {
			return true
		}
		if skipped < start {
			skipped++
			return true
		}
		out = append(out, item)
		return len(out) < count
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (e *Engine) ListActiveListings(ctx context.Context, start, count int) ([]Listing, error) {
	var out []Listing
	err := e.read(ctx, func(ctx context.Context) error {
		var err error
		out, err = page(ctx, e.store.ScanListings, func(l Listing) bool { return l.Active }, start, count)
		return err
	})
	return out, err
}

// ListActiveAuctions skips auctions whose end time has passed even if nobody
// has ended them yet.
func (e *Engine) ListActiveAuctions(ctx context.Context, start, count int) ([]Auction, error) {
	var out []Auction
	err := e.read(ctx, func(ctx context.Context) error {
		now := e.clock()
		var err error
		out, err = page(ctx, e.store.ScanAuctions, func(a Auction) bool { return a.Open(now) }, start, count)
		return err
	})
	return out, err
}

func (e *Engine) ListActiveOffers(ctx context.Context, start, count int) ([]Offer, error) {
	var out []Offer
	err := e.read(ctx, func(ctx context.Context) error {
		now := e.clock()
		var err error
		out, err = page(ctx, e.store.ScanOffers, func(o Offer) bool { return o.Open(now) }, start, count)
		return err
	})
	return out, err
}

// EndableAuctions returns up to limit active auctions with an id above after
// whose end time has passed, in ascending id order.
func (e *Engine) EndableAuctions(ctx context.Context, after uint64, limit int) ([]Auction, error) {
	var out []Auction
	err := e.read(ctx, func(ctx context.Context) error {
		now := e.clock()
		endable := func(a Auction) bool { return a.ID > after && a.Active && !a.Open(now) }
		var err error
		out, err = page(ctx, e.store.ScanAuctions, endable, 0, limit)
		return err
	})
	return out, err
}

func (e *Engine) GetListing(ctx context.Context, id uint64) (Listing, error) {
	var out Listing
	err := e.read(ctx, func(ctx context.Context) error {
		var err error
		out, err = e.store.Listing(ctx, id)
		return err
	})
	return out, notFound(err)
}

func (e *Engine) GetAuction(ctx context.Context, id uint64) (Auction, error) {
	var out Auction
	err := e.read(ctx, func(ctx context.Context) error {
		var err error
		out, err = e.store.Auction(ctx, id)
		return err
	})
	return out, notFound(err)
}

func (e *Engine) GetOffer(ctx context.Context, id uint64) (Offer, error) {
	var out Offer
	err := e.read(ctx, func(ctx context.Context) error {
		var err error
		out, err = e.store.Offer(ctx, id)
		return err
	})
	return out, notFound(err)
}

func (e *Engine) Stats(ctx context.Context) (Stats, error) {
	st, err := e.state(ctx)
	if err != nil {
		return Stats{}, err
	}
	return Stats{TotalVolume: st.TotalVolume, TotalSales: st.TotalSales}, nil
}

func (e *Engine) Status(ctx context.Context) (Status, error) {
	st, err := e.state(ctx)
	if err != nil {
		return Status{}, err
	}
	return Status{FeeBps: st.FeeBps, Paused: st.Paused, Treasury: st.Treasury}, nil
}

func (e *Engine) state(ctx context.Context) (State, error) {
	var st State
	err := e.read(ctx, func(ctx context.Context) error {
		var err error
		st, err = e.store.State(ctx)
		return err
	})
	return st, err
}

func notFound(err error) error {
	if errors.Is(err, errRecordNotFound) {
		return ErrNotFound
	}
	return err
}
