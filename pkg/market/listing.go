package market

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"
)

// List offers assetID for sale at a fixed price.
func (e *Engine) List(ctx context.Context, seller common.Address, assetID uint64, price int64) (Listing, error) {
	var out Listing
	err := e.mutate(ctx, "list", seller, func(ctx context.Context, c *call) error {
		if c.state.Paused {
			return ErrPaused
		}
		if price <= 0 {
			return ErrInvalidPrice
		}
		if err := e.requireListable(ctx, assetID, seller); err != nil {
			return err
		}

		c.state.ListingCount++
		out = Listing{
			ID:        c.state.ListingCount,
			AssetID:   assetID,
			Seller:    seller,
			Price:     price,
			Active:    true,
			CreatedAt: c.now,
		}
		if err := e.store.PutListing(ctx, out); err != nil {
			return err
		}

		c.emit(Event{
			Type:     EventListingCreated,
			EntityID: out.ID,
			AssetID:  assetID,
			Actor:    seller,
			Seller:   addr(seller),
			Amount:   price,
		})
		return nil
	})
	if err != nil {
		return Listing{}, err
	}
	return out, nil
}

// Buy settles a listing. payment is the value the buyer attaches and must
// equal the price exactly.
func (e *Engine) Buy(ctx context.Context, buyer common.Address, listingID uint64, payment int64) (Settlement, error) {
	var out Settlement
	err := e.mutate(ctx, "buy", buyer, func(ctx context.Context, c *call) error {
		if c.state.Paused {
			return ErrPaused
		}
		l, err := e.activeListing(ctx, listingID)
		if err != nil {
			return err
		}
		if payment != l.Price {
			return ErrWrongPayment
		}
		owner, err := e.ownerOf(ctx, l.AssetID)
		if err != nil {
			return err
		}
		if owner != l.Seller {
			return ErrSellerMismatch
		}

		l.Active = false
		if err := e.store.PutListing(ctx, l); err != nil {
			return err
		}
		s, err := c.recordSale(KindListing, l.ID, l.AssetID, l.Seller, buyer, l.Price)
		if err != nil {
			return err
		}

		if err := e.collect(ctx, buyer, payment); err != nil {
			return err
		}
		if err := e.deliver(ctx, s); err != nil {
			return err
		}

		c.emit(Event{
			Type:     EventListingSold,
			EntityID: l.ID,
			AssetID:  l.AssetID,
			Actor:    buyer,
			Seller:   addr(l.Seller),
			Buyer:    addr(buyer),
			Amount:   s.Amount,
			Fee:      s.Fee,
		})
		out = s
		return nil
	})
	if err != nil {
		return Settlement{}, err
	}
	return out, nil
}

// CancelListing withdraws a listing. Only the seller or the admin may cancel,
// and it works while the market is paused.
func (e *Engine) CancelListing(ctx context.Context, caller common.Address, listingID uint64) (Listing, error) {
	var out Listing
	err := e.mutate(ctx, "cancel_listing", caller, func(ctx context.Context, c *call) error {
		l, err := e.activeListing(ctx, listingID)
		if err != nil {
			return err
		}
		if caller != l.Seller && caller != e.cfg.Admin {
			return ErrNotAuthorized
		}

		l.Active = false
		if err := e.store.PutListing(ctx, l); err != nil {
			return err
		}

		c.emit(Event{
			Type:     EventListingCancelled,
			EntityID: l.ID,
			AssetID:  l.AssetID,
			Actor:    caller,
			Seller:   addr(l.Seller),
		})
		out = l
		return nil
	})
	if err != nil {
		return Listing{}, err
	}
	return out, nil
}

func (e *Engine) activeListing(ctx context.Context, id uint64) (Listing, error) {
	l, err := e.store.Listing(ctx, id)
	if err != nil {
		if errors.Is(err, errRecordNotFound) {
			return Listing{}, ErrInactiveListing
		}
		return Listing{}, err
	}
	if !l.Active {
		return Listing{}, ErrInactiveListing
	}
	return l, nil
}
