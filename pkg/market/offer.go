package market

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// MakeOffer escrows amount as a standing bid for assetID, valid for duration.
func (e *Engine) MakeOffer(ctx context.Context, buyer common.Address, assetID uint64, amount int64, duration time.Duration) (Offer, error) {
	var out Offer
	err := e.mutate(ctx, "make_offer", buyer, func(ctx context.Context, c *call) error {
		if c.state.Paused {
			return ErrPaused
		}
		if amount <= 0 {
			return ErrInvalidAmount
		}
		if duration < e.cfg.MinOfferDuration {
			return ErrDurationTooShort
		}
		owner, err := e.ownerOf(ctx, assetID)
		if err != nil {
			return err
		}
		if owner == buyer {
			return ErrSelfOffer
		}

		c.state.OfferCount++
		out = Offer{
			ID:         c.state.OfferCount,
			AssetID:    assetID,
			Buyer:      buyer,
			Amount:     amount,
			Expiration: c.now.Add(duration),
			Active:     true,
			CreatedAt:  c.now,
		}
		if err := e.store.PutOffer(ctx, out); err != nil {
			return err
		}
		if err := e.collect(ctx, buyer, amount); err != nil {
			return err
		}

		c.emit(Event{
			Type:     EventOfferCreated,
			EntityID: out.ID,
			AssetID:  assetID,
			Actor:    buyer,
			Buyer:    addr(buyer),
			Amount:   amount,
		})
		return nil
	})
	if err != nil {
		return Offer{}, err
	}
	return out, nil
}

// AcceptOffer sells the asset to the offer's buyer. caller must be the
// current owner and have approved the engine; they are paid from escrow.
func (e *Engine) AcceptOffer(ctx context.Context, caller common.Address, offerID uint64) (Settlement, error) {
	var out Settlement
	err := e.mutate(ctx, "accept_offer", caller, func(ctx context.Context, c *call) error {
		if c.state.Paused {
			return ErrPaused
		}
		o, err := e.activeOffer(ctx, offerID)
		if err != nil {
			return err
		}
		if !c.now.Before(o.Expiration) {
			return ErrOfferExpired
		}
		owner, err := e.ownerOf(ctx, o.AssetID)
		if err != nil {
			return err
		}
		if owner != caller {
			return ErrNotOwner
		}
		if caller == o.Buyer {
			return ErrSelfOffer
		}
		if err := e.requireApproved(ctx, o.AssetID); err != nil {
			return err
		}

		o.Active = false
		if err := e.store.PutOffer(ctx, o); err != nil {
			return err
		}
		s, err := c.recordSale(KindOffer, o.ID, o.AssetID, caller, o.Buyer, o.Amount)
		if err != nil {
			return err
		}
		if err := e.deliver(ctx, s); err != nil {
			return err
		}

		c.emit(Event{
			Type:     EventOfferAccepted,
			EntityID: o.ID,
			AssetID:  o.AssetID,
			Actor:    caller,
			Seller:   addr(caller),
			Buyer:    addr(o.Buyer),
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

// CancelOffer withdraws an offer and refunds the escrow in full. Expired
// offers can be cancelled too. If the refund fails the offer stays active.
func (e *Engine) CancelOffer(ctx context.Context, caller common.Address, offerID uint64) (Offer, error) {
	var out Offer
	err := e.mutate(ctx, "cancel_offer", caller, func(ctx context.Context, c *call) error {
		o, err := e.activeOffer(ctx, offerID)
		if err != nil {
			return err
		}
		if caller != o.Buyer {
			return ErrNotAuthorized
		}

		o.Active = false
		if err := e.store.PutOffer(ctx, o); err != nil {
			return err
		}
		if err := e.funds.Send(ctx, o.Buyer, o.Amount); err != nil {
			return wrap(ErrRefundFailed, err)
		}

		c.emit(Event{
			Type:     EventOfferCancelled,
			EntityID: o.ID,
			AssetID:  o.AssetID,
			Actor:    caller,
			Buyer:    addr(o.Buyer),
			Amount:   o.Amount,
		})
		out = o
		return nil
	})
	if err != nil {
		return Offer{}, err
	}
	return out, nil
}

func (e *Engine) activeOffer(ctx context.Context, id uint64) (Offer, error) {
	o, err := e.store.Offer(ctx, id)
	if err != nil {
		if errors.Is(err, errRecordNotFound) {
			return Offer{}, ErrInactiveOffer
		}
		return Offer{}, err
	}
	if !o.Active {
		return Offer{}, ErrInactiveOffer
	}
	return o, nil
}
