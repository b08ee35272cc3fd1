package market

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// CreateAuction opens an ascending auction on assetID that closes after duration.
func (e *Engine) CreateAuction(ctx context.Context, seller common.Address, assetID uint64, startingPrice int64, duration time.Duration) (Auction, error) {
	var out Auction
	err := e.mutate(ctx, "create_auction", seller, func(ctx context.Context, c *call) error {
		if c.state.Paused {
			return ErrPaused
		}
		if startingPrice <= 0 {
			return ErrInvalidPrice
		}
		if duration < e.cfg.MinAuctionDuration {
			return ErrDurationTooShort
		}
		if err := e.requireListable(ctx, assetID, seller); err != nil {
			return err
		}

		c.state.AuctionCount++
		out = Auction{
			ID:            c.state.AuctionCount,
			AssetID:       assetID,
			Seller:        seller,
			StartingPrice: startingPrice,
			EndTime:       c.now.Add(duration),
			Active:        true,
			CreatedAt:     c.now,
		}
		if err := e.store.PutAuction(ctx, out); err != nil {
			return err
		}

		c.emit(Event{
			Type:     EventAuctionCreated,
			EntityID: out.ID,
			AssetID:  assetID,
			Actor:    seller,
			Seller:   addr(seller),
			Amount:   startingPrice,
		})
		return nil
	})
	if err != nil {
		return Auction{}, err
	}
	return out, nil
}

// PlaceBid escrows amount as the new highest bid. The first bid must reach the
// starting price and every later bid must beat the current one. The previous
// highest bidder is refunded before the new bid is recorded; if that refund
// fails the new bid is rejected and the previous one stands.
func (e *Engine) PlaceBid(ctx context.Context, bidder common.Address, auctionID uint64, amount int64) (Auction, error) {
	var out Auction
	err := e.mutate(ctx, "place_bid", bidder, func(ctx context.Context, c *call) error {
		if c.state.Paused {
			return ErrPaused
		}
		a, err := e.activeAuction(ctx, auctionID)
		if err != nil {
			return err
		}
		if !c.now.Before(a.EndTime) {
			return ErrAuctionEnded
		}
		if bidder == a.Seller {
			return ErrSelfBid
		}
		owner, err := e.ownerOf(ctx, a.AssetID)
		if err != nil {
			return err
		}
		if owner != a.Seller {
			return ErrSellerNoLongerOwner
		}
		if a.HighestBidder == nil {
			if amount < a.StartingPrice {
				return ErrBidTooLow
			}
		} else if amount <= a.CurrentBid {
			return ErrBidTooLow
		}

		if err := e.collect(ctx, bidder, amount); err != nil {
			return err
		}
		if a.HighestBidder != nil {
			if err := e.funds.Send(ctx, *a.HighestBidder, a.CurrentBid); err != nil {
				return wrap(ErrRefundFailed, err)
			}
		}

		a.CurrentBid = amount
		a.HighestBidder = addr(bidder)
		if err := e.store.PutAuction(ctx, a); err != nil {
			return err
		}

		c.emit(Event{
			Type:     EventAuctionBidPlaced,
			EntityID: a.ID,
			AssetID:  a.AssetID,
			Actor:    bidder,
			Seller:   addr(a.Seller),
			Buyer:    addr(bidder),
			Amount:   amount,
		})
		out = a
		return nil
	})
	if err != nil {
		return Auction{}, err
	}
	return out, nil
}

// EndAuction closes an auction. Anyone may end it once its end time has
// passed; the admin may end it early. With no bids nothing moves. Otherwise
// the asset goes to the highest bidder and the seller is paid from escrow.
// The returned settlement is nil when there was no winner.
func (e *Engine) EndAuction(ctx context.Context, caller common.Address, auctionID uint64) (Auction, *Settlement, error) {
	var (
		out     Auction
		settled *Settlement
	)
	err := e.mutate(ctx, "end_auction", caller, func(ctx context.Context, c *call) error {
		a, err := e.activeAuction(ctx, auctionID)
		if err != nil {
			return err
		}
		if c.now.Before(a.EndTime) && caller != e.cfg.Admin {
			return ErrNotYetEndable
		}

		a.Active = false
		if a.HighestBidder == nil {
			if err := e.store.PutAuction(ctx, a); err != nil {
				return err
			}
			c.emit(Event{
				Type:     EventAuctionEnded,
				EntityID: a.ID,
				AssetID:  a.AssetID,
				Actor:    caller,
				Seller:   addr(a.Seller),
			})
			out = a
			return nil
		}

		if c.state.Paused {
			return ErrPaused
		}
		owner, err := e.ownerOf(ctx, a.AssetID)
		if err != nil {
			return err
		}
		if owner != a.Seller {
			return ErrSellerNoLongerOwner
		}

		if err := e.store.PutAuction(ctx, a); err != nil {
			return err
		}
		s, err := c.recordSale(KindAuction, a.ID, a.AssetID, a.Seller, *a.HighestBidder, a.CurrentBid)
		if err != nil {
			return err
		}
		if err := e.deliver(ctx, s); err != nil {
			return err
		}

		c.emit(Event{
			Type:     EventAuctionEnded,
			EntityID: a.ID,
			AssetID:  a.AssetID,
			Actor:    caller,
			Seller:   addr(a.Seller),
			Buyer:    addr(s.Buyer),
			Amount:   s.Amount,
			Fee:      s.Fee,
		})
		out = a
		settled = &s
		return nil
	})
	if err != nil {
		return Auction{}, nil, err
	}
	return out, settled, nil
}

func (e *Engine) activeAuction(ctx context.Context, id uint64) (Auction, error) {
	a, err := e.store.Auction(ctx, id)
	if err != nil {
		if errors.Is(err, errRecordNotFound) {
			return Auction{}, ErrInactiveAuction
		}
		return Auction{}, err
	}
	if !a.Active {
		return Auction{}, ErrInactiveAuction
	}
	return a, nil
}
