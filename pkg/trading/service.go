package trading

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"bazaar/pkg/market"
)

// Service is the marketplace as seen by the HTTP layer. *market.Engine
// satisfies it.
type Service interface {
	List(ctx context.Context, seller common.Address, assetID uint64, price int64) (market.Listing, error)
	Buy(ctx context.Context, buyer common.Address, listingID uint64, payment int64) (market.Settlement, error)
	CancelListing(ctx context.Context, caller common.Address, listingID uint64) (market.Listing, error)

	CreateAuction(ctx context.Context, seller common.Address, assetID uint64, startingPrice int64, duration time.Duration) (market.Auction, error)
	PlaceBid(ctx context.Context, bidder common.Address, auctionID uint64, amount int64) (market.Auction, error)
	EndAuction(ctx context.Context, caller common.Address, auctionID uint64) (market.Auction, *market.Settlement, error)

	MakeOffer(ctx context.Context, buyer common.Address, assetID uint64, amount int64, duration time.Duration) (market.Offer, error)
	AcceptOffer(ctx context.Context, caller common.Address, offerID uint64) (market.Settlement, error)
	CancelOffer(ctx context.Context, caller common.Address, offerID uint64) (market.Offer, error)

	SetFee(ctx context.Context, caller common.Address, bps uint32) error
	Pause(ctx context.Context, caller common.Address) error
	Unpause(ctx context.Context, caller common.Address) error
	Withdraw(ctx context.Context, caller common.Address) (int64, error)

	ListActiveListings(ctx context.Context, start, count int) ([]market.Listing, error)
	ListActiveAuctions(ctx context.Context, start, count int) ([]market.Auction, error)
	ListActiveOffers(ctx context.Context, start, count int) ([]market.Offer, error)
	GetListing(ctx context.Context, id uint64) (market.Listing, error)
	GetAuction(ctx context.Context, id uint64) (market.Auction, error)
	GetOffer(ctx context.Context, id uint64) (market.Offer, error)
	Stats(ctx context.Context) (market.Stats, error)
	Status(ctx context.Context) (market.Status, error)
}

var _ Service = (*market.Engine)(nil)

// Observer records the outcome of each operation. *metrics.Metrics satisfies it.
type Observer interface {
	ObserveOperation(operation string, started time.Time, err error)
}

type nopObserver struct{}

func (nopObserver) ObserveOperation(string, time.Time, error) {}
