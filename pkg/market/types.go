package market

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Kind names one of the three trading mechanisms.
type Kind string

const (
	KindListing Kind = "listing"
	KindAuction Kind = "auction"
	KindOffer   Kind = "offer"
)

type Listing struct {
	ID        uint64         `json:"id"`
	AssetID   uint64         `json:"asset_id"`
	Seller    common.Address `json:"seller"`
	Price     int64          `json:"price"`
	Active    bool           `json:"active"`
	CreatedAt time.Time      `json:"created_at"`
}

// Auction is an ascending-bid sale. HighestBidder is set iff CurrentBid > 0.
type Auction struct {
	ID            uint64          `json:"id"`
	AssetID       uint64          `json:"asset_id"`
	Seller        common.Address  `json:"seller"`
	StartingPrice int64           `json:"starting_price"`
	CurrentBid    int64           `json:"current_bid"`
	HighestBidder *common.Address `json:"highest_bidder,omitempty"`
	EndTime       time.Time       `json:"end_time"`
	Active        bool            `json:"active"`
	CreatedAt     time.Time       `json:"created_at"`
}

// Open reports whether the auction still accepts bids at now.
func (a Auction) Open(now time.Time) bool {
	return a.Active && now.Before(a.EndTime)
}

type Offer struct {
	ID         uint64         `json:"id"`
	AssetID    uint64         `json:"asset_id"`
	Buyer      common.Address `json:"buyer"`
	Amount     int64          `json:"amount"`
	Expiration time.Time      `json:"expiration"`
	Active     bool           `json:"active"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Open reports whether the offer can still be accepted at now.
func (o Offer) Open(now time.Time) bool {
	return o.Active && now.Before(o.Expiration)
}

// State is the engine-wide record: fee configuration, pause flag, treasury,
// aggregate stats and the three id counters. Counters hold the last issued id.
type State struct {
	FeeBps       uint32
	Paused       bool
	Treasury     int64
	TotalVolume  int64
	TotalSales   int64
	ListingCount uint64
	AuctionCount uint64
	OfferCount   uint64
}

type Stats struct {
	TotalVolume int64 `json:"total_volume"`
	TotalSales  int64 `json:"total_sales"`
}

type Status struct {
	FeeBps   uint32 `json:"fee_bps"`
	Paused   bool   `json:"paused"`
	Treasury int64  `json:"treasury"`
}

// Settlement describes a completed fund-for-asset swap.
type Settlement struct {
	Kind     Kind           `json:"kind"`
	EntityID uint64         `json:"entity_id"`
	AssetID  uint64         `json:"asset_id"`
	Seller   common.Address `json:"seller"`
	Buyer    common.Address `json:"buyer"`
	Amount   int64          `json:"amount"`
	Fee      int64          `json:"fee"`
	Proceeds int64          `json:"proceeds"`
}
