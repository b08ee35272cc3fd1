package market

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

type EventType string

const (
	EventListingCreated   EventType = "listing.created"
	EventListingSold      EventType = "listing.sold"
	EventListingCancelled EventType = "listing.cancelled"

	EventAuctionCreated   EventType = "auction.created"
	EventAuctionBidPlaced EventType = "auction.bid_placed"
	EventAuctionEnded     EventType = "auction.ended"

	EventOfferCreated   EventType = "offer.created"
	EventOfferAccepted  EventType = "offer.accepted"
	EventOfferCancelled EventType = "offer.cancelled"

	EventFeeUpdated    EventType = "market.fee_updated"
	EventPaused        EventType = "market.paused"
	EventUnpaused      EventType = "market.unpaused"
	EventFeesWithdrawn EventType = "market.fees_withdrawn"
)

// Event is a notification for observers. Seller and Buyer are nil when the
// event has no such party, e.g. an auction ended without bids has no Buyer.
type Event struct {
	ID         uuid.UUID       `json:"id"`
	Type       EventType       `json:"type"`
	EntityID   uint64          `json:"entity_id"`
	AssetID    uint64          `json:"asset_id"`
	Actor      common.Address  `json:"actor"`
	Seller     *common.Address `json:"seller,omitempty"`
	Buyer      *common.Address `json:"buyer,omitempty"`
	Amount     int64           `json:"amount"`
	Fee        int64           `json:"fee"`
	OccurredAt time.Time       `json:"occurred_at"`
}

func addr(a common.Address) *common.Address {
	return &a
}
