package market

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// AssetRegistry is the part of the asset registry the engine depends on.
// Ownership is never cached; every operation that depends on it asks again.
type AssetRegistry interface {
	OwnerOf(ctx context.Context, assetID uint64) (common.Address, error)
	IsApproved(ctx context.Context, assetID uint64, operator common.Address) (bool, error)
	Transfer(ctx context.Context, from, to common.Address, assetID uint64) error
}

// Funds moves native value. Send may run recipient code that calls back into
// the engine; such callers must pass on the context they were given so the
// nested call is recognised and rejected.
type Funds interface {
	// Collect takes the value attached to a payable call into custody.
	Collect(ctx context.Context, from common.Address, amount int64) error
	// Send pays amount out of custody.
	Send(ctx context.Context, to common.Address, amount int64) error
}

// Store persists the engine's records. Writes made under a transaction on
// ctx are rolled back with it.
type Store interface {
	// LockState returns the state record and holds it for the rest of the
	// enclosing transaction.
	LockState(ctx context.Context) (State, error)
	State(ctx context.Context) (State, error)
	SaveState(ctx context.Context, st State) error

	Listing(ctx context.Context, id uint64) (Listing, error)
	PutListing(ctx context.Context, l Listing) error
	Auction(ctx context.Context, id uint64) (Auction, error)
	PutAuction(ctx context.Context, a Auction) error
	Offer(ctx context.Context, id uint64) (Offer, error)
	PutOffer(ctx context.Context, o Offer) error

	// Scan* visit active records in ascending id order until fn returns false.
	ScanListings(ctx context.Context, fn func(Listing) bool) error
	ScanAuctions(ctx context.Context, fn func(Auction) bool) error
	ScanOffers(ctx context.Context, fn func(Offer) bool) error
}

// Notifier receives events once the operation producing them has committed.
type Notifier interface {
	Notify(ctx context.Context, ev Event)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, ev Event)

func (f NotifierFunc) Notify(ctx context.Context, ev Event) {
	f(ctx, ev)
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, Event) {}

// Clock supplies the current time.
type Clock func() time.Time
