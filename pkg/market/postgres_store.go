package market

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"bazaar/pkg/txn"
)

// PostgresStore keeps the engine records in Postgres. The single market_state
// row is locked with FOR UPDATE by LockState, which serializes writers across
// processes sharing the database.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Init creates the state row with the given fee rate unless it already exists.
func (s *PostgresStore) Init(ctx context.Context, feeBps uint32) error {
	_, err := txn.Conn(ctx, s.pool).Exec(ctx,
		"INSERT INTO market_state (id, fee_bps) VALUES (1, $1) ON CONFLICT (id) DO NOTHING",
		int32(feeBps))
	if err != nil {
		return fmt.Errorf("init market state: %w", err)
	}
	return nil
}

const stateColumns = `fee_bps, paused, treasury, total_volume, total_sales, listing_count, auction_count, offer_count`

func (s *PostgresStore) LockState(ctx context.Context) (State, error) {
	return s.loadState(ctx, "SELECT "+stateColumns+" FROM market_state WHERE id = 1 FOR UPDATE")
}

func (s *PostgresStore) State(ctx context.Context) (State, error) {
	return s.loadState(ctx, "SELECT "+stateColumns+" FROM market_state WHERE id = 1")
}

func (s *PostgresStore) loadState(ctx context.Context, query string) (State, error) {
	var (
		st     State
		feeBps int32
	)
	err := txn.Conn(ctx, s.pool).QueryRow(ctx, query).Scan(
		&feeBps, &st.Paused, &st.Treasury, &st.TotalVolume, &st.TotalSales,
		&st.ListingCount, &st.AuctionCount, &st.OfferCount,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return State{}, ErrStateMissing
		}
		return State{}, fmt.Errorf("load market state: %w", err)
	}
	st.FeeBps = uint32(feeBps)
	return st, nil
}

func (s *PostgresStore) SaveState(ctx context.Context, st State) error {
	query := `UPDATE market_state
              SET fee_bps = $1, paused = $2, treasury = $3, total_volume = $4, total_sales = $5,
                  listing_count = $6, auction_count = $7, offer_count = $8
              WHERE id = 1`

	cmd, err := txn.Conn(ctx, s.pool).Exec(ctx, query,
		int32(st.FeeBps), st.Paused, st.Treasury, st.TotalVolume, st.TotalSales,
		st.ListingCount, st.AuctionCount, st.OfferCount,
	)
	if err != nil {
		return fmt.Errorf("save market state: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrStateMissing
	}
	return nil
}

const listingColumns = `id, asset_id, seller, price, active, created_at`

func (s *PostgresStore) Listing(ctx context.Context, id uint64) (Listing, error) {
	row := txn.Conn(ctx, s.pool).QueryRow(ctx, "SELECT "+listingColumns+" FROM market_listings WHERE id = $1", id)
	return scanListing(row)
}

func (s *PostgresStore) PutListing(ctx context.Context, l Listing) error {
	query := `INSERT INTO market_listings (` + listingColumns + `)
              VALUES ($1, $2, $3, $4, $5, $6)
              ON CONFLICT (id) DO UPDATE SET active = EXCLUDED.active`

	_, err := txn.Conn(ctx, s.pool).Exec(ctx, query, l.ID, l.AssetID, l.Seller.Hex(), l.Price, l.Active, l.CreatedAt)
	if err != nil {
		return fmt.Errorf("put listing %d: %w", l.ID, err)
	}
	return nil
}

func (s *PostgresStore) ScanListings(ctx context.Context, fn func(Listing) bool) error {
	rows, err := txn.Conn(ctx, s.pool).Query(ctx, "SELECT "+listingColumns+" FROM market_listings WHERE active ORDER BY id")
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return err
		}
		if !fn(l) {
			break
		}
	}
	return rows.Err()
}

const auctionColumns = `id, asset_id, seller, starting_price, current_bid, highest_bidder, end_time, active, created_at`

func (s *PostgresStore) Auction(ctx context.Context, id uint64) (Auction, error) {
	row := txn.Conn(ctx, s.pool).QueryRow(ctx, "SELECT "+auctionColumns+" FROM market_auctions WHERE id = $1", id)
	return scanAuction(row)
}

func (s *PostgresStore) PutAuction(ctx context.Context, a Auction) error {
	query := `INSERT INTO market_auctions (` + auctionColumns + `)
              VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
              ON CONFLICT (id) DO UPDATE
              SET current_bid = EXCLUDED.current_bid, highest_bidder = EXCLUDED.highest_bidder, active = EXCLUDED.active`

	_, err := txn.Conn(ctx, s.pool).Exec(ctx, query,
		a.ID, a.AssetID, a.Seller.Hex(), a.StartingPrice, a.CurrentBid, hexOrNil(a.HighestBidder),
		a.EndTime, a.Active, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("put auction %d: %w", a.ID, err)
	}
	return nil
}

func (s *PostgresStore) ScanAuctions(ctx context.Context, fn func(Auction) bool) error {
	rows, err := txn.Conn(ctx, s.pool).Query(ctx, "SELECT "+auctionColumns+" FROM market_auctions WHERE active ORDER BY id")
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		a, err := scanAuction(rows)
		if err != nil {
			return err
		}
		if !fn(a) {
			break
		}
	}
	return rows.Err()
}

const offerColumns = `id, asset_id, buyer, amount, expiration, active, created_at`

func (s *PostgresStore) Offer(ctx context.Context, id uint64) (Offer, error) {
	row := txn.Conn(ctx, s.pool).QueryRow(ctx, "SELECT "+offerColumns+" FROM market_offers WHERE id = $1", id)
	return scanOffer(row)
}

func (s *PostgresStore) PutOffer(ctx context.Context, o Offer) error {
	query := `INSERT INTO market_offers (` + offerColumns + `)
              VALUES ($1, $2, $3, $4, $5, $6, $7)
              ON CONFLICT (id) DO UPDATE SET active = EXCLUDED.active`

	_, err := txn.Conn(ctx, s.pool).Exec(ctx, query, o.ID, o.AssetID, o.Buyer.Hex(), o.Amount, o.Expiration, o.Active, o.CreatedAt)
	if err != nil {
		return fmt.Errorf("put offer %d: %w", o.ID, err)
	}
	return nil
}

func (s *PostgresStore) ScanOffers(ctx context.Context, fn func(Offer) bool) error {
	rows, err := txn.Conn(ctx, s.pool).Query(ctx, "SELECT "+offerColumns+" FROM market_offers WHERE active ORDER BY id")
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		o, err := scanOffer(rows)
		if err != nil {
			return err
		}
		if !fn(o) {
			break
		}
	}
	return rows.Err()
}

func scanListing(row pgx.Row) (Listing, error) {
	var (
		l      Listing
		seller string
	)
	if err := row.Scan(&l.ID, &l.AssetID, &seller, &l.Price, &l.Active, &l.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Listing{}, errRecordNotFound
		}
		return Listing{}, fmt.Errorf("scan listing: %w", err)
	}
	l.Seller = common.HexToAddress(seller)
	return l, nil
}

func scanAuction(row pgx.Row) (Auction, error) {
	var (
		a      Auction
		seller string
		bidder *string
	)
	err := row.Scan(&a.ID, &a.AssetID, &seller, &a.StartingPrice, &a.CurrentBid, &bidder, &a.EndTime, &a.Active, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Auction{}, errRecordNotFound
		}
		return Auction{}, fmt.Errorf("scan auction: %w", err)
	}
	a.Seller = common.HexToAddress(seller)
	if bidder != nil {
		a.HighestBidder = addr(common.HexToAddress(*bidder))
	}
	return a, nil
}

func scanOffer(row pgx.Row) (Offer, error) {
	var (
		o     Offer
		buyer string
	)
	if err := row.Scan(&o.ID, &o.AssetID, &buyer, &o.Amount, &o.Expiration, &o.Active, &o.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Offer{}, errRecordNotFound
		}
		return Offer{}, fmt.Errorf("scan offer: %w", err)
	}
	o.Buyer = common.HexToAddress(buyer)
	return o, nil
}

func hexOrNil(a *common.Address) *string {
	if a == nil {
		return nil
	}
	h := a.Hex()
	return &h
}
