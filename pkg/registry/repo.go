package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"bazaar/pkg/txn"
)

var (
	ErrAssetNotFound = errors.New("asset not found")
	ErrNotAssetOwner = errors.New("caller is not the asset owner")
	ErrNotApproved   = errors.New("operator not approved for asset")
	ErrZeroAddress   = errors.New("zero address")
	ErrAssetBusy     = errors.New("asset is being settled, retry later")
)

// Registry is the source of truth for asset ownership and transfer approval.
// Each registry trusts exactly one operator (the marketplace) for Transfer.
type Registry interface {
	Mint(ctx context.Context, owner common.Address, tokenURI string) (Asset, error)
	GetAsset(ctx context.Context, id uint64) (Asset, error)
	ListAssetsByOwner(ctx context.Context, owner common.Address, limit, offset int) ([]Asset, int64, error)
	OwnerOf(ctx context.Context, id uint64) (common.Address, error)
	IsApproved(ctx context.Context, id uint64, operator common.Address) (bool, error)
	// Approve lets operator move the asset once. Only the current owner may approve.
	Approve(ctx context.Context, owner common.Address, id uint64, operator common.Address) error
	// OwnerTransfer moves an asset at the owner's own request.
	OwnerTransfer(ctx context.Context, owner, to common.Address, id uint64) error
	// Transfer moves an asset on behalf of from; the registry operator must be approved.
	Transfer(ctx context.Context, from, to common.Address, id uint64) error
}

type postgresRegistry struct {
	pool     *pgxpool.Pool
	operator common.Address
}

func NewPostgresRegistry(pool *pgxpool.Pool, operator common.Address) Registry {
	return &postgresRegistry{pool: pool, operator: operator}
}

func (r *postgresRegistry) Mint(ctx context.Context, owner common.Address, tokenURI string) (Asset, error) {
	if owner == (common.Address{}) {
		return Asset{}, ErrZeroAddress
	}

	query := `INSERT INTO registry_assets (owner, token_uri, created_at)
              VALUES ($1, $2, NOW())
              RETURNING id, owner, approved, token_uri, created_at`

	row := txn.Conn(ctx, r.pool).QueryRow(ctx, query, owner.Hex(), tokenURI)
	return scanAsset(row)
}

func (r *postgresRegistry) GetAsset(ctx context.Context, id uint64) (Asset, error) {
	query := `SELECT id, owner, approved, token_uri, created_at
              FROM registry_assets
              WHERE id = $1`

	return scanAsset(txn.Conn(ctx, r.pool).QueryRow(ctx, query, id))
}

func (r *postgresRegistry) ListAssetsByOwner(ctx context.Context, owner common.Address, limit, offset int) ([]Asset, int64, error) {
	conn := txn.Conn(ctx, r.pool)
	query := `SELECT id, owner, approved, token_uri, created_at
              FROM registry_assets
              WHERE owner = $1
              ORDER BY id
              LIMIT $2 OFFSET $3`

	rows, err := conn.Query(ctx, query, owner.Hex(), limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	items := make([]Asset, 0)
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, a)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int64
	if err := conn.QueryRow(ctx, "SELECT COUNT(*) FROM registry_assets WHERE owner = $1", owner.Hex()).Scan(&total); err != nil {
		return nil, 0, err
	}

	return items, total, nil
}

func (r *postgresRegistry) OwnerOf(ctx context.Context, id uint64) (common.Address, error) {
	var owner string
	err := txn.Conn(ctx, r.pool).QueryRow(ctx, "SELECT owner FROM registry_assets WHERE id = $1", id).Scan(&owner)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return common.Address{}, ErrAssetNotFound
		}
		return common.Address{}, err
	}
	return common.HexToAddress(owner), nil
}

func (r *postgresRegistry) IsApproved(ctx context.Context, id uint64, operator common.Address) (bool, error) {
	var approved *string
	err := txn.Conn(ctx, r.pool).QueryRow(ctx, "SELECT approved FROM registry_assets WHERE id = $1", id).Scan(&approved)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, ErrAssetNotFound
		}
		return false, err
	}
	return approved != nil && common.HexToAddress(*approved) == operator, nil
}

func (r *postgresRegistry) Approve(ctx context.Context, owner common.Address, id uint64, operator common.Address) error {
	cmd, err := txn.Conn(ctx, r.pool).Exec(ctx,
		"UPDATE registry_assets SET approved = $3 WHERE id = $1 AND owner = $2",
		id, owner.Hex(), operator.Hex())
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return r.missingOrNotOwner(ctx, id)
	}
	return nil
}

func (r *postgresRegistry) OwnerTransfer(ctx context.Context, owner, to common.Address, id uint64) error {
	if to == (common.Address{}) {
		return ErrZeroAddress
	}
	cmd, err := txn.Conn(ctx, r.pool).Exec(ctx,
		"UPDATE registry_assets SET owner = $3, approved = NULL WHERE id = $1 AND owner = $2",
		id, owner.Hex(), to.Hex())
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return r.missingOrNotOwner(ctx, id)
	}
	return nil
}

func (r *postgresRegistry) Transfer(ctx context.Context, from, to common.Address, id uint64) error {
	if to == (common.Address{}) {
		return ErrZeroAddress
	}
	cmd, err := txn.Conn(ctx, r.pool).Exec(ctx,
		"UPDATE registry_assets SET owner = $3, approved = NULL WHERE id = $1 AND owner = $2 AND approved = $4",
		id, from.Hex(), to.Hex(), r.operator.Hex())
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		owner, err := r.OwnerOf(ctx, id)
		if err != nil {
			return err
		}
		if owner != from {
			return ErrNotAssetOwner
		}
		return ErrNotApproved
	}
	return nil
}

func (r *postgresRegistry) missingOrNotOwner(ctx context.Context, id uint64) error {
	if _, err := r.OwnerOf(ctx, id); err != nil {
		return err
	}
	return ErrNotAssetOwner
}

func scanAsset(row pgx.Row) (Asset, error) {
	var (
		a        Asset
		owner    string
		approved *string
		created  time.Time
	)
	if err := row.Scan(&a.ID, &owner, &approved, &a.TokenURI, &created); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Asset{}, ErrAssetNotFound
		}
		return Asset{}, fmt.Errorf("scan asset: %w", err)
	}
	a.Owner = common.HexToAddress(owner)
	if approved != nil {
		addr := common.HexToAddress(*approved)
		a.Approved = &addr
	}
	a.CreatedAt = created
	return a, nil
}
