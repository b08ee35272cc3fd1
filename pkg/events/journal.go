package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"bazaar/pkg/market"
)

// Filter narrows a journal listing. Zero values match everything.
type Filter struct {
	AssetID *uint64
	Type    market.EventType
	Limit   int
	Offset  int
}

// Journal keeps an append-only record of committed events.
type Journal interface {
	Append(ctx context.Context, ev market.Event) error
	// List returns matching events oldest first, with the total match count.
	List(ctx context.Context, f Filter) ([]market.Event, int64, error)
}

// Recorder adapts a Journal to market.Notifier, logging write failures.
type Recorder struct {
	journal Journal
	logger  *zap.Logger
}

func NewRecorder(journal Journal, logger *zap.Logger) *Recorder {
	return &Recorder{journal: journal, logger: logger}
}

func (r *Recorder) Notify(ctx context.Context, ev market.Event) {
	if err := r.journal.Append(ctx, ev); err != nil {
		r.logger.Error("failed to journal event",
			zap.String("event_id", ev.ID.String()),
			zap.String("type", string(ev.Type)),
			zap.Error(err),
		)
	}
}

type postgresJournal struct {
	pool *pgxpool.Pool
}

func NewPostgresJournal(pool *pgxpool.Pool) Journal {
	return &postgresJournal{pool: pool}
}

func (j *postgresJournal) Append(ctx context.Context, ev market.Event) error {
	query := `INSERT INTO market_events (id, type, entity_id, asset_id, actor, seller, buyer, amount, fee, occurred_at)
              VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
              ON CONFLICT (id) DO NOTHING`

	_, err := j.pool.Exec(ctx, query,
		ev.ID, string(ev.Type), ev.EntityID, ev.AssetID, ev.Actor.Hex(),
		hexOrNil(ev.Seller), hexOrNil(ev.Buyer), ev.Amount, ev.Fee, ev.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("append event %s: %w", ev.ID, err)
	}
	return nil
}

func (j *postgresJournal) List(ctx context.Context, f Filter) ([]market.Event, int64, error) {
	where := " WHERE ($1::BIGINT IS NULL OR asset_id = $1) AND ($2 = '' OR type = $2)"

	var assetID *int64
	if f.AssetID != nil {
		v := int64(*f.AssetID)
		assetID = &v
	}

	query := `SELECT id, type, entity_id, asset_id, actor, seller, buyer, amount, fee, occurred_at
              FROM market_events` + where + `
              ORDER BY occurred_at, id
              LIMIT $3 OFFSET $4`

	rows, err := j.pool.Query(ctx, query, assetID, string(f.Type), f.Limit, f.Offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	items := make([]market.Event, 0)
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int64
	if err := j.pool.QueryRow(ctx, "SELECT COUNT(*) FROM market_events"+where, assetID, string(f.Type)).Scan(&total); err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func scanEvent(row pgx.Row) (market.Event, error) {
	var (
		ev         market.Event
		id         uuid.UUID
		typ, actor string
		seller     *string
		buyer      *string
		occurredAt time.Time
	)
	err := row.Scan(&id, &typ, &ev.EntityID, &ev.AssetID, &actor, &seller, &buyer, &ev.Amount, &ev.Fee, &occurredAt)
	if err != nil {
		return market.Event{}, fmt.Errorf("scan event: %w", err)
	}
	ev.ID = id
	ev.Type = market.EventType(typ)
	ev.Actor = common.HexToAddress(actor)
	ev.Seller = addrOrNil(seller)
	ev.Buyer = addrOrNil(buyer)
	ev.OccurredAt = occurredAt
	return ev, nil
}

func hexOrNil(a *common.Address) *string {
	if a == nil {
		return nil
	}
	h := a.Hex()
	return &h
}

func addrOrNil(s *string) *common.Address {
	if s == nil {
		return nil
	}
	a := common.HexToAddress(*s)
	return &a
}

// MemoryJournal keeps events in process.
type MemoryJournal struct {
	mu     sync.RWMutex
	events []market.Event
}

func NewMemoryJournal() *MemoryJournal {
	return &MemoryJournal{}
}

func (j *MemoryJournal) Append(_ context.Context, ev market.Event) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.events = append(j.events, ev)
	return nil
}

func (j *MemoryJournal) List(_ context.Context, f Filter) ([]market.Event, int64, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	items := make([]market.Event, 0)
	var total int64
	for _, ev := range j.events {
		if f.AssetID != nil && ev.AssetID != *f.AssetID {
			continue
		}
		if f.Type != "" && ev.Type != f.Type {
			continue
		}
		total++
		if total <= int64(f.Offset) || len(items) >= f.Limit {
			continue
		}
		items = append(items, ev)
	}
	return items, total, nil
}
