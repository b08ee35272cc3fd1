// Package market is the trading engine: fixed-price listings, ascending
// auctions and buyer offers, settled against an asset registry and a funds
// ledger.
//
// Every mutating entry point runs serialized and inside one transaction that
// the store, the registry and the ledger all join, so a failed payout or
// refund leaves no trace. A marker on the context handed to collaborators,
// backed by the id of the goroutine holding the engine, lets it reject calls
// that re-enter it while an operation is still in flight.
package market

import (
	"bytes"
	"context"
	"errors"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"bazaar/pkg/txn"
)

const DefaultMinDuration = time.Hour

type Config struct {
	Admin common.Address
	// Operator is the address the registry must approve before the engine
	// can move an asset.
	Operator           common.Address
	MinAuctionDuration time.Duration
	MinOfferDuration   time.Duration
}

type Option func(*Engine)

func WithClock(clock Clock) Option {
	return func(e *Engine) { e.clock = clock }
}

func WithNotifier(n Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithTransactor sets the unit of work shared with the collaborators. It
// defaults to an in-memory journal.
func WithTransactor(t txn.Transactor) Option {
	return func(e *Engine) { e.tx = t }
}

type Engine struct {
	mu     sync.RWMutex
	// id of the goroutine holding mu for writing, or 0
	holder atomic.Uint64

	queueMu  sync.Mutex
	queue    []pending
	draining bool

	cfg      Config
	registry AssetRegistry
	funds    Funds
	store    Store
	tx       txn.Transactor
	clock    Clock
	notifier Notifier
	logger   *zap.Logger
}

func New(cfg Config, registry AssetRegistry, funds Funds, store Store, opts ...Option) *Engine {
	if cfg.MinAuctionDuration <= 0 {
		cfg.MinAuctionDuration = DefaultMinDuration
	}
	if cfg.MinOfferDuration <= 0 {
		cfg.MinOfferDuration = DefaultMinDuration
	}

	e := &Engine{
		cfg:      cfg,
		registry: registry,
		funds:    funds,
		store:    store,
		tx:       txn.NewMemoryTransactor(),
		clock:    time.Now,
		notifier: nopNotifier{},
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Admin() common.Address {
	return e.cfg.Admin
}

type callKey struct{}

func (e *Engine) inCall(ctx context.Context) bool {
	owner, _ := ctx.Value(callKey{}).(*Engine)
	return owner == e
}

// call is the scratch space of one mutating operation. state is written back
// when the operation succeeds; events are published after commit.
type call struct {
	now    time.Time
	state  State
	events []Event
}

func (c *call) emit(ev Event) {
	ev.ID = uuid.New()
	ev.OccurredAt = c.now
	c.events = append(c.events, ev)
}

// recordSale books the fee into the treasury and the sale into the stats.
func (c *call) recordSale(kind Kind, entityID, assetID uint64, seller, buyer common.Address, amount int64) (Settlement, error) {
	fee, proceeds := ComputeFee(amount, c.state.FeeBps)

	treasury, err := addChecked(c.state.Treasury, fee)
	if err != nil {
		return Settlement{}, err
	}
	volume, err := addChecked(c.state.TotalVolume, amount)
	if err != nil {
		return Settlement{}, err
	}
	sales, err := addChecked(c.state.TotalSales, 1)
	if err != nil {
		return Settlement{}, err
	}
	c.state.Treasury = treasury
	c.state.TotalVolume = volume
	c.state.TotalSales = sales

	return Settlement{
		Kind:     kind,
		EntityID: entityID,
		AssetID:  assetID,
		Seller:   seller,
		Buyer:    buyer,
		Amount:   amount,
		Fee:      fee,
		Proceeds: proceeds,
	}, nil
}

// mutate runs fn as one serialized, all-or-nothing operation.
func (e *Engine) mutate(ctx context.Context, op string, caller common.Address, fn func(ctx context.Context, c *call) error) error {
	if e.inCall(ctx) || !e.lock() {
		e.logger.Warn("reentrant call rejected", zap.String("op", op), zap.String("caller", caller.Hex()))
		return ErrReentrantCall
	}

	err := func() error {
		defer e.unlock()

		var events []Event
		err := e.tx.WithinTx(context.WithValue(ctx, callKey{}, e), func(ctx context.Context) error {
			st, err := e.store.LockState(ctx)
			if err != nil {
				return err
			}

			c := &call{now: e.clock(), state: st}
			if err := fn(ctx, c); err != nil {
				return err
			}
			if c.state != st {
				if err := e.store.SaveState(ctx, c.state); err != nil {
					return err
				}
			}
			events = c.events
			return nil
		})
		if err == nil {
			e.enqueue(context.WithoutCancel(ctx), events)
		}
		return err
	}()
	if err != nil {
		e.logger.Debug("operation rejected",
			zap.String("op", op),
			zap.String("caller", caller.Hex()),
			zap.String("code", CodeOf(err)),
			zap.Error(err),
		)
		return err
	}

	e.publish()
	return nil
}

// lock takes mu for writing. It reports false when the calling goroutine
// already holds it, which happens when recipient code calls back in with a
// context other than the one it was handed.
func (e *Engine) lock() bool {
	gid := goroutineID()
	if !e.mu.TryLock() {
		if gid != 0 && e.holder.Load() == gid {
			return false
		}
		e.mu.Lock()
	}
	e.holder.Store(gid)
	return true
}

func (e *Engine) unlock() {
	e.holder.Store(0)
	e.mu.Unlock()
}

// holding reports whether the calling goroutine holds mu for writing.
func (e *Engine) holding() bool {
	gid := goroutineID()
	return gid != 0 && e.holder.Load() == gid
}

// goroutineID parses the current goroutine's id from its stack header
// ("goroutine 42 [running]:"). It returns 0 if the header is unreadable.
func goroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	fields := bytes.Fields(bytes.TrimPrefix(buf[:n], []byte("goroutine ")))
	if len(fields) == 0 {
		return 0
	}
	id, err := strconv.ParseUint(string(fields[0]), 10, 64)
	if err != nil {
		return 0
	}
	return id
}

type pending struct {
	ctx context.Context
	ev  Event
}

// enqueue appends committed events. Caller holds mu, so the queue follows
// commit order.
func (e *Engine) enqueue(ctx context.Context, events []Event) {
	if len(events) == 0 {
		return
	}
	e.queueMu.Lock()
	for _, ev := range events {
		e.queue = append(e.queue, pending{ctx: ctx, ev: ev})
	}
	e.queueMu.Unlock()
}

// publish hands queued events to the notifier in order. One goroutine drains
// at a time; a caller that finds a drain under way, including a notifier
// that called back into the engine, leaves its events to that drain.
func (e *Engine) publish() {
	e.queueMu.Lock()
	if e.draining {
		e.queueMu.Unlock()
		return
	}
	e.draining = true
	e.queueMu.Unlock()

	done := false
	defer func() {
		if !done {
			e.queueMu.Lock()
			e.draining = false
			e.queueMu.Unlock()
		}
	}()

	for {
		e.queueMu.Lock()
		if len(e.queue) == 0 {
			e.draining = false
			done = true
			e.queueMu.Unlock()
			return
		}
		p := e.queue[0]
		e.queue[0] = pending{}
		e.queue = e.queue[1:]
		e.queueMu.Unlock()

		e.logger.Info("marketplace event",
			zap.String("type", string(p.ev.Type)),
			zap.Uint64("entity_id", p.ev.EntityID),
			zap.Uint64("asset_id", p.ev.AssetID),
			zap.String("actor", p.ev.Actor.Hex()),
			zap.Int64("amount", p.ev.Amount),
			zap.Int64("fee", p.ev.Fee),
		)
		e.notifier.Notify(p.ctx, p.ev)
	}
}

// read runs fn under the read lock. Reads issued by a collaborator from inside
// an operation, recognised by context or by goroutine, run directly.
func (e *Engine) read(ctx context.Context, fn func(ctx context.Context) error) error {
	if e.inCall(ctx) || e.holding() {
		return fn(ctx)
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return fn(ctx)
}

func (e *Engine) ownerOf(ctx context.Context, assetID uint64) (common.Address, error) {
	owner, err := e.registry.OwnerOf(ctx, assetID)
	if err != nil {
		return common.Address{}, wrap(ErrAssetLookupFailed, err)
	}
	return owner, nil
}

// requireListable checks that seller owns assetID and has approved the engine.
func (e *Engine) requireListable(ctx context.Context, assetID uint64, seller common.Address) error {
	owner, err := e.ownerOf(ctx, assetID)
	if err != nil {
		return err
	}
	if owner != seller {
		return ErrNotOwner
	}
	return e.requireApproved(ctx, assetID)
}

func (e *Engine) requireApproved(ctx context.Context, assetID uint64) error {
	approved, err := e.registry.IsApproved(ctx, assetID, e.cfg.Operator)
	if err != nil {
		return wrap(ErrAssetLookupFailed, err)
	}
	if !approved {
		return ErrNotApproved
	}
	return nil
}

func (e *Engine) collect(ctx context.Context, from common.Address, amount int64) error {
	if err := e.funds.Collect(ctx, from, amount); err != nil {
		return wrap(ErrPaymentFailed, err)
	}
	return nil
}

// deliver moves the asset to the buyer and pays the seller.
func (e *Engine) deliver(ctx context.Context, s Settlement) error {
	if err := e.registry.Transfer(ctx, s.Seller, s.Buyer, s.AssetID); err != nil {
		return wrap(ErrAssetTransferFailed, err)
	}
	if err := e.funds.Send(ctx, s.Seller, s.Proceeds); err != nil {
		return wrap(ErrPayoutFailed, err)
	}
	return nil
}

var errRecordNotFound = errors.New("record not found")
