package keeper

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"bazaar/pkg/ledger"
	"bazaar/pkg/market"
	"bazaar/pkg/registry"
)

var keeperAddr = common.HexToAddress("0x00000000000000000000000000000000000000ee")

type mockEngine struct {
	mock.Mock
}

func (m *mockEngine) EndableAuctions(ctx context.Context, after uint64, limit int) ([]market.Auction, error) {
	args := m.Called(ctx, after, limit)
	items, _ := args.Get(0).([]market.Auction)
	return items, args.Error(1)
}

func (m *mockEngine) EndAuction(ctx context.Context, caller common.Address, id uint64) (market.Auction, *market.Settlement, error) {
	args := m.Called(ctx, caller, id)
	s, _ := args.Get(1).(*market.Settlement)
	return args.Get(0).(market.Auction), s, args.Error(2)
}

func TestSweep_CountsOutcomes(t *testing.T) {
	engine := new(mockEngine)
	ctx := context.Background()
	engine.On("EndableAuctions", ctx, uint64(0), batchSize).Return([]market.Auction{{ID: 1}, {ID: 2}, {ID: 3}}, nil)
	engine.On("EndAuction", ctx, keeperAddr, uint64(1)).Return(market.Auction{ID: 1}, &market.Settlement{EntityID: 1}, nil)
	engine.On("EndAuction", ctx, keeperAddr, uint64(2)).Return(market.Auction{ID: 2}, nil, nil)
	engine.On("EndAuction", ctx, keeperAddr, uint64(3)).Return(market.Auction{}, nil, market.ErrPayoutFailed)

	res, err := New(engine, keeperAddr, zap.NewNop()).Sweep(ctx)
	require.NoError(t, err)
	require.Equal(t, Result{Ended: 2, Settled: 1, Failed: 1}, res)
	engine.AssertExpectations(t)
}

func TestSweep_ListError(t *testing.T) {
	engine := new(mockEngine)
	ctx := context.Background()
	engine.On("EndableAuctions", ctx, uint64(0), batchSize).Return(nil, errors.New("db down"))

	_, err := New(engine, keeperAddr, zap.NewNop()).Sweep(ctx)
	require.Error(t, err)
	engine.AssertNotCalled(t, "EndAuction", mock.Anything, mock.Anything, mock.Anything)
}

func TestSweep_EndsExpiredAuctionsOnEngine(t *testing.T) {
	ctx := context.Background()
	operator := common.HexToAddress("0x00000000000000000000000000000000000000f0")
	seller := common.HexToAddress("0x0000000000000000000000000000000000000051")
	bidder := common.HexToAddress("0x00000000000000000000000000000000000000b2")

	reg := registry.NewMemoryRegistry(operator)
	funds := ledger.NewMemoryLedger(common.HexToAddress("0x00000000000000000000000000000000000000c0"))
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	engine := market.New(market.Config{Operator: operator}, reg, funds, market.NewMemoryStore(0), market.WithClock(clock))

	asset, err := reg.Mint(ctx, seller, "")
	require.NoError(t, err)
	require.NoError(t, reg.Approve(ctx, seller, asset.ID, operator))
	_, err = funds.Deposit(ctx, bidder, 100)
	require.NoError(t, err)

	a, err := engine.CreateAuction(ctx, seller, asset.ID, 100, time.Hour)
	require.NoError(t, err)
	_, err = engine.PlaceBid(ctx, bidder, a.ID, 100)
	require.NoError(t, err)

	k := New(engine, keeperAddr, zap.NewNop())
	res, err := k.Sweep(ctx)
	require.NoError(t, err)
	require.Equal(t, Result{}, res)

	now = now.Add(time.Hour)
	res, err = k.Sweep(ctx)
	require.NoError(t, err)
	require.Equal(t, Result{Ended: 1, Settled: 1}, res)

	owner, err := reg.OwnerOf(ctx, asset.ID)
	require.NoError(t, err)
	require.Equal(t, bidder, owner)
}

func TestSweep_PagesPastAuctionsThatKeepFailing(t *testing.T) {
	engine := new(mockEngine)
	ctx := context.Background()

	stuck := make([]market.Auction, batchSize)
	for i := range stuck {
		stuck[i] = market.Auction{ID: uint64(i + 1)}
		engine.On("EndAuction", ctx, keeperAddr, uint64(i+1)).Return(market.Auction{}, nil, market.ErrSellerNoLongerOwner)
	}
	engine.On("EndableAuctions", ctx, uint64(0), batchSize).Return(stuck, nil)
	engine.On("EndableAuctions", ctx, uint64(batchSize), batchSize).Return([]market.Auction{{ID: batchSize + 1}}, nil)
	engine.On("EndAuction", ctx, keeperAddr, uint64(batchSize+1)).Return(market.Auction{ID: batchSize + 1}, nil, nil)

	res, err := New(engine, keeperAddr, zap.NewNop()).Sweep(ctx)
	require.NoError(t, err)
	require.Equal(t, Result{Ended: 1, Failed: batchSize}, res)
	engine.AssertExpectations(t)
}

func TestSweep_HealthyAuctionBehindStuckOnesIsEnded(t *testing.T) {
	ctx := context.Background()
	operator := common.HexToAddress("0x00000000000000000000000000000000000000f0")
	seller := common.HexToAddress("0x0000000000000000000000000000000000000051")
	bidder := common.HexToAddress("0x00000000000000000000000000000000000000b2")
	other := common.HexToAddress("0x00000000000000000000000000000000000000d4")

	reg := registry.NewMemoryRegistry(operator)
	funds := ledger.NewMemoryLedger(common.HexToAddress("0x00000000000000000000000000000000000000c0"))
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	engine := market.New(market.Config{Operator: operator}, reg, funds, market.NewMemoryStore(0), market.WithClock(clock))

	_, err := funds.Deposit(ctx, bidder, 10*(batchSize+1))
	require.NoError(t, err)

	var last market.Auction
	for i := 0; i <= batchSize; i++ {
		asset, err := reg.Mint(ctx, seller, "")
		require.NoError(t, err)
		require.NoError(t, reg.Approve(ctx, seller, asset.ID, operator))

		last, err = engine.CreateAuction(ctx, seller, asset.ID, 10, time.Hour)
		require.NoError(t, err)
		_, err = engine.PlaceBid(ctx, bidder, last.ID, 10)
		require.NoError(t, err)

		if i < batchSize {
			require.NoError(t, reg.OwnerTransfer(ctx, seller, other, asset.ID))
		}
	}

	now = now.Add(time.Hour)
	res, err := New(engine, keeperAddr, zap.NewNop()).Sweep(ctx)
	require.NoError(t, err)
	require.Equal(t, Result{Ended: 1, Settled: 1, Failed: batchSize}, res)

	got, err := engine.GetAuction(ctx, last.ID)
	require.NoError(t, err)
	require.False(t, got.Active)
}

func TestStart_RejectsBadSpec(t *testing.T) {
	k := New(new(mockEngine), keeperAddr, zap.NewNop())
	require.Error(t, k.Start("every now and then"))
	k.Stop()
}
