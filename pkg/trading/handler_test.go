package trading

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"bazaar/pkg/auth"
	"bazaar/pkg/market"
	"bazaar/pkg/response"
)

var (
	alice = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
)

type mockService struct {
	mock.Mock
}

func (m *mockService) List(ctx context.Context, seller common.Address, assetID uint64, price int64) (market.Listing, error) {
	args := m.Called(ctx, seller, assetID, price)
	return args.Get(0).(market.Listing), args.Error(1)
}

func (m *mockService) Buy(ctx context.Context, buyer common.Address, listingID uint64, payment int64) (market.Settlement, error) {
	args := m.Called(ctx, buyer, listingID, payment)
	return args.Get(0).(market.Settlement), args.Error(1)
}

func (m *mockService) CancelListing(ctx context.Context, caller common.Address, listingID uint64) (market.Listing, error) {
	args := m.Called(ctx, caller, listingID)
	return args.Get(0).(market.Listing), args.Error(1)
}

func (m *mockService) CreateAuction(ctx context.Context, seller common.Address, assetID uint64, startingPrice int64, duration time.Duration) (market.Auction, error) {
	args := m.Called(ctx, seller, assetID, startingPrice, duration)
	return args.Get(0).(market.Auction), args.Error(1)
}

func (m *mockService) PlaceBid(ctx context.Context, bidder common.Address, auctionID uint64, amount int64) (market.Auction, error) {
	args := m.Called(ctx, bidder, auctionID, amount)
	return args.Get(0).(market.Auction), args.Error(1)
}

func (m *mockService) EndAuction(ctx context.Context, caller common.Address, auctionID uint64) (market.Auction, *market.Settlement, error) {
	args := m.Called(ctx, caller, auctionID)
	s, _ := args.Get(1).(*market.Settlement)
	return args.Get(0).(market.Auction), s, args.Error(2)
}

func (m *mockService) MakeOffer(ctx context.Context, buyer common.Address, assetID uint64, amount int64, duration time.Duration) (market.Offer, error) {
	args := m.Called(ctx, buyer, assetID, amount, duration)
	return args.Get(0).(market.Offer), args.Error(1)
}

func (m *mockService) AcceptOffer(ctx context.Context, caller common.Address, offerID uint64) (market.Settlement, error) {
	args := m.Called(ctx, caller, offerID)
	return args.Get(0).(market.Settlement), args.Error(1)
}

func (m *mockService) CancelOffer(ctx context.Context, caller common.Address, offerID uint64) (market.Offer, error) {
	args := m.Called(ctx, caller, offerID)
	return args.Get(0).(market.Offer), args.Error(1)
}

func (m *mockService) SetFee(ctx context.Context, caller common.Address, bps uint32) error {
	return m.Called(ctx, caller, bps).Error(0)
}

func (m *mockService) Pause(ctx context.Context, caller common.Address) error {
	return m.Called(ctx, caller).Error(0)
}

func (m *mockService) Unpause(ctx context.Context, caller common.Address) error {
	return m.Called(ctx, caller).Error(0)
}

func (m *mockService) Withdraw(ctx context.Context, caller common.Address) (int64, error) {
	args := m.Called(ctx, caller)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockService) ListActiveListings(ctx context.Context, start, count int) ([]market.Listing, error) {
	args := m.Called(ctx, start, count)
	items, _ := args.Get(0).([]market.Listing)
	return items, args.Error(1)
}

func (m *mockService) ListActiveAuctions(ctx context.Context, start, count int) ([]market.Auction, error) {
	args := m.Called(ctx, start, count)
	items, _ := args.Get(0).([]market.Auction)
	return items, args.Error(1)
}

func (m *mockService) ListActiveOffers(ctx context.Context, start, count int) ([]market.Offer, error) {
	args := m.Called(ctx, start, count)
	items, _ := args.Get(0).([]market.Offer)
	return items, args.Error(1)
}

func (m *mockService) GetListing(ctx context.Context, id uint64) (market.Listing, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(market.Listing), args.Error(1)
}

func (m *mockService) GetAuction(ctx context.Context, id uint64) (market.Auction, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(market.Auction), args.Error(1)
}

func (m *mockService) GetOffer(ctx context.Context, id uint64) (market.Offer, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(market.Offer), args.Error(1)
}

func (m *mockService) Stats(ctx context.Context) (market.Stats, error) {
	args := m.Called(ctx)
	return args.Get(0).(market.Stats), args.Error(1)
}

func (m *mockService) Status(ctx context.Context) (market.Status, error) {
	args := m.Called(ctx)
	return args.Get(0).(market.Status), args.Error(1)
}

type recordingObserver struct {
	ops  []string
	errs []error
}

func (o *recordingObserver) ObserveOperation(op string, _ time.Time, err error) {
	o.ops = append(o.ops, op)
	o.errs = append(o.errs, err)
}

func fakeAuthn(caller common.Address) gin.HandlerFunc {
	return func(c *gin.Context) {
		auth.SetCaller(c, caller)
		c.Next()
	}
}

func setupTradingRouter(svc Service, caller common.Address, obs Observer) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewTradingHandler(svc, fakeAuthn(caller), obs, zap.NewNop()).RegisterRoutes(r)
	return r
}

func doJSON(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) response.APIResponse {
	t.Helper()
	var resp response.APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestTradingHandler_CreateListing_Success(t *testing.T) {
	svc := new(mockService)
	obs := &recordingObserver{}
	r := setupTradingRouter(svc, alice, obs)

	svc.On("List", mock.Anything, alice, uint64(1), int64(100)).
		Return(market.Listing{ID: 1, AssetID: 1, Seller: alice, Price: 100, Active: true}, nil)

	w := doJSON(r, http.MethodPost, "/listings", `{"asset_id":1,"price":100}`)

	require.Equal(t, http.StatusCreated, w.Code)
	resp := decode(t, w)
	require.True(t, resp.Success)
	require.Equal(t, "listing created", resp.Message)
	require.Equal(t, []string{"list"}, obs.ops)
	require.NoError(t, obs.errs[0])
	svc.AssertExpectations(t)
}

func TestTradingHandler_CreateListing_InvalidPayload(t *testing.T) {
	svc := new(mockService)
	r := setupTradingRouter(svc, alice, nil)

	w := doJSON(r, http.MethodPost, "/listings", `{"price":"lots"}`)

	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "InvalidRequest", decode(t, w).Code)
	svc.AssertNotCalled(t, "List", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestTradingHandler_ErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"validation", market.ErrInvalidPrice, http.StatusBadRequest, "InvalidPrice"},
		{"authorization", market.ErrNotOwner, http.StatusForbidden, "NotOwner"},
		{"state", market.ErrInactiveListing, http.StatusConflict, "InactiveListing"},
		{"external", market.ErrSellerNoLongerOwner, http.StatusFailedDependency, "SellerNoLongerOwner"},
		{"paused", market.ErrPaused, http.StatusServiceUnavailable, "MarketplacePaused"},
		{"unexpected", errors.New("connection reset"), http.StatusInternalServerError, "Internal"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := new(mockService)
			r := setupTradingRouter(svc, bob, nil)

			svc.On("Buy", mock.Anything, bob, uint64(4), int64(50)).Return(market.Settlement{}, tc.err)

			w := doJSON(r, http.MethodPost, "/listings/4/buy", `{"payment":50}`)

			require.Equal(t, tc.status, w.Code)
			resp := decode(t, w)
			require.False(t, resp.Success)
			require.Equal(t, tc.code, resp.Code)
			if tc.status == http.StatusInternalServerError {
				require.Equal(t, "internal error", resp.Message)
			}
		})
	}
}

func TestTradingHandler_InvalidID(t *testing.T) {
	svc := new(mockService)
	r := setupTradingRouter(svc, alice, nil)

	for _, path := range []string{"/listings/0/cancel", "/auctions/x/end", "/offers/-1/accept"} {
		w := doJSON(r, http.MethodPost, path, "")
		require.Equal(t, http.StatusBadRequest, w.Code, path)
		require.Equal(t, "InvalidID", decode(t, w).Code, path)
	}
}

func TestTradingHandler_CreateAuction_Duration(t *testing.T) {
	svc := new(mockService)
	r := setupTradingRouter(svc, alice, nil)

	svc.On("CreateAuction", mock.Anything, alice, uint64(2), int64(10), 2*time.Hour).
		Return(market.Auction{ID: 1, AssetID: 2, Seller: alice, StartingPrice: 10, Active: true}, nil)

	w := doJSON(r, http.MethodPost, "/auctions", `{"asset_id":2,"starting_price":10,"duration_seconds":7200}`)
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(r, http.MethodPost, "/auctions", `{"asset_id":2,"starting_price":10,"duration_seconds":9223372036854775807}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "InvalidDuration", decode(t, w).Code)

	svc.AssertNumberOfCalls(t, "CreateAuction", 1)
}

func TestTradingHandler_EndAuction_NoBids(t *testing.T) {
	svc := new(mockService)
	r := setupTradingRouter(svc, bob, nil)

	svc.On("EndAuction", mock.Anything, bob, uint64(3)).
		Return(market.Auction{ID: 3, Seller: alice}, (*market.Settlement)(nil), nil)

	w := doJSON(r, http.MethodPost, "/auctions/3/end", "")

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Data struct {
			Auction    market.Auction     `json:"auction"`
			Settlement *market.Settlement `json:"settlement"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, uint64(3), body.Data.Auction.ID)
	require.Nil(t, body.Data.Settlement)
	svc.AssertExpectations(t)
}

func TestTradingHandler_MakeOffer(t *testing.T) {
	svc := new(mockService)
	r := setupTradingRouter(svc, bob, nil)

	svc.On("MakeOffer", mock.Anything, bob, uint64(5), int64(40), time.Hour).
		Return(market.Offer{ID: 1, AssetID: 5, Buyer: bob, Amount: 40, Active: true}, nil)

	w := doJSON(r, http.MethodPost, "/offers", `{"asset_id":5,"amount":40,"duration_seconds":3600}`)

	require.Equal(t, http.StatusCreated, w.Code)
	svc.AssertExpectations(t)
}

func TestTradingHandler_ListListings_Paging(t *testing.T) {
	svc := new(mockService)
	r := setupTradingRouter(svc, alice, nil)

	svc.On("ListActiveListings", mock.Anything, 0, defaultPageSize).Return([]market.Listing{{ID: 1}}, nil).Once()
	svc.On("ListActiveListings", mock.Anything, 5, maxPageSize).Return([]market.Listing{}, nil).Once()

	w := doJSON(r, http.MethodGet, "/listings", "")
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(r, http.MethodGet, "/listings?start=5&count=1000", "")
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(r, http.MethodGet, "/listings?start=abc", "")
	require.Equal(t, http.StatusBadRequest, w.Code)

	svc.AssertExpectations(t)
}

func TestTradingHandler_GetOffer_NotFound(t *testing.T) {
	svc := new(mockService)
	r := setupTradingRouter(svc, alice, nil)

	svc.On("GetOffer", mock.Anything, uint64(9)).Return(market.Offer{}, market.ErrNotFound)

	w := doJSON(r, http.MethodGet, "/offers/9", "")

	require.Equal(t, http.StatusNotFound, w.Code)
	require.Equal(t, "NotFound", decode(t, w).Code)
}

func TestTradingHandler_Admin(t *testing.T) {
	svc := new(mockService)
	obs := &recordingObserver{}
	r := setupTradingRouter(svc, alice, obs)

	svc.On("SetFee", mock.Anything, alice, uint32(2000)).Return(market.ErrFeeTooHigh)
	svc.On("Pause", mock.Anything, alice).Return(nil)
	svc.On("Unpause", mock.Anything, alice).Return(market.ErrNotPaused)
	svc.On("Withdraw", mock.Anything, alice).Return(int64(75), nil)

	w := doJSON(r, http.MethodPut, "/admin/fee", `{"fee_bps":2000}`)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	require.Equal(t, "FeeTooHigh", decode(t, w).Code)

	w = doJSON(r, http.MethodPost, "/admin/pause", "")
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(r, http.MethodPost, "/admin/unpause", "")
	require.Equal(t, http.StatusConflict, w.Code)

	w = doJSON(r, http.MethodPost, "/admin/withdraw", "")
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Data WithdrawResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, int64(75), body.Data.Amount)

	require.Equal(t, []string{"set_fee", "pause", "unpause", "withdraw"}, obs.ops)
	svc.AssertExpectations(t)
}

func TestTradingHandler_RequiresCaller(t *testing.T) {
	svc := new(mockService)
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewTradingHandler(svc, func(c *gin.Context) { c.Next() }, nil, zap.NewNop()).RegisterRoutes(r)

	w := doJSON(r, http.MethodPost, "/offers/1/cancel", "")

	require.Equal(t, http.StatusUnauthorized, w.Code)
	svc.AssertNotCalled(t, "CancelOffer", mock.Anything, mock.Anything, mock.Anything)
}
