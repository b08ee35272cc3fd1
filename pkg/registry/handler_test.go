package registry

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"bazaar/pkg/auth"
	"bazaar/pkg/response"
)

type mockRegistry struct {
	mock.Mock
}

func (m *mockRegistry) Mint(ctx context.Context, owner common.Address, tokenURI string) (Asset, error) {
	args := m.Called(ctx, owner, tokenURI)
	a, _ := args.Get(0).(Asset)
	return a, args.Error(1)
}

func (m *mockRegistry) GetAsset(ctx context.Context, id uint64) (Asset, error) {
	args := m.Called(ctx, id)
	a, _ := args.Get(0).(Asset)
	return a, args.Error(1)
}

func (m *mockRegistry) ListAssetsByOwner(ctx context.Context, owner common.Address, limit, offset int) ([]Asset, int64, error) {
	args := m.Called(ctx, owner, limit, offset)
	items, _ := args.Get(0).([]Asset)
	return items, args.Get(1).(int64), args.Error(2)
}

func (m *mockRegistry) OwnerOf(ctx context.Context, id uint64) (common.Address, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(common.Address), args.Error(1)
}

func (m *mockRegistry) IsApproved(ctx context.Context, id uint64, op common.Address) (bool, error) {
	args := m.Called(ctx, id, op)
	return args.Bool(0), args.Error(1)
}

func (m *mockRegistry) Approve(ctx context.Context, owner common.Address, id uint64, op common.Address) error {
	return m.Called(ctx, owner, id, op).Error(0)
}

func (m *mockRegistry) OwnerTransfer(ctx context.Context, owner, to common.Address, id uint64) error {
	return m.Called(ctx, owner, to, id).Error(0)
}

func (m *mockRegistry) Transfer(ctx context.Context, from, to common.Address, id uint64) error {
	return m.Called(ctx, from, to, id).Error(0)
}

func fakeAuthn(caller common.Address) gin.HandlerFunc {
	return func(c *gin.Context) {
		auth.SetCaller(c, caller)
		c.Next()
	}
}

func setupRegistryRouter(reg Registry, caller common.Address) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewRegistryHandler(reg, fakeAuthn(caller)).RegisterRoutes(r)
	return r
}

func TestRegistryHandler_Mint_Success(t *testing.T) {
	reg := new(mockRegistry)
	r := setupRegistryRouter(reg, alice)

	reg.On("Mint", mock.Anything, alice, "ipfs://x").Return(Asset{ID: 7, Owner: alice, TokenURI: "ipfs://x"}, nil)

	req := httptest.NewRequest(http.MethodPost, "/assets", strings.NewReader(`{"token_uri":"ipfs://x"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code)
	var resp response.APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.True(t, resp.Success)
	require.Equal(t, "asset minted", resp.Message)

	reg.AssertExpectations(t)
}

func TestRegistryHandler_GetAsset_NotFound(t *testing.T) {
	reg := new(mockRegistry)
	r := setupRegistryRouter(reg, alice)

	reg.On("GetAsset", mock.Anything, uint64(3)).Return(Asset{}, ErrAssetNotFound)

	req := httptest.NewRequest(http.MethodGet, "/assets/3", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusNotFound, w.Code)
	reg.AssertExpectations(t)
}

func TestRegistryHandler_Approve_NotOwner(t *testing.T) {
	reg := new(mockRegistry)
	r := setupRegistryRouter(reg, bob)

	reg.On("Approve", mock.Anything, bob, uint64(1), operator).Return(ErrNotAssetOwner)

	body := `{"operator":"` + operator.Hex() + `"}`
	req := httptest.NewRequest(http.MethodPost, "/assets/1/approve", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusForbidden, w.Code)
	reg.AssertExpectations(t)
}

func TestRegistryHandler_Transfer_InvalidAddress(t *testing.T) {
	reg := new(mockRegistry)
	r := setupRegistryRouter(reg, alice)

	req := httptest.NewRequest(http.MethodPost, "/assets/1/transfer", strings.NewReader(`{"to":"nope"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
	reg.AssertNotCalled(t, "OwnerTransfer", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRegistryHandler_ListByOwner_Defaults(t *testing.T) {
	reg := new(mockRegistry)
	r := setupRegistryRouter(reg, alice)

	reg.On("ListAssetsByOwner", mock.Anything, alice, 10, 0).Return([]Asset{{ID: 1, Owner: alice}}, int64(1), nil)

	req := httptest.NewRequest(http.MethodGet, "/accounts/"+alice.Hex()+"/assets", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	reg.AssertExpectations(t)
}
