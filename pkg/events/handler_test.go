package events

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"bazaar/pkg/ledger"
	"bazaar/pkg/market"
	"bazaar/pkg/registry"
)

func setupEventsServer(t *testing.T, hub *Hub, journal Journal) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewEventsHandler(hub, journal, zap.NewNop()).RegisterRoutes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/events" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestEventsHandler_StreamsEngineEvents(t *testing.T) {
	hub := NewHub(zap.NewNop())
	journal := NewMemoryJournal()
	srv := setupEventsServer(t, hub, journal)

	operator := common.HexToAddress("0x00000000000000000000000000000000000000f0")
	seller := common.HexToAddress("0x0000000000000000000000000000000000000051")
	reg := registry.NewMemoryRegistry(operator)
	funds := ledger.NewMemoryLedger(common.HexToAddress("0x00000000000000000000000000000000000000c0"))
	engine := market.New(market.Config{Operator: operator}, reg, funds, market.NewMemoryStore(250),
		market.WithNotifier(Fanout{NewRecorder(journal, zap.NewNop()), hub}))

	ctx := context.Background()
	other, err := reg.Mint(ctx, seller, "")
	require.NoError(t, err)
	asset, err := reg.Mint(ctx, seller, "")
	require.NoError(t, err)
	require.NoError(t, reg.Approve(ctx, seller, other.ID, operator))
	require.NoError(t, reg.Approve(ctx, seller, asset.ID, operator))

	conn := dial(t, srv, "?asset_id=2")
	require.Eventually(t, func() bool { return hub.Count() == 1 }, time.Second, 10*time.Millisecond)

	_, err = engine.List(ctx, seller, other.ID, 10)
	require.NoError(t, err)
	_, err = engine.List(ctx, seller, asset.ID, 20)
	require.NoError(t, err)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ev market.Event
	require.NoError(t, conn.ReadJSON(&ev))
	require.Equal(t, market.EventListingCreated, ev.Type)
	require.Equal(t, asset.ID, ev.AssetID)
	require.Equal(t, int64(20), ev.Amount)

	resp, err := http.Get(srv.URL + "/events?type=listing.created")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Success bool      `json:"success"`
		Data    EventList `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.True(t, body.Success)
	require.Equal(t, int64(2), body.Data.Total)
}

func TestEventsHandler_DisconnectRemovesSubscriber(t *testing.T) {
	hub := NewHub(zap.NewNop())
	srv := setupEventsServer(t, hub, NewMemoryJournal())

	conn := dial(t, srv, "")
	require.Eventually(t, func() bool { return hub.Count() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye")))
	require.Eventually(t, func() bool { return hub.Count() == 0 }, time.Second, 10*time.Millisecond)
}

func TestEventsHandler_BadQuery(t *testing.T) {
	hub := NewHub(zap.NewNop())
	srv := setupEventsServer(t, hub, NewMemoryJournal())

	for _, path := range []string{"/events?asset_id=abc", "/events?limit=0", "/events?offset=-1", "/ws/events?asset_id=-3"} {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		require.Equal(t, http.StatusBadRequest, resp.StatusCode, path)
	}
	require.Equal(t, 0, hub.Count())
}

func TestEventsHandler_ListUsesJournalPaging(t *testing.T) {
	journal := NewMemoryJournal()
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, journal.Append(ctx, market.Event{ID: uuid.New(), Type: market.EventOfferCreated, AssetID: 1}))
	}
	srv := setupEventsServer(t, NewHub(zap.NewNop()), journal)

	resp, err := http.Get(srv.URL + "/events?asset_id=1&limit=2&offset=4")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body struct {
		Data EventList `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, int64(5), body.Data.Total)
	require.Len(t, body.Data.Items, 1)
}
