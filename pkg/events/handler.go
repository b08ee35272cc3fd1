package events

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"bazaar/pkg/market"
	"bazaar/pkg/response"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

type EventsHandler struct {
	hub      *Hub
	journal  Journal
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

func NewEventsHandler(hub *Hub, journal Journal, logger *zap.Logger) *EventsHandler {
	return &EventsHandler{
		hub:     hub,
		journal: journal,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

func (h *EventsHandler) RegisterRoutes(router *gin.Engine) {
	router.GET("/ws/events", h.subscribe)
	router.GET("/events", h.listEvents)
}

type EventList struct {
	Items []market.Event `json:"items"`
	Total int64          `json:"total"`
}

func parseAssetFilter(c *gin.Context) (*uint64, bool) {
	raw := c.Query("asset_id")
	if raw == "" {
		return nil, true
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return nil, false
	}
	return &id, true
}

// @Summary      Subscribe to marketplace events
// @Description  Upgrades to a websocket that streams committed events, optionally for one asset
// @Tags         events
// @Param        asset_id  query  int  false  "Only events for this asset"
// @Success      101
// @Failure      400  {object}  response.APIResponse
// @Router       /ws/events [get]
func (h *EventsHandler) subscribe(c *gin.Context) {
	assetID, ok := parseAssetFilter(c)
	if !ok {
		response.SendAPIResponse(c, http.StatusBadRequest, false, "invalid asset_id", nil)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	sub := h.hub.Add(conn, assetID)
	h.logger.Debug("subscriber connected", zap.String("subscriber", sub.ID.String()))

	go h.readLoop(sub)
	go h.writeLoop(sub)
}

// readLoop only watches for the client going away; subscribers send nothing.
func (h *EventsHandler) readLoop(sub *Subscriber) {
	defer func() {
		h.hub.Remove(sub.ID)
		sub.Conn.Close()
		h.logger.Debug("subscriber disconnected", zap.String("subscriber", sub.ID.String()))
	}()

	sub.Conn.SetReadDeadline(time.Now().Add(pongWait))
	sub.Conn.SetPongHandler(func(string) error {
		return sub.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := sub.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("websocket read error", zap.String("subscriber", sub.ID.String()), zap.Error(err))
			}
			return
		}
	}
}

func (h *EventsHandler) writeLoop(sub *Subscriber) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-sub.Done:
			return

		case ev := <-sub.Send:
			sub.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := sub.Conn.WriteJSON(ev); err != nil {
				h.logger.Warn("websocket write error", zap.String("subscriber", sub.ID.String()), zap.Error(err))
				return
			}

		case <-ticker.C:
			sub.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := sub.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// @Summary      List journaled events
// @Tags         events
// @Produce      json
// @Param        asset_id  query  int     false  "Only events for this asset"
// @Param        type      query  string  false  "Event type, e.g. listing.sold"
// @Param        limit     query  int     false  "Page size (default 50, max 200)"
// @Param        offset    query  int     false  "Offset"
// @Success      200  {object}  response.APIResponse{data=EventList}
// @Failure      400  {object}  response.APIResponse
// @Router       /events [get]
func (h *EventsHandler) listEvents(c *gin.Context) {
	assetID, ok := parseAssetFilter(c)
	if !ok {
		response.SendAPIResponse(c, http.StatusBadRequest, false, "invalid asset_id", nil)
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 {
		response.SendAPIResponse(c, http.StatusBadRequest, false, "invalid limit", nil)
		return
	}
	if limit > 200 {
		limit = 200
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		response.SendAPIResponse(c, http.StatusBadRequest, false, "invalid offset", nil)
		return
	}

	items, total, err := h.journal.List(c.Request.Context(), Filter{
		AssetID: assetID,
		Type:    market.EventType(c.Query("type")),
		Limit:   limit,
		Offset:  offset,
	})
	if err != nil {
		h.logger.Error("list events failed", zap.Error(err))
		response.SendAPIResponse(c, http.StatusInternalServerError, false, "failed to list events", nil)
		return
	}

	response.SendAPIResponse(c, http.StatusOK, true, "events fetched", EventList{Items: items, Total: total})
}
