package trading

import (
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"bazaar/pkg/auth"
	"bazaar/pkg/market"
	"bazaar/pkg/response"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
	maxDuration     = 10 * 365 * 24 * time.Hour
)

type TradingHandler struct {
	service  Service
	authn    gin.HandlerFunc
	observer Observer
	logger   *zap.Logger
}

// NewTradingHandler wires the marketplace routes. authn must store the caller
// via auth.SetCaller; observer may be nil.
func NewTradingHandler(service Service, authn gin.HandlerFunc, observer Observer, logger *zap.Logger) *TradingHandler {
	if observer == nil {
		observer = nopObserver{}
	}
	return &TradingHandler{service: service, authn: authn, observer: observer, logger: logger}
}

func (h *TradingHandler) RegisterRoutes(router *gin.Engine) {
	router.GET("/listings", h.listListings)
	router.GET("/listings/:id", h.getListing)
	router.POST("/listings", h.authn, h.createListing)
	router.POST("/listings/:id/buy", h.authn, h.buyListing)
	router.POST("/listings/:id/cancel", h.authn, h.cancelListing)

	router.GET("/auctions", h.listAuctions)
	router.GET("/auctions/:id", h.getAuction)
	router.POST("/auctions", h.authn, h.createAuction)
	router.POST("/auctions/:id/bids", h.authn, h.placeBid)
	router.POST("/auctions/:id/end", h.authn, h.endAuction)

	router.GET("/offers", h.listOffers)
	router.GET("/offers/:id", h.getOffer)
	router.POST("/offers", h.authn, h.makeOffer)
	router.POST("/offers/:id/accept", h.authn, h.acceptOffer)
	router.POST("/offers/:id/cancel", h.authn, h.cancelOffer)

	router.GET("/market/stats", h.getStats)
	router.GET("/market/status", h.getStatus)

	admin := router.Group("/admin", h.authn)
	admin.PUT("/fee", h.setFee)
	admin.POST("/pause", h.pause)
	admin.POST("/unpause", h.unpause)
	admin.POST("/withdraw", h.withdraw)
}

type createListingRequest struct {
	AssetID uint64 `json:"asset_id" binding:"required"`
	Price   int64  `json:"price"`
}

type buyRequest struct {
	Payment int64 `json:"payment"`
}

type createAuctionRequest struct {
	AssetID         uint64 `json:"asset_id" binding:"required"`
	StartingPrice   int64  `json:"starting_price"`
	DurationSeconds int64  `json:"duration_seconds"`
}

type bidRequest struct {
	Amount int64 `json:"amount"`
}

type makeOfferRequest struct {
	AssetID         uint64 `json:"asset_id" binding:"required"`
	Amount          int64  `json:"amount"`
	DurationSeconds int64  `json:"duration_seconds"`
}

type setFeeRequest struct {
	FeeBps uint32 `json:"fee_bps"`
}

// AuctionResult is returned when an auction is ended; Settlement is absent
// when nobody bid.
type AuctionResult struct {
	Auction    market.Auction     `json:"auction"`
	Settlement *market.Settlement `json:"settlement,omitempty"`
}

type WithdrawResult struct {
	Amount int64 `json:"amount"`
}

func (h *TradingHandler) caller(c *gin.Context) (common.Address, bool) {
	caller, ok := auth.Caller(c)
	if !ok {
		response.SendAPIError(c, http.StatusUnauthorized, "Unauthenticated", "caller not authenticated")
		return common.Address{}, false
	}
	return caller, true
}

func parseID(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		response.SendAPIError(c, http.StatusBadRequest, "InvalidID", "invalid id")
		return 0, false
	}
	return id, true
}

func parseDuration(c *gin.Context, seconds int64) (time.Duration, bool) {
	if seconds > int64(maxDuration/time.Second) {
		response.SendAPIError(c, http.StatusBadRequest, "InvalidDuration", "duration too long")
		return 0, false
	}
	return time.Duration(seconds) * time.Second, true
}

// parsePage reads start/count. Negative or zero values are passed through
// and yield an empty page.
func parsePage(c *gin.Context) (int, int, bool) {
	start, err := strconv.Atoi(c.DefaultQuery("start", "0"))
	if err != nil {
		response.SendAPIError(c, http.StatusBadRequest, "InvalidPage", "invalid start")
		return 0, 0, false
	}
	count, err := strconv.Atoi(c.DefaultQuery("count", strconv.Itoa(defaultPageSize)))
	if err != nil {
		response.SendAPIError(c, http.StatusBadRequest, "InvalidPage", "invalid count")
		return 0, 0, false
	}
	if count > maxPageSize {
		count = maxPageSize
	}
	return start, count, true
}

func bindJSON(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		response.SendAPIError(c, http.StatusBadRequest, "InvalidRequest", "invalid request payload")
		return false
	}
	return true
}

// observe records the operation and logs unexpected failures.
func (h *TradingHandler) observe(op string, started time.Time, err error) {
	h.observer.ObserveOperation(op, started, err)
	if err != nil && market.CodeOf(err) == "" {
		h.logger.Error("marketplace operation failed", zap.String("op", op), zap.Error(err))
	}
}

// @Summary      List an asset
// @Description  Creates a fixed-price listing. The caller must own the asset and have approved the marketplace.
// @Tags         listings
// @Accept       json
// @Produce      json
// @Param        request  body  createListingRequest  true  "Listing"
// @Success      201  {object}  response.APIResponse{data=market.Listing}
// @Failure      400  {object}  response.APIResponse
// @Failure      403  {object}  response.APIResponse
// @Failure      503  {object}  response.APIResponse
// @Router       /listings [post]
func (h *TradingHandler) createListing(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}
	var req createListingRequest
	if !bindJSON(c, &req) {
		return
	}

	started := time.Now()
	listing, err := h.service.List(c.Request.Context(), caller, req.AssetID, req.Price)
	h.observe("list", started, err)
	if err != nil {
		h.sendError(c, err)
		return
	}
	response.SendAPIResponse(c, http.StatusCreated, true, "listing created", listing)
}

// @Summary      Buy a listing
// @Tags         listings
// @Accept       json
// @Produce      json
// @Param        id       path  int         true  "Listing ID"
// @Param        request  body  buyRequest  true  "Payment, must equal the price"
// @Success      200  {object}  response.APIResponse{data=market.Settlement}
// @Failure      400  {object}  response.APIResponse
// @Failure      409  {object}  response.APIResponse
// @Failure      424  {object}  response.APIResponse
// @Router       /listings/{id}/buy [post]
func (h *TradingHandler) buyListing(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req buyRequest
	if !bindJSON(c, &req) {
		return
	}

	started := time.Now()
	s, err := h.service.Buy(c.Request.Context(), caller, id, req.Payment)
	h.observe("buy", started, err)
	if err != nil {
		h.sendError(c, err)
		return
	}
	response.SendAPIResponse(c, http.StatusOK, true, "listing sold", s)
}

// @Summary      Cancel a listing
// @Tags         listings
// @Produce      json
// @Param        id  path  int  true  "Listing ID"
// @Success      200  {object}  response.APIResponse{data=market.Listing}
// @Failure      403  {object}  response.APIResponse
// @Failure      409  {object}  response.APIResponse
// @Router       /listings/{id}/cancel [post]
func (h *TradingHandler) cancelListing(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}
	id, ok := parseID(c)
	if !ok {
		return
	}

	started := time.Now()
	listing, err := h.service.CancelListing(c.Request.Context(), caller, id)
	h.observe("cancel_listing", started, err)
	if err != nil {
		h.sendError(c, err)
		return
	}
	response.SendAPIResponse(c, http.StatusOK, true, "listing cancelled", listing)
}

// @Summary      List active listings
// @Tags         listings
// @Produce      json
// @Param        start  query  int  false  "Matches to skip"
// @Param        count  query  int  false  "Page size (default 20, max 100)"
// @Success      200  {object}  response.APIResponse{data=[]market.Listing}
// @Router       /listings [get]
func (h *TradingHandler) listListings(c *gin.Context) {
	start, count, ok := parsePage(c)
	if !ok {
		return
	}
	items, err := h.service.ListActiveListings(c.Request.Context(), start, count)
	if err != nil {
		h.observe("list_active_listings", time.Now(), err)
		h.sendError(c, err)
		return
	}
	response.SendAPIResponse(c, http.StatusOK, true, "listings fetched", items)
}

// @Summary      Get a listing
// @Tags         listings
// @Produce      json
// @Param        id  path  int  true  "Listing ID"
// @Success      200  {object}  response.APIResponse{data=market.Listing}
// @Failure      404  {object}  response.APIResponse
// @Router       /listings/{id} [get]
func (h *TradingHandler) getListing(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	listing, err := h.service.GetListing(c.Request.Context(), id)
	if err != nil {
		h.sendError(c, err)
		return
	}
	response.SendAPIResponse(c, http.StatusOK, true, "listing fetched", listing)
}

// @Summary      Create an auction
// @Tags         auctions
// @Accept       json
// @Produce      json
// @Param        request  body  createAuctionRequest  true  "Auction"
// @Success      201  {object}  response.APIResponse{data=market.Auction}
// @Failure      400  {object}  response.APIResponse
// @Failure      403  {object}  response.APIResponse
// @Router       /auctions [post]
func (h *TradingHandler) createAuction(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}
	var req createAuctionRequest
	if !bindJSON(c, &req) {
		return
	}
	duration, ok := parseDuration(c, req.DurationSeconds)
	if !ok {
		return
	}

	started := time.Now()
	auction, err := h.service.CreateAuction(c.Request.Context(), caller, req.AssetID, req.StartingPrice, duration)
	h.observe("create_auction", started, err)
	if err != nil {
		h.sendError(c, err)
		return
	}
	response.SendAPIResponse(c, http.StatusCreated, true, "auction created", auction)
}

// @Summary      Place a bid
// @Tags         auctions
// @Accept       json
// @Produce      json
// @Param        id       path  int         true  "Auction ID"
// @Param        request  body  bidRequest  true  "Bid"
// @Success      200  {object}  response.APIResponse{data=market.Auction}
// @Failure      400  {object}  response.APIResponse
// @Failure      409  {object}  response.APIResponse
// @Failure      424  {object}  response.APIResponse
// @Router       /auctions/{id}/bids [post]
func (h *TradingHandler) placeBid(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req bidRequest
	if !bindJSON(c, &req) {
		return
	}

	started := time.Now()
	auction, err := h.service.PlaceBid(c.Request.Context(), caller, id, req.Amount)
	h.observe("place_bid", started, err)
	if err != nil {
		h.sendError(c, err)
		return
	}
	response.SendAPIResponse(c, http.StatusOK, true, "bid placed", auction)
}

// @Summary      End an auction
// @Description  Anyone may end an expired auction; the admin may end one early.
// @Tags         auctions
// @Produce      json
// @Param        id  path  int  true  "Auction ID"
// @Success      200  {object}  response.APIResponse{data=AuctionResult}
// @Failure      409  {object}  response.APIResponse
// @Failure      424  {object}  response.APIResponse
// @Router       /auctions/{id}/end [post]
func (h *TradingHandler) endAuction(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}
	id, ok := parseID(c)
	if !ok {
		return
	}

	started := time.Now()
	auction, settlement, err := h.service.EndAuction(c.Request.Context(), caller, id)
	h.observe("end_auction", started, err)
	if err != nil {
		h.sendError(c, err)
		return
	}
	response.SendAPIResponse(c, http.StatusOK, true, "auction ended", AuctionResult{Auction: auction, Settlement: settlement})
}

// @Summary      List open auctions
// @Tags         auctions
// @Produce      json
// @Param        start  query  int  false  "Matches to skip"
// @Param        count  query  int  false  "Page size (default 20, max 100)"
// @Success      200  {object}  response.APIResponse{data=[]market.Auction}
// @Router       /auctions [get]
func (h *TradingHandler) listAuctions(c *gin.Context) {
	start, count, ok := parsePage(c)
	if !ok {
		return
	}
	items, err := h.service.ListActiveAuctions(c.Request.Context(), start, count)
	if err != nil {
		h.observe("list_active_auctions", time.Now(), err)
		h.sendError(c, err)
		return
	}
	response.SendAPIResponse(c, http.StatusOK, true, "auctions fetched", items)
}

// @Summary      Get an auction
// @Tags         auctions
// @Produce      json
// @Param        id  path  int  true  "Auction ID"
// @Success      200  {object}  response.APIResponse{data=market.Auction}
// @Failure      404  {object}  response.APIResponse
// @Router       /auctions/{id} [get]
func (h *TradingHandler) getAuction(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	auction, err := h.service.GetAuction(c.Request.Context(), id)
	if err != nil {
		h.sendError(c, err)
		return
	}
	response.SendAPIResponse(c, http.StatusOK, true, "auction fetched", auction)
}

// @Summary      Make an offer
// @Description  Escrows the amount until the offer is accepted or cancelled.
// @Tags         offers
// @Accept       json
// @Produce      json
// @Param        request  body  makeOfferRequest  true  "Offer"
// @Success      201  {object}  response.APIResponse{data=market.Offer}
// @Failure      400  {object}  response.APIResponse
// @Failure      403  {object}  response.APIResponse
// @Router       /offers [post]
func (h *TradingHandler) makeOffer(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}
	var req makeOfferRequest
	if !bindJSON(c, &req) {
		return
	}
	duration, ok := parseDuration(c, req.DurationSeconds)
	if !ok {
		return
	}

	started := time.Now()
	offer, err := h.service.MakeOffer(c.Request.Context(), caller, req.AssetID, req.Amount, duration)
	h.observe("make_offer", started, err)
	if err != nil {
		h.sendError(c, err)
		return
	}
	response.SendAPIResponse(c, http.StatusCreated, true, "offer created", offer)
}

// @Summary      Accept an offer
// @Tags         offers
// @Produce      json
// @Param        id  path  int  true  "Offer ID"
// @Success      200  {object}  response.APIResponse{data=market.Settlement}
// @Failure      403  {object}  response.APIResponse
// @Failure      409  {object}  response.APIResponse
// @Router       /offers/{id}/accept [post]
func (h *TradingHandler) acceptOffer(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}
	id, ok := parseID(c)
	if !ok {
		return
	}

	started := time.Now()
	s, err := h.service.AcceptOffer(c.Request.Context(), caller, id)
	h.observe("accept_offer", started, err)
	if err != nil {
		h.sendError(c, err)
		return
	}
	response.SendAPIResponse(c, http.StatusOK, true, "offer accepted", s)
}

// @Summary      Cancel an offer
// @Description  Refunds the escrowed amount to the buyer.
// @Tags         offers
// @Produce      json
// @Param        id  path  int  true  "Offer ID"
// @Success      200  {object}  response.APIResponse{data=market.Offer}
// @Failure      403  {object}  response.APIResponse
// @Failure      424  {object}  response.APIResponse
// @Router       /offers/{id}/cancel [post]
func (h *TradingHandler) cancelOffer(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}
	id, ok := parseID(c)
	if !ok {
		return
	}

	started := time.Now()
	offer, err := h.service.CancelOffer(c.Request.Context(), caller, id)
	h.observe("cancel_offer", started, err)
	if err != nil {
		h.sendError(c, err)
		return
	}
	response.SendAPIResponse(c, http.StatusOK, true, "offer cancelled", offer)
}

// @Summary      List open offers
// @Tags         offers
// @Produce      json
// @Param        start  query  int  false  "Matches to skip"
// @Param        count  query  int  false  "Page size (default 20, max 100)"
// @Success      200  {object}  response.APIResponse{data=[]market.Offer}
// @Router       /offers [get]
func (h *TradingHandler) listOffers(c *gin.Context) {
	start, count, ok := parsePage(c)
	if !ok {
		return
	}
	items, err := h.service.ListActiveOffers(c.Request.Context(), start, count)
	if err != nil {
		h.observe("list_active_offers", time.Now(), err)
		h.sendError(c, err)
		return
	}
	response.SendAPIResponse(c, http.StatusOK, true, "offers fetched", items)
}

// @Summary      Get an offer
// @Tags         offers
// @Produce      json
// @Param        id  path  int  true  "Offer ID"
// @Success      200  {object}  response.APIResponse{data=market.Offer}
// @Failure      404  {object}  response.APIResponse
// @Router       /offers/{id} [get]
func (h *TradingHandler) getOffer(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	offer, err := h.service.GetOffer(c.Request.Context(), id)
	if err != nil {
		h.sendError(c, err)
		return
	}
	response.SendAPIResponse(c, http.StatusOK, true, "offer fetched", offer)
}

// @Summary      Trading statistics
// @Tags         market
// @Produce      json
// @Success      200  {object}  response.APIResponse{data=market.Stats}
// @Router       /market/stats [get]
func (h *TradingHandler) getStats(c *gin.Context) {
	stats, err := h.service.Stats(c.Request.Context())
	if err != nil {
		h.sendError(c, err)
		return
	}
	response.SendAPIResponse(c, http.StatusOK, true, "stats fetched", stats)
}

// @Summary      Marketplace status
// @Description  Fee rate, pause flag and treasury balance.
// @Tags         market
// @Produce      json
// @Success      200  {object}  response.APIResponse{data=market.Status}
// @Router       /market/status [get]
func (h *TradingHandler) getStatus(c *gin.Context) {
	status, err := h.service.Status(c.Request.Context())
	if err != nil {
		h.sendError(c, err)
		return
	}
	response.SendAPIResponse(c, http.StatusOK, true, "status fetched", status)
}

// @Summary      Set the fee rate
// @Tags         admin
// @Accept       json
// @Produce      json
// @Param        request  body  setFeeRequest  true  "Fee in basis points (max 1000)"
// @Success      200  {object}  response.APIResponse
// @Failure      403  {object}  response.APIResponse
// @Failure      422  {object}  response.APIResponse
// @Router       /admin/fee [put]
func (h *TradingHandler) setFee(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}
	var req setFeeRequest
	if !bindJSON(c, &req) {
		return
	}

	started := time.Now()
	err := h.service.SetFee(c.Request.Context(), caller, req.FeeBps)
	h.observe("set_fee", started, err)
	if err != nil {
		h.sendError(c, err)
		return
	}
	response.SendAPIResponse(c, http.StatusOK, true, "fee updated", nil)
}

// @Summary      Pause trading
// @Tags         admin
// @Produce      json
// @Success      200  {object}  response.APIResponse
// @Failure      403  {object}  response.APIResponse
// @Failure      409  {object}  response.APIResponse
// @Router       /admin/pause [post]
func (h *TradingHandler) pause(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}

	started := time.Now()
	err := h.service.Pause(c.Request.Context(), caller)
	h.observe("pause", started, err)
	if err != nil {
		h.sendError(c, err)
		return
	}
	response.SendAPIResponse(c, http.StatusOK, true, "marketplace paused", nil)
}

// @Summary      Resume trading
// @Tags         admin
// @Produce      json
// @Success      200  {object}  response.APIResponse
// @Failure      403  {object}  response.APIResponse
// @Failure      409  {object}  response.APIResponse
// @Router       /admin/unpause [post]
func (h *TradingHandler) unpause(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}

	started := time.Now()
	err := h.service.Unpause(c.Request.Context(), caller)
	h.observe("unpause", started, err)
	if err != nil {
		h.sendError(c, err)
		return
	}
	response.SendAPIResponse(c, http.StatusOK, true, "marketplace unpaused", nil)
}

// @Summary      Withdraw the treasury
// @Tags         admin
// @Produce      json
// @Success      200  {object}  response.APIResponse{data=WithdrawResult}
// @Failure      403  {object}  response.APIResponse
// @Failure      422  {object}  response.APIResponse
// @Failure      424  {object}  response.APIResponse
// @Router       /admin/withdraw [post]
func (h *TradingHandler) withdraw(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}

	started := time.Now()
	amount, err := h.service.Withdraw(c.Request.Context(), caller)
	h.observe("withdraw", started, err)
	if err != nil {
		h.sendError(c, err)
		return
	}
	response.SendAPIResponse(c, http.StatusOK, true, "treasury withdrawn", WithdrawResult{Amount: amount})
}
