package registry

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"

	"bazaar/pkg/auth"
	"bazaar/pkg/response"
)

type RegistryHandler struct {
	registry Registry
	authn    gin.HandlerFunc
}

// NewRegistryHandler wires the registry routes. authn must store the caller via auth.SetCaller.
func NewRegistryHandler(registry Registry, authn gin.HandlerFunc) *RegistryHandler {
	return &RegistryHandler{registry: registry, authn: authn}
}

func (h *RegistryHandler) RegisterRoutes(router *gin.Engine) {
	router.GET("/assets/:id", h.getAsset)
	router.GET("/accounts/:address/assets", h.listAssetsByOwner)
	router.POST("/assets", h.authn, h.mintAsset)
	router.POST("/assets/:id/approve", h.authn, h.approveAsset)
	router.POST("/assets/:id/transfer", h.authn, h.transferAsset)
}

type mintAssetRequest struct {
	TokenURI string `json:"token_uri"`
}

type approveAssetRequest struct {
	Operator string `json:"operator" binding:"required"`
}

type transferAssetRequest struct {
	To string `json:"to" binding:"required"`
}

// @Summary      Mint an asset
// @Description  Creates a new asset owned by the authenticated caller
// @Tags         assets
// @Accept       json
// @Produce      json
// @Param        request body mintAssetRequest true "Mint request"
// @Success      201  {object}  response.APIResponse{data=Asset}
// @Failure      400  {object}  response.APIResponse
// @Failure      401  {object}  response.APIResponse
// @Router       /assets [post]
func (h *RegistryHandler) mintAsset(c *gin.Context) {
	caller, ok := auth.Caller(c)
	if !ok {
		response.SendAPIError(c, http.StatusUnauthorized, "Unauthenticated", "caller not authenticated")
		return
	}

	var req mintAssetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.SendAPIResponse(c, http.StatusBadRequest, false, "invalid request payload", nil)
		return
	}

	asset, err := h.registry.Mint(c.Request.Context(), caller, req.TokenURI)
	if err != nil {
		h.sendError(c, err)
		return
	}

	response.SendAPIResponse(c, http.StatusCreated, true, "asset minted", asset)
}

// @Summary      Get asset by ID
// @Tags         assets
// @Produce      json
// @Param        id   path      int  true  "Asset ID"
// @Success      200  {object}  response.APIResponse{data=Asset}
// @Failure      400  {object}  response.APIResponse
// @Failure      404  {object}  response.APIResponse
// @Router       /assets/{id} [get]
func (h *RegistryHandler) getAsset(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		response.SendAPIResponse(c, http.StatusBadRequest, false, "invalid asset id", nil)
		return
	}

	asset, err := h.registry.GetAsset(c.Request.Context(), id)
	if err != nil {
		h.sendError(c, err)
		return
	}

	response.SendAPIResponse(c, http.StatusOK, true, "asset fetched", asset)
}

// @Summary      List assets owned by an address
// @Tags         assets
// @Produce      json
// @Param        address  path   string  true   "Owner address"
// @Param        page     query  int     false  "Page number" default(1)
// @Param        limit    query  int     false  "Items per page" default(10)
// @Success      200  {object}  response.APIResponse{data=AssetList}
// @Failure      400  {object}  response.APIResponse
// @Router       /accounts/{address}/assets [get]
func (h *RegistryHandler) listAssetsByOwner(c *gin.Context) {
	address := c.Param("address")
	if !common.IsHexAddress(address) {
		response.SendAPIResponse(c, http.StatusBadRequest, false, "invalid address", nil)
		return
	}

	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		page = 1
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "10"))
	if err != nil || limit <= 0 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}

	items, total, err := h.registry.ListAssetsByOwner(c.Request.Context(), common.HexToAddress(address), limit, (page-1)*limit)
	if err != nil {
		h.sendError(c, err)
		return
	}

	response.SendAPIResponse(c, http.StatusOK, true, "assets listed", AssetList{Items: items, Total: total, Page: page, Limit: limit})
}

// @Summary      Approve an operator
// @Description  Lets the operator transfer the asset once; the caller must own it
// @Tags         assets
// @Accept       json
// @Produce      json
// @Param        id       path  int                  true  "Asset ID"
// @Param        request  body  approveAssetRequest  true  "Approval request"
// @Success      200  {object}  response.APIResponse
// @Failure      400  {object}  response.APIResponse
// @Failure      403  {object}  response.APIResponse
// @Failure      404  {object}  response.APIResponse
// @Router       /assets/{id}/approve [post]
func (h *RegistryHandler) approveAsset(c *gin.Context) {
	caller, ok := auth.Caller(c)
	if !ok {
		response.SendAPIError(c, http.StatusUnauthorized, "Unauthenticated", "caller not authenticated")
		return
	}

	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		response.SendAPIResponse(c, http.StatusBadRequest, false, "invalid asset id", nil)
		return
	}

	var req approveAssetRequest
	if err := c.ShouldBindJSON(&req); err != nil || !common.IsHexAddress(req.Operator) {
		response.SendAPIResponse(c, http.StatusBadRequest, false, "invalid request payload", nil)
		return
	}

	if err := h.registry.Approve(c.Request.Context(), caller, id, common.HexToAddress(req.Operator)); err != nil {
		h.sendError(c, err)
		return
	}

	response.SendAPIResponse(c, http.StatusOK, true, "operator approved", nil)
}

// @Summary      Transfer an asset
// @Tags         assets
// @Accept       json
// @Produce      json
// @Param        id       path  int                   true  "Asset ID"
// @Param        request  body  transferAssetRequest  true  "Transfer request"
// @Success      200  {object}  response.APIResponse
// @Failure      400  {object}  response.APIResponse
// @Failure      403  {object}  response.APIResponse
// @Failure      404  {object}  response.APIResponse
// @Router       /assets/{id}/transfer [post]
func (h *RegistryHandler) transferAsset(c *gin.Context) {
	caller, ok := auth.Caller(c)
	if !ok {
		response.SendAPIError(c, http.StatusUnauthorized, "Unauthenticated", "caller not authenticated")
		return
	}

	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		response.SendAPIResponse(c, http.StatusBadRequest, false, "invalid asset id", nil)
		return
	}

	var req transferAssetRequest
	if err := c.ShouldBindJSON(&req); err != nil || !common.IsHexAddress(req.To) {
		response.SendAPIResponse(c, http.StatusBadRequest, false, "invalid request payload", nil)
		return
	}

	if err := h.registry.OwnerTransfer(c.Request.Context(), caller, common.HexToAddress(req.To), id); err != nil {
		h.sendError(c, err)
		return
	}

	response.SendAPIResponse(c, http.StatusOK, true, "asset transferred", nil)
}

func (h *RegistryHandler) sendError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrAssetNotFound):
		response.SendAPIResponse(c, http.StatusNotFound, false, "asset not found", nil)
	case errors.Is(err, ErrNotAssetOwner):
		response.SendAPIResponse(c, http.StatusForbidden, false, err.Error(), nil)
	case errors.Is(err, ErrZeroAddress):
		response.SendAPIResponse(c, http.StatusBadRequest, false, err.Error(), nil)
	case errors.Is(err, ErrAssetBusy):
		response.SendAPIResponse(c, http.StatusConflict, false, err.Error(), nil)
	default:
		response.SendAPIResponse(c, http.StatusInternalServerError, false, err.Error(), nil)
	}
}
