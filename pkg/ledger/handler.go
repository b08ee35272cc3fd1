package ledger

import (
	"errors"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"

	"bazaar/pkg/response"
)

type LedgerHandler struct {
	ledger       Ledger
	enableFaucet bool
}

func NewLedgerHandler(ledger Ledger, enableFaucet bool) *LedgerHandler {
	return &LedgerHandler{ledger: ledger, enableFaucet: enableFaucet}
}

func (h *LedgerHandler) RegisterRoutes(router *gin.Engine) {
	router.GET("/accounts/:address/balance", h.getBalance)
	if h.enableFaucet {
		router.POST("/accounts/:address/deposit", h.deposit)
	}
}

type Balance struct {
	Address common.Address `json:"address"`
	Balance int64          `json:"balance"`
}

type depositRequest struct {
	Amount int64 `json:"amount" binding:"required"`
}

// @Summary      Get account balance
// @Tags         accounts
// @Produce      json
// @Param        address  path  string  true  "Account address"
// @Success      200  {object}  response.APIResponse{data=Balance}
// @Failure      400  {object}  response.APIResponse
// @Router       /accounts/{address}/balance [get]
func (h *LedgerHandler) getBalance(c *gin.Context) {
	address := c.Param("address")
	if !common.IsHexAddress(address) {
		response.SendAPIResponse(c, http.StatusBadRequest, false, "invalid address", nil)
		return
	}
	addr := common.HexToAddress(address)

	balance, err := h.ledger.Balance(c.Request.Context(), addr)
	if err != nil {
		response.SendAPIResponse(c, http.StatusInternalServerError, false, err.Error(), nil)
		return
	}

	response.SendAPIResponse(c, http.StatusOK, true, "balance fetched", Balance{Address: addr, Balance: balance})
}

// @Summary      Deposit test funds
// @Description  Credits funds to an account. Only registered when ENABLE_FAUCET is on.
// @Tags         accounts
// @Accept       json
// @Produce      json
// @Param        address  path  string          true  "Account address"
// @Param        request  body  depositRequest  true  "Deposit request"
// @Success      200  {object}  response.APIResponse{data=Balance}
// @Failure      400  {object}  response.APIResponse
// @Router       /accounts/{address}/deposit [post]
func (h *LedgerHandler) deposit(c *gin.Context) {
	address := c.Param("address")
	if !common.IsHexAddress(address) {
		response.SendAPIResponse(c, http.StatusBadRequest, false, "invalid address", nil)
		return
	}
	addr := common.HexToAddress(address)

	var req depositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.SendAPIResponse(c, http.StatusBadRequest, false, "invalid request payload", nil)
		return
	}

	balance, err := h.ledger.Deposit(c.Request.Context(), addr, req.Amount)
	if err != nil {
		if errors.Is(err, ErrInvalidAmount) || errors.Is(err, ErrZeroAddress) {
			response.SendAPIResponse(c, http.StatusBadRequest, false, err.Error(), nil)
			return
		}
		response.SendAPIResponse(c, http.StatusInternalServerError, false, err.Error(), nil)
		return
	}

	response.SendAPIResponse(c, http.StatusOK, true, "deposit credited", Balance{Address: addr, Balance: balance})
}
