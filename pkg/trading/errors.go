package trading

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"bazaar/pkg/market"
	"bazaar/pkg/response"
)

// statusFor maps an engine error to an HTTP status and a stable code.
func statusFor(err error) (int, string) {
	var me *market.Error
	if !errors.As(err, &me) {
		return http.StatusInternalServerError, "Internal"
	}

	switch {
	case errors.Is(err, market.ErrNotFound):
		return http.StatusNotFound, me.Code
	case errors.Is(err, market.ErrPaused):
		return http.StatusServiceUnavailable, me.Code
	case errors.Is(err, market.ErrAlreadyPaused), errors.Is(err, market.ErrNotPaused):
		return http.StatusConflict, me.Code
	}

	switch me.Class {
	case market.ClassValidation:
		return http.StatusBadRequest, me.Code
	case market.ClassAuthorization:
		return http.StatusForbidden, me.Code
	case market.ClassState:
		return http.StatusConflict, me.Code
	case market.ClassExternal:
		return http.StatusFailedDependency, me.Code
	case market.ClassGovernance:
		return http.StatusUnprocessableEntity, me.Code
	default:
		return http.StatusInternalServerError, me.Code
	}
}

func (h *TradingHandler) sendError(c *gin.Context, err error) {
	status, code := statusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "internal error"
	}
	response.SendAPIError(c, status, code, message)
}
