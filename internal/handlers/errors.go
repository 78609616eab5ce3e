package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/wallet/internal/ledger"
	"github.com/akylbek/payment-system/wallet/internal/models"
)

type errorBody struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

// writeError maps domain errors to the wire. Anything unrecognised is logged and reported
// without detail.
func writeError(c *gin.Context, logger *zap.Logger, err error) {
	status, body := http.StatusInternalServerError, errorBody{ID: "InternalServerError", Message: "Internal server error"}

	switch {
	case errors.Is(err, models.ErrInvalidRequest):
		status, body = http.StatusBadRequest, errorBody{ID: "InvalidBodyError", Message: err.Error()}
	case errors.Is(err, models.ErrUnresolvableDestination), errors.Is(err, models.ErrNoQuoteAvailable):
		status, body = http.StatusUnprocessableEntity, errorBody{ID: "NoQuoteError", Message: "cannot quote"}
	case errors.Is(err, models.ErrInsufficientFunds):
		status, body = http.StatusUnprocessableEntity, errorBody{ID: "InsufficientFundsError", Message: "Insufficient funds"}
	case errors.Is(err, models.ErrUnknownReceiver), errors.Is(err, models.ErrPaymentNotFound), errors.Is(err, models.ErrUserNotFound):
		status, body = http.StatusNotFound, errorBody{ID: "NotFoundError", Message: "Not found"}
	case errors.Is(err, ledger.ErrNotFound):
		status, body = http.StatusNotFound, errorBody{ID: "NotFoundError", Message: "Account not found"}
	case errors.Is(err, ledger.ErrNameTaken):
		status, body = http.StatusConflict, errorBody{ID: "AccountExistsError", Message: "Account name is taken"}
	case errors.Is(err, models.ErrPaymentInProgress):
		status, body = http.StatusConflict, errorBody{ID: "PaymentInProgressError", Message: err.Error()}
	}

	if status == http.StatusInternalServerError {
		logger.Error("Request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, body)
}

func bindError(c *gin.Context, logger *zap.Logger, err error) {
	logger.Warn("Invalid request body", zap.Error(err))
	c.AbortWithStatusJSON(http.StatusBadRequest, errorBody{ID: "InvalidBodyError", Message: err.Error()})
}
