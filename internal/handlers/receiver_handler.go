package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/wallet/internal/models"
)

type ReceiverService interface {
	CreateRequest(ctx context.Context, username, amount string, sender *models.SenderIdentity, memo string) (*models.ReceiverParams, error)
	Payee(ctx context.Context, username string) (*models.Payee, error)
}

// ReceiverHandler serves paying wallets; its routes are unauthenticated.
type ReceiverHandler struct {
	receivers ReceiverService
	logger    *zap.Logger
}

func NewReceiverHandler(receivers ReceiverService, logger *zap.Logger) *ReceiverHandler {
	return &ReceiverHandler{receivers: receivers, logger: logger.Named("http")}
}

func (h *ReceiverHandler) CreateRequest(c *gin.Context) {
	var req models.ReceiverRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, h.logger, err)
		return
	}

	params, err := h.receivers.CreateRequest(c.Request.Context(), c.Param("username"), req.Amount, &req.SenderIdentity, req.Memo)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, params)
}

func (h *ReceiverHandler) Payee(c *gin.Context) {
	payee, err := h.receivers.Payee(c.Request.Context(), c.Param("username"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, payee)
}
