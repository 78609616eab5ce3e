package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/wallet/internal/reconcile"
)

type Auditor interface {
	Audit(ctx context.Context, condition, transferID string) (*reconcile.Report, error)
}

type AdminHandler struct {
	auditor Auditor
	logger  *zap.Logger
}

func NewAdminHandler(auditor Auditor, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{auditor: auditor, logger: logger.Named("http")}
}

func (h *AdminHandler) Reconcile(c *gin.Context) {
	report, err := h.auditor.Audit(c.Request.Context(), c.Query("condition"), c.Query("transfer"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, report)
}
