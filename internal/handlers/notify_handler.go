package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/wallet/internal/middleware"
)

type Notifier interface {
	Serve(w http.ResponseWriter, r *http.Request, username string) error
}

type NotifyHandler struct {
	notifier Notifier
	logger   *zap.Logger
}

func NewNotifyHandler(notifier Notifier, logger *zap.Logger) *NotifyHandler {
	return &NotifyHandler{notifier: notifier, logger: logger.Named("http")}
}

// Connect upgrades to a websocket that receives the caller's payment events.
func (h *NotifyHandler) Connect(c *gin.Context) {
	user := middleware.CurrentUser(c)
	if err := h.notifier.Serve(c.Writer, c.Request, user.Username); err != nil {
		h.logger.Warn("Websocket upgrade failed", zap.String("username", user.Username), zap.Error(err))
	}
}
