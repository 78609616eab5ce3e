package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/wallet/internal/interfaces"
	"github.com/akylbek/payment-system/wallet/internal/middleware"
	"github.com/akylbek/payment-system/wallet/internal/models"
)

const (
	defaultPageSize = 10
	maxPageSize     = 100
)

type Quoter interface {
	Quote(ctx context.Context, source *models.User, req models.QuoteRequest) (*models.Quote, error)
}

type Payer interface {
	Pay(ctx context.Context, source *models.User, req models.PayRequest) (*models.Payment, error)
}

type PaymentHandler struct {
	quotes Quoter
	payer  Payer
	repo   interfaces.PaymentRepository
	logger *zap.Logger
}

func NewPaymentHandler(quotes Quoter, payer Payer, repo interfaces.PaymentRepository, logger *zap.Logger) *PaymentHandler {
	return &PaymentHandler{
		quotes: quotes,
		payer:  payer,
		repo:   repo,
		logger: logger.Named("http"),
	}
}

func (h *PaymentHandler) Quote(c *gin.Context) {
	var req models.QuoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, h.logger, err)
		return
	}

	q, err := h.quotes.Quote(c.Request.Context(), middleware.CurrentUser(c), req)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, q)
}

func (h *PaymentHandler) Pay(c *gin.Context) {
	var req models.PayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, h.logger, err)
		return
	}
	req.ID = c.Param("id")

	user := middleware.CurrentUser(c)
	h.logger.Info("Sending payment",
		zap.String("payment_id", req.ID),
		zap.String("username", user.Username),
		zap.String("destination", req.Destination),
		zap.String("source_amount", req.SourceAmount),
	)

	p, err := h.payer.Pay(c.Request.Context(), user, req)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *PaymentHandler) GetPayment(c *gin.Context) {
	user := middleware.CurrentUser(c)

	p, err := h.repo.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	if !involves(p, user.ID) {
		writeError(c, h.logger, models.ErrPaymentNotFound)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *PaymentHandler) History(c *gin.Context) {
	page, err := queryInt(c, "page", 1)
	if err != nil || page < 1 {
		writeError(c, h.logger, models.ErrInvalidRequest)
		return
	}
	limit, err := queryInt(c, "limit", defaultPageSize)
	if err != nil || limit < 1 {
		writeError(c, h.logger, models.ErrInvalidRequest)
		return
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	list, total, err := h.repo.ListByUser(c.Request.Context(), middleware.CurrentUser(c).ID, page, limit)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	if list == nil {
		list = []models.Payment{}
	}
	c.JSON(http.StatusOK, models.PaymentPage{
		List:       list,
		TotalPages: (total + limit - 1) / limit,
	})
}

func (h *PaymentHandler) Stats(c *gin.Context) {
	stats, err := h.repo.StatsByUser(c.Request.Context(), middleware.CurrentUser(c).ID)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func involves(p *models.Payment, userID int64) bool {
	return (p.SourceUser != nil && *p.SourceUser == userID) ||
		(p.DestinationUser != nil && *p.DestinationUser == userID)
}

func queryInt(c *gin.Context, name string, def int) (int, error) {
	v := c.Query(name)
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}
