package handlers

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/wallet/internal/config"
	"github.com/akylbek/payment-system/wallet/internal/ledger"
	"github.com/akylbek/payment-system/wallet/internal/middleware"
	"github.com/akylbek/payment-system/wallet/internal/models"
)

type LedgerAccounts interface {
	GetAccount(ctx context.Context, creds ledger.Credentials, admin bool) (*ledger.Account, error)
	CreateAccount(ctx context.Context, profile ledger.AccountProfile) (*ledger.Account, error)
	UpdateAccount(ctx context.Context, creds ledger.Credentials, update ledger.AccountUpdate, admin bool) (*ledger.Account, error)
}

type balanceResponse struct {
	Account        string `json:"account"`
	Balance        string `json:"balance"`
	CurrencyCode   string `json:"currency_code"`
	CurrencySymbol string `json:"currency_symbol"`
	Display        string `json:"display"`
}

type createAccountRequest struct {
	Password string `json:"password" binding:"required"`
	Balance  string `json:"balance"`
}

// AccountHandler exposes the ledger accounts of wallet users.
type AccountHandler struct {
	cfg      *config.Config
	accounts LedgerAccounts
	logger   *zap.Logger
}

func NewAccountHandler(cfg *config.Config, accounts LedgerAccounts, logger *zap.Logger) *AccountHandler {
	return &AccountHandler{cfg: cfg, accounts: accounts, logger: logger.Named("http")}
}

func (h *AccountHandler) Balance(c *gin.Context) {
	user := middleware.CurrentUser(c)

	account, err := h.accounts.GetAccount(c.Request.Context(), ledger.Credentials{Username: user.Username}, true)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, h.balance(account))
}

func (h *AccountHandler) Create(c *gin.Context) {
	var req createAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, h.logger, err)
		return
	}
	if req.Balance != "" {
		if err := models.ValidateAmount(req.Balance); err != nil {
			writeError(c, h.logger, err)
			return
		}
	}

	account, err := h.accounts.CreateAccount(c.Request.Context(), ledger.AccountProfile{
		Username: c.Param("username"),
		Password: req.Password,
		Balance:  req.Balance,
	})
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, h.balance(account))
}

// Reload tops up the caller's own ledger account. It only exists when reload is enabled.
func (h *AccountHandler) Reload(c *gin.Context) {
	if !h.cfg.Reload {
		c.JSON(http.StatusNotFound, gin.H{"id": "NotFoundError", "message": "Reload is disabled"})
		return
	}
	user := middleware.CurrentUser(c)
	ctx := c.Request.Context()

	account, err := h.accounts.GetAccount(ctx, ledger.Credentials{Username: user.Username}, true)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	balance, err := decimal.NewFromString(account.Balance)
	if err != nil {
		writeError(c, h.logger, fmt.Errorf("ledger balance %q: %w", account.Balance, err))
		return
	}

	account, err = h.accounts.UpdateAccount(ctx,
		ledger.Credentials{Username: user.Username},
		ledger.AccountUpdate{Balance: balance.Add(decimal.RequireFromString(ledger.ReloadAmount)).String()},
		true,
	)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	h.logger.Info("Account reloaded", zap.String("username", user.Username), zap.String("balance", account.Balance))
	c.JSON(http.StatusOK, h.balance(account))
}

func (h *AccountHandler) balance(account *ledger.Account) balanceResponse {
	return balanceResponse{
		Account:        account.Name,
		Balance:        account.Balance,
		CurrencyCode:   h.cfg.Ledger.CurrencyCode,
		CurrencySymbol: h.cfg.Ledger.CurrencySymbol,
		Display:        models.FormatAmount(account.Balance, h.cfg.Ledger.CurrencySymbol),
	}
}
