// Package spsp talks to the payment protocol service that routes quotes and conditional
// transfers between the local ledger and remote ledgers.
package spsp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/wallet/internal/circuitbreaker"
	"github.com/akylbek/payment-system/wallet/internal/config"
	"github.com/akylbek/payment-system/wallet/internal/ledger"
)

type QuoteParams struct {
	SourceAccount      string `json:"source_account"`
	DestinationAccount string `json:"destination_account"`
	SourceAmount       string `json:"source_amount,omitempty"`
	DestinationAmount  string `json:"destination_amount,omitempty"`
}

type QuoteResult struct {
	SourceAmount      string `json:"source_amount"`
	DestinationAmount string `json:"destination_amount"`
}

type TransferParams struct {
	PaymentID          string `json:"payment_id"`
	SourceUsername     string `json:"source_username"`
	SourceAccount      string `json:"source_account"`
	DestinationAccount string `json:"destination_account"`
	SourceAmount       string `json:"source_amount"`
	DestinationAmount  string `json:"destination_amount"`
	Memo               string `json:"memo,omitempty"`
}

type TransferResult struct {
	ExecutionCondition string `json:"execution_condition"`
	TransferID         string `json:"transfer_id"`
}

type Client struct {
	uri        string
	auth       ledger.Credentials
	httpClient *http.Client
	breaker    *circuitbreaker.CircuitBreaker
	logger     *zap.Logger
}

func NewClient(cfg *config.Config, httpClient *http.Client, logger *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Connector.Timeout}
	}
	return &Client{
		uri:        strings.TrimRight(cfg.Connector.URI, "/"),
		auth:       ledger.Credentials{Username: cfg.Ledger.AdminUser, Password: cfg.Ledger.AdminPass},
		httpClient: httpClient,
		breaker: circuitbreaker.NewCircuitBreaker(5, 30*time.Second, func(err error) bool {
			var le *ledger.Error
			return !errors.As(err, &le) || le.Temporary()
		}),
		logger: logger.Named("spsp"),
	}
}

func (c *Client) Quote(ctx context.Context, params QuoteParams) (*QuoteResult, error) {
	var res QuoteResult
	if err := c.post(ctx, "/quotes", params, &res); err != nil {
		return nil, err
	}
	if res.SourceAmount == "" || res.DestinationAmount == "" {
		return nil, errors.New("quote response is missing an amount")
	}
	return &res, nil
}

// SubmitConditionalTransfer moves value. It is not safe to call twice for one payment.
func (c *Client) SubmitConditionalTransfer(ctx context.Context, params TransferParams) (*TransferResult, error) {
	var res TransferResult
	if err := c.post(ctx, "/payments", params, &res); err != nil {
		return nil, err
	}
	if res.ExecutionCondition == "" {
		return nil, errors.New("transfer response is missing the execution condition")
	}

	c.logger.Debug("Conditional transfer submitted",
		zap.String("payment_id", params.PaymentID),
		zap.String("transfer", res.TransferID),
	)
	return &res, nil
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	b, err := json.Marshal(in)
	if err != nil {
		return err
	}

	return c.breaker.Execute(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.uri+path, bytes.NewReader(b))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		if c.auth.Username != "" {
			req.SetBasicAuth(c.auth.Username, c.auth.Password)
		}
		otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("payment service request %s: %w", path, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= http.StatusBadRequest {
			return ledger.DecodeError(resp)
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode payment service response: %w", err)
		}
		return nil
	})
}
