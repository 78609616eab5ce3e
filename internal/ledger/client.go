package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/wallet/internal/circuitbreaker"
	"github.com/akylbek/payment-system/wallet/internal/config"
	"github.com/akylbek/payment-system/wallet/internal/models"
)

// ReloadAmount funds a new account, and tops up an existing one, when reload is enabled.
const ReloadAmount = "1000"

var transferIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]*$`)

type Credentials struct {
	Username string
	Password string
}

type Info struct {
	CurrencyCode   string `json:"currency_code"`
	CurrencySymbol string `json:"currency_symbol"`
	Precision      int    `json:"precision"`
	Scale          int    `json:"scale"`
}

type Account struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Balance    string `json:"balance"`
	IsDisabled bool   `json:"is_disabled,omitempty"`
}

type AccountProfile struct {
	Username string
	Password string
	Balance  string
}

type AccountUpdate struct {
	Balance     string
	NewPassword string
}

type Transfer struct {
	ID                 string `json:"id"`
	Ledger             string `json:"ledger"`
	State              string `json:"state"`
	ExecutionCondition string `json:"execution_condition"`
	ExpiresAt          string `json:"expires_at,omitempty"`
}

type accountBody struct {
	Name     string `json:"name"`
	Balance  string `json:"balance,omitempty"`
	Password string `json:"password,omitempty"`
}

// Client talks to the ledger's account and transfer API.
type Client struct {
	uri        string
	admin      Credentials
	reload     bool
	httpClient *http.Client
	breaker    *circuitbreaker.CircuitBreaker
	logger     *zap.Logger
}

func NewClient(cfg *config.Config, httpClient *http.Client, logger *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Ledger.Timeout}
	}
	return &Client{
		uri:        strings.TrimRight(cfg.Ledger.URI, "/"),
		admin:      Credentials{Username: cfg.Ledger.AdminUser, Password: cfg.Ledger.AdminPass},
		reload:     cfg.Reload,
		httpClient: httpClient,
		breaker:    circuitbreaker.NewCircuitBreaker(5, 30*time.Second, countsAsFailure),
		logger:     logger.Named("ledger"),
	}
}

func (c *Client) URI() string {
	return c.uri
}

// AccountURI is the ledger URI of a named account.
func (c *Client) AccountURI(name string) string {
	return c.uri + "/accounts/" + name
}

// GetInfo fetches the ledger metadata at uri, or of the configured ledger when uri is empty.
func (c *Client) GetInfo(ctx context.Context, uri string) (*Info, error) {
	if uri == "" {
		uri = c.uri
	}
	c.logger.Info("Getting ledger info", zap.String("ledger", uri))

	var info Info
	if err := c.do(ctx, http.MethodGet, uri, nil, nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (c *Client) GetAccount(ctx context.Context, creds Credentials, admin bool) (*Account, error) {
	auth := creds
	if admin {
		auth = c.admin
	}

	var account Account
	err := c.do(ctx, http.MethodGet, c.AccountURI(creds.Username), &auth, nil, &account)
	if err != nil {
		var le *Error
		if errors.As(err, &le) && (le.ID == idNotFound || le.ID == idUnauthorized) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, le.Message)
		}
		return nil, err
	}
	return &account, nil
}

func (c *Client) CreateAccount(ctx context.Context, profile AccountProfile) (*Account, error) {
	body := accountBody{
		Name:     profile.Username,
		Balance:  profile.Balance,
		Password: profile.Password,
	}
	if body.Balance == "" {
		body.Balance = "0"
	}
	if c.reload {
		body.Balance = ReloadAmount
	}

	account, err := c.putAccount(ctx, c.admin, body)
	if err != nil {
		var le *Error
		if errors.As(err, &le) && le.NameTaken() {
			return nil, fmt.Errorf("%w: %s", ErrNameTaken, profile.Username)
		}
		return nil, err
	}
	return account, nil
}

// UpdateAccount changes the balance or password of an account, authenticating as the
// account owner or, with admin set, as the ledger admin.
func (c *Client) UpdateAccount(ctx context.Context, creds Credentials, update AccountUpdate, admin bool) (*Account, error) {
	body := accountBody{
		Name:     creds.Username,
		Balance:  update.Balance,
		Password: update.NewPassword,
	}
	auth := creds
	if admin {
		auth = c.admin
	}
	return c.putAccount(ctx, auth, body)
}

// GetTransfer fetches a transfer by bare id or by its URI on this ledger. References to
// any other host are refused before a request is made, since the call carries admin credentials.
func (c *Client) GetTransfer(ctx context.Context, ref string) (*Transfer, error) {
	id := ref
	if strings.Contains(ref, "://") {
		prefix := c.uri + "/transfers/"
		if !strings.HasPrefix(ref, prefix) {
			return nil, fmt.Errorf("%w: transfer %q is not on ledger %s", models.ErrInvalidRequest, ref, c.uri)
		}
		id = strings.TrimPrefix(ref, prefix)
	}
	if !transferIDPattern.MatchString(id) {
		return nil, fmt.Errorf("%w: malformed transfer id %q", models.ErrInvalidRequest, ref)
	}

	var transfer Transfer
	if err := c.do(ctx, http.MethodGet, c.uri+"/transfers/"+id, &c.admin, nil, &transfer); err != nil {
		return nil, err
	}
	return &transfer, nil
}

func (c *Client) putAccount(ctx context.Context, auth Credentials, body accountBody) (*Account, error) {
	var account Account
	if err := c.do(ctx, http.MethodPut, c.AccountURI(body.Name), &auth, body, &account); err != nil {
		return nil, err
	}
	return &account, nil
}

func (c *Client) do(ctx context.Context, method, url string, auth *Credentials, in, out any) error {
	return c.breaker.Execute(ctx, func(ctx context.Context) error {
		var body io.Reader
		if in != nil {
			b, err := json.Marshal(in)
			if err != nil {
				return err
			}
			body = bytes.NewReader(b)
		}

		req, err := http.NewRequestWithContext(ctx, method, url, body)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/json")
		if in != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if auth != nil && auth.Username != "" {
			req.SetBasicAuth(auth.Username, auth.Password)
		}
		otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("ledger request %s %s: %w", method, url, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= http.StatusBadRequest {
			return DecodeError(resp)
		}
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode ledger response: %w", err)
		}
		return nil
	})
}
