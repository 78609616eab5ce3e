// Package resolver turns the destination strings users type into payable accounts.
package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/akylbek/payment-system/wallet/internal/config"
	"github.com/akylbek/payment-system/wallet/internal/interfaces"
	"github.com/akylbek/payment-system/wallet/internal/models"
)

var usernamePattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9]|[-_.](?:[a-z0-9]))*$`)

// Address is a parsed destination string. Host is empty for bare local usernames.
type Address struct {
	User string
	Host string
}

// Parse accepts "alice", "alice@wallet.example" and "$wallet.example/alice".
func Parse(raw string) (Address, error) {
	raw = strings.TrimSpace(raw)

	var addr Address
	switch {
	case strings.HasPrefix(raw, "$"):
		host, user, ok := strings.Cut(raw[1:], "/")
		if !ok {
			return Address{}, fmt.Errorf("payment pointer %q has no user", raw)
		}
		addr = Address{User: user, Host: host}
	case strings.Contains(raw, "@"):
		user, host, _ := strings.Cut(raw, "@")
		addr = Address{User: user, Host: host}
	default:
		addr = Address{User: raw}
	}

	addr.User = strings.ToLower(addr.User)
	addr.Host = strings.ToLower(addr.Host)
	if !usernamePattern.MatchString(addr.User) {
		return Address{}, fmt.Errorf("invalid user in destination %q", raw)
	}
	if strings.HasPrefix(raw, "$") || strings.Contains(raw, "@") {
		if addr.Host == "" || strings.ContainsAny(addr.Host, "/@ ") {
			return Address{}, fmt.Errorf("invalid host in destination %q", raw)
		}
	}
	return addr, nil
}

type Resolver struct {
	users      interfaces.UserRepository
	cfg        *config.Config
	httpClient *http.Client
	logger     *zap.Logger

	// scheme of remote receiver lookups, overridden in tests
	scheme string
}

func NewResolver(users interfaces.UserRepository, cfg *config.Config, httpClient *http.Client, logger *zap.Logger) *Resolver {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Connector.Timeout}
	}
	return &Resolver{
		users:      users,
		cfg:        cfg,
		httpClient: httpClient,
		logger:     logger.Named("resolver"),
		scheme:     "https",
	}
}

// Resolve maps a destination string to an account. Every failure is reported as
// models.ErrUnresolvableDestination.
func (r *Resolver) Resolve(ctx context.Context, raw string) (*models.Destination, error) {
	addr, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrUnresolvableDestination, err)
	}

	if addr.Host == "" || addr.Host == strings.ToLower(r.cfg.PublicHost) {
		return r.resolveLocal(ctx, addr.User)
	}
	return r.resolveRemote(ctx, addr)
}

func (r *Resolver) resolveLocal(ctx context.Context, username string) (*models.Destination, error) {
	user, err := r.users.FindByUsername(ctx, username)
	if err != nil {
		if !errors.Is(err, models.ErrUserNotFound) {
			r.logger.Warn("Failed to look up local destination", zap.String("username", username), zap.Error(err))
		}
		return nil, fmt.Errorf("%w: %v", models.ErrUnresolvableDestination, err)
	}
	payee := LocalPayee(r.cfg, user)
	return &models.Destination{
		AccountURI:   payee.Account,
		Name:         payee.Name,
		ImageURL:     payee.ImageURL,
		CurrencyCode: payee.CurrencyCode,
		Local:        true,
		UserID:       &user.ID,
		Username:     user.Username,
	}, nil
}

func (r *Resolver) resolveRemote(ctx context.Context, addr Address) (*models.Destination, error) {
	endpoint := (&url.URL{
		Scheme: r.scheme,
		Host:   addr.Host,
		Path:   "/api/receivers/" + addr.User,
	}).String()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrUnresolvableDestination, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		r.logger.Info("Remote receiver lookup failed", zap.String("endpoint", endpoint), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", models.ErrUnresolvableDestination, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s returned %d", models.ErrUnresolvableDestination, endpoint, resp.StatusCode)
	}

	var payee models.Payee
	if err := json.NewDecoder(resp.Body).Decode(&payee); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrUnresolvableDestination, err)
	}
	if payee.Type != "payee" || payee.Account == "" {
		return nil, fmt.Errorf("%w: %s is not a payee", models.ErrUnresolvableDestination, endpoint)
	}

	return &models.Destination{
		AccountURI:   payee.Account,
		Name:         payee.Name,
		ImageURL:     payee.ImageURL,
		CurrencyCode: payee.CurrencyCode,
		Local:        strings.HasPrefix(payee.Account, strings.TrimRight(r.cfg.Ledger.URI, "/")+"/"),
	}, nil
}

// LocalPayee is the descriptor this wallet publishes for one of its own users.
func LocalPayee(cfg *config.Config, user *models.User) models.Payee {
	payee := models.Payee{
		Type:           "payee",
		Account:        strings.TrimRight(cfg.Ledger.URI, "/") + "/accounts/" + user.Username,
		CurrencyCode:   cfg.Ledger.CurrencyCode,
		CurrencySymbol: cfg.Ledger.CurrencySymbol,
		Name:           user.Name,
	}
	if user.ProfilePicture != "" {
		payee.ImageURL = "https://" + cfg.PublicHost + "/users/" + user.Username + "/profilepic"
	}
	return payee
}
