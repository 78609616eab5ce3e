package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/akylbek/payment-system/wallet/internal/circuitbreaker"
	"github.com/akylbek/payment-system/wallet/internal/config"
	"github.com/akylbek/payment-system/wallet/internal/models"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, reload bool) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := config.Default()
	cfg.Ledger.URI = srv.URL
	cfg.Ledger.AdminUser = "admin"
	cfg.Ledger.AdminPass = "adminpass"
	cfg.Reload = reload
	return NewClient(cfg, srv.Client(), zaptest.NewLogger(t))
}

func writeError(w http.ResponseWriter, status int, id, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"id": id, "message": message})
}

func TestClient_GetAccount(t *testing.T) {
	t.Run("ok, user credentials", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			user, pass, ok := r.BasicAuth()
			assert.True(t, ok)
			assert.Equal(t, "alice", user)
			assert.Equal(t, "secret", pass)
			assert.Equal(t, "/accounts/alice", r.URL.Path)
			_ = json.NewEncoder(w).Encode(Account{ID: "http://ledger/accounts/alice", Name: "alice", Balance: "12.50"})
		}, false)

		account, err := c.GetAccount(context.Background(), Credentials{Username: "alice", Password: "secret"}, false)
		require.NoError(t, err)
		require.Equal(t, "12.50", account.Balance)
	})

	t.Run("ok, admin credentials", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			user, _, _ := r.BasicAuth()
			assert.Equal(t, "admin", user)
			_ = json.NewEncoder(w).Encode(Account{Name: "alice", Balance: "1"})
		}, false)

		_, err := c.GetAccount(context.Background(), Credentials{Username: "alice"}, true)
		require.NoError(t, err)
	})

	for _, id := range []string{idNotFound, idUnauthorized} {
		t.Run("fail, "+id+" maps to not found", func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				writeError(w, http.StatusNotFound, id, "nope")
			}, false)

			_, err := c.GetAccount(context.Background(), Credentials{Username: "alice"}, false)
			require.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestClient_CreateAccount(t *testing.T) {
	t.Run("ok, reload funds the account", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPut, r.Method)
			user, _, _ := r.BasicAuth()
			assert.Equal(t, "admin", user)

			var body accountBody
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "bob", body.Name)
			assert.Equal(t, ReloadAmount, body.Balance)
			assert.Equal(t, "pw", body.Password)
			_ = json.NewEncoder(w).Encode(Account{ID: "http://ledger/accounts/bob", Name: "bob", Balance: body.Balance})
		}, true)

		account, err := c.CreateAccount(context.Background(), AccountProfile{Username: "bob", Password: "pw"})
		require.NoError(t, err)
		require.Equal(t, "http://ledger/accounts/bob", account.ID)
	})

	t.Run("fail, name taken", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			writeError(w, http.StatusConflict, idDuplicateID, "taken")
		}, false)

		_, err := c.CreateAccount(context.Background(), AccountProfile{Username: "bob"})
		require.ErrorIs(t, err, ErrNameTaken)
	})

	for _, status := range []int{http.StatusBadRequest, http.StatusUnauthorized} {
		t.Run(fmt.Sprintf("fail, %d is not a taken name", status), func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				writeError(w, status, "SomeError", "nope")
			}, false)

			_, err := c.CreateAccount(context.Background(), AccountProfile{Username: "bob"})
			require.Error(t, err)
			require.NotErrorIs(t, err, ErrNameTaken)

			var le *Error
			require.ErrorAs(t, err, &le)
			require.Equal(t, status, le.StatusCode)
		})
	}
}

func TestClient_UpdateAccount(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		user, _, _ := r.BasicAuth()
		assert.Equal(t, "admin", user)

		var body accountBody
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "1012", body.Balance)
		_ = json.NewEncoder(w).Encode(Account{Name: body.Name, Balance: body.Balance})
	}, false)

	account, err := c.UpdateAccount(context.Background(), Credentials{Username: "alice"}, AccountUpdate{Balance: "1012"}, true)
	require.NoError(t, err)
	require.Equal(t, "1012", account.Balance)
}

func TestClient_GetTransfer(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/transfers/3d4c9c8e", r.URL.Path)
		_ = json.NewEncoder(w).Encode(Transfer{ID: "3d4c9c8e", State: "executed", ExecutionCondition: "cc:0:3:abc:32"})
	}, false)

	transfer, err := c.GetTransfer(context.Background(), "3d4c9c8e")
	require.NoError(t, err)
	require.Equal(t, "executed", transfer.State)
	require.Equal(t, "cc:0:3:abc:32", transfer.ExecutionCondition)

	transfer, err = c.GetTransfer(context.Background(), c.URI()+"/transfers/3d4c9c8e")
	require.NoError(t, err)
	require.Equal(t, "3d4c9c8e", transfer.ID)
}

func TestClient_GetTransferRefusesForeignReferences(t *testing.T) {
	foreignCalls := 0
	foreign := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		foreignCalls++
	}))
	t.Cleanup(foreign.Close)

	ledgerCalls := 0
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		ledgerCalls++
	}, false)

	for _, ref := range []string{
		foreign.URL + "/transfers/3d4c9c8e",
		foreign.URL + "/steal",
		c.URI() + "/transfers/../accounts/alice",
		c.URI() + ".attacker.example/transfers/3d4c9c8e",
		"../accounts/alice",
		"3d4c9c8e?x=1",
		"",
	} {
		_, err := c.GetTransfer(context.Background(), ref)
		require.ErrorIs(t, err, models.ErrInvalidRequest, ref)
	}
	require.Zero(t, foreignCalls)
	require.Zero(t, ledgerCalls)
}

func TestClient_CircuitBreaker(t *testing.T) {
	calls := 0
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		writeError(w, http.StatusServiceUnavailable, "", "")
	}, false)

	for i := 0; i < 5; i++ {
		_, err := c.GetInfo(context.Background(), "")
		require.Error(t, err)
	}
	_, err := c.GetInfo(context.Background(), "")
	require.ErrorIs(t, err, circuitbreaker.ErrCircuitOpen)
	require.Equal(t, 5, calls)
}

func TestIsInsufficientFunds(t *testing.T) {
	require.True(t, IsInsufficientFunds(&Error{StatusCode: 422, ID: "InsufficientFundsError"}))
	require.False(t, IsInsufficientFunds(&Error{StatusCode: 422, ID: "UnprocessableEntityError"}))
	require.False(t, IsInsufficientFunds(context.DeadlineExceeded))
}
