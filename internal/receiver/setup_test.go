package receiver

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/akylbek/payment-system/wallet/internal/config"
	"github.com/akylbek/payment-system/wallet/internal/events"
	"github.com/akylbek/payment-system/wallet/internal/models"
	"github.com/akylbek/payment-system/wallet/internal/payment"
	"github.com/akylbek/payment-system/wallet/internal/repository/repositorytest"
	"github.com/akylbek/payment-system/wallet/internal/spsp"
)

const condition = "cc:0:3:n4bQgYhMfWWaL-qgxVrQFaO_TxsrC4Is0V1sFbDwCgg:32"

var expiry = time.Date(2026, 10, 15, 12, 5, 0, 0, time.UTC)

type fixedGenerator struct{}

func (fixedGenerator) Generate(username, amount string) spsp.PaymentRequest {
	return spsp.PaymentRequest{
		Address:   "example.wallet." + username + ".3b8a",
		Amount:    amount,
		ExpiresAt: expiry,
		Condition: condition,
	}
}

type discard struct{}

func (discard) Publish(events.Event) {}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Ledger.URI = "http://ledger.example"
	cfg.Ledger.Scale = 2
	return cfg
}

func bob() *models.User {
	return &models.User{ID: 2, Username: "bob", Name: "Bob", Account: "http://ledger.example/accounts/bob"}
}

func TestCreateRequest(t *testing.T) {
	store := repositorytest.NewPaymentStore()
	s := NewSetup(testConfig(), repositorytest.NewUserStore(bob()), store, fixedGenerator{}, discard{}, zaptest.NewLogger(t))

	sender := &models.SenderIdentity{Account: "http://red.example/accounts/carol", Name: "Carol"}
	params, err := s.CreateRequest(context.Background(), "bob", "10", sender, "rent")
	require.NoError(t, err)

	assert.Equal(t, "10.00", params.Amount)
	assert.Equal(t, condition, params.Condition)
	assert.Equal(t, expiry, params.ExpiresAt)
	assert.Equal(t, "example.wallet.bob.3b8a", params.Address)

	p, err := store.GetByCondition(context.Background(), condition)
	require.NoError(t, err)
	assert.Equal(t, models.StatePending, p.State)
	assert.Equal(t, "http://ledger.example/accounts/bob", p.DestinationAccount)
	assert.Equal(t, "10.00", p.DestinationAmount)
	assert.Equal(t, int64(2), *p.DestinationUser)
	assert.Equal(t, "Carol", p.SourceName)
	assert.Equal(t, "rent", *p.Message)
	assert.Empty(t, p.Transfer)
}

func TestCreateRequestUnknownReceiver(t *testing.T) {
	store := repositorytest.NewPaymentStore()
	s := NewSetup(testConfig(), repositorytest.NewUserStore(), store, fixedGenerator{}, discard{}, zaptest.NewLogger(t))

	_, err := s.CreateRequest(context.Background(), "ghost", "10", nil, "")
	require.Equal(t, models.ErrUnknownReceiver, err)
	assert.Equal(t, 0, store.Writes())
}

func TestCreateRequestAmountScale(t *testing.T) {
	s := NewSetup(testConfig(), repositorytest.NewUserStore(bob()), repositorytest.NewPaymentStore(), fixedGenerator{}, discard{}, zaptest.NewLogger(t))

	for amount, want := range map[string]string{"10": "10.00", "0.5": "0.50", "3.25": "3.25"} {
		store := repositorytest.NewPaymentStore()
		s.repo = store
		params, err := s.CreateRequest(context.Background(), "bob", amount, nil, "")
		require.NoError(t, err, amount)
		assert.Equal(t, want, params.Amount)
	}

	for _, amount := range []string{"0.001", "-1", "0", "ten"} {
		_, err := s.CreateRequest(context.Background(), "bob", amount, nil, "")
		assert.ErrorIs(t, err, models.ErrInvalidRequest, amount)
	}
}

func TestPayee(t *testing.T) {
	u := bob()
	u.ProfilePicture = "bob.png"
	s := NewSetup(testConfig(), repositorytest.NewUserStore(u), repositorytest.NewPaymentStore(), fixedGenerator{}, discard{}, zaptest.NewLogger(t))

	payee, err := s.Payee(context.Background(), "bob")
	require.NoError(t, err)
	assert.Equal(t, models.Payee{
		Type:           "payee",
		Account:        "http://ledger.example/accounts/bob",
		CurrencyCode:   "USD",
		CurrencySymbol: "$",
		Name:           "Bob",
		ImageURL:       "https://wallet.example/users/bob/profilepic",
	}, *payee)

	_, err = s.Payee(context.Background(), "ghost")
	assert.Equal(t, models.ErrUnknownReceiver, err)
}

type bobResolver struct{}

func (bobResolver) Resolve(ctx context.Context, raw string) (*models.Destination, error) {
	id := int64(2)
	return &models.Destination{AccountURI: "http://ledger.example/accounts/bob", Name: "Bob", Local: true, UserID: &id, Username: "bob"}, nil
}

type conditionSubmitter struct{}

func (conditionSubmitter) SubmitConditionalTransfer(ctx context.Context, params spsp.TransferParams) (*spsp.TransferResult, error) {
	return &spsp.TransferResult{ExecutionCondition: condition, TransferID: "t-1"}, nil
}

type noLock struct{}

func (noLock) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) { return true, nil }
func (noLock) Release(ctx context.Context, key string) error { return nil }

func TestCreateRequestRacingPayLeavesOneSuccessRecord(t *testing.T) {
	for i := 0; i < 50; i++ {
		cfg := testConfig()
		store := repositorytest.NewPaymentStore()
		setup := NewSetup(cfg, repositorytest.NewUserStore(bob()), store, fixedGenerator{}, discard{}, zaptest.NewLogger(t))
		executor := payment.NewExecutor(cfg, bobResolver{}, conditionSubmitter{}, store, noLock{}, discard{}, zaptest.NewLogger(t))
		alice := &models.User{ID: 1, Username: "alice", Account: "http://ledger.example/accounts/alice"}

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := setup.CreateRequest(context.Background(), "bob", "10", nil, "")
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			_, err := executor.Pay(context.Background(), alice, models.PayRequest{
				ID:                uuid.NewString(),
				Destination:       "bob",
				SourceAmount:      "10",
				DestinationAmount: "10",
			})
			assert.NoError(t, err)
		}()
		wg.Wait()

		require.Equal(t, 1, store.Len())
		p, err := store.GetByCondition(context.Background(), condition)
		require.NoError(t, err)
		assert.Equal(t, models.StateSuccess, p.State)
		assert.Equal(t, "t-1", p.Transfer)
		assert.Equal(t, int64(1), *p.SourceUser)
	}
}
