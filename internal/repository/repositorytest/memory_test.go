package repositorytest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akylbek/payment-system/wallet/internal/models"
)

func TestCompletePendingAdmitsOneTransfer(t *testing.T) {
	store := NewPaymentStore()
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, &models.Payment{
		ID:                 "receiver-created",
		DestinationAccount: "http://ledger/accounts/bob",
		DestinationAmount:  "10.00",
		ExecutionCondition: "cc:1",
		State:              models.StatePending,
	}))

	transfers := []string{"t-1", "t-2"}
	won := make([]bool, len(transfers))

	var wg sync.WaitGroup
	for i, transfer := range transfers {
		wg.Add(1)
		go func(i int, transfer string) {
			defer wg.Done()
			current, err := store.GetByCondition(ctx, "cc:1")
			if !assert.NoError(t, err) {
				return
			}
			now := time.Now()
			current.Transfer = transfer
			current.State = models.StateSuccess
			current.CompletedAt = &now

			_, ok, err := store.CompletePending(ctx, current, "")
			assert.NoError(t, err)
			won[i] = ok
		}(i, transfer)
	}
	wg.Wait()

	require.NotEqual(t, won[0], won[1])
	stored, err := store.GetByCondition(ctx, "cc:1")
	require.NoError(t, err)
	if won[0] {
		assert.Equal(t, "t-1", stored.Transfer)
	} else {
		assert.Equal(t, "t-2", stored.Transfer)
	}
}

func TestCompletePendingRecordsPayerID(t *testing.T) {
	store := NewPaymentStore()
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, &models.Payment{
		ID:                 "receiver-created",
		DestinationAccount: "http://ledger/accounts/bob",
		ExecutionCondition: "cc:1",
		State:              models.StatePending,
	}))

	current, err := store.GetByID(ctx, "receiver-created")
	require.NoError(t, err)
	current.Transfer = "t-1"
	current.State = models.StateSuccess

	_, ok, err := store.CompletePending(ctx, current, "payer-id")
	require.NoError(t, err)
	require.True(t, ok)

	byPayer, err := store.GetByID(ctx, "payer-id")
	require.NoError(t, err)
	assert.Equal(t, "receiver-created", byPayer.ID)

	_, ok, err = store.CompletePending(ctx, current, "payer-id")
	require.NoError(t, err)
	assert.False(t, ok)
}
