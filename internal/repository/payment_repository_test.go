package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"github.com/akylbek/payment-system/wallet/internal/models"
)

var columns = []string{
	"id", "source_user", "source_account", "source_name", "source_image_url", "source_amount",
	"destination_user", "destination_account", "destination_amount", "destination_name", "destination_image_url",
	"message", "transfer", "execution_condition", "state", "created_at", "updated_at", "completed_at",
}

func setupPaymentRepo(t *testing.T) (*PaymentRepository, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create mock database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewPaymentRepository(db), mock
}

func pendingRow(id, condition string) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(columns).AddRow(
		id, nil, "alice@wallet1.example", "Alice", nil, nil,
		int64(2), "http://ledger/accounts/bob", "10.00", nil, nil,
		"for lunch", nil, condition, "pending", now, now, nil,
	)
}

func seedPayment(id, condition string) *models.Payment {
	source := int64(1)
	return &models.Payment{
		ID:                 id,
		SourceUser:         &source,
		SourceAccount:      "http://ledger/accounts/alice",
		SourceAmount:       "10",
		DestinationAccount: "http://ledger/accounts/bob",
		DestinationAmount:  "10",
		ExecutionCondition: condition,
		State:              models.StateSuccess,
	}
}

func TestPaymentRepository_FindOrCreateByCondition_Created(t *testing.T) {
	repo, mock := setupPaymentRepo(t)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("ON CONFLICT (execution_condition) DO NOTHING RETURNING")).
		WithArgs("p-1", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			sqlmock.AnyArg(), "http://ledger/accounts/bob", "10", sqlmock.AnyArg(), sqlmock.AnyArg(),
			sqlmock.AnyArg(), sqlmock.AnyArg(), "cc:1", "success", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(columns).AddRow(
			"p-1", int64(1), "http://ledger/accounts/alice", nil, nil, "10",
			nil, "http://ledger/accounts/bob", "10", nil, nil,
			nil, nil, "cc:1", "success", now, now, nil,
		))

	payment, created, err := repo.FindOrCreateByCondition(context.Background(), seedPayment("p-1", "cc:1"))
	require.NoError(t, err)
	require.True(t, created)
	require.Equal(t, "p-1", payment.ID)
	require.Equal(t, int64(1), *payment.SourceUser)
	require.Nil(t, payment.Message)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepository_FindOrCreateByCondition_Existing(t *testing.T) {
	repo, mock := setupPaymentRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta("ON CONFLICT (execution_condition) DO NOTHING")).
		WillReturnRows(sqlmock.NewRows(columns))
	mock.ExpectQuery(regexp.QuoteMeta("FROM payments WHERE execution_condition = $1")).
		WithArgs("cc:1").
		WillReturnRows(pendingRow("receiver-created", "cc:1"))

	payment, created, err := repo.FindOrCreateByCondition(context.Background(), seedPayment("p-1", "cc:1"))
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, "receiver-created", payment.ID)
	require.Equal(t, models.StatePending, payment.State)
	require.Equal(t, "for lunch", *payment.Message)
	require.Equal(t, "10.00", payment.DestinationAmount)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepository_FindOrCreateByCondition_IDCollision(t *testing.T) {
	repo, mock := setupPaymentRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta("ON CONFLICT (execution_condition) DO NOTHING")).
		WillReturnError(&pq.Error{Code: uniqueViolation, Constraint: "payments_pkey"})

	_, _, err := repo.FindOrCreateByCondition(context.Background(), seedPayment("p-1", "cc:1"))
	require.ErrorIs(t, err, models.ErrDuplicateRecord)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepository_CompletePending(t *testing.T) {
	completing := func() *models.Payment {
		p := seedPayment("receiver-created", "cc:1")
		p.Transfer = "t-1"
		return p
	}

	t.Run("ok, pending row completed", func(t *testing.T) {
		repo, mock := setupPaymentRepo(t)

		now := time.Now()
		mock.ExpectQuery(regexp.QuoteMeta("WHERE id = $1 AND state = $17 AND (transfer IS NULL OR transfer = $13)")).
			WithArgs("receiver-created", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
				sqlmock.AnyArg(), sqlmock.AnyArg(), "http://ledger/accounts/bob", "10", sqlmock.AnyArg(),
				sqlmock.AnyArg(), sqlmock.AnyArg(), "t-1", "success",
				sqlmock.AnyArg(), "p-1", "pending").
			WillReturnRows(sqlmock.NewRows(columns).AddRow(
				"receiver-created", int64(1), "http://ledger/accounts/alice", nil, nil, "10",
				int64(2), "http://ledger/accounts/bob", "10", nil, nil,
				"for lunch", "t-1", "cc:1", "success", now, now, now,
			))

		payment, ok, err := repo.CompletePending(context.Background(), completing(), "p-1")
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, "t-1", payment.Transfer)
		require.Equal(t, models.StateSuccess, payment.State)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("not written, row already settled", func(t *testing.T) {
		repo, mock := setupPaymentRepo(t)

		mock.ExpectQuery(regexp.QuoteMeta("UPDATE payments SET")).
			WillReturnRows(sqlmock.NewRows(columns))

		payment, ok, err := repo.CompletePending(context.Background(), completing(), "receiver-created")
		require.NoError(t, err)
		require.False(t, ok)
		require.Nil(t, payment)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("fail, payer id already used", func(t *testing.T) {
		repo, mock := setupPaymentRepo(t)

		mock.ExpectQuery(regexp.QuoteMeta("UPDATE payments SET")).
			WillReturnError(&pq.Error{Code: uniqueViolation, Constraint: "payments_request_id_key"})

		_, _, err := repo.CompletePending(context.Background(), completing(), "p-1")
		require.ErrorIs(t, err, models.ErrDuplicateRecord)
	})
}

func TestPaymentRepository_Create(t *testing.T) {
	repo, mock := setupPaymentRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO payments")).
		WillReturnError(&pq.Error{Code: uniqueViolation, Constraint: "payments_execution_condition_key"})

	err := repo.Create(context.Background(), seedPayment("p-1", "cc:1"))
	require.ErrorIs(t, err, models.ErrDuplicateRecord)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepository_GetByID_NotFound(t *testing.T) {
	repo, mock := setupPaymentRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM payments WHERE id = $1 OR request_id = $1")).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "missing")
	require.ErrorIs(t, err, models.ErrPaymentNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepository_ListByUser(t *testing.T) {
	repo, mock := setupPaymentRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM payments")).
		WithArgs(int64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(12))
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY created_at DESC")).
		WithArgs(int64(2), 10, 10).
		WillReturnRows(pendingRow("a", "cc:a").AddRow(
			"b", nil, nil, nil, nil, nil,
			int64(2), "http://ledger/accounts/bob", "1", nil, nil,
			nil, nil, "cc:b", "pending", time.Now(), time.Now(), nil,
		))

	payments, total, err := repo.ListByUser(context.Background(), 2, 2, 10)
	require.NoError(t, err)
	require.Equal(t, 12, total)
	require.Len(t, payments, 2)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepository_StatsByUser(t *testing.T) {
	repo, mock := setupPaymentRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta("COUNT(*) FILTER")).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"sent", "sent_amount", "received", "received_amount", "pending"}).
			AddRow(3, "15.50", 1, "2", 4))

	stats, err := repo.StatsByUser(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, 3, stats.SentCount)
	require.Equal(t, "15.5", stats.SentAmount)
	require.Equal(t, "2", stats.ReceivedAmount)
	require.Equal(t, 4, stats.PendingReceived)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_FindByUsername(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewUserRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE username = $1")).
		WithArgs("bob").
		WillReturnRows(sqlmock.NewRows([]string{"id", "username", "name", "email", "account", "profile_picture"}).
			AddRow(2, "bob", "Bob", "bob@example.com", "http://ledger/accounts/bob", ""))
	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE username = $1")).
		WithArgs("nobody").
		WillReturnError(sql.ErrNoRows)

	user, err := repo.FindByUsername(context.Background(), "bob")
	require.NoError(t, err)
	require.Equal(t, int64(2), user.ID)

	_, err = repo.FindByUsername(context.Background(), "nobody")
	require.ErrorIs(t, err, models.ErrUserNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}
