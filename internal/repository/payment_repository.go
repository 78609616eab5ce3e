package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/akylbek/payment-system/wallet/internal/models"
)

const uniqueViolation = "23505"

const paymentColumns = `id, source_user, source_account, source_name, source_image_url, source_amount,
	destination_user, destination_account, destination_amount, destination_name, destination_image_url,
	message, transfer, execution_condition, state, created_at, updated_at, completed_at`

const insertPayment = `INSERT INTO payments (id, source_user, source_account, source_name, source_image_url,
	source_amount, destination_user, destination_account, destination_amount, destination_name,
	destination_image_url, message, transfer, execution_condition, state, completed_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`

type PaymentRepository struct {
	db *sql.DB
}

func NewPaymentRepository(db *sql.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func (r *PaymentRepository) InitDB(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id BIGSERIAL PRIMARY KEY,
			username VARCHAR(255) NOT NULL UNIQUE,
			name VARCHAR(255),
			email VARCHAR(255) UNIQUE,
			account TEXT NOT NULL,
			profile_picture TEXT,
			created_at TIMESTAMPTZ DEFAULT NOW(),
			updated_at TIMESTAMPTZ DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS payments (
			id UUID PRIMARY KEY,
			source_user BIGINT REFERENCES users(id),
			source_account TEXT,
			source_name TEXT,
			source_image_url TEXT,
			source_amount NUMERIC,
			destination_user BIGINT REFERENCES users(id),
			destination_account TEXT NOT NULL,
			destination_amount NUMERIC NOT NULL,
			destination_name TEXT,
			destination_image_url TEXT,
			message TEXT,
			transfer TEXT,
			execution_condition TEXT NOT NULL,
			state VARCHAR(50) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			completed_at TIMESTAMPTZ,
			request_id UUID UNIQUE,
			CONSTRAINT payments_execution_condition_key UNIQUE (execution_condition)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_payments_source_user ON payments(source_user)`,
		`CREATE INDEX IF NOT EXISTS idx_payments_destination_user ON payments(destination_user)`,
	}

	for _, query := range queries {
		if _, err := r.db.ExecContext(ctx, query); err != nil {
			return err
		}
	}

	return nil
}

// FindOrCreateByCondition inserts seed unless a row with its execution condition exists,
// and returns whichever row holds the condition. The insert and the conflict check are one
// statement, so concurrent callers cannot both create a row.
func (r *PaymentRepository) FindOrCreateByCondition(ctx context.Context, seed *models.Payment) (*models.Payment, bool, error) {
	row := r.db.QueryRowContext(ctx,
		insertPayment+` ON CONFLICT (execution_condition) DO NOTHING RETURNING `+paymentColumns,
		insertArgs(seed)...)

	payment, err := scanPayment(row)
	if err == nil {
		return payment, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, mapWriteError(err)
	}

	payment, err = r.GetByCondition(ctx, seed.ExecutionCondition)
	if err != nil {
		return nil, false, err
	}
	return payment, false, nil
}

func (r *PaymentRepository) Create(ctx context.Context, payment *models.Payment) error {
	err := r.db.QueryRowContext(ctx, insertPayment+` RETURNING created_at, updated_at`,
		insertArgs(payment)...).Scan(&payment.CreatedAt, &payment.UpdatedAt)
	return mapWriteError(err)
}

// CompletePending moves a pending row to the state carried by payment. The row must still be
// pending and either hold no transfer or the same one; otherwise nothing is written and the
// returned flag is false. requestID is the payer's own payment id when it differs from the row's.
func (r *PaymentRepository) CompletePending(ctx context.Context, payment *models.Payment, requestID string) (*models.Payment, bool, error) {
	var completedAt sql.NullTime
	if payment.CompletedAt != nil {
		completedAt = sql.NullTime{Time: payment.CompletedAt.UTC(), Valid: true}
	}
	var request sql.NullString
	if requestID != "" && requestID != payment.ID {
		request = sql.NullString{String: requestID, Valid: true}
	}

	row := r.db.QueryRowContext(ctx, `UPDATE payments SET
			source_user = $2,
			source_account = $3,
			source_name = $4,
			source_image_url = $5,
			source_amount = $6,
			destination_user = $7,
			destination_account = $8,
			destination_amount = $9,
			destination_name = $10,
			destination_image_url = $11,
			message = $12,
			transfer = $13,
			state = $14,
			completed_at = $15,
			request_id = COALESCE($16, request_id),
			updated_at = NOW()
		WHERE id = $1 AND state = $17 AND (transfer IS NULL OR transfer = $13)
		RETURNING `+paymentColumns,
		payment.ID, nullInt(payment.SourceUser), nullString(payment.SourceAccount), nullString(payment.SourceName),
		nullString(payment.SourceImageURL), nullString(payment.SourceAmount), nullInt(payment.DestinationUser),
		payment.DestinationAccount, payment.DestinationAmount, nullString(payment.DestinationName),
		nullString(payment.DestinationImageURL), payment.Message, nullString(payment.Transfer),
		string(payment.State), completedAt, request, string(models.StatePending))

	updated, err := scanPayment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, mapWriteError(err)
	}
	return updated, true, nil
}

// GetByID finds a payment by its own id or by the id its payer used to complete it.
func (r *PaymentRepository) GetByID(ctx context.Context, id string) (*models.Payment, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1 OR request_id = $1
		ORDER BY (id = $1) DESC LIMIT 1`, id)
	return scanOne(row)
}

func (r *PaymentRepository) GetByCondition(ctx context.Context, condition string) (*models.Payment, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE execution_condition = $1`, condition)
	return scanOne(row)
}

func (r *PaymentRepository) ListByUser(ctx context.Context, userID int64, page, limit int) ([]models.Payment, int, error) {
	if page < 1 {
		page = 1
	}

	var total int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM payments WHERE source_user = $1 OR destination_user = $1`, userID).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	rows, err := r.db.QueryContext(ctx, `SELECT `+paymentColumns+` FROM payments
		WHERE source_user = $1 OR destination_user = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`, userID, limit, (page-1)*limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	payments := make([]models.Payment, 0, limit)
	for rows.Next() {
		payment, err := scanPayment(rows)
		if err != nil {
			return nil, 0, err
		}
		payments = append(payments, *payment)
	}
	return payments, total, rows.Err()
}

func (r *PaymentRepository) StatsByUser(ctx context.Context, userID int64) (*models.PaymentStats, error) {
	var stats models.PaymentStats
	var sent, received decimal.Decimal

	err := r.db.QueryRowContext(ctx, `SELECT
			COUNT(*) FILTER (WHERE source_user = $1 AND state = 'success'),
			COALESCE(SUM(source_amount) FILTER (WHERE source_user = $1 AND state = 'success'), 0),
			COUNT(*) FILTER (WHERE destination_user = $1 AND state = 'success'),
			COALESCE(SUM(destination_amount) FILTER (WHERE destination_user = $1 AND state = 'success'), 0),
			COUNT(*) FILTER (WHERE destination_user = $1 AND state = 'pending')
		FROM payments WHERE source_user = $1 OR destination_user = $1`, userID).
		Scan(&stats.SentCount, &sent, &stats.ReceivedCount, &received, &stats.PendingReceived)
	if err != nil {
		return nil, err
	}

	stats.SentAmount = sent.String()
	stats.ReceivedAmount = received.String()
	return &stats, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOne(row rowScanner) (*models.Payment, error) {
	payment, err := scanPayment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrPaymentNotFound
	}
	return payment, err
}

func scanPayment(row rowScanner) (*models.Payment, error) {
	var (
		p                                             models.Payment
		sourceUser, destinationUser                   sql.NullInt64
		sourceAccount, sourceName, sourceImage        sql.NullString
		sourceAmount, destinationName, destinationImg sql.NullString
		message, transfer                             sql.NullString
		completedAt                                   sql.NullTime
	)

	err := row.Scan(&p.ID, &sourceUser, &sourceAccount, &sourceName, &sourceImage, &sourceAmount,
		&destinationUser, &p.DestinationAccount, &p.DestinationAmount, &destinationName, &destinationImg,
		&message, &transfer, &p.ExecutionCondition, &p.State, &p.CreatedAt, &p.UpdatedAt, &completedAt)
	if err != nil {
		return nil, err
	}

	if sourceUser.Valid {
		p.SourceUser = &sourceUser.Int64
	}
	if destinationUser.Valid {
		p.DestinationUser = &destinationUser.Int64
	}
	if message.Valid {
		p.Message = &message.String
	}
	if completedAt.Valid {
		p.CompletedAt = &completedAt.Time
	}
	p.SourceAccount = sourceAccount.String
	p.SourceName = sourceName.String
	p.SourceImageURL = sourceImage.String
	p.SourceAmount = sourceAmount.String
	p.DestinationName = destinationName.String
	p.DestinationImageURL = destinationImg.String
	p.Transfer = transfer.String
	return &p, nil
}

func insertArgs(p *models.Payment) []any {
	var completedAt sql.NullTime
	if p.CompletedAt != nil {
		completedAt = sql.NullTime{Time: p.CompletedAt.UTC(), Valid: true}
	}
	return []any{
		p.ID, nullInt(p.SourceUser), nullString(p.SourceAccount), nullString(p.SourceName),
		nullString(p.SourceImageURL), nullString(p.SourceAmount), nullInt(p.DestinationUser),
		p.DestinationAccount, p.DestinationAmount, nullString(p.DestinationName),
		nullString(p.DestinationImageURL), p.Message, nullString(p.Transfer), p.ExecutionCondition,
		string(p.State), completedAt,
	}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(i *int64) sql.NullInt64 {
	if i == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *i, Valid: true}
}

func mapWriteError(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", models.ErrDuplicateRecord, pqErr.Constraint)
	}
	return err
}
