package interfaces

import (
	"context"

	"github.com/akylbek/payment-system/wallet/internal/models"
)

// PaymentRepository defines the contract for payment record storage.
//
// FindOrCreateByCondition must be atomic with respect to the unique execution condition:
// concurrent callers with one condition all observe the same single row. CompletePending
// must only write a row that is still pending, so two completions never both succeed.
type PaymentRepository interface {
	FindOrCreateByCondition(ctx context.Context, seed *models.Payment) (*models.Payment, bool, error)
	Create(ctx context.Context, payment *models.Payment) error
	CompletePending(ctx context.Context, payment *models.Payment, requestID string) (*models.Payment, bool, error)
	GetByID(ctx context.Context, id string) (*models.Payment, error)
	GetByCondition(ctx context.Context, condition string) (*models.Payment, error)
	ListByUser(ctx context.Context, userID int64, page, limit int) ([]models.Payment, int, error)
	StatsByUser(ctx context.Context, userID int64) (*models.PaymentStats, error)
}

type UserRepository interface {
	FindByUsername(ctx context.Context, username string) (*models.User, error)
}
