package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/akylbek/payment-system/wallet/internal/models"
)

type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	err := r.db.QueryRowContext(ctx, `
		SELECT id, username, COALESCE(name, ''), COALESCE(email, ''), account, COALESCE(profile_picture, '')
		FROM users WHERE username = $1
	`, username).Scan(&user.ID, &user.Username, &user.Name, &user.Email, &user.Account, &user.ProfilePicture)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}
