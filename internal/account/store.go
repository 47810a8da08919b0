package account

import (
	"context"
	"errors"

	"facecards/internal/models"
)

var (
	ErrAccountNotFound = errors.New("account not found")      // 404
	ErrAccountExists   = errors.New("account already exists") // 409, resolved by re-reading
	ErrStorage         = errors.New("account storage error")  // 500
)

// Store is the durable account collaborator. CreateAccount must enforce one
// row per telegram_id and report a lost race as ErrAccountExists.
type Store interface {
	GetAccountByTelegramID(ctx context.Context, telegramID string) (*models.Account, error)
	GetAccountByID(ctx context.Context, id int64) (*models.Account, error)
	CreateAccount(ctx context.Context, acc *models.Account) error
	UpdateAccount(ctx context.Context, acc *models.Account) error
}
