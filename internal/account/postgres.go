package account

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"facecards/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const uniqueViolation pq.ErrorCode = "23505"

const accountColumns = `id, telegram_id, username, first_name, last_name, language_code, avatar_url,
	background_color, description, badge, is_premium, premium_tier, premium_expires_at, created_at, updated_at`

// PostgresStore persists accounts in the accounts table. The UNIQUE
// constraint on telegram_id is what makes CreateAccount at-most-once.
type PostgresStore struct {
	db *sqlx.DB
}

var _ Store = (*PostgresStore)(nil)

func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) GetAccountByTelegramID(ctx context.Context, telegramID string) (*models.Account, error) {
	var acc models.Account
	err := s.db.GetContext(ctx, &acc, `SELECT `+accountColumns+` FROM accounts WHERE telegram_id = $1`, telegramID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("%w: get by telegram id: %v", ErrStorage, err)
	}
	return &acc, nil
}

func (s *PostgresStore) GetAccountByID(ctx context.Context, id int64) (*models.Account, error) {
	var acc models.Account
	err := s.db.GetContext(ctx, &acc, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("%w: get by id: %v", ErrStorage, err)
	}
	return &acc, nil
}

func (s *PostgresStore) CreateAccount(ctx context.Context, acc *models.Account) error {
	err := s.db.QueryRowxContext(ctx, `
		INSERT INTO accounts (telegram_id, username, first_name, last_name, language_code, avatar_url,
			background_color, description, badge, is_premium, premium_tier, premium_expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (telegram_id) DO NOTHING
		RETURNING id, created_at, updated_at
	`, acc.TelegramID, acc.Username, acc.FirstName, acc.LastName, acc.LanguageCode, acc.AvatarURL,
		acc.BackgroundColor, acc.Description, acc.Badge, acc.IsPremium, acc.PremiumTier, acc.PremiumExpiresAt,
	).Scan(&acc.ID, &acc.CreatedAt, &acc.UpdatedAt)

	if err != nil {
		// DO NOTHING returns no row when another insert won the race.
		if errors.Is(err, sql.ErrNoRows) || isUniqueViolation(err) {
			return ErrAccountExists
		}
		return fmt.Errorf("%w: create: %v", ErrStorage, err)
	}
	return nil
}

func (s *PostgresStore) UpdateAccount(ctx context.Context, acc *models.Account) error {
	err := s.db.QueryRowxContext(ctx, `
		UPDATE accounts SET
			telegram_id = $1, username = $2, first_name = $3, last_name = $4, language_code = $5,
			avatar_url = $6, background_color = $7, description = $8, badge = $9, is_premium = $10,
			premium_tier = $11, premium_expires_at = $12, updated_at = now()
		WHERE id = $13
		RETURNING updated_at
	`, acc.TelegramID, acc.Username, acc.FirstName, acc.LastName, acc.LanguageCode,
		acc.AvatarURL, acc.BackgroundColor, acc.Description, acc.Badge, acc.IsPremium,
		acc.PremiumTier, acc.PremiumExpiresAt, acc.ID,
	).Scan(&acc.UpdatedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrAccountNotFound
		}
		if isUniqueViolation(err) {
			return ErrAccountExists
		}
		return fmt.Errorf("%w: update: %v", ErrStorage, err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
