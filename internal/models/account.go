package models

import "time"

type Account struct {
	ID               int64      `db:"id" json:"id"`
	TelegramID       string     `db:"telegram_id" json:"telegram_id"`
	Username         *string    `db:"username" json:"username"`
	FirstName        string     `db:"first_name" json:"first_name"`
	LastName         string     `db:"last_name" json:"last_name"`
	LanguageCode     string     `db:"language_code" json:"language_code"`
	AvatarURL        *string    `db:"avatar_url" json:"avatar"`
	BackgroundColor  string     `db:"background_color" json:"background_color"`
	Description      string     `db:"description" json:"description"`
	Badge            *string    `db:"badge" json:"badge"`
	IsPremium        bool       `db:"is_premium" json:"is_premium"`
	PremiumTier      int        `db:"premium_tier" json:"premium_tier"`
	PremiumExpiresAt *time.Time `db:"premium_expires_at" json:"premium_expires_at,omitempty"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at" json:"updated_at"`
}

// DisplayName prefers the full name, then @username, then the Telegram id.
func (a *Account) DisplayName() string {
	name := a.FirstName
	if a.LastName != "" {
		if name != "" {
			name += " "
		}
		name += a.LastName
	}
	if name != "" {
		return name
	}
	if a.Username != nil && *a.Username != "" {
		return "@" + *a.Username
	}
	return a.TelegramID
}

// PublicAccount is the account as returned to the Mini-App.
type PublicAccount struct {
	ID              int64   `json:"id"`
	TelegramID      string  `json:"telegram_id"`
	Username        *string `json:"username"`
	FirstName       string  `json:"first_name"`
	LastName        string  `json:"last_name"`
	Avatar          *string `json:"avatar"`
	BackgroundColor string  `json:"background_color"`
	Description     string  `json:"description"`
	Badge           *string `json:"badge"`
	IsPremium       bool    `json:"is_premium"`
}

func (a *Account) Public() PublicAccount {
	return PublicAccount{
		ID:              a.ID,
		TelegramID:      a.TelegramID,
		Username:        a.Username,
		FirstName:       a.FirstName,
		LastName:        a.LastName,
		Avatar:          a.AvatarURL,
		BackgroundColor: a.BackgroundColor,
		Description:     a.Description,
		Badge:           a.Badge,
		IsPremium:       a.IsPremium,
	}
}
