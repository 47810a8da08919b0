package initdata

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Identity is the Telegram user described by a verified payload. It only
// feeds the account upsert and is never stored as-is.
type Identity struct {
	TelegramID   string
	Username     *string
	FirstName    string
	LastName     string
	LanguageCode string
	IsPremium    bool
	PhotoURL     *string
}

// DisplayName joins first and last name the way the card shows it.
func (i *Identity) DisplayName() string {
	return strings.TrimSpace(i.FirstName + " " + i.LastName)
}

type userPayload struct {
	ID           json.Number `json:"id"`
	Username     *string     `json:"username"`
	FirstName    string      `json:"first_name"`
	LastName     string      `json:"last_name"`
	LanguageCode string      `json:"language_code"`
	IsPremium    bool        `json:"is_premium"`
	PhotoURL     *string     `json:"photo_url"`
}

// ExtractIdentity decodes the "user" field. The value is taken exactly as the
// parser decoded it; unescaping it again would corrupt literal '%' and '+'.
func ExtractIdentity(p *Pairs) (*Identity, error) {
	raw, ok := p.Get(UserKey)
	if !ok {
		return nil, ErrMissingUserField
	}

	var u userPayload
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidUserJSON, err)
	}

	if u.ID == "" {
		return nil, ErrMissingTelegramID
	}
	id, err := strconv.ParseInt(u.ID.String(), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: id %q is not an integer", ErrMissingTelegramID, u.ID)
	}

	return &Identity{
		TelegramID:   strconv.FormatInt(id, 10),
		Username:     nonEmpty(u.Username),
		FirstName:    u.FirstName,
		LastName:     u.LastName,
		LanguageCode: u.LanguageCode,
		IsPremium:    u.IsPremium,
		PhotoURL:     nonEmpty(u.PhotoURL),
	}, nil
}

func nonEmpty(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	return s
}
