// Package initdatatest builds signed init-data strings for tests.
package initdatatest

import (
	"encoding/json"
	"strconv"
	"time"

	"facecards/internal/initdata"
)

const BotToken = "7342037359:AAHI25ES9xCOMPsF6mRrT3wXUX8h0FqGf3o"

// User is the subset of the Telegram user object tests care about.
type User struct {
	ID        int64  `json:"id"`
	Username  string `json:"username,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	IsPremium bool   `json:"is_premium,omitempty"`
	PhotoURL  string `json:"photo_url,omitempty"`
}

// Payload returns "user=...&auth_date=...&hash=..." signed with botToken.
func Payload(botToken string, user User, authDate time.Time) string {
	raw, err := json.Marshal(user)
	if err != nil {
		panic(err)
	}

	p := initdata.NewPairs()
	p.Set(initdata.UserKey, string(raw))
	p.Set(initdata.AuthDateKey, strconv.FormatInt(authDate.Unix(), 10))
	return Sign(botToken, p)
}

// Sign appends the hash for p and returns the encoded query string.
func Sign(botToken string, p *initdata.Pairs) string {
	signed := p.Clone()
	signed.Delete(initdata.HashKey)
	signed.Set(initdata.HashKey, initdata.Sign(signed, initdata.NewSecret(botToken)))
	return signed.Encode()
}
