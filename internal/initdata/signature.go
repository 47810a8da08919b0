package initdata

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

const secretKeyLabel = "WebAppData"

// Secret is the HMAC key derived from a bot token. Derive it once per process.
type Secret []byte

func NewSecret(botToken string) Secret {
	mac := hmac.New(sha256.New, []byte(secretKeyLabel))
	mac.Write([]byte(botToken))
	return mac.Sum(nil)
}

func (s Secret) String() string {
	return "[REDACTED]"
}

func (s Secret) GoString() string {
	return s.String()
}

// Sign returns the lowercase hex HMAC-SHA256 of the pairs' check string.
func Sign(p *Pairs, secret Secret) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(p.CheckString()))
	return hex.EncodeToString(mac.Sum(nil))
}

// Validate authenticates the pairs against secret. Only the HMAC "hash" scheme
// is accepted; a payload carrying just an Ed25519 "signature" is rejected.
// The pairs are left untouched.
func Validate(p *Pairs, secret Secret) error {
	supplied, ok := p.Get(HashKey)
	if !ok || supplied == "" {
		if _, hasSig := p.Get(SignatureKey); hasSig {
			return ErrUnsupportedSignatureScheme
		}
		return ErrMissingSignature
	}

	expected := Sign(p, secret)
	if !hmac.Equal([]byte(expected), []byte(supplied)) {
		return ErrSignatureMismatch
	}
	return nil
}
