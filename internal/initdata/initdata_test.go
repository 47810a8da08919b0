package initdata

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testBotToken = "123456:ABC-DEF1234ghIkl-zyx57W2v1u123ew11"

// signFields computes the Mini-App hash independently of the package code.
func signFields(botToken string, fields map[string]string) string {
	var lines []string
	for k, v := range fields {
		if k != "hash" {
			lines = append(lines, k+"="+v)
		}
	}
	sort.Strings(lines)

	secret := hmac.New(sha256.New, []byte("WebAppData"))
	secret.Write([]byte(botToken))

	mac := hmac.New(sha256.New, secret.Sum(nil))
	mac.Write([]byte(strings.Join(lines, "\n")))
	return hex.EncodeToString(mac.Sum(nil))
}

// encodeFields renders fields in the given key order, escaping every value.
func encodeFields(order []string, fields map[string]string) string {
	parts := make([]string, 0, len(order))
	for _, k := range order {
		parts = append(parts, k+"="+url.QueryEscape(fields[k]))
	}
	return strings.Join(parts, "&")
}

func sampleFields(now time.Time) map[string]string {
	return map[string]string{
		"query_id":  "AAHdF6IQAAAAAN0XohDhrOrc",
		"user":      `{"id":279058397,"first_name":"Vladislav","last_name":"Kibenko","username":"vdkfrost","language_code":"ru","is_premium":true,"photo_url":"https://t.me/i/userpic/320/x.jpg"}`,
		"auth_date": fmt.Sprintf("%d", now.Unix()),
	}
}

func TestParseShouldBeLeftInverseOfEncoding(t *testing.T) {
	tests := []struct {
		name string
		v1   string
		v2   string
	}{
		{name: "plain values", v1: "abc", v2: "123"},
		{name: "json value", v1: `{"id":1,"name":"A B"}`, v2: "x"},
		{name: "reserved characters", v1: "a&b=c", v2: "100%+/?#"},
		{name: "unicode", v1: "Привет", v2: "🙂"},
		{name: "empty value", v1: "", v2: "z"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			raw := "key1=" + url.QueryEscape(test.v1) + "&key2=" + url.QueryEscape(test.v2)

			p, err := Parse(raw)
			require.NoError(t, err)

			assert.Equal(t, []string{"key1", "key2"}, p.Keys())
			v1, _ := p.Get("key1")
			v2, _ := p.Get("key2")
			assert.Equal(t, test.v1, v1)
			assert.Equal(t, test.v2, v2)
		})
	}
}

func TestParseShouldRejectMalformedInput(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{name: "empty string", raw: ""},
		{name: "segment without equals", raw: "a=1&broken"},
		{name: "trailing ampersand", raw: "a=1&"},
		{name: "empty key", raw: "=1"},
		{name: "bad escape", raw: "a=%zz"},
		{name: "truncated escape", raw: "a=%2"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := Parse(test.raw)
			assert.ErrorIs(t, err, ErrMalformedPayload)
		})
	}
}

func TestParseDuplicateKeysShouldKeepFirstPositionAndLastValue(t *testing.T) {
	p, err := Parse("a=1&b=2&a=3")
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b"}, p.Keys())
	v, _ := p.Get("a")
	assert.Equal(t, "3", v)
}

func TestParseShouldSplitOnFirstEquals(t *testing.T) {
	p, err := Parse("a=b=c")
	require.NoError(t, err)

	v, _ := p.Get("a")
	assert.Equal(t, "b=c", v)
}

func TestCheckStringShouldBeSortedAndExcludeHash(t *testing.T) {
	p, err := Parse("user=u&hash=abc&auth_date=1&query_id=q")
	require.NoError(t, err)

	assert.Equal(t, "auth_date=1\nquery_id=q\nuser=u", p.CheckString())
}

func TestCheckStringShouldIgnoreKeyOrder(t *testing.T) {
	fields := sampleFields(time.Now())
	orders := [][]string{
		{"query_id", "user", "auth_date"},
		{"auth_date", "query_id", "user"},
		{"user", "auth_date", "query_id"},
	}

	secret := NewSecret(testBotToken)
	var signatures []string
	for _, order := range orders {
		p, err := Parse(encodeFields(order, fields))
		require.NoError(t, err)
		signatures = append(signatures, Sign(p, secret))
	}

	for _, sig := range signatures[1:] {
		assert.Equal(t, signatures[0], sig)
	}
}

func TestNewSecretShouldMatchWebAppDataDerivation(t *testing.T) {
	mac := hmac.New(sha256.New, []byte("WebAppData"))
	mac.Write([]byte(testBotToken))

	assert.Equal(t, mac.Sum(nil), []byte(NewSecret(testBotToken)))
	assert.Equal(t, "[REDACTED]", NewSecret(testBotToken).String())
	assert.NotContains(t, fmt.Sprintf("%v %#v", NewSecret(testBotToken), NewSecret(testBotToken)), testBotToken)
}

func TestValidateShouldAcceptCorrectlySignedPayload(t *testing.T) {
	fields := sampleFields(time.Now())
	fields["hash"] = signFields(testBotToken, fields)

	p, err := Parse(encodeFields([]string{"query_id", "user", "auth_date", "hash"}, fields))
	require.NoError(t, err)

	assert.NoError(t, Validate(p, NewSecret(testBotToken)))

	hash, ok := p.Get(HashKey)
	assert.True(t, ok, "hash must stay available after validation")
	assert.Equal(t, fields["hash"], hash)
}

func TestValidateShouldRejectAnySingleByteFlip(t *testing.T) {
	fields := sampleFields(time.Now())
	fields["hash"] = signFields(testBotToken, fields)
	secret := NewSecret(testBotToken)

	original, err := Parse(encodeFields([]string{"query_id", "user", "auth_date", "hash"}, fields))
	require.NoError(t, err)

	for _, key := range []string{"query_id", "user", "auth_date"} {
		value, _ := original.Get(key)
		for i := 0; i < len(value); i++ {
			p := original.Clone()
			b := []byte(value)
			b[i] ^= 0x01
			p.Set(key, string(b))

			err := Validate(p, secret)
			if !errors.Is(err, ErrSignatureMismatch) {
				t.Fatalf("flipping byte %d of %s: expected ErrSignatureMismatch, got %v", i, key, err)
			}
		}
	}
}

func TestValidateShouldRejectWrongBotToken(t *testing.T) {
	fields := sampleFields(time.Now())
	fields["hash"] = signFields("999:other-token", fields)

	p, err := Parse(encodeFields([]string{"query_id", "user", "auth_date", "hash"}, fields))
	require.NoError(t, err)

	assert.ErrorIs(t, Validate(p, NewSecret(testBotToken)), ErrSignatureMismatch)
}

func TestValidateShouldRejectTruncatedAndUppercasedHash(t *testing.T) {
	fields := sampleFields(time.Now())
	hash := signFields(testBotToken, fields)

	for name, supplied := range map[string]string{
		"truncated": hash[:len(hash)-1],
		"uppercase": strings.ToUpper(hash),
		"extended":  hash + "0",
	} {
		t.Run(name, func(t *testing.T) {
			fields["hash"] = supplied
			p, err := Parse(encodeFields([]string{"query_id", "user", "auth_date", "hash"}, fields))
			require.NoError(t, err)
			assert.ErrorIs(t, Validate(p, NewSecret(testBotToken)), ErrSignatureMismatch)
		})
	}
}

func TestValidateSignatureSchemes(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr error
	}{
		{name: "no hash and no signature", raw: "auth_date=1&user=%7B%7D", wantErr: ErrMissingSignature},
		{name: "empty hash", raw: "auth_date=1&hash=", wantErr: ErrMissingSignature},
		{name: "ed25519 signature only", raw: "auth_date=1&signature=abcd", wantErr: ErrUnsupportedSignatureScheme},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			p, err := Parse(test.raw)
			require.NoError(t, err)
			assert.ErrorIs(t, Validate(p, NewSecret(testBotToken)), test.wantErr)
		})
	}
}

func TestValidateShouldKeepSignatureFieldInCheckString(t *testing.T) {
	fields := sampleFields(time.Now())
	fields["signature"] = "c2lnbmF0dXJl"
	fields["hash"] = signFields(testBotToken, fields)

	p, err := Parse(encodeFields([]string{"query_id", "user", "auth_date", "signature", "hash"}, fields))
	require.NoError(t, err)

	assert.NoError(t, Validate(p, NewSecret(testBotToken)))
}

func TestValidateShouldUseValuesDecodedExactlyOnce(t *testing.T) {
	// "%25" decodes to a literal percent sign; a second decode would fail or
	// change the value and the signature would no longer match.
	fields := map[string]string{
		"user":      `{"id":1,"first_name":"100%25 real"}`,
		"auth_date": "1700000000",
	}
	fields["hash"] = signFields(testBotToken, fields)
	raw := encodeFields([]string{"user", "auth_date", "hash"}, fields)

	p, err := Parse(raw)
	require.NoError(t, err)
	require.NoError(t, Validate(p, NewSecret(testBotToken)))

	identity, err := ExtractIdentity(p)
	require.NoError(t, err)
	assert.Equal(t, "100%25 real", identity.FirstName)

	// Signing the still-encoded value must not verify.
	encoded := NewPairs()
	for _, seg := range strings.Split(raw, "&") {
		k, v, _ := strings.Cut(seg, "=")
		encoded.Set(k, v)
	}
	assert.ErrorIs(t, Validate(encoded, NewSecret(testBotToken)), ErrSignatureMismatch)
}

func TestCheckFreshness(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	maxAge := 24 * time.Hour

	tests := []struct {
		name     string
		raw      string
		required bool
		wantErr  error
	}{
		{name: "current", raw: fmt.Sprintf("auth_date=%d", now.Unix())},
		{name: "exactly at boundary", raw: fmt.Sprintf("auth_date=%d", now.Unix()-86400)},
		{name: "one second newer than boundary", raw: fmt.Sprintf("auth_date=%d", now.Unix()-86399)},
		{name: "one second past boundary", raw: fmt.Sprintf("auth_date=%d", now.Unix()-86401), wantErr: ErrStaleAuthData},
		{name: "very old", raw: "auth_date=1", wantErr: ErrStaleAuthData},
		{name: "not a number", raw: "auth_date=yesterday", wantErr: ErrInvalidAuthDate},
		{name: "float", raw: "auth_date=1700000000.5", wantErr: ErrInvalidAuthDate},
		{name: "negative", raw: "auth_date=-1", wantErr: ErrInvalidAuthDate},
		{name: "min int64", raw: "auth_date=-9223372036854775808", wantErr: ErrInvalidAuthDate},
		{name: "absent and optional", raw: "user=x"},
		{name: "absent and required", raw: "user=x", required: true, wantErr: ErrInvalidAuthDate},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			p, err := Parse(test.raw)
			require.NoError(t, err)

			err = CheckFreshness(p, now, maxAge, test.required)
			if test.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, test.wantErr)
			}
		})
	}
}

func TestExtractIdentity(t *testing.T) {
	p, err := Parse(encodeFields([]string{"user"}, sampleFields(time.Now())))
	require.NoError(t, err)

	identity, err := ExtractIdentity(p)
	require.NoError(t, err)

	assert.Equal(t, "279058397", identity.TelegramID)
	require.NotNil(t, identity.Username)
	assert.Equal(t, "vdkfrost", *identity.Username)
	assert.Equal(t, "Vladislav", identity.FirstName)
	assert.Equal(t, "Kibenko", identity.LastName)
	assert.Equal(t, "Vladislav Kibenko", identity.DisplayName())
	assert.Equal(t, "ru", identity.LanguageCode)
	assert.True(t, identity.IsPremium)
	require.NotNil(t, identity.PhotoURL)
	assert.Equal(t, "https://t.me/i/userpic/320/x.jpg", *identity.PhotoURL)
}

func TestExtractIdentityErrors(t *testing.T) {
	tests := []struct {
		name    string
		user    *string
		wantErr error
	}{
		{name: "missing user", user: nil, wantErr: ErrMissingUserField},
		{name: "not json", user: ptr("{id:1"), wantErr: ErrInvalidUserJSON},
		{name: "json array", user: ptr("[1,2]"), wantErr: ErrInvalidUserJSON},
		{name: "no id", user: ptr(`{"username":"alice"}`), wantErr: ErrMissingTelegramID},
		{name: "null id", user: ptr(`{"id":null}`), wantErr: ErrMissingTelegramID},
		{name: "fractional id", user: ptr(`{"id":1.5}`), wantErr: ErrMissingTelegramID},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			p := NewPairs()
			p.Set("auth_date", "1")
			if test.user != nil {
				p.Set(UserKey, *test.user)
			}

			_, err := ExtractIdentity(p)
			assert.ErrorIs(t, err, test.wantErr)
		})
	}
}

func TestExtractIdentityShouldTreatEmptyOptionalFieldsAsAbsent(t *testing.T) {
	p := NewPairs()
	p.Set(UserKey, `{"id":7,"username":"","photo_url":""}`)

	identity, err := ExtractIdentity(p)
	require.NoError(t, err)

	assert.Equal(t, "7", identity.TelegramID)
	assert.Nil(t, identity.Username)
	assert.Nil(t, identity.PhotoURL)
	assert.False(t, identity.IsPremium)
}

func TestPairsDeleteAndEncode(t *testing.T) {
	p, err := Parse("a=1&b=x%20y&c=3")
	require.NoError(t, err)

	p.Delete("b")
	p.Delete("missing")

	assert.Equal(t, []string{"a", "c"}, p.Keys())
	assert.Equal(t, 2, p.Len())
	assert.Equal(t, "a=1&c=3", p.Encode())
}

func ptr(s string) *string {
	return &s
}
