package auth

import (
	"strings"
	"testing"
	"time"

	"facecards/internal/initdata"
	"facecards/internal/initdata/initdatatest"
	"facecards/internal/metrics"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestVerifier(t *testing.T, opts ...VerifierOption) (*TelegramVerifier, *observer.ObservedLogs, *metrics.Metrics) {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	m := metrics.New()
	opts = append([]VerifierOption{
		WithClock(func() time.Time { return fixedNow }),
		WithVerifierLogger(zap.New(core)),
		WithVerifierMetrics(m),
	}, opts...)
	return NewTelegramVerifier(initdatatest.BotToken, opts...), logs, m
}

func alicePayload(authDate time.Time) string {
	return initdatatest.Payload(initdatatest.BotToken, initdatatest.User{ID: 123, Username: "alice"}, authDate)
}

func TestTelegramVerifierShouldAcceptValidPayload(t *testing.T) {
	v, _, m := newTestVerifier(t)

	identity, err := v.Verify(alicePayload(fixedNow))
	require.NoError(t, err)

	assert.Equal(t, "123", identity.TelegramID)
	require.NotNil(t, identity.Username)
	assert.Equal(t, "alice", *identity.Username)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.InitDataVerifications.WithLabelValues("ok")))
}

func TestTelegramVerifierShouldAcceptExactSpecExample(t *testing.T) {
	v, _, _ := newTestVerifier(t)

	p := initdata.NewPairs()
	p.Set("user", `{"id":123,"username":"alice"}`)
	p.Set("auth_date", "1772366400")
	raw := initdatatest.Sign(initdatatest.BotToken, p)
	assert.True(t, strings.HasPrefix(raw, "user=%7B%22id%22%3A123%2C%22username%22%3A%22alice%22%7D&auth_date=1772366400&hash="))

	identity, err := v.Verify(raw)
	require.NoError(t, err)
	assert.Equal(t, "123", identity.TelegramID)
}

func TestTelegramVerifierShouldRejectInOrder(t *testing.T) {
	valid := alicePayload(fixedNow)

	tests := []struct {
		name    string
		raw     string
		opts    []VerifierOption
		wantErr error
		stage   string
		result  string
	}{
		{
			name:    "malformed",
			raw:     "user&hash=abc",
			wantErr: initdata.ErrMalformedPayload,
			stage:   "parse",
			result:  "malformed",
		},
		{
			name:    "truncated hash",
			raw:     valid[:len(valid)-1],
			wantErr: initdata.ErrSignatureMismatch,
			stage:   "signature",
			result:  "signature_mismatch",
		},
		{
			name:    "no hash",
			raw:     "user=%7B%22id%22%3A1%7D&auth_date=1",
			wantErr: initdata.ErrMissingSignature,
			stage:   "signature",
			result:  "missing_signature",
		},
		{
			name:    "ed25519 only",
			raw:     "user=%7B%22id%22%3A1%7D&signature=abc",
			wantErr: initdata.ErrUnsupportedSignatureScheme,
			stage:   "signature",
			result:  "unsupported_scheme",
		},
		{
			name:    "stale",
			raw:     alicePayload(fixedNow.Add(-25 * time.Hour)),
			wantErr: initdata.ErrStaleAuthData,
			stage:   "freshness",
			result:  "stale",
		},
		{
			name:    "custom max age",
			raw:     alicePayload(fixedNow.Add(-2 * time.Hour)),
			opts:    []VerifierOption{WithMaxAge(time.Hour)},
			wantErr: initdata.ErrStaleAuthData,
			stage:   "freshness",
			result:  "stale",
		},
		{
			name: "auth date required",
			raw: func() string {
				p := initdata.NewPairs()
				p.Set("user", `{"id":5}`)
				return initdatatest.Sign(initdatatest.BotToken, p)
			}(),
			opts:    []VerifierOption{WithRequireAuthDate(true)},
			wantErr: initdata.ErrInvalidAuthDate,
			stage:   "freshness",
			result:  "invalid_auth_date",
		},
		{
			name: "no user",
			raw: func() string {
				p := initdata.NewPairs()
				p.Set("auth_date", "1772366400")
				return initdatatest.Sign(initdatatest.BotToken, p)
			}(),
			wantErr: initdata.ErrMissingUserField,
			stage:   "identity",
			result:  "invalid_user",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			v, logs, m := newTestVerifier(t, test.opts...)

			_, err := v.Verify(test.raw)
			require.Error(t, err)
			assert.ErrorIs(t, err, test.wantErr)

			entries := logs.FilterMessage("Init data rejected").All()
			require.Len(t, entries, 1)
			assert.Equal(t, test.stage, entries[0].ContextMap()["stage"])
			assert.Equal(t, 1.0, testutil.ToFloat64(m.InitDataVerifications.WithLabelValues(test.result)))
		})
	}
}

func TestTelegramVerifierShouldRejectOtherBotsPayload(t *testing.T) {
	v, _, _ := newTestVerifier(t)

	raw := initdatatest.Payload("111:other-bot-token", initdatatest.User{ID: 123}, fixedNow)
	_, err := v.Verify(raw)
	assert.ErrorIs(t, err, initdata.ErrSignatureMismatch)
}

func TestTelegramVerifierShouldNeverLogSecrets(t *testing.T) {
	v, logs, _ := newTestVerifier(t)

	raw := alicePayload(fixedNow)
	_, err := v.Verify(raw[:len(raw)-2])
	require.Error(t, err)
	_, err = v.Verify(raw)
	require.NoError(t, err)

	for _, entry := range logs.All() {
		for key, value := range entry.ContextMap() {
			s, _ := value.(string)
			assert.NotContains(t, s, initdatatest.BotToken, "field %s", key)
			assert.NotContains(t, s, "hash=", "field %s", key)
		}
	}
	assert.NotContains(t, v.secret.String(), initdatatest.BotToken)
}
