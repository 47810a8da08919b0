package auth

import (
	"errors"
	"time"

	"facecards/internal/initdata"
	"facecards/internal/metrics"

	"go.uber.org/zap"
)

// TelegramVerifier turns a raw Mini-App init-data string into a verified
// identity. The HMAC secret is derived once here and never logged.
type TelegramVerifier struct {
	secret          initdata.Secret
	maxAge          time.Duration
	requireAuthDate bool
	now             func() time.Time
	logger          *zap.Logger
	metrics         *metrics.Metrics
}

type VerifierOption func(*TelegramVerifier)

func WithClock(now func() time.Time) VerifierOption {
	return func(v *TelegramVerifier) { v.now = now }
}

func WithMaxAge(d time.Duration) VerifierOption {
	return func(v *TelegramVerifier) { v.maxAge = d }
}

func WithRequireAuthDate(required bool) VerifierOption {
	return func(v *TelegramVerifier) { v.requireAuthDate = required }
}

func WithVerifierLogger(l *zap.Logger) VerifierOption {
	return func(v *TelegramVerifier) { v.logger = l }
}

func WithVerifierMetrics(m *metrics.Metrics) VerifierOption {
	return func(v *TelegramVerifier) { v.metrics = m }
}

func NewTelegramVerifier(botToken string, opts ...VerifierOption) *TelegramVerifier {
	v := &TelegramVerifier{
		secret: initdata.NewSecret(botToken),
		maxAge: initdata.DefaultMaxAge,
		now:    time.Now,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify runs parse, signature, freshness and identity extraction in that
// order and stops at the first failure.
func (v *TelegramVerifier) Verify(raw string) (*initdata.Identity, error) {
	fields := []zap.Field{zap.Int("payload_length", len(raw))}

	pairs, err := initdata.Parse(raw)
	if err != nil {
		return nil, v.fail("parse", err, fields)
	}
	fields = append(fields,
		zap.Strings("keys", pairs.Keys()),
		zap.Int("check_string_length", len(pairs.CheckString())))

	if err := initdata.Validate(pairs, v.secret); err != nil {
		return nil, v.fail("signature", err, fields)
	}

	if err := initdata.CheckFreshness(pairs, v.now(), v.maxAge, v.requireAuthDate); err != nil {
		return nil, v.fail("freshness", err, fields)
	}

	identity, err := initdata.ExtractIdentity(pairs)
	if err != nil {
		return nil, v.fail("identity", err, fields)
	}

	v.metrics.ObserveInitData("ok")
	v.logger.Debug("Init data verified",
		append(fields, zap.String("telegram_id", identity.TelegramID))...)
	return identity, nil
}

func (v *TelegramVerifier) fail(stage string, err error, fields []zap.Field) error {
	v.metrics.ObserveInitData(resultLabel(err))
	v.logger.Warn("Init data rejected",
		append(fields, zap.String("stage", stage), zap.Error(err))...)
	return err
}

func resultLabel(err error) string {
	switch {
	case errors.Is(err, initdata.ErrMalformedPayload):
		return "malformed"
	case errors.Is(err, initdata.ErrMissingSignature):
		return "missing_signature"
	case errors.Is(err, initdata.ErrUnsupportedSignatureScheme):
		return "unsupported_scheme"
	case errors.Is(err, initdata.ErrSignatureMismatch):
		return "signature_mismatch"
	case errors.Is(err, initdata.ErrStaleAuthData):
		return "stale"
	case errors.Is(err, initdata.ErrInvalidAuthDate):
		return "invalid_auth_date"
	default:
		return "invalid_user"
	}
}
