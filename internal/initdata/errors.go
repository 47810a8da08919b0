package initdata

import "errors"

// Payload errors
var (
	ErrMalformedPayload = errors.New("malformed init data") // 400
)

// Signature errors
var (
	ErrMissingSignature           = errors.New("init data signature is missing")          // 401
	ErrUnsupportedSignatureScheme = errors.New("init data signature scheme not supported") // 401
	ErrSignatureMismatch          = errors.New("init data signature mismatch")             // 401
)

// Freshness errors
var (
	ErrStaleAuthData   = errors.New("init data is outdated")          // 401
	ErrInvalidAuthDate = errors.New("init data auth_date is invalid") // 400
)

// Identity errors
var (
	ErrMissingUserField  = errors.New("init data has no user field")            // 400
	ErrInvalidUserJSON   = errors.New("init data user field is not valid JSON") // 400
	ErrMissingTelegramID = errors.New("init data user has no telegram id")      // 400
)
