package user

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"facecards/internal/account"
	"facecards/internal/auth"
	"facecards/internal/initdata"
	"facecards/internal/models"

	"go.uber.org/zap"
)

var ErrUnauthenticated = errors.New("authentication required") // 401

type initResponse struct {
	Success   bool                  `json:"success"`
	Token     string                `json:"token"`
	ExpiresAt time.Time             `json:"expires_at"`
	User      *models.PublicAccount `json:"user"`
	IsNewUser bool                  `json:"is_new_user"`
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code"`
}

type validateRequest struct {
	Token string `json:"token" validate:"required"`
}

type validateResponse struct {
	Valid      bool      `json:"valid"`
	UserID     int64     `json:"user_id,omitempty"`
	TelegramID string    `json:"telegram_id,omitempty"`
	ExpiresAt  time.Time `json:"expires_at,omitzero"`
	Error      string    `json:"error,omitempty"`
	Code       string    `json:"code,omitempty"`
}

type meResponse struct {
	Success bool                  `json:"success"`
	User    *models.PublicAccount `json:"user"`
}

type healthResponse struct {
	Status    string    `json:"status"`
	Service   string    `json:"service"`
	Timestamp time.Time `json:"timestamp"`
}

type errorMapping struct {
	err    error
	status int
	code   string
}

// errorTable is checked in order; the first match decides status and code.
var errorTable = []errorMapping{
	{initdata.ErrMalformedPayload, http.StatusBadRequest, "MalformedPayload"},
	{auth.ErrNoInitData, http.StatusBadRequest, "MissingInitData"},
	{initdata.ErrInvalidAuthDate, http.StatusBadRequest, "InvalidAuthDate"},
	{initdata.ErrMissingUserField, http.StatusBadRequest, "MissingUserField"},
	{initdata.ErrInvalidUserJSON, http.StatusBadRequest, "InvalidUserJson"},
	{initdata.ErrMissingTelegramID, http.StatusBadRequest, "MissingTelegramId"},
	{initdata.ErrMissingSignature, http.StatusUnauthorized, "MissingSignature"},
	{initdata.ErrUnsupportedSignatureScheme, http.StatusUnauthorized, "UnsupportedSignatureScheme"},
	{initdata.ErrSignatureMismatch, http.StatusUnauthorized, "SignatureMismatch"},
	{initdata.ErrStaleAuthData, http.StatusUnauthorized, "StaleAuthData"},
	{auth.ErrTokenExpired, http.StatusUnauthorized, "TokenExpired"},
	{auth.ErrTokenInvalid, http.StatusUnauthorized, "TokenInvalid"},
	{ErrUnauthenticated, http.StatusUnauthorized, "Unauthenticated"},
	{account.ErrAccountNotFound, http.StatusNotFound, "AccountNotFound"},
	{account.ErrStorage, http.StatusInternalServerError, "StorageError"},
}

// statusFor maps an error to its HTTP status, taxonomy code and the message
// shown to clients. Wrapped detail never reaches the response.
func statusFor(err error) (int, string, string) {
	for _, m := range errorTable {
		if errors.Is(err, m.err) {
			return m.status, m.code, m.err.Error()
		}
	}
	return http.StatusInternalServerError, "InternalError", "internal server error"
}

func writeJSON(w http.ResponseWriter, status int, v interface{}, log *zap.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error("Error encoding JSON response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, err error, log *zap.Logger) {
	status, code, message := statusFor(err)
	writeJSON(w, status, errorResponse{Success: false, Error: message, Code: code}, log)
}
