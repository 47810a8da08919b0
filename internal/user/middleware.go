package user

import (
	"errors"
	"net/http"

	"facecards/internal/account"
	"facecards/internal/auth"
	"facecards/internal/logger"
	"facecards/internal/models"

	"go.uber.org/zap"
)

// sessionAuthMiddleware resolves the caller's account from, in order, a
// Bearer token, the session cookie, or an X-Telegram-Init-Data header. An
// expired or invalid token falls through to the header. The init-data path
// only looks accounts up; sign-up goes through /auth/init.
func (h *Handler) sessionAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log := logger.FromContext(r.Context(), h.logger)

		acc, err := h.authenticate(r)
		if err != nil {
			if status, _, _ := statusFor(err); status == http.StatusInternalServerError {
				log.Error("Error authenticating request", zap.Error(err))
			} else {
				log.Info("Request not authenticated", zap.Error(err))
			}
			if auth.GetSessionFromRequest(r) != "" && isTokenError(err) {
				auth.ClearSessionCookie(w, h.secureCookie)
			}
			writeError(w, err, log)
			return
		}

		ctx := SetAccountContext(r.Context(), acc)
		ctx = logger.IntoContext(ctx, log.With(zap.Int64("account_id", acc.ID)))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) authenticate(r *http.Request) (*models.Account, error) {
	token := auth.BearerToken(r)
	if token == "" {
		token = auth.GetSessionFromRequest(r)
	}

	var tokenErr error
	if token != "" {
		acc, err := h.accountForToken(r, token)
		if err == nil || !isTokenError(err) {
			return acc, err
		}
		tokenErr = err
	}

	if raw := r.Header.Get(auth.InitDataHeader); raw != "" {
		identity, err := h.verifier.Verify(raw)
		if err != nil {
			return nil, err
		}
		return h.store.GetAccountByTelegramID(r.Context(), identity.TelegramID)
	}

	if tokenErr != nil {
		return nil, tokenErr
	}
	return nil, ErrUnauthenticated
}

func (h *Handler) accountForToken(r *http.Request, token string) (*models.Account, error) {
	session, err := h.verifySession(token)
	if err != nil {
		return nil, err
	}
	acc, err := h.store.GetAccountByID(r.Context(), session.AccountID)
	if errors.Is(err, account.ErrAccountNotFound) {
		return nil, auth.ErrTokenInvalid
	}
	return acc, err
}

func isTokenError(err error) bool {
	return errors.Is(err, auth.ErrTokenExpired) || errors.Is(err, auth.ErrTokenInvalid)
}
