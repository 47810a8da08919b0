package user

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"facecards/internal/account"
	"facecards/internal/auth"
	"facecards/internal/initdata"
	"facecards/internal/logger"
	"facecards/internal/metrics"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

const (
	serviceName     = "facecards-auth"
	maxValidateBody = 64 << 10
)

// PayloadAuthPaths are the routes whose credential travels in the request
// itself (init data or a token in the body) rather than in the session cookie.
var PayloadAuthPaths = []string{"/api/v1/auth/init", "/api/v1/auth/validate"}

// Handler serves the Mini-App sign-in flow and the session-protected user
// endpoints.
type Handler struct {
	verifier     *auth.TelegramVerifier
	sessions     *auth.SessionIssuer
	accounts     *account.Coordinator
	store        account.Store
	extractors   []auth.Extractor
	secureCookie bool
	validate     *validator.Validate
	logger       *zap.Logger
	metrics      *metrics.Metrics
	now          func() time.Time
}

type Options struct {
	Verifier     *auth.TelegramVerifier
	Sessions     *auth.SessionIssuer
	Accounts     *account.Coordinator
	Store        account.Store
	Extractors   []auth.Extractor
	SecureCookie bool
	Logger       *zap.Logger
	Metrics      *metrics.Metrics
}

func NewHandler(opts Options) *Handler {
	h := &Handler{
		verifier:     opts.Verifier,
		sessions:     opts.Sessions,
		accounts:     opts.Accounts,
		store:        opts.Store,
		extractors:   opts.Extractors,
		secureCookie: opts.SecureCookie,
		validate:     validator.New(),
		logger:       opts.Logger,
		metrics:      opts.Metrics,
		now:          time.Now,
	}
	if h.extractors == nil {
		h.extractors = auth.DefaultExtractors
	}
	if h.logger == nil {
		h.logger = zap.NewNop()
	}
	return h
}

func RegisterHandlers(r *mux.Router, h *Handler) {
	r.HandleFunc("/health", h.healthHandler()).Methods("GET")

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/auth/init", h.initHandler()).Methods("POST")
	api.HandleFunc("/auth/validate", h.validateHandler()).Methods("POST")
	api.HandleFunc("/auth/logout", h.logoutHandler()).Methods("POST")
	api.HandleFunc("/auth/health", h.healthHandler()).Methods("GET")

	users := api.PathPrefix("/users").Subrouter()
	users.Use(h.sessionAuthMiddleware)
	users.HandleFunc("/me", h.meHandler()).Methods("GET")
}

func (h *Handler) initHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logger.FromContext(r.Context(), h.logger)

		carrier, err := auth.NewCarrier(r)
		if err != nil {
			log.Warn("Failed to read init request", zap.Error(err))
			writeError(w, fmt.Errorf("%w: %v", initdata.ErrMalformedPayload, err), log)
			return
		}

		raw, transport, err := auth.ExtractInitData(carrier, h.extractors)
		if err != nil {
			log.Info("Init request without init data")
			writeError(w, err, log)
			return
		}
		log = log.With(zap.String("transport", transport))

		identity, err := h.verifier.Verify(raw)
		if err != nil {
			log.Info("Init data verification failed", zap.Error(err))
			writeError(w, err, log)
			return
		}

		acc, isNew, err := h.accounts.Upsert(r.Context(), identity)
		if err != nil {
			log.Error("Error resolving account", zap.Error(err))
			writeError(w, err, log)
			return
		}

		token, expiresAt, err := h.sessions.Issue(acc.ID)
		if err != nil {
			log.Error("Error issuing session", zap.Error(err))
			writeError(w, err, log)
			return
		}

		auth.SetSessionCookie(w, token, expiresAt, h.secureCookie)

		log.Info("Mini-App sign-in",
			zap.Int64("account_id", acc.ID),
			zap.Bool("is_new_user", isNew))

		public := acc.Public()
		writeJSON(w, http.StatusOK, initResponse{
			Success:   true,
			Token:     token,
			ExpiresAt: expiresAt,
			User:      &public,
			IsNewUser: isNew,
		}, log)
	}
}

func (h *Handler) validateHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logger.FromContext(r.Context(), h.logger)

		var req validateRequest
		body := http.MaxBytesReader(w, r.Body, maxValidateBody)
		if err := json.NewDecoder(body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeJSON(w, http.StatusBadRequest, validateResponse{Error: "invalid request body", Code: "BadRequest"}, log)
			return
		}
		if err := h.validate.Struct(req); err != nil {
			writeJSON(w, http.StatusBadRequest, validateResponse{Error: "token is required", Code: "BadRequest"}, log)
			return
		}

		session, err := h.verifySession(req.Token)
		if err != nil {
			status, code, message := statusFor(err)
			writeJSON(w, status, validateResponse{Error: message, Code: code}, log)
			return
		}

		acc, err := h.store.GetAccountByID(r.Context(), session.AccountID)
		if err != nil {
			if !errors.Is(err, account.ErrAccountNotFound) {
				log.Error("Error loading account for session", zap.Error(err))
			}
			status, code, message := statusFor(err)
			writeJSON(w, status, validateResponse{Error: message, Code: code}, log)
			return
		}

		writeJSON(w, http.StatusOK, validateResponse{
			Valid:      true,
			UserID:     acc.ID,
			TelegramID: acc.TelegramID,
			ExpiresAt:  session.ExpiresAt,
		}, log)
	}
}

func (h *Handler) logoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		auth.ClearSessionCookie(w, h.secureCookie)
		writeJSON(w, http.StatusOK, map[string]bool{"success": true}, logger.FromContext(r.Context(), h.logger))
	}
}

func (h *Handler) healthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, healthResponse{
			Status:    "healthy",
			Service:   serviceName,
			Timestamp: h.now().UTC(),
		}, logger.FromContext(r.Context(), h.logger))
	}
}

func (h *Handler) meHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		acc := GetAccountFromContext(r.Context())
		public := acc.Public()
		writeJSON(w, http.StatusOK, meResponse{Success: true, User: &public}, logger.FromContext(r.Context(), h.logger))
	}
}

// verifySession checks a token and records the outcome.
func (h *Handler) verifySession(token string) (*auth.Session, error) {
	session, err := h.sessions.Verify(token)
	switch {
	case err == nil:
		h.metrics.ObserveSession("ok")
	case errors.Is(err, auth.ErrTokenExpired):
		h.metrics.ObserveSession("expired")
	default:
		h.metrics.ObserveSession("invalid")
	}
	return session, err
}
