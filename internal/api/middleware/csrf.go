package middleware

import (
	"crypto/rand"
	"fmt"
	"net/http"
	"slices"
	"strings"

	"facecards/internal/auth"
	"facecards/internal/config"

	"github.com/gorilla/csrf"
	"go.uber.org/zap"
)

const csrfCookieName = "_csrf"

// CSRF protects cookie-authenticated requests. Requests that carry their
// credential explicitly (Bearer token, init data header, or a body on one of
// payloadPaths) or no session cookie at all have no ambient authority to
// abuse and skip the check. Safe methods always pass through protect so the
// token is minted.
func CSRF(cfg config.CSRFConfig, log *zap.Logger, payloadPaths ...string) (func(http.Handler) http.Handler, error) {
	key := []byte(cfg.AuthKey)
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("CSRF key generation failed: %w", err)
		}
		log.Warn("CSRF_AUTH_KEY not set; using ephemeral key (tokens reset on restart)")
	}
	if len(key) < 32 {
		return nil, fmt.Errorf("CSRF_AUTH_KEY must be at least 32 bytes; got %d", len(key))
	}

	sameSite := csrf.SameSiteLaxMode
	switch strings.ToLower(cfg.SameSite) {
	case "strict":
		sameSite = csrf.SameSiteStrictMode
	case "none":
		sameSite = csrf.SameSiteNoneMode
	}

	protect := csrf.Protect(key,
		csrf.CookieName(csrfCookieName),
		csrf.Secure(cfg.Secure),
		csrf.HttpOnly(true),
		csrf.Path("/"),
		csrf.SameSite(sameSite),
		csrf.TrustedOrigins(cfg.TrustedOrigins),
		csrf.ErrorHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log.Warn("CSRF check failed",
				zap.String("path", r.URL.Path),
				zap.NamedError("reason", csrf.FailureReason(r)))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{"success":false,"error":"invalid CSRF token","code":"CSRFInvalid"}`))
		})),
	)

	return func(next http.Handler) http.Handler {
		protected := protect(withCSRFTokenHeader(next))
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if csrfExempt(r, payloadPaths) {
				r = csrf.UnsafeSkipCheck(r)
			}
			if !cfg.Secure && r.TLS == nil {
				r = csrf.PlaintextHTTPRequest(r)
			}
			protected.ServeHTTP(w, r)
		})
	}, nil
}

func csrfExempt(r *http.Request, payloadPaths []string) bool {
	switch r.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return false
	}
	if auth.BearerToken(r) != "" || r.Header.Get(auth.InitDataHeader) != "" {
		return true
	}
	if slices.Contains(payloadPaths, r.URL.Path) {
		return true
	}
	return auth.GetSessionFromRequest(r) == ""
}

func withCSRFTokenHeader(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead:
			w.Header().Set("X-CSRF-Token", csrf.Token(r))
		}
		next.ServeHTTP(w, r)
	})
}
