package middleware

import (
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"statbucket/pkg/api"
	"statbucket/pkg/auth"
)

// Authenticator validates bearer tokens on API routes. With AllowAnonymous
// set, requests without an Authorization header pass through as an anonymous
// caller; presented tokens are always verified.
type Authenticator struct {
	validator      *auth.Validator
	allowAnonymous bool
	logger         *zap.Logger
}

// NewAuthenticator builds the authenticator. validator may be nil only when
// allowAnonymous is set, in which case bearer tokens are rejected outright.
func NewAuthenticator(validator *auth.Validator, allowAnonymous bool, logger *zap.Logger) *Authenticator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Authenticator{
		validator:      validator,
		allowAnonymous: allowAnonymous,
		logger:         logger,
	}
}

// Handler is the middleware entry point.
func (a *Authenticator) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := strings.TrimSpace(r.Header.Get("Authorization"))
		if header == "" {
			if a.allowAnonymous {
				ctx := auth.WithCaller(r.Context(), &auth.Caller{Anonymous: true})
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}
			api.Error(w, http.StatusUnauthorized, "missing authorization header")
			return
		}

		if a.validator == nil {
			api.Error(w, http.StatusUnauthorized, "token authentication is not configured")
			return
		}

		claims, err := a.validator.ValidateToken(header)
		if err != nil {
			a.logger.Warn("token rejected",
				zap.Error(err),
				zap.String("path", r.URL.Path),
			)
			switch {
			case errors.Is(err, auth.ErrExpiredToken):
				api.Error(w, http.StatusUnauthorized, "token has expired")
			default:
				api.Error(w, http.StatusUnauthorized, "invalid token")
			}
			return
		}

		caller := &auth.Caller{ID: claims.Subject, Scope: claims.Scope}
		next.ServeHTTP(w, r.WithContext(auth.WithCaller(r.Context(), caller)))
	})
}
