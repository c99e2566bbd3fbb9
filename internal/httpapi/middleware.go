// ABOUTME: HTTP middleware: security headers, body caps, rate limiting, and auth
// ABOUTME: Authenticated principal and credential travel via request context

package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/sealway/gpg-gateway/internal/auth"
	"github.com/sealway/gpg-gateway/internal/ratelimit"
	"github.com/sealway/gpg-gateway/internal/store"
)

type contextKey string

const (
	principalKey  contextKey = "principal"
	credentialKey contextKey = "credential"
)

// principalFrom returns the authenticated principal stored by
// requireCredential. Panics if the handler was not wrapped; routing bugs
// of that kind should not fail quietly.
func principalFrom(ctx context.Context) *store.Principal {
	return ctx.Value(principalKey).(*store.Principal)
}

func credentialFrom(ctx context.Context) string {
	return ctx.Value(credentialKey).(string)
}

func (s *Server) securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

func (s *Server) limitBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, s.maxBody)
		next.ServeHTTP(w, r)
	})
}

// rateLimited enforces the given limiter per client address.
func (s *Server) rateLimited(limiter *ratelimit.Limiter, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow(clientKey(r)) {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded, try again later")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientKey identifies the caller for rate limiting: the remote IP without
// the ephemeral port.
func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// requireCredential authenticates the request via the X-API-KEY header
// (session key or legacy token) plus X-Username for session keys, and adds
// the resolved principal and raw credential to the request context.
func (s *Server) requireCredential(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		credential := r.Header.Get("X-API-KEY")
		if credential == "" {
			writeError(w, http.StatusUnauthorized, "API key required (X-API-KEY header)")
			return
		}
		username := r.Header.Get("X-Username")

		principal, err := s.gateway.Authenticate(r.Context(), username, credential)
		if err != nil {
			if errors.Is(err, auth.ErrInvalidCredentials) {
				writeError(w, http.StatusForbidden, "invalid credentials")
				return
			}
			s.logger.Error("authentication lookup failed", "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}

		ctx := context.WithValue(r.Context(), principalKey, principal)
		ctx = context.WithValue(ctx, credentialKey, credential)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireAdminToken gates the admin subrouter behind a Bearer JWT.
func (s *Server) requireAdminToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			writeError(w, http.StatusUnauthorized, "bearer token required")
			return
		}

		subject, err := s.admin.Verify(token)
		if err != nil {
			s.logger.Info("admin token rejected", "error", err)
			writeError(w, http.StatusForbidden, "invalid token")
			return
		}

		s.logger.Info("admin request", "subject", subject, "path", r.URL.Path)
		next.ServeHTTP(w, r)
	})
}
