// ABOUTME: HTTP surface of the gateway: routing, dependencies, and server wiring
// ABOUTME: Thin layer over the auth gateway, user service, challenges, and engine

package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/sealway/gpg-gateway/internal/auth"
	"github.com/sealway/gpg-gateway/internal/challenge"
	"github.com/sealway/gpg-gateway/internal/ratelimit"
	"github.com/sealway/gpg-gateway/internal/store"
	"github.com/sealway/gpg-gateway/internal/users"
)

// defaultMaxBodyBytes caps request payloads at 5 MiB.
const defaultMaxBodyBytes int64 = 5 << 20

// CryptoEngine is the slice of the PGP engine the handlers invoke.
type CryptoEngine interface {
	Sign(ctx context.Context, data []byte, armoredPrivateKey, passphrase string) ([]byte, error)
	Verify(ctx context.Context, data, signature []byte, armoredPublicKey string) (bool, error)
	Encrypt(ctx context.Context, data []byte, armoredPublicKey string) ([]byte, error)
	Decrypt(ctx context.Context, data []byte, armoredPrivateKey, passphrase string) ([]byte, error)
}

// Config holds HTTP-level settings.
type Config struct {
	MaxBodyBytes  int64
	AuthPerMinute int
	APIPerMinute  int
}

// Server is the HTTP API. It owns the router and the rate limiters but none
// of the domain logic.
type Server struct {
	router      *mux.Router
	users       *users.Service
	gateway     *auth.Gateway
	challenges  *challenge.Service
	engine      CryptoEngine
	admin       auth.AdminTokenVerifier
	principals  store.PrincipalStore
	audit       store.AuditStore
	authLimiter *ratelimit.Limiter
	apiLimiter  *ratelimit.Limiter
	maxBody     int64
	logger      *slog.Logger
}

// NewServer wires the HTTP API together.
func NewServer(
	cfg Config,
	userSvc *users.Service,
	gateway *auth.Gateway,
	challenges *challenge.Service,
	engine CryptoEngine,
	admin auth.AdminTokenVerifier,
	principals store.PrincipalStore,
	audit store.AuditStore,
) *Server {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}
	if cfg.AuthPerMinute <= 0 {
		cfg.AuthPerMinute = ratelimit.DefaultAuthLimit
	}
	if cfg.APIPerMinute <= 0 {
		cfg.APIPerMinute = ratelimit.DefaultAPILimit
	}

	s := &Server{
		users:       userSvc,
		gateway:     gateway,
		challenges:  challenges,
		engine:      engine,
		admin:       admin,
		principals:  principals,
		audit:       audit,
		authLimiter: ratelimit.New(cfg.AuthPerMinute, time.Minute),
		apiLimiter:  ratelimit.New(cfg.APIPerMinute, time.Minute),
		maxBody:     cfg.MaxBodyBytes,
		logger:      slog.Default().With("component", "httpapi"),
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.securityHeaders, s.limitBody)

	r.HandleFunc("/health", s.handleHealth).Methods("GET")

	// Credential establishment, throttled harder than the rest.
	r.Handle("/register", s.rateLimited(s.authLimiter, http.HandlerFunc(s.handleRegister))).Methods("POST")
	r.Handle("/login", s.rateLimited(s.authLimiter, http.HandlerFunc(s.handleLogin))).Methods("POST")
	// Alias kept for clients that predate /login.
	r.Handle("/get_session_key", s.rateLimited(s.authLimiter, http.HandlerFunc(s.handleLogin))).Methods("POST")

	authed := func(h http.HandlerFunc) http.Handler {
		return s.rateLimited(s.apiLimiter, s.requireCredential(h))
	}
	r.Handle("/challenge", authed(s.handleChallenge)).Methods("POST")
	r.Handle("/verify_challenge", authed(s.handleVerifyChallenge)).Methods("POST")
	r.Handle("/sign", authed(s.handleSign)).Methods("POST")
	r.Handle("/verify", authed(s.handleVerify)).Methods("POST")
	r.Handle("/encrypt", authed(s.handleEncrypt)).Methods("POST")
	r.Handle("/decrypt", authed(s.handleDecrypt)).Methods("POST")
	r.Handle("/get_public_key", authed(s.handleGetPublicKey)).Methods("GET")

	adm := r.PathPrefix("/admin").Subrouter()
	adm.Use(s.requireAdminToken)
	adm.HandleFunc("/principals", s.handleAdminListPrincipals).Methods("GET")
	adm.HandleFunc("/principals/{id}", s.handleAdminDeletePrincipal).Methods("DELETE")
	adm.HandleFunc("/principals/{id}/audit", s.handleAdminAuditLog).Methods("GET")
	adm.HandleFunc("/challenges/prune", s.handleAdminPruneChallenges).Methods("POST")

	return r
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
