// ABOUTME: Request handlers for registration, login, challenges, and crypto operations
// ABOUTME: Handlers parse and respond; domain logic stays in the services

package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"time"

	"github.com/sealway/gpg-gateway/internal/auth"
	"github.com/sealway/gpg-gateway/internal/store"
	"github.com/sealway/gpg-gateway/internal/users"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type registerRequest struct {
	Username   string `json:"username"`
	Password   string `json:"password"`
	Email      string `json:"email"`
	PublicKey  string `json:"public_key"`
	PrivateKey string `json:"private_key"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "JSON body required")
		return
	}
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "username and password are required")
		return
	}

	result, err := s.users.Register(r.Context(), users.RegistrationInput{
		Username:   req.Username,
		Password:   req.Password,
		Email:      req.Email,
		PublicKey:  req.PublicKey,
		PrivateKey: req.PrivateKey,
	})
	if err != nil {
		var verr *users.ValidationError
		switch {
		case errors.As(err, &verr):
			writeError(w, http.StatusBadRequest, verr.Error())
		case errors.Is(err, users.ErrRegistrationFailed):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			s.logger.Error("registration failed", "error", err)
			writeError(w, http.StatusInternalServerError, "registration failed")
		}
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"message":        "user registered",
		"user_id":        result.Principal.ID,
		"username":       result.Principal.Username,
		"api_key":        result.Session.SessionKey,
		"session_window": result.Session.WindowIndex,
		"window_start":   result.Session.WindowStart.Format(time.RFC3339),
		"expires_at":     result.Session.ExpiresAt.Format(time.RFC3339),
		"public_key":     result.PublicKey,
		"note":           "session key expires hourly; call /login for a fresh one",
	})
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "JSON body required")
		return
	}
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "username and password are required")
		return
	}

	result, err := s.users.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidCredentials):
			writeError(w, http.StatusUnauthorized, "invalid credentials")
		case errors.Is(err, users.ErrMigrationRequired):
			writeError(w, http.StatusUnauthorized, err.Error())
		default:
			s.logger.Error("login failed", "error", err)
			writeError(w, http.StatusInternalServerError, "login failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message":        "login successful",
		"user_id":        result.Principal.ID,
		"username":       result.Principal.Username,
		"api_key":        result.Session.SessionKey,
		"session_window": result.Session.WindowIndex,
		"window_start":   result.Session.WindowStart.Format(time.RFC3339),
		"expires_at":     result.Session.ExpiresAt.Format(time.RFC3339),
		"note":           "session key valid for the current hour plus a 10 minute grace period",
	})
}

func (s *Server) handleChallenge(w http.ResponseWriter, r *http.Request) {
	principal := principalFrom(r.Context())

	c, err := s.challenges.Create(r.Context(), principal.ID)
	if err != nil {
		s.logger.Error("challenge creation failed", "error", err)
		writeError(w, http.StatusInternalServerError, "challenge creation failed")
		return
	}

	s.auditOp(r.Context(), store.AuditCreateChallenge, principal.ID, store.AuditOutcomeSuccess)
	writeJSON(w, http.StatusCreated, map[string]string{
		"challenge":    c.Nonce,
		"challenge_id": c.ID,
	})
}

type verifyChallengeRequest struct {
	Challenge string `json:"challenge"`
	Signature string `json:"signature"`
}

func (s *Server) handleVerifyChallenge(w http.ResponseWriter, r *http.Request) {
	principal := principalFrom(r.Context())

	var req verifyChallengeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "JSON body required")
		return
	}
	if req.Challenge == "" || req.Signature == "" {
		writeError(w, http.StatusBadRequest, "challenge and signature required")
		return
	}

	result, err := s.challenges.Verify(r.Context(), principal.ID, req.Challenge, req.Signature)
	if err != nil {
		s.logger.Error("challenge verification failed", "error", err)
		writeError(w, http.StatusInternalServerError, "challenge verification failed")
		return
	}

	outcome := store.AuditOutcomeFailure
	if result.OK {
		outcome = store.AuditOutcomeSuccess
	}
	s.auditOp(r.Context(), store.AuditVerifyChallenge, principal.ID, outcome)

	if !result.OK {
		writeError(w, http.StatusBadRequest, result.Message)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": result.Message})
}

func (s *Server) handleSign(w http.ResponseWriter, r *http.Request) {
	principal := principalFrom(r.Context())

	data, filename, ok := s.formFile(w, r, "file")
	if !ok {
		return
	}

	armored, passphrase, err := s.users.PrivateKey(r.Context(), principal, credentialFrom(r.Context()))
	if err != nil {
		s.respondKeyError(w, r.Context(), principal.ID, store.AuditSign, err)
		return
	}

	signature, err := s.engine.Sign(r.Context(), data, armored, passphrase)
	if err != nil {
		s.logger.Error("signing failed", "principal_id", principal.ID, "error", err)
		s.auditOp(r.Context(), store.AuditSign, principal.ID, store.AuditOutcomeFailure)
		writeError(w, http.StatusInternalServerError, "signing failed")
		return
	}

	s.auditOp(r.Context(), store.AuditSign, principal.ID, store.AuditOutcomeSuccess)
	writeAttachment(w, filename+".sig", signature)
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	principal := principalFrom(r.Context())

	signature, _, ok := s.formFile(w, r, "file")
	if !ok {
		return
	}
	pubkey, _, ok := s.formFile(w, r, "pubkey")
	if !ok {
		return
	}
	original, _, err := readFormFile(r, "original")
	if err != nil {
		writeError(w, http.StatusBadRequest, `detached signature requires the original file (use "original" field)`)
		return
	}

	verified, err := s.engine.Verify(r.Context(), original, signature, string(pubkey))
	if err != nil {
		s.logger.Error("verification failed", "principal_id", principal.ID, "error", err)
		s.auditOp(r.Context(), store.AuditVerify, principal.ID, store.AuditOutcomeFailure)
		writeError(w, http.StatusInternalServerError, "verification failed")
		return
	}

	s.auditOp(r.Context(), store.AuditVerify, principal.ID, store.AuditOutcomeSuccess)
	writeJSON(w, http.StatusOK, map[string]bool{"verified": verified})
}

func (s *Server) handleEncrypt(w http.ResponseWriter, r *http.Request) {
	principal := principalFrom(r.Context())

	data, filename, ok := s.formFile(w, r, "file")
	if !ok {
		return
	}
	pubkey, _, ok := s.formFile(w, r, "pubkey")
	if !ok {
		return
	}

	ciphertext, err := s.engine.Encrypt(r.Context(), data, string(pubkey))
	if err != nil {
		s.logger.Error("encryption failed", "principal_id", principal.ID, "error", err)
		s.auditOp(r.Context(), store.AuditEncrypt, principal.ID, store.AuditOutcomeFailure)
		writeError(w, http.StatusInternalServerError, "encryption failed")
		return
	}

	s.auditOp(r.Context(), store.AuditEncrypt, principal.ID, store.AuditOutcomeSuccess)
	writeAttachment(w, filename+".gpg", ciphertext)
}

func (s *Server) handleDecrypt(w http.ResponseWriter, r *http.Request) {
	principal := principalFrom(r.Context())

	data, filename, ok := s.formFile(w, r, "file")
	if !ok {
		return
	}

	armored, passphrase, err := s.users.PrivateKey(r.Context(), principal, credentialFrom(r.Context()))
	if err != nil {
		s.respondKeyError(w, r.Context(), principal.ID, store.AuditDecrypt, err)
		return
	}

	plaintext, err := s.engine.Decrypt(r.Context(), data, armored, passphrase)
	if err != nil {
		s.logger.Error("decryption failed", "principal_id", principal.ID, "error", err)
		s.auditOp(r.Context(), store.AuditDecrypt, principal.ID, store.AuditOutcomeFailure)
		writeError(w, http.StatusInternalServerError, "decryption failed")
		return
	}

	s.auditOp(r.Context(), store.AuditDecrypt, principal.ID, store.AuditOutcomeSuccess)
	writeAttachment(w, filename+".dec", plaintext)
}

func (s *Server) handleGetPublicKey(w http.ResponseWriter, r *http.Request) {
	principal := principalFrom(r.Context())

	publicKey, err := s.users.PublicKey(r.Context(), principal.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "public key not found")
			return
		}
		s.logger.Error("public key lookup failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"public_key": publicKey})
}

// formFile reads a required multipart file field, writing the error
// response itself when the field is missing or unreadable.
func (s *Server) formFile(w http.ResponseWriter, r *http.Request, field string) ([]byte, string, bool) {
	data, filename, err := readFormFile(r, field)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("%s required", field))
		return nil, "", false
	}
	return data, filename, true
}

func readFormFile(r *http.Request, field string) ([]byte, string, error) {
	file, header, err := r.FormFile(field)
	if err != nil {
		return nil, "", err
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, "", err
	}
	return data, sanitizeFilename(header), nil
}

// sanitizeFilename strips any path components a client smuggles into the
// upload's filename.
func sanitizeFilename(header *multipart.FileHeader) string {
	name := filepath.Base(filepath.Clean(header.Filename))
	if name == "" || name == "." || name == string(filepath.Separator) {
		return "file"
	}
	return name
}

// respondKeyError maps private-key loading failures to responses.
func (s *Server) respondKeyError(w http.ResponseWriter, ctx context.Context, principalID string, action store.AuditAction, err error) {
	s.auditOp(ctx, action, principalID, store.AuditOutcomeFailure)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "private key not found")
		return
	}
	s.logger.Error("private key unavailable", "principal_id", principalID, "error", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}

// auditOp records a key-operation event. Best effort.
func (s *Server) auditOp(ctx context.Context, action store.AuditAction, principalID string, outcome string) {
	err := s.audit.AppendAuditEntry(ctx, &store.AuditEntry{
		PrincipalID: &principalID,
		Action:      action,
		Outcome:     outcome,
	})
	if err != nil {
		s.logger.Error("failed to append audit entry", "error", err)
	}
}
