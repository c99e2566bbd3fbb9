// ABOUTME: Operator endpoints: principal listing, deletion, and audit inspection
// ABOUTME: Gated by the admin JWT middleware on the /admin subrouter

package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/sealway/gpg-gateway/internal/store"
)

type principalSummary struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Legacy    bool   `json:"legacy"`
	CreatedAt string `json:"created_at"`
}

func (s *Server) handleAdminListPrincipals(w http.ResponseWriter, r *http.Request) {
	principals, err := s.principals.ListPrincipals(r.Context())
	if err != nil {
		s.logger.Error("listing principals failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	summaries := make([]principalSummary, 0, len(principals))
	for _, p := range principals {
		summaries = append(summaries, principalSummary{
			ID:        p.ID,
			Username:  p.Username,
			Legacy:    p.LegacyTokenHash != nil,
			CreatedAt: p.CreatedAt.Format(time.RFC3339),
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{"principals": summaries})
}

func (s *Server) handleAdminDeletePrincipal(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if _, err := s.principals.GetPrincipal(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "principal not found")
			return
		}
		s.logger.Error("principal lookup failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	if err := s.principals.DeletePrincipal(r.Context(), id); err != nil {
		s.logger.Error("principal deletion failed", "principal_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	s.auditOp(r.Context(), store.AuditDeletePrincipal, id, store.AuditOutcomeSuccess)
	writeJSON(w, http.StatusOK, map[string]string{"message": "principal deleted"})
}

func (s *Server) handleAdminPruneChallenges(w http.ResponseWriter, r *http.Request) {
	deleted, err := s.challenges.PruneExpired(r.Context())
	if err != nil {
		s.logger.Error("challenge prune failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	entry := &store.AuditEntry{
		Action:  store.AuditPruneChallenges,
		Outcome: store.AuditOutcomeSuccess,
		Detail:  map[string]any{"deleted": deleted},
	}
	if err := s.audit.AppendAuditEntry(r.Context(), entry); err != nil {
		s.logger.Error("failed to append audit entry", "error", err)
	}

	writeJSON(w, http.StatusOK, map[string]any{"deleted": deleted})
}

func (s *Server) handleAdminAuditLog(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	entries, err := s.audit.ListAuditEntries(r.Context(), id, limit)
	if err != nil {
		s.logger.Error("audit listing failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	type entryView struct {
		ID        string         `json:"id"`
		Action    string         `json:"action"`
		Method    string         `json:"method,omitempty"`
		Outcome   string         `json:"outcome"`
		Timestamp string         `json:"timestamp"`
		Detail    map[string]any `json:"detail,omitempty"`
	}
	views := make([]entryView, 0, len(entries))
	for _, e := range entries {
		views = append(views, entryView{
			ID:        e.ID,
			Action:    string(e.Action),
			Method:    e.Method,
			Outcome:   e.Outcome,
			Timestamp: e.Timestamp.Format(time.RFC3339),
			Detail:    e.Detail,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{"entries": views})
}
