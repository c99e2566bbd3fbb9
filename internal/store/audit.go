// ABOUTME: Audit log entity and store methods for recording authentication and key operations
// ABOUTME: Records outcome and method per event, never the credential itself

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AuditAction represents an auditable action.
type AuditAction string

const (
	AuditAuthenticate    AuditAction = "authenticate"
	AuditRegister        AuditAction = "register"
	AuditLogin           AuditAction = "login"
	AuditCreateChallenge AuditAction = "create_challenge"
	AuditVerifyChallenge AuditAction = "verify_challenge"
	AuditSign            AuditAction = "sign"
	AuditVerify          AuditAction = "verify"
	AuditEncrypt         AuditAction = "encrypt"
	AuditDecrypt         AuditAction = "decrypt"
	AuditDeletePrincipal AuditAction = "delete_principal"
	AuditPruneChallenges AuditAction = "prune_challenges"
)

// Audit outcomes.
const (
	AuditOutcomeSuccess = "success"
	AuditOutcomeFailure = "failure"
)

// Authentication methods recorded on authenticate events.
const (
	AuthMethodSessionKey  = "session_key"
	AuthMethodLegacyToken = "legacy_token"
)

// AuditEntry represents a single audit log entry. PrincipalID is nil on
// failed authentications where no principal was resolved.
type AuditEntry struct {
	ID          string
	PrincipalID *string
	Action      AuditAction
	Method      string // session_key, legacy_token, or empty
	Outcome     string
	Timestamp   time.Time
	Detail      map[string]any
}

// AuditStore defines the audit log persistence interface.
type AuditStore interface {
	AppendAuditEntry(ctx context.Context, e *AuditEntry) error
	ListAuditEntries(ctx context.Context, principalID string, limit int) ([]*AuditEntry, error)
}

// AppendAuditEntry appends a new entry to the audit log.
// Generates ID and Timestamp if not set.
func (s *SQLiteStore) AppendAuditEntry(ctx context.Context, e *AuditEntry) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	var detailJSON *string
	if e.Detail != nil {
		data, err := json.Marshal(e.Detail)
		if err != nil {
			return fmt.Errorf("marshaling audit detail: %w", err)
		}
		str := string(data)
		detailJSON = &str
	}

	query := `
		INSERT INTO audit_log (audit_id, principal_id, action, method, outcome, ts, detail_json)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		e.ID,
		e.PrincipalID,
		string(e.Action),
		nullString(e.Method),
		e.Outcome,
		e.Timestamp.UTC().Format(time.RFC3339),
		detailJSON,
	)
	if err != nil {
		return fmt.Errorf("inserting audit entry: %w", err)
	}

	return nil
}

// ListAuditEntries returns audit entries for a principal, newest first.
// A limit of 0 or less defaults to 100.
func (s *SQLiteStore) ListAuditEntries(ctx context.Context, principalID string, limit int) ([]*AuditEntry, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT audit_id, principal_id, action, method, outcome, ts, detail_json
		FROM audit_log
		WHERE principal_id = ?
		ORDER BY ts DESC
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, principalID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying audit log: %w", err)
	}
	defer rows.Close()

	var entries []*AuditEntry
	for rows.Next() {
		var e AuditEntry
		var pid, method, detailJSON *string
		var ts string

		if err := rows.Scan(&e.ID, &pid, (*string)(&e.Action), &method, &e.Outcome, &ts, &detailJSON); err != nil {
			return nil, fmt.Errorf("scanning audit entry: %w", err)
		}

		e.PrincipalID = pid
		if method != nil {
			e.Method = *method
		}
		e.Timestamp = s.parseTime(ts, "ts", e.ID)
		if detailJSON != nil {
			if err := json.Unmarshal([]byte(*detailJSON), &e.Detail); err != nil {
				s.logger.Warn("failed to parse audit detail", "id", e.ID, "error", err)
			}
		}
		entries = append(entries, &e)
	}

	return entries, rows.Err()
}
