// ABOUTME: Unit tests for the authentication gateway using in-memory fakes
// ABOUTME: Covers both credential paths, generic failures, and the one-audit-event rule

package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sealway/gpg-gateway/internal/sessionkey"
	"github.com/sealway/gpg-gateway/internal/store"
)

type fakePrincipals struct {
	byUsername map[string]*store.Principal
	byLegacy   map[string]*store.Principal
}

func (f *fakePrincipals) GetPrincipalByUsername(_ context.Context, username string) (*store.Principal, error) {
	if p, ok := f.byUsername[username]; ok {
		return p, nil
	}
	return nil, store.ErrNotFound
}

func (f *fakePrincipals) GetPrincipalByLegacyTokenHash(_ context.Context, hash string) (*store.Principal, error) {
	if p, ok := f.byLegacy[hash]; ok {
		return p, nil
	}
	return nil, store.ErrNotFound
}

type fakeAudit struct {
	entries []*store.AuditEntry
}

func (f *fakeAudit) AppendAuditEntry(_ context.Context, e *store.AuditEntry) error {
	f.entries = append(f.entries, e)
	return nil
}

// newTestGateway wires a gateway around one deterministic-keys principal
// and one legacy principal, with the verifier clock pinned to now.
func newTestGateway(t *testing.T, now time.Time) (*Gateway, *fakeAudit, *store.Principal, *store.Principal, string) {
	t.Helper()

	alice := &store.Principal{
		ID:           "principal-alice",
		Username:     "alice",
		PasswordHash: verifierHash,
		MasterSalt:   verifierSalt,
	}

	legacyToken := "opaque-legacy-api-token"
	legacyHash := HashLegacyToken(legacyToken)
	bob := &store.Principal{
		ID:              "principal-bob",
		Username:        "bob",
		PasswordHash:    verifierHash,
		LegacyTokenHash: &legacyHash,
	}

	principals := &fakePrincipals{
		byUsername: map[string]*store.Principal{"alice": alice, "bob": bob},
		byLegacy:   map[string]*store.Principal{legacyHash: bob},
	}
	audit := &fakeAudit{}
	gw := NewGateway(principals, audit, verifierAt(now))
	return gw, audit, alice, bob, legacyToken
}

func TestAuthenticate_SessionKey(t *testing.T) {
	now := time.Unix(481234*sessionkey.WindowSeconds, 0).UTC().Add(20 * time.Minute)
	gw, audit, alice, _, _ := newTestGateway(t, now)
	key := keyForWindow(t, 481234)

	got, err := gw.Authenticate(context.Background(), "alice", key)
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	if got.ID != alice.ID {
		t.Errorf("principal = %q, want %q", got.ID, alice.ID)
	}

	if len(audit.entries) != 1 {
		t.Fatalf("audit entries = %d, want 1", len(audit.entries))
	}
	e := audit.entries[0]
	if e.Method != store.AuthMethodSessionKey {
		t.Errorf("Method = %q, want %q", e.Method, store.AuthMethodSessionKey)
	}
	if e.Outcome != store.AuditOutcomeSuccess {
		t.Errorf("Outcome = %q, want %q", e.Outcome, store.AuditOutcomeSuccess)
	}
	if e.PrincipalID == nil || *e.PrincipalID != alice.ID {
		t.Error("audit entry missing principal id")
	}
}

func TestAuthenticate_SessionKeyFailures(t *testing.T) {
	now := time.Unix(481234*sessionkey.WindowSeconds, 0).UTC().Add(20 * time.Minute)
	staleKey := keyForWindow(t, 481230)

	tests := []struct {
		name     string
		username string
		key      string
	}{
		{"missing username", "", keyForWindow(t, 481234)},
		{"unknown username", "mallory", keyForWindow(t, 481234)},
		{"stale key", "alice", staleKey},
		{"garbage key", "alice", "sk_bm90LWEtcmVhbC1rZXk"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw, audit, _, _, _ := newTestGateway(t, now)

			_, err := gw.Authenticate(context.Background(), tt.username, tt.key)
			// Every failure mode collapses to the same generic error.
			if !errors.Is(err, ErrInvalidCredentials) {
				t.Fatalf("Authenticate() error = %v, want ErrInvalidCredentials", err)
			}

			if len(audit.entries) != 1 {
				t.Fatalf("audit entries = %d, want 1", len(audit.entries))
			}
			if audit.entries[0].Outcome != store.AuditOutcomeFailure {
				t.Errorf("Outcome = %q, want failure", audit.entries[0].Outcome)
			}
			if audit.entries[0].PrincipalID != nil {
				t.Error("failure audit entry should not name a principal")
			}
		})
	}
}

func TestAuthenticate_LegacyToken(t *testing.T) {
	now := time.Unix(481234*sessionkey.WindowSeconds, 0).UTC()
	gw, audit, _, bob, legacyToken := newTestGateway(t, now)

	got, err := gw.Authenticate(context.Background(), "", legacyToken)
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	if got.ID != bob.ID {
		t.Errorf("principal = %q, want %q", got.ID, bob.ID)
	}

	if len(audit.entries) != 1 {
		t.Fatalf("audit entries = %d, want 1", len(audit.entries))
	}
	if audit.entries[0].Method != store.AuthMethodLegacyToken {
		t.Errorf("Method = %q, want %q", audit.entries[0].Method, store.AuthMethodLegacyToken)
	}
}

func TestAuthenticate_UnknownLegacyToken(t *testing.T) {
	now := time.Unix(481234*sessionkey.WindowSeconds, 0).UTC()
	gw, audit, _, _, _ := newTestGateway(t, now)

	_, err := gw.Authenticate(context.Background(), "", "never-issued-token")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("Authenticate() error = %v, want ErrInvalidCredentials", err)
	}
	if len(audit.entries) != 1 {
		t.Fatalf("audit entries = %d, want 1", len(audit.entries))
	}
}

func TestAuthenticate_LegacyAccountOnSessionKeyPath(t *testing.T) {
	// bob has no master salt; presenting a session key under his name must
	// fail the same way as any bad credential.
	now := time.Unix(481234*sessionkey.WindowSeconds, 0).UTC()
	gw, _, _, _, _ := newTestGateway(t, now)

	_, err := gw.Authenticate(context.Background(), "bob", "sk_whatever")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("Authenticate() error = %v, want ErrInvalidCredentials", err)
	}
}

func TestHashLegacyToken(t *testing.T) {
	a := HashLegacyToken("token-a")
	b := HashLegacyToken("token-a")
	c := HashLegacyToken("token-b")

	if a != b {
		t.Error("same token hashed differently")
	}
	if a == c {
		t.Error("different tokens hashed identically")
	}
	if len(a) != 64 {
		t.Errorf("hash length = %d, want 64 hex chars", len(a))
	}
}
