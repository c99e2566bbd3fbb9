// ABOUTME: Tests for challenge creation, pruning, and single-use verification
// ABOUTME: Uses a real SQLite store with a stubbed signature verifier

package challenge

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/sealway/gpg-gateway/internal/store"
)

type fakeVerifier struct {
	valid bool
	err   error

	gotData []byte
	gotSig  []byte
	gotKey  string
	calls   int
}

func (f *fakeVerifier) Verify(_ context.Context, data, signature []byte, armoredPublicKey string) (bool, error) {
	f.calls++
	f.gotData = data
	f.gotSig = signature
	f.gotKey = armoredPublicKey
	return f.valid, f.err
}

const testPublicKey = "-----BEGIN PGP PUBLIC KEY BLOCK-----\n\nmQTEST\n-----END PGP PUBLIC KEY BLOCK-----\n"

type fixture struct {
	svc      *Service
	store    *store.SQLiteStore
	verifier *fakeVerifier
	owner    string
	now      time.Time
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()

	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("creating store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	ctx := context.Background()
	p := &store.Principal{Username: "alice", PasswordHash: "x"}
	if err := st.CreatePrincipal(ctx, p); err != nil {
		t.Fatalf("creating principal: %v", err)
	}
	if err := st.SetKey(ctx, &store.KeyMaterial{
		OwnerID: p.ID,
		Role:    store.KeyRolePublic,
		Data:    []byte(testPublicKey),
	}); err != nil {
		t.Fatalf("storing public key: %v", err)
	}

	verifier := &fakeVerifier{valid: true}
	svc := NewService(st, st, verifier, cfg)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	return &fixture{svc: svc, store: st, verifier: verifier, owner: p.ID, now: now}
}

func (f *fixture) insertAged(t *testing.T, age time.Duration) *store.Challenge {
	t.Helper()
	nonce, err := generateNonce()
	if err != nil {
		t.Fatalf("generating nonce: %v", err)
	}
	c := &store.Challenge{
		OwnerID:   f.owner,
		Nonce:     nonce,
		CreatedAt: f.now.Add(-age),
	}
	if err := f.store.InsertChallenge(context.Background(), c); err != nil {
		t.Fatalf("inserting challenge: %v", err)
	}
	return c
}

func TestCreateIssuesNonce(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	c, err := f.svc.Create(ctx, f.owner)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	// 32 bytes base64url without padding.
	if len(c.Nonce) != 43 {
		t.Errorf("nonce length = %d, want 43", len(c.Nonce))
	}
	if !c.CreatedAt.Equal(f.now) {
		t.Errorf("CreatedAt = %v, want %v", c.CreatedAt, f.now)
	}

	stored, err := f.store.GetChallenge(ctx, f.owner, c.Nonce)
	if err != nil {
		t.Fatalf("challenge not persisted: %v", err)
	}
	if stored.ID != c.ID {
		t.Errorf("stored ID = %q, want %q", stored.ID, c.ID)
	}
}

func TestCreateNoncesAreUnique(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	seen := make(map[string]bool)
	for i := 0; i < 10; i++ {
		c, err := f.svc.Create(ctx, f.owner)
		if err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		if seen[c.Nonce] {
			t.Fatalf("duplicate nonce %q", c.Nonce)
		}
		seen[c.Nonce] = true
	}
}

func TestCreatePrunesExpired(t *testing.T) {
	f := newFixture(t, Config{MaxAgeDays: 7})
	ctx := context.Background()

	old := f.insertAged(t, 8*24*time.Hour)
	fresh := f.insertAged(t, time.Hour)

	if _, err := f.svc.Create(ctx, f.owner); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if _, err := f.store.GetChallenge(ctx, f.owner, old.Nonce); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expired challenge still present, err = %v", err)
	}
	if _, err := f.store.GetChallenge(ctx, f.owner, fresh.Nonce); err != nil {
		t.Errorf("fresh challenge pruned: %v", err)
	}
}

func TestCreateEnforcesPerUserCap(t *testing.T) {
	f := newFixture(t, Config{MaxPerUser: 5})
	ctx := context.Background()

	var oldest *store.Challenge
	for i := 0; i < 5; i++ {
		c := f.insertAged(t, time.Duration(10-i)*time.Minute)
		if i == 0 {
			oldest = c
		}
	}

	if _, err := f.svc.Create(ctx, f.owner); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	count, err := f.store.CountChallenges(ctx, f.owner)
	if err != nil {
		t.Fatalf("CountChallenges() error = %v", err)
	}
	if count != 5 {
		t.Errorf("challenge count = %d, want 5", count)
	}
	if _, err := f.store.GetChallenge(ctx, f.owner, oldest.Nonce); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("oldest challenge survived cap enforcement, err = %v", err)
	}
}

func TestVerifyValidSignature(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	c, err := f.svc.Create(ctx, f.owner)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	res, err := f.svc.Verify(ctx, f.owner, c.Nonce, "detached-signature")
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if !res.OK || res.Message != MsgVerified {
		t.Errorf("result = %+v, want OK with %q", res, MsgVerified)
	}

	if string(f.verifier.gotData) != c.Nonce {
		t.Errorf("verifier data = %q, want nonce %q", f.verifier.gotData, c.Nonce)
	}
	if string(f.verifier.gotSig) != "detached-signature" {
		t.Errorf("verifier signature = %q", f.verifier.gotSig)
	}
	if f.verifier.gotKey != testPublicKey {
		t.Errorf("verifier key = %q, want stored public key", f.verifier.gotKey)
	}
}

func TestVerifyConsumesChallenge(t *testing.T) {
	for _, valid := range []bool{true, false} {
		f := newFixture(t, Config{})
		f.verifier.valid = valid
		ctx := context.Background()

		c, err := f.svc.Create(ctx, f.owner)
		if err != nil {
			t.Fatalf("Create() error = %v", err)
		}

		if _, err := f.svc.Verify(ctx, f.owner, c.Nonce, "sig"); err != nil {
			t.Fatalf("Verify() error = %v", err)
		}

		res, err := f.svc.Verify(ctx, f.owner, c.Nonce, "sig")
		if err != nil {
			t.Fatalf("replay Verify() error = %v", err)
		}
		if res.OK || res.Message != MsgNotFound {
			t.Errorf("valid=%v: replay result = %+v, want %q", valid, res, MsgNotFound)
		}
	}
}

func TestVerifyInvalidSignature(t *testing.T) {
	f := newFixture(t, Config{})
	f.verifier.valid = false
	ctx := context.Background()

	c, err := f.svc.Create(ctx, f.owner)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	res, err := f.svc.Verify(ctx, f.owner, c.Nonce, "bad-sig")
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if res.OK || res.Message != MsgInvalidSignature {
		t.Errorf("result = %+v, want %q", res, MsgInvalidSignature)
	}
}

func TestVerifyUnknownNonce(t *testing.T) {
	f := newFixture(t, Config{})

	res, err := f.svc.Verify(context.Background(), f.owner, "no-such-nonce", "sig")
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if res.OK || res.Message != MsgNotFound {
		t.Errorf("result = %+v, want %q", res, MsgNotFound)
	}
	if f.verifier.calls != 0 {
		t.Errorf("verifier called %d times for unknown nonce", f.verifier.calls)
	}
}

func TestVerifyExpiredChallenge(t *testing.T) {
	f := newFixture(t, Config{MaxAgeDays: 7})
	ctx := context.Background()

	c := f.insertAged(t, 8*24*time.Hour)

	res, err := f.svc.Verify(ctx, f.owner, c.Nonce, "sig")
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if res.OK || res.Message != MsgExpired {
		t.Errorf("result = %+v, want %q", res, MsgExpired)
	}

	// Expired challenges are deleted on sight.
	if _, err := f.store.GetChallenge(ctx, f.owner, c.Nonce); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expired challenge still present, err = %v", err)
	}
}

func TestVerifyMissingSignature(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	c, err := f.svc.Create(ctx, f.owner)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	res, err := f.svc.Verify(ctx, f.owner, c.Nonce, "")
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if res.OK || res.Message != MsgSignatureRequired {
		t.Errorf("result = %+v, want %q", res, MsgSignatureRequired)
	}

	// An incomplete attempt does not consume the challenge.
	if _, err := f.store.GetChallenge(ctx, f.owner, c.Nonce); err != nil {
		t.Errorf("challenge consumed by missing-signature attempt: %v", err)
	}
}

func TestVerifyMissingPublicKey(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	// A second principal with no key material.
	p := &store.Principal{Username: "bob", PasswordHash: "x"}
	if err := f.store.CreatePrincipal(ctx, p); err != nil {
		t.Fatalf("creating principal: %v", err)
	}

	c, err := f.svc.Create(ctx, p.ID)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	res, err := f.svc.Verify(ctx, p.ID, c.Nonce, "sig")
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if res.OK || res.Message != MsgNoPublicKey {
		t.Errorf("result = %+v, want %q", res, MsgNoPublicKey)
	}
}

func TestVerifyEngineError(t *testing.T) {
	f := newFixture(t, Config{})
	engineErr := errors.New("gpg blew up")
	f.verifier.err = engineErr
	ctx := context.Background()

	c, err := f.svc.Create(ctx, f.owner)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if _, err := f.svc.Verify(ctx, f.owner, c.Nonce, "sig"); !errors.Is(err, engineErr) {
		t.Fatalf("Verify() error = %v, want engine error", err)
	}

	// The attempt reached the engine, so the challenge is spent.
	if _, err := f.store.GetChallenge(ctx, f.owner, c.Nonce); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("challenge survived engine error, err = %v", err)
	}
}

func TestPruneExpired(t *testing.T) {
	f := newFixture(t, Config{MaxAgeDays: 7})
	ctx := context.Background()

	old := f.insertAged(t, 8*24*time.Hour)
	older := f.insertAged(t, 30*24*time.Hour)
	fresh := f.insertAged(t, time.Hour)

	deleted, err := f.svc.PruneExpired(ctx)
	if err != nil {
		t.Fatalf("PruneExpired() error = %v", err)
	}
	if deleted != 2 {
		t.Errorf("deleted = %d, want 2", deleted)
	}

	for _, c := range []*store.Challenge{old, older} {
		if _, err := f.store.GetChallenge(ctx, f.owner, c.Nonce); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("expired challenge still present, err = %v", err)
		}
	}
	if _, err := f.store.GetChallenge(ctx, f.owner, fresh.Nonce); err != nil {
		t.Errorf("fresh challenge pruned: %v", err)
	}
}
