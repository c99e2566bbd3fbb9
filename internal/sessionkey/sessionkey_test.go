// ABOUTME: Unit tests for deterministic session key derivation and window math
// ABOUTME: Covers determinism, salt validation, window bounds and grace period

package sessionkey

import (
	"strings"
	"testing"
	"time"
)

const (
	testHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"
	testSalt = "8d969eef6ecad3c29a3a629280e686cf0c3f5d5a86aff3ca12020c923adc6c92"
)

func TestDeriveMasterSecret_Deterministic(t *testing.T) {
	a, err := DeriveMasterSecret(testHash, testSalt)
	if err != nil {
		t.Fatalf("DeriveMasterSecret() error = %v", err)
	}
	b, err := DeriveMasterSecret(testHash, testSalt)
	if err != nil {
		t.Fatalf("DeriveMasterSecret() error = %v", err)
	}

	if len(a) != SecretLength {
		t.Errorf("secret length = %d, want %d", len(a), SecretLength)
	}
	if string(a) != string(b) {
		t.Error("same inputs produced different master secrets")
	}
}

func TestDeriveMasterSecret_DifferentSalts(t *testing.T) {
	otherSalt := "0000000000000000000000000000000000000000000000000000000000000001"

	a, err := DeriveMasterSecret(testHash, testSalt)
	if err != nil {
		t.Fatalf("DeriveMasterSecret() error = %v", err)
	}
	b, err := DeriveMasterSecret(testHash, otherSalt)
	if err != nil {
		t.Fatalf("DeriveMasterSecret() error = %v", err)
	}

	if string(a) == string(b) {
		t.Error("different salts produced the same master secret")
	}
}

func TestDeriveMasterSecret_BadSalt(t *testing.T) {
	tests := []struct {
		name string
		salt string
	}{
		{"empty", ""},
		{"short", "abcd"},
		{"not hex", strings.Repeat("zz", 32)},
		{"legacy length", strings.Repeat("ab", 16)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DeriveMasterSecret(testHash, tt.salt); err == nil {
				t.Errorf("DeriveMasterSecret(%q) should have failed", tt.salt)
			}
		})
	}
}

func TestDeriveSessionKey_Deterministic(t *testing.T) {
	secret, err := DeriveMasterSecret(testHash, testSalt)
	if err != nil {
		t.Fatalf("DeriveMasterSecret() error = %v", err)
	}

	k1 := DeriveSessionKey(secret, 481234)
	k2 := DeriveSessionKey(secret, 481234)
	if k1 != k2 {
		t.Errorf("same window produced different keys: %q vs %q", k1, k2)
	}

	k3 := DeriveSessionKey(secret, 481235)
	if k1 == k3 {
		t.Error("adjacent windows produced the same key")
	}
}

func TestDeriveSessionKey_Format(t *testing.T) {
	secret, err := DeriveMasterSecret(testHash, testSalt)
	if err != nil {
		t.Fatalf("DeriveMasterSecret() error = %v", err)
	}

	key := DeriveSessionKey(secret, 1)
	if !strings.HasPrefix(key, Prefix) {
		t.Errorf("key %q missing %q prefix", key, Prefix)
	}
	if strings.Contains(key, "=") {
		t.Errorf("key %q contains base64 padding", key)
	}
	// 32-byte HMAC output is 43 characters of unpadded base64url.
	if got := len(key); got != len(Prefix)+43 {
		t.Errorf("key length = %d, want %d", got, len(Prefix)+43)
	}
	if !IsSessionKey(key) {
		t.Errorf("IsSessionKey(%q) = false", key)
	}
	if IsSessionKey("legacy-opaque-token") {
		t.Error("IsSessionKey() accepted a legacy token")
	}
}

func TestGenerateMasterSalt(t *testing.T) {
	s1, err := GenerateMasterSalt()
	if err != nil {
		t.Fatalf("GenerateMasterSalt() error = %v", err)
	}
	s2, err := GenerateMasterSalt()
	if err != nil {
		t.Fatalf("GenerateMasterSalt() error = %v", err)
	}

	if len(s1) != MasterSaltHexLen {
		t.Errorf("salt length = %d, want %d", len(s1), MasterSaltHexLen)
	}
	if s1 == s2 {
		t.Error("two generated salts are identical")
	}
	if !ValidMasterSalt(s1) {
		t.Errorf("ValidMasterSalt(%q) = false", s1)
	}
}

func TestValidMasterSalt(t *testing.T) {
	tests := []struct {
		name string
		salt string
		want bool
	}{
		{"valid", testSalt, true},
		{"empty", "", false},
		{"legacy short", strings.Repeat("ab", 16), false},
		{"right length not hex", strings.Repeat("zz", 32), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValidMasterSalt(tt.salt); got != tt.want {
				t.Errorf("ValidMasterSalt(%q) = %v, want %v", tt.salt, got, tt.want)
			}
		})
	}
}

func TestWindowIndex(t *testing.T) {
	base := time.Unix(481234*WindowSeconds, 0).UTC()

	tests := []struct {
		name string
		at   time.Time
		want int64
	}{
		{"window start", base, 481234},
		{"mid window", base.Add(30 * time.Minute), 481234},
		{"last second", base.Add(WindowSeconds*time.Second - time.Second), 481234},
		{"next window", base.Add(WindowSeconds * time.Second), 481235},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := WindowIndex(tt.at); got != tt.want {
				t.Errorf("WindowIndex(%v) = %d, want %d", tt.at, got, tt.want)
			}
		})
	}
}

func TestWindowBounds(t *testing.T) {
	start, end, graceEnd := WindowBounds(481234)

	if start.Unix() != 481234*WindowSeconds {
		t.Errorf("start = %d, want %d", start.Unix(), 481234*WindowSeconds)
	}
	if end.Sub(start) != WindowSeconds*time.Second {
		t.Errorf("window length = %v, want %v", end.Sub(start), WindowSeconds*time.Second)
	}
	if graceEnd.Sub(end) != GraceSeconds*time.Second {
		t.Errorf("grace length = %v, want %v", graceEnd.Sub(end), GraceSeconds*time.Second)
	}
}

func TestWithinGrace(t *testing.T) {
	windowStart := time.Unix(481234*WindowSeconds, 0).UTC()

	tests := []struct {
		name string
		at   time.Time
		want bool
	}{
		{"window start", windowStart, true},
		{"just inside grace", windowStart.Add(GraceSeconds*time.Second - time.Second), true},
		{"grace boundary", windowStart.Add(GraceSeconds * time.Second), false},
		{"mid window", windowStart.Add(30 * time.Minute), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := WithinGrace(tt.at); got != tt.want {
				t.Errorf("WithinGrace(%v) = %v, want %v", tt.at, got, tt.want)
			}
		})
	}
}
