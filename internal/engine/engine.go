// ABOUTME: Adapter around the external gpg binary for sign/verify/encrypt/decrypt/keygen
// ABOUTME: Every operation runs in an ephemeral keyring with a scrubbed environment

package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// ErrTimeout is wrapped by EngineError when the external engine exceeds the
// configured deadline.
var ErrTimeout = errors.New("engine operation timed out")

// ErrNoFingerprint is wrapped by EngineError when the key listing yields no
// usable fingerprint for an imported key.
var ErrNoFingerprint = errors.New("no key fingerprint found")

// ErrBadFingerprint is wrapped by EngineError when a listed fingerprint
// contains non-hexadecimal characters. The fingerprint is passed to the
// engine as a recipient argument, so anything non-hex is rejected outright.
var ErrBadFingerprint = errors.New("malformed key fingerprint")

// EngineError is returned for any failed engine invocation. Stderr carries
// the engine's diagnostic text for operator debugging; it is not assumed
// safe to show end users.
type EngineError struct {
	Op     string
	Stderr string
	Err    error
}

func (e *EngineError) Error() string {
	msg := fmt.Sprintf("gpg %s failed", e.Op)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Stderr != "" {
		msg += ": " + strings.TrimSpace(e.Stderr)
	}
	return msg
}

func (e *EngineError) Unwrap() error { return e.Err }

// Config holds engine settings; zero values get sensible defaults.
type Config struct {
	// Binary is the gpg executable, default "gpg".
	Binary string
	// ConfBinary is the gpgconf executable used to kill stray agents,
	// default "gpgconf".
	ConfBinary string
	// Timeout bounds each invocation, default 30s. Key generation uses
	// KeygenTimeout, default 120s, since entropy gathering can be slow.
	Timeout       time.Duration
	KeygenTimeout time.Duration
	// KeyType and KeyLength configure generated keypairs,
	// defaults RSA / 3072.
	KeyType   string
	KeyLength int
	// TempRoot is where ephemeral keyrings are created; empty means the
	// system temp directory.
	TempRoot string
}

// Engine invokes the external OpenPGP engine. Engines are self-contained
// per call and safe for concurrent use; no keyring is ever shared between
// operations.
type Engine struct {
	cfg    Config
	logger *slog.Logger
}

// New creates an Engine with the given config, applying defaults.
func New(cfg Config) *Engine {
	if cfg.Binary == "" {
		cfg.Binary = "gpg"
	}
	if cfg.ConfBinary == "" {
		cfg.ConfBinary = "gpgconf"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.KeygenTimeout <= 0 {
		cfg.KeygenTimeout = 120 * time.Second
	}
	if cfg.KeyType == "" {
		cfg.KeyType = "RSA"
	}
	if cfg.KeyLength <= 0 {
		cfg.KeyLength = 3072
	}
	return &Engine{
		cfg:    cfg,
		logger: slog.Default().With("component", "engine"),
	}
}

// Sign produces a detached armored signature over data with the given
// armored private key. The passphrase travels over stdin, never the command
// line.
func (e *Engine) Sign(ctx context.Context, data []byte, armoredPrivateKey, passphrase string) ([]byte, error) {
	kr, err := e.newKeyring()
	if err != nil {
		return nil, err
	}
	defer kr.Close()

	e.killAgent(ctx)

	if err := e.importKey(ctx, kr, armoredPrivateKey, "privkey.asc", true); err != nil {
		return nil, err
	}

	dataPath := filepath.Join(kr.Home, "data")
	sigPath := filepath.Join(kr.Home, "data.sig")
	if err := os.WriteFile(dataPath, data, 0o600); err != nil {
		return nil, fmt.Errorf("writing input: %w", err)
	}

	inv := invocation{
		op:         "sign",
		args:       []string{"--yes", "--armor", "--output", sigPath, "--detach-sign", dataPath},
		passphrase: passphrase,
	}
	if _, err := e.run(ctx, kr, inv, e.cfg.Timeout); err != nil {
		return nil, err
	}

	sig, err := os.ReadFile(sigPath)
	if err != nil {
		return nil, &EngineError{Op: "sign", Err: fmt.Errorf("signature not produced: %w", err)}
	}
	return sig, nil
}

// Verify checks a detached signature over data against an armored public
// key. Import failures are soft: a malformed key yields "not verified"
// rather than a hard error.
func (e *Engine) Verify(ctx context.Context, data, signature []byte, armoredPublicKey string) (bool, error) {
	kr, err := e.newKeyring()
	if err != nil {
		return false, err
	}
	defer kr.Close()

	if err := e.importKey(ctx, kr, armoredPublicKey, "pubkey.asc", false); err != nil {
		return false, err
	}

	dataPath := filepath.Join(kr.Home, "data")
	sigPath := filepath.Join(kr.Home, "data.sig")
	if err := os.WriteFile(dataPath, data, 0o600); err != nil {
		return false, fmt.Errorf("writing input: %w", err)
	}
	if err := os.WriteFile(sigPath, signature, 0o600); err != nil {
		return false, fmt.Errorf("writing signature: %w", err)
	}

	inv := invocation{
		op:   "verify",
		args: []string{"--verify", sigPath, dataPath},
	}
	_, err = e.run(ctx, kr, inv, e.cfg.Timeout)
	if err != nil {
		var engErr *EngineError
		// A timeout or spawn failure is an operational error; a plain
		// non-zero exit just means the signature didn't verify.
		if errors.As(err, &engErr) && engErr.Err != nil && !errors.Is(engErr.Err, errExitNonZero) {
			return false, err
		}
		return false, nil
	}
	return true, nil
}

// Encrypt encrypts data to the holder of the armored public key. The
// recipient is addressed by fingerprint extracted from the engine's
// machine-readable key listing and validated as pure hex before use.
func (e *Engine) Encrypt(ctx context.Context, data []byte, armoredPublicKey string) ([]byte, error) {
	kr, err := e.newKeyring()
	if err != nil {
		return nil, err
	}
	defer kr.Close()

	if err := e.importKey(ctx, kr, armoredPublicKey, "pubkey.asc", true); err != nil {
		return nil, err
	}

	fingerprint, err := e.recipientFingerprint(ctx, kr)
	if err != nil {
		return nil, err
	}

	dataPath := filepath.Join(kr.Home, "data")
	encPath := filepath.Join(kr.Home, "data.gpg")
	if err := os.WriteFile(dataPath, data, 0o600); err != nil {
		return nil, fmt.Errorf("writing input: %w", err)
	}

	inv := invocation{
		op: "encrypt",
		args: []string{
			"--yes", "--armor", "--trust-model", "always",
			"--recipient", fingerprint,
			"--output", encPath, "--encrypt", dataPath,
		},
	}
	if _, err := e.run(ctx, kr, inv, e.cfg.Timeout); err != nil {
		return nil, err
	}

	enc, err := os.ReadFile(encPath)
	if err != nil {
		return nil, &EngineError{Op: "encrypt", Err: fmt.Errorf("ciphertext not produced: %w", err)}
	}
	return enc, nil
}

// Decrypt decrypts data with the armored private key, delivering the
// passphrase over stdin.
func (e *Engine) Decrypt(ctx context.Context, data []byte, armoredPrivateKey, passphrase string) ([]byte, error) {
	kr, err := e.newKeyring()
	if err != nil {
		return nil, err
	}
	defer kr.Close()

	e.killAgent(ctx)

	if err := e.importKey(ctx, kr, armoredPrivateKey, "privkey.asc", true); err != nil {
		return nil, err
	}

	encPath := filepath.Join(kr.Home, "data.gpg")
	decPath := filepath.Join(kr.Home, "data")
	if err := os.WriteFile(encPath, data, 0o600); err != nil {
		return nil, fmt.Errorf("writing input: %w", err)
	}

	inv := invocation{
		op:         "decrypt",
		args:       []string{"--yes", "--output", decPath, "--decrypt", encPath},
		passphrase: passphrase,
	}
	if _, err := e.run(ctx, kr, inv, e.cfg.Timeout); err != nil {
		return nil, err
	}

	dec, err := os.ReadFile(decPath)
	if err != nil {
		return nil, &EngineError{Op: "decrypt", Err: fmt.Errorf("plaintext not produced: %w", err)}
	}
	return dec, nil
}

// GenerateKeypair creates a fresh keypair for the identity and returns both
// armored halves. The batch script contains the passphrase verbatim, so it
// is written with owner-only permissions and removed before return.
func (e *Engine) GenerateKeypair(ctx context.Context, name, email, passphrase string) (armoredPublic, armoredPrivate string, err error) {
	kr, err := e.newKeyring()
	if err != nil {
		return "", "", err
	}
	defer kr.Close()

	e.killAgent(ctx)

	batchPath := filepath.Join(kr.Home, "keygen.batch")
	if err := os.WriteFile(batchPath, e.keygenBatch(name, email, passphrase), 0o600); err != nil {
		return "", "", fmt.Errorf("writing keygen batch: %w", err)
	}
	// The keyring dir is destroyed with the handle, but the batch script
	// must not outlive the invocation even inside it.
	defer os.Remove(batchPath)

	inv := invocation{
		op:   "keygen",
		args: []string{"--gen-key", batchPath},
	}
	if _, err := e.run(ctx, kr, inv, e.cfg.KeygenTimeout); err != nil {
		return "", "", err
	}

	pub, err := e.run(ctx, kr, invocation{
		op:   "export",
		args: []string{"--armor", "--export", email},
	}, e.cfg.Timeout)
	if err != nil {
		return "", "", err
	}

	exportSecret := invocation{
		op:   "export-secret",
		args: []string{"--armor", "--export-secret-keys", email},
	}
	if passphrase != "" {
		exportSecret.passphrase = passphrase
	}
	priv, err := e.run(ctx, kr, exportSecret, e.cfg.Timeout)
	if err != nil {
		return "", "", err
	}

	if len(bytes.TrimSpace(pub)) == 0 || len(bytes.TrimSpace(priv)) == 0 {
		return "", "", &EngineError{Op: "keygen", Err: errors.New("engine exported empty key material")}
	}

	return string(pub), string(priv), nil
}

// keygenBatch builds the non-interactive key generation script.
func (e *Engine) keygenBatch(name, email, passphrase string) []byte {
	var b strings.Builder
	if passphrase == "" {
		b.WriteString("%no-protection\n")
	}
	fmt.Fprintf(&b, "Key-Type: %s\n", e.cfg.KeyType)
	fmt.Fprintf(&b, "Key-Length: %d\n", e.cfg.KeyLength)
	b.WriteString("Key-Usage: sign\n")
	fmt.Fprintf(&b, "Subkey-Type: %s\n", e.cfg.KeyType)
	fmt.Fprintf(&b, "Subkey-Length: %d\n", e.cfg.KeyLength)
	b.WriteString("Subkey-Usage: encrypt\n")
	fmt.Fprintf(&b, "Name-Real: %s\n", name)
	fmt.Fprintf(&b, "Name-Email: %s\n", email)
	b.WriteString("Expire-Date: 0\n")
	if passphrase != "" {
		fmt.Fprintf(&b, "Passphrase: %s\n", passphrase)
	}
	b.WriteString("%commit\n")
	return []byte(b.String())
}

// importKey writes the armored key into the keyring home and imports it.
// With strict=false an import failure is reported but not fatal.
func (e *Engine) importKey(ctx context.Context, kr *Keyring, armored, filename string, strict bool) error {
	keyPath := filepath.Join(kr.Home, filename)
	if err := os.WriteFile(keyPath, []byte(armored), 0o600); err != nil {
		return fmt.Errorf("writing key file: %w", err)
	}

	inv := invocation{
		op:   "import",
		args: []string{"--import", keyPath},
	}
	if _, err := e.run(ctx, kr, inv, e.cfg.Timeout); err != nil {
		if strict {
			return err
		}
		// The caller's verify run will fail against the empty keyring,
		// which is the outcome a malformed key deserves.
		e.logger.Debug("soft key import failure", "error", err)
	}
	return nil
}

// recipientFingerprint extracts the imported key's fingerprint from the
// engine's colon-delimited listing. The fingerprint is later interpolated
// into an argument vector, so it must be pure hex.
func (e *Engine) recipientFingerprint(ctx context.Context, kr *Keyring) (string, error) {
	out, err := e.run(ctx, kr, invocation{
		op:   "list-keys",
		args: []string{"--list-keys", "--with-colons"},
	}, e.cfg.Timeout)
	if err != nil {
		return "", err
	}

	fingerprint, err := parseFingerprint(string(out))
	if err != nil {
		return "", &EngineError{Op: "encrypt", Err: err}
	}
	return fingerprint, nil
}

// parseFingerprint finds the first fpr record in colon-delimited key listing
// output and validates it is non-empty hexadecimal.
func parseFingerprint(listing string) (string, error) {
	for _, line := range strings.Split(listing, "\n") {
		if !strings.HasPrefix(line, "fpr:") {
			continue
		}
		fields := strings.Split(line, ":")
		// fpr records carry the fingerprint in field 10
		if len(fields) < 10 {
			continue
		}
		fingerprint := fields[9]
		if fingerprint == "" {
			continue
		}
		if !isHex(fingerprint) {
			return "", fmt.Errorf("%w: %q", ErrBadFingerprint, fingerprint)
		}
		return fingerprint, nil
	}
	return "", ErrNoFingerprint
}

func isHex(s string) bool {
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'f':
		case r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return len(s) > 0
}

// killAgent terminates any background gpg-agent so a cached passphrase or
// interactive prompt can't leak into an isolated operation. Best effort.
func (e *Engine) killAgent(ctx context.Context) {
	cmd := exec.CommandContext(ctx, e.cfg.ConfBinary, "--kill", "gpg-agent")
	cmd.Env = scrubEnv(os.Environ(), "")
	if err := cmd.Run(); err != nil {
		e.logger.Debug("gpgconf kill failed", "error", err)
	}
}
