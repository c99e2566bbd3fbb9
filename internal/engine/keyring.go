// ABOUTME: Ephemeral keyring handle: a throwaway gpg home directory per operation
// ABOUTME: Created 0700, never reused or pooled, destroyed on every exit path

package engine

import (
	"fmt"
	"os"
)

// Keyring is a scoped handle to a freshly created gpg home directory. Each
// operation allocates its own; no key material from one request is ever
// reachable by another.
type Keyring struct {
	Home string

	eng *Engine
}

// newKeyring allocates a uniquely named ephemeral home directory with
// owner-only permissions.
func (e *Engine) newKeyring() (*Keyring, error) {
	home, err := os.MkdirTemp(e.cfg.TempRoot, "gpg-keyring-*")
	if err != nil {
		return nil, fmt.Errorf("creating ephemeral keyring: %w", err)
	}
	if err := os.Chmod(home, 0o700); err != nil {
		os.RemoveAll(home)
		return nil, fmt.Errorf("restricting keyring permissions: %w", err)
	}
	return &Keyring{Home: home, eng: e}, nil
}

// Close destroys the keyring directory and everything in it. Safe to call
// more than once.
func (k *Keyring) Close() error {
	if k.Home == "" {
		return nil
	}
	err := os.RemoveAll(k.Home)
	if err != nil {
		k.eng.logger.Error("failed to remove ephemeral keyring", "home", k.Home, "error", err)
		return fmt.Errorf("removing ephemeral keyring: %w", err)
	}
	k.Home = ""
	return nil
}
