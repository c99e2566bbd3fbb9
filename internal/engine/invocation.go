// ABOUTME: Invocation options value object and subprocess execution for the gpg engine
// ABOUTME: Centralizes batch flags, loopback pinentry, stdin passphrase delivery, and env scrubbing

package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

// errExitNonZero marks a plain non-zero exit, as opposed to a timeout or a
// failure to spawn the process at all.
var errExitNonZero = errors.New("non-zero exit")

// invocation describes a single engine call. It is constructed once per
// call and passed explicitly; nothing mutates process-wide state.
type invocation struct {
	op   string
	args []string
	// passphrase, when non-empty, is delivered on fd 0 with loopback
	// pinentry. It never appears in args or the environment.
	passphrase string
}

// baseArgs are prepended to every invocation: isolated home, batch mode.
func (inv invocation) baseArgs(home string) []string {
	args := []string{"--homedir", home, "--batch"}
	if inv.passphrase != "" {
		args = append(args, "--pinentry-mode", "loopback", "--passphrase-fd", "0")
	}
	return append(args, inv.args...)
}

// scrubEnv returns a copy of env with agent, display and TTY variables
// removed, GNUPGHOME pinned to the ephemeral home, and curses prompts
// disabled. An already-running agent must not be able to serve a cached
// passphrase or pop a prompt that would hang a server process.
func scrubEnv(env []string, home string) []string {
	dropped := map[string]bool{
		"GNUPGHOME":          true,
		"GPG_AGENT_INFO":     true,
		"GPG_TTY":            true,
		"DISPLAY":            true,
		"PINENTRY_USER_DATA": true,
	}

	out := make([]string, 0, len(env)+2)
	for _, kv := range env {
		name, _, ok := strings.Cut(kv, "=")
		if ok && dropped[name] {
			continue
		}
		out = append(out, kv)
	}
	if home != "" {
		out = append(out, "GNUPGHOME="+home)
	}
	out = append(out, "PINENTRY_USER_DATA=USE_CURSES=0")
	return out
}

// run executes one engine invocation inside the keyring with the given
// timeout. A non-zero exit becomes an EngineError carrying stderr; a
// deadline becomes an EngineError wrapping ErrTimeout.
func (e *Engine) run(ctx context.Context, kr *Keyring, inv invocation, timeout time.Duration) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, e.cfg.Binary, inv.baseArgs(kr.Home)...)
	cmd.Env = scrubEnv(os.Environ(), kr.Home)
	cmd.Dir = kr.Home
	// Don't let an orphaned child holding our pipes stall Wait after a kill.
	cmd.WaitDelay = 2 * time.Second

	if inv.passphrase != "" {
		cmd.Stdin = strings.NewReader(inv.passphrase + "\n")
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	e.logger.Debug("engine invocation",
		"op", inv.op,
		"duration", time.Since(start),
		"ok", err == nil,
	)

	if err != nil {
		if ctx.Err() != nil {
			return nil, &EngineError{Op: inv.op, Stderr: stderr.String(), Err: fmt.Errorf("%w: %v", ErrTimeout, ctx.Err())}
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, &EngineError{
				Op:     inv.op,
				Stderr: stderr.String(),
				Err:    fmt.Errorf("%w: status %d", errExitNonZero, exitErr.ExitCode()),
			}
		}
		return nil, &EngineError{Op: inv.op, Stderr: stderr.String(), Err: err}
	}

	return stdout.Bytes(), nil
}
