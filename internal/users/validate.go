// ABOUTME: Input validation for registration: username, password, and email rules
// ABOUTME: Validation failures return typed errors safe to show to the caller

package users

import (
	"fmt"
	"regexp"
	"strings"
)

// ValidationError is a registration input problem. Its message is safe to
// return to the client verbatim.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

const (
	minUsernameLen = 3
	maxUsernameLen = 50
	minPasswordLen = 8
	maxPasswordLen = 128
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Loose by intent. Real validation happens when mail gets sent; this just
// rejects obvious junk.
var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// reservedUsernames can never be registered.
var reservedUsernames = map[string]bool{
	"admin":         true,
	"administrator": true,
	"root":          true,
	"system":        true,
	"api":           true,
	"support":       true,
	"security":      true,
	"postmaster":    true,
}

func validateUsername(username string) error {
	if len(username) < minUsernameLen || len(username) > maxUsernameLen {
		return &ValidationError{"username", fmt.Sprintf("must be %d-%d characters", minUsernameLen, maxUsernameLen)}
	}
	if !usernamePattern.MatchString(username) {
		return &ValidationError{"username", "may only contain letters, digits, underscore, and hyphen"}
	}
	if reservedUsernames[strings.ToLower(username)] {
		return &ValidationError{"username", "is reserved"}
	}
	return nil
}

func validatePassword(password string) error {
	if len(password) < minPasswordLen || len(password) > maxPasswordLen {
		return &ValidationError{"password", fmt.Sprintf("must be %d-%d characters", minPasswordLen, maxPasswordLen)}
	}
	var hasLetter, hasDigit bool
	for _, r := range password {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
			hasLetter = true
		case r >= '0' && r <= '9':
			hasDigit = true
		}
	}
	if !hasLetter || !hasDigit {
		return &ValidationError{"password", "must contain at least one letter and one digit"}
	}
	return nil
}

func validateEmail(email string) error {
	if email == "" {
		return nil
	}
	if len(email) > 254 || !emailPattern.MatchString(email) {
		return &ValidationError{"email", "is not a valid address"}
	}
	return nil
}
