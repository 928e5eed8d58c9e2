// Package auth holds the credential policy shared by client and server, and
// the HTTP client for the registration and login endpoints.
package auth

import (
	"errors"
	"fmt"
	"strings"
)

// Validation errors. These are recovered locally and surfaced inline; they
// never advance the gate's state machine.
var (
	ErrIdentifierFormat = errors.New("identifier must contain digits only")
	ErrIdentifierLength = errors.New("identifier has the wrong number of digits")
	ErrSecretTooShort   = errors.New("secret is too short")
)

// Policy is the client-side credential policy. Deployments differ on the
// identifier digit count, so it is configuration rather than a constant.
type Policy struct {
	// IdentifierDigits is the exact digit count an identifier must have
	// after normalization.
	IdentifierDigits int
	// SecretMinLength is the minimum secret length.
	SecretMinLength int
}

// DefaultPolicy returns the default deployment policy.
func DefaultPolicy() Policy {
	return Policy{IdentifierDigits: 10, SecretMinLength: 8}
}

// NormalizeIdentifier strips spaces and dashes so both raw and pre-stripped
// deployment variants validate the same input.
func NormalizeIdentifier(s string) string {
	return strings.Map(func(r rune) rune {
		if r == ' ' || r == '-' {
			return -1
		}
		return r
	}, strings.TrimSpace(s))
}

// ValidateIdentifier checks format and length and returns the normalized
// identifier.
func (p Policy) ValidateIdentifier(s string) (string, error) {
	id := NormalizeIdentifier(s)
	if id == "" {
		return "", ErrIdentifierFormat
	}
	for _, r := range id {
		if r < '0' || r > '9' {
			return "", ErrIdentifierFormat
		}
	}
	if len(id) != p.IdentifierDigits {
		return "", fmt.Errorf("%w: expected %d", ErrIdentifierLength, p.IdentifierDigits)
	}
	return id, nil
}

// ValidateSecret checks the secret against the minimum length policy.
func (p Policy) ValidateSecret(s string) error {
	if len(s) < p.SecretMinLength {
		return fmt.Errorf("%w: need at least %d characters", ErrSecretTooShort, p.SecretMinLength)
	}
	return nil
}
