package auth

import (
	"errors"
	"fmt"
	"unicode"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"
)

// PasswordPolicy holds the registration minimums. Zero values fall
// back to the defaults below.
type PasswordPolicy struct {
	MinLength int
}

const defaultPasswordMinLength = 8

// Check validates a candidate password against the policy: minimum
// length, at least one digit, at least one uppercase letter. The
// returned error wraps ErrWeakPassword with the failing rule.
func (p PasswordPolicy) Check(password string) error {
	minLen := p.MinLength
	if minLen <= 0 {
		minLen = defaultPasswordMinLength
	}
	// The minimum counts characters, not bytes, so multibyte
	// passwords are not shortchanged.
	if utf8.RuneCountInString(password) < minLen {
		return fmt.Errorf("%w: must be at least %d characters", ErrWeakPassword, minLen)
	}
	var hasDigit, hasUpper bool
	for _, r := range password {
		switch {
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsUpper(r):
			hasUpper = true
		}
	}
	if !hasDigit {
		return fmt.Errorf("%w: must contain a digit", ErrWeakPassword)
	}
	if !hasUpper {
		return fmt.Errorf("%w: must contain an uppercase letter", ErrWeakPassword)
	}
	return nil
}

// HashPassword hashes a plaintext password using bcrypt. The digest is
// self-describing: cost and salt are embedded, so two hashes of the
// same plaintext never compare equal directly.
func HashPassword(password string) (string, error) {
	if len(password) == 0 {
		return "", errors.New("password is empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPassword compares a plaintext password with a stored digest.
// bcrypt's comparison is constant-time. A digest that cannot be parsed
// reports ErrCorruptCredential; a mismatch reports ErrInvalidCredentials.
func VerifyPassword(hash, password string) error {
	if hash == "" {
		return ErrCorruptCredential
	}
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	switch {
	case err == nil:
		return nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return ErrInvalidCredentials
	default:
		return ErrCorruptCredential
	}
}
