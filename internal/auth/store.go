package auth

import (
	"context"
)

// UserStore is the credential store boundary. Implementations report
// ErrNotFound for missing users and ErrEmailTaken for unique email
// violations; everything else is an infrastructure error.
type UserStore interface {
	Create(ctx context.Context, u *User) error
	Find(ctx context.Context, id string) (*User, error)
	// FindByEmail matches case-insensitively.
	FindByEmail(ctx context.Context, email string) (*User, error)
	// SetActive soft-(de)activates; users are never hard-deleted.
	SetActive(ctx context.Context, id string, active bool) error
}
