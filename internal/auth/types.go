package auth

import "time"

// Role is the closed set of roles the platform knows about. The
// hierarchy is evaluated in authz.go; the type itself carries no
// ordering.
type Role string

const (
	RoleCustomer   Role = "customer"
	RoleVenueStaff Role = "venue_staff"
	RoleVenueAdmin Role = "venue_admin"
	RoleSuperAdmin Role = "super_admin"
)

// ValidRole reports whether r names a known role.
func ValidRole(r Role) bool {
	switch r {
	case RoleCustomer, RoleVenueStaff, RoleVenueAdmin, RoleSuperAdmin:
		return true
	}
	return false
}

// User represents an account. Users are never hard-deleted; Active is
// flipped off instead so the audit trail keeps resolving subjects.
type User struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	PasswordHash  string    `json:"-"`
	Role          Role      `json:"role"`
	VenueID       string    `json:"venueId,omitempty"` // scope binding for venue_staff / venue_admin
	Active        bool      `json:"active"`
	EmailVerified bool      `json:"emailVerified"`
	PhoneVerified bool      `json:"phoneVerified"`
	FirstName     string    `json:"firstName,omitempty"`
	LastName      string    `json:"lastName,omitempty"`
	Phone         string    `json:"phone,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Principal is a verified identity attached to a request after access
// token verification. Role and scope come from the freshly loaded user
// record, not from token claims, so deactivation takes effect on the
// next request.
type Principal struct {
	User     *User
	FamilyID string
}

// TokenPair is what login, register and refresh hand back to clients.
type TokenPair struct {
	AccessToken      string    `json:"accessToken"`
	RefreshToken     string    `json:"refreshToken"`
	TokenType        string    `json:"tokenType"`
	AccessExpiresAt  time.Time `json:"accessExpiresAt"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt"`
}

// RefreshTokenRecord is the registry's view of one member of a token
// family. Records are immutable; rotation inserts a successor and
// retires the predecessor rather than mutating in place.
type RefreshTokenRecord struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	FamilyID  string    `json:"family_id"`
	ParentID  string    `json:"parent_id,omitempty"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}
