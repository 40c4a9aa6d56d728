package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"

	// clockSkew tolerated when validating expiry and issued-at.
	clockSkew = 5 * time.Second
)

// Claims carried by both token kinds. Access tokens additionally embed
// the role and venue scope snapshot taken at issuance; the orchestrator
// re-checks the live user record anyway, the snapshot only serves
// logging and fast-path routing.
type Claims struct {
	Role      Role   `json:"role,omitempty"`
	VenueID   string `json:"venue_id,omitempty"`
	FamilyID  string `json:"fam"`
	TokenType string `json:"token_type"`
	jwt.RegisteredClaims
}

// Codec signs and verifies the self-contained access and refresh
// tokens. The signing key is injected at construction and never
// mutated; verification is pure computation with no store access.
type Codec struct {
	key        []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// CodecOption tweaks Codec construction.
type CodecOption func(*Codec)

// WithClock overrides the codec's time source (tests).
func WithClock(fn func() time.Time) CodecOption {
	return func(c *Codec) {
		if fn != nil {
			c.now = fn
		}
	}
}

// NewCodec builds a Codec around an HS256 key.
func NewCodec(key []byte, issuer string, accessTTL, refreshTTL time.Duration, opts ...CodecOption) (*Codec, error) {
	if len(key) == 0 {
		return nil, errors.New("auth: signing key is required")
	}
	if accessTTL <= 0 || refreshTTL <= 0 {
		return nil, errors.New("auth: token lifetimes must be positive")
	}
	c := &Codec{
		key:        key,
		issuer:     strings.TrimSpace(issuer),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// AccessTTL returns the configured access token lifetime.
func (c *Codec) AccessTTL() time.Duration { return c.accessTTL }

// RefreshTTL returns the configured refresh token lifetime.
func (c *Codec) RefreshTTL() time.Duration { return c.refreshTTL }

// IssueAccess signs an access token for the user, bound to the refresh
// token family that produced it.
func (c *Codec) IssueAccess(u *User, familyID, tokenID string) (string, time.Time, error) {
	if u == nil || strings.TrimSpace(u.ID) == "" {
		return "", time.Time{}, errors.New("auth: user is required")
	}
	return c.sign(Claims{
		Role:      u.Role,
		VenueID:   u.VenueID,
		FamilyID:  familyID,
		TokenType: tokenTypeAccess,
	}, u.ID, tokenID, c.accessTTL)
}

// IssueRefresh signs a refresh token. tokenID becomes the jti the
// registry tracks rotation state under.
func (c *Codec) IssueRefresh(userID, familyID, tokenID string) (string, time.Time, error) {
	if strings.TrimSpace(userID) == "" {
		return "", time.Time{}, errors.New("auth: userID is required")
	}
	return c.sign(Claims{
		FamilyID:  familyID,
		TokenType: tokenTypeRefresh,
	}, userID, tokenID, c.refreshTTL)
}

func (c *Codec) sign(claims Claims, subject, tokenID string, ttl time.Duration) (string, time.Time, error) {
	now := c.now().UTC()
	exp := now.Add(ttl)
	claims.RegisteredClaims = jwt.RegisteredClaims{
		Issuer:    c.issuer,
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
		ID:        tokenID,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.key)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// VerifyAccess verifies signature and expiry of an access token.
func (c *Codec) VerifyAccess(raw string) (*Claims, error) {
	return c.verify(raw, tokenTypeAccess)
}

// VerifyRefresh verifies signature and expiry of a refresh token.
// Rotation/revocation state is the registry's concern, not the codec's.
func (c *Codec) VerifyRefresh(raw string) (*Claims, error) {
	return c.verify(raw, tokenTypeRefresh)
}

func (c *Codec) verify(raw, wantType string) (*Claims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrMalformed
	}
	parsed, err := jwt.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrBadSignature
		}
		return c.key, nil
	},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(c.issuer),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(clockSkew),
		jwt.WithTimeFunc(func() time.Time { return c.now() }),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrExpired
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, ErrBadSignature
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, ErrMalformed
		default:
			return nil, ErrMalformed
		}
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrBadSignature
	}
	if claims.TokenType != wantType {
		return nil, ErrMalformed
	}
	if strings.TrimSpace(claims.Subject) == "" || strings.TrimSpace(claims.FamilyID) == "" {
		return nil, ErrMalformed
	}
	return claims, nil
}
