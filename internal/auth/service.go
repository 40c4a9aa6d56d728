package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"venuelink.org/internal/audit"
	"venuelink.org/internal/ids"
	"venuelink.org/internal/obs"
)

const bearerTokenType = "bearer"

// Service is the session orchestrator: it composes the credential
// store, password hasher, token codec and token registry into the
// login/register/refresh/logout lifecycle and emits exactly one audit
// entry per state transition.
type Service struct {
	users    UserStore
	registry *Registry
	codec    *Codec
	recorder *audit.Recorder
	policy   PasswordPolicy
	now      func() time.Time
}

// NewService wires the orchestrator. All collaborators are required
// except recorder, which may be nil in tests.
func NewService(users UserStore, registry *Registry, codec *Codec, recorder *audit.Recorder, policy PasswordPolicy) (*Service, error) {
	if users == nil {
		return nil, errors.New("auth: user store is required")
	}
	if registry == nil {
		return nil, errors.New("auth: token registry is required")
	}
	if codec == nil {
		return nil, errors.New("auth: token codec is required")
	}
	if recorder == nil {
		recorder = audit.NewRecorder(nil)
	}
	return &Service{
		users:    users,
		registry: registry,
		codec:    codec,
		recorder: recorder,
		policy:   policy,
		now:      time.Now,
	}, nil
}

// RegisterInput is the register endpoint payload.
type RegisterInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	Phone     string
}

// Login authenticates email/password and opens a new token family.
// Unknown email, inactive account and wrong password all produce the
// same ErrInvalidCredentials so responses cannot enumerate accounts.
func (s *Service) Login(ctx context.Context, email, password string) (TokenPair, *User, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return s.loginDenied(ctx, "")
	}
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// Burn a hash comparison anyway so the miss costs the same
			// as a mismatch.
			_ = VerifyPassword(enumerationDecoyHash, password)
			return s.loginDenied(ctx, "")
		}
		obs.IncLogin(audit.OutcomeError)
		return TokenPair{}, nil, err
	}
	if !user.Active {
		_ = VerifyPassword(user.PasswordHash, password)
		return s.loginDenied(ctx, user.ID)
	}
	if err := VerifyPassword(user.PasswordHash, password); err != nil {
		if errors.Is(err, ErrCorruptCredential) {
			obs.IncLogin(audit.OutcomeError)
			return TokenPair{}, nil, err
		}
		return s.loginDenied(ctx, user.ID)
	}

	pair, err := s.openFamily(ctx, user)
	if err != nil {
		obs.IncLogin(audit.OutcomeError)
		return TokenPair{}, nil, err
	}
	obs.IncLogin(audit.OutcomeSuccess)
	s.recorder.Record(ctx, audit.Entry{
		SubjectID:    user.ID,
		Action:       "auth.login",
		Outcome:      audit.OutcomeSuccess,
		ResourceType: "session",
	})
	return pair, user, nil
}

func (s *Service) loginDenied(ctx context.Context, subjectID string) (TokenPair, *User, error) {
	obs.IncLogin(audit.OutcomeDenied)
	s.recorder.Record(ctx, audit.Entry{
		SubjectID:    subjectID,
		Action:       "auth.login",
		Outcome:      audit.OutcomeDenied,
		ResourceType: "session",
	})
	return TokenPair{}, nil, ErrInvalidCredentials
}

// Register creates a customer account and logs it in.
func (s *Service) Register(ctx context.Context, in RegisterInput) (TokenPair, *User, error) {
	email := normalizeEmail(in.Email)
	if email == "" || !strings.Contains(email, "@") {
		return TokenPair{}, nil, ErrInvalidCredentials
	}
	if err := s.policy.Check(in.Password); err != nil {
		return TokenPair{}, nil, err
	}
	hash, err := HashPassword(in.Password)
	if err != nil {
		return TokenPair{}, nil, err
	}
	now := s.now().UTC()
	user := &User{
		ID:           ids.New(),
		Email:        email,
		PasswordHash: hash,
		Role:         RoleCustomer,
		Active:       true,
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		Phone:        strings.TrimSpace(in.Phone),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return TokenPair{}, nil, err
	}
	s.recorder.Record(ctx, audit.Entry{
		SubjectID:    user.ID,
		Action:       "auth.register",
		Outcome:      audit.OutcomeSuccess,
		ResourceType: "user",
		ResourceID:   user.ID,
	})

	pair, err := s.openFamily(ctx, user)
	if err != nil {
		return TokenPair{}, nil, err
	}
	obs.IncLogin(audit.OutcomeSuccess)
	s.recorder.Record(ctx, audit.Entry{
		SubjectID:    user.ID,
		Action:       "auth.login",
		Outcome:      audit.OutcomeSuccess,
		ResourceType: "session",
	})
	return pair, user, nil
}

// Refresh rotates a refresh token and issues a new pair bound to the
// successor. Replay of an already-rotated token revokes the entire
// family; the caller sees the same rejection as any invalid token, but
// the audit stream records the compromise distinctly.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (TokenPair, *User, error) {
	claims, err := s.codec.VerifyRefresh(refreshToken)
	if err != nil {
		s.recorder.Record(ctx, audit.Entry{
			Action:       "auth.refresh",
			Outcome:      audit.OutcomeDenied,
			ResourceType: "session",
			Metadata:     map[string]string{"reason": reasonFor(err)},
		})
		return TokenPair{}, nil, err
	}

	user, err := s.users.Find(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return TokenPair{}, nil, ErrInvalidCredentials
		}
		return TokenPair{}, nil, err
	}
	if !user.Active {
		// Deactivated accounts lose their families immediately.
		_ = s.registry.RevokeFamily(ctx, claims.FamilyID)
		obs.IncFamilyRevocation()
		return TokenPair{}, nil, ErrInvalidCredentials
	}

	successorID := ids.New()
	if err := s.registry.Rotate(ctx, claims.FamilyID, claims.ID, successorID); err != nil {
		if errors.Is(err, ErrRevoked) {
			// Replayed token: family is already revoked by the
			// registry. Log at elevated severity.
			obs.IncFamilyRevocation()
			s.recorder.Record(ctx, audit.Entry{
				SubjectID:    user.ID,
				Action:       "auth.refresh.replay",
				Outcome:      audit.OutcomeDenied,
				ResourceType: "token_family",
				ResourceID:   claims.FamilyID,
				Metadata:     map[string]string{"severity": "high"},
			})
		}
		return TokenPair{}, nil, err
	}

	pair, err := s.issuePair(user, claims.FamilyID, successorID)
	if err != nil {
		return TokenPair{}, nil, err
	}
	obs.IncRotation()
	s.recorder.Record(ctx, audit.Entry{
		SubjectID:    user.ID,
		Action:       "auth.refresh",
		Outcome:      audit.OutcomeSuccess,
		ResourceType: "token_family",
		ResourceID:   claims.FamilyID,
	})
	return pair, user, nil
}

// Logout revokes the principal's token family. Idempotent: revoking an
// already-revoked family still reports success to the caller.
func (s *Service) Logout(ctx context.Context, p Principal) error {
	if p.FamilyID == "" {
		return nil
	}
	if err := s.registry.RevokeFamily(ctx, p.FamilyID); err != nil {
		return err
	}
	obs.IncFamilyRevocation()
	var subject string
	if p.User != nil {
		subject = p.User.ID
	}
	s.recorder.Record(ctx, audit.Entry{
		SubjectID:    subject,
		Action:       "auth.logout",
		Outcome:      audit.OutcomeSuccess,
		ResourceType: "token_family",
		ResourceID:   p.FamilyID,
	})
	return nil
}

// Authenticate is the single verification entry point the transport
// layer calls for every protected request. The user record is loaded
// fresh so role changes and deactivation are honored even while
// previously issued access tokens are still unexpired.
func (s *Service) Authenticate(ctx context.Context, accessToken string) (Principal, error) {
	claims, err := s.codec.VerifyAccess(accessToken)
	if err != nil {
		return Principal{}, err
	}
	user, err := s.users.Find(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Principal{}, ErrInvalidCredentials
		}
		return Principal{}, err
	}
	if !user.Active {
		return Principal{}, ErrInvalidCredentials
	}
	return Principal{User: user, FamilyID: claims.FamilyID}, nil
}

// openFamily starts a fresh token family for the user and issues the
// first access/refresh pair.
func (s *Service) openFamily(ctx context.Context, user *User) (TokenPair, error) {
	familyID := ids.New()
	tokenID := ids.New()
	now := s.now().UTC()
	if err := s.registry.Register(ctx, RefreshTokenRecord{
		ID:        tokenID,
		UserID:    user.ID,
		FamilyID:  familyID,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.codec.RefreshTTL()),
	}); err != nil {
		return TokenPair{}, err
	}
	return s.issuePair(user, familyID, tokenID)
}

func (s *Service) issuePair(user *User, familyID, refreshTokenID string) (TokenPair, error) {
	access, accessExp, err := s.codec.IssueAccess(user, familyID, ids.New())
	if err != nil {
		return TokenPair{}, err
	}
	refresh, refreshExp, err := s.codec.IssueRefresh(user.ID, familyID, refreshTokenID)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		TokenType:        bearerTokenType,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

func normalizeEmail(email string) string {
	return strings.TrimSpace(strings.ToLower(email))
}

func reasonFor(err error) string {
	switch {
	case errors.Is(err, ErrExpired):
		return "expired"
	case errors.Is(err, ErrBadSignature):
		return "bad_signature"
	case errors.Is(err, ErrMalformed):
		return "malformed"
	case errors.Is(err, ErrRevoked):
		return "revoked"
	default:
		return "error"
	}
}

// enumerationDecoyHash is a bcrypt digest of a random string, compared
// against when the email is unknown so both paths cost one bcrypt
// verification.
const enumerationDecoyHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"
