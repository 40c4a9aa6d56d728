package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"venuelink.org/internal/audit"
	"venuelink.org/internal/kv"
)

// memUserStore is an in-memory credential store for orchestrator tests.
type memUserStore struct {
	mu    sync.Mutex
	users map[string]*User // by id
}

func newMemUserStore() *memUserStore {
	return &memUserStore{users: make(map[string]*User)}
}

func (s *memUserStore) Create(_ context.Context, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return ErrEmailTaken
		}
	}
	clone := *u
	s.users[u.ID] = &clone
	return nil
}

func (s *memUserStore) Find(_ context.Context, id string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *u
	return &clone, nil
}

func (s *memUserStore) FindByEmail(_ context.Context, email string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			clone := *u
			return &clone, nil
		}
	}
	return nil, ErrNotFound
}

func (s *memUserStore) SetActive(_ context.Context, id string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return ErrNotFound
	}
	u.Active = active
	return nil
}

func newTestService(t *testing.T) (*Service, *memUserStore) {
	t.Helper()
	store := kv.NewMemory()
	t.Cleanup(store.Close)
	codec, err := NewCodec([]byte("test-secret"), "venuelink", 30*time.Minute, 7*24*time.Hour)
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	users := newMemUserStore()
	svc, err := NewService(users, NewRegistry(store, 7*24*time.Hour), codec, audit.NewRecorder(nil), PasswordPolicy{MinLength: 8})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc, users
}

func TestRegisterPolicyAndDuplicates(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	for _, weak := range []string{"short1A", "longenough1"} {
		_, _, err := svc.Register(ctx, RegisterInput{Email: "u1@example.com", Password: weak})
		if !errors.Is(err, ErrWeakPassword) {
			t.Fatalf("Register(%q) = %v, want ErrWeakPassword", weak, err)
		}
	}

	pair, user, err := svc.Register(ctx, RegisterInput{Email: "U1@Example.com", Password: "Passw0rd", FirstName: "Ada"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if user.Email != "u1@example.com" {
		t.Fatalf("email not normalized: %q", user.Email)
	}
	if user.Role != RoleCustomer {
		t.Fatalf("default role = %q, want customer", user.Role)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" || pair.TokenType != "bearer" {
		t.Fatalf("incomplete token pair: %+v", pair)
	}

	_, _, err = svc.Register(ctx, RegisterInput{Email: "u1@example.com", Password: "Passw0rd"})
	if !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("duplicate Register = %v, want ErrEmailTaken", err)
	}
}

func TestLoginIndistinguishableFailures(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, _, err := svc.Register(ctx, RegisterInput{Email: "u1@example.com", Password: "Passw0rd"}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	// Unknown email and wrong password yield the identical error.
	_, _, errUnknown := svc.Login(ctx, "nobody@example.com", "Passw0rd")
	_, _, errWrong := svc.Login(ctx, "u1@example.com", "WrongPass1")
	if !errors.Is(errUnknown, ErrInvalidCredentials) || !errors.Is(errWrong, ErrInvalidCredentials) {
		t.Fatalf("failures differ: %v vs %v", errUnknown, errWrong)
	}

	if _, _, err := svc.Login(ctx, "u1@example.com", "Passw0rd"); err != nil {
		t.Fatalf("valid Login: %v", err)
	}
}

func TestLoginInactiveAccount(t *testing.T) {
	svc, users := newTestService(t)
	ctx := context.Background()

	_, user, err := svc.Register(ctx, RegisterInput{Email: "u1@example.com", Password: "Passw0rd"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := users.SetActive(ctx, user.ID, false); err != nil {
		t.Fatalf("SetActive: %v", err)
	}
	if _, _, err := svc.Login(ctx, "u1@example.com", "Passw0rd"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("inactive Login = %v, want ErrInvalidCredentials", err)
	}
}

func TestRefreshRotationAndReplay(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	pair, _, err := svc.Register(ctx, RegisterInput{Email: "u1@example.com", Password: "Passw0rd"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	// First rotation succeeds and returns a fresh pair.
	next, _, err := svc.Refresh(ctx, pair.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if next.RefreshToken == pair.RefreshToken {
		t.Fatal("refresh token was not rotated")
	}

	// Replaying the rotated token fails and revokes the whole family:
	// even the pair issued by the successful rotation is now rejected.
	if _, _, err := svc.Refresh(ctx, pair.RefreshToken); !errors.Is(err, ErrRevoked) {
		t.Fatalf("replayed Refresh = %v, want ErrRevoked", err)
	}
	if _, _, err := svc.Refresh(ctx, next.RefreshToken); !errors.Is(err, ErrRevoked) {
		t.Fatalf("successor Refresh after replay = %v, want ErrRevoked", err)
	}
}

func TestRefreshRejectsGarbageTokens(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, _, err := svc.Refresh(ctx, "not-a-token"); !errors.Is(err, ErrMalformed) {
		t.Fatalf("garbage Refresh = %v, want ErrMalformed", err)
	}
}

func TestLogoutIdempotent(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	pair, user, err := svc.Register(ctx, RegisterInput{Email: "u1@example.com", Password: "Passw0rd"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	principal, err := svc.Authenticate(ctx, pair.AccessToken)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if principal.User.ID != user.ID {
		t.Fatalf("authenticated wrong user: %s", principal.User.ID)
	}

	if err := svc.Logout(ctx, principal); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	// A second logout of the same family still succeeds.
	if err := svc.Logout(ctx, principal); err != nil {
		t.Fatalf("second Logout: %v", err)
	}

	// The refresh token of the revoked family is dead.
	if _, _, err := svc.Refresh(ctx, pair.RefreshToken); !errors.Is(err, ErrRevoked) {
		t.Fatalf("Refresh after logout = %v, want ErrRevoked", err)
	}
}

func TestAuthenticateHonorsDeactivation(t *testing.T) {
	svc, users := newTestService(t)
	ctx := context.Background()

	pair, user, err := svc.Register(ctx, RegisterInput{Email: "u1@example.com", Password: "Passw0rd"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := svc.Authenticate(ctx, pair.AccessToken); err != nil {
		t.Fatalf("Authenticate: %v", err)
	}

	// Deactivation applies to the very next request even though the
	// access token itself is still unexpired.
	if err := users.SetActive(ctx, user.ID, false); err != nil {
		t.Fatalf("SetActive: %v", err)
	}
	if _, err := svc.Authenticate(ctx, pair.AccessToken); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("Authenticate after deactivation = %v, want ErrInvalidCredentials", err)
	}
}

func TestConcurrentRefreshSingleWinner(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	pair, _, err := svc.Register(ctx, RegisterInput{Email: "u1@example.com", Password: "Passw0rd"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	const racers = 8
	var wg sync.WaitGroup
	errs := make([]error, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, errs[i] = svc.Refresh(ctx, pair.RefreshToken)
		}(i)
	}
	wg.Wait()

	var wins int
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrRevoked):
		default:
			t.Fatalf("unexpected refresh error: %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("expected exactly one successful refresh, got %d", wins)
	}
}
