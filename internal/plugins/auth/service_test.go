package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/keyxmakerx/parlor/internal/apperror"
)

// --- Mock Repository ---

// mockUserRepo implements UserRepository for testing.
type mockUserRepo struct {
	findByUsernameFn     func(ctx context.Context, username string) (*User, error)
	findByIDFn           func(ctx context.Context, id string) (*User, error)
	upsertByExternalIDFn func(ctx context.Context, defaults ExternalUserDefaults, stats LoginStats) (*User, error)
	insertLocalUserFn    func(ctx context.Context, username, passwordHash string) (*User, error)
	updateLastLoginFn    func(ctx context.Context, id string, at time.Time) error
	deleteFn             func(ctx context.Context, id string) error
}

func (m *mockUserRepo) FindByUsername(ctx context.Context, username string) (*User, error) {
	if m.findByUsernameFn != nil {
		return m.findByUsernameFn(ctx, username)
	}
	return nil, apperror.NewNotFound("user not found")
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*User, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, apperror.NewNotFound("user not found")
}

func (m *mockUserRepo) UpsertByExternalID(ctx context.Context, defaults ExternalUserDefaults, stats LoginStats) (*User, error) {
	if m.upsertByExternalIDFn != nil {
		return m.upsertByExternalIDFn(ctx, defaults, stats)
	}
	return &User{ID: "ext-1", Provider: defaults.Provider, ExternalID: defaults.ExternalID, LoginCount: 1}, nil
}

func (m *mockUserRepo) InsertLocalUser(ctx context.Context, username, passwordHash string) (*User, error) {
	if m.insertLocalUserFn != nil {
		return m.insertLocalUserFn(ctx, username, passwordHash)
	}
	return &User{ID: "new-1", Username: username, PasswordHash: passwordHash}, nil
}

func (m *mockUserRepo) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	if m.updateLastLoginFn != nil {
		return m.updateLastLoginFn(ctx, id, at)
	}
	return nil
}

func (m *mockUserRepo) Delete(ctx context.Context, id string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, id)
	}
	return nil
}

// --- Mock Session Store ---

// mockSessionStore implements SessionStore with an in-memory map.
type mockSessionStore struct {
	mu        sync.Mutex
	sessions  map[string]Principal
	createErr error
	destroyed []string
}

func newMockSessionStore() *mockSessionStore {
	return &mockSessionStore{sessions: make(map[string]Principal)}
}

func (m *mockSessionStore) Create(ctx context.Context, p Principal) (string, error) {
	if m.createErr != nil {
		return "", m.createErr
	}
	token, err := generateSessionToken()
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[token] = p
	return token, nil
}

func (m *mockSessionStore) Lookup(ctx context.Context, token string) (*Principal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.sessions[token]
	if !ok {
		return nil, ErrSessionInvalid
	}
	return &p, nil
}

func (m *mockSessionStore) Destroy(ctx context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, token)
	m.destroyed = append(m.destroyed, token)
	return nil
}

// --- Test Helpers ---

// newTestAuthService creates an authService with mocks and a cheap hasher.
func newTestAuthService(repo UserRepository, sessions SessionStore) *authService {
	return NewAuthService(repo, sessions, newTestHasher(AlgorithmBcrypt)).(*authService)
}

// assertAppError checks that err is an *apperror.AppError with the expected code.
func assertAppError(t *testing.T, err error, expectedCode int) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error with code %d, got nil", expectedCode)
	}
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *apperror.AppError, got %T: %v", err, err)
	}
	if appErr.Code != expectedCode {
		t.Errorf("expected status %d, got %d (message: %s)", expectedCode, appErr.Code, appErr.Message)
	}
}

// localUser returns a stored user whose hash matches password.
func localUser(t *testing.T, username, password string) *User {
	t.Helper()
	hash, err := newTestHasher(AlgorithmBcrypt).Hash(password)
	if err != nil {
		t.Fatal(err)
	}
	return &User{ID: "id-" + username, Username: username, PasswordHash: hash}
}

// --- Register Tests ---

func TestRegister_Success(t *testing.T) {
	repo := &mockUserRepo{
		insertLocalUserFn: func(ctx context.Context, username, passwordHash string) (*User, error) {
			if username != "alice" {
				t.Errorf("expected trimmed username alice, got %q", username)
			}
			if passwordHash == "" || passwordHash == "pw1" {
				t.Errorf("expected a real hash, got %q", passwordHash)
			}
			return &User{ID: "id-alice", Username: username, PasswordHash: passwordHash}, nil
		},
	}

	svc := newTestAuthService(repo, newMockSessionStore())
	user, err := svc.Register(context.Background(), RegisterInput{Username: "  alice ", Password: "pw1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if user.ID != "id-alice" {
		t.Errorf("unexpected user %+v", user)
	}
}

func TestRegister_DuplicateCaughtBeforeHashing(t *testing.T) {
	repo := &mockUserRepo{
		findByUsernameFn: func(ctx context.Context, username string) (*User, error) {
			return &User{ID: "existing", Username: username}, nil
		},
		insertLocalUserFn: func(ctx context.Context, username, passwordHash string) (*User, error) {
			t.Error("insert must not be attempted for a taken username")
			return nil, nil
		},
	}

	svc := newTestAuthService(repo, newMockSessionStore())
	_, err := svc.Register(context.Background(), RegisterInput{Username: "alice", Password: "pw"})
	if !errors.Is(err, ErrDuplicateUser) {
		t.Fatalf("expected ErrDuplicateUser, got %v", err)
	}
	assertAppError(t, err, 409)
}

func TestRegister_DuplicateFromConstraint(t *testing.T) {
	// The pre-check passed but another registration won the race.
	repo := &mockUserRepo{
		insertLocalUserFn: func(ctx context.Context, username, passwordHash string) (*User, error) {
			return nil, ErrDuplicateUser
		},
	}

	svc := newTestAuthService(repo, newMockSessionStore())
	_, err := svc.Register(context.Background(), RegisterInput{Username: "alice", Password: "pw"})
	if !errors.Is(err, ErrDuplicateUser) {
		t.Fatalf("expected ErrDuplicateUser, got %v", err)
	}
}

func TestRegister_Validation(t *testing.T) {
	cases := []struct {
		name  string
		input RegisterInput
	}{
		{"empty username", RegisterInput{Username: "  ", Password: "pw"}},
		{"long username", RegisterInput{Username: strings.Repeat("a", 65), Password: "pw"}},
		{"markup in username", RegisterInput{Username: "<b>x</b>", Password: "pw"}},
		{"empty password", RegisterInput{Username: "alice"}},
		{"long password", RegisterInput{Username: "alice", Password: strings.Repeat("p", 73)}},
		{"mismatched confirm", RegisterInput{Username: "alice", Password: "pw", Confirm: "other"}},
	}

	svc := newTestAuthService(&mockUserRepo{}, newMockSessionStore())
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Register(context.Background(), tc.input)
			assertAppError(t, err, 422)
		})
	}
}

func TestRegister_StoreDown(t *testing.T) {
	repo := &mockUserRepo{
		findByUsernameFn: func(ctx context.Context, username string) (*User, error) {
			return nil, errors.New("connection refused")
		},
	}

	svc := newTestAuthService(repo, newMockSessionStore())
	_, err := svc.Register(context.Background(), RegisterInput{Username: "alice", Password: "pw"})
	assertAppError(t, err, 503)
}

// --- Local Strategy Tests ---

func TestAuthenticateLocal_Success(t *testing.T) {
	alice := localUser(t, "alice", "pw1")
	var stamped bool
	repo := &mockUserRepo{
		findByUsernameFn: func(ctx context.Context, username string) (*User, error) {
			return alice, nil
		},
		updateLastLoginFn: func(ctx context.Context, id string, at time.Time) error {
			stamped = id == alice.ID
			return nil
		},
	}

	svc := newTestAuthService(repo, newMockSessionStore())
	user, err := svc.Authenticate(context.Background(), LocalCredentials{Username: "alice", Password: "pw1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if user.ID != alice.ID {
		t.Errorf("expected %s, got %s", alice.ID, user.ID)
	}
	if !stamped || user.LastLogin == nil {
		t.Error("expected last login to be stamped")
	}
}

// TestAuthenticateLocal_EnumerationResistance: both failure modes must be
// indistinguishable to the caller.
func TestAuthenticateLocal_EnumerationResistance(t *testing.T) {
	alice := localUser(t, "alice", "pw1")
	repo := &mockUserRepo{
		findByUsernameFn: func(ctx context.Context, username string) (*User, error) {
			if username == "alice" {
				return alice, nil
			}
			return nil, apperror.NewNotFound("user not found")
		},
	}
	svc := newTestAuthService(repo, newMockSessionStore())
	ctx := context.Background()

	_, unknownErr := svc.Authenticate(ctx, LocalCredentials{Username: "mallory", Password: "pw1"})
	_, wrongErr := svc.Authenticate(ctx, LocalCredentials{Username: "alice", Password: "wrong"})

	if !errors.Is(unknownErr, ErrInvalidCredentials) || !errors.Is(wrongErr, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for both, got %v and %v", unknownErr, wrongErr)
	}
	if unknownErr.Error() != wrongErr.Error() {
		t.Errorf("error messages differ: %q vs %q", unknownErr, wrongErr)
	}
	if apperror.SafeCode(unknownErr) != apperror.SafeCode(wrongErr) {
		t.Error("status codes differ")
	}
}

func TestAuthenticateLocal_ProviderAccountHasNoPassword(t *testing.T) {
	repo := &mockUserRepo{
		findByUsernameFn: func(ctx context.Context, username string) (*User, error) {
			return &User{ID: "x", Username: username}, nil
		},
	}
	svc := newTestAuthService(repo, newMockSessionStore())

	_, err := svc.Authenticate(context.Background(), LocalCredentials{Username: "octo", Password: ""})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestAuthenticateLocal_LastLoginFailureIsNotFatal(t *testing.T) {
	alice := localUser(t, "alice", "pw1")
	repo := &mockUserRepo{
		findByUsernameFn: func(ctx context.Context, username string) (*User, error) {
			return alice, nil
		},
		updateLastLoginFn: func(ctx context.Context, id string, at time.Time) error {
			return errors.New("write failed")
		},
	}
	svc := newTestAuthService(repo, newMockSessionStore())

	if _, err := svc.Authenticate(context.Background(), LocalCredentials{Username: "alice", Password: "pw1"}); err != nil {
		t.Errorf("expected login to succeed, got %v", err)
	}
}

// --- External Strategy Tests ---

func TestAuthenticateExternal_AppliesDefaults(t *testing.T) {
	var gotDefaults ExternalUserDefaults
	var gotStats LoginStats
	repo := &mockUserRepo{
		upsertByExternalIDFn: func(ctx context.Context, defaults ExternalUserDefaults, stats LoginStats) (*User, error) {
			gotDefaults, gotStats = defaults, stats
			return &User{ID: "u1", Provider: defaults.Provider, ExternalID: defaults.ExternalID, LoginCount: 1}, nil
		},
	}
	svc := newTestAuthService(repo, newMockSessionStore())

	_, err := svc.Authenticate(context.Background(), ExternalProfile{ID: "99", Provider: "github"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotDefaults.DisplayName != "Unknown" {
		t.Errorf("expected display name Unknown, got %q", gotDefaults.DisplayName)
	}
	if gotDefaults.PhotoURL != "" {
		t.Errorf("expected empty photo, got %q", gotDefaults.PhotoURL)
	}
	if gotDefaults.Email != "No public email" {
		t.Errorf("expected default email, got %q", gotDefaults.Email)
	}
	if gotDefaults.CreatedOn.IsZero() || gotStats.LastLogin.IsZero() {
		t.Error("expected timestamps to be set")
	}
	if gotStats.LoginIncrement != 1 {
		t.Errorf("expected increment 1, got %d", gotStats.LoginIncrement)
	}
}

func TestAuthenticateExternal_UsesFirstProfileValues(t *testing.T) {
	var got ExternalUserDefaults
	repo := &mockUserRepo{
		upsertByExternalIDFn: func(ctx context.Context, defaults ExternalUserDefaults, stats LoginStats) (*User, error) {
			got = defaults
			return &User{ID: "u1"}, nil
		},
	}
	svc := newTestAuthService(repo, newMockSessionStore())

	_, err := svc.Authenticate(context.Background(), ExternalProfile{
		ID:          "7",
		DisplayName: "<img src=x onerror=alert(1)>Octo",
		Photos:      []string{"https://a.example/1.png", "https://a.example/2.png"},
		Emails:      []string{"first@example.com", "second@example.com"},
		Provider:    "github",
	})
	if err != nil {
		t.Fatal(err)
	}
	if got.DisplayName != "Octo" {
		t.Errorf("expected sanitized display name Octo, got %q", got.DisplayName)
	}
	if got.PhotoURL != "https://a.example/1.png" || got.Email != "first@example.com" {
		t.Errorf("expected first photo and email, got %+v", got)
	}
}

func TestAuthenticateExternal_StoreUnavailable(t *testing.T) {
	repo := &mockUserRepo{
		upsertByExternalIDFn: func(ctx context.Context, defaults ExternalUserDefaults, stats LoginStats) (*User, error) {
			return nil, errors.New("connection reset")
		},
	}
	svc := newTestAuthService(repo, newMockSessionStore())

	_, err := svc.Authenticate(context.Background(), ExternalProfile{ID: "7", Provider: "github"})
	assertAppError(t, err, 503)
}

func TestAuthenticateExternal_MissingID(t *testing.T) {
	svc := newTestAuthService(&mockUserRepo{}, newMockSessionStore())
	_, err := svc.Authenticate(context.Background(), ExternalProfile{Provider: "github"})
	assertAppError(t, err, 400)
}

func TestAuthenticate_UnknownStrategy(t *testing.T) {
	svc := newTestAuthService(&mockUserRepo{}, newMockSessionStore())
	_, err := svc.Authenticate(context.Background(), nil)
	assertAppError(t, err, 400)
}

// --- Session Tests ---

func TestLogin_ResolveLogout(t *testing.T) {
	alice := localUser(t, "alice", "pw1")
	repo := &mockUserRepo{
		findByUsernameFn: func(ctx context.Context, username string) (*User, error) { return alice, nil },
		findByIDFn: func(ctx context.Context, id string) (*User, error) {
			if id == alice.ID {
				return alice, nil
			}
			return nil, apperror.NewNotFound("user not found")
		},
	}
	sessions := newMockSessionStore()
	svc := newTestAuthService(repo, sessions)
	ctx := context.Background()

	token, user, err := svc.Login(ctx, LocalCredentials{Username: "alice", Password: "pw1"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if token == "" || user.ID != alice.ID {
		t.Fatalf("unexpected login result %q %+v", token, user)
	}
	if p := sessions.sessions[token]; p.UserID != alice.ID {
		t.Errorf("expected session to hold only the user id, got %+v", p)
	}

	resolved, err := svc.ResolveSession(ctx, token)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.ID != alice.ID {
		t.Errorf("expected %s, got %s", alice.ID, resolved.ID)
	}

	if err := svc.Logout(ctx, token); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, err := svc.ResolveSession(ctx, token); !errors.Is(err, ErrSessionInvalid) {
		t.Errorf("expected ErrSessionInvalid after logout, got %v", err)
	}
}

func TestLogin_FailureCreatesNoSession(t *testing.T) {
	sessions := newMockSessionStore()
	svc := newTestAuthService(&mockUserRepo{}, sessions)

	_, _, err := svc.Login(context.Background(), LocalCredentials{Username: "ghost", Password: "pw"})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if len(sessions.sessions) != 0 {
		t.Error("expected no session to be created")
	}
}

func TestLogin_SessionStoreDown(t *testing.T) {
	alice := localUser(t, "alice", "pw1")
	repo := &mockUserRepo{
		findByUsernameFn: func(ctx context.Context, username string) (*User, error) { return alice, nil },
	}
	sessions := newMockSessionStore()
	sessions.createErr = errors.New("redis down")
	svc := newTestAuthService(repo, sessions)

	_, _, err := svc.Login(context.Background(), LocalCredentials{Username: "alice", Password: "pw1"})
	assertAppError(t, err, 503)
}

func TestResolveSession_DeletedUserDegrades(t *testing.T) {
	sessions := newMockSessionStore()
	token, _ := sessions.Create(context.Background(), Principal{UserID: "deleted"})
	svc := newTestAuthService(&mockUserRepo{}, sessions)

	_, err := svc.ResolveSession(context.Background(), token)
	if !errors.Is(err, ErrSessionInvalid) {
		t.Fatalf("expected ErrSessionInvalid, got %v", err)
	}
	if len(sessions.destroyed) != 1 || sessions.destroyed[0] != token {
		t.Error("expected the stale session to be destroyed")
	}
}

func TestResolveSession_EmptyToken(t *testing.T) {
	svc := newTestAuthService(&mockUserRepo{}, newMockSessionStore())
	if _, err := svc.ResolveSession(context.Background(), ""); !errors.Is(err, ErrSessionInvalid) {
		t.Errorf("expected ErrSessionInvalid, got %v", err)
	}
	if err := svc.Logout(context.Background(), ""); err != nil {
		t.Errorf("expected no-op logout, got %v", err)
	}
}

// --- End-to-end against SQLite and miniredis ---

func newIntegrationService(t *testing.T) (AuthService, UserRepository) {
	t.Helper()
	repo, _ := newSQLiteRepo(t)
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewAuthService(repo, NewRedisSessionStore(rdb, time.Hour), newTestHasher(AlgorithmBcrypt)), repo
}

func TestScenario_RegisterLoginDuplicate(t *testing.T) {
	svc, _ := newIntegrationService(t)
	ctx := context.Background()

	if _, err := svc.Register(ctx, RegisterInput{Username: "alice", Password: "pw1"}); err != nil {
		t.Fatalf("register: %v", err)
	}

	token, user, err := svc.Login(ctx, LocalCredentials{Username: "alice", Password: "pw1"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if user.Username != "alice" {
		t.Errorf("expected alice, got %q", user.Username)
	}

	if _, _, err := svc.Login(ctx, LocalCredentials{Username: "alice", Password: "wrong"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("expected ErrInvalidCredentials, got %v", err)
	}

	if _, err := svc.Register(ctx, RegisterInput{Username: "alice", Password: "pw2"}); !errors.Is(err, ErrDuplicateUser) {
		t.Errorf("expected ErrDuplicateUser, got %v", err)
	}

	resolved, err := svc.ResolveSession(ctx, token)
	if err != nil || resolved.ID != user.ID {
		t.Errorf("expected session to resolve to %s, got %v %v", user.ID, resolved, err)
	}
}

func TestScenario_ExternalLoginIdempotent(t *testing.T) {
	svc, _ := newIntegrationService(t)
	ctx := context.Background()
	profile := ExternalProfile{ID: "583231", DisplayName: "The Octocat", Provider: "github"}

	const n = 4
	var ids []string
	var last *User
	for i := 0; i < n; i++ {
		user, err := svc.Authenticate(ctx, profile)
		if err != nil {
			t.Fatalf("login %d: %v", i, err)
		}
		ids = append(ids, user.ID)
		last = user
	}
	for _, id := range ids {
		if id != ids[0] {
			t.Fatalf("expected one user, got ids %v", ids)
		}
	}
	if last.LoginCount != n {
		t.Errorf("expected login count %d, got %d", n, last.LoginCount)
	}
	if last.Email != "No public email" {
		t.Errorf("expected default email, got %q", last.Email)
	}
}

func TestScenario_DeletedUserSessionDegrades(t *testing.T) {
	svc, repo := newIntegrationService(t)
	ctx := context.Background()

	user, err := svc.Register(ctx, RegisterInput{Username: "dave", Password: "pw"})
	if err != nil {
		t.Fatal(err)
	}
	token, _, err := svc.Login(ctx, LocalCredentials{Username: "dave", Password: "pw"})
	if err != nil {
		t.Fatal(err)
	}
	if err := repo.Delete(ctx, user.ID); err != nil {
		t.Fatal(err)
	}

	if _, err := svc.ResolveSession(ctx, token); !errors.Is(err, ErrSessionInvalid) {
		t.Errorf("expected ErrSessionInvalid, got %v", err)
	}
}
