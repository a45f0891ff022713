package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/keyxmakerx/parlor/internal/apperror"
	"github.com/keyxmakerx/parlor/internal/sanitize"
)

// Field limits for local accounts. bcrypt ignores bytes past 72, so the
// password cap is enforced in bytes.
const (
	maxUsernameRunes  = 64
	maxPasswordBytes  = bcryptMaxPasswordBytes
	maxDisplayNameLen = 255
)

// AuthService defines the business logic contract for authentication.
// Handlers call these methods -- they never touch the repository directly.
type AuthService interface {
	Register(ctx context.Context, input RegisterInput) (*User, error)

	// Authenticate verifies credentials with the strategy matching their
	// concrete type and returns the account they identify.
	Authenticate(ctx context.Context, creds Credentials) (*User, error)

	// Login authenticates and opens a session, returning its token.
	Login(ctx context.Context, creds Credentials) (token string, user *User, err error)

	// ResolveSession restores the user behind a session token.
	ResolveSession(ctx context.Context, token string) (*User, error)

	Logout(ctx context.Context, token string) error
}

// authService implements AuthService on a UserRepository and a SessionStore.
type authService struct {
	repo     UserRepository
	sessions SessionStore
	codec    *PrincipalCodec
	hasher   *PasswordHasher
	now      func() time.Time
}

// NewAuthService creates a new auth service with the given dependencies.
func NewAuthService(repo UserRepository, sessions SessionStore, hasher *PasswordHasher) AuthService {
	return &authService{
		repo:     repo,
		sessions: sessions,
		codec:    NewPrincipalCodec(repo),
		hasher:   hasher,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Register creates a new local account. It rejects a taken username
// before doing the expensive hash; the store's unique index settles races.
func (s *authService) Register(ctx context.Context, input RegisterInput) (*User, error) {
	username := strings.TrimSpace(input.Username)
	if err := validateRegistration(username, input.Password, input.Confirm); err != nil {
		return nil, err
	}

	if _, err := s.repo.FindByUsername(ctx, username); err == nil {
		return nil, ErrDuplicateUser
	} else if !apperror.IsNotFound(err) {
		return nil, apperror.NewUnavailable(fmt.Errorf("checking username: %w", err))
	}

	hash, err := s.hasher.Hash(input.Password)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("hashing password: %w", err))
	}

	user, err := s.repo.InsertLocalUser(ctx, username, hash)
	if err != nil {
		if errors.Is(err, ErrDuplicateUser) {
			return nil, ErrDuplicateUser
		}
		return nil, apperror.NewUnavailable(fmt.Errorf("creating user: %w", err))
	}

	slog.Info("user registered",
		slog.String("user_id", user.ID),
		slog.String("username", user.Username),
	)
	return user, nil
}

// Authenticate dispatches on the credential variant.
func (s *authService) Authenticate(ctx context.Context, creds Credentials) (*User, error) {
	switch c := creds.(type) {
	case LocalCredentials:
		return s.authenticateLocal(ctx, c)
	case ExternalProfile:
		return s.authenticateExternal(ctx, c)
	default:
		return nil, apperror.NewBadRequest("unsupported authentication strategy")
	}
}

// authenticateLocal checks a username/password pair. An unknown username
// still pays for one hash comparison and fails with the same error as a
// wrong password.
func (s *authService) authenticateLocal(ctx context.Context, creds LocalCredentials) (*User, error) {
	username := strings.TrimSpace(creds.Username)
	slog.Info("user attempted to log in", slog.String("username", username))

	user, err := s.repo.FindByUsername(ctx, username)
	if err != nil {
		if apperror.IsNotFound(err) {
			s.hasher.Verify(creds.Password, s.hasher.DummyHash())
			return nil, ErrInvalidCredentials
		}
		return nil, apperror.NewUnavailable(fmt.Errorf("finding user: %w", err))
	}

	if user.PasswordHash == "" || !s.hasher.Verify(creds.Password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	now := s.now()
	if err := s.repo.UpdateLastLogin(ctx, user.ID, now); err != nil {
		slog.Warn("failed to update last login",
			slog.String("user_id", user.ID),
			slog.Any("error", err),
		)
	} else {
		user.LastLogin = &now
	}

	return user, nil
}

// authenticateExternal reconciles a provider profile with the user table.
// It creates the account on first sight and bumps login stats on every
// call; it fails only when the store does.
func (s *authService) authenticateExternal(ctx context.Context, profile ExternalProfile) (*User, error) {
	if profile.ID == "" {
		return nil, apperror.NewBadRequest("provider profile has no id")
	}

	now := s.now()
	displayName := sanitize.PlainText(profile.DisplayName, maxDisplayNameLen)
	if displayName == "" {
		displayName = defaultDisplayName
	}

	defaults := ExternalUserDefaults{
		Provider:    profile.Provider,
		ExternalID:  profile.ID,
		DisplayName: displayName,
		PhotoURL:    sanitize.URL(firstOr(profile.Photos, "")),
		Email:       firstOr(profile.Emails, defaultEmail),
		CreatedOn:   now,
	}
	stats := LoginStats{LastLogin: now, LoginIncrement: 1}

	user, err := s.repo.UpsertByExternalID(ctx, defaults, stats)
	if err != nil {
		return nil, apperror.NewUnavailable(fmt.Errorf("upserting external user: %w", err))
	}

	slog.Info("external user logged in",
		slog.String("user_id", user.ID),
		slog.String("provider", user.Provider),
		slog.Int("login_count", user.LoginCount),
	)
	return user, nil
}

// Login authenticates and creates a session holding the serialized principal.
func (s *authService) Login(ctx context.Context, creds Credentials) (string, *User, error) {
	user, err := s.Authenticate(ctx, creds)
	if err != nil {
		return "", nil, err
	}

	token, err := s.sessions.Create(ctx, Principal{
		UserID:    s.codec.Serialize(user),
		CreatedAt: s.now(),
	})
	if err != nil {
		return "", nil, apperror.NewUnavailable(fmt.Errorf("creating session: %w", err))
	}

	slog.Info("user logged in",
		slog.String("user_id", user.ID),
		slog.String("strategy", string(creds.Kind())),
	)
	return token, user, nil
}

// ResolveSession looks the token up and deserializes its principal. A session
// whose user was deleted is destroyed and reported as ErrSessionInvalid.
func (s *authService) ResolveSession(ctx context.Context, token string) (*User, error) {
	if token == "" {
		return nil, ErrSessionInvalid
	}

	principal, err := s.sessions.Lookup(ctx, token)
	if err != nil {
		return nil, err
	}

	user, err := s.codec.Deserialize(ctx, principal.UserID)
	if err != nil {
		if errors.Is(err, ErrSessionInvalid) {
			if destroyErr := s.sessions.Destroy(ctx, token); destroyErr != nil {
				slog.Warn("failed to destroy stale session", slog.Any("error", destroyErr))
			}
		}
		return nil, err
	}
	return user, nil
}

// Logout destroys the session. Logging out without a session is a no-op.
func (s *authService) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return s.sessions.Destroy(ctx, token)
}

// validateRegistration checks local account fields and returns a
// validation error naming the first problem.
func validateRegistration(username, password, confirm string) error {
	switch {
	case username == "":
		return apperror.NewValidation("username is required")
	case utf8.RuneCountInString(username) > maxUsernameRunes:
		return apperror.NewValidation(fmt.Sprintf("username must be at most %d characters", maxUsernameRunes))
	case strings.ContainsAny(username, "<>\"'&"):
		return apperror.NewValidation("username contains invalid characters")
	case password == "":
		return apperror.NewValidation("password is required")
	case len(password) > maxPasswordBytes:
		return apperror.NewValidation(fmt.Sprintf("password must be at most %d bytes", maxPasswordBytes))
	case confirm != "" && confirm != password:
		return apperror.NewValidation("passwords do not match")
	}
	return nil
}
