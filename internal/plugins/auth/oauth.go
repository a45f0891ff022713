package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"

	"github.com/keyxmakerx/parlor/internal/apperror"
	"github.com/keyxmakerx/parlor/internal/config"
)

// ProfileExchanger runs the provider side of an authorization code flow.
// The rest of the package only ever sees the ExternalProfile it returns.
type ProfileExchanger interface {
	// Name is the provider key used in routes and stored in users.provider.
	Name() string
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*ExternalProfile, error)
}

func providerError(provider string, err error) error {
	return &apperror.AppError{
		Code:     ErrProviderLogin.Code,
		Type:     ErrProviderLogin.Type,
		Message:  ErrProviderLogin.Message,
		Internal: fmt.Errorf("%s: %w", provider, err),
	}
}

// --- GitHub ---

const githubAPIBase = "https://api.github.com"

// githubProvider exchanges codes with GitHub and reads the profile from
// the REST API.
type githubProvider struct {
	oauth   *oauth2.Config
	apiBase string
}

// NewGitHubProvider creates the GitHub exchanger from app credentials.
func NewGitHubProvider(cfg config.OAuthConfig) ProfileExchanger {
	return newGitHubProvider(cfg, github.Endpoint, githubAPIBase)
}

func newGitHubProvider(cfg config.OAuthConfig, endpoint oauth2.Endpoint, apiBase string) *githubProvider {
	return &githubProvider{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.CallbackURL,
			Endpoint:     endpoint,
			Scopes:       []string{"read:user", "user:email"},
		},
		apiBase: apiBase,
	}
}

func (p *githubProvider) Name() string { return "github" }

func (p *githubProvider) AuthCodeURL(state string) string {
	return p.oauth.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

type githubUser struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url"`
	Email     string `json:"email"`
}

type githubEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

// Exchange trades the code for a token and builds the profile from
// /user and /user/emails. Missing email scope is not fatal.
func (p *githubProvider) Exchange(ctx context.Context, code string) (*ExternalProfile, error) {
	token, err := p.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, providerError(p.Name(), fmt.Errorf("exchanging code: %w", err))
	}
	client := p.oauth.Client(ctx, token)

	var user githubUser
	if err := p.getJSON(ctx, client, "/user", &user); err != nil {
		return nil, providerError(p.Name(), err)
	}
	if user.ID == 0 {
		return nil, providerError(p.Name(), errors.New("profile has no id"))
	}

	profile := &ExternalProfile{
		ID:          strconv.FormatInt(user.ID, 10),
		DisplayName: user.Name,
		Provider:    p.Name(),
	}
	if profile.DisplayName == "" {
		profile.DisplayName = user.Login
	}
	if user.AvatarURL != "" {
		profile.Photos = []string{user.AvatarURL}
	}

	var emails []githubEmail
	if err := p.getJSON(ctx, client, "/user/emails", &emails); err == nil {
		profile.Emails = orderEmails(emails)
	}
	if len(profile.Emails) == 0 && user.Email != "" {
		profile.Emails = []string{user.Email}
	}
	return profile, nil
}

func (p *githubProvider) getJSON(ctx context.Context, client *http.Client, path string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.apiBase+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}
	return nil
}

// orderEmails returns verified addresses with the primary one first.
func orderEmails(emails []githubEmail) []string {
	var out []string
	for _, e := range emails {
		if e.Verified && e.Primary {
			out = append(out, e.Email)
		}
	}
	for _, e := range emails {
		if e.Verified && !e.Primary {
			out = append(out, e.Email)
		}
	}
	return out
}

// --- OpenID Connect ---

type oidcProvider struct {
	oauth    *oauth2.Config
	verifier *oidc.IDTokenVerifier
}

// NewOIDCProvider discovers the issuer and creates a generic OIDC exchanger.
func NewOIDCProvider(ctx context.Context, cfg config.OAuthConfig) (ProfileExchanger, error) {
	provider, err := oidc.NewProvider(ctx, cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("discovering OIDC issuer %s: %w", cfg.IssuerURL, err)
	}

	return &oidcProvider{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.CallbackURL,
			Endpoint:     provider.Endpoint(),
			Scopes:       []string{oidc.ScopeOpenID, "profile", "email"},
		},
		verifier: provider.Verifier(&oidc.Config{ClientID: cfg.ClientID}),
	}, nil
}

func (p *oidcProvider) Name() string { return "oidc" }

func (p *oidcProvider) AuthCodeURL(state string) string {
	return p.oauth.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

// oidcClaims are the standard claims read from the ID token.
type oidcClaims struct {
	Subject           string `json:"sub"`
	Name              string `json:"name"`
	PreferredUsername string `json:"preferred_username"`
	Picture           string `json:"picture"`
	Email             string `json:"email"`
	EmailVerified     bool   `json:"email_verified"`
}

func (p *oidcProvider) Exchange(ctx context.Context, code string) (*ExternalProfile, error) {
	token, err := p.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, providerError(p.Name(), fmt.Errorf("exchanging code: %w", err))
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return nil, providerError(p.Name(), errors.New("no id_token in response"))
	}
	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, providerError(p.Name(), fmt.Errorf("verifying id_token: %w", err))
	}

	var claims oidcClaims
	if err := idToken.Claims(&claims); err != nil {
		return nil, providerError(p.Name(), fmt.Errorf("parsing claims: %w", err))
	}
	return claimsToProfile(p.Name(), claims)
}

func claimsToProfile(provider string, claims oidcClaims) (*ExternalProfile, error) {
	if claims.Subject == "" {
		return nil, providerError(provider, errors.New("id_token has no subject"))
	}

	profile := &ExternalProfile{
		ID:          claims.Subject,
		DisplayName: claims.Name,
		Provider:    provider,
	}
	if profile.DisplayName == "" {
		profile.DisplayName = claims.PreferredUsername
	}
	if claims.Picture != "" {
		profile.Photos = []string{claims.Picture}
	}
	if claims.Email != "" && claims.EmailVerified {
		profile.Emails = []string{claims.Email}
	}
	return profile, nil
}

// --- OAuth state ---

// stateTTL bounds how long a user may sit on the provider's consent screen.
const stateTTL = 10 * time.Minute

type stateClaims struct {
	Provider string `json:"prv"`
	jwt.RegisteredClaims
}

// StateSigner issues and checks the signed state parameter of the
// authorization code flow.
type StateSigner struct {
	secret []byte
	now    func() time.Time
}

// NewStateSigner creates a signer keyed by the session secret.
func NewStateSigner(secret string) *StateSigner {
	return &StateSigner{secret: []byte(secret), now: time.Now}
}

// Issue returns a fresh state bound to provider.
func (s *StateSigner) Issue(provider string) (string, error) {
	now := s.now()
	claims := stateClaims{
		Provider: provider,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(stateTTL)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("signing oauth state: %w", err)
	}
	return signed, nil
}

// Verify checks signature, expiry and provider binding.
func (s *StateSigner) Verify(state, provider string) error {
	var claims stateClaims
	_, err := jwt.ParseWithClaims(state, &claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return ErrInvalidState
	}
	if claims.Provider != provider {
		return ErrInvalidState
	}
	return nil
}
