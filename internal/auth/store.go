// Package auth owns the credential lifecycle. A Store turns the configured
// username/password pair (or a manually supplied bearer token) into a valid
// bearer token on demand: login happens lazily on first use, and again when
// the held token expires or the service rejects it. Manual tokens are used
// as-is and never refreshed.
package auth

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"

	"github.com/mujykun/ucube/cube"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// refreshWindow backdates token expiry so a replacement is fetched slightly
// before the service would reject the old token, absorbing clock drift.
const refreshWindow = 60 * time.Second

type mode int

const (
	modePassword mode = iota
	modeManual
)

// Store implements cube.TokenSource over either credential form. A Store
// belongs to one client instance and is not safe for concurrent use; the
// client's single-caller contract covers it.
type Store struct {
	mode mode

	username string
	password string

	client  *http.Client
	baseURL *url.URL

	token        string
	refreshToken string
	expiry       time.Time
	rejected     bool
}

// Option configures a Store.
type Option func(*Store)

// WithBaseURL overrides the remote address. For testing use.
func WithBaseURL(raw string) Option {
	return func(s *Store) {
		u, err := url.Parse(raw)
		if err != nil {
			log.Warn().Str("url", raw).Msg("invalid base URL override ignored")
			return
		}
		s.baseURL = u
	}
}

// WithHTTPClient sets the HTTP client used for login calls.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Store) {
		s.client = c
	}
}

// NewPasswordStore creates a store that logs in with a username/password
// pair. No request is made until a token is first needed.
func NewPasswordStore(username, password string, opts ...Option) *Store {
	s := newStore(opts)
	s.mode = modePassword
	s.username = username
	s.password = password
	return s
}

// NewTokenStore creates a store around a manually supplied bearer token.
// The token is never refreshed: once the service rejects it, every
// subsequent Token call fails with cube.ErrInvalidToken.
func NewTokenStore(token string, opts ...Option) *Store {
	s := newStore(opts)
	s.mode = modeManual
	s.token = token
	s.expiry = bearerExpiry(token)
	return s
}

func newStore(opts []Option) *Store {
	base, _ := url.Parse(cube.DefaultBaseURL)
	s := &Store{
		client:  http.DefaultClient,
		baseURL: base,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Token returns a bearer token that is expected to be valid right now,
// logging in first when the store has none or the held one is stale.
func (s *Store) Token(ctx context.Context) (string, error) {
	if s.mode == modeManual {
		if s.rejected {
			return "", fmt.Errorf("token was rejected by the service: %w", cube.ErrInvalidToken)
		}
		return s.token, nil
	}

	if s.token != "" && !s.stale() {
		return s.token, nil
	}

	if err := s.login(ctx); err != nil {
		return "", err
	}

	return s.token, nil
}

// Invalidate marks the held token as rejected. Password stores drop the
// token so the next Token call logs in again; manual stores become
// permanently unusable.
func (s *Store) Invalidate() {
	if s.mode == modeManual {
		s.rejected = true
		return
	}
	s.token = ""
	s.expiry = time.Time{}
}

// Renewable reports whether a rejected token can be replaced. Only
// password stores renew.
func (s *Store) Renewable() bool {
	return s.mode == modePassword
}

// Expiry returns when the held token expires, or the zero time when the
// token carries no readable expiry.
func (s *Store) Expiry() time.Time {
	return s.expiry
}

// OAuth2 adapts the store to oauth2.TokenSource for libraries built on
// golang.org/x/oauth2. The adapter uses context.Background; prefer Token
// for request-scoped cancellation.
func (s *Store) OAuth2() oauth2.TokenSource {
	return oauth2Source{s}
}

type oauth2Source struct {
	store *Store
}

func (o oauth2Source) Token() (*oauth2.Token, error) {
	bearer, err := o.store.Token(context.Background())
	if err != nil {
		return nil, err
	}
	return &oauth2.Token{
		AccessToken: bearer,
		TokenType:   "Bearer",
		Expiry:      o.store.expiry,
	}, nil
}

// stale reports whether the held token is inside the refresh window. A
// token without a readable expiry counts as fresh until rejected.
func (s *Store) stale() bool {
	if s.expiry.IsZero() {
		return false
	}
	return time.Now().After(s.expiry.Add(-refreshWindow))
}

type loginRequest struct {
	ID           string  `json:"id"`
	Path         string  `json:"path"`
	Password     string  `json:"pw"`
	RefreshToken *string `json:"refresh_token"`
	RememberMe   bool    `json:"remember_me"`
}

type loginResponse struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refresh_token"`
}

func (s *Store) login(ctx context.Context) error {
	if s.username == "" || s.password == "" {
		return fmt.Errorf("username and password are required to log in: %w", cube.ErrInvalidCredentials)
	}

	payload := loginRequest{
		ID:         s.username,
		Path:       s.baseURL.JoinPath("signin").String(),
		Password:   s.password,
		RememberMe: true,
	}
	if s.refreshToken != "" {
		payload.RefreshToken = &s.refreshToken
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode login request: %w", err)
	}

	target := s.baseURL.JoinPath("v1", "auth", "login").String()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", cube.UserAgent)
	req.Header.Set("X-Request-Id", uuid.NewString())

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("login request: %w: %w", cube.ErrLoginFailed, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read login response: %w: %w", cube.ErrLoginFailed, err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		// fall through to decode
	case resp.StatusCode == http.StatusUnauthorized:
		return fmt.Errorf("login rejected: %w", cube.ErrInvalidCredentials)
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("login throttled: %w", cube.ErrRateLimited)
	default:
		return fmt.Errorf("login returned HTTP %d: %w", resp.StatusCode, cube.ErrLoginFailed)
	}

	var result loginResponse
	if err := json.Unmarshal(data, &result); err != nil {
		return fmt.Errorf("decode login response: %w: %w", cube.ErrLoginFailed, err)
	}
	if result.Token == "" {
		return fmt.Errorf("login response carried no token: %w", cube.ErrLoginFailed)
	}

	s.token = result.Token
	s.expiry = bearerExpiry(result.Token)
	if result.RefreshToken != "" {
		s.refreshToken = result.RefreshToken
	}

	log.Debug().Time("expiry", s.expiry).Msg("logged in")

	return nil
}

// bearerExpiry reads the exp claim from a bearer token without verifying
// the signature; only the service can verify, and only the timing matters
// here. Tokens that are not JWTs, or carry no exp, get the zero time.
func bearerExpiry(token string) time.Time {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}
	}
	if claims.ExpiresAt == nil {
		return time.Time{}
	}
	return claims.ExpiresAt.Time
}
