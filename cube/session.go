// Package cube is the low-level HTTP session for the United Cube private API.
// It attaches bearer authentication, maps response statuses onto the package
// error taxonomy, and performs the single re-authentication retry that the
// credential store allows. Payload interpretation belongs to callers.
package cube

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultBaseURL is the production address of the service.
	DefaultBaseURL = "https://united-cube.com/"

	// apiVersion prefixes every endpoint path.
	apiVersion = "v1"

	// UserAgent identifies this library on every request it makes.
	UserAgent = "ucube-go/0.1"

	// maxResponseBytes caps how much of a response body is read. The API
	// serves paged JSON; anything larger than this is not a payload we can
	// interpret.
	maxResponseBytes = 8 << 20
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// TokenSource supplies the bearer token attached to every request. The
// credential store implements it; tests substitute statics.
type TokenSource interface {
	// Token returns a currently valid bearer token, refreshing it first when
	// the source supports refresh.
	Token(ctx context.Context) (string, error)

	// Invalidate marks the held token as rejected by the service, forcing the
	// next Token call to refresh (or fail, for non-renewable sources).
	Invalidate()

	// Renewable reports whether a rejected token can be replaced without
	// caller intervention.
	Renewable() bool
}

// Session issues authenticated requests against the API. A Session is safe
// for use from a single goroutine per client instance; it holds no mutable
// request state of its own.
type Session struct {
	baseURL   *url.URL
	client    *http.Client
	tokens    TokenSource
	userAgent string
}

// Option configures a Session.
type Option func(*Session)

// WithBaseURL overrides the remote address. For testing use.
func WithBaseURL(raw string) Option {
	return func(s *Session) {
		if !strings.HasSuffix(raw, "/") {
			raw += "/"
		}
		u, err := url.Parse(raw)
		if err != nil {
			log.Warn().Str("url", raw).Msg("invalid base URL override ignored")
			return
		}
		s.baseURL = u
	}
}

// WithHTTPClient sets the HTTP client used for every request. The client's
// transport is the place to add instrumentation or timeouts; the session
// enforces neither.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Session) {
		s.client = c
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(s *Session) {
		s.userAgent = ua
	}
}

// NewSession creates a session that authenticates with tokens.
func NewSession(tokens TokenSource, opts ...Option) (*Session, error) {
	if tokens == nil {
		return nil, fmt.Errorf("a token source is required for API access")
	}

	base, _ := url.Parse(DefaultBaseURL)
	s := &Session{
		baseURL:   base,
		client:    http.DefaultClient,
		tokens:    tokens,
		userAgent: UserAgent,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// BaseURL returns the resolved remote address, including the trailing slash.
func (s *Session) BaseURL() *url.URL {
	u := *s.baseURL
	return &u
}

// Get performs an authenticated GET against an API path ("me", "feeds", ...)
// and returns the raw response body.
func (s *Session) Get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	return s.do(ctx, http.MethodGet, path, query, nil, true)
}

// Post performs an authenticated POST. A non-nil body is sent as JSON.
func (s *Session) Post(ctx context.Context, path string, query url.Values, body any) ([]byte, error) {
	return s.do(ctx, http.MethodPost, path, query, body, true)
}

func (s *Session) do(ctx context.Context, method, path string, query url.Values, body any, allowRetry bool) ([]byte, error) {
	target := s.baseURL.JoinPath(apiVersion, path)
	if len(query) > 0 {
		target.RawQuery = query.Encode()
	}

	token, err := s.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	var payload io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, &APIError{Method: method, URL: target.String(), kind: ErrSomethingWentWrong, cause: err}
		}
		payload = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, target.String(), payload)
	if err != nil {
		return nil, transportError(method, target.String(), err)
	}

	requestID := uuid.NewString()
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("X-Request-Id", requestID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	started := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, transportError(method, target.String(), err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, transportError(method, target.String(), err)
	}

	log.Debug().
		Str("method", method).
		Str("path", path).
		Str("request_id", requestID).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(started)).
		Msg("api request")

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return data, nil
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		// The held token is no longer acceptable. Renewable sources get
		// exactly one fresh login and one repeat of the request.
		s.tokens.Invalidate()

		if !s.tokens.Renewable() {
			return nil, &APIError{Method: method, URL: target.String(), Status: resp.StatusCode, kind: ErrInvalidToken}
		}
		if !allowRetry {
			return nil, &APIError{Method: method, URL: target.String(), Status: resp.StatusCode, kind: ErrLoginFailed}
		}

		log.Warn().
			Str("method", method).
			Str("path", path).
			Str("request_id", requestID).
			Msg("token rejected, retrying after re-authentication")

		return s.do(ctx, method, path, query, body, false)
	}

	return nil, statusError(method, target.String(), resp.StatusCode)
}
