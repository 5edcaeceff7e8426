package cube_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"

	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mujykun/ucube/cube"
)

// fakeTokens is a scriptable token source: it hands out tokens from a list
// and records invalidations.
type fakeTokens struct {
	tokens      []string
	next        atomic.Int32
	invalidated atomic.Int32
	renewable   bool
	err         error
}

func (f *fakeTokens) Token(_ context.Context) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	i := int(f.next.Load())
	if i >= len(f.tokens) {
		i = len(f.tokens) - 1
	}
	return f.tokens[i], nil
}

func (f *fakeTokens) Invalidate() {
	f.invalidated.Add(1)
	f.next.Add(1)
}

func (f *fakeTokens) Renewable() bool { return f.renewable }

func staticTokens(token string) *fakeTokens {
	return &fakeTokens{tokens: []string{token}}
}

func TestSessionGet(t *testing.T) {
	var seenAuth, seenAgent, seenRequestID string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenAuth = r.Header.Get("Authorization")
		seenAgent = r.Header.Get("User-Agent")
		seenRequestID = r.Header.Get("X-Request-Id")
		assert.Equal(t, "/v1/me", r.URL.Path)
		w.Write([]byte(`{"slug":"u1"}`))
	}))
	defer server.Close()

	s, err := cube.NewSession(staticTokens("tok-1"), cube.WithBaseURL(server.URL))
	require.NoError(t, err)

	body, err := s.Get(context.Background(), "me", nil)
	require.NoError(t, err)

	assert.JSONEq(t, `{"slug":"u1"}`, string(body))
	assert.Equal(t, "Bearer tok-1", seenAuth)
	assert.Contains(t, seenAgent, "ucube-go")
	assert.NotEmpty(t, seenRequestID)
}

func TestSessionGetQuery(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/feeds", r.URL.Path)
		assert.Equal(t, "board-1", r.URL.Query().Get("board"))
		assert.Equal(t, "30", r.URL.Query().Get("per_page"))
		w.Write([]byte(`{"items":[]}`))
	}))
	defer server.Close()

	s, err := cube.NewSession(staticTokens("tok-1"), cube.WithBaseURL(server.URL))
	require.NoError(t, err)

	query := url.Values{}
	query.Set("board", "board-1")
	query.Set("per_page", "30")

	_, err = s.Get(context.Background(), "feeds", query)
	require.NoError(t, err)
}

func TestSessionPostBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var payload map[string]string
		require.NoError(t, jsonDecode(r, &payload))
		assert.Equal(t, "club-1", payload["club"])
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	s, err := cube.NewSession(staticTokens("tok-1"), cube.WithBaseURL(server.URL))
	require.NoError(t, err)

	_, err = s.Post(context.Background(), "follows", nil, map[string]string{"club": "club-1"})
	require.NoError(t, err)
}

func TestSessionStatusMapping(t *testing.T) {
	cases := []struct {
		name   string
		status int
		want   error
	}{
		{"not found", http.StatusNotFound, cube.ErrPageNotFound},
		{"rate limited", http.StatusTooManyRequests, cube.ErrRateLimited},
		{"server error", http.StatusInternalServerError, cube.ErrSomethingWentWrong},
		{"teapot", http.StatusTeapot, cube.ErrSomethingWentWrong},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var requests atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				requests.Add(1)
				w.WriteHeader(tc.status)
			}))
			defer server.Close()

			s, err := cube.NewSession(staticTokens("tok-1"), cube.WithBaseURL(server.URL))
			require.NoError(t, err)

			_, err = s.Get(context.Background(), "clubs/c1", nil)
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.want)

			// no retry on plain failures, rate limits included
			assert.Equal(t, int32(1), requests.Load())

			var apiErr *cube.APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tc.status, apiErr.Status)
			assert.Equal(t, http.MethodGet, apiErr.Method)
		})
	}
}

func TestSessionUnauthorizedNotRenewable(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	tokens := staticTokens("stale")
	s, err := cube.NewSession(tokens, cube.WithBaseURL(server.URL))
	require.NoError(t, err)

	_, err = s.Get(context.Background(), "me", nil)
	assert.ErrorIs(t, err, cube.ErrInvalidToken)
	assert.Equal(t, int32(1), requests.Load())
	assert.Equal(t, int32(1), tokens.invalidated.Load())
}

func TestSessionUnauthorizedRetriesOnce(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		if r.Header.Get("Authorization") == "Bearer fresh" {
			w.Write([]byte(`{"ok":true}`))
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	tokens := &fakeTokens{tokens: []string{"stale", "fresh"}, renewable: true}
	s, err := cube.NewSession(tokens, cube.WithBaseURL(server.URL))
	require.NoError(t, err)

	body, err := s.Get(context.Background(), "me", nil)
	require.NoError(t, err)

	assert.JSONEq(t, `{"ok":true}`, string(body))
	assert.Equal(t, int32(2), requests.Load())
	assert.Equal(t, int32(1), tokens.invalidated.Load())
}

func TestSessionUnauthorizedTwiceFailsLogin(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	tokens := &fakeTokens{tokens: []string{"stale", "also-stale"}, renewable: true}
	s, err := cube.NewSession(tokens, cube.WithBaseURL(server.URL))
	require.NoError(t, err)

	_, err = s.Get(context.Background(), "me", nil)
	assert.ErrorIs(t, err, cube.ErrLoginFailed)

	// one original attempt plus exactly one retry
	assert.Equal(t, int32(2), requests.Load())
	assert.Equal(t, int32(2), tokens.invalidated.Load())
}

func TestSessionForbiddenTreatedAsUnauthorized(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "Bearer fresh" {
			w.Write([]byte(`{}`))
			return
		}
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	tokens := &fakeTokens{tokens: []string{"stale", "fresh"}, renewable: true}
	s, err := cube.NewSession(tokens, cube.WithBaseURL(server.URL))
	require.NoError(t, err)

	_, err = s.Get(context.Background(), "me", nil)
	require.NoError(t, err)
	assert.Equal(t, int32(1), tokens.invalidated.Load())
}

func TestSessionTokenSourceError(t *testing.T) {
	wantErr := errors.New("no credentials")
	s, err := cube.NewSession(&fakeTokens{tokens: []string{""}, err: wantErr})
	require.NoError(t, err)

	_, err = s.Get(context.Background(), "me", nil)
	assert.ErrorIs(t, err, wantErr)
}

func TestSessionTransportFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // refuse connections

	s, err := cube.NewSession(staticTokens("tok-1"), cube.WithBaseURL(server.URL))
	require.NoError(t, err)

	_, err = s.Get(context.Background(), "me", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, cube.ErrSomethingWentWrong)

	var apiErr *cube.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Zero(t, apiErr.Status)
}

func TestSessionRequiresTokenSource(t *testing.T) {
	_, err := cube.NewSession(nil)
	assert.Error(t, err)
}

func jsonDecode(r *http.Request, v any) error {
	defer r.Body.Close()
	return jsoniter.NewDecoder(r.Body).Decode(v)
}
