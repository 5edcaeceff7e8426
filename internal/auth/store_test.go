package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mujykun/ucube/cube"
)

// signedToken builds a real JWT so expiry extraction sees an exp claim.
func signedToken(t *testing.T, expiry time.Time) string {
	t.Helper()
	claims := jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(expiry)}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return token
}

type loginRecorder struct {
	logins   atomic.Int32
	lastBody loginRequest
	token    string
	status   int
}

func (l *loginRecorder) server(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/auth/login", func(w http.ResponseWriter, r *http.Request) {
		l.logins.Add(1)
		require.NoError(t, jsoniter.NewDecoder(r.Body).Decode(&l.lastBody))

		if l.status != 0 {
			w.WriteHeader(l.status)
			return
		}

		resp := loginResponse{Token: l.token, RefreshToken: "refresh-1"}
		require.NoError(t, jsoniter.NewEncoder(w).Encode(resp))
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestPasswordStoreLogsInLazily(t *testing.T) {
	recorder := &loginRecorder{token: "bearer-1"}
	server := recorder.server(t)

	store := NewPasswordStore("user@example.com", "hunter2", WithBaseURL(server.URL))
	assert.Zero(t, recorder.logins.Load(), "constructing a store must not log in")

	token, err := store.Token(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "bearer-1", token)
	assert.Equal(t, int32(1), recorder.logins.Load())

	// the login payload matches the service's contract
	assert.Equal(t, "user@example.com", recorder.lastBody.ID)
	assert.Equal(t, "hunter2", recorder.lastBody.Password)
	assert.Equal(t, server.URL+"/signin", recorder.lastBody.Path)
	assert.True(t, recorder.lastBody.RememberMe)
	assert.Nil(t, recorder.lastBody.RefreshToken)
}

func TestPasswordStoreCachesToken(t *testing.T) {
	recorder := &loginRecorder{token: signedToken(t, time.Now().Add(time.Hour))}
	server := recorder.server(t)

	store := NewPasswordStore("u", "p", WithBaseURL(server.URL))

	first, err := store.Token(context.Background())
	require.NoError(t, err)
	second, err := store.Token(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), recorder.logins.Load())
}

func TestPasswordStoreRefreshesExpiredToken(t *testing.T) {
	recorder := &loginRecorder{token: signedToken(t, time.Now().Add(time.Second))}
	server := recorder.server(t)

	store := NewPasswordStore("u", "p", WithBaseURL(server.URL))

	_, err := store.Token(context.Background())
	require.NoError(t, err)

	// within the refresh window, so the next call logs in again
	recorder.token = signedToken(t, time.Now().Add(time.Hour))
	_, err = store.Token(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int32(2), recorder.logins.Load())
}

func TestPasswordStoreSendsRefreshTokenOnRelogin(t *testing.T) {
	recorder := &loginRecorder{token: "bearer-1"}
	server := recorder.server(t)

	store := NewPasswordStore("u", "p", WithBaseURL(server.URL))

	_, err := store.Token(context.Background())
	require.NoError(t, err)

	store.Invalidate()

	_, err = store.Token(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int32(2), recorder.logins.Load())
	require.NotNil(t, recorder.lastBody.RefreshToken)
	assert.Equal(t, "refresh-1", *recorder.lastBody.RefreshToken)
}

func TestPasswordStoreLoginFailures(t *testing.T) {
	cases := []struct {
		name   string
		status int
		want   error
	}{
		{"bad credentials", http.StatusUnauthorized, cube.ErrInvalidCredentials},
		{"throttled", http.StatusTooManyRequests, cube.ErrRateLimited},
		{"server error", http.StatusInternalServerError, cube.ErrLoginFailed},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			recorder := &loginRecorder{status: tc.status}
			server := recorder.server(t)

			store := NewPasswordStore("u", "p", WithBaseURL(server.URL))

			_, err := store.Token(context.Background())
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestPasswordStoreEmptyCredentials(t *testing.T) {
	store := NewPasswordStore("", "")

	_, err := store.Token(context.Background())
	assert.ErrorIs(t, err, cube.ErrInvalidCredentials)
}

func TestPasswordStoreMissingTokenInResponse(t *testing.T) {
	recorder := &loginRecorder{token: ""}
	server := recorder.server(t)

	store := NewPasswordStore("u", "p", WithBaseURL(server.URL))

	_, err := store.Token(context.Background())
	assert.ErrorIs(t, err, cube.ErrLoginFailed)
}

func TestManualStoreNeverLogsIn(t *testing.T) {
	store := NewTokenStore("manual-token")

	token, err := store.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "manual-token", token)
	assert.False(t, store.Renewable())
}

func TestManualStoreRejection(t *testing.T) {
	store := NewTokenStore("manual-token")
	store.Invalidate()

	_, err := store.Token(context.Background())
	assert.ErrorIs(t, err, cube.ErrInvalidToken)

	// rejection is permanent
	_, err = store.Token(context.Background())
	assert.ErrorIs(t, err, cube.ErrInvalidToken)
}

func TestManualStoreReadsJWTExpiry(t *testing.T) {
	expiry := time.Now().Add(2 * time.Hour).Truncate(time.Second)
	store := NewTokenStore(signedToken(t, expiry))

	assert.Equal(t, expiry.Unix(), store.Expiry().Unix())
}

func TestBearerExpiryNonJWT(t *testing.T) {
	assert.True(t, bearerExpiry("opaque-session-token").IsZero())
	assert.True(t, bearerExpiry("").IsZero())
}

func TestOAuth2Adapter(t *testing.T) {
	recorder := &loginRecorder{token: signedToken(t, time.Now().Add(time.Hour))}
	server := recorder.server(t)

	store := NewPasswordStore("u", "p", WithBaseURL(server.URL))

	token, err := store.OAuth2().Token()
	require.NoError(t, err)

	assert.NotEmpty(t, token.AccessToken)
	assert.Equal(t, "Bearer", token.TokenType)
	assert.False(t, token.Expiry.IsZero())
}
