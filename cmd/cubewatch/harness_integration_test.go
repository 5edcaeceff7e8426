//go:build integration

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mujykun/ucube"
	"github.com/mujykun/ucube/internal/server"
	"github.com/mujykun/ucube/internal/testhelpers"
	"github.com/mujykun/ucube/internal/watch"
)

// DaemonTestHarness manages the complete environment for daemon integration
// tests: a mock United Cube API with one followed club, a started async
// client, the watch profile store, and the admin server.
type DaemonTestHarness struct {
	t       *testing.T
	Server  *httptest.Server
	Cube    *testhelpers.CubeServer
	Client  *ucube.AsyncClient
	Watches *watch.Store
}

// NewDaemonTestHarness boots the daemon's moving parts the way launchDaemon
// wires them, minus the listener and signal handling. Cleanup is handled
// automatically via t.Cleanup().
func NewDaemonTestHarness(t *testing.T) *DaemonTestHarness {
	t.Helper()
	testhelpers.SetupLogger(t)

	hooks := server.ShutdownHooks{}
	t.Cleanup(func() {
		hooks.Execute(t.Context())
	})

	cube := testhelpers.SetupCubeServer(t)
	cube.AddClub(testhelpers.ClubFixture{
		Slug:     "stayc",
		Name:     "STAYC",
		Followed: true,
		Boards: []testhelpers.BoardFixture{
			{
				Slug:     "stayc-notice",
				Name:     "Notice",
				Category: "from_artist",
				Posts: []testhelpers.PostFixture{
					{
						Slug:      "post-1",
						Content:   "<p>hello</p>",
						CreatedAt: time.Date(2021, 3, 1, 9, 0, 0, 0, time.UTC),
					},
				},
			},
		},
	})

	account := cube.Account()
	client, err := ucube.NewAsync(ucube.Config{
		Username: account.Username,
		Password: account.Password,
		BaseURL:  cube.URL(),
	})
	require.NoError(t, err)
	hooks.Add("client", client.Close)

	ctx := context.Background()
	require.NoError(t, client.Start(ctx).Err(ctx))

	watches := watch.NewStore()

	adminServer := httptest.NewServer(configureAdminRoutes(client, watches))
	hooks.AddClose("admin-server", adminServer)

	return &DaemonTestHarness{
		t:       t,
		Server:  adminServer,
		Cube:    cube,
		Client:  client,
		Watches: watches,
	}
}

// Response wraps a raw HTTP response for low-level assertions.
type Response struct {
	StatusCode int
	Body       []byte
	Headers    http.Header
}

// Request performs a request against the admin server and returns the raw
// response.
func (h *DaemonTestHarness) Request(method, path string, body io.Reader) (*Response, error) {
	req, err := http.NewRequest(method, h.Server.URL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Body:       bodyBytes,
		Headers:    resp.Header,
	}, nil
}

// Stats fetches and parses the admin stats endpoint.
func (h *DaemonTestHarness) Stats() (map[string]any, error) {
	resp, err := h.Request("GET", "/stats", nil)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("stats returned %d: %s", resp.StatusCode, resp.Body)
	}

	var result map[string]any
	if err := json.Unmarshal(resp.Body, &result); err != nil {
		return nil, fmt.Errorf("unmarshal JSON: %w", err)
	}

	return result, nil
}
