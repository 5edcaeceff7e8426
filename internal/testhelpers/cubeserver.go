// Package testhelpers provides a scriptable mock of the United Cube API
// for tests, plus shared test plumbing.
package testhelpers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"
)

// MediaBaseURL is the base_url the mock reports in payloads that carry
// relative media paths.
const MediaBaseURL = "https://cdn.cube.example"

// Account is the username/password pair the mock accepts at login.
type Account struct {
	Username string
	Password string
	Slug     string
	Nickname string
}

// ClubFixture describes one club and its boards.
type ClubFixture struct {
	Slug       string
	Name       string
	ArtistName string
	Followed   bool
	Boards     []BoardFixture
}

// BoardFixture describes one board and its posts.
type BoardFixture struct {
	Slug     string
	Name     string
	Category string
	Inactive bool
	Posts    []PostFixture
}

// PostFixture describes one post, its attachments and its comments.
type PostFixture struct {
	Slug      string
	Content   string
	CreatedAt time.Time
	Media     []MediaFixture
	Comments  []CommentFixture
}

// MediaFixture is one attachment in wire form. TypeCode "601" is an image
// (Path relative to the payload base URL), "602" a video (absolute URL).
type MediaFixture struct {
	TypeCode string
	Slug     string
	Path     string
	URL      string
	Title    string
	Image    string
	Width    int
	Height   int
	Size     int
}

// NotificationFixture is one entry of a club's notification feed.
type NotificationFixture struct {
	Slug      string
	PostSlug  string
	Title     string
	Content   string
	Read      bool
	CreatedAt time.Time
}

// CommentFixture is one comment on a post.
type CommentFixture struct {
	Slug      string
	Author    string
	Content   string
	CreatedAt time.Time
}

// CubeServer is a configurable mock United Cube API. It validates bearer
// tokens it issued itself (or that were pre-seeded with SeedToken), serves
// the club/board/feed/comment/notification hierarchy from fixtures, and
// keeps request counters for assertions. All methods are safe for
// concurrent use with the running server.
type CubeServer struct {
	Server *httptest.Server

	mu        sync.Mutex
	account   Account
	tokens    map[string]bool
	nextToken int

	clubs     map[string]*ClubFixture
	clubOrder []string
	notifs    map[string][]NotificationFixture

	failures map[string]int

	loginCount   int
	requestCount int
	lastAuth     string
}

// SetupCubeServer starts a mock API with a default account and no clubs.
// The server is shut down with the test.
func SetupCubeServer(t *testing.T) *CubeServer {
	t.Helper()

	m := &CubeServer{
		account: Account{
			Username: "fan@example.com",
			Password: "cube-pw",
			Slug:     "user-1",
			Nickname: "fan",
		},
		tokens:   make(map[string]bool),
		clubs:    make(map[string]*ClubFixture),
		notifs:   make(map[string][]NotificationFixture),
		failures: make(map[string]int),
	}

	router := http.NewServeMux()
	router.HandleFunc("POST /v1/auth/login", m.handleLogin)
	router.HandleFunc("GET /v1/me", m.authed(m.handleMe))
	router.HandleFunc("GET /v1/clubs", m.authed(m.handleClubs))
	router.HandleFunc("GET /v1/clubs/{slug}", m.authed(m.handleClub))
	router.HandleFunc("POST /v1/clubs/{slug}/follow", m.authed(m.handleFollow))
	router.HandleFunc("GET /v1/boards", m.authed(m.handleBoards))
	router.HandleFunc("GET /v1/feeds", m.authed(m.handleFeeds))
	router.HandleFunc("GET /v1/comments", m.authed(m.handleComments))
	router.HandleFunc("GET /v1/posts/{slug}", m.authed(m.handlePost))
	router.HandleFunc("GET /v1/notifications", m.authed(m.handleNotifications))

	m.Server = httptest.NewServer(router)
	t.Cleanup(m.Server.Close)

	return m
}

// URL returns the server's base address.
func (m *CubeServer) URL() string { return m.Server.URL }

// Account returns the username/password pair the mock accepts.
func (m *CubeServer) Account() Account {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.account
}

// AddClub registers a club fixture. Boards and posts ride along.
func (m *CubeServer) AddClub(club ClubFixture) {
	m.mu.Lock()
	defer m.mu.Unlock()

	copied := club
	m.clubs[club.Slug] = &copied
	m.clubOrder = append(m.clubOrder, club.Slug)
}

// AddNotification appends one notification to a club's feed.
func (m *CubeServer) AddNotification(clubSlug string, n NotificationFixture) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifs[clubSlug] = append(m.notifs[clubSlug], n)
}

// SeedToken registers a bearer token as valid without a login, for
// manual-token flows.
func (m *CubeServer) SeedToken(token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[token] = true
}

// RevokeTokens invalidates every token issued or seeded so far. Requests
// fail with 401 until the next login.
func (m *CubeServer) RevokeTokens() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens = make(map[string]bool)
}

// FailWith makes one route answer with a fixed status instead of its
// payload. The key is "METHOD /v1/path"; status 0 removes the override.
func (m *CubeServer) FailWith(route string, status int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if status == 0 {
		delete(m.failures, route)
		return
	}
	m.failures[route] = status
}

// LoginCount reports how many login attempts the mock has seen.
func (m *CubeServer) LoginCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loginCount
}

// Requests reports how many authenticated requests the mock has seen.
func (m *CubeServer) Requests() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requestCount
}

// LastAuthorization returns the Authorization header of the last
// authenticated request.
func (m *CubeServer) LastAuthorization() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastAuth
}

func (m *CubeServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.loginCount++

	if status, ok := m.failures["POST /v1/auth/login"]; ok {
		w.WriteHeader(status)
		return
	}

	var body struct {
		ID       string `json:"id"`
		Password string `json:"pw"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if body.ID != m.account.Username || body.Password != m.account.Password {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	m.nextToken++
	token := fmt.Sprintf("cube-token-%d", m.nextToken)
	m.tokens[token] = true

	writeJSON(w, map[string]string{
		"token":         token,
		"refresh_token": fmt.Sprintf("cube-refresh-%d", m.nextToken),
	})
}

// authed wraps a handler with bearer validation, request counting and
// failure overrides.
func (m *CubeServer) authed(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m.mu.Lock()
		m.requestCount++
		m.lastAuth = r.Header.Get("Authorization")

		token, hasBearer := bearerToken(r)
		if !hasBearer || !m.tokens[token] {
			m.mu.Unlock()
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		route := r.Method + " " + r.URL.Path
		if status, ok := m.failures[route]; ok {
			m.mu.Unlock()
			w.WriteHeader(status)
			return
		}
		m.mu.Unlock()

		next(w, r)
	}
}

func bearerToken(r *http.Request) (string, bool) {
	const prefix = "Bearer "
	auth := r.Header.Get("Authorization")
	if len(auth) <= len(prefix) || auth[:len(prefix)] != prefix {
		return "", false
	}
	return auth[len(prefix):], true
}

func (m *CubeServer) handleMe(w http.ResponseWriter, _ *http.Request) {
	m.mu.Lock()
	account := m.account
	m.mu.Unlock()

	writeJSON(w, map[string]any{
		"slug":         account.Slug,
		"nick_name":    account.Nickname,
		"profile_path": "/files/profiles/" + account.Slug + ".png",
		"base_url":     MediaBaseURL,
	})
}

func (m *CubeServer) handleClubs(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	defer m.mu.Unlock()

	all := r.URL.Query().Get("all") == "true"

	var items []any
	for _, slug := range m.clubOrder {
		club := m.clubs[slug]
		if !all && !club.Followed {
			continue
		}
		items = append(items, clubPayload(club))
	}

	writePage(w, r, items)
}

func (m *CubeServer) handleClub(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	defer m.mu.Unlock()

	club, ok := m.clubs[r.PathValue("slug")]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	writeJSON(w, clubPayload(club))
}

func (m *CubeServer) handleFollow(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	defer m.mu.Unlock()

	club, ok := m.clubs[r.PathValue("slug")]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	club.Followed = true
	writeJSON(w, map[string]string{"slug": club.Slug})
}

func (m *CubeServer) handleBoards(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	defer m.mu.Unlock()

	clubSlug := r.URL.Query().Get("club")
	club, ok := m.clubs[clubSlug]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	var items []any
	for _, board := range club.Boards {
		items = append(items, map[string]any{
			"slug":        board.Slug,
			"name":        board.Name,
			"club_slug":   club.Slug,
			"category":    board.Category,
			"active_flag": !board.Inactive,
		})
	}

	writePage(w, r, items)
}

func (m *CubeServer) handleFeeds(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	defer m.mu.Unlock()

	boardSlug := r.URL.Query().Get("board")
	board, ok := m.findBoard(boardSlug)
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	var items []any
	for i := range board.Posts {
		items = append(items, postPayload(boardSlug, &board.Posts[i]))
	}

	writePage(w, r, items)
}

func (m *CubeServer) handleComments(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	defer m.mu.Unlock()

	postSlug := r.URL.Query().Get("post")
	post, _, ok := m.findPost(postSlug)
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	var items []any
	for _, comment := range post.Comments {
		items = append(items, map[string]any{
			"slug":              comment.Slug,
			"post_slug":         postSlug,
			"nick_name":         comment.Author,
			"content":           comment.Content,
			"register_datetime": wireTime(comment.CreatedAt),
		})
	}

	writePage(w, r, items)
}

func (m *CubeServer) handlePost(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	defer m.mu.Unlock()

	post, boardSlug, ok := m.findPost(r.PathValue("slug"))
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	writeJSON(w, postPayload(boardSlug, post))
}

func (m *CubeServer) handleNotifications(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	defer m.mu.Unlock()

	clubSlug := r.URL.Query().Get("club")
	if _, ok := m.clubs[clubSlug]; !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	feed := m.notifs[clubSlug]
	var items []any
	// newest first, like the service
	for i := len(feed) - 1; i >= 0; i-- {
		n := feed[i]
		items = append(items, map[string]any{
			"slug":              n.Slug,
			"club_slug":         clubSlug,
			"post_slug":         n.PostSlug,
			"title":             n.Title,
			"content":           n.Content,
			"is_read":           n.Read,
			"register_datetime": wireTime(n.CreatedAt),
		})
	}

	writePage(w, r, items)
}

func (m *CubeServer) findBoard(slug string) (*BoardFixture, bool) {
	for _, clubSlug := range m.clubOrder {
		club := m.clubs[clubSlug]
		for i := range club.Boards {
			if club.Boards[i].Slug == slug {
				return &club.Boards[i], true
			}
		}
	}
	return nil, false
}

func (m *CubeServer) findPost(slug string) (*PostFixture, string, bool) {
	for _, clubSlug := range m.clubOrder {
		club := m.clubs[clubSlug]
		for i := range club.Boards {
			board := &club.Boards[i]
			for j := range board.Posts {
				if board.Posts[j].Slug == slug {
					return &board.Posts[j], board.Slug, true
				}
			}
		}
	}
	return nil, "", false
}

func clubPayload(club *ClubFixture) map[string]any {
	return map[string]any{
		"slug":        club.Slug,
		"name":        club.Name,
		"artist_name": club.ArtistName,
		"color_1":     "#111111",
		"color_2":     "#222222",
		"artist_logo_file": map[string]any{
			"path":   "/files/logos/" + club.Slug + ".png",
			"width":  256,
			"height": 256,
			"size":   1024,
		},
		"register_datetime": wireTime(time.Date(2020, 3, 1, 12, 0, 0, 0, time.UTC)),
		"base_url":          MediaBaseURL,
	}
}

func postPayload(boardSlug string, post *PostFixture) map[string]any {
	media := make([]any, 0, len(post.Media))
	for _, mf := range post.Media {
		media = append(media, map[string]any{
			"type_code": mf.TypeCode,
			"data": map[string]any{
				"slug":   mf.Slug,
				"path":   mf.Path,
				"url":    mf.URL,
				"title":  mf.Title,
				"image":  mf.Image,
				"width":  mf.Width,
				"height": mf.Height,
				"size":   mf.Size,
			},
		})
	}

	return map[string]any{
		"slug":              post.Slug,
		"board_slug":        boardSlug,
		"content":           post.Content,
		"media":             media,
		"register_datetime": wireTime(post.CreatedAt),
		"base_url":          MediaBaseURL,
	}
}

// writePage serves the given items as the service's paged envelope,
// honoring per_page/page query parameters.
func writePage(w http.ResponseWriter, r *http.Request, items []any) {
	perPage := queryInt(r, "per_page", 30)
	page := queryInt(r, "page", 1)

	start := (page - 1) * perPage
	end := start + perPage
	if start > len(items) {
		start = len(items)
	}
	if end > len(items) {
		end = len(items)
	}

	writeJSON(w, map[string]any{
		"items":    items[start:end],
		"page":     page,
		"per_page": perPage,
		"has_next": end < len(items),
	})
}

func queryInt(r *http.Request, key string, fallback int) int {
	value, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || value < 1 {
		return fallback
	}
	return value
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	data, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to marshal JSON: %v", err), http.StatusInternalServerError)
		return
	}
	_, _ = w.Write(data)
}

func wireTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("2006-01-02T15:04:05")
}
