// Package ucube is a client for the United Cube fan-community API. It logs
// in with a username/password pair or a manually obtained bearer token,
// keeps everything it fetches in a per-instance hierarchical cache (club →
// board → post → media/comments), and diffs notification feeds so hooks
// only ever see a notification once.
//
// Two execution modes are offered: Client blocks on every call, AsyncClient
// funnels all work through a single worker goroutine and hands back
// futures. Pick one per instance; the semantics are identical.
package ucube

import (
	"context"
	"fmt"
	"iter"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mujykun/ucube/cube"
	"github.com/mujykun/ucube/internal/auth"
	"github.com/mujykun/ucube/internal/cache"
	"github.com/mujykun/ucube/internal/events"
	"github.com/mujykun/ucube/internal/tracker"
	"github.com/mujykun/ucube/models"
)

// Sizing for the look-aside cache behind FetchPost. Only ad-hoc lookups
// land there; the followed hierarchy never evicts.
const (
	lookasideTTL  = 5 * time.Minute
	lookasideSize = 1_000
)

// Client is the blocking client. One call performs at most one blocking
// request sequence; nothing runs in the background. A Client instance
// serves one caller at a time: internal state is deliberately unlocked,
// and concurrent use is the AsyncClient's job.
type Client struct {
	cfg  Config
	opts options

	tokens  *auth.Store
	session *cube.Session
	store   *cache.Store
	sidecar *cache.Memory[*models.Post]
	bus     *events.Bus
	watch   *tracker.Tracker

	user *models.User
}

// New validates the configuration and assembles a client. No request is
// made until Start or a fetch call.
func New(cfg Config, opts ...Option) (*Client, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	var authOpts []auth.Option
	var sessionOpts []cube.Option
	if cfg.BaseURL != "" {
		authOpts = append(authOpts, auth.WithBaseURL(cfg.BaseURL))
		sessionOpts = append(sessionOpts, cube.WithBaseURL(cfg.BaseURL))
	}
	if cfg.HTTPClient != nil {
		authOpts = append(authOpts, auth.WithHTTPClient(cfg.HTTPClient))
		sessionOpts = append(sessionOpts, cube.WithHTTPClient(cfg.HTTPClient))
	}

	var tokens *auth.Store
	if cfg.Username != "" {
		tokens = auth.NewPasswordStore(cfg.Username, cfg.Password, authOpts...)
	} else {
		tokens = auth.NewTokenStore(cfg.Token, authOpts...)
	}

	session, err := cube.NewSession(tokens, sessionOpts...)
	if err != nil {
		return nil, err
	}

	c := &Client{
		cfg:     cfg,
		opts:    o,
		tokens:  tokens,
		session: session,
		store:   cache.New(),
		sidecar: cache.NewMemory[*models.Post](lookasideTTL, lookasideSize),
		bus:     events.New(),
	}
	c.watch = tracker.New(c.trackerFetch, c.followedSlugs, c.bus)

	return c, nil
}

// Start logs in, verifies the account, and builds the initial cache:
// followed clubs, then boards, posts and comments according to the
// configured options. Calling Start again resets the cache and reloads.
func (c *Client) Start(ctx context.Context) error {
	c.store.Clear()

	user, err := c.Me(ctx)
	if err != nil {
		return fmt.Errorf("verify account: %w", err)
	}
	log.Debug().Str("user", user.Slug).Msg("account verified")

	clubs, err := c.FetchClubs(ctx)
	if err != nil {
		return err
	}

	if c.opts.followAll {
		clubs, err = c.followEverything(ctx, clubs)
		if err != nil {
			return err
		}
	}

	if c.opts.loadBoards {
		if err := c.loadHierarchy(ctx, clubs); err != nil {
			return err
		}
	}

	stats := c.store.Stats()
	log.Debug().
		Int("clubs", stats.Clubs).
		Int("boards", stats.Boards).
		Int("posts", stats.Posts).
		Msg("cache loaded")

	return nil
}

func (c *Client) loadHierarchy(ctx context.Context, clubs []*models.Club) error {
	for _, club := range clubs {
		boards, err := c.FetchBoards(ctx, club.Slug)
		if err != nil {
			return err
		}
		if !c.opts.loadPosts {
			continue
		}

		for _, board := range boards {
			if !c.opts.wantsCategory(board.Category) {
				continue
			}

			page, err := c.FetchPosts(ctx, board.Slug, 1)
			if err != nil {
				return err
			}
			if c.opts.commentsPerPost <= 0 {
				continue
			}

			for _, post := range page.Items {
				if _, err := c.fetchComments(ctx, post.Slug, 1, c.opts.commentsPerPost); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// RefreshNotifications checks every followed club's notification feed once
// and returns the never-before-seen notifications in ascending timestamp
// order. Registered hooks see each of them first, in the same order.
func (c *Client) RefreshNotifications(ctx context.Context) ([]*models.Notification, error) {
	return c.watch.Refresh(ctx)
}

// NotificationHook receives one newly-seen notification. A returned error
// is logged and does not stop later hooks or notifications.
type NotificationHook func(*models.Notification) error

// OnNotification registers a hook. Hooks run synchronously during
// RefreshNotifications, in registration order.
func (c *Client) OnNotification(hook NotificationHook) {
	c.bus.SubscribeNotifications(events.NotificationHook(hook))
}

// Club returns a cached club.
func (c *Client) Club(slug string) (*models.Club, bool) {
	return c.store.Club(slug)
}

// Clubs iterates the cached clubs lazily in first-seen order. The
// sequence restarts from the beginning on every range.
func (c *Client) Clubs() iter.Seq[*models.Club] {
	return c.store.Clubs()
}

// Boards returns a club's cached boards in first-seen order.
func (c *Client) Boards(clubSlug string) []*models.Board {
	return c.store.Boards(clubSlug)
}

// Posts returns a board's cached posts in first-seen order.
func (c *Client) Posts(boardSlug string) []*models.Post {
	return c.store.Posts(boardSlug)
}

// Post returns a cached post by slug, regardless of club.
func (c *Client) Post(slug string) (*models.Post, bool) {
	return c.store.PostBySlug(slug)
}

// PostIn returns a cached post only if it belongs to the given club.
func (c *Client) PostIn(clubSlug, postSlug string) (*models.Post, bool) {
	return c.store.Post(clubSlug, postSlug)
}

// Notifications returns a club's cached notifications in first-seen order.
func (c *Client) Notifications(clubSlug string) []*models.Notification {
	return c.store.Notifications(clubSlug)
}

// User returns the account verified by the last Me call, or nil before it.
func (c *Client) User() *models.User {
	return c.user
}

// Stats is a point-in-time view of the client's internals, shaped for
// health and stats endpoints.
type Stats struct {
	Clubs           int       `json:"clubs"`
	Boards          int       `json:"boards"`
	Posts           int       `json:"posts"`
	Comments        int       `json:"comments"`
	Notifications   int       `json:"notifications"`
	LookasideHits   int64     `json:"lookaside_hits"`
	LookasideMisses int64     `json:"lookaside_misses"`
	TrackerState    string    `json:"tracker_state"`
	LastRefresh     time.Time `json:"last_refresh,omitzero"`
}

// Stats reports cache contents and tracker status.
func (c *Client) Stats() Stats {
	hierarchy := c.store.Stats()
	lookaside := c.sidecar.Stats()

	return Stats{
		Clubs:           hierarchy.Clubs,
		Boards:          hierarchy.Boards,
		Posts:           hierarchy.Posts,
		Comments:        hierarchy.Comments,
		Notifications:   hierarchy.Notifications,
		LookasideHits:   lookaside.Hits,
		LookasideMisses: lookaside.Misses,
		TrackerState:    c.watch.State().String(),
		LastRefresh:     c.watch.LastRefresh(),
	}
}

// Close clears the cache and releases idle connections. The client must
// not be used afterwards.
func (c *Client) Close() error {
	c.store.Clear()

	if c.cfg.HTTPClient != nil {
		c.cfg.HTTPClient.CloseIdleConnections()
	} else {
		http.DefaultClient.CloseIdleConnections()
	}

	return nil
}

func (c *Client) trackerFetch(ctx context.Context, clubSlug string, page int) (models.Page[*models.Notification], error) {
	return c.FetchNotifications(ctx, clubSlug, page)
}

func (c *Client) followedSlugs() []string {
	var slugs []string
	for club := range c.store.Clubs() {
		slugs = append(slugs, club.Slug)
	}
	return slugs
}
