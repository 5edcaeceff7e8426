package ucube

import (
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/mujykun/ucube/models"
)

// defaultPageSize bounds listing requests when the configuration does not
// say otherwise.
const defaultPageSize = 30

var validate = validator.New()

// Config carries everything one client instance needs. The library reads
// no environment variables and keeps no process-wide state: two clients
// with different configs are fully independent.
//
// Exactly one credential form must be set: the Username/Password pair, or
// a manually obtained bearer Token. A manual token is used as-is and never
// refreshed; once the service rejects it the client is done.
type Config struct {
	Username string `validate:"required_without=Token,excluded_with=Token"`
	Password string `validate:"required_with=Username"`
	Token    string `validate:"required_without=Username,excluded_with=Username"`

	// BaseURL overrides the remote address. For testing use.
	BaseURL string `validate:"omitempty,url"`

	// HTTPClient is used for every request when set. Wrapping its
	// transport is the supported way to add instrumentation or timeouts;
	// the client itself enforces no deadlines beyond the caller's context.
	HTTPClient *http.Client `validate:"-"`

	// PageSize bounds listing requests. Zero means the default of 30.
	PageSize int `validate:"gte=0,lte=100"`
}

func (c Config) validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func (c Config) pageSize() int {
	if c.PageSize == 0 {
		return defaultPageSize
	}
	return c.PageSize
}

type options struct {
	loadBoards      bool
	loadPosts       bool
	commentsPerPost int
	categories      []models.BoardCategory
	followAll       bool
}

func defaultOptions() options {
	return options{
		loadBoards: true,
		loadPosts:  true,
	}
}

// Option adjusts what Start loads and how the client behaves.
type Option func(*options)

// WithBoards controls whether Start loads each followed club's boards.
// Loading is on unless disabled; disabling it also disables post loading.
func WithBoards(load bool) Option {
	return func(o *options) {
		o.loadBoards = load
	}
}

// WithPosts controls whether Start loads the first page of posts for each
// loaded board. Loading is on unless disabled.
func WithPosts(load bool) Option {
	return func(o *options) {
		o.loadPosts = load
	}
}

// WithComments makes Start load up to perPost comments for every loaded
// post. Zero (the default) skips comment loading.
func WithComments(perPost int) Option {
	return func(o *options) {
		o.commentsPerPost = perPost
	}
}

// WithBoardCategories restricts board and post loading to the named
// categories. With no restriction, every board is loaded.
func WithBoardCategories(categories ...models.BoardCategory) Option {
	return func(o *options) {
		o.categories = categories
	}
}

// WithFollowAllClubs makes Start discover every club on the service and
// follow the ones the account does not follow yet.
func WithFollowAllClubs() Option {
	return func(o *options) {
		o.followAll = true
	}
}

func (o options) wantsCategory(category models.BoardCategory) bool {
	if len(o.categories) == 0 {
		return true
	}
	for _, c := range o.categories {
		if c == category {
			return true
		}
	}
	return false
}
