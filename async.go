package ucube

import (
	"context"
	"errors"
	"sync"

	"github.com/mujykun/ucube/models"
)

// asyncQueueDepth bounds how many operations can be waiting for the worker
// before submission blocks.
const asyncQueueDepth = 16

// ErrClientClosed is returned by operations submitted after Close.
var ErrClientClosed = errors.New("client is closed")

// Future is the pending result of a submitted operation.
type Future[T any] struct {
	done  chan struct{}
	value T
	err   error
}

func newFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

func (f *Future[T]) resolve(value T, err error) {
	f.value = value
	f.err = err
	close(f.done)
}

// Wait blocks until the operation completes and returns its result.
// Cancelling ctx abandons the wait, not the operation: the worker still
// runs it to completion.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Err waits like Wait and reports only the error.
func (f *Future[T]) Err(ctx context.Context) error {
	_, err := f.Wait(ctx)
	return err
}

// Done is the future of an operation whose only result is its error.
type Done = Future[struct{}]

// AsyncClient is the cooperative-mode client: a single worker goroutine
// owns the core client, operations are submitted as closures, and results
// come back through futures. Because every cache mutation and read happens
// on that one goroutine, the core needs no locking, and operations execute
// strictly in submission order.
//
// Submitting is safe from any goroutine. The two modes are not meant to be
// mixed: a client instance is either blocking or async for its lifetime.
type AsyncClient struct {
	core *Client
	jobs chan func()
	done chan struct{}

	// mu guards the queue's lifecycle, not the core: a submission must
	// never race a Close into a closed channel.
	mu       sync.Mutex
	closed   bool
	closeErr error
}

// NewAsync validates the configuration, assembles the core client, and
// starts the worker. No request is made until an operation is submitted.
func NewAsync(cfg Config, opts ...Option) (*AsyncClient, error) {
	core, err := New(cfg, opts...)
	if err != nil {
		return nil, err
	}

	a := &AsyncClient{
		core: core,
		jobs: make(chan func(), asyncQueueDepth),
		done: make(chan struct{}),
	}
	go a.run()

	return a, nil
}

func (a *AsyncClient) run() {
	defer close(a.done)

	for job := range a.jobs {
		job()
	}
}

// submit queues an operation for the worker. After Close the future
// resolves immediately with ErrClientClosed.
func submit[T any](a *AsyncClient, op func(*Client) (T, error)) *Future[T] {
	f := newFuture[T]()

	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		var zero T
		f.resolve(zero, ErrClientClosed)
		return f
	}
	a.jobs <- func() {
		f.resolve(op(a.core))
	}
	a.mu.Unlock()

	return f
}

// Start runs the core Start sequence on the worker: login, account
// verification, initial cache load.
func (a *AsyncClient) Start(ctx context.Context) *Done {
	return submit(a, func(c *Client) (struct{}, error) {
		return struct{}{}, c.Start(ctx)
	})
}

// Me fetches the account behind the configured credentials.
func (a *AsyncClient) Me(ctx context.Context) *Future[*models.User] {
	return submit(a, func(c *Client) (*models.User, error) {
		return c.Me(ctx)
	})
}

// FetchClubs lists the account's followed clubs.
func (a *AsyncClient) FetchClubs(ctx context.Context) *Future[[]*models.Club] {
	return submit(a, func(c *Client) ([]*models.Club, error) {
		return c.FetchClubs(ctx)
	})
}

// FetchClub fetches a single club by slug.
func (a *AsyncClient) FetchClub(ctx context.Context, slug string) *Future[*models.Club] {
	return submit(a, func(c *Client) (*models.Club, error) {
		return c.FetchClub(ctx, slug)
	})
}

// FollowClub follows a club and fetches its full record.
func (a *AsyncClient) FollowClub(ctx context.Context, slug string) *Future[*models.Club] {
	return submit(a, func(c *Client) (*models.Club, error) {
		return c.FollowClub(ctx, slug)
	})
}

// FetchBoards lists a club's boards.
func (a *AsyncClient) FetchBoards(ctx context.Context, clubSlug string) *Future[[]*models.Board] {
	return submit(a, func(c *Client) ([]*models.Board, error) {
		return c.FetchBoards(ctx, clubSlug)
	})
}

// FetchPosts fetches one page of a board's feed.
func (a *AsyncClient) FetchPosts(ctx context.Context, boardSlug string, page int) *Future[models.Page[*models.Post]] {
	return submit(a, func(c *Client) (models.Page[*models.Post], error) {
		return c.FetchPosts(ctx, boardSlug, page)
	})
}

// FetchComments fetches one page of a post's comments.
func (a *AsyncClient) FetchComments(ctx context.Context, postSlug string, page int) *Future[models.Page[*models.Comment]] {
	return submit(a, func(c *Client) (models.Page[*models.Comment], error) {
		return c.FetchComments(ctx, postSlug, page)
	})
}

// FetchNotifications fetches one page of a club's notification feed.
func (a *AsyncClient) FetchNotifications(ctx context.Context, clubSlug string, page int) *Future[models.Page[*models.Notification]] {
	return submit(a, func(c *Client) (models.Page[*models.Notification], error) {
		return c.FetchNotifications(ctx, clubSlug, page)
	})
}

// FetchPost fetches a single post, serving repeats from cache.
func (a *AsyncClient) FetchPost(ctx context.Context, slug string) *Future[*models.Post] {
	return submit(a, func(c *Client) (*models.Post, error) {
		return c.FetchPost(ctx, slug)
	})
}

// RefreshNotifications runs a notification check on the worker and
// resolves with the newly-seen notifications in ascending timestamp order.
// Hooks fire on the worker goroutine before the future resolves.
func (a *AsyncClient) RefreshNotifications(ctx context.Context) *Future[[]*models.Notification] {
	return submit(a, func(c *Client) ([]*models.Notification, error) {
		return c.RefreshNotifications(ctx)
	})
}

// OnNotification registers a hook. Hooks run on the worker goroutine
// during notification refreshes, in registration order.
func (a *AsyncClient) OnNotification(hook NotificationHook) {
	a.core.OnNotification(hook)
}

// Clubs resolves with a snapshot of the cached clubs in first-seen order.
// The snapshot is taken on the worker, so it is consistent with respect to
// in-flight operations.
func (a *AsyncClient) Clubs() *Future[[]*models.Club] {
	return submit(a, func(c *Client) ([]*models.Club, error) {
		var clubs []*models.Club
		for club := range c.Clubs() {
			clubs = append(clubs, club)
		}
		return clubs, nil
	})
}

// Stats resolves with a point-in-time view of the client's internals.
func (a *AsyncClient) Stats() *Future[Stats] {
	return submit(a, func(c *Client) (Stats, error) {
		return c.Stats(), nil
	})
}

// Close stops accepting operations, lets the worker finish what is already
// queued, and tears the core client down. Close is idempotent.
func (a *AsyncClient) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.closed {
		a.closed = true
		close(a.jobs)
		<-a.done
		a.closeErr = a.core.Close()
	}
	return a.closeErr
}
