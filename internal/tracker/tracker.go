// Package tracker is the notification diff engine. Each refresh fetches
// the current notification feed for every followed club, compares it with
// the slugs this instance has already seen, and hands anything new to the
// event bus in ascending timestamp order.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mujykun/ucube/internal/events"
	"github.com/mujykun/ucube/models"
)

// State is the tracker's observable lifecycle state.
type State int32

const (
	// Idle means no check is running.
	Idle State = iota
	// Checking means a refresh is in flight.
	Checking
)

func (s State) String() string {
	if s == Checking {
		return "checking"
	}
	return "idle"
}

// ErrChecking is returned when Refresh is called while a previous refresh
// is still running. The overlapping call does nothing.
var ErrChecking = errors.New("notification check already running")

// FetchFunc returns one page of a club's notifications, newest first. The
// client wires this to its session, mapper and cache.
type FetchFunc func(ctx context.Context, clubSlug string, page int) (models.Page[*models.Notification], error)

// ClubsFunc lists the slugs of the clubs to check, in checking order.
type ClubsFunc func() []string

// Tracker diffs notification feeds against what has been seen before.
// Seen state only grows; it lives and dies with the owning client.
type Tracker struct {
	fetch FetchFunc
	clubs ClubsFunc
	bus   *events.Bus

	state       atomic.Int32
	lastRefresh atomic.Int64

	seen map[string]map[string]struct{}
}

// New creates a tracker over the given collaborators.
func New(fetch FetchFunc, clubs ClubsFunc, bus *events.Bus) *Tracker {
	return &Tracker{
		fetch: fetch,
		clubs: clubs,
		bus:   bus,
		seen:  make(map[string]map[string]struct{}),
	}
}

// State reports whether a check is currently running.
func (t *Tracker) State() State {
	return State(t.state.Load())
}

// LastRefresh reports when the last successful refresh finished, or the
// zero time before the first one.
func (t *Tracker) LastRefresh() time.Time {
	nanos := t.lastRefresh.Load()
	if nanos == 0 {
		return time.Time{}
	}
	return time.Unix(0, nanos)
}

// Refresh checks every followed club's feed once and returns the
// notifications this instance has not seen before, in ascending timestamp
// order. Each new notification is also dispatched to the bus's hooks, in
// the same order. Never-before-seen means exactly that: on the first
// refresh, the entire current feed counts as new.
//
// One page per club is checked per refresh; the page size is the fetch
// function's concern.
func (t *Tracker) Refresh(ctx context.Context) ([]*models.Notification, error) {
	if !t.state.CompareAndSwap(int32(Idle), int32(Checking)) {
		return nil, ErrChecking
	}
	defer t.state.Store(int32(Idle))

	var fresh []*models.Notification

	for _, clubSlug := range t.clubs() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page, err := t.fetch(ctx, clubSlug, 1)
		if err != nil {
			return nil, fmt.Errorf("check notifications for %s: %w", clubSlug, err)
		}

		known := t.seen[clubSlug]
		if known == nil {
			known = make(map[string]struct{})
			t.seen[clubSlug] = known
		}

		for _, n := range page.Items {
			if n == nil || n.Slug == "" {
				continue
			}
			if _, ok := known[n.Slug]; ok {
				continue
			}
			known[n.Slug] = struct{}{}
			fresh = append(fresh, n)
		}
	}

	slices.SortStableFunc(fresh, func(a, b *models.Notification) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})

	for _, n := range fresh {
		t.bus.PublishNotification(n)
	}

	if len(fresh) > 0 {
		log.Debug().Int("count", len(fresh)).Msg("new notifications")
	}
	t.lastRefresh.Store(time.Now().UnixNano())

	return fresh, nil
}
