package ucube

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/mujykun/ucube/models"
)

// The fetch operations share one shape: authenticated request, tolerant
// payload mapping, merge into the cache, return the canonical (cached)
// instances. Pagination parameters follow the service's envelope:
// per_page/page on the request, has_next on the response.

// Me verifies the configured credentials against the account endpoint and
// returns the account. The first call doubles as the login check: a manual
// token that fails here is permanently rejected.
func (c *Client) Me(ctx context.Context) (*models.User, error) {
	data, err := c.session.Get(ctx, "me", nil)
	if err != nil {
		return nil, err
	}

	user, err := models.ParseUser(data)
	if err != nil {
		return nil, err
	}

	c.user = user
	return user, nil
}

// FetchClubs lists every club the account follows, following pagination to
// the end, and merges them into the cache.
func (c *Client) FetchClubs(ctx context.Context) ([]*models.Club, error) {
	clubs, err := fetchAll(ctx, c, "clubs", nil, models.ParseClubPage)
	if err != nil {
		return nil, fmt.Errorf("fetch followed clubs: %w", err)
	}

	merged := make([]*models.Club, 0, len(clubs))
	for _, club := range clubs {
		merged = append(merged, c.store.MergeClub(club))
	}
	return merged, nil
}

// FetchClub fetches a single club by slug and merges it into the cache.
func (c *Client) FetchClub(ctx context.Context, slug string) (*models.Club, error) {
	data, err := c.session.Get(ctx, "clubs/"+slug, nil)
	if err != nil {
		return nil, err
	}

	club, err := models.ParseClub(data)
	if err != nil {
		return nil, err
	}

	return c.store.MergeClub(club), nil
}

// FollowClub follows a club on behalf of the account, then fetches it so
// the cache picks up the full club record.
func (c *Client) FollowClub(ctx context.Context, slug string) (*models.Club, error) {
	if _, err := c.session.Post(ctx, "clubs/"+slug+"/follow", nil, nil); err != nil {
		return nil, fmt.Errorf("follow club %s: %w", slug, err)
	}
	return c.FetchClub(ctx, slug)
}

// followEverything discovers every club on the service and follows the ones
// the account does not follow yet. Returns the full followed set.
func (c *Client) followEverything(ctx context.Context, followed []*models.Club) ([]*models.Club, error) {
	known := make(map[string]struct{}, len(followed))
	for _, club := range followed {
		known[club.Slug] = struct{}{}
	}

	query := url.Values{}
	query.Set("all", "true")
	all, err := fetchAll(ctx, c, "clubs", query, models.ParseClubPage)
	if err != nil {
		return nil, fmt.Errorf("discover clubs: %w", err)
	}

	for _, club := range all {
		if _, ok := known[club.Slug]; ok {
			continue
		}
		joined, err := c.FollowClub(ctx, club.Slug)
		if err != nil {
			return nil, err
		}
		followed = append(followed, joined)
	}

	return followed, nil
}

// FetchBoards lists a club's boards, following pagination to the end, and
// merges them into the cache.
func (c *Client) FetchBoards(ctx context.Context, clubSlug string) ([]*models.Board, error) {
	query := url.Values{}
	query.Set("club", clubSlug)

	boards, err := fetchAll(ctx, c, "boards", query, models.ParseBoardPage)
	if err != nil {
		return nil, fmt.Errorf("fetch boards for %s: %w", clubSlug, err)
	}

	merged := make([]*models.Board, 0, len(boards))
	for _, board := range boards {
		merged = append(merged, c.store.MergeBoard(clubSlug, board))
	}
	return merged, nil
}

// FetchPosts fetches one page of a board's feed and merges the posts into
// the cache. Posts belonging to a board that has not been fetched yet stay
// reachable by slug and join the hierarchy when the board arrives.
func (c *Client) FetchPosts(ctx context.Context, boardSlug string, page int) (models.Page[*models.Post], error) {
	query := url.Values{}
	query.Set("board", boardSlug)

	result, err := fetchPage(ctx, c, "feeds", query, page, c.cfg.pageSize(), models.ParseFeedPage)
	if err != nil {
		return models.Page[*models.Post]{}, fmt.Errorf("fetch posts for %s: %w", boardSlug, err)
	}

	clubSlug := ""
	if board, ok := c.store.Board(boardSlug); ok {
		clubSlug = board.ClubSlug
	}

	for i, post := range result.Items {
		if post.BoardSlug == "" {
			post.BoardSlug = boardSlug
		}
		result.Items[i] = c.store.MergePost(clubSlug, post)
	}

	return result, nil
}

// FetchComments fetches one page of a post's comments and attaches them to
// the cached post. Comments for a post the cache has never seen are
// returned but not retained.
func (c *Client) FetchComments(ctx context.Context, postSlug string, page int) (models.Page[*models.Comment], error) {
	return c.fetchComments(ctx, postSlug, page, c.cfg.pageSize())
}

func (c *Client) fetchComments(ctx context.Context, postSlug string, page, perPage int) (models.Page[*models.Comment], error) {
	query := url.Values{}
	query.Set("post", postSlug)

	result, err := fetchPage(ctx, c, "comments", query, page, perPage, models.ParseCommentPage)
	if err != nil {
		return models.Page[*models.Comment]{}, fmt.Errorf("fetch comments for %s: %w", postSlug, err)
	}

	if post := c.store.MergeComments(postSlug, result.Items); post != nil {
		for i, comment := range result.Items {
			for _, canonical := range post.Comments {
				if canonical.Slug == comment.Slug {
					result.Items[i] = canonical
					break
				}
			}
		}
	}

	return result, nil
}

// FetchNotifications fetches one page of a club's notification feed and
// merges it into the club's cached list. The notification tracker drives
// this once per followed club on every refresh.
func (c *Client) FetchNotifications(ctx context.Context, clubSlug string, page int) (models.Page[*models.Notification], error) {
	query := url.Values{}
	query.Set("club", clubSlug)

	result, err := fetchPage(ctx, c, "notifications", query, page, c.cfg.pageSize(), models.ParseNotificationPage)
	if err != nil {
		return models.Page[*models.Notification]{}, fmt.Errorf("fetch notifications for %s: %w", clubSlug, err)
	}

	c.store.MergeNotifications(clubSlug, result.Items)
	return result, nil
}

// FetchPost fetches a single post by slug. Posts already in the followed
// hierarchy are served from it; anything else goes through the look-aside
// cache, so resolving the same notification target repeatedly does not
// re-fetch. Look-aside entries expire; the hierarchy never does.
func (c *Client) FetchPost(ctx context.Context, slug string) (*models.Post, error) {
	if post, ok := c.store.PostBySlug(slug); ok {
		return post, nil
	}
	if post, ok := c.sidecar.Get(slug); ok {
		return post, nil
	}

	data, err := c.session.Get(ctx, "posts/"+slug, nil)
	if err != nil {
		return nil, err
	}

	post, err := models.ParsePost(data)
	if err != nil {
		return nil, err
	}

	c.sidecar.Set(slug, post)
	return post, nil
}

// fetchPage requests one page of a listing endpoint.
func fetchPage[T any](ctx context.Context, c *Client, path string, query url.Values, page, perPage int, parse func([]byte) (models.Page[T], error)) (models.Page[T], error) {
	if page < 1 {
		page = 1
	}
	query.Set("per_page", strconv.Itoa(perPage))
	query.Set("page", strconv.Itoa(page))

	data, err := c.session.Get(ctx, path, query)
	if err != nil {
		return models.Page[T]{}, err
	}

	return parse(data)
}

// fetchAll walks a listing endpoint from the first page to the last.
func fetchAll[T any](ctx context.Context, c *Client, path string, query url.Values, parse func([]byte) (models.Page[T], error)) ([]T, error) {
	if query == nil {
		query = url.Values{}
	}

	var items []T
	for page := 1; ; page++ {
		result, err := fetchPage(ctx, c, path, query, page, c.cfg.pageSize(), parse)
		if err != nil {
			return nil, err
		}

		items = append(items, result.Items...)
		if !result.HasNext {
			return items, nil
		}
	}
}
