// Package cache holds everything a client has fetched so far: the club →
// board → post hierarchy, per-club notification lists, and a small TTL
// look-aside for ad-hoc lookups outside the followed hierarchy.
package cache

import (
	"iter"

	"github.com/rs/zerolog/log"

	"github.com/mujykun/ucube/models"
)

// Store is the hierarchical cache. Merging is idempotent and updates
// entities in place, so references already handed to callers observe later
// refreshes. Nothing is evicted; Clear is the only removal.
//
// A Store belongs to one client instance and is not locked: the blocking
// client's single-caller contract (or the async client's single worker)
// serializes access.
type Store struct {
	clubs     map[string]*clubEntry
	clubOrder []string

	// boards and posts are also indexed globally: the service addresses
	// them by bare slug, and notifications carry post slugs without club
	// context.
	boards map[string]*boardEntry
	posts  map[string]*models.Post

	postClub map[string]string
}

type clubEntry struct {
	club       *models.Club
	boardOrder []string
	notifs     map[string]*models.Notification
	notifOrder []string
}

type boardEntry struct {
	board     *models.Board
	clubSlug  string
	postOrder []string
}

// New creates an empty store.
func New() *Store {
	s := &Store{}
	s.Clear()
	return s
}

// Clear drops all cached content. Meant for client teardown.
func (s *Store) Clear() {
	s.clubs = make(map[string]*clubEntry)
	s.clubOrder = nil
	s.boards = make(map[string]*boardEntry)
	s.posts = make(map[string]*models.Post)
	s.postClub = make(map[string]string)
}

// MergeClub folds a club into the cache and returns the canonical
// instance: the already-cached club updated in place, or the given one on
// first sight.
func (s *Store) MergeClub(club *models.Club) *models.Club {
	if club == nil || club.Slug == "" {
		log.Warn().Msg("discarding club without identity")
		return club
	}

	entry := s.ensureClub(club.Slug)
	mergeClub(entry.club, club)
	return entry.club
}

// MergeBoard folds a board into a club, preserving first-seen order.
func (s *Store) MergeBoard(clubSlug string, board *models.Board) *models.Board {
	if board == nil || board.Slug == "" {
		log.Warn().Str("club", clubSlug).Msg("discarding board without identity")
		return board
	}
	if board.ClubSlug == "" {
		board.ClubSlug = clubSlug
	}

	entry := s.ensureBoard(clubSlug, board.Slug)
	if entry.board == nil {
		entry.board = board
		return board
	}

	mergeBoard(entry.board, board)
	return entry.board
}

// MergePost folds a post into a club, routing it through the post's board
// and auto-creating a placeholder board when the board has not been
// fetched yet. An empty clubSlug stores the post in the global index only:
// it stays reachable by slug without being attached to any hierarchy node.
func (s *Store) MergePost(clubSlug string, post *models.Post) *models.Post {
	if post == nil || post.Slug == "" {
		log.Warn().Str("club", clubSlug).Msg("discarding post without identity")
		return post
	}

	existing, known := s.posts[post.Slug]
	if known {
		mergePost(existing, post)
		post = existing
	} else {
		s.posts[post.Slug] = post
	}

	if clubSlug == "" {
		return post
	}

	s.postClub[post.Slug] = clubSlug
	s.ensureClub(clubSlug)

	if post.BoardSlug != "" {
		board := s.ensureBoard(clubSlug, post.BoardSlug)
		if !known {
			board.postOrder = append(board.postOrder, post.Slug)
		}
	}

	return post
}

// MergeComments attaches comments to an already-cached post, merged by
// slug. Comments for posts the cache has never seen are dropped.
func (s *Store) MergeComments(postSlug string, comments []*models.Comment) *models.Post {
	post, ok := s.posts[postSlug]
	if !ok {
		log.Warn().Str("post", postSlug).Msg("discarding comments for unknown post")
		return nil
	}

	for _, comment := range comments {
		if comment == nil || comment.Slug == "" {
			continue
		}
		if comment.PostSlug == "" {
			comment.PostSlug = postSlug
		}
		mergeCommentInto(post, comment)
	}

	return post
}

// MergeNotifications folds a page of notifications into a club's list,
// merged by slug, preserving first-seen order.
func (s *Store) MergeNotifications(clubSlug string, items []*models.Notification) {
	entry := s.ensureClub(clubSlug)

	for _, n := range items {
		if n == nil || n.Slug == "" {
			continue
		}
		if n.ClubSlug == "" {
			n.ClubSlug = clubSlug
		}

		if existing, ok := entry.notifs[n.Slug]; ok {
			mergeNotification(existing, n)
			continue
		}
		entry.notifs[n.Slug] = n
		entry.notifOrder = append(entry.notifOrder, n.Slug)
	}
}

// Club returns a cached club by slug.
func (s *Store) Club(slug string) (*models.Club, bool) {
	entry, ok := s.clubs[slug]
	if !ok {
		return nil, false
	}
	return entry.club, true
}

// Clubs iterates cached clubs lazily in first-seen order. The sequence is
// restartable: each range starts over from the beginning.
func (s *Store) Clubs() iter.Seq[*models.Club] {
	return func(yield func(*models.Club) bool) {
		for _, slug := range s.clubOrder {
			if !yield(s.clubs[slug].club) {
				return
			}
		}
	}
}

// Board returns a cached board by slug.
func (s *Store) Board(slug string) (*models.Board, bool) {
	entry, ok := s.boards[slug]
	if !ok {
		return nil, false
	}
	return entry.board, true
}

// Boards returns a club's boards in first-seen order.
func (s *Store) Boards(clubSlug string) []*models.Board {
	entry, ok := s.clubs[clubSlug]
	if !ok {
		return nil
	}

	boards := make([]*models.Board, 0, len(entry.boardOrder))
	for _, slug := range entry.boardOrder {
		boards = append(boards, s.boards[slug].board)
	}
	return boards
}

// Posts returns a board's posts in first-seen order.
func (s *Store) Posts(boardSlug string) []*models.Post {
	entry, ok := s.boards[boardSlug]
	if !ok {
		return nil
	}

	posts := make([]*models.Post, 0, len(entry.postOrder))
	for _, slug := range entry.postOrder {
		posts = append(posts, s.posts[slug])
	}
	return posts
}

// Post returns a cached post scoped to a club: it only reports posts that
// were merged under that club.
func (s *Store) Post(clubSlug, postSlug string) (*models.Post, bool) {
	if s.postClub[postSlug] != clubSlug {
		return nil, false
	}
	post, ok := s.posts[postSlug]
	return post, ok
}

// PostBySlug returns a cached post regardless of which club owns it.
// Notification handling uses this: notifications name posts without club
// context.
func (s *Store) PostBySlug(slug string) (*models.Post, bool) {
	post, ok := s.posts[slug]
	return post, ok
}

// Notifications returns a club's cached notifications in first-seen order.
func (s *Store) Notifications(clubSlug string) []*models.Notification {
	entry, ok := s.clubs[clubSlug]
	if !ok {
		return nil
	}

	notifs := make([]*models.Notification, 0, len(entry.notifOrder))
	for _, slug := range entry.notifOrder {
		notifs = append(notifs, entry.notifs[slug])
	}
	return notifs
}

// Stats reports entity counts for observability endpoints.
type Stats struct {
	Clubs         int `json:"clubs"`
	Boards        int `json:"boards"`
	Posts         int `json:"posts"`
	Comments      int `json:"comments"`
	Notifications int `json:"notifications"`
}

// Stats counts the cached entities.
func (s *Store) Stats() Stats {
	st := Stats{
		Clubs:  len(s.clubOrder),
		Boards: len(s.boards),
		Posts:  len(s.posts),
	}
	for _, post := range s.posts {
		st.Comments += len(post.Comments)
	}
	for _, entry := range s.clubs {
		st.Notifications += len(entry.notifOrder)
	}
	return st
}

func (s *Store) ensureClub(slug string) *clubEntry {
	if entry, ok := s.clubs[slug]; ok {
		return entry
	}

	// The club starts as a slug-only placeholder, enriched when a real
	// payload arrives. Posts and notifications merged for a club that has
	// not been fetched yet are kept, not lost.
	entry := &clubEntry{
		club:   &models.Club{Base: models.Base{Slug: slug}},
		notifs: make(map[string]*models.Notification),
	}
	s.clubs[slug] = entry
	s.clubOrder = append(s.clubOrder, slug)

	return entry
}

func (s *Store) ensureBoard(clubSlug, boardSlug string) *boardEntry {
	if entry, ok := s.boards[boardSlug]; ok {
		return entry
	}

	club := s.ensureClub(clubSlug)
	entry := &boardEntry{
		clubSlug: clubSlug,
		board: &models.Board{
			Base:     models.Base{Slug: boardSlug},
			ClubSlug: clubSlug,
		},
	}
	s.boards[boardSlug] = entry
	club.boardOrder = append(club.boardOrder, boardSlug)

	return entry
}

// assign overwrites dst only when src carries a value. Merges stay
// field-wise so partial list payloads never erase detail already fetched.
func assign[T comparable](dst *T, src T) {
	var zero T
	if src != zero {
		*dst = src
	}
}

func mergeClub(dst, src *models.Club) {
	assign(&dst.Name, src.Name)
	assign(&dst.ArtistName, src.ArtistName)
	assign(&dst.ColorOne, src.ColorOne)
	assign(&dst.ColorTwo, src.ColorTwo)
	assign(&dst.ExternalURL, src.ExternalURL)
	assign(&dst.RegisteredAt, src.RegisteredAt)
	if src.Logo != nil {
		dst.Logo = src.Logo
	}
	if src.Thumbnail != nil {
		dst.Thumbnail = src.Thumbnail
	}
	if src.SmallThumbnail != nil {
		dst.SmallThumbnail = src.SmallThumbnail
	}
}

func mergeBoard(dst, src *models.Board) {
	assign(&dst.Name, src.Name)
	assign(&dst.ClubSlug, src.ClubSlug)
	assign(&dst.Category, src.Category)
	dst.Active = src.Active
}

func mergePost(dst, src *models.Post) {
	assign(&dst.Name, src.Name)
	assign(&dst.BoardSlug, src.BoardSlug)
	assign(&dst.Content, src.Content)
	assign(&dst.CreatedAt, src.CreatedAt)
	if len(src.Media) > 0 {
		dst.Media = src.Media
	}
	for _, comment := range src.Comments {
		mergeCommentInto(dst, comment)
	}
}

func mergeCommentInto(post *models.Post, comment *models.Comment) {
	for _, existing := range post.Comments {
		if existing.Slug == comment.Slug {
			assign(&existing.Author, comment.Author)
			assign(&existing.Name, comment.Name)
			assign(&existing.Body, comment.Body)
			assign(&existing.CreatedAt, comment.CreatedAt)
			return
		}
	}
	post.Comments = append(post.Comments, comment)
}

func mergeNotification(dst, src *models.Notification) {
	assign(&dst.Name, src.Name)
	assign(&dst.Title, src.Title)
	assign(&dst.Body, src.Body)
	assign(&dst.ClubSlug, src.ClubSlug)
	assign(&dst.PostSlug, src.PostSlug)
	assign(&dst.CreatedAt, src.CreatedAt)
	dst.Read = src.Read
}
