// Package models holds the typed view of the United Cube API: the entities
// the client hands back to callers, and the mapping from raw response
// payloads onto them. Mapping is tolerant: fields the service omits fall
// back to zero values, and only structurally foreign payloads fail.
package models

import (
	"time"

	"github.com/samber/lo"
)

// Base carries the identity shared by every entity. Two entities are the
// same entity when their slugs are equal; names are display-only.
type Base struct {
	Slug string
	Name string
}

func (b Base) String() string { return b.Name }

// BoardCategory groups boards by who writes in them.
type BoardCategory string

const (
	CategoryFromArtist BoardCategory = "from_artist"
	CategoryToArtist   BoardCategory = "to_artist"
	CategoryTalk       BoardCategory = "talk"
	CategoryNotice     BoardCategory = "notice"
)

// Club is the fan community for one artist or group.
type Club struct {
	Base
	ArtistName     string
	ColorOne       string
	ColorTwo       string
	Logo           *Media
	Thumbnail      *Media
	SmallThumbnail *Media
	ExternalURL    string
	RegisteredAt   time.Time
}

// Board is a posting area inside a club.
type Board struct {
	Base
	ClubSlug string
	Category BoardCategory
	Active   bool
}

// Post is a single feed entry on a board. Content is plain text: markup is
// stripped during mapping, with <br> tags turned into newlines. Comments
// are attached by the cache as they are fetched, not by the mapper.
type Post struct {
	Base
	BoardSlug string
	Content   string
	Media     []Media
	Comments  []*Comment
	CreatedAt time.Time
}

func (p *Post) String() string { return p.Content }

// Images returns the post's image attachments, in service order.
func (p *Post) Images() []Media {
	return lo.Filter(p.Media, func(m Media, _ int) bool { return m.Kind == MediaImage })
}

// Videos returns the post's video attachments, in service order.
func (p *Post) Videos() []Media {
	return lo.Filter(p.Media, func(m Media, _ int) bool { return m.Kind == MediaVideo })
}

// MediaKind discriminates Media variants.
type MediaKind int

const (
	MediaUnknown MediaKind = iota
	MediaImage
	MediaVideo
)

func (k MediaKind) String() string {
	switch k {
	case MediaImage:
		return "image"
	case MediaVideo:
		return "video"
	default:
		return "unknown"
	}
}

// Media is one attachment on a post. Kind selects which variant fields are
// meaningful: images carry dimensions and byte size, videos carry a
// thumbnail URL. Attachments with a type code this library does not know
// keep their raw code and MediaUnknown rather than being dropped.
type Media struct {
	Base
	Kind      MediaKind
	PostSlug  string
	URL       string
	Width     int
	Height    int
	Size      int
	Thumbnail string
	TypeCode  string
}

// Comment is a reply on a post.
type Comment struct {
	Base
	PostSlug  string
	Author    string
	Body      string
	CreatedAt time.Time
}

func (c *Comment) String() string { return c.Body }

// User is the account behind the configured credentials.
type User struct {
	Base
	Nickname     string
	ProfileImage string
}

// Notification is one entry in a club's notification feed. Slug is the
// identity; CreatedAt orders notifications but does not identify them.
type Notification struct {
	Base
	ClubSlug  string
	PostSlug  string
	Title     string
	Body      string
	Read      bool
	CreatedAt time.Time
}

// Page is one page of a listing endpoint.
type Page[T any] struct {
	Items   []T
	Number  int
	PerPage int
	HasNext bool
}
