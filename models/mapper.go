package models

import (
	"fmt"
	"path"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/samber/lo"

	"github.com/mujykun/ucube/cube"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// mediaBase is where relative media paths resolve when a payload does not
// name its own base URL.
const mediaBase = "https://united-cube.com/"

// Wire type codes for post attachments.
const (
	codeImage = "601"
	codeVideo = "602"
)

// The wire structs mirror the service's JSON. Fields the service omits
// decode to zero values; that is the tolerance the Parse functions promise.

type envelope[T any] struct {
	Items   []T  `json:"items"`
	Page    int  `json:"page"`
	PerPage int  `json:"per_page"`
	HasNext bool `json:"has_next"`
}

type wireFile struct {
	Slug   string `json:"slug"`
	Path   string `json:"path"`
	Size   int    `json:"size"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

type wireClub struct {
	Slug           string    `json:"slug"`
	Name           string    `json:"name"`
	ArtistName     string    `json:"artist_name"`
	ColorOne       string    `json:"color_1"`
	ColorTwo       string    `json:"color_2"`
	ArtistLogo     *wireFile `json:"artist_logo_file"`
	Thumbnail      *wireFile `json:"thumbnail_file"`
	ThumbnailSmall *wireFile `json:"thumbnail_small_file"`
	ExternalURL    string    `json:"external_url"`
	RegisteredAt   string    `json:"register_datetime"`
	BaseURL        string    `json:"base_url"`
}

type wireBoard struct {
	Slug     string `json:"slug"`
	Name     string `json:"name"`
	ClubSlug string `json:"club_slug"`
	Category string `json:"category"`
	Active   bool   `json:"active_flag"`
}

type wireMedia struct {
	TypeCode string `json:"type_code"`
	Data     struct {
		Slug   string `json:"slug"`
		Path   string `json:"path"`
		URL    string `json:"url"`
		Title  string `json:"title"`
		Name   string `json:"name"`
		Image  string `json:"image"`
		Size   int    `json:"size"`
		Width  int    `json:"width"`
		Height int    `json:"height"`
	} `json:"data"`
}

type wirePost struct {
	Slug         string      `json:"slug"`
	Name         string      `json:"name"`
	BoardSlug    string      `json:"board_slug"`
	Content      string      `json:"content"`
	Media        []wireMedia `json:"media"`
	RegisteredAt string      `json:"register_datetime"`
	BaseURL      string      `json:"base_url"`
}

type wireComment struct {
	Slug         string `json:"slug"`
	PostSlug     string `json:"post_slug"`
	Author       string `json:"nick_name"`
	Content      string `json:"content"`
	RegisteredAt string `json:"register_datetime"`
}

type wireUser struct {
	Slug        string `json:"slug"`
	Name        string `json:"name"`
	Nickname    string `json:"nick_name"`
	ProfilePath string `json:"profile_path"`
	BaseURL     string `json:"base_url"`
}

type wireNotification struct {
	Slug         string `json:"slug"`
	ClubSlug     string `json:"club_slug"`
	PostSlug     string `json:"post_slug"`
	Title        string `json:"title"`
	Content      string `json:"content"`
	Read         bool   `json:"is_read"`
	RegisteredAt string `json:"register_datetime"`
}

// ParseClub maps a single-club payload.
func ParseClub(data []byte) (*Club, error) {
	var w wireClub
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, parseError("club", err)
	}
	return clubFromWire(w), nil
}

// ParseClubPage maps one page of the followed-clubs listing.
func ParseClubPage(data []byte) (Page[*Club], error) {
	return parsePage(data, "club page", clubFromWire)
}

// ParseBoardPage maps one page of a club's boards.
func ParseBoardPage(data []byte) (Page[*Board], error) {
	return parsePage(data, "board page", boardFromWire)
}

// ParseFeedPage maps one page of a board's posts.
func ParseFeedPage(data []byte) (Page[*Post], error) {
	return parsePage(data, "feed page", postFromWire)
}

// ParsePost maps a single-post payload.
func ParsePost(data []byte) (*Post, error) {
	var w wirePost
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, parseError("post", err)
	}
	return postFromWire(w), nil
}

// ParseCommentPage maps one page of a post's comments.
func ParseCommentPage(data []byte) (Page[*Comment], error) {
	return parsePage(data, "comment page", commentFromWire)
}

// ParseNotificationPage maps one page of a club's notifications.
func ParseNotificationPage(data []byte) (Page[*Notification], error) {
	return parsePage(data, "notification page", notificationFromWire)
}

// ParseUser maps the account payload returned by the me endpoint.
func ParseUser(data []byte) (*User, error) {
	var w wireUser
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, parseError("user", err)
	}

	name := w.Nickname
	if name == "" {
		name = w.Name
	}

	return &User{
		Base:         Base{Slug: w.Slug, Name: name},
		Nickname:     w.Nickname,
		ProfileImage: resolveURL(w.BaseURL, w.ProfilePath),
	}, nil
}

func parsePage[W, T any](data []byte, what string, convert func(W) T) (Page[T], error) {
	var env envelope[W]
	if err := json.Unmarshal(data, &env); err != nil {
		return Page[T]{}, parseError(what, err)
	}

	return Page[T]{
		Items:   lo.Map(env.Items, func(w W, _ int) T { return convert(w) }),
		Number:  env.Page,
		PerPage: env.PerPage,
		HasNext: env.HasNext,
	}, nil
}

func parseError(what string, err error) error {
	return fmt.Errorf("decode %s payload: %w: %w", what, cube.ErrSomethingWentWrong, err)
}

func clubFromWire(w wireClub) *Club {
	name := w.Name
	if name == "" {
		name = w.ArtistName
	}

	return &Club{
		Base:           Base{Slug: w.Slug, Name: name},
		ArtistName:     w.ArtistName,
		ColorOne:       w.ColorOne,
		ColorTwo:       w.ColorTwo,
		Logo:           fileMedia(w.ArtistLogo, w.BaseURL),
		Thumbnail:      fileMedia(w.Thumbnail, w.BaseURL),
		SmallThumbnail: fileMedia(w.ThumbnailSmall, w.BaseURL),
		ExternalURL:    w.ExternalURL,
		RegisteredAt:   parseTime(w.RegisteredAt),
	}
}

func boardFromWire(w wireBoard) *Board {
	return &Board{
		Base:     Base{Slug: w.Slug, Name: w.Name},
		ClubSlug: w.ClubSlug,
		Category: BoardCategory(w.Category),
		Active:   w.Active,
	}
}

func postFromWire(w wirePost) *Post {
	p := &Post{
		Base:      Base{Slug: w.Slug, Name: w.Name},
		BoardSlug: w.BoardSlug,
		Content:   StripHTML(w.Content),
		CreatedAt: parseTime(w.RegisteredAt),
	}

	p.Media = lo.Map(w.Media, func(m wireMedia, _ int) Media {
		return attachmentFromWire(m, w.Slug, w.BaseURL)
	})

	return p
}

func commentFromWire(w wireComment) *Comment {
	return &Comment{
		Base:      Base{Slug: w.Slug, Name: w.Author},
		PostSlug:  w.PostSlug,
		Author:    w.Author,
		Body:      StripHTML(w.Content),
		CreatedAt: parseTime(w.RegisteredAt),
	}
}

func notificationFromWire(w wireNotification) *Notification {
	return &Notification{
		Base:      Base{Slug: w.Slug, Name: w.Title},
		ClubSlug:  w.ClubSlug,
		PostSlug:  w.PostSlug,
		Title:     w.Title,
		Body:      StripHTML(w.Content),
		Read:      w.Read,
		CreatedAt: parseTime(w.RegisteredAt),
	}
}

// fileMedia builds the image attachment for a club's logo or thumbnail
// file. Nil in, nil out.
func fileMedia(w *wireFile, baseURL string) *Media {
	if w == nil {
		return nil
	}

	u := resolveURL(baseURL, w.Path)
	slug := w.Slug
	if slug == "" {
		slug = u
	}

	return &Media{
		Base:     Base{Slug: slug, Name: fileName(u)},
		Kind:     MediaImage,
		URL:      u,
		Width:    w.Width,
		Height:   w.Height,
		Size:     w.Size,
		TypeCode: codeImage,
	}
}

func attachmentFromWire(w wireMedia, postSlug, baseURL string) Media {
	m := Media{
		Base:     Base{Slug: w.Data.Slug},
		PostSlug: postSlug,
		TypeCode: w.TypeCode,
	}

	switch w.TypeCode {
	case codeImage:
		m.Kind = MediaImage
		m.URL = resolveURL(baseURL, w.Data.Path)
		m.Width = w.Data.Width
		m.Height = w.Data.Height
		m.Size = w.Data.Size
		m.Name = fileName(m.URL)
	case codeVideo:
		m.Kind = MediaVideo
		m.URL = w.Data.URL
		m.Thumbnail = w.Data.Image
		m.Name = w.Data.Title
		if m.Name == "" {
			m.Name = w.Data.Name
		}
	default:
		m.Kind = MediaUnknown
		m.URL = w.Data.URL
		if m.URL == "" {
			m.URL = resolveURL(baseURL, w.Data.Path)
		}
		m.Name = w.Data.Name
	}

	if m.Slug == "" {
		// Attachments without their own identity borrow the URL, matching
		// how the service treats direct links.
		m.Slug = m.URL
	}

	return m
}

// resolveURL joins a relative media path to its base URL. Absolute paths
// pass through untouched.
func resolveURL(base, p string) string {
	if p == "" {
		return ""
	}
	if strings.Contains(p, "://") {
		return p
	}
	if base == "" {
		base = mediaBase
	}
	return strings.TrimSuffix(base, "/") + "/" + strings.TrimPrefix(p, "/")
}

// fileName extracts the final path segment of a URL for display.
func fileName(u string) string {
	if u == "" {
		return ""
	}
	name := path.Base(strings.TrimSuffix(u, "/"))
	if name == "." || name == "/" {
		return ""
	}
	return name
}

var timeFormats = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// parseTime is deliberately forgiving: an unparseable or absent datetime
// becomes the zero time rather than an error.
func parseTime(raw string) time.Time {
	for _, format := range timeFormats {
		if t, err := time.Parse(format, raw); err == nil {
			return t
		}
	}
	return time.Time{}
}
