package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Platform identifies the social network a record was harvested from
type Platform string

const (
	PlatformInstagram Platform = "instagram"
	PlatformFacebook  Platform = "facebook"
)

// Short returns the two letter prefix used for config keys ("ig", "fb")
func (p Platform) Short() string {
	switch p {
	case PlatformInstagram:
		return "ig"
	case PlatformFacebook:
		return "fb"
	default:
		return string(p)
	}
}

// ParsePlatform accepts the full name or the short prefix
func ParsePlatform(s string) (Platform, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "instagram", "ig":
		return PlatformInstagram, nil
	case "facebook", "fb":
		return PlatformFacebook, nil
	default:
		return "", fmt.Errorf("unknown platform: %q", s)
	}
}

// PostKind is the canonical kind of a harvested item
type PostKind string

const (
	KindPost      PostKind = "post"
	KindReel      PostKind = "reel"
	KindStory     PostKind = "story"
	KindGroupPost PostKind = "group_post"
)

// MediaKind distinguishes images from videos
type MediaKind string

const (
	MediaImage MediaKind = "image"
	MediaVideo MediaKind = "video"
)

// FacebookIDPrefix namespaces Facebook story ids so they never collide with
// Instagram's numeric media ids.
const FacebookIDPrefix = "fb_"

// MediaItem is one image or video attached to a post. Order is the stable
// position within the post.
type MediaItem struct {
	Kind      MediaKind `json:"kind" validate:"oneof=image video"`
	SourceURL string    `json:"source_url" validate:"required"`
	Order     int       `json:"order" validate:"gte=0"`
}

// CanonicalPost is the platform-neutral record produced by extraction.
// Timestamp is UTC; the zero value means the platform did not expose one.
type CanonicalPost struct {
	ID           string      `json:"id" validate:"required"`
	Platform     Platform    `json:"platform" validate:"oneof=instagram facebook"`
	Owner        string      `json:"owner" validate:"required"`
	Kind         PostKind    `json:"kind" validate:"oneof=post reel story group_post"`
	Author       string      `json:"author,omitempty"`
	Text         string      `json:"text"`
	Timestamp    time.Time   `json:"timestamp"`
	Permalink    string      `json:"permalink"`
	CommentCount int         `json:"comment_count,omitempty" validate:"gte=0"`
	Media        []MediaItem `json:"media" validate:"dive"`
}

// HasTimestamp reports whether the platform exposed a creation time
func (p CanonicalPost) HasTimestamp() bool {
	return !p.Timestamp.IsZero()
}

// IsStory reports whether the post counts towards story totals
func (p CanonicalPost) IsStory() bool {
	return p.Kind == KindStory
}

var validate = validator.New()

// Validate checks that every required field of the post is populated
func (p CanonicalPost) Validate() error {
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("invalid post %q: %w", p.ID, err)
	}
	return nil
}

// Comment is a reply attached to a Facebook group post
type Comment struct {
	PostID    string    `json:"post_id"`
	Author    string    `json:"author"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
	Order     int       `json:"order"`
}

// Followee is one entry of the logged-in account's following list
type Followee struct {
	Username string `json:"username"`
	ID       string `json:"id"`
}

// Account is a tracked Instagram account
type Account struct {
	Username       string     `json:"username"`
	ProfilePicPath string     `json:"profile_pic_path"`
	LastCheckedAt  *time.Time `json:"last_checked_at,omitempty"`
}

// Group is a tracked Facebook group
type Group struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	URL           string     `json:"url"`
	LastCheckedAt *time.Time `json:"last_checked_at,omitempty"`
}

// MediaRecord is a persisted media row. FilePath is empty when the
// download failed.
type MediaRecord struct {
	PostID    string    `json:"post_id"`
	Kind      MediaKind `json:"kind"`
	SourceURL string    `json:"source_url"`
	FilePath  string    `json:"file_path"`
	Order     int       `json:"order"`
}
