package model

import (
	"strings"
	"time"
)

// ContentItem is the read model of a finished article, owned by the content system.
type ContentItem struct {
	ID           string    `json:"id"            bson:"_id"`
	UserID       *string   `json:"user_id"       bson:"userId,omitempty"`
	Title        string    `json:"title"         bson:"title"`
	Excerpt      string    `json:"excerpt"       bson:"excerpt"`
	Slug         string    `json:"slug"          bson:"slug"`
	CanonicalURL string    `json:"canonical_url" bson:"canonicalUrl"`
	Tags         []string  `json:"tags"          bson:"tags"`
	VideoURL     string    `json:"video_url"     bson:"videoUrl"`
	ThumbnailURL string    `json:"thumbnail_url" bson:"thumbnailUrl"`
	Official     bool      `json:"official"      bson:"official"`
	PublishedAt  time.Time `json:"published_at"  bson:"publishedAt"`
}

// Link returns the canonical URL, falling back to baseURL/slug.
func (c *ContentItem) Link(baseURL string) string {
	if c.CanonicalURL != "" {
		return c.CanonicalURL
	}
	if c.Slug == "" || baseURL == "" {
		return ""
	}
	return strings.TrimRight(baseURL, "/") + "/" + strings.TrimLeft(c.Slug, "/")
}

func (c *ContentItem) HasVideo() bool { return strings.TrimSpace(c.VideoURL) != "" }
