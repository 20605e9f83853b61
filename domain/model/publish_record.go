package model

import "time"

type PublishStatus string

const (
	PublishStatusProcessing                PublishStatus = "processing"
	PublishStatusPublished                 PublishStatus = "published"
	PublishStatusFailed                    PublishStatus = "failed"
	PublishStatusSkippedExpiredCredentials PublishStatus = "skipped_expired_credentials"
)

func (s PublishStatus) Terminal() bool {
	switch s {
	case PublishStatusPublished, PublishStatusFailed, PublishStatusSkippedExpiredCredentials:
		return true
	}
	return false
}

// PublishRecord tracks one (content item, account) publication. Telegram records have no account.
type PublishRecord struct {
	ID               int64             `json:"id"`
	Platform         string            `json:"platform"`
	ContentID        string            `json:"content_id"`
	AccountID        *int64            `json:"account_id,omitempty"`
	Status           PublishStatus     `json:"status"`
	PlatformPostID   *string           `json:"platform_post_id,omitempty"`
	PublicURL        *string           `json:"public_url,omitempty"`
	ErrorMessage     *string           `json:"error_message,omitempty"`
	Views            int64             `json:"views"`
	Likes            int64             `json:"likes"`
	Comments         int64             `json:"comments"`
	AttemptCount     int               `json:"attempt_count"`
	Metadata         map[string]string `json:"metadata,omitempty"`
	PublishedAt      *time.Time        `json:"published_at,omitempty"`
	MetricsUpdatedAt *time.Time        `json:"metrics_updated_at,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

// EngagementMetrics is the normalized view of a post's counters.
type EngagementMetrics struct {
	Views    int64 `json:"views"`
	Likes    int64 `json:"likes"`
	Comments int64 `json:"comments"`
}
