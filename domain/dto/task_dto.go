package dto

// PublishTask is the payload of the publish task class.
type PublishTask struct {
	ContentID string `json:"content_id"`
	Platform  string `json:"platform"`
	AccountID *int64 `json:"account_id,omitempty"`
	OwnerID   string `json:"owner_id,omitempty"`
}

// MetricsRefreshTask is the payload of the metrics_refresh task class.
type MetricsRefreshTask struct {
	RecordID int64 `json:"record_id"`
}

// PublishStatusEvent is emitted on every terminal publish record transition.
type PublishStatusEvent struct {
	Type           string  `json:"type"`
	RecordID       int64   `json:"record_id"`
	ContentID      string  `json:"content_id"`
	Platform       string  `json:"platform"`
	AccountID      *int64  `json:"account_id,omitempty"`
	Status         string  `json:"status"`
	PlatformPostID *string `json:"platform_post_id,omitempty"`
	PublicURL      *string `json:"public_url,omitempty"`
	Error          *string `json:"error,omitempty"`
	OwnerID        string  `json:"owner_id,omitempty"`
}
