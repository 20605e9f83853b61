package model

import "time"

type AccountType string

const (
	AccountPersonal AccountType = "personal"
	AccountOfficial AccountType = "official"
)

// Well-known Account.Metadata keys.
const (
	MetaPageID        = "page_id"
	MetaPersonURN     = "person_urn"
	MetaSubreddit     = "subreddit"
	MetaInstagramUser = "ig_user_id"
	MetaThreadsUser   = "threads_user_id"
	MetaUsername      = "username"
)

// Account is one connected destination on an external platform.
type Account struct {
	ID             int64             `json:"id"`
	UserID         *string           `json:"user_id,omitempty"` // nil for system-owned official accounts
	Platform       string            `json:"platform"`
	AccessToken    string            `json:"-"`
	RefreshToken   string            `json:"-"`
	TokenExpiresAt *time.Time        `json:"token_expires_at,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	AutoPublish    bool              `json:"auto_publish"`
	AccountType    AccountType       `json:"account_type"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

func (a *Account) Meta(key string) string {
	if a == nil || a.Metadata == nil {
		return ""
	}
	return a.Metadata[key]
}

// Credentials is the token bundle written back after a refresh.
type Credentials struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    *time.Time
}

// AccountScope selects the candidate set for a fan-out: one user's accounts or the official ones.
type AccountScope struct {
	UserID   string
	Official bool
}
