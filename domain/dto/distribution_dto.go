package dto

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Caller is the authenticated API user behind a request.
type Caller struct {
	UserID string
	Admin  bool
}

// DistributeRequest triggers a fan-out of one content item.
type DistributeRequest struct {
	ContentID string   `json:"content_id"`
	UserID    string   `json:"user_id,omitempty"`
	Official  bool     `json:"official,omitempty"`
	Platforms []string `json:"platforms,omitempty"`
	// Caller is nil for trusted event sources.
	Caller *Caller `json:"-"`
}

type DispatchResult struct {
	Platform  string        `json:"platform"`
	AccountID *int64        `json:"account_id,omitempty"`
	TaskID    string        `json:"task_id,omitempty"`
	Delay     time.Duration `json:"delay"`
	Error     string        `json:"error,omitempty"`
}

type DistributeResponse struct {
	ContentID  string           `json:"content_id"`
	Dispatched int              `json:"dispatched"`
	Results    []DispatchResult `json:"results"`
}

// ContentReadyEvent is the message published by the content system when an item goes live.
type ContentReadyEvent struct {
	ContentID string   `json:"content_id"`
	UserID    string   `json:"user_id,omitempty"`
	Official  bool     `json:"official,omitempty"`
	Platforms []string `json:"platforms,omitempty"`
}

func (e ContentReadyEvent) Request() DistributeRequest {
	return DistributeRequest{ContentID: e.ContentID, UserID: e.UserID, Official: e.Official, Platforms: e.Platforms}
}

// DecodeContentReady parses a queue message body. A message without content_id is invalid.
func DecodeContentReady(data []byte) (ContentReadyEvent, error) {
	var evt ContentReadyEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		return evt, fmt.Errorf("decode content ready event: %w", err)
	}
	evt.ContentID = strings.TrimSpace(evt.ContentID)
	if evt.ContentID == "" {
		return evt, errors.New("content ready event has no content_id")
	}
	return evt, nil
}
