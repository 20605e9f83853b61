package realtime

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"

	"content-distributor/domain/dto"
)

const eventName = "publish_status"

// Hub maintains per-user subscribers listening for publish status events.
type Hub struct {
	mu     sync.RWMutex
	users  map[string]map[chan dto.PublishStatusEvent]struct{}
	admins map[chan dto.PublishStatusEvent]struct{}
}

func NewPublishHub() *Hub {
	return &Hub{
		users:  make(map[string]map[chan dto.PublishStatusEvent]struct{}),
		admins: make(map[chan dto.PublishStatusEvent]struct{}),
	}
}

// Serve registers an SSE stream for the authenticated user (user_id set by middleware).
func (h *Hub) Serve(c *gin.Context) {
	userID := c.GetString("user_id")
	if userID == "" {
		c.Status(http.StatusUnauthorized)
		return
	}
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no") // disable nginx buffering

	ch := make(chan dto.PublishStatusEvent, 8)
	h.addSubscriber(userID, c.GetBool("is_admin"), ch)
	defer h.removeSubscriber(userID, ch)

	// Initial comment to keep connection open
	_, _ = c.Writer.Write([]byte(":ok\n\n"))
	c.Writer.Flush()

	for {
		select {
		case evt := <-ch:
			data, _ := json.Marshal(evt)
			_, _ = c.Writer.Write([]byte("event: " + eventName + "\n"))
			_, _ = c.Writer.Write([]byte("data: "))
			_, _ = c.Writer.Write(data)
			_, _ = c.Writer.Write([]byte("\n\n"))
			c.Writer.Flush()
		case <-c.Request.Context().Done():
			return
		}
	}
}

func (h *Hub) addSubscriber(userID string, admin bool, ch chan dto.PublishStatusEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if admin {
		h.admins[ch] = struct{}{}
	}
	if h.users[userID] == nil {
		h.users[userID] = make(map[chan dto.PublishStatusEvent]struct{})
	}
	h.users[userID][ch] = struct{}{}
}

func (h *Hub) removeSubscriber(userID string, ch chan dto.PublishStatusEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.admins, ch)
	if subs := h.users[userID]; subs != nil {
		delete(subs, ch)
		if len(subs) == 0 {
			delete(h.users, userID)
		}
	}
}

// Broadcast sends evt to the subscribers of its owner. Events of official
// accounts have no owner and go to admin subscribers only. Slow subscribers miss events.
func (h *Hub) Broadcast(evt dto.PublishStatusEvent) {
	if evt.Type == "" {
		evt.Type = eventName
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if evt.OwnerID != "" {
		send(h.users[evt.OwnerID], evt)
		return
	}
	send(h.admins, evt)
}

func send(subs map[chan dto.PublishStatusEvent]struct{}, evt dto.PublishStatusEvent) {
	for ch := range subs {
		select { // non-blocking
		case ch <- evt:
		default:
		}
	}
}

// Subscribers counts open streams.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, subs := range h.users {
		n += len(subs)
	}
	return n
}
