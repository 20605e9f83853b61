package publisher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"content-distributor/domain/model"
	"content-distributor/domain/repository"
)

// memoryRecords mirrors the upsert rules of the SQL store.
type memoryRecords struct {
	mu     sync.Mutex
	nextID int64
	byKey  map[string]*model.PublishRecord
	byID   map[int64]*model.PublishRecord
	begins int
}

func newMemoryRecords() *memoryRecords {
	return &memoryRecords{byKey: map[string]*model.PublishRecord{}, byID: map[int64]*model.PublishRecord{}}
}

func recordKey(platform, contentID string, accountID *int64) string {
	var acct int64
	if accountID != nil {
		acct = *accountID
	}
	return fmt.Sprintf("%s|%s|%d", contentID, platform, acct)
}

func (m *memoryRecords) Begin(_ context.Context, platform, contentID string, accountID *int64) (*model.PublishRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.begins++
	key := recordKey(platform, contentID, accountID)
	if rec, ok := m.byKey[key]; ok {
		if rec.Status == model.PublishStatusPublished {
			cp := *rec
			return &cp, true, nil
		}
		rec.Status = model.PublishStatusProcessing
		rec.AttemptCount++
		rec.ErrorMessage = nil
		cp := *rec
		return &cp, false, nil
	}
	m.nextID++
	rec := &model.PublishRecord{ID: m.nextID, Platform: platform, ContentID: contentID, AccountID: accountID, Status: model.PublishStatusProcessing, AttemptCount: 1, CreatedAt: time.Now()}
	m.byKey[key] = rec
	m.byID[rec.ID] = rec
	cp := *rec
	return &cp, false, nil
}

func (m *memoryRecords) MarkPublished(_ context.Context, rec *model.PublishRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := m.byID[rec.ID]
	stored.Status = model.PublishStatusPublished
	stored.PlatformPostID = rec.PlatformPostID
	stored.PublicURL = rec.PublicURL
	stored.Metadata = rec.Metadata
	stored.PublishedAt = rec.PublishedAt
	stored.ErrorMessage = nil
	return nil
}

func (m *memoryRecords) mark(id int64, status model.PublishStatus, msg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := m.byID[id]
	if stored.Status == model.PublishStatusPublished {
		return nil
	}
	stored.Status = status
	stored.ErrorMessage = &msg
	return nil
}

func (m *memoryRecords) MarkFailed(_ context.Context, id int64, msg string) error {
	return m.mark(id, model.PublishStatusFailed, msg)
}

func (m *memoryRecords) MarkSkipped(_ context.Context, id int64, msg string) error {
	return m.mark(id, model.PublishStatusSkippedExpiredCredentials, msg)
}

func (m *memoryRecords) UpdateMetrics(_ context.Context, id int64, em model.EngagementMetrics) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := m.byID[id]
	stored.Views, stored.Likes, stored.Comments = em.Views, em.Likes, em.Comments
	return nil
}

func (m *memoryRecords) GetByID(_ context.Context, id int64) (*model.PublishRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (m *memoryRecords) ListByContent(context.Context, string) ([]*model.PublishRecord, error) {
	return nil, nil
}

func (m *memoryRecords) ListMetricsDue(context.Context, time.Time, time.Time, uint64) ([]*model.PublishRecord, error) {
	return nil, nil
}

func (m *memoryRecords) ListStuck(context.Context, time.Time, uint64) ([]*model.PublishRecord, error) {
	return nil, nil
}

func (m *memoryRecords) stored(id int64) model.PublishRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.byID[id]
}

type staticTokens struct {
	token string
	err   error
	calls int
}

func (s *staticTokens) EnsureValidToken(context.Context, *model.Account) (string, error) {
	s.calls++
	return s.token, s.err
}

func sampleContent() *model.ContentItem {
	return &model.ContentItem{
		ID:           "content-1",
		Title:        "Shipping Go services",
		Excerpt:      "What we learned running distributed publishers.",
		Slug:         "shipping-go-services",
		Tags:         []string{"Go", "devops", "go"},
		CanonicalURL: "https://blog.example.com/shipping-go-services",
	}
}

func account(id int64, platform string, meta map[string]string) *model.Account {
	return &model.Account{ID: id, Platform: platform, AccessToken: "tok", Metadata: meta, AutoPublish: true}
}
