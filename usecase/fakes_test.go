package usecase_test

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"content-distributor/domain/dto"
	"content-distributor/domain/model"
	"content-distributor/domain/repository"
	"content-distributor/infrastructure/scheduler"

	"github.com/stretchr/testify/mock"
)

type memoryContents struct {
	items map[string]*model.ContentItem
	err   error
}

func (m *memoryContents) GetByID(_ context.Context, id string) (*model.ContentItem, error) {
	if m.err != nil {
		return nil, m.err
	}
	c, ok := m.items[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

type memoryAccounts struct {
	mu    sync.Mutex
	items map[int64]*model.Account
}

func newMemoryAccounts(accts ...*model.Account) *memoryAccounts {
	m := &memoryAccounts{items: map[int64]*model.Account{}}
	for _, a := range accts {
		m.items[a.ID] = a
	}
	return m
}

func (m *memoryAccounts) GetByID(_ context.Context, id int64) (*model.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.items[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *memoryAccounts) ListAutoPublish(_ context.Context, scope model.AccountScope) ([]*model.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Account
	for _, a := range m.items {
		if !a.AutoPublish {
			continue
		}
		if scope.Official && a.AccountType != model.AccountOfficial {
			continue
		}
		if !scope.Official && (a.UserID == nil || *a.UserID != scope.UserID) {
			continue
		}
		cp := *a
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memoryAccounts) UpdateCredentials(_ context.Context, id int64, creds model.Credentials) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.items[id]
	if !ok {
		return repository.ErrNotFound
	}
	a.AccessToken, a.RefreshToken, a.TokenExpiresAt = creds.AccessToken, creds.RefreshToken, creds.ExpiresAt
	return nil
}

// memoryRecords follows the upsert rules of the SQL store.
type memoryRecords struct {
	mu     sync.Mutex
	nextID int64
	byKey  map[string]*model.PublishRecord
	byID   map[int64]*model.PublishRecord
}

func newMemoryRecords() *memoryRecords {
	return &memoryRecords{byKey: map[string]*model.PublishRecord{}, byID: map[int64]*model.PublishRecord{}}
}

func (m *memoryRecords) Begin(_ context.Context, platform, contentID string, accountID *int64) (*model.PublishRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var acct int64
	if accountID != nil {
		acct = *accountID
	}
	key := fmt.Sprintf("%s|%s|%d", contentID, platform, acct)
	if rec, ok := m.byKey[key]; ok {
		cp := *rec
		if rec.Status == model.PublishStatusPublished {
			return &cp, true, nil
		}
		rec.Status = model.PublishStatusProcessing
		rec.AttemptCount++
		rec.ErrorMessage = nil
		rec.UpdatedAt = time.Now()
		cp = *rec
		return &cp, false, nil
	}
	m.nextID++
	now := time.Now()
	rec := &model.PublishRecord{ID: m.nextID, Platform: platform, ContentID: contentID, AccountID: accountID, Status: model.PublishStatusProcessing, AttemptCount: 1, CreatedAt: now, UpdatedAt: now}
	m.byKey[key] = rec
	m.byID[rec.ID] = rec
	cp := *rec
	return &cp, false, nil
}

func (m *memoryRecords) MarkPublished(_ context.Context, rec *model.PublishRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.byID[rec.ID]
	s.Status = model.PublishStatusPublished
	s.PlatformPostID, s.PublicURL, s.Metadata, s.PublishedAt = rec.PlatformPostID, rec.PublicURL, rec.Metadata, rec.PublishedAt
	s.ErrorMessage = nil
	return nil
}

func (m *memoryRecords) mark(id int64, status model.PublishStatus, msg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.byID[id]
	if s.Status == model.PublishStatusPublished {
		return nil
	}
	s.Status = status
	s.ErrorMessage = &msg
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
	s, ok := m.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	now := time.Now()
	s.Views, s.Likes, s.Comments, s.MetricsUpdatedAt = em.Views, em.Likes, em.Comments, &now
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

func (m *memoryRecords) ListByContent(_ context.Context, contentID string) ([]*model.PublishRecord, error) {
	return m.filter(func(r *model.PublishRecord) bool { return r.ContentID == contentID }), nil
}

func (m *memoryRecords) ListMetricsDue(_ context.Context, publishedSince, staleBefore time.Time, limit uint64) ([]*model.PublishRecord, error) {
	out := m.filter(func(r *model.PublishRecord) bool {
		if r.Status != model.PublishStatusPublished || r.PublishedAt == nil || r.PublishedAt.Before(publishedSince) {
			return false
		}
		return r.MetricsUpdatedAt == nil || r.MetricsUpdatedAt.Before(staleBefore)
	})
	if uint64(len(out)) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memoryRecords) ListStuck(_ context.Context, olderThan time.Time, limit uint64) ([]*model.PublishRecord, error) {
	out := m.filter(func(r *model.PublishRecord) bool {
		return r.Status == model.PublishStatusProcessing && r.UpdatedAt.Before(olderThan)
	})
	if uint64(len(out)) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memoryRecords) filter(keep func(*model.PublishRecord) bool) []*model.PublishRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.PublishRecord
	for id := int64(1); id <= m.nextID; id++ {
		if r, ok := m.byID[id]; ok && keep(r) {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out
}

func (m *memoryRecords) put(rec model.PublishRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec.ID > m.nextID {
		m.nextID = rec.ID
	}
	m.byID[rec.ID] = &rec
}

func (m *memoryRecords) byPlatform(platform string) *model.PublishRecord {
	for _, r := range m.filter(func(r *model.PublishRecord) bool { return r.Platform == platform }) {
		return r
	}
	return nil
}

type memoryAudits struct {
	mu   sync.Mutex
	rows []model.PublishAudit
}

func (m *memoryAudits) Append(_ context.Context, a *model.PublishAudit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = append(m.rows, *a)
	return nil
}

func (m *memoryAudits) ListByContent(_ context.Context, contentID string) ([]model.PublishAudit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.PublishAudit
	for _, a := range m.rows {
		if a.ContentID == contentID {
			out = append(out, a)
		}
	}
	return out, nil
}

type recordingSink struct {
	mu     sync.Mutex
	events []dto.PublishStatusEvent
}

func (s *recordingSink) Notify(_ context.Context, evt dto.PublishStatusEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, evt)
	return nil
}

func (s *recordingSink) statuses() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.Platform+":"+e.Status)
	}
	return out
}

type MockEnqueuer struct {
	mock.Mock
}

func (m *MockEnqueuer) Enqueue(ctx context.Context, class string, payload any, opts ...scheduler.EnqueueOption) (string, error) {
	args := m.Called(ctx, class, payload)
	return args.String(0), args.Error(1)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type outcomeRecorder struct {
	mu       sync.Mutex
	outcomes map[string][]scheduler.Outcome
}

func (o *outcomeRecorder) TaskFinished(class string, outcome scheduler.Outcome) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.outcomes == nil {
		o.outcomes = map[string][]scheduler.Outcome{}
	}
	o.outcomes[class] = append(o.outcomes[class], outcome)
}

func (o *outcomeRecorder) of(class string) []scheduler.Outcome {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]scheduler.Outcome(nil), o.outcomes[class]...)
}

func strptr(s string) *string { return &s }
