package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"content-distributor/domain/dto"
	"content-distributor/domain/model"
	"content-distributor/domain/repository"
	"content-distributor/infrastructure/logger"
	"content-distributor/infrastructure/scheduler"
)

// ErrInvalidRequest marks caller errors in a distribute request.
var ErrInvalidRequest = errors.New("invalid distribute request")

// Dispatch results reported to the DistributionObserver.
const (
	DispatchQueued  = "queued"
	DispatchSkipped = "skipped"
	DispatchError   = "error"
)

type DistributionObserver interface {
	Dispatched(platform, result string)
}

type IDistributionUsecase interface {
	Distribute(ctx context.Context, req dto.DistributeRequest) (*dto.DistributeResponse, error)
	HandleContentReady(ctx context.Context, evt dto.ContentReadyEvent) error
	ListRecords(ctx context.Context, caller dto.Caller, contentID string) ([]*model.PublishRecord, error)
	ListAudit(ctx context.Context, caller dto.Caller, contentID string) ([]model.PublishAudit, error)
}

type distributionUsecase struct {
	contents repository.IContent
	accounts repository.IAccount
	records  repository.IPublishRecord
	tasks    Enqueuer
	stagger  StaggerTable
	audits   repository.IPublishAudit
	telegram bool
	observer DistributionObserver
}

type DistributionOption func(*distributionUsecase)

// WithTelegram enables the account-less Telegram dispatch.
func WithTelegram(enabled bool) DistributionOption {
	return func(u *distributionUsecase) { u.telegram = enabled }
}

// WithAuditLog exposes the publish audit trail through ListAudit.
func WithAuditLog(audits repository.IPublishAudit) DistributionOption {
	return func(u *distributionUsecase) { u.audits = audits }
}

func WithDistributionObserver(o DistributionObserver) DistributionOption {
	return func(u *distributionUsecase) { u.observer = o }
}

func NewDistributionUsecase(
	contents repository.IContent,
	accounts repository.IAccount,
	records repository.IPublishRecord,
	tasks Enqueuer,
	stagger StaggerTable,
	opts ...DistributionOption,
) IDistributionUsecase {
	u := &distributionUsecase{contents: contents, accounts: accounts, records: records, tasks: tasks, stagger: stagger}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Distribute enqueues one publish task per eligible account. Enqueue failures
// are reported per result and never abort the loop.
func (u *distributionUsecase) Distribute(ctx context.Context, req dto.DistributeRequest) (*dto.DistributeResponse, error) {
	contentID := strings.TrimSpace(req.ContentID)
	if contentID == "" {
		return nil, fmt.Errorf("%w: content_id required", ErrInvalidRequest)
	}
	allowed, err := allowList(req.Platforms)
	if err != nil {
		return nil, err
	}

	content, err := u.contents.GetByID(ctx, contentID)
	if err != nil {
		return nil, fmt.Errorf("load content %s: %w", contentID, err)
	}
	scope, err := resolveScope(req, content)
	if err != nil {
		return nil, err
	}
	if req.Caller != nil {
		if err := authorize(*req.Caller, scope, content); err != nil {
			return nil, err
		}
	}

	accounts, err := u.accounts.ListAutoPublish(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("list accounts for content %s: %w", contentID, err)
	}

	log := logger.GetLogger().WithField("content_id", contentID)
	resp := &dto.DistributeResponse{ContentID: contentID, Results: make([]dto.DispatchResult, 0, len(accounts)+1)}
	for _, acct := range accounts {
		platform := model.NormalizePlatform(acct.Platform)
		if !isAllowed(allowed, platform) || platform == model.PlatformTelegram {
			continue
		}
		id := acct.ID
		result := dto.DispatchResult{Platform: platform, AccountID: &id}
		switch {
		case !model.IsKnownPlatform(platform):
			result.Error = "unsupported platform"
			u.report(platform, DispatchSkipped)
		case model.RequiresVideo(platform) && !content.HasVideo():
			result.Error = "content has no video"
			u.report(platform, DispatchSkipped)
		default:
			u.enqueue(ctx, &result, dto.PublishTask{ContentID: contentID, Platform: platform, AccountID: &id, OwnerID: ownerOf(acct)})
		}
		if result.Error != "" {
			log.WithField("platform", platform).WithField("account_id", id).WithField("reason", result.Error).Info("account not dispatched")
		}
		resp.Results = append(resp.Results, result)
	}

	if u.telegram && isAllowed(allowed, model.PlatformTelegram) {
		result := dto.DispatchResult{Platform: model.PlatformTelegram}
		u.enqueue(ctx, &result, dto.PublishTask{ContentID: contentID, Platform: model.PlatformTelegram})
		resp.Results = append(resp.Results, result)
	}

	for _, r := range resp.Results {
		if r.TaskID != "" {
			resp.Dispatched++
		}
	}
	log.WithField("dispatched", resp.Dispatched).WithField("candidates", len(resp.Results)).Info("content distributed")
	return resp, nil
}

func (u *distributionUsecase) enqueue(ctx context.Context, result *dto.DispatchResult, task dto.PublishTask) {
	result.Delay = u.stagger.Delay(task.Platform)
	id, err := u.tasks.Enqueue(ctx, TaskPublish, task, scheduler.WithDelay(result.Delay))
	if err != nil {
		result.Error = err.Error()
		logger.GetLogger().WithFields(map[string]interface{}{
			"content_id": task.ContentID,
			"platform":   task.Platform,
			"error":      err,
		}).Error("failed to enqueue publish task")
		u.report(task.Platform, DispatchError)
		return
	}
	result.TaskID = id
	u.report(task.Platform, DispatchQueued)
}

func (u *distributionUsecase) report(platform, result string) {
	if u.observer != nil {
		u.observer.Dispatched(platform, result)
	}
}

// HandleContentReady distributes an event from a queue. Requests that can never
// succeed are logged and acknowledged.
func (u *distributionUsecase) HandleContentReady(ctx context.Context, evt dto.ContentReadyEvent) error {
	_, err := u.Distribute(ctx, evt.Request())
	if errors.Is(err, ErrInvalidRequest) || errors.Is(err, repository.ErrNotFound) {
		logger.GetLogger().WithField("content_id", evt.ContentID).WithField("error", err).Warn("content ready event ignored")
		return nil
	}
	return err
}

func (u *distributionUsecase) ListRecords(ctx context.Context, caller dto.Caller, contentID string) ([]*model.PublishRecord, error) {
	if err := u.canRead(ctx, caller, contentID); err != nil {
		return nil, err
	}
	return u.records.ListByContent(ctx, contentID)
}

func (u *distributionUsecase) ListAudit(ctx context.Context, caller dto.Caller, contentID string) ([]model.PublishAudit, error) {
	if err := u.canRead(ctx, caller, contentID); err != nil {
		return nil, err
	}
	if u.audits == nil {
		return []model.PublishAudit{}, nil
	}
	return u.audits.ListByContent(ctx, contentID)
}

// canRead lets admins read any content's history and everyone else only their own.
func (u *distributionUsecase) canRead(ctx context.Context, caller dto.Caller, contentID string) error {
	if caller.Admin {
		return nil
	}
	content, err := u.contents.GetByID(ctx, contentID)
	if err != nil {
		return fmt.Errorf("load content %s: %w", contentID, err)
	}
	if !ownedBy(content, caller.UserID) {
		return fmt.Errorf("%w: content %s belongs to another user", ErrForbidden, contentID)
	}
	return nil
}

func allowList(platforms []string) (map[string]struct{}, error) {
	if len(platforms) == 0 {
		return nil, nil
	}
	m := make(map[string]struct{}, len(platforms))
	for _, p := range platforms {
		n := model.NormalizePlatform(p)
		if !model.IsKnownPlatform(n) {
			return nil, fmt.Errorf("%w: unsupported platform %q", ErrInvalidRequest, p)
		}
		m[n] = struct{}{}
	}
	return m, nil
}

func isAllowed(allowed map[string]struct{}, platform string) bool {
	if allowed == nil {
		return true
	}
	_, ok := allowed[platform]
	return ok
}

// resolveScope prefers the request; without one it follows the content's owner.
func resolveScope(req dto.DistributeRequest, content *model.ContentItem) (model.AccountScope, error) {
	if req.Official {
		return model.AccountScope{Official: true}, nil
	}
	if uid := strings.TrimSpace(req.UserID); uid != "" {
		return model.AccountScope{UserID: uid}, nil
	}
	if content.Official {
		return model.AccountScope{Official: true}, nil
	}
	if content.UserID != nil && *content.UserID != "" {
		return model.AccountScope{UserID: *content.UserID}, nil
	}
	return model.AccountScope{}, fmt.Errorf("%w: neither user_id nor official given", ErrInvalidRequest)
}

// authorize checks an API caller against the resolved scope. Official accounts
// need the admin role; personal accounts may only carry the caller's own content.
func authorize(caller dto.Caller, scope model.AccountScope, content *model.ContentItem) error {
	if caller.Admin {
		return nil
	}
	if scope.Official {
		return fmt.Errorf("%w: official accounts require the admin role", ErrForbidden)
	}
	if scope.UserID != caller.UserID || !ownedBy(content, caller.UserID) {
		return fmt.Errorf("%w: content %s belongs to another user", ErrForbidden, content.ID)
	}
	return nil
}

func ownedBy(content *model.ContentItem, userID string) bool {
	return userID != "" && content.UserID != nil && *content.UserID == userID
}

func ownerOf(acct *model.Account) string {
	if acct.UserID == nil {
		return ""
	}
	return *acct.UserID
}
