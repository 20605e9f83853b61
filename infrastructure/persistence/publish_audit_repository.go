package persistence

import (
	"context"
	"time"

	"content-distributor/domain/model"

	"gorm.io/gorm"
)

type PublishAuditRepository struct{ db *gorm.DB }

func NewPublishAuditRepository(db *gorm.DB) *PublishAuditRepository {
	return &PublishAuditRepository{db: db}
}

func (r *PublishAuditRepository) Append(ctx context.Context, audit *model.PublishAudit) error {
	if audit.CreatedAt.IsZero() {
		audit.CreatedAt = time.Now().UTC()
	}
	return r.db.WithContext(ctx).Create(audit).Error
}

func (r *PublishAuditRepository) ListByContent(ctx context.Context, contentID string) ([]model.PublishAudit, error) {
	var list []model.PublishAudit
	err := r.db.WithContext(ctx).
		Where("content_id = ?", contentID).
		Order("id").
		Find(&list).Error
	return list, err
}
