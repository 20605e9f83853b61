package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"content-distributor/domain/model"
	"content-distributor/domain/repository"

	sq "github.com/Masterminds/squirrel"
)

var recordColumns = []string{
	"id", "platform", "content_id", "account_id", "status", "platform_post_id", "public_url", "error_message",
	"views", "likes", "comments", "attempt_count", "metadata", "published_at", "metrics_updated_at", "created_at", "updated_at",
}

// PublishRecordRepository is the PostgreSQL publish record store.
type PublishRecordRepository struct {
	db  *sql.DB
	sb  sq.StatementBuilderType
	now func() time.Time
}

func NewPublishRecordRepository(db *sql.DB) *PublishRecordRepository {
	return &PublishRecordRepository{
		db:  db,
		sb:  sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
		now: func() time.Time { return time.Now().UTC() },
	}
}

func (r *PublishRecordRepository) Begin(ctx context.Context, platform, contentID string, accountID *int64) (*model.PublishRecord, bool, error) {
	now := r.now()
	var acct sql.NullInt64
	if accountID != nil {
		acct = sql.NullInt64{Int64: *accountID, Valid: true}
	}
	// A published row is left exactly as it is; anything else restarts as processing.
	q := r.sb.
		Insert("publish_records").
		Columns("platform", "content_id", "account_id", "status", "attempt_count", "metadata", "created_at", "updated_at").
		Values(platform, contentID, acct, model.PublishStatusProcessing, 1, "{}", now, now).
		Suffix(`ON CONFLICT (content_id, platform, account_key) DO UPDATE SET
			attempt_count = CASE WHEN publish_records.status = 'published' THEN publish_records.attempt_count ELSE publish_records.attempt_count + 1 END,
			error_message = CASE WHEN publish_records.status = 'published' THEN publish_records.error_message ELSE NULL END,
			status = CASE WHEN publish_records.status = 'published' THEN publish_records.status ELSE EXCLUDED.status END,
			updated_at = EXCLUDED.updated_at
			RETURNING ` + strings.Join(recordColumns, ", "))

	sqlStr, args, err := q.ToSql()
	if err != nil {
		return nil, false, fmt.Errorf("build begin query: %w", err)
	}
	rec, err := scanRecord(r.db.QueryRowContext(ctx, sqlStr, args...))
	if err != nil {
		return nil, false, err
	}
	return rec, rec.Status == model.PublishStatusPublished, nil
}

func (r *PublishRecordRepository) MarkPublished(ctx context.Context, rec *model.PublishRecord) error {
	meta, err := json.Marshal(rec.Metadata)
	if err != nil {
		return fmt.Errorf("encode record metadata: %w", err)
	}
	if rec.Metadata == nil {
		meta = []byte("{}")
	}
	publishedAt := r.now()
	if rec.PublishedAt != nil {
		publishedAt = *rec.PublishedAt
	}
	q := r.sb.Update("publish_records").
		Set("status", model.PublishStatusPublished).
		Set("platform_post_id", rec.PlatformPostID).
		Set("public_url", rec.PublicURL).
		Set("error_message", nil).
		Set("metadata", string(meta)).
		Set("published_at", publishedAt).
		Set("updated_at", r.now()).
		Where(sq.Eq{"id": rec.ID})
	return r.exec(ctx, q)
}

func (r *PublishRecordRepository) MarkFailed(ctx context.Context, id int64, message string) error {
	return r.markTerminal(ctx, id, model.PublishStatusFailed, message)
}

func (r *PublishRecordRepository) MarkSkipped(ctx context.Context, id int64, message string) error {
	return r.markTerminal(ctx, id, model.PublishStatusSkippedExpiredCredentials, message)
}

// markTerminal never downgrades a published record.
func (r *PublishRecordRepository) markTerminal(ctx context.Context, id int64, status model.PublishStatus, message string) error {
	q := r.sb.Update("publish_records").
		Set("status", status).
		Set("error_message", message).
		Set("updated_at", r.now()).
		Where(sq.Eq{"id": id}).
		Where(sq.NotEq{"status": model.PublishStatusPublished})
	return r.exec(ctx, q)
}

func (r *PublishRecordRepository) UpdateMetrics(ctx context.Context, id int64, m model.EngagementMetrics) error {
	q := r.sb.Update("publish_records").
		Set("views", m.Views).
		Set("likes", m.Likes).
		Set("comments", m.Comments).
		Set("metrics_updated_at", r.now()).
		Where(sq.Eq{"id": id})
	return r.exec(ctx, q)
}

func (r *PublishRecordRepository) GetByID(ctx context.Context, id int64) (*model.PublishRecord, error) {
	sqlStr, args, err := r.sb.Select(recordColumns...).From("publish_records").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, err
	}
	rec, err := scanRecord(r.db.QueryRowContext(ctx, sqlStr, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	return rec, err
}

func (r *PublishRecordRepository) ListByContent(ctx context.Context, contentID string) ([]*model.PublishRecord, error) {
	q := r.sb.Select(recordColumns...).From("publish_records").
		Where(sq.Eq{"content_id": contentID}).
		OrderBy("id")
	return r.list(ctx, q)
}

// ListMetricsDue returns published records newer than publishedSince whose counters are older than staleBefore.
func (r *PublishRecordRepository) ListMetricsDue(ctx context.Context, publishedSince, staleBefore time.Time, limit uint64) ([]*model.PublishRecord, error) {
	q := r.sb.Select(recordColumns...).From("publish_records").
		Where(sq.Eq{"status": model.PublishStatusPublished}).
		Where(sq.GtOrEq{"published_at": publishedSince}).
		Where(sq.Or{sq.Eq{"metrics_updated_at": nil}, sq.Lt{"metrics_updated_at": staleBefore}}).
		OrderBy("published_at DESC").
		Limit(limit)
	return r.list(ctx, q)
}

// ListStuck returns records still processing after olderThan.
func (r *PublishRecordRepository) ListStuck(ctx context.Context, olderThan time.Time, limit uint64) ([]*model.PublishRecord, error) {
	q := r.sb.Select(recordColumns...).From("publish_records").
		Where(sq.Eq{"status": model.PublishStatusProcessing}).
		Where(sq.Lt{"updated_at": olderThan}).
		OrderBy("updated_at").
		Limit(limit)
	return r.list(ctx, q)
}

func (r *PublishRecordRepository) exec(ctx context.Context, q sq.UpdateBuilder) error {
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	return err
}

func (r *PublishRecordRepository) list(ctx context.Context, q sq.SelectBuilder) ([]*model.PublishRecord, error) {
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*model.PublishRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, rec)
	}
	return list, rows.Err()
}

func scanRecord(row rowScanner) (*model.PublishRecord, error) {
	rec := &model.PublishRecord{}
	var accountID sql.NullInt64
	var status string
	var postID, publicURL, errMsg sql.NullString
	var meta []byte
	var publishedAt, metricsAt sql.NullTime
	if err := row.Scan(&rec.ID, &rec.Platform, &rec.ContentID, &accountID, &status, &postID, &publicURL, &errMsg,
		&rec.Views, &rec.Likes, &rec.Comments, &rec.AttemptCount, &meta, &publishedAt, &metricsAt, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return nil, err
	}
	rec.Status = model.PublishStatus(status)
	if accountID.Valid {
		v := accountID.Int64
		rec.AccountID = &v
	}
	if postID.Valid {
		v := postID.String
		rec.PlatformPostID = &v
	}
	if publicURL.Valid {
		v := publicURL.String
		rec.PublicURL = &v
	}
	if errMsg.Valid {
		v := errMsg.String
		rec.ErrorMessage = &v
	}
	if publishedAt.Valid {
		t := publishedAt.Time
		rec.PublishedAt = &t
	}
	if metricsAt.Valid {
		t := metricsAt.Time
		rec.MetricsUpdatedAt = &t
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &rec.Metadata); err != nil {
			return nil, fmt.Errorf("decode record %d metadata: %w", rec.ID, err)
		}
	}
	return rec, nil
}
