package repository

import (
	"context"
	"time"

	"github.com/talmeida/linktrace/internal/app/model"
	"gorm.io/gorm"
)

// AccessLogRepository defines the data access contract for access-log
// entries. The core only appends; listing serves the dashboard and export
// surfaces, RenameSlug and PurgeOlderThan serve admin deletion and the
// retention job.
type AccessLogRepository interface {
	Append(ctx context.Context, entry *model.AccessLogEntry) error
	ListBySlug(ctx context.Context, slug string, limit, offset int) ([]model.AccessLogEntry, int64, error)
	RenameSlug(ctx context.Context, oldSlug, newSlug string) (int64, error)
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type accessLogRepository struct {
	db *gorm.DB
}

// NewAccessLogRepository returns a GORM-backed AccessLogRepository.
func NewAccessLogRepository(db *gorm.DB) AccessLogRepository {
	return &accessLogRepository{db: db}
}

func (r *accessLogRepository) Append(ctx context.Context, entry *model.AccessLogEntry) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *accessLogRepository) ListBySlug(ctx context.Context, slug string, limit, offset int) ([]model.AccessLogEntry, int64, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	query := r.db.WithContext(ctx).Model(&model.AccessLogEntry{}).Where("slug = ?", slug)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var entries []model.AccessLogEntry
	if err := query.
		Order("timestamp DESC").
		Limit(limit).
		Offset(offset).
		Find(&entries).Error; err != nil {
		return nil, 0, err
	}

	return entries, total, nil
}

func (r *accessLogRepository) RenameSlug(ctx context.Context, oldSlug, newSlug string) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&model.AccessLogEntry{}).
		Where("slug = ?", oldSlug).
		Update("slug", newSlug)
	return result.RowsAffected, result.Error
}

func (r *accessLogRepository) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("timestamp < ?", cutoff).
		Delete(&model.AccessLogEntry{})
	return result.RowsAffected, result.Error
}
