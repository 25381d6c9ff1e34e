package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/talmeida/linktrace/internal/app/model"
	"gorm.io/gorm"
)

var (
	// ErrLinkNotFound signals that the requested short link does not exist.
	ErrLinkNotFound = errors.New("link not found")
	// ErrSlugTaken signals a uniqueness conflict at creation time.
	ErrSlugTaken = errors.New("slug already in use")
)

// LinkFilter narrows List results. Zero values mean "no constraint".
type LinkFilter struct {
	Slug        string
	Title       string
	OriginalURL string
	Tag         string
	IsActive    *bool
	CreatedFrom *time.Time
	CreatedTo   *time.Time
}

// LinkRepository defines the data access contract for short links.
type LinkRepository interface {
	// Create inserts the link, failing with ErrSlugTaken when the slug is
	// already present. Uniqueness is enforced by the primary key, not by
	// engine-side locking: of two concurrent creates exactly one wins.
	Create(ctx context.Context, link *model.Link) error
	GetBySlug(ctx context.Context, slug string) (*model.Link, error)
	List(ctx context.Context, filter LinkFilter, limit, offset int) ([]model.Link, int64, error)
	Update(ctx context.Context, link *model.Link) error
	// Delete tombstones the slug in the historical access logs and removes
	// the link, atomically, so the slug can be reissued while logs survive.
	Delete(ctx context.Context, slug string) (tombstone string, err error)
	IncrementClicks(ctx context.Context, slug string) error
	AllSlugs(ctx context.Context) ([]string, error)
}

type linkRepository struct {
	db *gorm.DB
}

// NewLinkRepository returns a GORM-backed LinkRepository.
func NewLinkRepository(db *gorm.DB) LinkRepository {
	return &linkRepository{db: db}
}

func (r *linkRepository) Create(ctx context.Context, link *model.Link) error {
	if err := r.db.WithContext(ctx).Create(link).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrSlugTaken
		}
		return err
	}
	return nil
}

func (r *linkRepository) GetBySlug(ctx context.Context, slug string) (*model.Link, error) {
	var link model.Link
	if err := r.db.WithContext(ctx).Where("slug = ?", slug).First(&link).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrLinkNotFound
		}
		return nil, err
	}
	return &link, nil
}

func (r *linkRepository) List(ctx context.Context, filter LinkFilter, limit, offset int) ([]model.Link, int64, error) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	query := r.db.WithContext(ctx).Model(&model.Link{})
	if filter.Slug != "" {
		query = query.Where("slug ILIKE ?", "%"+filter.Slug+"%")
	}
	if filter.Title != "" {
		query = query.Where("title ILIKE ?", "%"+filter.Title+"%")
	}
	if filter.OriginalURL != "" {
		query = query.Where("original_url ILIKE ?", "%"+filter.OriginalURL+"%")
	}
	if filter.Tag != "" {
		query = query.Where("tags @> ?", fmt.Sprintf(`["%s"]`, filter.Tag))
	}
	if filter.IsActive != nil {
		query = query.Where("is_active = ?", *filter.IsActive)
	}
	if filter.CreatedFrom != nil {
		query = query.Where("created_at >= ?", *filter.CreatedFrom)
	}
	if filter.CreatedTo != nil {
		query = query.Where("created_at <= ?", *filter.CreatedTo)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var result []model.Link
	if err := query.
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&result).Error; err != nil {
		return nil, 0, err
	}

	return result, total, nil
}

// linkUpdateColumns are the columns Update rewrites. The update must stay
// struct-based: GORM only runs field serializers (the jsonb tags column) for
// struct updates, and the explicit Select keeps zero values writable.
var linkUpdateColumns = []string{
	"original_url", "callback_url", "title", "notes", "tags",
	"is_active", "max_clicks", "expires_at", "qr_png", "qr_svg", "updated_at",
}

func (r *linkRepository) Update(ctx context.Context, link *model.Link) error {
	result := r.updateStatement(ctx, link)

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrLinkNotFound
	}

	return r.db.WithContext(ctx).Where("slug = ?", link.Slug).First(link).Error
}

func (r *linkRepository) updateStatement(ctx context.Context, link *model.Link) *gorm.DB {
	link.UpdatedAt = time.Now().UTC()
	return r.db.WithContext(ctx).
		Model(&model.Link{}).
		Where("slug = ?", link.Slug).
		Select(linkUpdateColumns).
		Updates(link)
}

func (r *linkRepository) Delete(ctx context.Context, slug string) (string, error) {
	tombstone := fmt.Sprintf("%s_deleted_%s", slug, time.Now().UTC().Format("2006-01-02"))

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Where("slug = ?", slug).Delete(&model.Link{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrLinkNotFound
		}
		return tx.Model(&model.AccessLogEntry{}).
			Where("slug = ?", slug).
			Update("slug", tombstone).Error
	})
	if err != nil {
		return "", err
	}
	return tombstone, nil
}

func (r *linkRepository) IncrementClicks(ctx context.Context, slug string) error {
	return r.db.WithContext(ctx).
		Model(&model.Link{}).
		Where("slug = ?", slug).
		UpdateColumn("click_count", gorm.Expr("click_count + 1")).Error
}

func (r *linkRepository) AllSlugs(ctx context.Context) ([]string, error) {
	var slugs []string
	if err := r.db.WithContext(ctx).
		Model(&model.Link{}).
		Pluck("slug", &slugs).Error; err != nil {
		return nil, err
	}
	return slugs, nil
}
