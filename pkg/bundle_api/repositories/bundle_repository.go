package repositories

import (
	"context"
	"errors"

	"github.com/sugarlabs/bundle-uploader/pkg/bundle_api/models"
	"gorm.io/gorm"
)

var (
	// ErrNotFound signals a lookup, update or delete against a filename
	// with no record.
	ErrNotFound = errors.New("bundle not found")
	// ErrDuplicateKey signals an insert whose filename already exists.
	ErrDuplicateKey = errors.New("bundle filename already exists")
)

// BundleRepository owns persistence of bundle records, keyed by
// filename.
type BundleRepository interface {
	Insert(ctx context.Context, b *models.Bundle) error
	FindByFilename(ctx context.Context, filename string) (*models.Bundle, error)
	SetRedirect(ctx context.Context, filename, target string) error
	MarkDeleted(ctx context.Context, filename string) error
	Delete(ctx context.Context, filename string) error
	All(ctx context.Context) ([]models.Bundle, error)
}

type bundleRepository struct {
	db *gorm.DB
}

func NewBundleRepository(db *gorm.DB) BundleRepository {
	return &bundleRepository{db: db}
}

// Insert appends a new record. The primary-key constraint makes the
// uniqueness check atomic; two concurrent inserts of the same filename
// cannot both succeed.
func (r *bundleRepository) Insert(ctx context.Context, b *models.Bundle) error {
	err := r.db.WithContext(ctx).Create(b).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicateKey
	}
	return err
}

// FindByFilename returns the record, excluding rows already marked for
// reaping.
func (r *bundleRepository) FindByFilename(ctx context.Context, filename string) (*models.Bundle, error) {
	var b models.Bundle
	err := r.db.WithContext(ctx).
		Where("filename = ? AND deleted = ?", filename, false).
		First(&b).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// SetRedirect points the record at a mirror copy. Idempotent: setting
// the same target twice is not an error.
func (r *bundleRepository) SetRedirect(ctx context.Context, filename, target string) error {
	return r.updateColumn(ctx, filename, "redirect", target)
}

// MarkDeleted flags the record for reaping; read paths stop returning
// it before the row is physically removed.
func (r *bundleRepository) MarkDeleted(ctx context.Context, filename string) error {
	return r.updateColumn(ctx, filename, "deleted", true)
}

func (r *bundleRepository) updateColumn(ctx context.Context, filename, column string, value interface{}) error {
	res := r.db.WithContext(ctx).Model(&models.Bundle{}).
		Where("filename = ?", filename).
		Update(column, value)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *bundleRepository) Delete(ctx context.Context, filename string) error {
	res := r.db.WithContext(ctx).Delete(&models.Bundle{}, "filename = ?", filename)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// All returns a snapshot of every record, marked rows included, for the
// retention sweeper. Mutations made while the sweep runs need not be
// reflected.
func (r *bundleRepository) All(ctx context.Context) ([]models.Bundle, error) {
	var bundles []models.Bundle
	if err := r.db.WithContext(ctx).Find(&bundles).Error; err != nil {
		return nil, err
	}
	return bundles, nil
}
