package repository

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ImageRecord is the metadata of an image a user saved through /images.
type ImageRecord struct {
	ID          uint      `gorm:"primaryKey" json:"-"`
	PublicID    string    `gorm:"column:public_id;uniqueIndex;size:36;not null" json:"id"`
	OwnerID     uint      `gorm:"column:owner_id;index;not null" json:"owner_id"`
	Filename    string    `gorm:"column:filename;size:255" json:"filename"`
	ContentType string    `gorm:"column:content_type;size:127" json:"content_type"`
	SizeBytes   int64     `gorm:"column:size_bytes" json:"size_bytes"`
	SHA1Hash    string    `gorm:"column:sha1_hash;size:40;index" json:"sha1_hash"`
	ObjectKey   string    `gorm:"column:object_key;size:255" json:"-"`
	Prediction  string    `gorm:"column:prediction;size:64" json:"prediction"`
	Score       float32   `gorm:"column:score" json:"score"`
	IsFace      bool      `gorm:"column:is_face" json:"is_face"`
	CreatedAt   time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt   time.Time `gorm:"column:updated_at" json:"updated_at"`
}

// TableName overrides the default table name.
func (ImageRecord) TableName() string {
	return "images"
}

// ImageAggregation holds per-owner counters computed in SQL.
type ImageAggregation struct {
	TotalCount   int64
	FaceCount    int64
	AverageScore float64
}

// ImageRepository provides persistence APIs for image records.
type ImageRepository struct {
	base
}

// NewImageRepository creates a new repository instance.
func NewImageRepository(db *gorm.DB, logger *zap.Logger) *ImageRepository {
	return &ImageRepository{base: newBase(db, logger, "image_repository")}
}

// Create persists a new image record.
func (r *ImageRepository) Create(ctx context.Context, record *ImageRecord) error {
	return r.executeWithRetry(ctx, "repository.image.create", func(tx *gorm.DB) error {
		return tx.Create(record).Error
	})
}

// FindByPublicIDAndOwner retrieves a record matching the public id and owner.
func (r *ImageRepository) FindByPublicIDAndOwner(ctx context.Context, publicID string, ownerID uint) (*ImageRecord, error) {
	var record ImageRecord
	err := r.executeWithRetry(ctx, "repository.image.find", func(tx *gorm.DB) error {
		return tx.First(&record, "public_id = ? AND owner_id = ?", publicID, ownerID).Error
	})
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// ListByOwner returns the owner's records, newest first.
func (r *ImageRepository) ListByOwner(ctx context.Context, ownerID uint, limit, offset int) ([]*ImageRecord, error) {
	var records []*ImageRecord
	err := r.executeWithRetry(ctx, "repository.image.list", func(tx *gorm.DB) error {
		return tx.Where("owner_id = ?", ownerID).
			Order("created_at DESC").Order("id DESC").
			Limit(limit).Offset(offset).
			Find(&records).Error
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// UpdateFilename renames a record.
func (r *ImageRepository) UpdateFilename(ctx context.Context, record *ImageRecord) error {
	return r.executeWithRetry(ctx, "repository.image.update_filename", func(tx *gorm.DB) error {
		res := tx.Model(&ImageRecord{ID: record.ID}).Update("filename", record.Filename)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

// Delete removes a record by primary key.
func (r *ImageRepository) Delete(ctx context.Context, id uint) error {
	return r.executeWithRetry(ctx, "repository.image.delete", func(tx *gorm.DB) error {
		res := tx.Delete(&ImageRecord{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

// AggregateStats counts the owner's records and averages their scores.
func (r *ImageRepository) AggregateStats(ctx context.Context, ownerID uint) (*ImageAggregation, error) {
	var agg ImageAggregation
	err := r.executeWithRetry(ctx, "repository.image.aggregate", func(tx *gorm.DB) error {
		return tx.Model(&ImageRecord{}).
			Select("COUNT(*) AS total_count, "+
				"COALESCE(SUM(CASE WHEN is_face THEN 1 ELSE 0 END), 0) AS face_count, "+
				"COALESCE(AVG(score), 0) AS average_score").
			Where("owner_id = ?", ownerID).
			Scan(&agg).Error
	})
	if err != nil {
		return nil, err
	}
	return &agg, nil
}
