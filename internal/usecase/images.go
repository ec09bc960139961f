package usecase

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/TrueFaces/CNN-FineTuning/internal/logging"
	"github.com/TrueFaces/CNN-FineTuning/internal/repository"
	"github.com/TrueFaces/CNN-FineTuning/internal/storage"
)

// ImageRepository defines the persistence operations needed for saved images.
type ImageRepository interface {
	Create(ctx context.Context, record *repository.ImageRecord) error
	FindByPublicIDAndOwner(ctx context.Context, publicID string, ownerID uint) (*repository.ImageRecord, error)
	ListByOwner(ctx context.Context, ownerID uint, limit, offset int) ([]*repository.ImageRecord, error)
	UpdateFilename(ctx context.Context, record *repository.ImageRecord) error
	Delete(ctx context.Context, id uint) error
	AggregateStats(ctx context.Context, ownerID uint) (*repository.ImageAggregation, error)
}

// BlobStore keeps the original bytes of saved images.
type BlobStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// Predictor classifies an upload.
type Predictor interface {
	Predict(ctx context.Context, upload Upload) (*Prediction, error)
}

// ImageUseCase manages the images a user chose to keep, with their predictions.
type ImageUseCase struct {
	repo      ImageRepository
	predictor Predictor
	blobs     BlobStore
	logger    *zap.Logger
}

// NewImageUseCase constructs a new use case instance. blobs may be nil, in
// which case only metadata is kept.
func NewImageUseCase(repo ImageRepository, predictor Predictor, blobs BlobStore, logger *zap.Logger) *ImageUseCase {
	return &ImageUseCase{repo: repo, predictor: predictor, blobs: blobs, logger: logger.Named("image_usecase")}
}

// Save classifies upload and stores it for ownerID.
func (uc *ImageUseCase) Save(ctx context.Context, ownerID uint, upload Upload) (*repository.ImageRecord, error) {
	prediction, err := uc.predictor.Predict(ctx, upload)
	if err != nil {
		return nil, err
	}

	opLogger := logging.WithOperation(uc.logger, "usecase.save_image", prediction.RequestID)
	record := &repository.ImageRecord{
		PublicID:    uuid.NewString(),
		OwnerID:     ownerID,
		Filename:    upload.Filename,
		ContentType: upload.ContentType,
		SizeBytes:   int64(len(upload.Data)),
		SHA1Hash:    prediction.SHA1Hash,
		Prediction:  prediction.Label,
		Score:       prediction.Score,
		IsFace:      prediction.IsFace,
	}

	if uc.blobs != nil {
		record.ObjectKey = storage.ImageKey(ownerID, record.PublicID)
		if err := uc.blobs.Put(ctx, record.ObjectKey, bytes.NewReader(upload.Data), record.SizeBytes, upload.ContentType); err != nil {
			wrapped := logging.NewOperationError("storage.put_image", prediction.RequestID, err)
			opLogger.Error("failed to store image", zap.Error(wrapped))
			return nil, wrapped
		}
	}

	if err := uc.repo.Create(ctx, record); err != nil {
		if record.ObjectKey != "" {
			if delErr := uc.blobs.Delete(ctx, record.ObjectKey); delErr != nil {
				opLogger.Warn("failed to remove orphaned blob", zap.Error(delErr), zap.String("key", record.ObjectKey))
			}
		}
		return nil, err
	}

	opLogger.Info("image saved", zap.String("image_id", record.PublicID), zap.Uint("owner_id", ownerID))
	return record, nil
}

// Get returns one of ownerID's images.
func (uc *ImageUseCase) Get(ctx context.Context, ownerID uint, publicID string) (*repository.ImageRecord, error) {
	return uc.repo.FindByPublicIDAndOwner(ctx, publicID, ownerID)
}

// List returns a page of ownerID's images, newest first.
func (uc *ImageUseCase) List(ctx context.Context, ownerID uint, limit, offset int) ([]*repository.ImageRecord, error) {
	limit, offset = clampPage(limit, offset)
	return uc.repo.ListByOwner(ctx, ownerID, limit, offset)
}

// Rename changes the stored filename.
func (uc *ImageUseCase) Rename(ctx context.Context, ownerID uint, publicID, filename string) (*repository.ImageRecord, error) {
	filename = strings.TrimSpace(filename)
	if filename == "" {
		return nil, fmt.Errorf("%w: filename must not be empty", ErrInvalidInput)
	}

	record, err := uc.repo.FindByPublicIDAndOwner(ctx, publicID, ownerID)
	if err != nil {
		return nil, err
	}
	record.Filename = filename
	if err := uc.repo.UpdateFilename(ctx, record); err != nil {
		return nil, err
	}
	return record, nil
}

// Delete removes the record and its blob.
func (uc *ImageUseCase) Delete(ctx context.Context, ownerID uint, publicID string) error {
	record, err := uc.repo.FindByPublicIDAndOwner(ctx, publicID, ownerID)
	if err != nil {
		return err
	}
	if err := uc.repo.Delete(ctx, record.ID); err != nil {
		return err
	}

	if record.ObjectKey != "" && uc.blobs != nil {
		if err := uc.blobs.Delete(ctx, record.ObjectKey); err != nil {
			logging.WithOperation(uc.logger, "usecase.delete_image", logging.RequestID(ctx)).
				Warn("failed to remove blob", zap.Error(err), zap.String("key", record.ObjectKey))
		}
	}
	return nil
}

// Content opens the original bytes of an image. The caller closes the reader.
func (uc *ImageUseCase) Content(ctx context.Context, ownerID uint, publicID string) (io.ReadCloser, *repository.ImageRecord, error) {
	record, err := uc.repo.FindByPublicIDAndOwner(ctx, publicID, ownerID)
	if err != nil {
		return nil, nil, err
	}
	if uc.blobs == nil || record.ObjectKey == "" {
		return nil, nil, ErrStorageDisabled
	}

	body, err := uc.blobs.Get(ctx, record.ObjectKey)
	if err != nil {
		return nil, nil, logging.NewOperationError("storage.get_image", logging.RequestID(ctx), err)
	}
	return body, record, nil
}
