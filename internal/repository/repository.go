package repository

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/TrueFaces/CNN-FineTuning/internal/logging"
	"github.com/TrueFaces/CNN-FineTuning/internal/retry"
)

var (
	// ErrNotFound is returned when no row matches the lookup.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when a unique constraint is violated.
	ErrDuplicate = errors.New("duplicate record")
)

// Migrate creates or updates every table owned by this package.
func Migrate(ctx context.Context, db *gorm.DB) error {
	return db.WithContext(ctx).AutoMigrate(&User{}, &ImageRecord{})
}

// base carries what every repository needs: a gorm handle and retry policy.
// Each call opens its own session through WithContext, so nothing is shared
// between requests.
type base struct {
	db     *gorm.DB
	logger *zap.Logger
	policy retry.Policy
}

func newBase(db *gorm.DB, logger *zap.Logger, name string) base {
	return base{db: db, logger: logger.Named(name), policy: retry.DefaultPolicy}
}

func (b *base) executeWithRetry(ctx context.Context, operation string, fn func(tx *gorm.DB) error) error {
	requestID := logging.RequestID(ctx)
	err := retry.Do(ctx, b.logger, b.policy, operation, requestID, func() error {
		return translateError(fn(b.db.WithContext(ctx)))
	})
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrDuplicate) {
		return err
	}
	logging.WithOperation(b.logger, operation, requestID).Error("database operation failed", zap.Error(err))
	return err
}

func translateError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrDuplicate
	}

	// Drivers that do not implement gorm's error translation.
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key") {
		return ErrDuplicate
	}
	return err
}
