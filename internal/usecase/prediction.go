package usecase

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/TrueFaces/CNN-FineTuning/internal/logging"
	"github.com/TrueFaces/CNN-FineTuning/internal/model"
	"github.com/TrueFaces/CNN-FineTuning/internal/preprocess"
	"github.com/TrueFaces/CNN-FineTuning/internal/retry"
)

const (
	// FaceLabel is returned when the model output is above FaceThreshold.
	FaceLabel = "La imagen es una cara."
	// NoFaceLabel is returned otherwise, including at exactly FaceThreshold.
	NoFaceLabel = "La imagen no es una cara."

	FaceThreshold float32 = 0.5
)

// Upload is an image received in a multipart request. It lives only for
// the duration of the request.
type Upload struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Prediction is the outcome of classifying one upload.
type Prediction struct {
	RequestID   string
	Filename    string
	ContentType string
	Label       string
	Score       float32
	IsFace      bool
	SHA1Hash    string
	Cached      bool
}

// Classify maps a raw model output to its label.
func Classify(score float32) (string, bool) {
	if score > FaceThreshold {
		return FaceLabel, true
	}
	return NoFaceLabel, false
}

// PredictionUseCase runs uploads through preprocessing and the classifier.
type PredictionUseCase struct {
	classifier model.Classifier
	modelID    string
	cache      Cache
	logger     *zap.Logger
	policy     retry.Policy
	cacheTTL   time.Duration
}

// NewPredictionUseCase constructs a new use case instance. cache may be NoopCache.
func NewPredictionUseCase(classifier model.Classifier, cache Cache, logger *zap.Logger) *PredictionUseCase {
	return &PredictionUseCase{
		classifier: classifier,
		modelID:    model.ID(classifier),
		cache:      cache,
		logger:     logger.Named("prediction_usecase"),
		policy:     retry.DefaultPolicy,
		cacheTTL:   PredictionCacheTTL,
	}
}

// Predict classifies upload. Scores are cached by content hash, so the same
// bytes always produce the same label without a second forward pass.
func (uc *PredictionUseCase) Predict(ctx context.Context, upload Upload) (*Prediction, error) {
	requestID := logging.RequestID(ctx)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	opLogger := logging.WithOperation(uc.logger, "usecase.predict", requestID)

	hash := sha1.Sum(upload.Data)
	hashHex := hex.EncodeToString(hash[:])
	cacheKey := predictionCacheKey(uc.modelID, hashHex)

	prediction := &Prediction{
		RequestID:   requestID,
		Filename:    upload.Filename,
		ContentType: upload.ContentType,
		SHA1Hash:    hashHex,
	}

	score, ok := uc.cachedScore(ctx, requestID, cacheKey)
	if ok {
		prediction.Cached = true
	} else {
		tensor, err := preprocess.Tensor(upload.Data)
		if err != nil {
			wrapped := logging.NewOperationError("usecase.preprocess", requestID, err)
			opLogger.Error("failed to preprocess image", zap.Error(wrapped), zap.String("filename", upload.Filename))
			return nil, wrapped
		}

		score, err = uc.classifier.Predict(ctx, tensor)
		if err != nil {
			wrapped := logging.NewOperationError("usecase.forward_pass", requestID, err)
			opLogger.Error("model inference failed", zap.Error(wrapped))
			return nil, wrapped
		}

		if err := retry.Do(ctx, uc.logger, uc.policy, "cache.set.prediction", requestID, func() error {
			return uc.cache.Set(ctx, cacheKey, encodeScore(score), uc.cacheTTL)
		}); err != nil {
			opLogger.Warn("failed to cache prediction", zap.Error(err))
		}
	}

	prediction.Score = score
	prediction.Label, prediction.IsFace = Classify(score)

	opLogger.Info("image classified",
		zap.String("filename", upload.Filename),
		zap.Float32("score", score),
		zap.Bool("is_face", prediction.IsFace),
		zap.Bool("cached", prediction.Cached),
	)
	return prediction, nil
}

func (uc *PredictionUseCase) cachedScore(ctx context.Context, requestID, key string) (float32, bool) {
	var value string
	err := retry.Do(ctx, uc.logger, uc.policy, "cache.get.prediction", requestID, func() error {
		v, err := uc.cache.Get(ctx, key)
		if err != nil {
			return err
		}
		value = v
		return nil
	})
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logging.WithOperation(uc.logger, "usecase.predict", requestID).Warn("failed to read cache", zap.Error(err))
		}
		return 0, false
	}

	score, err := decodeScore(value)
	if err != nil {
		logging.WithOperation(uc.logger, "usecase.predict", requestID).Warn("failed to decode cached score", zap.Error(err))
		return 0, false
	}
	return score, true
}
