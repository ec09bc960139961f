package usecase

import "context"

// ImageStats summarizes the images a user has saved.
type ImageStats struct {
	TotalImages  int64   `json:"total_images"`
	FaceImages   int64   `json:"face_images"`
	FaceRate     float64 `json:"face_rate"`
	AverageScore float64 `json:"average_score"`
}

// Stats aggregates prediction metrics over ownerID's saved images.
func (uc *ImageUseCase) Stats(ctx context.Context, ownerID uint) (*ImageStats, error) {
	aggregation, err := uc.repo.AggregateStats(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	stats := &ImageStats{
		TotalImages:  aggregation.TotalCount,
		FaceImages:   aggregation.FaceCount,
		AverageScore: aggregation.AverageScore,
	}

	if aggregation.TotalCount > 0 {
		stats.FaceRate = float64(aggregation.FaceCount) / float64(aggregation.TotalCount)
	}

	return stats, nil
}
