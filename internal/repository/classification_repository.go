package repository

import (
	"context"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ClassificationRepository persists the classification history.
type ClassificationRepository struct {
	db    *gorm.DB
	retry Retrier
}

// NewClassificationRepository creates a new repository instance.
func NewClassificationRepository(db *gorm.DB, logger *zap.Logger) *ClassificationRepository {
	return &ClassificationRepository{db: db, retry: NewRetrier(logger.Named("classification_repository"))}
}

// AutoMigrate ensures the schema is available.
func (r *ClassificationRepository) AutoMigrate(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&ClassificationLog{})
}

// SaveLog persists a classification log entry.
func (r *ClassificationRepository) SaveLog(ctx context.Context, log *ClassificationLog) error {
	return r.retry.Do(ctx, "repository.classification.save", log.RequestID, func() error {
		return r.db.WithContext(ctx).Create(log).Error
	})
}

// Recent returns up to limit entries, newest first.
func (r *ClassificationRepository) Recent(ctx context.Context, limit int) ([]*ClassificationLog, error) {
	var logs []*ClassificationLog
	err := r.retry.Do(ctx, "repository.classification.recent", "", func() error {
		return r.db.WithContext(ctx).Order("created_at DESC").Limit(limit).Find(&logs).Error
	})
	if err != nil {
		return nil, err
	}
	return logs, nil
}

// Aggregate computes totals and averages over all entries.
func (r *ClassificationRepository) Aggregate(ctx context.Context) (*Aggregation, error) {
	var row struct {
		TotalCount       int64
		AverageScore     float64
		AverageLatencyMs float64
	}
	err := r.retry.Do(ctx, "repository.classification.aggregate", "", func() error {
		return r.db.WithContext(ctx).Model(&ClassificationLog{}).
			Select("COUNT(*) AS total_count, COALESCE(AVG(top_confidence), 0) AS average_score, COALESCE(AVG(latency_ms), 0) AS average_latency_ms").
			Scan(&row).Error
	})
	if err != nil {
		return nil, err
	}
	return &Aggregation{
		TotalCount:       row.TotalCount,
		AverageScore:     row.AverageScore,
		AverageLatencyMs: row.AverageLatencyMs,
	}, nil
}
