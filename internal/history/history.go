// Package history keeps a log of applied classification results.
package history

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"time"

	"go.uber.org/zap"

	"github.com/example/snapclassify/internal/classifier"
	"github.com/example/snapclassify/internal/logging"
	"github.com/example/snapclassify/internal/media"
	"github.com/example/snapclassify/internal/repository"
	"github.com/example/snapclassify/internal/result"
)

// DefaultLimit is used by Recent when no positive limit is given.
const DefaultLimit = 20

// Repository defines the persistence operations the history needs.
type Repository interface {
	SaveLog(ctx context.Context, log *repository.ClassificationLog) error
	Recent(ctx context.Context, limit int) ([]*repository.ClassificationLog, error)
	Aggregate(ctx context.Context) (*repository.Aggregation, error)
}

// Summary represents aggregated classification insights.
type Summary struct {
	TotalClassifications int64   `json:"total_classifications"`
	AverageTopConfidence float64 `json:"average_top_confidence"`
	AverageLatencyMs     float64 `json:"average_latency_ms"`
}

// Recorder stores outcomes and reads them back.
type Recorder struct {
	repo   Repository
	logger *zap.Logger
	now    func() time.Time
}

// NewRecorder constructs a recorder on top of repo.
func NewRecorder(repo Repository, logger *zap.Logger) *Recorder {
	return &Recorder{repo: repo, logger: logger.Named("history"), now: time.Now}
}

// Record persists one applied outcome.
func (r *Recorder) Record(ctx context.Context, src result.Source, img media.Image, out *classifier.Outcome) error {
	if out == nil || len(out.Predictions) == 0 {
		return nil
	}
	opLogger := logging.WithOperation(r.logger, "history.record", out.RequestID)

	hash, err := hashImage(img)
	if err != nil {
		opLogger.Warn("failed to hash image", zap.Error(err))
	}

	top := out.Predictions[0]
	entry := &repository.ClassificationLog{
		RequestID:     out.RequestID,
		Token:         out.Token,
		Source:        string(src),
		Endpoint:      out.Endpoint,
		TopClass:      top.Class,
		TopConfidence: top.Confidence,
		Predictions:   len(out.Predictions),
		LatencyMs:     out.Latency.Milliseconds(),
		SHA1Hash:      hash,
		CreatedAt:     r.now().UTC(),
	}
	if err := r.repo.SaveLog(ctx, entry); err != nil {
		return logging.NewOperationError("history.record", out.RequestID, err)
	}
	opLogger.Debug("classification recorded", zap.String("top_class", top.Class), zap.String("sha1_hash", hash))
	return nil
}

// Recent returns the newest entries first.
func (r *Recorder) Recent(ctx context.Context, limit int) ([]*repository.ClassificationLog, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return r.repo.Recent(ctx, limit)
}

// Summary aggregates the recorded history.
func (r *Recorder) Summary(ctx context.Context) (*Summary, error) {
	aggregation, err := r.repo.Aggregate(ctx)
	if err != nil {
		return nil, err
	}
	return &Summary{
		TotalClassifications: aggregation.TotalCount,
		AverageTopConfidence: aggregation.AverageScore,
		AverageLatencyMs:     aggregation.AverageLatencyMs,
	}, nil
}

func hashImage(img media.Image) (string, error) {
	data, err := img.Bytes()
	if err != nil {
		return "", err
	}
	sum := sha1.Sum(data)
	return hex.EncodeToString(sum[:]), nil
}
