package history

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/example/snapclassify/internal/classifier"
	"github.com/example/snapclassify/internal/media"
	"github.com/example/snapclassify/internal/repository"
	"github.com/example/snapclassify/internal/result"
)

type stubRepository struct {
	saved       []*repository.ClassificationLog
	saveErr     error
	lastLimit   int
	aggregation *repository.Aggregation
}

func (s *stubRepository) SaveLog(_ context.Context, log *repository.ClassificationLog) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saved = append(s.saved, log)
	return nil
}

func (s *stubRepository) Recent(_ context.Context, limit int) ([]*repository.ClassificationLog, error) {
	s.lastLimit = limit
	return s.saved, nil
}

func (s *stubRepository) Aggregate(context.Context) (*repository.Aggregation, error) {
	return s.aggregation, nil
}

func TestRecordPersistsTopPrediction(t *testing.T) {
	repo := &stubRepository{}
	rec := NewRecorder(repo, zap.NewNop())
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	rec.now = func() time.Time { return fixed }

	data := []byte("jpeg-bytes")
	out := &classifier.Outcome{
		Token:     4,
		RequestID: "req-1",
		Endpoint:  "http://model/predict",
		Predictions: []result.Prediction{
			{Class: "cat", Confidence: 0.9, ConfidencePercent: "90.00%", Rank: 1},
			{Class: "dog", Confidence: 0.1, ConfidencePercent: "10.00%", Rank: 2},
		},
		Latency: 150 * time.Millisecond,
	}

	if err := rec.Record(context.Background(), result.SourceCamera, media.FromBytes(data, "image/jpeg"), out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(repo.saved) != 1 {
		t.Fatalf("expected one saved entry, got %d", len(repo.saved))
	}

	sum := sha1.Sum(data)
	got := repo.saved[0]
	if got.TopClass != "cat" || got.TopConfidence != 0.9 || got.Predictions != 2 {
		t.Fatalf("unexpected entry: %+v", got)
	}
	if got.Source != "camera" || got.LatencyMs != 150 || got.Token != 4 {
		t.Fatalf("unexpected metadata: %+v", got)
	}
	if got.SHA1Hash != hex.EncodeToString(sum[:]) {
		t.Fatalf("unexpected hash %q", got.SHA1Hash)
	}
	if !got.CreatedAt.Equal(fixed) {
		t.Fatalf("unexpected timestamp %v", got.CreatedAt)
	}
}

func TestRecordWrapsRepositoryErrors(t *testing.T) {
	repo := &stubRepository{saveErr: errors.New("db down")}
	rec := NewRecorder(repo, zap.NewNop())

	out := &classifier.Outcome{RequestID: "req-2", Predictions: []result.Prediction{{Class: "cat", Confidence: 1, Rank: 1}}}
	err := rec.Record(context.Background(), result.SourceFile, media.FromBytes([]byte("x"), "image/png"), out)
	if err == nil || !errors.Is(err, repo.saveErr) {
		t.Fatalf("expected wrapped repository error, got %v", err)
	}
}

func TestRecordSkipsEmptyOutcome(t *testing.T) {
	repo := &stubRepository{}
	rec := NewRecorder(repo, zap.NewNop())

	if err := rec.Record(context.Background(), result.SourceFile, media.Image{}, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(repo.saved) != 0 {
		t.Fatalf("expected nothing saved")
	}
}

func TestRecentAppliesDefaultLimit(t *testing.T) {
	repo := &stubRepository{}
	rec := NewRecorder(repo, zap.NewNop())

	if _, err := rec.Recent(context.Background(), 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repo.lastLimit != DefaultLimit {
		t.Fatalf("expected default limit, got %d", repo.lastLimit)
	}
}

func TestSummaryMapsAggregation(t *testing.T) {
	repo := &stubRepository{aggregation: &repository.Aggregation{TotalCount: 3, AverageScore: 0.8, AverageLatencyMs: 120}}
	rec := NewRecorder(repo, zap.NewNop())

	summary, err := rec.Summary(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.TotalClassifications != 3 || summary.AverageTopConfidence != 0.8 || summary.AverageLatencyMs != 120 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
}
