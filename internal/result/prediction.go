package result

import (
	"errors"
	"fmt"
	"sort"

	"github.com/go-playground/validator/v10"
)

// Prediction is one ranked classification candidate.
type Prediction struct {
	Class             string  `json:"class" validate:"required"`
	Confidence        float64 `json:"confidence" validate:"gte=0,lte=1"`
	ConfidencePercent string  `json:"confidence_percent"`
	Rank              int     `json:"rank" validate:"gte=1"`
}

// ErrInvalidPredictions is returned by Normalize for lists that break the ranking contract.
var ErrInvalidPredictions = errors.New("invalid prediction list")

var validate = validator.New()

// Normalize validates a non-empty prediction list and returns a copy ordered by rank.
// Ranks must be unique and contiguous from 1 with non-increasing confidence.
func Normalize(preds []Prediction) ([]Prediction, error) {
	if len(preds) == 0 {
		return nil, fmt.Errorf("%w: empty", ErrInvalidPredictions)
	}

	out := make([]Prediction, len(preds))
	copy(out, preds)
	for i := range out {
		if err := validate.Struct(out[i]); err != nil {
			return nil, fmt.Errorf("%w: prediction %d: %v", ErrInvalidPredictions, i, err)
		}
		if out[i].ConfidencePercent == "" {
			out[i].ConfidencePercent = FormatPercent(out[i].Confidence)
		}
	}

	sort.SliceStable(out, func(a, b int) bool { return out[a].Rank < out[b].Rank })
	for i, p := range out {
		if p.Rank != i+1 {
			return nil, fmt.Errorf("%w: expected rank %d, got %d", ErrInvalidPredictions, i+1, p.Rank)
		}
		if i > 0 && p.Confidence > out[i-1].Confidence {
			return nil, fmt.Errorf("%w: rank %d has higher confidence than rank %d", ErrInvalidPredictions, p.Rank, out[i-1].Rank)
		}
	}
	return out, nil
}

// FormatPercent renders a confidence in [0,1] the way the inference server does.
func FormatPercent(confidence float64) string {
	return fmt.Sprintf("%.2f%%", confidence*100)
}
