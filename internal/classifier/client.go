// Package classifier sends images to the configured inference endpoint and publishes
// the ranked predictions, discarding responses that a newer request has superseded.
package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/snapclassify/internal/failure"
	"github.com/example/snapclassify/internal/logging"
	"github.com/example/snapclassify/internal/media"
	"github.com/example/snapclassify/internal/result"
)

const maxResponseBytes = 4 << 20

// Doer is the subset of *http.Client used by the client.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Tracker applies outcomes only for the token of the current image.
// *result.Model implements it.
type Tracker interface {
	Begin(token uint64) bool
	Succeed(token uint64, preds []result.Prediction) bool
	Fail(token uint64) bool
}

// Outcome describes one classification call.
type Outcome struct {
	Token       uint64
	RequestID   string
	Endpoint    string
	Predictions []result.Prediction
	Latency     time.Duration
}

type requestBody struct {
	Image string `json:"image"`
}

type responseBody struct {
	Predictions []result.Prediction `json:"predictions"`
	Error       string              `json:"error"`
}

// Client performs classification requests.
type Client struct {
	http    Doer
	tracker Tracker
	logger  *zap.Logger
}

// NewClient wires a client to its transport and state tracker.
func NewClient(httpClient Doer, tracker Tracker, logger *zap.Logger) *Client {
	return &Client{
		http:    httpClient,
		tracker: tracker,
		logger:  logger.Named("classifier"),
	}
}

// Classify posts img, acquired under token, to endpoint. The endpoint is used exactly as
// passed; callers capture it at call time. When another image has replaced img, before
// the request or while it is in flight, Classify returns failure.ErrStale together with
// the outcome and changes no state.
func (c *Client) Classify(ctx context.Context, token uint64, img media.Image, endpoint string) (*Outcome, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, failure.New(failure.KindConfiguration, "no inference endpoint is configured")
	}

	out := &Outcome{
		Token:     token,
		RequestID: uuid.NewString(),
		Endpoint:  endpoint,
	}
	opLogger := logging.WithOperation(c.logger, "classifier.classify", out.RequestID).
		With(zap.Uint64("token", out.Token), zap.String("endpoint", endpoint))

	if !c.tracker.Begin(token) {
		opLogger.Debug("image replaced before the request was sent")
		return out, failure.ErrStale
	}

	start := time.Now()
	preds, err := c.roundTrip(ctx, img, endpoint)
	out.Latency = time.Since(start)

	if err != nil {
		if !c.tracker.Fail(out.Token) {
			opLogger.Debug("discarding stale failure", zap.Error(err))
			return out, failure.ErrStale
		}
		opLogger.Warn("classification failed", zap.Error(err), zap.Duration("latency", out.Latency))
		return out, err
	}

	if !c.tracker.Succeed(out.Token, preds) {
		opLogger.Debug("discarding stale response", zap.Duration("latency", out.Latency))
		return out, failure.ErrStale
	}
	out.Predictions = preds
	opLogger.Info("classification applied",
		zap.String("top_class", preds[0].Class),
		zap.Float64("top_confidence", preds[0].Confidence),
		zap.Duration("latency", out.Latency))
	return out, nil
}

func (c *Client) roundTrip(ctx context.Context, img media.Image, endpoint string) ([]result.Prediction, error) {
	payload, err := json.Marshal(requestBody{Image: img.Payload()})
	if err != nil {
		return nil, failure.Wrap(failure.KindNetwork, "could not encode the request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, failure.Wrap(failure.KindNetwork, "invalid inference endpoint", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("ngrok-skip-browser-warning", "true")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, failure.Wrap(failure.KindNetwork, "could not reach the inference endpoint", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return nil, failure.Server(resp.StatusCode)
	}

	var body responseBody
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&body); err != nil {
		return nil, failure.Wrap(failure.KindNetwork, "malformed response from the inference endpoint", err)
	}
	if body.Error != "" {
		return nil, failure.New(failure.KindServerReported, body.Error)
	}
	if len(body.Predictions) == 0 {
		return nil, failure.New(failure.KindEmptyResult, "the inference endpoint returned no predictions")
	}

	preds, err := result.Normalize(body.Predictions)
	if err != nil {
		return nil, failure.Wrap(failure.KindNetwork, "malformed response from the inference endpoint", err)
	}
	return preds, nil
}

// IsStale reports whether err marks a superseded response.
func IsStale(err error) bool {
	return errors.Is(err, failure.ErrStale)
}
