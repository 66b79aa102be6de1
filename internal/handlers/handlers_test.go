package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/example/snapclassify/internal/camera"
	"github.com/example/snapclassify/internal/classifier"
	"github.com/example/snapclassify/internal/failure"
	"github.com/example/snapclassify/internal/media"
	"github.com/example/snapclassify/internal/notify"
	"github.com/example/snapclassify/internal/result"
	"github.com/example/snapclassify/internal/source"
)

type stubCamera struct {
	state camera.State
	stops int
}

func (c *stubCamera) Start(context.Context) error { return nil }
func (c *stubCamera) State() camera.State         { return c.state }

func (c *stubCamera) Stop() {
	c.stops++
	c.state = camera.StateIdle
}

func (c *stubCamera) Capture(context.Context) (media.Image, error) {
	return media.FromBytes([]byte("frame"), "image/jpeg"), nil
}

func (c *stubCamera) Frame(context.Context) ([]byte, string, error) {
	return []byte("jpeg"), "image/jpeg", nil
}

type classifyFunc func(ctx context.Context, img media.Image, endpoint string) (*classifier.Outcome, error)

func (f classifyFunc) Classify(ctx context.Context, _ uint64, img media.Image, endpoint string) (*classifier.Outcome, error) {
	return f(ctx, img, endpoint)
}

type stubConfig struct {
	mu      sync.Mutex
	url     string
	saveErr error
}

func (s *stubConfig) URL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.url
}

func (s *stubConfig) Save(_ context.Context, url string) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.mu.Lock()
	s.url = url
	s.mu.Unlock()
	return nil
}

type testServer struct {
	router *gin.Engine
	camera *stubCamera
	config *stubConfig
	model  *result.Model
	calls  int
}

func newTestServer(t *testing.T, classify classifyFunc) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	ts := &testServer{
		router: gin.New(),
		camera: &stubCamera{},
		config: &stubConfig{url: "http://model/predict"},
		model:  result.NewModel(),
	}
	ts.router.MaxMultipartMemory = MaxUploadSize

	counting := classifyFunc(func(ctx context.Context, img media.Image, endpoint string) (*classifier.Outcome, error) {
		ts.calls++
		return classify(ctx, img, endpoint)
	})
	notifier := notify.Func(func(failure.Kind, string, string) {})
	pipeline := source.New(ts.camera, counting, ts.config, ts.model, notifier, zap.NewNop())

	RegisterRoutes(ts.router, Dependencies{
		Pipeline: pipeline,
		Camera:   ts.camera,
		Results:  ts.model,
		Config:   ts.config,
		Logger:   zap.NewNop(),
	})
	return ts
}

func okOutcome(_ context.Context, _ media.Image, endpoint string) (*classifier.Outcome, error) {
	return &classifier.Outcome{
		RequestID:   "req-1",
		Endpoint:    endpoint,
		Predictions: []result.Prediction{{Class: "cat", Confidence: 0.9, ConfidencePercent: "90.00%", Rank: 1}},
	}, nil
}

func (ts *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	resp := httptest.NewRecorder()
	ts.router.ServeHTTP(resp, req)
	return resp
}

func TestUploadRejectsLargeUpload(t *testing.T) {
	ts := newTestServer(t, okOutcome)

	body, contentType := buildMultipartBody(t, "image/png", bytes.Repeat([]byte("a"), MaxUploadSize+1))
	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set("Content-Type", contentType)

	resp := ts.do(req)
	if resp.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected status %d, got %d", http.StatusRequestEntityTooLarge, resp.Code)
	}
	if ts.calls != 0 {
		t.Fatalf("expected no classification")
	}
}

func TestUploadRejectsUnsupportedContentType(t *testing.T) {
	ts := newTestServer(t, okOutcome)

	body, contentType := buildMultipartBody(t, "text/plain", []byte("hello"))
	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set("Content-Type", contentType)

	resp := ts.do(req)
	if resp.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("expected status %d, got %d", http.StatusUnsupportedMediaType, resp.Code)
	}
	if ts.calls != 0 {
		t.Fatalf("expected no classification")
	}
	if ts.model.Snapshot().Image != "" {
		t.Fatalf("expected no image acquired")
	}
}

func TestUploadClassifiesImage(t *testing.T) {
	ts := newTestServer(t, okOutcome)

	body, contentType := buildMultipartBody(t, "image/png", []byte("png"))
	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set("Content-Type", contentType)

	resp := ts.do(req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var payload struct {
		RequestID string            `json:"request_id"`
		Endpoint  string            `json:"endpoint"`
		Top       result.Prediction `json:"top"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.RequestID != "req-1" || payload.Top.Class != "cat" || payload.Endpoint != "http://model/predict" {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestClassificationFailuresMapToStatus(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"configuration", failure.New(failure.KindConfiguration, "no endpoint"), http.StatusPreconditionFailed},
		{"network", failure.New(failure.KindNetwork, "unreachable"), http.StatusBadGateway},
		{"server", failure.Server(http.StatusInternalServerError), http.StatusBadGateway},
		{"server reported", failure.New(failure.KindServerReported, "bad model"), http.StatusUnprocessableEntity},
		{"empty result", failure.New(failure.KindEmptyResult, "nothing"), http.StatusUnprocessableEntity},
		{"stale", failure.ErrStale, http.StatusConflict},
		{"unclassified", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ts := newTestServer(t, func(context.Context, media.Image, string) (*classifier.Outcome, error) {
				return nil, tc.err
			})
			ts.camera.state = camera.StateActive

			resp := ts.do(httptest.NewRequest(http.MethodPost, "/api/camera/capture", nil))
			if resp.Code != tc.status {
				t.Fatalf("expected status %d, got %d", tc.status, resp.Code)
			}
			if ts.camera.stops != 1 {
				t.Fatalf("expected camera stopped after capture")
			}
		})
	}
}

func TestStatusForCameraErrors(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{failure.Wrap(failure.KindPermission, "denied", camera.ErrPermissionDenied), http.StatusForbidden},
		{failure.Wrap(failure.KindDevice, "gone", camera.ErrDeviceUnavailable), http.StatusServiceUnavailable},
		{camera.ErrSessionBusy, http.StatusConflict},
		{camera.ErrSessionStopped, http.StatusConflict},
	}
	for _, tc := range cases {
		if got := statusFor(tc.err); got != tc.want {
			t.Fatalf("statusFor(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

func TestConfigRoundTrip(t *testing.T) {
	ts := newTestServer(t, okOutcome)

	req := httptest.NewRequest(http.MethodPut, "/api/config", strings.NewReader(`{"url":"http://other/predict"}`))
	req.Header.Set("Content-Type", "application/json")
	if resp := ts.do(req); resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}

	resp := ts.do(httptest.NewRequest(http.MethodGet, "/api/config", nil))
	if !strings.Contains(resp.Body.String(), "http://other/predict") {
		t.Fatalf("unexpected config body: %s", resp.Body.String())
	}
}

func TestConfigSaveFailure(t *testing.T) {
	ts := newTestServer(t, okOutcome)
	ts.config.saveErr = errors.New("disk full")

	req := httptest.NewRequest(http.MethodPut, "/api/config", strings.NewReader(`{"url":"http://other/predict"}`))
	req.Header.Set("Content-Type", "application/json")
	if resp := ts.do(req); resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", resp.Code)
	}
	if ts.config.URL() != "http://model/predict" {
		t.Fatalf("expected previous url kept")
	}
}

func TestModeSwitchStopsCamera(t *testing.T) {
	ts := newTestServer(t, okOutcome)

	for _, mode := range []string{"camera", "upload"} {
		req := httptest.NewRequest(http.MethodPost, "/api/mode", strings.NewReader(fmt.Sprintf(`{"mode":%q}`, mode)))
		req.Header.Set("Content-Type", "application/json")
		if resp := ts.do(req); resp.Code != http.StatusOK {
			t.Fatalf("expected status 200 for %s, got %d", mode, resp.Code)
		}
	}
	if ts.camera.stops != 1 {
		t.Fatalf("expected camera stopped when leaving camera mode")
	}

	req := httptest.NewRequest(http.MethodPost, "/api/mode", strings.NewReader(`{"mode":"scanner"}`))
	req.Header.Set("Content-Type", "application/json")
	if resp := ts.do(req); resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", resp.Code)
	}
}

func TestFrameRequiresActiveCamera(t *testing.T) {
	ts := newTestServer(t, okOutcome)

	if resp := ts.do(httptest.NewRequest(http.MethodGet, "/api/camera/frame", nil)); resp.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", resp.Code)
	}

	ts.camera.state = camera.StateActive
	resp := ts.do(httptest.NewRequest(http.MethodGet, "/api/camera/frame", nil))
	if resp.Code != http.StatusOK || resp.Header().Get("Content-Type") != "image/jpeg" {
		t.Fatalf("unexpected frame response: %d %q", resp.Code, resp.Header().Get("Content-Type"))
	}
}

func TestHistoryDisabled(t *testing.T) {
	ts := newTestServer(t, okOutcome)

	for _, path := range []string{"/api/history", "/api/history/summary"} {
		if resp := ts.do(httptest.NewRequest(http.MethodGet, path, nil)); resp.Code != http.StatusNotFound {
			t.Fatalf("expected status 404 for %s, got %d", path, resp.Code)
		}
	}
}

func buildMultipartBody(t *testing.T, contentType string, payload []byte) (*bytes.Buffer, string) {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="image"; filename="upload"`)
	header.Set("Content-Type", contentType)

	part, err := writer.CreatePart(header)
	if err != nil {
		t.Fatalf("failed to create multipart part: %v", err)
	}
	if _, err := part.Write(payload); err != nil {
		t.Fatalf("failed to write payload: %v", err)
	}

	if err := writer.Close(); err != nil {
		t.Fatalf("failed to close writer: %v", err)
	}

	return body, writer.FormDataContentType()
}
