// Package source acquires images from the camera or from files and hands them to
// classification.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/example/snapclassify/internal/camera"
	"github.com/example/snapclassify/internal/classifier"
	"github.com/example/snapclassify/internal/failure"
	"github.com/example/snapclassify/internal/media"
	"github.com/example/snapclassify/internal/notify"
	"github.com/example/snapclassify/internal/result"
)

// MaxImageSize bounds the content read from a file.
const MaxImageSize = 10 << 20

// Mode is the active input mode.
type Mode string

const (
	ModeUpload Mode = "upload"
	ModeCamera Mode = "camera"
)

// ErrUnknownMode is returned by SetMode for anything but upload or camera.
var ErrUnknownMode = errors.New("source: unknown input mode")

// Camera is the part of *camera.Session the pipeline drives.
type Camera interface {
	Start(ctx context.Context) error
	Capture(ctx context.Context) (media.Image, error)
	Stop()
}

// Classifier is implemented by *classifier.Client.
type Classifier interface {
	Classify(ctx context.Context, token uint64, img media.Image, endpoint string) (*classifier.Outcome, error)
}

// Endpoint supplies the working endpoint URL; *settings.Store implements it.
type Endpoint interface {
	URL() string
}

// State receives acquired images and issues the token their classification carries;
// *result.Model implements it.
type State interface {
	Acquire(source result.Source, img media.Image) uint64
}

// Recorder stores applied classification outcomes.
type Recorder interface {
	Record(ctx context.Context, src result.Source, img media.Image, out *classifier.Outcome) error
}

// Pipeline owns the current image and drives acquisition into classification.
type Pipeline struct {
	camera     Camera
	classifier Classifier
	endpoint   Endpoint
	state      State
	notifier   notify.Notifier
	recorder   Recorder
	logger     *zap.Logger

	mu   sync.Mutex
	mode Mode
}

// New wires a pipeline. The initial mode is upload.
func New(cam Camera, cls Classifier, endpoint Endpoint, state State, notifier notify.Notifier, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		camera:     cam,
		classifier: cls,
		endpoint:   endpoint,
		state:      state,
		notifier:   notifier,
		logger:     logger.Named("source"),
		mode:       ModeUpload,
	}
}

// WithRecorder enables the classification history.
func (p *Pipeline) WithRecorder(r Recorder) *Pipeline {
	p.recorder = r
	return p
}

// Mode returns the active input mode.
func (p *Pipeline) Mode() Mode {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.mode
}

// SetMode switches the input mode. Leaving camera mode stops the camera.
func (p *Pipeline) SetMode(mode Mode) error {
	if mode != ModeUpload && mode != ModeCamera {
		return fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}

	p.mu.Lock()
	previous := p.mode
	p.mode = mode
	p.mu.Unlock()

	if previous == ModeCamera && mode != ModeCamera {
		p.camera.Stop()
	}
	p.logger.Debug("input mode changed", zap.String("from", string(previous)), zap.String("to", string(mode)))
	return nil
}

// StartCamera switches to camera mode and opens the device. Permission and device
// failures are notified. Starting an already running camera is rejected silently.
func (p *Pipeline) StartCamera(ctx context.Context) error {
	if err := p.SetMode(ModeCamera); err != nil {
		return err
	}
	err := p.camera.Start(ctx)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, camera.ErrSessionBusy), errors.Is(err, camera.ErrSessionStopped):
		return err
	default:
		notify.Error(p.notifier, err)
		return err
	}
}

// FromFile validates and reads f, then classifies it. A file whose declared type is not
// an image is rejected before any state change or network call.
func (p *Pipeline) FromFile(ctx context.Context, f File) (*classifier.Outcome, error) {
	img, err := p.readFile(f)
	if err != nil {
		notify.Error(p.notifier, err)
		return nil, err
	}
	return p.classify(ctx, result.SourceFile, img)
}

// FromCamera captures a frame, stops the camera and classifies the frame.
// The camera is stopped on every path.
func (p *Pipeline) FromCamera(ctx context.Context) (*classifier.Outcome, error) {
	img, err := p.camera.Capture(ctx)
	p.camera.Stop()
	if err != nil {
		notify.Error(p.notifier, err)
		return nil, err
	}
	return p.classify(ctx, result.SourceCamera, img)
}

// Close releases the camera on teardown.
func (p *Pipeline) Close() error {
	p.camera.Stop()
	return nil
}

func (p *Pipeline) readFile(f File) (media.Image, error) {
	declared := f.ContentType()
	if !media.IsImageType(declared) {
		shown := declared
		if shown == "" {
			shown = "unknown type"
		}
		return media.Image{}, failure.New(failure.KindValidation,
			fmt.Sprintf("%s is not an image (%s)", f.Name(), shown))
	}
	mimeType, _, _ := mime.ParseMediaType(declared)

	rc, err := f.Open()
	if err != nil {
		return media.Image{}, failure.Wrap(failure.KindValidation, fmt.Sprintf("could not open %s", f.Name()), err)
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, MaxImageSize+1))
	if err != nil {
		return media.Image{}, failure.Wrap(failure.KindValidation, fmt.Sprintf("could not read %s", f.Name()), err)
	}
	if len(data) == 0 {
		return media.Image{}, failure.New(failure.KindValidation, fmt.Sprintf("%s is empty", f.Name()))
	}
	if len(data) > MaxImageSize {
		return media.Image{}, failure.New(failure.KindValidation,
			fmt.Sprintf("%s exceeds the %d MiB limit", f.Name(), MaxImageSize>>20))
	}
	return media.FromBytes(data, strings.ToLower(mimeType)), nil
}

func (p *Pipeline) classify(ctx context.Context, src result.Source, img media.Image) (*classifier.Outcome, error) {
	token := p.state.Acquire(src, img)
	endpoint := p.endpoint.URL()

	out, err := p.classifier.Classify(ctx, token, img, endpoint)
	if classifier.IsStale(err) {
		return out, err
	}
	if err != nil {
		notify.Error(p.notifier, err)
		return out, err
	}

	if p.recorder != nil {
		if rerr := p.recorder.Record(ctx, src, img, out); rerr != nil {
			p.logger.Warn("failed to record classification", zap.Error(rerr), zap.String("request_id", out.RequestID))
		}
	}
	return out, nil
}
