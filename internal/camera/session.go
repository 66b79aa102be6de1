// Package camera owns the lifecycle of the live capture device.
package camera

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/example/snapclassify/internal/failure"
	"github.com/example/snapclassify/internal/media"
)

// State is the lifecycle state of a Session.
type State int

const (
	StateIdle State = iota
	StateRequesting
	StateActive
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRequesting:
		return "requesting"
	case StateActive:
		return "active"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// MarshalText renders the state name in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Session is the single owner of the capture device.
//
// Idle -> Requesting -> Active -> Idle, or Requesting -> Failed -> Idle when access fails.
// Stop is valid in every state and is idempotent.
type Session struct {
	device Device
	logger *zap.Logger

	mu        sync.Mutex
	state     State
	capture   Capture
	gen       uint64
	opening   bool
	observers []func(State)

	// io serialises snapshots with the release of the handle.
	io sync.Mutex
}

// NewSession creates an idle session for device.
func NewSession(device Device, logger *zap.Logger) *Session {
	return &Session{device: device, logger: logger.Named("camera")}
}

// OnStateChange registers fn to be called after every transition.
func (s *Session) OnStateChange(fn func(State)) {
	s.mu.Lock()
	s.observers = append(s.observers, fn)
	s.mu.Unlock()
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start requests device access. It is rejected with ErrSessionBusy unless the session is idle
// and no request abandoned by Stop is still waiting for the device.
// Access failures are returned as permission or device failures and leave the session idle.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateIdle || s.opening {
		state, opening := s.state, s.opening
		s.mu.Unlock()
		s.logger.Debug("start rejected", zap.Stringer("state", state), zap.Bool("opening", opening))
		return ErrSessionBusy
	}
	s.gen++
	gen := s.gen
	s.opening = true
	s.transitionLocked(StateRequesting)
	s.mu.Unlock()

	capture, err := s.device.Open(ctx)

	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		if capture != nil {
			s.release(capture)
			s.logger.Info("device granted after stop, released")
		}
		s.mu.Lock()
		s.opening = false
		s.mu.Unlock()
		return ErrSessionStopped
	}
	s.opening = false
	if err != nil {
		s.transitionLocked(StateFailed)
		s.transitionLocked(StateIdle)
		s.mu.Unlock()
		s.logger.Warn("camera access failed", zap.Error(err))
		return classifyOpenError(err)
	}
	if capture == nil {
		s.transitionLocked(StateFailed)
		s.transitionLocked(StateIdle)
		s.mu.Unlock()
		return failure.Wrap(failure.KindDevice, "the camera returned no stream", ErrDeviceUnavailable)
	}
	s.capture = capture
	s.transitionLocked(StateActive)
	s.mu.Unlock()
	s.logger.Info("camera started")
	return nil
}

// Stop releases the device and returns to idle. A pending Start is abandoned and its
// grant released as soon as it arrives.
func (s *Session) Stop() {
	s.mu.Lock()
	s.gen++
	capture := s.capture
	s.capture = nil
	wasIdle := s.state == StateIdle
	if !wasIdle {
		s.transitionLocked(StateIdle)
	}
	s.mu.Unlock()

	if capture != nil {
		s.release(capture)
		s.logger.Info("camera stopped")
	}
}

// Close stops the session on teardown.
func (s *Session) Close() error {
	s.Stop()
	return nil
}

// Capture takes a still frame from the active device. It does not stop the session.
func (s *Session) Capture(ctx context.Context) (media.Image, error) {
	data, mimeType, err := s.snapshot(ctx)
	if err != nil {
		return media.Image{}, err
	}
	return media.FromBytes(data, mimeType), nil
}

// Frame returns the current encoded frame for live preview.
func (s *Session) Frame(ctx context.Context) ([]byte, string, error) {
	return s.snapshot(ctx)
}

func (s *Session) snapshot(ctx context.Context) ([]byte, string, error) {
	s.io.Lock()
	defer s.io.Unlock()

	s.mu.Lock()
	capture, state := s.capture, s.state
	s.mu.Unlock()
	if state != StateActive || capture == nil {
		return nil, "", failure.Wrap(failure.KindDevice, "the camera is not active", ErrNotActive)
	}

	data, mimeType, err := capture.Snapshot(ctx)
	if err != nil {
		return nil, "", failure.Wrap(failure.KindDevice, "could not capture a frame", err)
	}
	if len(data) == 0 {
		return nil, "", failure.Wrap(failure.KindDevice, "could not capture a frame", ErrDeviceUnavailable)
	}
	if mimeType == "" {
		mimeType = "image/jpeg"
	}
	return data, mimeType, nil
}

func (s *Session) release(capture Capture) {
	s.io.Lock()
	defer s.io.Unlock()
	if err := capture.Close(); err != nil {
		s.logger.Warn("failed to release camera", zap.Error(err))
	}
}

// transitionLocked must be called with s.mu held. Observers run synchronously and
// must not call back into the session.
func (s *Session) transitionLocked(next State) {
	s.state = next
	for _, fn := range s.observers {
		fn(next)
	}
}

func classifyOpenError(err error) error {
	if errors.Is(err, ErrPermissionDenied) {
		return failure.Wrap(failure.KindPermission, "camera access was denied", err)
	}
	return failure.Wrap(failure.KindDevice, "the camera could not be started", err)
}
