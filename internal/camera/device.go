package camera

import (
	"context"
	"errors"
)

var (
	// ErrPermissionDenied is returned by a Device when access to the camera is refused.
	ErrPermissionDenied = errors.New("camera: permission denied")
	// ErrDeviceUnavailable is returned by a Device when no usable camera exists.
	ErrDeviceUnavailable = errors.New("camera: device unavailable")

	ErrSessionBusy    = errors.New("camera: session already started")
	ErrNotActive      = errors.New("camera: session not active")
	ErrSessionStopped = errors.New("camera: session stopped before access was granted")
)

// Device grants access to a video capture device.
type Device interface {
	Open(ctx context.Context) (Capture, error)
}

// Capture is an open device handle and its live frame sink.
type Capture interface {
	// Snapshot encodes the current frame at the device's resolution.
	Snapshot(ctx context.Context) (data []byte, mimeType string, err error)
	// Close releases every track held by the handle.
	Close() error
}
