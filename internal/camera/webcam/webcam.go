// Package webcam implements camera.Device on top of OpenCV video capture.
package webcam

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/example/snapclassify/internal/camera"
)

// DefaultQuality is the JPEG quality used for snapshots.
const DefaultQuality = 90

// Device opens a local video device by index.
type Device struct {
	id      int
	quality int
	logger  *zap.Logger
}

// New returns a device for the given index (0 is the first camera).
func New(id, quality int, logger *zap.Logger) *Device {
	if quality < 1 || quality > 100 {
		quality = DefaultQuality
	}
	return &Device{id: id, quality: quality, logger: logger.Named("webcam")}
}

// Open grabs the device. OpenCV reports both missing devices and refused access as a
// failed open; both map to camera.ErrDeviceUnavailable.
func (d *Device) Open(ctx context.Context) (camera.Capture, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	vc, err := gocv.OpenVideoCapture(d.id)
	if err != nil {
		return nil, fmt.Errorf("%w: open device %d: %v", camera.ErrDeviceUnavailable, d.id, err)
	}
	if !vc.IsOpened() {
		_ = vc.Close()
		return nil, fmt.Errorf("%w: device %d did not open", camera.ErrDeviceUnavailable, d.id)
	}

	d.logger.Info("video device opened",
		zap.Int("device", d.id),
		zap.Float64("width", vc.Get(gocv.VideoCaptureFrameWidth)),
		zap.Float64("height", vc.Get(gocv.VideoCaptureFrameHeight)))

	return &capture{vc: vc, frame: gocv.NewMat(), quality: d.quality}, nil
}

type capture struct {
	mu      sync.Mutex
	vc      *gocv.VideoCapture
	frame   gocv.Mat
	quality int
	closed  bool
}

func (c *capture) Snapshot(ctx context.Context) ([]byte, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, "", errors.New("webcam: capture closed")
	}
	if ok := c.vc.Read(&c.frame); !ok || c.frame.Empty() {
		return nil, "", errors.New("webcam: no frame available")
	}

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, c.frame, []int{int(gocv.IMWriteJpegQuality), c.quality})
	if err != nil {
		return nil, "", fmt.Errorf("webcam: encode frame: %w", err)
	}
	defer buf.Close()
	return bytes.Clone(buf.GetBytes()), "image/jpeg", nil
}

func (c *capture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if err := c.frame.Close(); err != nil {
		_ = c.vc.Close()
		return err
	}
	return c.vc.Close()
}
