// Package capture defines the frame source contract used by the monitor loop.
package capture

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Frame formats understood by the classifier.
const (
	FormatJPEG = "jpeg"
	FormatPNG  = "png"
	FormatRGB  = "rgb"
)

// Frame is one still image pulled from the capture device.
type Frame struct {
	Data       []byte
	Width      int
	Height     int
	Format     string
	Source     string
	CapturedAt time.Time
}

// Empty reports whether the frame carries no pixel data.
func (f Frame) Empty() bool {
	return len(f.Data) == 0
}

// Extension returns the file extension used when archiving the frame.
func (f Frame) Extension() string {
	switch f.Format {
	case FormatPNG:
		return "png"
	case FormatRGB:
		return "rgb"
	default:
		return "jpg"
	}
}

// Source pulls one frame on demand.
type Source interface {
	Capture(ctx context.Context) (Frame, error)
}

// ErrDeviceUnavailable is the cause used when the device cannot produce a frame.
var ErrDeviceUnavailable = errors.New("capture: device unavailable")

// Error describes a failed capture attempt.
type Error struct {
	Source string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Source == "" {
		return fmt.Sprintf("capture: %v", e.Err)
	}
	return fmt.Sprintf("capture %s: %v", e.Source, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewError wraps err as a capture Error for the named source.
func NewError(source string, err error) error {
	if err == nil {
		err = ErrDeviceUnavailable
	}
	return &Error{Source: source, Err: err}
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) (Frame, error)

// Capture implements Source.
func (f SourceFunc) Capture(ctx context.Context) (Frame, error) {
	return f(ctx)
}
