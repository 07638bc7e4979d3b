package httpsnap

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"

	"signalwatch/internal/capture"
)

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 10, G: 10, B: 10, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestCaptureReadsSnapshot(t *testing.T) {
	payload := encodePNG(t, 12, 30)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(payload)
	}))
	defer server.Close()

	src, err := NewSource(server.URL, WithName("cam-1"))
	if err != nil {
		t.Fatalf("new source: %v", err)
	}
	frame, err := src.Capture(context.Background())
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	if frame.Width != 12 || frame.Height != 30 {
		t.Fatalf("unexpected dimensions %dx%d", frame.Width, frame.Height)
	}
	if frame.Format != capture.FormatPNG || frame.Source != "cam-1" {
		t.Fatalf("unexpected frame metadata: %+v", frame)
	}
}

func TestCaptureReportsCaptureError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	src, err := NewSource(server.URL)
	if err != nil {
		t.Fatalf("new source: %v", err)
	}
	_, err = src.Capture(context.Background())
	var capErr *capture.Error
	if !errors.As(err, &capErr) {
		t.Fatalf("expected capture error, got %v", err)
	}
}
