// Package httpsnap pulls still frames from an IP camera snapshot endpoint.
package httpsnap

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"time"

	"signalwatch/internal/capture"
)

const defaultMaxFrameBytes = 16 << 20

// Source fetches one JPEG/PNG snapshot per Capture call.
type Source struct {
	url      string
	name     string
	client   *http.Client
	maxBytes int64
}

// Option configures the source.
type Option func(*Source)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(s *Source) {
		if client != nil {
			s.client = client
		}
	}
}

// WithTimeout overrides the request timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(s *Source) {
		if timeout > 0 {
			s.client = &http.Client{Timeout: timeout}
		}
	}
}

// WithName sets the source label recorded on frames.
func WithName(name string) Option {
	return func(s *Source) {
		if name != "" {
			s.name = name
		}
	}
}

// NewSource constructs a snapshot source.
func NewSource(url string, opts ...Option) (*Source, error) {
	if url == "" {
		return nil, errors.New("httpsnap: empty url")
	}
	s := &Source{
		url:      url,
		name:     url,
		client:   &http.Client{Timeout: 5 * time.Second},
		maxBytes: defaultMaxFrameBytes,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Capture implements capture.Source.
func (s *Source) Capture(ctx context.Context) (capture.Frame, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return capture.Frame{}, capture.NewError(s.name, err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return capture.Frame{}, capture.NewError(s.name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return capture.Frame{}, capture.NewError(s.name, fmt.Errorf("non-2xx response %d", resp.StatusCode))
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, s.maxBytes+1))
	if err != nil {
		return capture.Frame{}, capture.NewError(s.name, err)
	}
	if int64(len(data)) > s.maxBytes {
		return capture.Frame{}, capture.NewError(s.name, errors.New("snapshot exceeds size limit"))
	}
	if len(data) == 0 {
		return capture.Frame{}, capture.NewError(s.name, errors.New("empty snapshot"))
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return capture.Frame{}, capture.NewError(s.name, fmt.Errorf("decode snapshot header: %w", err))
	}
	return capture.Frame{
		Data:       data,
		Width:      cfg.Width,
		Height:     cfg.Height,
		Format:     format,
		Source:     s.name,
		CapturedAt: time.Now().UTC(),
	}, nil
}
