// Package filesource replays still images from disk as if they came from a camera.
package filesource

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"signalwatch/internal/capture"
)

// Source returns a file per Capture call. A directory is replayed in name order and wraps around.
type Source struct {
	mu    sync.Mutex
	files []string
	next  int
	name  string
}

// NewSource constructs a source from a single image file or a directory of images.
func NewSource(path string) (*Source, error) {
	if path == "" {
		return nil, errors.New("filesource: empty path")
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("filesource: %w", err)
	}
	if !info.IsDir() {
		return &Source{files: []string{path}, name: path}, nil
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("filesource: %w", err)
	}
	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".jpg", ".jpeg", ".png":
			files = append(files, filepath.Join(path, entry.Name()))
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("filesource: no images in %s", path)
	}
	sort.Strings(files)
	return &Source{files: files, name: path}, nil
}

// Capture implements capture.Source.
func (s *Source) Capture(ctx context.Context) (capture.Frame, error) {
	if err := ctx.Err(); err != nil {
		return capture.Frame{}, capture.NewError(s.name, err)
	}
	s.mu.Lock()
	file := s.files[s.next]
	s.next = (s.next + 1) % len(s.files)
	s.mu.Unlock()

	data, err := os.ReadFile(file)
	if err != nil {
		return capture.Frame{}, capture.NewError(s.name, err)
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return capture.Frame{}, capture.NewError(s.name, fmt.Errorf("decode %s: %w", filepath.Base(file), err))
	}
	return capture.Frame{
		Data:       data,
		Width:      cfg.Width,
		Height:     cfg.Height,
		Format:     format,
		Source:     filepath.Base(file),
		CapturedAt: time.Now().UTC(),
	}, nil
}
