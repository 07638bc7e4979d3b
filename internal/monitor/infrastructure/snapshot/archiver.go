package snapshot

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"signalwatch/internal/capture"
	observations "signalwatch/internal/observations/domain"
)

// DirArchiver writes malfunction frames into a directory.
type DirArchiver struct {
	dir string
}

// NewDirArchiver constructs an archiver rooted at dir, creating it when missing.
func NewDirArchiver(dir string) (*DirArchiver, error) {
	if dir == "" {
		return nil, errors.New("snapshot archiver: empty dir")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("snapshot archiver: %w", err)
	}
	return &DirArchiver{dir: dir}, nil
}

// Archive stores the frame as malfunction_YYYYmmdd_HHMMSS.<ext> and returns its path.
// A second frame in the same second gets the sequence id appended.
func (a *DirArchiver) Archive(frame capture.Frame, obs observations.Observation) (string, error) {
	if a == nil {
		return "", errors.New("snapshot archiver: nil")
	}
	if frame.Empty() {
		return "", errors.New("snapshot archiver: empty frame")
	}
	at := obs.Timestamp
	if at.IsZero() {
		at = time.Now().UTC()
	}
	name := fmt.Sprintf("malfunction_%s.%s", at.UTC().Format("20060102_150405"), frame.Extension())
	path := filepath.Join(a.dir, name)
	if _, err := os.Stat(path); err == nil {
		name = fmt.Sprintf("malfunction_%s_%d.%s", at.UTC().Format("20060102_150405"), obs.SequenceID, frame.Extension())
		path = filepath.Join(a.dir, name)
	}
	if err := os.WriteFile(path, frame.Data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}
