package observations

import (
	"errors"
	"fmt"
)

var (
	// ErrStorageFault marks an unrecoverable append or query failure in the log backend.
	ErrStorageFault = errors.New("observations: storage fault")
	// ErrInvalidRange is returned when a range query has to <= from.
	ErrInvalidRange = errors.New("observations: invalid range")
	// ErrNilLog is returned when a component is wired without a log.
	ErrNilLog = errors.New("observations: nil log")
	// ErrInvalidLimit is returned for a history size outside 1..MaxRecentLimit.
	ErrInvalidLimit = errors.New("observations: invalid limit")
)

// StorageFault wraps a backend error so callers can match ErrStorageFault.
func StorageFault(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", ErrStorageFault, op, err)
}
