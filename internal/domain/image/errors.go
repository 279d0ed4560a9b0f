package image

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound    = errors.New("image not found")
	ErrIDCollision = errors.New("image id already cataloged")
	ErrNoFile      = errors.New("no image data provided")
)

// DuplicateError is a rejection outcome, not a failure: the submitted
// image is a perceptual duplicate of an already-cataloged one.
type DuplicateError struct {
	DuplicateOf string
	Distance    int
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("duplicate of cataloged image %s (hamming distance %d)", e.DuplicateOf, e.Distance)
}

// ProcessingError wraps a resize or encode failure for a single image.
type ProcessingError struct {
	Detail string
	Err    error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("processing failed: %s: %v", e.Detail, e.Err)
}

func (e *ProcessingError) Unwrap() error { return e.Err }

// IndexCorruptionError means a persisted index failed to parse. Fatal for
// reconciliation operations; never silently swallowed.
type IndexCorruptionError struct {
	Path string
	Err  error
}

func (e *IndexCorruptionError) Error() string {
	return fmt.Sprintf("index %s is corrupt: %v", e.Path, e.Err)
}

func (e *IndexCorruptionError) Unwrap() error { return e.Err }
