package inference

import (
	"errors"
	"fmt"
)

var (
	// ErrModelLoad marks artifacts that are missing, unreadable or structurally invalid.
	ErrModelLoad = errors.New("model load failed")
	// ErrInference marks a loaded model that could not produce an output for an input.
	ErrInference = errors.New("model inference failed")
)

// ModelLoadError identifies the artifact that failed to load.
type ModelLoadError struct {
	Path string
	Err  error
}

func (e *ModelLoadError) Error() string {
	return fmt.Sprintf("load model %s: %v", e.Path, e.Err)
}

func (e *ModelLoadError) Unwrap() error { return e.Err }

// Is reports ErrModelLoad so callers can test with errors.Is.
func (e *ModelLoadError) Is(target error) bool { return target == ErrModelLoad }

func loadError(path string, format string, args ...any) error {
	return &ModelLoadError{Path: path, Err: fmt.Errorf(format, args...)}
}
