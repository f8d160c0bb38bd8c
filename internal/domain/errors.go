package domain

import (
	"errors"
	"fmt"
)

var (
	ErrConfig             = errors.New("invalid configuration")
	ErrDimensionMismatch  = errors.New("dimension mismatch")
	ErrEmbeddingFailure   = errors.New("embedding failure")
	ErrIncompatibleFormat = errors.New("incompatible index format")
	ErrCorruptIndex       = errors.New("corrupt index")
	ErrEmptyIndex         = errors.New("index is empty")
	ErrNotFound           = errors.New("not found")
)

// ConfigError reports an invalid configuration value.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
}

func (e *ConfigError) Is(target error) bool { return target == ErrConfig }

// DimensionMismatchError reports a vector whose length differs from the
// index dimension.
type DimensionMismatchError struct {
	Want int
	Got  int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Want, e.Got)
}

func (e *DimensionMismatchError) Is(target error) bool { return target == ErrDimensionMismatch }

// EmbeddingError wraps a transport or model failure from an embedder.
// It is recoverable: callers may retry.
type EmbeddingError struct {
	Reason string
	Err    error
}

func (e *EmbeddingError) Error() string {
	if e.Err == nil {
		return "embedding failure: " + e.Reason
	}
	return fmt.Sprintf("embedding failure: %s: %v", e.Reason, e.Err)
}

func (e *EmbeddingError) Unwrap() error { return e.Err }

func (e *EmbeddingError) Is(target error) bool { return target == ErrEmbeddingFailure }

// FormatError reports a persisted index that cannot be read by this version.
type FormatError struct {
	Version uint16
	Reason  string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("incompatible index format (version %d): %s", e.Version, e.Reason)
}

func (e *FormatError) Is(target error) bool { return target == ErrIncompatibleFormat }

// DocumentError ties an ingestion failure to the source document.
type DocumentError struct {
	Source string
	Err    error
}

func (e *DocumentError) Error() string {
	return fmt.Sprintf("document %s: %v", e.Source, e.Err)
}

func (e *DocumentError) Unwrap() error { return e.Err }
