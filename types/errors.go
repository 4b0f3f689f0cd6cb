package types

import (
	"errors"
	"fmt"
)

// ErrNotFound indicates a record does not exist for the requested media
// reference. Lookups treat it as an absent value, removal as a no-op.
var ErrNotFound = errors.New("feature record not found")

// InvalidImageError indicates an input image that cannot be fingerprinted,
// typically because it is too small or carries no pixels.
type InvalidImageError struct {
	Width  int
	Height int
	Reason string
}

func (e *InvalidImageError) Error() string {
	return fmt.Sprintf("invalid image %dx%d: %s", e.Width, e.Height, e.Reason)
}

// NewInvalidImageError creates an InvalidImageError.
func NewInvalidImageError(width, height int, reason string) error {
	return &InvalidImageError{Width: width, Height: height, Reason: reason}
}

// ExtractionError indicates a feature extractor failed on an otherwise
// acceptable image.
type ExtractionError struct {
	Feature string
	Cause   error
}

func (e *ExtractionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("extracting %s features: %v", e.Feature, e.Cause)
	}
	return fmt.Sprintf("extracting %s features failed", e.Feature)
}

func (e *ExtractionError) Unwrap() error {
	return e.Cause
}

// NewExtractionError wraps a failure of the named feature extractor.
func NewExtractionError(feature string, cause error) error {
	return &ExtractionError{Feature: feature, Cause: cause}
}

// ConfigurationError indicates an out-of-range tunable or a mismatch between
// the configuration of stored vectors and the configuration in effect.
type ConfigurationError struct {
	Field   string
	Message string
}

func (e *ConfigurationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("configuration %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("configuration: %s", e.Message)
}

// NewConfigurationError creates a ConfigurationError for the given field.
func NewConfigurationError(field, message string) error {
	return &ConfigurationError{Field: field, Message: message}
}

// StoreError wraps a failure reported by the persistence backend. The core
// never retries store operations; retry policy belongs to the caller.
type StoreError struct {
	Op    string
	Cause error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Cause)
}

func (e *StoreError) Unwrap() error {
	return e.Cause
}

// NewStoreError wraps err as a StoreError for the named operation.
func NewStoreError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Op: op, Cause: err}
}

// IsInvalidImage reports whether err is or wraps an InvalidImageError.
func IsInvalidImage(err error) bool {
	var e *InvalidImageError
	return errors.As(err, &e)
}

// IsConfiguration reports whether err is or wraps a ConfigurationError.
func IsConfiguration(err error) bool {
	var e *ConfigurationError
	return errors.As(err, &e)
}

// IsNotFound reports whether err is or wraps ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
