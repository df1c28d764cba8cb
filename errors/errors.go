// Package errors provides standardized error handling patterns for Dataforge
// components. It includes error classification, standard error variables, and
// helper functions for consistent error wrapping across the engine.
package errors

import (
	"errors"
	"fmt"
)

// Class represents the classification of errors for handling purposes
type Class int

const (
	// ClassNotFound represents lookups for ids the engine does not know.
	// Always recoverable and always surfaced to the caller.
	ClassNotFound Class = iota
	// ClassInvalidState represents illegal lifecycle transitions,
	// e.g. resuming a pipeline that is not paused.
	ClassInvalidState
	// ClassProcessing represents a single record's transformation failing
	// after exhausting retries. Contained and counted, never aborts a batch.
	ClassProcessing
	// ClassDelivery represents a stream handler or sink rejecting a record.
	// Contained and counted, the flush continues.
	ClassDelivery
	// ClassTransient represents temporary conditions that may be retried.
	ClassTransient
)

// String returns the string representation of Class
func (c Class) String() string {
	switch c {
	case ClassNotFound:
		return "not_found"
	case ClassInvalidState:
		return "invalid_state"
	case ClassProcessing:
		return "processing"
	case ClassDelivery:
		return "delivery"
	case ClassTransient:
		return "transient"
	default:
		return "unknown"
	}
}

// Standard error variables for common conditions
var (
	// Identity errors
	ErrSourceNotFound       = errors.New("source not found")
	ErrPipelineNotFound     = errors.New("pipeline not found")
	ErrSinkNotFound         = errors.New("sink not found")
	ErrProcessorNotFound    = errors.New("processor not found")
	ErrSubscriptionNotFound = errors.New("subscription not found")

	// Lifecycle errors
	ErrInvalidTransition = errors.New("invalid lifecycle transition")
	ErrAlreadyStarted    = errors.New("already started")
	ErrAlreadyStopped    = errors.New("already stopped")
	ErrNotRunning        = errors.New("not running")

	// Configuration errors
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrMissingConfig = errors.New("missing required configuration")

	// Processing errors
	ErrMaxRetriesExceeded = errors.New("maximum retries exceeded")
	ErrRecordRejected     = errors.New("record rejected by handler")
	ErrBufferClosed       = errors.New("buffer closed")
)

// ClassifiedError wraps an error with its classification
type ClassifiedError struct {
	Class     Class
	Err       error
	Component string
	Operation string
}

// Error implements the error interface
func (ce *ClassifiedError) Error() string {
	return ce.Err.Error()
}

// Unwrap returns the underlying error
func (ce *ClassifiedError) Unwrap() error {
	return ce.Err
}

// Classify returns the error class for an error. Unclassified errors default
// to transient so callers err on the side of retrying.
func Classify(err error) Class {
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class
	}

	switch {
	case errors.Is(err, ErrSourceNotFound),
		errors.Is(err, ErrPipelineNotFound),
		errors.Is(err, ErrSinkNotFound),
		errors.Is(err, ErrProcessorNotFound),
		errors.Is(err, ErrSubscriptionNotFound):
		return ClassNotFound
	case errors.Is(err, ErrInvalidTransition),
		errors.Is(err, ErrAlreadyStarted),
		errors.Is(err, ErrAlreadyStopped),
		errors.Is(err, ErrNotRunning):
		return ClassInvalidState
	case errors.Is(err, ErrMaxRetriesExceeded):
		return ClassProcessing
	case errors.Is(err, ErrRecordRejected):
		return ClassDelivery
	}

	return ClassTransient
}

// IsNotFound checks if an error identifies an unknown id
func IsNotFound(err error) bool {
	return err != nil && Classify(err) == ClassNotFound
}

// IsInvalidState checks if an error is an illegal lifecycle transition
func IsInvalidState(err error) bool {
	return err != nil && Classify(err) == ClassInvalidState
}

// IsProcessing checks if an error is a contained per-record processing failure
func IsProcessing(err error) bool {
	return err != nil && Classify(err) == ClassProcessing
}

// IsDelivery checks if an error is a contained delivery failure
func IsDelivery(err error) bool {
	return err != nil && Classify(err) == ClassDelivery
}

// newClassified creates a new classified error.
// Internal helper - use the Wrap* functions instead.
func newClassified(class Class, err error, component, operation string) *ClassifiedError {
	return &ClassifiedError{
		Class:     class,
		Err:       err,
		Component: component,
		Operation: operation,
	}
}

// Wrap creates a standardized error with context following the pattern:
// "component.method: action failed: %w"
func Wrap(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s.%s: %s failed: %w", component, method, action, err)
}

// WrapNotFound wraps an error as a not-found condition with context
func WrapNotFound(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return newClassified(ClassNotFound, Wrap(err, component, method, action), component, method)
}

// WrapInvalidState wraps an error as an invalid-state condition with context
func WrapInvalidState(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return newClassified(ClassInvalidState, Wrap(err, component, method, action), component, method)
}

// WrapProcessing wraps an error as a per-record processing failure with context
func WrapProcessing(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return newClassified(ClassProcessing, Wrap(err, component, method, action), component, method)
}

// WrapDelivery wraps an error as a delivery failure with context
func WrapDelivery(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return newClassified(ClassDelivery, Wrap(err, component, method, action), component, method)
}

// WrapTransient wraps an error as transient with context
func WrapTransient(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return newClassified(ClassTransient, Wrap(err, component, method, action), component, method)
}
