package logbook

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/realitylog/realitylog/pkg/store"
	"github.com/realitylog/realitylog/pkg/timecode"
)

// Sentinels for errors.Is. Every typed error below matches exactly one of them.
var (
	ErrValidation   = errors.New("validation failed")
	ErrPermission   = errors.New("permission denied")
	ErrNotFound     = errors.New("not found")
	ErrConnectivity = errors.New("service unavailable")
	ErrUnknown      = errors.New("unknown error")

	// ErrSubmitInFlight rejects a submit while the console's previous submit is
	// pending. It is not a failure of the entry; the caller retries once settled.
	ErrSubmitInFlight = errors.New("a submission is already in flight")
)

// ValidationError names the fields that are missing or malformed. It is raised
// before any call to the store.
type ValidationError struct {
	Fields []string
	Err    error
}

func (e *ValidationError) Error() string {
	msg := "missing or invalid: " + strings.Join(e.Fields, ", ")
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }
func (e *ValidationError) Unwrap() error        { return e.Err }

// PermissionError reports that the requester may not perform Op.
type PermissionError struct {
	Op     string
	Reason string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("%s: permission denied: %s", e.Op, e.Reason)
}

func (e *PermissionError) Is(target error) bool { return target == ErrPermission }

// NotFoundError reports that the target record no longer exists.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	if e.ID == "" {
		return e.Kind + " not found"
	}
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// ConnectivityError wraps a failure to reach the store. The operation may be
// retried without losing operator input.
type ConnectivityError struct {
	Err error
}

func (e *ConnectivityError) Error() string        { return "service unavailable: " + e.Err.Error() }
func (e *ConnectivityError) Is(target error) bool { return target == ErrConnectivity }
func (e *ConnectivityError) Unwrap() error        { return e.Err }

// UnknownError carries any other failure with its underlying message.
type UnknownError struct {
	Err error
}

func (e *UnknownError) Error() string        { return e.Err.Error() }
func (e *UnknownError) Is(target error) bool { return target == ErrUnknown }
func (e *UnknownError) Unwrap() error        { return e.Err }

// Classify maps an error from the store or transport onto the taxonomy above.
// Errors that are already classified pass through unchanged; nil stays nil.
func Classify(err error) error {
	if err == nil {
		return nil
	}

	var (
		ve *ValidationError
		pe *PermissionError
		ne *NotFoundError
		ce *ConnectivityError
		ue *UnknownError
	)
	switch {
	case errors.As(err, &ve), errors.As(err, &pe), errors.As(err, &ne),
		errors.As(err, &ce), errors.As(err, &ue):
		return err
	case errors.Is(err, ErrSubmitInFlight):
		return err
	case errors.Is(err, timecode.ErrInvalidTimecode):
		return &ValidationError{Fields: []string{"timecode"}, Err: err}
	case errors.Is(err, store.ErrNotFound):
		return &NotFoundError{Kind: "record"}
	case errors.Is(err, store.ErrReadOnly),
		errors.Is(err, store.ErrUnavailable),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return &ConnectivityError{Err: err}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return &ConnectivityError{Err: err}
	}
	return &UnknownError{Err: err}
}
