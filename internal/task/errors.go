package task

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrEmptyTaskID       = errors.New("task id required")
	ErrNotFound          = errors.New("task not found")
	ErrInvalidDateRange  = errors.New("date range start is after end")
	ErrUnknownSupervisor = errors.New("supervisor not in roster")
	ErrPermissionDenied  = errors.New("action not permitted for role")
	ErrEngineStopped     = errors.New("engine stopped")
	ErrEmptyPhoto        = errors.New("photo content required")
	ErrPhotoTooLarge     = errors.New("photo too large")
	ErrInvalidPhotoType  = errors.New("photo type not allowed")
)

// Kind classifies a failure so callers can react without string matching.
type Kind int

const (
	KindRemoteRead Kind = iota + 1
	KindRemoteWrite
	KindUpload
	KindValidation
	KindPermission
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindRemoteRead:
		return "remote_read"
	case KindRemoteWrite:
		return "remote_write"
	case KindUpload:
		return "upload"
	case KindValidation:
		return "validation"
	case KindPermission:
		return "permission"
	case KindTimeout:
		return "timeout"
	}
	return "unknown"
}

// StoreError carries the operation name and failure kind across the gateway
// boundary. Remote faults never escape as panics.
type StoreError struct {
	Op   string
	Kind Kind
	Err  error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// storeErr wraps err with op and kind, upgrading deadline hits to KindTimeout.
func storeErr(op string, kind Kind, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		kind = KindTimeout
	}
	return &StoreError{Op: op, Kind: kind, Err: err}
}

// KindOf reports the classified kind of err, or 0 for unclassified errors.
func KindOf(err error) Kind {
	var se *StoreError
	if errors.As(err, &se) {
		return se.Kind
	}
	switch {
	case errors.Is(err, ErrEmptyTaskID),
		errors.Is(err, ErrNotFound),
		errors.Is(err, ErrInvalidDateRange),
		errors.Is(err, ErrUnknownSupervisor),
		errors.Is(err, ErrEmptyPhoto),
		errors.Is(err, ErrPhotoTooLarge),
		errors.Is(err, ErrInvalidPhotoType):
		return KindValidation
	case errors.Is(err, ErrPermissionDenied):
		return KindPermission
	}
	return 0
}
