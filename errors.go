package xcenter

import (
	"errors"
	"fmt"
)

var (
	ErrTargetNotFound         = errors.New("xcenter: target module not registered")
	ErrHandlerFailure         = errors.New("xcenter: handler failed")
	ErrRequestTimeout         = errors.New("xcenter: request timed out")
	ErrTargetUnregistered     = errors.New("xcenter: target unregistered while request pending")
	ErrCenterClosed           = errors.New("xcenter: center is closed")
	ErrMissingTarget          = errors.New("xcenter: message target required")
	ErrBroadcastTarget        = errors.New("xcenter: broadcast message must not have a target")
	ErrInvalidMessageType     = errors.New("xcenter: message type required")
	ErrInvalidModuleID        = errors.New("xcenter: module id required")
	ErrNilHandler             = errors.New("xcenter: handler must not be nil")
	ErrNilCallback            = errors.New("xcenter: callback must not be nil")
	ErrDuplicateCorrelationID = errors.New("xcenter: correlation id already pending")

	ErrObserverPoolShutdownTimeout = errors.New("xcenter: observer pool shutdown timeout")
)

// DeliveryError describes a failed request. It wraps one of the sentinel errors.
type DeliveryError struct {
	Op            string
	Target        string
	CorrelationID string
	Err           error
}

func (e *DeliveryError) Error() string {
	if e.CorrelationID == "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Target, e.Err)
	}
	return fmt.Sprintf("%s %s (correlation %s): %v", e.Op, e.Target, e.CorrelationID, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// handlerError wraps a handler-raised error so it matches ErrHandlerFailure
// while keeping the original cause reachable.
func handlerError(err error) error {
	return fmt.Errorf("%w: %w", ErrHandlerFailure, err)
}
