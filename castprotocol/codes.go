package castprotocol

import (
	"context"
	"errors"
	"net"
)

// Status codes carried on StartFailed, Ended, ResumeFailed and Suspended.
const (
	StatusSuccess       = 0
	StatusNetworkError  = 7
	StatusInternalError = 8
	StatusTimeout       = 15
	StatusCanceled      = 2002
)

// StatusCode maps a provider error to the status code reported to listeners.
func StatusCode(err error) int {
	switch {
	case err == nil:
		return StatusSuccess
	case errors.Is(err, context.Canceled):
		return StatusCanceled
	case isTimeoutError(err):
		return StatusTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return StatusNetworkError
	}

	return StatusInternalError
}

// isTimeoutError checks if an error is a timeout/deadline exceeded error.
// This typically happens when the TV needs to wake from sleep.
func isTimeoutError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	return false
}
