// Package censuserr defines the error taxonomy shared by the Census clients,
// the demographics fetcher and the batch orchestrator.
package censuserr

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"

	"github.com/rotisserie/eris"

	"github.com/sells-group/demographics-cli/internal/model"
)

// ErrGeographyNotFound means the upstream genuinely has no geography or data
// for the coordinate or level. It is terminal: retrying cannot fix it.
var ErrGeographyNotFound = eris.New("geography not found")

// ErrQuotaExceeded signals the daily call quota is spent. It halts a run and
// is never recorded as an item failure.
var ErrQuotaExceeded = eris.New("daily call quota exceeded")

// ErrRequestRejected means the upstream refused the request with a permanent
// client error status. The same request will be refused again.
var ErrRequestRejected = eris.New("request rejected by upstream")

// Rejected wraps a permanent non-2xx response from service.
func Rejected(service string, statusCode int) error {
	return eris.Wrapf(ErrRequestRejected, "%s returned status %d", service, statusCode)
}

// UpstreamError is a transient failure talking to a Census service.
type UpstreamError struct {
	Service    string
	StatusCode int
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s unavailable (status %d): %v", e.Service, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s unavailable: %v", e.Service, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// UpstreamUnavailable wraps err as a retryable upstream failure.
func UpstreamUnavailable(service string, statusCode int, err error) error {
	if err == nil {
		err = eris.New("unexpected response")
	}
	return &UpstreamError{Service: service, StatusCode: statusCode, Err: err}
}

// PersistenceError is a failed write to the result sink.
type PersistenceError struct {
	Err error
}

func (e *PersistenceError) Error() string { return "persistence failure: " + e.Err.Error() }

func (e *PersistenceError) Unwrap() error { return e.Err }

// PersistenceFailure wraps a sink write error.
func PersistenceFailure(err error) error {
	return &PersistenceError{Err: err}
}

// IsGeographyNotFound reports whether err is (or wraps) ErrGeographyNotFound.
func IsGeographyNotFound(err error) bool {
	return errors.Is(err, ErrGeographyNotFound)
}

// IsRetryable reports whether an item-level retry may succeed: upstream
// outages, timeouts, network resets and persistence failures are retryable;
// absent geography and cancellation are not.
func IsRetryable(err error) bool {
	if err == nil || IsGeographyNotFound(err) || errors.Is(err, ErrQuotaExceeded) || errors.Is(err, ErrRequestRejected) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var ue *UpstreamError
	if errors.As(err, &ue) {
		return true
	}
	var pe *PersistenceError
	if errors.As(err, &pe) {
		return true
	}
	return isNetworkTransient(err)
}

// Kind maps an error onto the error-log classification.
func Kind(err error) model.ErrorKind {
	var pe *PersistenceError
	switch {
	case IsGeographyNotFound(err):
		return model.ErrorKindGeographyNotFound
	case errors.As(err, &pe):
		return model.ErrorKindPersistence
	case errors.Is(err, ErrRequestRejected):
		return model.ErrorKindRejected
	case IsRetryable(err):
		return model.ErrorKindUpstreamUnavailable
	default:
		return model.ErrorKindUnknown
	}
}

// IsTransientHTTPStatus returns true for statuses worth retrying.
func IsTransientHTTPStatus(statusCode int) bool {
	switch statusCode {
	case 408, 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

func isNetworkTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, p := range []string{
		"connection reset by peer",
		"broken pipe",
		"temporary failure in name resolution",
		"tls handshake timeout",
		"i/o timeout",
		"server closed idle connection",
	} {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}
