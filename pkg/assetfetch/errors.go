// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package assetfetch

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"syscall"

	"gocloud.dev/gcerrors"
)

// Common errors returned by the library.
var (
	// ErrNotFound is returned when the source does not exist.
	ErrNotFound = errors.New("source not found")

	// ErrForbidden is returned when the source refuses access.
	ErrForbidden = errors.New("access to source forbidden")

	// ErrUnauthorized is returned when the source requires credentials.
	ErrUnauthorized = errors.New("unauthorized: source requires authentication")

	// ErrStalled is returned when a transfer received no bytes for ReadTimeout.
	ErrStalled = errors.New("transfer stalled")

	// ErrSizeMismatch is returned when fewer or more bytes arrive than advertised.
	ErrSizeMismatch = errors.New("size mismatch")

	// ErrUnsupportedScheme is returned for a source URI no Source can open.
	ErrUnsupportedScheme = errors.New("unsupported source scheme")

	// ErrDuplicateTarget is returned when two assets resolve to the same path in one run.
	ErrDuplicateTarget = errors.New("duplicate destination")

	// ErrBatchFailed matches any *BatchError.
	ErrBatchFailed = errors.New("batch failed")
)

// StatusError is a non-2xx HTTP response.
type StatusError struct {
	StatusCode int
	Status     string
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: %s", e.URL, e.Status)
}

// IsRetryable returns true if the request might succeed on retry.
func (e *StatusError) IsRetryable() bool {
	switch e.StatusCode {
	case http.StatusRequestTimeout, http.StatusTooEarly, http.StatusTooManyRequests:
		return true
	}
	return e.StatusCode >= 500
}

// Is implements errors.Is for the common sentinel errors.
func (e *StatusError) Is(target error) bool {
	switch e.StatusCode {
	case http.StatusNotFound, http.StatusGone:
		return target == ErrNotFound
	case http.StatusForbidden:
		return target == ErrForbidden
	case http.StatusUnauthorized:
		return target == ErrUnauthorized
	}
	return false
}

// TransientError is a failure that was retried until attempts ran out.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// PermanentError is a failure that is never retried.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// DirectoryError is returned when the destination directory cannot be created.
type DirectoryError struct {
	Path string
	Err  error
}

func (e *DirectoryError) Error() string {
	return fmt.Sprintf("create directory %s: %v", e.Path, e.Err)
}

func (e *DirectoryError) Unwrap() error { return e.Err }

// BatchError reports every asset that ended in StateFailed.
type BatchError struct {
	Failures []Outcome
}

func (e *BatchError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d of the assets failed:", len(e.Failures))
	for _, f := range e.Failures {
		fmt.Fprintf(&b, "\n  %s: %v", f.Asset.Name, f.Err)
	}
	return b.String()
}

// Unwrap exposes the individual failures to errors.Is and errors.As.
func (e *BatchError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		errs = append(errs, f.Err)
	}
	return errs
}

func (e *BatchError) Is(target error) bool { return target == ErrBatchFailed }

// IsTransient reports whether err is classified as retryable.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// Classify wraps err as a *TransientError or *PermanentError.
// Errors already classified are returned unchanged.
//
// Transient: stalls, size mismatches, 408/425/429/5xx responses, blob
// unavailability, and network failures (timeouts, refused or reset
// connections, connections closed early, temporary DNS failures).
// Everything else is permanent: certificate errors, malformed URLs, redirect
// loops, cancellation of the caller's context and anything unrecognised.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	var (
		te *TransientError
		pe *PermanentError
		de *DirectoryError
	)
	if errors.As(err, &te) || errors.As(err, &pe) {
		return err
	}
	if errors.As(err, &de) {
		return &PermanentError{Err: err}
	}

	var se *StatusError
	if errors.As(err, &se) {
		if se.IsRetryable() {
			return &TransientError{Err: err}
		}
		return &PermanentError{Err: err}
	}

	switch {
	case errors.Is(err, ErrStalled), errors.Is(err, ErrSizeMismatch):
		return &TransientError{Err: err}
	case errors.Is(err, ErrUnsupportedScheme), errors.Is(err, ErrDuplicateTarget):
		return &PermanentError{Err: err}
	case errors.Is(err, context.Canceled):
		return &PermanentError{Err: err}
	}

	switch gcerrors.Code(err) {
	case gcerrors.NotFound:
		return &PermanentError{Err: fmt.Errorf("%w: %v", ErrNotFound, err)}
	case gcerrors.PermissionDenied:
		return &PermanentError{Err: fmt.Errorf("%w: %v", ErrForbidden, err)}
	case gcerrors.DeadlineExceeded, gcerrors.ResourceExhausted, gcerrors.Internal:
		return &TransientError{Err: err}
	}

	if isNetworkFailure(err) {
		return &TransientError{Err: err}
	}
	return &PermanentError{Err: err}
}

// isNetworkFailure reports whether err comes from the connection itself
// rather than from what was asked of it.
func isNetworkFailure(err error) bool {
	var tlsErr *tls.CertificateVerificationError
	if errors.As(err, &tlsErr) {
		return false
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.IsTemporary || dnsErr.IsTimeout
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, io.EOF),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNABORTED),
		errors.Is(err, syscall.ETIMEDOUT),
		errors.Is(err, syscall.EPIPE):
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}
