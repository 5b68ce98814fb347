// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package assetfetch

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"syscall"
	"testing"
)

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

var (
	errNoHost    = errors.New("http: no Host in request URL")
	errRedirects = errors.New("stopped after 10 redirects")
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		transient bool
	}{
		{"500", &StatusError{StatusCode: 500}, true},
		{"503", &StatusError{StatusCode: 503}, true},
		{"408", &StatusError{StatusCode: 408}, true},
		{"425", &StatusError{StatusCode: 425}, true},
		{"429", &StatusError{StatusCode: 429}, true},
		{"400", &StatusError{StatusCode: 400}, false},
		{"401", &StatusError{StatusCode: 401}, false},
		{"403", &StatusError{StatusCode: 403}, false},
		{"404", &StatusError{StatusCode: 404}, false},
		{"410", &StatusError{StatusCode: 410}, false},
		{"wrapped 502", fmt.Errorf("open: %w", &StatusError{StatusCode: 502}), true},
		{"unexpected eof", io.ErrUnexpectedEOF, true},
		{"connection reset", syscall.ECONNRESET, true},
		{"stalled", fmt.Errorf("%w: no data", ErrStalled), true},
		{"size mismatch", ErrSizeMismatch, true},
		{"deadline", context.DeadlineExceeded, true},
		{"canceled", context.Canceled, false},
		{"unsupported scheme", ErrUnsupportedScheme, false},
		{"duplicate", ErrDuplicateTarget, false},
		{"directory", &DirectoryError{Path: "/x", Err: os.ErrPermission}, false},
		{"connection refused", &url.Error{Op: "Get", URL: "http://x", Err: &net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED}}, true},
		{"closed before response", &url.Error{Op: "Get", URL: "http://x", Err: io.EOF}, true},
		{"timeout", &url.Error{Op: "Get", URL: "http://x", Err: timeoutError{}}, true},
		{"dns temporary", &net.DNSError{Err: "server misbehaving", Name: "x", IsTemporary: true}, true},
		{"dns no such host", &net.DNSError{Err: "no such host", Name: "x", IsNotFound: true}, false},
		{"untrusted certificate", &url.Error{Op: "Get", URL: "https://x", Err: &tls.CertificateVerificationError{Err: x509.UnknownAuthorityError{}}}, false},
		{"no host", &url.Error{Op: "Get", URL: "http:///m.bin", Err: errNoHost}, false},
		{"redirect loop", &url.Error{Op: "Get", URL: "http://x", Err: errRedirects}, false},
		{"unrecognised", errors.New("something else"), false},
		{"already permanent", &PermanentError{Err: io.ErrUnexpectedEOF}, false},
		{"already transient", &TransientError{Err: ErrForbidden}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.err)
			if IsTransient(got) != tt.transient {
				t.Errorf("Classify(%v) transient = %v, want %v", tt.err, IsTransient(got), tt.transient)
			}
			if !errors.Is(got, tt.err) {
				t.Errorf("classified error no longer matches the original")
			}
		})
	}

	if Classify(nil) != nil {
		t.Error("Classify(nil) should be nil")
	}
}

func TestStatusError_Is(t *testing.T) {
	tests := []struct {
		code   int
		target error
	}{
		{http.StatusNotFound, ErrNotFound},
		{http.StatusGone, ErrNotFound},
		{http.StatusForbidden, ErrForbidden},
		{http.StatusUnauthorized, ErrUnauthorized},
	}
	for _, tt := range tests {
		err := error(&StatusError{StatusCode: tt.code})
		if !errors.Is(err, tt.target) {
			t.Errorf("%d should match %v", tt.code, tt.target)
		}
	}
	if errors.Is(&StatusError{StatusCode: 500}, ErrNotFound) {
		t.Error("500 should not match ErrNotFound")
	}
}

func TestBatchError(t *testing.T) {
	be := &BatchError{Failures: []Outcome{
		{Asset: Asset{Name: "a.bin"}, Err: &PermanentError{Err: &StatusError{StatusCode: 404, Status: "404 Not Found", URL: "https://x/a"}}},
		{Asset: Asset{Name: "b.bin"}, Err: &TransientError{Err: ErrStalled}},
	}}

	msg := be.Error()
	for _, want := range []string{"2 of the assets failed", "a.bin", "b.bin", "404 Not Found"} {
		if !strings.Contains(msg, want) {
			t.Errorf("message %q missing %q", msg, want)
		}
	}
	if !errors.Is(be, ErrBatchFailed) || !errors.Is(be, ErrNotFound) || !errors.Is(be, ErrStalled) {
		t.Error("BatchError should match the batch sentinel and every cause")
	}
}
