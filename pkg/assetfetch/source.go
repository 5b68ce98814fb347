// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package assetfetch

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Stream is an open read of a remote artifact.
type Stream struct {
	Body io.ReadCloser

	// Size is the advertised length in bytes, or -1 if unknown.
	Size int64
}

// Source opens artifacts by URI. Implementations must honor ctx for the
// lifetime of the returned Body.
type Source interface {
	Open(ctx context.Context, uri string) (*Stream, error)
}

// MuxSource dispatches to a Source by URI scheme.
type MuxSource map[string]Source

// Open implements Source.
func (m MuxSource) Open(ctx context.Context, uri string) (*Stream, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, &PermanentError{Err: fmt.Errorf("parse source: %w", err)}
	}
	src, ok := m[strings.ToLower(u.Scheme)]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnsupportedScheme, u.Scheme)
	}
	return src.Open(ctx, uri)
}

// DefaultSource serves http(s) with a client built from cfg and
// file, s3 and mem URIs through gocloud blob buckets.
func DefaultSource(cfg Settings) MuxSource {
	cfg = cfg.withDefaults()
	h := &HTTPSource{Client: NewHTTPClient(cfg), UserAgent: cfg.UserAgent}
	b := &BlobSource{}
	return MuxSource{
		"http":  h,
		"https": h,
		"file":  b,
		"s3":    b,
		"mem":   b,
	}
}

// NewHTTPClient creates an HTTP client for large downloads. Dialing and the
// TLS handshake are bounded by ConnectTimeout, the wait for response headers
// by ReadTimeout. There is no overall deadline: body stalls are detected by
// the transfer itself.
func NewHTTPClient(cfg Settings) *http.Client {
	cfg = cfg.withDefaults()
	dialer := &net.Dialer{
		Timeout:   cfg.ConnectTimeout,
		KeepAlive: 30 * time.Second,
	}
	tr := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		MaxIdleConns:          64,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   cfg.ConnectTimeout,
		ResponseHeaderTimeout: cfg.ReadTimeout,
		ExpectContinueTimeout: 1 * time.Second,
		DisableCompression:    true, // Content-Length must describe the bytes we write
	}
	return &http.Client{Transport: tr}
}

// HTTPSource reads artifacts with GET requests.
type HTTPSource struct {
	Client    *http.Client
	UserAgent string
}

// Open implements Source. Non-2xx responses are returned as *StatusError.
func (s *HTTPSource) Open(ctx context.Context, uri string) (*Stream, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, &PermanentError{Err: fmt.Errorf("create request: %w", err)}
	}
	if s.UserAgent != "" {
		req.Header.Set("User-Agent", s.UserAgent)
	}

	httpc := s.Client
	if httpc == nil {
		httpc = http.DefaultClient
	}
	resp, err := httpc.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, &StatusError{StatusCode: resp.StatusCode, Status: resp.Status, URL: uri}
	}
	return &Stream{Body: resp.Body, Size: resp.ContentLength}, nil
}
