// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package assetfetch

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Asset describes one remote artifact and where it should land.
//
// Assets are values: the orchestrator never mutates them. Location may start
// with the project root token "@", which the configured Resolver expands.
//
// Example:
//
//	a := assetfetch.Asset{
//	    Name:     "flux1-dev.safetensors",
//	    Location: "@/models/unet",
//	    Source:   "https://huggingface.co/black-forest-labs/FLUX.1-dev/resolve/main/flux1-dev.safetensors",
//	}
type Asset struct {
	// Name is the file name written inside Location. It is also the name
	// shown in progress output. Required.
	Name string `json:"name" yaml:"name"`

	// Location is the destination directory, before resolution.
	Location string `json:"location" yaml:"location"`

	// Source is the URI the bytes are read from.
	// DefaultSource handles http, https, file and s3.
	Source string `json:"origin" yaml:"origin"`
}

// Validate checks the descriptor invariants: a plain, non-empty file name and
// an absolute source URI.
func (a Asset) Validate() error {
	switch {
	case strings.TrimSpace(a.Name) == "":
		return errors.New("asset name is empty")
	case a.Name == "." || a.Name == "..":
		return fmt.Errorf("asset name %q is not a file name", a.Name)
	case strings.ContainsAny(a.Name, `/\`):
		return fmt.Errorf("asset name %q must not contain a path separator", a.Name)
	}
	if a.Source == "" {
		return fmt.Errorf("asset %q has no source", a.Name)
	}
	u, err := url.Parse(a.Source)
	if err != nil {
		return fmt.Errorf("asset %q: invalid source: %w", a.Name, err)
	}
	if u.Scheme == "" {
		return fmt.Errorf("asset %q: source %q is not an absolute URI", a.Name, a.Source)
	}
	return nil
}

// Target is an Asset with its destination resolved to an absolute file path.
type Target struct {
	Asset Asset
	Path  string
}

// State is the terminal state of one asset in a batch.
type State string

const (
	StateSkipped   State = "skipped"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
)

// Outcome records how one asset ended.
type Outcome struct {
	Asset Asset  `json:"asset"`
	Path  string `json:"path,omitempty"`
	State State  `json:"state"`

	// Attempts is the number of stream attempts made; zero for skipped assets
	// and for assets that failed before any network call.
	Attempts int `json:"attempts"`

	// Bytes is the size of the file written on success.
	Bytes int64 `json:"bytes,omitempty"`

	Err error `json:"-"`
}

// Result aggregates the outcomes of one Run, in the order the assets were given.
type Result struct {
	RunID    string    `json:"runId"`
	Outcomes []Outcome `json:"outcomes"`
}

func (r *Result) count(s State) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.State == s {
			n++
		}
	}
	return n
}

// Succeeded returns the number of assets downloaded in this run.
func (r *Result) Succeeded() int { return r.count(StateSucceeded) }

// Skipped returns the number of assets left untouched because they already existed.
func (r *Result) Skipped() int { return r.count(StateSkipped) }

// Failed returns the number of assets that ended in StateFailed.
func (r *Result) Failed() int { return r.count(StateFailed) }

// Settings configures a Fetcher.
//
// Zero values are replaced by the defaults from DefaultSettings.
type Settings struct {
	// Overwrite disables the skip-if-exists behavior.
	Overwrite bool

	// MaxConcurrentTransfers bounds how many assets download at once.
	// If <= 0, defaults to 2.
	MaxConcurrentTransfers int

	// MaxRetryAttempts is the total number of attempts per asset for
	// transient failures. A permanent failure always stops after one attempt.
	// If <= 0, defaults to 3.
	MaxRetryAttempts int

	// ConnectTimeout bounds connection establishment (dial and TLS handshake).
	// If <= 0, defaults to 60s.
	ConnectTimeout time.Duration

	// ReadTimeout bounds how long a transfer may go without receiving a byte,
	// including the wait for response headers. If <= 0, defaults to 300s.
	ReadTimeout time.Duration

	// BackoffInitial is the delay before the first retry; it grows by 1.6x
	// per retry up to BackoffMax. Defaults: 400ms and 10s.
	BackoffInitial time.Duration
	BackoffMax     time.Duration

	// BufferSize is the copy buffer used when streaming to disk.
	// If <= 0, defaults to 1 MiB.
	BufferSize int

	// UserAgent is sent with HTTP requests.
	UserAgent string
}

// DefaultSettings returns Settings with every default filled in.
func DefaultSettings() Settings {
	return Settings{
		MaxConcurrentTransfers: 2,
		MaxRetryAttempts:       3,
		ConnectTimeout:         60 * time.Second,
		ReadTimeout:            300 * time.Second,
		BackoffInitial:         400 * time.Millisecond,
		BackoffMax:             10 * time.Second,
		BufferSize:             1 << 20,
		UserAgent:              "modeldeploy/1",
	}
}

func (s Settings) withDefaults() Settings {
	d := DefaultSettings()
	if s.MaxConcurrentTransfers <= 0 {
		s.MaxConcurrentTransfers = d.MaxConcurrentTransfers
	}
	if s.MaxRetryAttempts <= 0 {
		s.MaxRetryAttempts = d.MaxRetryAttempts
	}
	if s.ConnectTimeout <= 0 {
		s.ConnectTimeout = d.ConnectTimeout
	}
	if s.ReadTimeout <= 0 {
		s.ReadTimeout = d.ReadTimeout
	}
	if s.BackoffInitial <= 0 {
		s.BackoffInitial = d.BackoffInitial
	}
	if s.BackoffMax <= 0 {
		s.BackoffMax = d.BackoffMax
	}
	if s.BufferSize <= 0 {
		s.BufferSize = d.BufferSize
	}
	if s.UserAgent == "" {
		s.UserAgent = d.UserAgent
	}
	return s
}

// Event names carried in ProgressEvent.Event.
const (
	EventBatchStart = "batch_start"
	EventStart      = "start"
	EventProgress   = "progress"
	EventRetry      = "retry"
	EventSkip       = "skip"
	EventDone       = "done"
	EventError      = "error"
	EventBatchDone  = "batch_done"
)

// ProgressEvent represents a progress update during a run.
//
// Events are emitted throughout the run to allow for progress display,
// logging, or integration with other systems:
//   - "batch_start": the run has begun; Total is the number of assets
//   - "start": a transfer was admitted by the limiter
//   - "progress": periodic byte counter for a running transfer
//   - "retry": a transient failure; Attempt is the attempt that failed
//   - "skip": the destination already exists
//   - "done": the asset was written
//   - "error": the asset failed permanently
//   - "batch_done": every asset reached a terminal state
type ProgressEvent struct {
	// Time is when the event occurred (UTC).
	Time time.Time `json:"time"`

	// Level is the log level: "debug", "info", "warn", "error".
	// Empty defaults to "info".
	Level string `json:"level,omitempty"`

	// Event is the event type identifier.
	Event string `json:"event"`

	// RunID identifies the batch the event belongs to.
	RunID string `json:"runId,omitempty"`

	// Name is the asset name.
	Name string `json:"name,omitempty"`

	// Path is the resolved destination.
	Path string `json:"path,omitempty"`

	// Source is the asset URI.
	Source string `json:"source,omitempty"`

	// Downloaded is the cumulative bytes received in the current attempt.
	Downloaded int64 `json:"downloaded,omitempty"`

	// Total is the expected size in bytes, or -1 when the source did not
	// advertise one or the event is not about bytes. Batch events carry the
	// number of assets instead.
	Total int64 `json:"total"`

	// Attempt is the 1-based attempt number. Set in "retry" and "error" events.
	Attempt int `json:"attempt,omitempty"`

	// Message contains additional context or error details.
	Message string `json:"message,omitempty"`
}

// TotalKnown reports whether the event carries an advertised size.
func (e ProgressEvent) TotalKnown() bool { return e.Total >= 0 }

// ProgressFunc is a callback for receiving progress events.
// The callback is invoked from multiple goroutines and should be thread-safe.
type ProgressFunc func(ProgressEvent)

// PlanItem is one line of a dry run.
type PlanItem struct {
	Name   string `json:"name"`
	Source string `json:"source"`
	Path   string `json:"path,omitempty"`
	Action string `json:"action"` // "fetch", "skip" or "invalid"
	Reason string `json:"reason,omitempty"`
}
