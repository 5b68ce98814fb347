// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package assetfetch

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"gocloud.dev/blob"
)

// Resolver maps an asset's raw Location to an absolute directory.
type Resolver interface {
	Resolve(raw string) (string, error)
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(raw string) (string, error)

// Resolve implements Resolver.
func (f ResolverFunc) Resolve(raw string) (string, error) { return f(raw) }

// Fetcher runs batches of assets. A Fetcher may run several batches, one
// after another or concurrently; all of them share its Limiter.
type Fetcher struct {
	cfg      Settings
	src      Source
	resolver Resolver
	limiter  *Limiter
	progress ProgressFunc
	httpc    *http.Client
	buckets  map[string]*blob.Bucket
}

// Option customizes a Fetcher.
type Option func(*Fetcher)

// WithSource replaces the default http/blob source.
func WithSource(src Source) Option {
	return func(f *Fetcher) { f.src = src }
}

// WithHTTPClient sets the client used for http and https sources when the
// default source is in use.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) { f.httpc = c }
}

// WithBuckets hands already opened buckets, keyed by bucket URL such as
// "s3://weights" or "mem://cache", to the default blob source.
func WithBuckets(buckets map[string]*blob.Bucket) Option {
	return func(f *Fetcher) { f.buckets = buckets }
}

// WithResolver sets how asset locations become directories.
// Without one, locations are made absolute relative to the working directory.
func WithResolver(r Resolver) Option {
	return func(f *Fetcher) { f.resolver = r }
}

// WithLimiter shares an existing Limiter instead of creating one from
// Settings.MaxConcurrentTransfers.
func WithLimiter(l *Limiter) Option {
	return func(f *Fetcher) { f.limiter = l }
}

// WithProgress sets the event callback.
func WithProgress(fn ProgressFunc) Option {
	return func(f *Fetcher) { f.progress = fn }
}

// New creates a Fetcher. Zero fields of cfg take their defaults.
func New(cfg Settings, opts ...Option) *Fetcher {
	f := &Fetcher{cfg: cfg.withDefaults()}
	for _, opt := range opts {
		opt(f)
	}
	if f.src == nil {
		mux := DefaultSource(f.cfg)
		if f.httpc != nil {
			h := &HTTPSource{Client: f.httpc, UserAgent: f.cfg.UserAgent}
			mux["http"], mux["https"] = h, h
		}
		if bs, ok := mux["s3"].(*BlobSource); ok {
			bs.Buckets = f.buckets
		}
		f.src = mux
	}
	if f.resolver == nil {
		f.resolver = ResolverFunc(filepath.Abs)
	}
	if f.limiter == nil {
		f.limiter = NewLimiter(f.cfg.MaxConcurrentTransfers)
	}
	return f
}

// Settings returns the effective settings, defaults applied.
func (f *Fetcher) Settings() Settings { return f.cfg }

// Limiter returns the limiter transfers are admitted through.
func (f *Fetcher) Limiter() *Limiter { return f.limiter }

// Target resolves where an asset is written.
func (f *Fetcher) Target(a Asset) (Target, error) {
	if err := a.Validate(); err != nil {
		return Target{}, err
	}
	dir, err := f.resolver.Resolve(a.Location)
	if err != nil {
		return Target{}, fmt.Errorf("resolve location %q: %w", a.Location, err)
	}
	return Target{Asset: a, Path: filepath.Join(dir, a.Name)}, nil
}

// Run downloads every asset that is not already present.
//
// Each asset is resolved and checked against the filesystem in order; the
// ones that need a transfer run concurrently, at most Limiter().Cap() at a
// time. Run returns once every transfer has reached a terminal state. A
// failure of one asset never stops the others.
//
// The Result always has one Outcome per asset, in input order. If any asset
// failed the returned error is a *BatchError listing them.
//
// Cancellation: canceling ctx stops waiting transfers and interrupts running
// ones; Run still waits for all of them before returning.
func (f *Fetcher) Run(ctx context.Context, assets []Asset) (*Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	res := &Result{RunID: uuid.NewString(), Outcomes: make([]Outcome, len(assets))}
	emit := f.emitter(res.RunID)

	emit(ProgressEvent{
		Event:   EventBatchStart,
		Total:   int64(len(assets)),
		Message: fmt.Sprintf("%d assets, %d at a time", len(assets), f.limiter.Cap()),
	})

	seen := make(map[string]string, len(assets))
	var wg sync.WaitGroup

	for i, a := range assets {
		out := &res.Outcomes[i]
		*out = Outcome{Asset: a}

		t, err := f.Target(a)
		if err != nil {
			*out = failed(*out, &PermanentError{Err: err}, emit)
			continue
		}
		out.Path = t.Path

		if other, dup := seen[t.Path]; dup {
			err := fmt.Errorf("%w: %s is also the destination of %q", ErrDuplicateTarget, t.Path, other)
			*out = failed(*out, &PermanentError{Err: err}, emit)
			continue
		}
		seen[t.Path] = a.Name

		if !ShouldTransfer(t.Path, f.cfg.Overwrite) {
			out.State = StateSkipped
			ev := targetEvent(t)
			ev.Event = EventSkip
			ev.Message = "already exists"
			emit(ev)
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := f.limiter.Acquire(ctx); err != nil {
				*out = failed(*out, &PermanentError{Err: err}, emit)
				return
			}
			defer f.limiter.Release()
			*out = f.transfer(ctx, t, emit)
		}()
	}

	wg.Wait()

	var failures []Outcome
	for _, o := range res.Outcomes {
		if o.State == StateFailed {
			failures = append(failures, o)
		}
	}

	summary := fmt.Sprintf("deployed %d, skipped %d, failed %d", res.Succeeded(), res.Skipped(), len(failures))
	if len(failures) > 0 {
		emit(ProgressEvent{Level: "error", Event: EventBatchDone, Total: int64(len(assets)), Message: summary})
		return res, &BatchError{Failures: failures}
	}
	emit(ProgressEvent{Event: EventBatchDone, Total: int64(len(assets)), Message: summary})
	return res, nil
}

// Plan reports what Run would do, without any network access.
func (f *Fetcher) Plan(assets []Asset) []PlanItem {
	items := make([]PlanItem, 0, len(assets))
	seen := make(map[string]string, len(assets))
	for _, a := range assets {
		it := PlanItem{Name: a.Name, Source: a.Source}
		t, err := f.Target(a)
		switch {
		case err != nil:
			it.Action, it.Reason = "invalid", err.Error()
		case seen[t.Path] != "":
			it.Path = t.Path
			it.Action, it.Reason = "invalid", fmt.Sprintf("duplicate destination of %q", seen[t.Path])
		case ShouldTransfer(t.Path, f.cfg.Overwrite):
			it.Path, it.Action = t.Path, "fetch"
		default:
			it.Path, it.Action, it.Reason = t.Path, "skip", "already exists"
		}
		if err == nil && seen[t.Path] == "" {
			seen[t.Path] = a.Name
		}
		items = append(items, it)
	}
	return items
}

func (f *Fetcher) emitter(runID string) func(ProgressEvent) {
	return func(ev ProgressEvent) {
		if f.progress == nil {
			return
		}
		if ev.Time.IsZero() {
			ev.Time = time.Now().UTC()
		}
		ev.RunID = runID
		f.progress(ev)
	}
}
