// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package assetfetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// progressReader wraps an io.Reader, emits progress events during reads and
// keeps the stall watchdog from firing while bytes arrive.
type progressReader struct {
	reader     io.Reader
	total      int64
	downloaded int64
	base       ProgressEvent
	emit       func(ProgressEvent)
	lastEmit   time.Time
	interval   time.Duration
	watchdog   *time.Timer
	idle       time.Duration
}

func newProgressReader(r io.Reader, total int64, base ProgressEvent, emit func(ProgressEvent), watchdog *time.Timer, idle time.Duration) *progressReader {
	return &progressReader{
		reader:   r,
		total:    total,
		base:     base,
		emit:     emit,
		lastEmit: time.Now(),
		interval: 200 * time.Millisecond, // Emit at most 5 times per second
		watchdog: watchdog,
		idle:     idle,
	}
}

func (pr *progressReader) Read(p []byte) (n int, err error) {
	n, err = pr.reader.Read(p)
	if n > 0 {
		pr.watchdog.Reset(pr.idle)
		pr.downloaded += int64(n)
	}
	if (n > 0 && time.Since(pr.lastEmit) >= pr.interval) || err == io.EOF {
		ev := pr.base
		ev.Event = EventProgress
		ev.Downloaded = pr.downloaded
		ev.Total = pr.total
		pr.emit(ev)
		pr.lastEmit = time.Now()
	}
	return n, err
}

// transfer downloads one target, retrying transient failures up to
// MaxRetryAttempts attempts in total. Every attempt starts from byte zero.
func (f *Fetcher) transfer(ctx context.Context, t Target, emit func(ProgressEvent)) Outcome {
	out := Outcome{Asset: t.Asset, Path: t.Path}
	base := targetEvent(t)

	start := base
	start.Event = EventStart
	emit(start)

	dir := filepath.Dir(t.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return failed(out, &PermanentError{Err: &DirectoryError{Path: dir, Err: err}}, emit)
	}

	retry := newRetry(f.cfg)
	for {
		out.Attempts++
		n, err := f.attempt(ctx, t, base, emit)
		if err == nil {
			out.State = StateSucceeded
			out.Bytes = n
			done := base
			done.Event = EventDone
			done.Downloaded = n
			done.Total = n
			done.Attempt = out.Attempts
			emit(done)
			return out
		}

		err = Classify(err)
		if !IsTransient(err) {
			return failed(out, err, emit)
		}
		if out.Attempts >= f.cfg.MaxRetryAttempts {
			return failed(out, fmt.Errorf("giving up after %d attempts: %w", out.Attempts, err), emit)
		}

		ev := base
		ev.Level = "warn"
		ev.Event = EventRetry
		ev.Attempt = out.Attempts
		ev.Message = err.Error()
		emit(ev)

		if !sleepCtx(ctx, retry.Next()) {
			return failed(out, &PermanentError{Err: ctx.Err()}, emit)
		}
	}
}

// attempt streams the source into <path>.part and renames it into place.
// Nothing is left behind on failure.
func (f *Fetcher) attempt(ctx context.Context, t Target, base ProgressEvent, emit func(ProgressEvent)) (int64, error) {
	actx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	watchdog := time.AfterFunc(f.cfg.ReadTimeout, func() { cancel(ErrStalled) })
	defer watchdog.Stop()

	stream, err := f.src.Open(actx, t.Asset.Source)
	if err != nil {
		return 0, f.attemptErr(ctx, actx, err)
	}
	defer stream.Body.Close()

	tmp := t.Path + ".part"
	file, err := os.Create(tmp)
	if err != nil {
		return 0, &PermanentError{Err: err}
	}

	pr := newProgressReader(stream.Body, stream.Size, base, emit, watchdog, f.cfg.ReadTimeout)
	n, err := copyChunks(file, pr, make([]byte, f.cfg.BufferSize))
	if cerr := file.Close(); err == nil && cerr != nil {
		err = &PermanentError{Err: cerr}
	}
	if err == nil && stream.Size >= 0 && n != stream.Size {
		err = fmt.Errorf("%w: received %d of %d bytes", ErrSizeMismatch, n, stream.Size)
	}
	if err == nil {
		err = os.Rename(tmp, t.Path)
		if err != nil {
			err = &PermanentError{Err: err}
		}
	}
	if err != nil {
		_ = os.Remove(tmp)
		return n, f.attemptErr(ctx, actx, err)
	}
	return n, nil
}

// attemptErr attributes an attempt failure to its real cause: a stall
// detected by the watchdog, or cancellation of the caller's context.
func (f *Fetcher) attemptErr(parent, actx context.Context, err error) error {
	var pe *PermanentError
	if errors.As(err, &pe) {
		return err
	}
	if perr := parent.Err(); perr != nil {
		return &PermanentError{Err: perr}
	}
	if errors.Is(context.Cause(actx), ErrStalled) {
		return fmt.Errorf("%w: no data for %s", ErrStalled, f.cfg.ReadTimeout)
	}
	return err
}

// copyChunks copies src to dst one buffer at a time. Write failures are
// permanent; read failures are returned as is for classification.
func copyChunks(dst io.Writer, src io.Reader, buf []byte) (int64, error) {
	var written int64
	for {
		nr, rerr := src.Read(buf)
		if nr > 0 {
			nw, werr := dst.Write(buf[:nr])
			written += int64(nw)
			if werr == nil && nw != nr {
				werr = io.ErrShortWrite
			}
			if werr != nil {
				return written, &PermanentError{Err: fmt.Errorf("write: %w", werr)}
			}
		}
		if rerr == io.EOF {
			return written, nil
		}
		if rerr != nil {
			return written, rerr
		}
	}
}

func failed(out Outcome, err error, emit func(ProgressEvent)) Outcome {
	out.State = StateFailed
	out.Err = err
	emit(ProgressEvent{
		Level:   "error",
		Event:   EventError,
		Name:    out.Asset.Name,
		Path:    out.Path,
		Source:  out.Asset.Source,
		Total:   -1,
		Attempt: out.Attempts,
		Message: err.Error(),
	})
	return out
}

func targetEvent(t Target) ProgressEvent {
	return ProgressEvent{Name: t.Asset.Name, Path: t.Path, Source: t.Asset.Source, Total: -1}
}
