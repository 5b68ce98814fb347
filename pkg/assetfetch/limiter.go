// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package assetfetch

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// Limiter admits at most Cap holders at a time. Waiters are admitted in
// arrival order. It knows nothing about transfers and can be shared by
// several Fetchers to enforce a process-wide cap.
type Limiter struct {
	sem     *semaphore.Weighted
	cap     int
	running atomic.Int64
	peak    atomic.Int64
}

// NewLimiter returns a Limiter with n slots. n < 1 is treated as 1.
func NewLimiter(n int) *Limiter {
	if n < 1 {
		n = 1
	}
	return &Limiter{sem: semaphore.NewWeighted(int64(n)), cap: n}
}

// Acquire blocks until a slot is free or ctx is done.
func (l *Limiter) Acquire(ctx context.Context) error {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	cur := l.running.Add(1)
	for {
		p := l.peak.Load()
		if cur <= p || l.peak.CompareAndSwap(p, cur) {
			break
		}
	}
	return nil
}

// Release frees a slot taken by Acquire.
func (l *Limiter) Release() {
	l.running.Add(-1)
	l.sem.Release(1)
}

// Cap returns the number of slots.
func (l *Limiter) Cap() int { return l.cap }

// Running returns the number of slots currently held.
func (l *Limiter) Running() int { return int(l.running.Load()) }

// Peak returns the highest number of slots held at once since creation.
func (l *Limiter) Peak() int { return int(l.peak.Load()) }
