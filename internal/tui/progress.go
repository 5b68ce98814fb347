// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package tui

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/cheggaaa/pb/v3"
	"golang.org/x/term"

	"github.com/td99/modeldeploy/pkg/assetfetch"
)

const barTemplate = `{{string . "prefix"}} {{counters . }} {{bar . "[" "=" ">" " " "]"}} {{percent . }} {{speed . }} {{string . "status"}}`

// barPool is the part of *pb.Pool the renderer draws through.
type barPool interface {
	Add(pbs ...*pb.ProgressBar)
	Stop() error
}

// LiveRenderer draws one progress bar per running transfer.
// Finished, skipped and failed assets are counted and shown in the last line.
type LiveRenderer struct {
	out  io.Writer
	pool barPool

	mu      sync.Mutex
	start   time.Time
	events  chan assetfetch.ProgressEvent
	done    chan struct{}
	exited  chan struct{}
	stopped bool

	bars    map[string]*pb.ProgressBar
	total   int
	fetched int
	skipped int
	failed  int
	summary string
}

// NewLiveRenderer starts a renderer writing to out. It needs a controlling
// terminal: the bar pool switches it to raw mode while drawing.
func NewLiveRenderer(out io.Writer) (*LiveRenderer, error) {
	pool := pb.NewPool()
	pool.Output = out
	if err := pool.Start(); err != nil {
		return nil, fmt.Errorf("start progress pool: %w", err)
	}
	return newRenderer(out, pool), nil
}

func newRenderer(out io.Writer, pool barPool) *LiveRenderer {
	lr := &LiveRenderer{
		out:    out,
		pool:   pool,
		start:  time.Now(),
		events: make(chan assetfetch.ProgressEvent, 2048),
		done:   make(chan struct{}),
		exited: make(chan struct{}),
		bars:   map[string]*pb.ProgressBar{},
	}
	go lr.loop()
	return lr
}

// Handler returns a ProgressFunc that feeds events to the renderer.
// Byte counters are dropped when the renderer falls behind; state changes
// never are.
func (lr *LiveRenderer) Handler() assetfetch.ProgressFunc {
	return func(ev assetfetch.ProgressEvent) {
		if ev.Event == assetfetch.EventProgress {
			select {
			case lr.events <- ev:
			default:
			}
			return
		}
		select {
		case lr.events <- ev:
		case <-lr.done:
		}
	}
}

// Close drains pending events, finishes every bar and stops drawing.
func (lr *LiveRenderer) Close() {
	lr.mu.Lock()
	if lr.stopped {
		lr.mu.Unlock()
		return
	}
	lr.stopped = true
	close(lr.done)
	lr.mu.Unlock()

	<-lr.exited
	_ = lr.pool.Stop()
	if s := lr.Summary(); s != "" {
		fmt.Fprintln(lr.out, s)
	}
}

// Summary returns the line shown under the bars.
func (lr *LiveRenderer) Summary() string {
	lr.mu.Lock()
	defer lr.mu.Unlock()
	if lr.summary != "" {
		return fmt.Sprintf("%s in %s", lr.summary, fmtDuration(time.Since(lr.start)))
	}
	if lr.total == 0 {
		return ""
	}
	return fmt.Sprintf("%d/%d assets, %d skipped, %d failed, %s elapsed",
		lr.fetched+lr.skipped+lr.failed, lr.total, lr.skipped, lr.failed, fmtDuration(time.Since(lr.start)))
}

func (lr *LiveRenderer) loop() {
	defer close(lr.exited)
	for {
		select {
		case ev := <-lr.events:
			lr.apply(ev)
		case <-lr.done:
			for {
				select {
				case ev := <-lr.events:
					lr.apply(ev)
				default:
					lr.finishAll()
					return
				}
			}
		}
	}
}

func (lr *LiveRenderer) apply(ev assetfetch.ProgressEvent) {
	lr.mu.Lock()
	defer lr.mu.Unlock()

	switch ev.Event {
	case assetfetch.EventBatchStart:
		lr.total = int(ev.Total)
	case assetfetch.EventStart:
		bar := lr.ensure(ev)
		bar.Set("status", "")
	case assetfetch.EventProgress:
		bar := lr.ensure(ev)
		if ev.TotalKnown() {
			bar.SetTotal(ev.Total)
		}
		bar.SetCurrent(ev.Downloaded)
	case assetfetch.EventRetry:
		bar := lr.ensure(ev)
		bar.SetCurrent(0)
		bar.Set("status", fmt.Sprintf("retry %d", ev.Attempt))
	case assetfetch.EventDone:
		bar := lr.ensure(ev)
		bar.SetTotal(ev.Downloaded)
		bar.SetCurrent(ev.Downloaded)
		bar.Set("status", "done")
		bar.Finish()
		lr.fetched++
	case assetfetch.EventSkip:
		lr.skipped++
	case assetfetch.EventError:
		if bar, ok := lr.bars[ev.Path]; ok && ev.Path != "" {
			bar.Set("status", "failed")
			bar.Finish()
		}
		lr.failed++
	case assetfetch.EventBatchDone:
		lr.summary = ev.Message
	}
}

func (lr *LiveRenderer) ensure(ev assetfetch.ProgressEvent) *pb.ProgressBar {
	if bar, ok := lr.bars[ev.Path]; ok {
		return bar
	}
	bar := pb.ProgressBarTemplate(barTemplate).New(0)
	bar.Set(pb.Bytes, true)
	bar.Set("prefix", ellipsizeMiddle(ev.Name, 32))
	lr.bars[ev.Path] = bar
	lr.pool.Add(bar)
	return bar
}

func (lr *LiveRenderer) finishAll() {
	lr.mu.Lock()
	defer lr.mu.Unlock()
	for _, bar := range lr.bars {
		if !bar.IsFinished() {
			bar.Set("status", "canceled")
			bar.Finish()
		}
	}
}

func ellipsizeMiddle(s string, w int) string {
	runes := []rune(s)
	if w <= 3 || len(runes) <= w {
		return s + strings.Repeat(" ", max(0, w-len(runes)))
	}
	half := (w - 3) / 2
	return string(runes[:half]) + "..." + string(runes[len(runes)-(w-3-half):])
}

func fmtDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}

// IsInteractive reports whether f is a terminal that can take cursor
// movement. NO_COLOR does not matter here; TERM=dumb does.
func IsInteractive(f *os.File) bool {
	if !term.IsTerminal(int(f.Fd())) {
		return false
	}
	return ansiOkay()
}

func ansiOkay() bool {
	if runtime.GOOS == "windows" {
		// Windows 10+ consoles handle ANSI; older ones report as non-terminals.
		return true
	}
	return strings.ToLower(os.Getenv("TERM")) != "dumb"
}
