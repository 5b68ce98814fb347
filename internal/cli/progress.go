// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"

	"github.com/td99/modeldeploy/internal/config"
	"github.com/td99/modeldeploy/internal/tui"
	"github.com/td99/modeldeploy/pkg/assetfetch"
)

// progressSink picks how events are shown: JSON lines with --json, live bars
// on an interactive terminal, log lines otherwise. The returned func must be
// called once the run is over.
func progressSink(ro *RootOpts, cfg config.Config, logger *logrus.Logger) (assetfetch.ProgressFunc, func()) {
	if ro.JSONOut {
		return jsonProgress(os.Stdout), func() {}
	}
	if !ro.Quiet && strings.EqualFold(cfg.LogFormat, "text") && tui.IsInteractive(os.Stdout) {
		ui, err := tui.NewLiveRenderer(os.Stdout)
		if err == nil {
			return ui.Handler(), ui.Close
		}
		logger.Debugf("live progress unavailable: %v", err)
	}
	return logProgress(logger), func() {}
}

// logProgress returns a handler that turns events into log lines.
// Byte counters are only logged at debug level.
func logProgress(logger *logrus.Logger) assetfetch.ProgressFunc {
	return func(ev assetfetch.ProgressEvent) {
		entry := logger.WithField("run", ev.RunID)
		if ev.Name != "" {
			entry = entry.WithField("asset", ev.Name)
		}
		switch ev.Event {
		case assetfetch.EventBatchStart:
			entry.Infof("Deploying %s", ev.Message)
		case assetfetch.EventSkip:
			entry.Infof("Model already exists at %s, skipping download.", ev.Path)
		case assetfetch.EventStart:
			entry.WithField("source", ev.Source).Infof("Downloading to %s", ev.Path)
		case assetfetch.EventProgress:
			if ev.TotalKnown() {
				entry.Debugf("%s / %s", assetfetch.HumanBytes(ev.Downloaded), assetfetch.HumanBytes(ev.Total))
			} else {
				entry.Debugf("%s", assetfetch.HumanBytes(ev.Downloaded))
			}
		case assetfetch.EventRetry:
			entry.Warnf("Attempt %d failed: %s. Retrying...", ev.Attempt, ev.Message)
		case assetfetch.EventDone:
			entry.Infof("Downloaded %s (%s)", ev.Path, assetfetch.HumanBytes(ev.Downloaded))
		case assetfetch.EventError:
			entry.WithField("source", ev.Source).Errorf("Failed to download: %s", ev.Message)
		case assetfetch.EventBatchDone:
			if ev.Level == "error" {
				entry.Error(ev.Message)
			} else {
				entry.Info(ev.Message)
			}
		}
	}
}

// jsonProgress returns a JSON-lines progress handler.
func jsonProgress(w io.Writer) assetfetch.ProgressFunc {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	var mu sync.Mutex
	return func(ev assetfetch.ProgressEvent) {
		mu.Lock()
		_ = enc.Encode(ev)
		mu.Unlock()
	}
}

// printSummary writes the per-state counts and one line per failed asset.
func printSummary(w io.Writer, res *assetfetch.Result) {
	if res == nil {
		return
	}
	green := color.New(color.FgGreen).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()

	fmt.Fprintf(w, "%s deployed, %s skipped, %s failed\n",
		green(res.Succeeded()), yellow(res.Skipped()), red(res.Failed()))
	for _, o := range res.Outcomes {
		if o.State != assetfetch.StateFailed {
			continue
		}
		fmt.Fprintf(w, "  %s %s: %v\n", red("✗"), o.Asset.Name, o.Err)
	}
}
