// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

/*
Package assetfetch downloads a batch of large artifacts (model weights,
checkpoints, LoRAs) into a project tree, skipping the ones already present.

# Features

  - Skip-if-exists: an asset whose destination file exists is left untouched
  - Bounded concurrency: at most MaxConcurrentTransfers assets stream at once
  - Retries: transient failures (resets, stalls, 5xx, 429) are retried with backoff
  - Stall detection: a transfer that receives no bytes for ReadTimeout is aborted
  - Atomic writes: bytes land in "<name>.part" and are renamed into place
  - Sources: http(s) via net/http, file:// and s3:// via gocloud.dev/blob
  - Progress events: a callback receives every state change

# Quick Start

	assets := []assetfetch.Asset{{
		Name:     "model.safetensors",
		Location: "./models/checkpoints",
		Source:   "https://example.com/model.safetensors",
	}}

	f := assetfetch.New(assetfetch.Settings{}, assetfetch.WithProgress(func(e assetfetch.ProgressEvent) {
		fmt.Printf("[%s] %s %s\n", e.Event, e.Name, e.Message)
	}))

	res, err := f.Run(ctx, assets)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("deployed %d, skipped %d\n", res.Succeeded(), res.Skipped())

# Batch Semantics

Run checks every asset in input order. Invalid assets and duplicate
destinations fail immediately. Existing destinations are skipped. Everything
else is handed to a transfer goroutine that waits on the Limiter. Run returns
only after every transfer has finished, and a failure never cancels the rest of
the batch. When anything failed the error is a *BatchError; errors.Is(err,
ErrBatchFailed) matches it.

The existence check and the write are not atomic. Two processes deploying into
the same tree may both decide to download an asset; the last rename wins.

# Retries

Each asset gets MaxRetryAttempts attempts in total. Every attempt starts over
from byte zero and the partial file is removed first. Permanent failures (404,
403, 401, unsupported scheme, a destination that cannot be created) are
reported after a single attempt. See Classify for the full rule set.

# Sources

DefaultSource serves http, https, file and s3. Anything else can be plugged in
with WithSource, usually by extending a MuxSource:

	src := assetfetch.DefaultSource(cfg)
	src["mem"] = &assetfetch.BlobSource{Buckets: map[string]*blob.Bucket{"mem://weights": bucket}}
	f := assetfetch.New(cfg, assetfetch.WithSource(src))
*/
package assetfetch
