// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package assetfetch_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"

	"github.com/td99/modeldeploy/pkg/assetfetch"
)

func ExampleFetcher_Run() {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "weights")
	}))
	defer srv.Close()

	dir, _ := os.MkdirTemp("", "assetfetch-example")
	defer os.RemoveAll(dir)

	assets := []assetfetch.Asset{
		{Name: "a.bin", Location: filepath.Join(dir, "unet"), Source: srv.URL + "/a.bin"},
		{Name: "b.bin", Location: filepath.Join(dir, "vae"), Source: srv.URL + "/b.bin"},
	}

	f := assetfetch.New(assetfetch.Settings{}, assetfetch.WithProgress(func(e assetfetch.ProgressEvent) {
		if e.Event == assetfetch.EventBatchDone {
			fmt.Println(e.Message)
		}
	}))

	if _, err := f.Run(context.Background(), assets); err != nil {
		fmt.Printf("Error: %v\n", err)
	}

	// Second run finds both files in place.
	if _, err := f.Run(context.Background(), assets); err != nil {
		fmt.Printf("Error: %v\n", err)
	}

	// Output:
	// deployed 2, skipped 0, failed 0
	// deployed 0, skipped 2, failed 0
}

func ExampleFetcher_Run_failures() {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	dir, _ := os.MkdirTemp("", "assetfetch-example")
	defer os.RemoveAll(dir)

	f := assetfetch.New(assetfetch.Settings{})
	res, err := f.Run(context.Background(), []assetfetch.Asset{
		{Name: "missing.bin", Location: dir, Source: srv.URL + "/missing.bin"},
	})

	fmt.Println(errors.Is(err, assetfetch.ErrBatchFailed), errors.Is(err, assetfetch.ErrNotFound))
	fmt.Println(res.Outcomes[0].State, res.Outcomes[0].Attempts)

	// Output:
	// true true
	// failed 1
}

func ExampleFetcher_Plan() {
	dir, _ := os.MkdirTemp("", "assetfetch-example")
	defer os.RemoveAll(dir)
	_ = os.WriteFile(filepath.Join(dir, "have.bin"), nil, 0o644)

	f := assetfetch.New(assetfetch.Settings{})
	for _, it := range f.Plan([]assetfetch.Asset{
		{Name: "have.bin", Location: dir, Source: "https://example.com/have.bin"},
		{Name: "need.bin", Location: dir, Source: "https://example.com/need.bin"},
		{Name: "", Location: dir, Source: "https://example.com/x"},
	}) {
		fmt.Println(it.Action)
	}

	// Output:
	// skip
	// fetch
	// invalid
}
