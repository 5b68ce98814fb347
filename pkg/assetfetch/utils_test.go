// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package assetfetch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestParseSize(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"", 42, false},
		{"1024", 1024, false},
		{"1.5", 1, false},
		{"8KB", 8000, false},
		{"8kib", 8192, false},
		{"32MiB", 32 << 20, false},
		{"1GB", 1_000_000_000, false},
		{" 2 MiB ", 2 << 20, false},
		{"12XB", 0, true},
		{"lots", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseSize(tt.in, 42)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseSize(%q) error = %v", tt.in, err)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("ParseSize(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestHumanBytes(t *testing.T) {
	tests := map[int64]string{
		0:             "0 B",
		1023:          "1023 B",
		1536:          "1.5 KiB",
		5 << 30:       "5.0 GiB",
		3*(1<<20) + 1: "3.0 MiB",
	}
	for in, want := range tests {
		if got := HumanBytes(in); got != want {
			t.Errorf("HumanBytes(%d) = %q, want %q", in, got, want)
		}
	}
}

func TestBackoff(t *testing.T) {
	b := newRetry(Settings{BackoffInitial: 100 * time.Millisecond, BackoffMax: 300 * time.Millisecond})
	for i := 0; i < 10; i++ {
		d := b.Next()
		if d < 75*time.Millisecond || d > 375*time.Millisecond {
			t.Fatalf("step %d: %s out of range", i, d)
		}
	}
	if b.next != 300*time.Millisecond {
		t.Errorf("backoff should be capped, got %s", b.next)
	}
}

func TestSleepCtx(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if sleepCtx(ctx, time.Hour) {
		t.Error("sleepCtx should return false on a canceled context")
	}
	if !sleepCtx(context.Background(), time.Millisecond) {
		t.Error("sleepCtx should return true after the delay")
	}
}

func TestShouldTransfer(t *testing.T) {
	dir := t.TempDir()
	present := filepath.Join(dir, "present.bin")
	if err := os.WriteFile(present, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	link := filepath.Join(dir, "dangling.bin")
	if err := os.Symlink(filepath.Join(dir, "nowhere"), link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	tests := []struct {
		path      string
		overwrite bool
		want      bool
	}{
		{present, false, false},
		{present, true, true},
		{filepath.Join(dir, "absent.bin"), false, true},
		{filepath.Join(dir, "absent.bin"), true, true},
		{dir, false, false},
		{link, false, false},
	}
	for _, tt := range tests {
		if got := ShouldTransfer(tt.path, tt.overwrite); got != tt.want {
			t.Errorf("ShouldTransfer(%s, %v) = %v, want %v", filepath.Base(tt.path), tt.overwrite, got, tt.want)
		}
	}
}
