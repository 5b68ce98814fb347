// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package hooks

import (
	"bytes"
	"context"
	"errors"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRunner(t *testing.T) (*Runner, *bytes.Buffer, *test.Hook) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("hook tests use POSIX shell syntax")
	}
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	var out bytes.Buffer
	return &Runner{Logger: logger, Stdout: &out, Stderr: &out}, &out, hook
}

func TestRun_Success(t *testing.T) {
	r, out, hook := newRunner(t)
	r.Env = map[string]string{"MODELDEPLOY_HOOK_TEST": "from-env"}

	err := r.Run(context.Background(), "before", `echo "hello $MODELDEPLOY_HOOK_TEST"`)
	require.NoError(t, err)

	assert.Equal(t, "hello from-env\n", out.String())
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
	assert.Contains(t, hook.LastEntry().Message, "Running the command")
	assert.Equal(t, "before", hook.LastEntry().Data["hook"])
}

func TestRun_Empty(t *testing.T) {
	r, out, hook := newRunner(t)

	require.NoError(t, r.Run(context.Background(), "after", "   "))
	assert.Empty(t, out.String())
	for _, e := range hook.AllEntries() {
		assert.NotContains(t, e.Message, "Running the command")
	}
}

func TestRun_ExitCode(t *testing.T) {
	r, _, _ := newRunner(t)

	err := r.Run(context.Background(), "after", "exit 7")
	var exitErr *ExitError
	require.True(t, errors.As(err, &exitErr), "got %v", err)
	assert.Equal(t, 7, exitErr.Code)
	assert.Equal(t, "after", exitErr.Hook)
	assert.True(t, strings.Contains(err.Error(), "code 7"))
}

func TestRun_Dir(t *testing.T) {
	r, out, _ := newRunner(t)
	r.Dir = t.TempDir()

	require.NoError(t, r.Run(context.Background(), "before", "pwd"))
	assert.Contains(t, out.String(), r.Dir)
}

func TestRun_Canceled(t *testing.T) {
	r, _, _ := newRunner(t)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := r.Run(ctx, "before", "sleep 5")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
