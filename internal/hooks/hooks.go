// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

// Package hooks runs the shell commands configured around a deployment.
package hooks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// ExitError reports a hook that ran and exited non-zero.
type ExitError struct {
	Hook    string
	Command string
	Code    int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("%s hook %q exited with code %d", e.Hook, e.Command, e.Code)
}

// Runner executes hook commands through the platform shell.
type Runner struct {
	Logger *logrus.Logger

	// Stdout and Stderr receive the command output. Nil means the process's own.
	Stdout io.Writer
	Stderr io.Writer

	// Env is appended to the current environment.
	Env map[string]string

	// Dir is the working directory. Empty means the current one.
	Dir string
}

// Run executes command for the named hook ("before", "after"). An empty
// command is a no-op. A non-zero exit is returned as *ExitError.
func (r *Runner) Run(ctx context.Context, hook, command string) error {
	log := r.logger().WithField("hook", hook)
	if strings.TrimSpace(command) == "" {
		log.Debug("no command configured")
		return nil
	}

	log.Warnf("Running the command: %s", command)

	cmd := shellCommand(ctx, command)
	cmd.Dir = r.Dir
	cmd.WaitDelay = 2 * time.Second
	cmd.Stdout = r.Stdout
	if cmd.Stdout == nil {
		cmd.Stdout = os.Stdout
	}
	cmd.Stderr = r.Stderr
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}
	if len(r.Env) > 0 {
		cmd.Env = os.Environ()
		for k, v := range r.Env {
			cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
		}
	}

	err := cmd.Run()
	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return nil
	case ctx.Err() != nil:
		return fmt.Errorf("%s hook interrupted: %w", hook, ctx.Err())
	case errors.As(err, &exitErr):
		code := exitErr.ExitCode()
		if code < 0 {
			// Killed by a signal.
			code = 1
		}
		return &ExitError{Hook: hook, Command: command, Code: code}
	default:
		return fmt.Errorf("%s hook: %w", hook, err)
	}
}

func (r *Runner) logger() *logrus.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return logrus.StandardLogger()
}

func shellCommand(ctx context.Context, command string) *exec.Cmd {
	if runtime.GOOS == "windows" {
		return exec.CommandContext(ctx, "cmd", "/C", command)
	}
	return exec.CommandContext(ctx, "sh", "-c", command)
}
