// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

// Package paths expands the project root token in manifest locations.
package paths

import (
	"fmt"
	"path/filepath"
	"strings"
)

// RootToken marks a path as relative to the project root.
const RootToken = "@"

// DefaultProjectRoot is used when no project root is configured.
const DefaultProjectRoot = "./"

// Resolver turns manifest locations into absolute directories.
type Resolver struct {
	ProjectRoot string
}

// New returns a Resolver rooted at root, or at DefaultProjectRoot if root is empty.
func New(root string) Resolver {
	if strings.TrimSpace(root) == "" {
		root = DefaultProjectRoot
	}
	return Resolver{ProjectRoot: root}
}

// Resolve expands a leading "@" to the project root and returns the absolute,
// cleaned path. Anything else is made absolute relative to the working
// directory. "@" only counts at the start: "a/@/b" is left alone.
func (r Resolver) Resolve(raw string) (string, error) {
	p := raw
	if rest, ok := strings.CutPrefix(raw, RootToken); ok {
		root := r.ProjectRoot
		if root == "" {
			root = DefaultProjectRoot
		}
		p = filepath.Join(root, filepath.FromSlash(rest))
	}
	if p == "" {
		p = "."
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", fmt.Errorf("resolve %q: %w", raw, err)
	}
	return abs, nil
}
