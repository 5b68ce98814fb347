// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

// Package manifest reads the list of assets to deploy.
//
// A manifest is an ordered array of records:
//
//	[
//	  {
//	    "name": "flux1-dev.safetensors",
//	    "location": "@/models/unet",
//	    "origin": "https://huggingface.co/black-forest-labs/FLUX.1-dev/resolve/main/flux1-dev.safetensors"
//	  }
//	]
//
// The same records may be written as YAML in a .yaml or .yml file. An empty
// or missing location means the working directory.
package manifest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/td99/modeldeploy/pkg/assetfetch"
)

// Format is a manifest encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatFor picks the encoding from the file extension. Unknown extensions
// are read as JSON.
func FormatFor(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// Load reads and validates the manifest at path.
func Load(path string) ([]assetfetch.Asset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	assets, err := Parse(data, FormatFor(path))
	if err != nil {
		return nil, fmt.Errorf("manifest %s: %w", path, err)
	}
	return assets, nil
}

// Parse decodes a manifest and validates every record. All invalid records
// are reported together, each prefixed with its index.
func Parse(data []byte, format Format) ([]assetfetch.Asset, error) {
	var assets []assetfetch.Asset
	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, &assets); err != nil {
			return nil, fmt.Errorf("invalid YAML: %w", err)
		}
	case FormatJSON, "":
		if len(bytes.TrimSpace(data)) == 0 {
			return nil, errors.New("invalid JSON: empty document")
		}
		if err := json.Unmarshal(data, &assets); err != nil {
			return nil, fmt.Errorf("invalid JSON: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown manifest format %q", format)
	}

	var errs []error
	for i, a := range assets {
		if err := a.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("record %d: %w", i, err))
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return assets, nil
}
