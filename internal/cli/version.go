// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"runtime"
	"runtime/debug"

	"github.com/spf13/cobra"
)

// BuildInfo describes the running binary.
type BuildInfo struct {
	Version   string `json:"version"`
	GoVersion string `json:"go"`
	Platform  string `json:"platform"`
	Commit    string `json:"commit"`
	Modified  bool   `json:"modified,omitempty"`
	BuildTime string `json:"built"`
	UserAgent string `json:"userAgent"`
}

// GetBuildInfo collects version data, filling VCS fields from the embedded
// build settings when present.
func GetBuildInfo(version string) BuildInfo {
	info := BuildInfo{
		Version:   version,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
		Commit:    "unknown",
		BuildTime: "unknown",
		UserAgent: "modeldeploy/" + version,
	}

	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			info.Commit = s.Value
			if len(info.Commit) > 7 {
				info.Commit = info.Commit[:7]
			}
		case "vcs.time":
			info.BuildTime = s.Value
		case "vcs.modified":
			info.Modified = s.Value == "true"
		}
	}
	return info
}

func newVersionCmd(version string, ro *RootOpts) *cobra.Command {
	var short bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show version and build information",
		RunE: func(cmd *cobra.Command, args []string) error {
			info := GetBuildInfo(version)

			switch {
			case short:
				fmt.Println(info.Version)
			case ro.JSONOut:
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(info)
			default:
				commit := info.Commit
				if info.Modified {
					commit += " (modified)"
				}
				fmt.Printf("modeldeploy %s\n", info.Version)
				fmt.Printf("  Go:         %s\n", info.GoVersion)
				fmt.Printf("  Platform:   %s\n", info.Platform)
				fmt.Printf("  Commit:     %s\n", commit)
				fmt.Printf("  Built:      %s\n", info.BuildTime)
				fmt.Printf("  User-Agent: %s\n", info.UserAgent)
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&short, "short", "s", false, "Print only the version number")

	return cmd
}
