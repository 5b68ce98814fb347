// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/td99/modeldeploy/internal/config"
	"github.com/td99/modeldeploy/internal/manifest"
	"github.com/td99/modeldeploy/pkg/assetfetch"
)

func newPlanCmd(ro *RootOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "plan",
		Short: "Show what deploy would fetch or skip, without downloading",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := setup(cmd, ro)
			if err != nil {
				return err
			}
			return runPlan(cfg, ro)
		},
	}
}

func runPlan(cfg config.Config, ro *RootOpts) error {
	resolver := cfg.Resolver()
	manifestPath, err := resolver.Resolve(cfg.Manifest)
	if err != nil {
		return err
	}
	assets, err := manifest.Load(manifestPath)
	if err != nil {
		return err
	}

	f := assetfetch.New(cfg.Settings(), assetfetch.WithResolver(resolver))
	items := f.Plan(assets)

	if ro.JSONOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(items)
	}
	fmt.Printf("Plan for %s (%d assets):\n", manifestPath, len(items))
	writePlan(os.Stdout, items)
	return nil
}

func writePlan(w io.Writer, items []assetfetch.PlanItem) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, it := range items {
		action := it.Action
		switch it.Action {
		case "fetch":
			action = color.GreenString(action)
		case "skip":
			action = color.YellowString(action)
		case "invalid":
			action = color.RedString(action)
		}
		line := it.Path
		if it.Reason != "" {
			if line != "" {
				line += "  "
			}
			line += "(" + it.Reason + ")"
		}
		fmt.Fprintf(tw, "  %s\t%s\t%s\n", action, it.Name, line)
	}
	tw.Flush()
}
