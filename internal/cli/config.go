// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/td99/modeldeploy/internal/config"
)

func newConfigCmd(ro *RootOpts) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
	}

	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigShowCmd(ro))
	cmd.AddCommand(newConfigPathCmd(ro))

	return cmd
}

func newConfigInitCmd() *cobra.Command {
	var (
		force   bool
		useJSON bool
		path    string
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a default configuration file",
		Long: `Creates a default configuration file at ~/.config/modeldeploy.yaml (or .json)

The configuration file sets defaults for every deploy setting.
Environment variables and CLI flags always override config file values.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath := path
			if configPath == "" {
				candidates := config.Candidates()
				if len(candidates) == 0 {
					return fmt.Errorf("could not find home directory")
				}
				configPath = candidates[0]
				if useJSON {
					configPath = candidates[len(candidates)-1]
				}
			}

			if _, err := os.Stat(configPath); err == nil && !force {
				return fmt.Errorf("config file already exists: %s\nUse --force to overwrite", configPath)
			}
			if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
				return fmt.Errorf("could not create config directory: %w", err)
			}

			data, err := encodeConfig(config.DefaultConfig(), useJSON || filepath.Ext(configPath) == ".json")
			if err != nil {
				return err
			}
			if err := os.WriteFile(configPath, data, 0o644); err != nil {
				return fmt.Errorf("could not write config file: %w", err)
			}

			fmt.Printf("✓ Created config file: %s\n", configPath)
			fmt.Println()
			fmt.Println("Edit this file to set your defaults. For example:")
			fmt.Println("  - Point project_root at your ComfyUI checkout")
			fmt.Println("  - Raise max_concurrent on fast links")
			fmt.Println("  - Add before_cmd / after_cmd hooks")

			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite existing config file")
	cmd.Flags().BoolVar(&useJSON, "as-json", false, "Create JSON config instead of YAML")
	cmd.Flags().StringVarP(&path, "output", "o", "", "Write to this path instead of ~/.config")

	return cmd
}

func newConfigShowCmd(ro *RootOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration (defaults, file, env and flags merged)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := setup(cmd, ro)
			if err != nil {
				return err
			}

			if cfg.File != "" {
				fmt.Printf("Config file: %s\n\n", cfg.File)
			} else {
				fmt.Print("No config file found. Run 'modeldeploy config init' to create one.\n\n")
			}

			data, err := encodeConfig(effective(cfg), ro.JSONOut)
			if err != nil {
				return err
			}
			fmt.Print(string(data))
			return nil
		},
	}
}

func newConfigPathCmd(ro *RootOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the config file path",
		Run: func(cmd *cobra.Command, args []string) {
			if p := config.FilePath(ro.Config); p != "" {
				fmt.Println(p)
				return
			}
			if candidates := config.Candidates(); len(candidates) > 0 {
				fmt.Println(candidates[0])
			}
		},
	}
}

// effective renders cfg with the same keys and value formats as a config file.
func effective(cfg config.Config) map[string]any {
	return map[string]any{
		config.KeyProjectRoot:    cfg.ProjectRoot,
		config.KeyManifest:       cfg.Manifest,
		config.KeyOverride:       cfg.Override,
		config.KeyMaxConcurrent:  cfg.MaxConcurrent,
		config.KeyRetries:        cfg.Retries,
		config.KeyConnectTimeout: cfg.ConnectTimeout.String(),
		config.KeyReadTimeout:    cfg.ReadTimeout.String(),
		config.KeyBackoffInitial: cfg.BackoffInitial.String(),
		config.KeyBackoffMax:     cfg.BackoffMax.String(),
		config.KeyBufferSize:     cfg.BufferSize,
		config.KeyBeforeCmd:      cfg.BeforeCmd,
		config.KeyAfterCmd:       cfg.AfterCmd,
		config.KeyLogLevel:       cfg.LogLevel,
		config.KeyLogFormat:      cfg.LogFormat,
	}
}

func encodeConfig(cfg map[string]any, asJSON bool) ([]byte, error) {
	if asJSON {
		data, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return nil, err
		}
		return append(data, '\n'), nil
	}
	return yaml.Marshal(cfg)
}
