// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/td99/modeldeploy/internal/config"
	"github.com/td99/modeldeploy/internal/hooks"
	"github.com/td99/modeldeploy/internal/logging"
	"github.com/td99/modeldeploy/internal/manifest"
	"github.com/td99/modeldeploy/pkg/assetfetch"
)

// RootOpts holds global CLI options that are not part of the layered config.
type RootOpts struct {
	Config  string
	JSONOut bool
	Quiet   bool
	Verbose bool
	DryRun  bool
}

// Execute runs the CLI with the given version string.
func Execute(version string) error {
	ctx, cancel := signalContext(context.Background())
	defer cancel()

	if err := newRootCmd(ctx, version).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return err
	}
	return nil
}

func newRootCmd(ctx context.Context, version string) *cobra.Command {
	ro := &RootOpts{}
	root := &cobra.Command{
		Use:   "modeldeploy",
		Short: "Deploy the model files listed in a manifest into a project tree",
		Long: `Downloads every asset listed in the manifest to its location, skipping files
that already exist. Locations starting with "@" are relative to the project root.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version,
	}

	// Global flags
	root.PersistentFlags().StringVar(&ro.Config, "config", "", "Path to config file (YAML or JSON)")
	root.PersistentFlags().BoolVar(&ro.JSONOut, "json", false, "Emit machine-readable JSON events (progress, plan)")
	root.PersistentFlags().BoolVarP(&ro.Quiet, "quiet", "q", false, "Only log warnings and errors; no progress bars")
	root.PersistentFlags().BoolVarP(&ro.Verbose, "verbose", "v", false, "Verbose logs (debug details)")
	config.RegisterFlags(root.PersistentFlags())

	deployCmd := newDeployCmd(ctx, ro, version)
	deployCmd.Flags().BoolVar(&ro.DryRun, "dry-run", false, "Plan only: print what would be fetched and exit")
	root.Flags().AddFlagSet(deployCmd.Flags())

	root.AddCommand(deployCmd)
	root.AddCommand(newPlanCmd(ro))
	root.AddCommand(newVersionCmd(version, ro))
	root.AddCommand(newConfigCmd(ro))

	// Make deploy the default command when no subcommand is given
	root.RunE = deployCmd.RunE
	root.SetHelpCommand(&cobra.Command{Use: "help", Hidden: true})

	return root
}

// ExitCode maps an Execute error to a process exit status. A failing hook
// passes its own exit code through.
func ExitCode(err error) int {
	var hookErr *hooks.ExitError
	switch {
	case err == nil:
		return 0
	case errors.As(err, &hookErr):
		return hookErr.Code
	case errors.Is(err, context.Canceled):
		return 130
	default:
		return 1
	}
}

func newDeployCmd(ctx context.Context, ro *RootOpts, version string) *cobra.Command {
	return &cobra.Command{
		Use:   "deploy",
		Short: "Download every missing asset in the manifest (default command)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(cmd, ro)
			if err != nil {
				return err
			}
			if ro.DryRun {
				return runPlan(cfg, ro)
			}
			return deploy(ctx, cfg, ro, logger, version)
		},
	}
}

// deploy runs the before hook, the batch and the after hook, in that order.
// The after hook only runs when every asset is in place.
func deploy(ctx context.Context, cfg config.Config, ro *RootOpts, logger *logrus.Logger, version string) error {
	banner(logger)

	hr := &hooks.Runner{Logger: logger}
	if err := runHook(ctx, hr, logger, "before", cfg.BeforeCmd); err != nil {
		return err
	}

	logger.Info("Starting model deployment...")

	resolver := cfg.Resolver()
	manifestPath, err := resolver.Resolve(cfg.Manifest)
	if err != nil {
		return err
	}
	assets, err := manifest.Load(manifestPath)
	if err != nil {
		return err
	}
	logger.WithField("manifest", manifestPath).Debugf("loaded %d assets", len(assets))

	settings := cfg.Settings()
	settings.UserAgent = "modeldeploy/" + version

	progress, closeProgress := progressSink(ro, cfg, logger)
	f := assetfetch.New(settings,
		assetfetch.WithResolver(resolver),
		assetfetch.WithProgress(progress),
	)
	res, runErr := f.Run(ctx, assets)
	closeProgress()

	if !ro.JSONOut {
		printSummary(os.Stderr, res)
	}
	if runErr != nil {
		return runErr
	}
	logger.Info("Model deployment completed.")

	if err := runHook(ctx, hr, logger, "after", cfg.AfterCmd); err != nil {
		return err
	}
	logger.Info("Exiting...")
	return nil
}

func runHook(ctx context.Context, hr *hooks.Runner, logger *logrus.Logger, name, command string) error {
	err := hr.Run(ctx, name, command)
	var exitErr *hooks.ExitError
	if errors.As(err, &exitErr) {
		logger.Errorf("Command failed with exit code %d. Exiting...", exitErr.Code)
	}
	return err
}

func banner(logger *logrus.Logger) {
	for _, line := range []string{
		" ====================================",
		" |                                  |",
		" | Model Deployment                 |",
		" |                                  |",
		" ====================================",
	} {
		logger.Info(line)
	}
}

// setup resolves the layered configuration and builds the logger.
func setup(cmd *cobra.Command, ro *RootOpts) (config.Config, *logrus.Logger, error) {
	v := config.New()
	if err := config.BindFlags(v, cmd.Flags()); err != nil {
		return config.Config{}, nil, err
	}
	cfg, err := config.Load(v, ro.Config)
	if err != nil {
		return cfg, nil, err
	}
	switch {
	case ro.Verbose:
		cfg.LogLevel = "debug"
	case ro.Quiet:
		cfg.LogLevel = "warn"
	}
	if err := cfg.Validate(); err != nil {
		return cfg, nil, fmt.Errorf("invalid configuration:\n%w", err)
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stderr)
	if err != nil {
		return cfg, nil, err
	}
	if cfg.File != "" {
		logger.WithField("file", cfg.File).Debug("using config file")
	}
	return cfg, logger, nil
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-ch:
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(ch)
	}()
	return ctx, cancel
}
