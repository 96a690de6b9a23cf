package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mohammed-shakir/simple-wcs/internal/app"
	"github.com/mohammed-shakir/simple-wcs/internal/core/config"
	"github.com/mohammed-shakir/simple-wcs/internal/logger"
)

type rootOptions struct {
	configFile string
	logLevel   string
	logConsole bool
	serviceURL string
	wcsVersion string

	app *app.App
}

func newRootCmd() *cobra.Command {
	o := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "simplewcs",
		Short:         "Browse WCS 2.x services and build GetCoverage requests",
		Long:          `simplewcs reads WCS 2.x capabilities and coverage descriptions, builds GetCoverage URLs for a map extent and downloads coverages.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return o.setup(cmd.Context(), cmd)
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			if o.app == nil {
				return nil
			}
			return o.app.Close()
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&o.configFile, "config", "", "YAML config file; environment variables override it")
	pf.StringVar(&o.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	pf.BoolVar(&o.logConsole, "log-console", false, "human readable log output")
	pf.StringVar(&o.serviceURL, "url", "", "WCS endpoint (overrides WCS_URL)")
	pf.StringVar(&o.wcsVersion, "wcs-version", "", "requested WCS version (overrides WCS_VERSION)")

	cmd.AddCommand(
		newCapabilitiesCmd(o),
		newDescribeCmd(o),
		newURLCmd(o),
		newFetchCmd(o),
		newServeCmd(o),
	)
	return cmd
}

func (o *rootOptions) setup(ctx context.Context, cmd *cobra.Command) error {
	cfg, err := config.Load(o.configFile)
	if err != nil {
		return err
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}
	if cmd.Flags().Changed("log-console") {
		cfg.LogConsole = o.logConsole
	}
	if o.serviceURL != "" {
		cfg.ServiceURL = o.serviceURL
	}
	if o.wcsVersion != "" {
		cfg.Version = o.wcsVersion
	}

	zl := logger.Build(logger.Config{
		Level:     cfg.LogLevel,
		Console:   cfg.LogConsole,
		SampleN:   cfg.LogSampleN,
		Component: cmd.Name(),
	}, os.Stderr)
	appLog := logger.NewSlog(&zl)

	if ctx == nil {
		ctx = context.Background()
	}
	a, err := app.New(ctx, cfg, appLog)
	if err != nil {
		return err
	}
	o.app = a
	return nil
}

func (o *rootOptions) requireURL() (string, error) {
	u := strings.TrimSpace(o.app.Config.ServiceURL)
	if u == "" {
		return "", fmt.Errorf("no WCS endpoint: pass --url or set WCS_URL")
	}
	return u, nil
}
