// Package cmd defines the contentfeed command line.
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/realtime-content-feed/internal/app"
	"github.com/JakeFAU/realtime-content-feed/internal/config"
)

// buildApp is the application factory. Tests replace it.
var buildApp = func(ctx context.Context, cfg config.Config) (*app.App, error) {
	return app.Build(ctx, cfg)
}

type rootOptions struct {
	cfgFile string
}

// newRootCmd creates the root command and attaches every subcommand.
func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "contentfeed",
		Short: "Aggregates, classifies and serves real-time content.",
		Long: `contentfeed pulls items from news, video, social and RSS sources,
classifies and geolocates them, stores them without duplicates and serves
them over an authenticated HTTP API.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&opts.cfgFile, "config", "", "config file (YAML); FEED_* env vars override it")

	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newScrapeCmd(opts))
	cmd.AddCommand(newKeysCmd(opts))
	return cmd
}

// loadApp reads configuration and builds the application.
func (o *rootOptions) loadApp(ctx context.Context) (*app.App, error) {
	cfg, err := config.Load(o.cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	a, err := buildApp(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize application services: %w", err)
	}
	return a, nil
}

// Execute runs the command line and exits non-zero on failure.
func Execute() {
	if err := run(context.Background(), os.Args[1:], os.Stdout, os.Stderr); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	return root.ExecuteContext(ctx)
}
