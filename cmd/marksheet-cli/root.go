package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/noah-isme/marksheet-ocr-api/internal/app"
	"github.com/noah-isme/marksheet-ocr-api/pkg/config"
	"github.com/noah-isme/marksheet-ocr-api/pkg/logger"
)

type rootOptions struct {
	verbose bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "marksheet-cli",
		Short:         "Operate the marksheet OCR service from the command line",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log at debug level")

	cmd.AddCommand(newMigrateCmd(opts), newProcessCmd(opts), newExportCmd(opts))
	return cmd
}

// bootstrap loads config the same way the API server does.
func bootstrap(ctx context.Context, opts *rootOptions) (*app.Container, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if opts.verbose {
		cfg.Log.Level = "debug"
	}
	cfg.Log.Format = "console"

	logr, err := logger.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	container, err := app.New(ctx, cfg, logr)
	if err != nil {
		_ = logr.Sync()
		return nil, err
	}
	return container, nil
}

func closeContainer(c *app.Container) {
	c.Close()
	_ = c.Logger.Sync()
}
