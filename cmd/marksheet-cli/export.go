package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/noah-isme/marksheet-ocr-api/internal/service"
)

type exportOptions struct {
	shape  string
	format string
	outDir string
}

func newExportCmd(opts *rootOptions) *cobra.Command {
	exportOpts := &exportOptions{}
	cmd := &cobra.Command{
		Use:   "export <upload-id>",
		Short: "Write an upload's results to a CSV, XLSX or PDF file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			shape, err := service.ParseExportShape(exportOpts.shape)
			if err != nil {
				return err
			}
			format, err := service.ParseExportFormat(exportOpts.format)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			container, err := bootstrap(ctx, opts)
			if err != nil {
				return err
			}
			defer closeContainer(container)

			file, err := container.Exports.Export(ctx, args[0], shape, format)
			if err != nil {
				return err
			}

			path := filepath.Join(exportOpts.outDir, file.Filename)
			if err := os.WriteFile(path, file.Payload, 0o644); err != nil {
				return fmt.Errorf("write export: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
	cmd.Flags().StringVar(&exportOpts.shape, "shape", string(service.ExportShapeSummary), "summary or detailed")
	cmd.Flags().StringVar(&exportOpts.format, "format", string(service.ExportFormatXLSX), "csv, xlsx or pdf")
	cmd.Flags().StringVarP(&exportOpts.outDir, "out", "o", ".", "output directory")
	return cmd
}
