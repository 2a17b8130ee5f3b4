package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/noah-isme/marksheet-ocr-api/internal/service"
)

func newProcessCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "process <image>...",
		Short: "Extract and store one or more marksheet images",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			files, err := localUploadFiles(args)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			container, err := bootstrap(ctx, opts)
			if err != nil {
				return err
			}
			defer closeContainer(container)

			result, err := container.Marksheets.ProcessBatch(ctx, files)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(result); err != nil {
				return err
			}
			if result.SuccessCount == 0 {
				return fmt.Errorf("no image was processed successfully")
			}
			return nil
		},
	}
}

// localUploadFiles describes files on disk the way multipart uploads are.
func localUploadFiles(paths []string) ([]service.UploadFile, error) {
	files := make([]service.UploadFile, 0, len(paths))
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, err
		}
		if info.IsDir() {
			return nil, fmt.Errorf("%s is a directory", path)
		}
		p := path
		files = append(files, service.UploadFile{
			Filename: filepath.Base(p),
			Size:     info.Size(),
			Open: func() (io.ReadCloser, error) {
				return os.Open(p)
			},
		})
	}
	return files, nil
}
