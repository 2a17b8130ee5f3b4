package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/noah-isme/marksheet-ocr-api/pkg/database"
)

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			container, err := bootstrap(ctx, opts)
			if err != nil {
				return err
			}
			defer closeContainer(container)

			if err := database.Migrate(ctx, container.DB.DB); err != nil {
				return err
			}
			version, err := database.MigrationVersion(ctx, container.DB.DB)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema at version %d\n", version)
			return nil
		},
	}
}
