package main

import (
	"context"
	"fmt"
	"os"

	"github.com/opentrusty/ssoproxy/internal/app"
	"github.com/opentrusty/ssoproxy/internal/importer"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var importCmd = &cobra.Command{
	Use:   "import <csv-file>",
	Short: "Bulk load accounts from a CSV file",
	Long: `Bulk load accounts from a CSV file with the columns

  account_name,account_password,group_name,aliases,tags

where aliases and tags are pipe-separated. Existing accounts get their
password replaced. Rows that fail are written with their error to the
--errors file so they can be corrected and imported again.

Example:
  ssoctl --tenant 1 import accounts.csv
  ssoctl --tenant 1 import accounts.csv --errors rejected.csv`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireTenant(); err != nil {
			return err
		}
		errorsPath, _ := cmd.Flags().GetString("errors")

		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", args[0], err)
		}
		defer func() { _ = f.Close() }()

		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			report, err := a.Importer.Import(ctx, tenantID, f)
			if err := record(ctx, "import_accounts", args[0], err); err != nil {
				return fmt.Errorf("import failed: %w", err)
			}
			for _, warning := range report.Warnings {
				pterm.Warning.Println(warning)
			}
			pterm.Info.Printf("%d row(s): %d created, %d updated, %d failed\n",
				report.Total, report.Created, report.Updated, len(report.Errors))

			if len(report.Errors) == 0 {
				pterm.Success.Println("All rows imported.")
				return nil
			}
			for _, rowErr := range report.Errors {
				pterm.Error.Println(rowErr.Error())
			}
			if err := writeRejected(errorsPath, report); err != nil {
				return err
			}
			pterm.Info.Printf("Rejected rows written to %s\n", errorsPath)
			return fmt.Errorf("%d row(s) failed to import", len(report.Errors))
		})
	},
}

func init() {
	rootCmd.AddCommand(importCmd)
	importCmd.Flags().String("errors", "error_accounts.csv", "File receiving rows that failed")
}

func writeRejected(path string, report *importer.Report) error {
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := importer.WriteErrors(out, report); err != nil {
		_ = out.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return out.Close()
}
