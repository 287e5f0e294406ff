package main

import (
	"context"
	"fmt"

	"github.com/opentrusty/ssoproxy/internal/app"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

// aliasCmd represents the alias command
var aliasCmd = &cobra.Command{
	Use:   "alias",
	Short: "Manage account aliases",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("alias requires a subcommand")
		_ = cmd.Help()
	},
}

var aliasCreateCmd = &cobra.Command{
	Use:   "create <account> <alias>",
	Short: "Give an account an alternate login name",
	Long: `Give an account an alternate login name.

Example:
  ssoctl --tenant 1 alias create healer1 h1`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireTenant(); err != nil {
			return err
		}
		account, name := args[0], args[1]

		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			_, err := a.Directory.CreateAlias(ctx, tenantID, account, name)
			if err := record(ctx, "create_alias", name, err); err != nil {
				return fmt.Errorf("failed to create alias: %w", err)
			}
			pterm.Success.Printf("%s now resolves to %s\n", name, account)
			return nil
		})
	},
}

var aliasDeleteCmd = &cobra.Command{
	Use:   "delete <alias>",
	Short: "Remove an alias",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireTenant(); err != nil {
			return err
		}
		name := args[0]

		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			account, err := a.Directory.DeleteAlias(ctx, tenantID, name)
			if err := record(ctx, "delete_alias", name, err); err != nil {
				return fmt.Errorf("failed to delete alias: %w", err)
			}
			pterm.Success.Printf("Removed alias %s of %s\n", name, account)
			return nil
		})
	},
}

var aliasListCmd = &cobra.Command{
	Use:   "list",
	Short: "List aliases",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireTenant(); err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			aliases, err := a.Directory.ListAliases(ctx, tenantID)
			if err != nil {
				return fmt.Errorf("failed to list aliases: %w", err)
			}
			if len(aliases) == 0 {
				pterm.Info.Println("No aliases found.")
				return nil
			}
			table := pterm.TableData{{"ALIAS", "ACCOUNT"}}
			for _, alias := range aliases {
				table = append(table, []string{alias.Name, alias.AccountName})
			}
			return pterm.DefaultTable.WithHasHeader().WithData(table).Render()
		})
	},
}

func init() {
	rootCmd.AddCommand(aliasCmd)
	aliasCmd.AddCommand(aliasCreateCmd, aliasDeleteCmd, aliasListCmd)
}
