package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/opentrusty/ssoproxy/internal/app"
	"github.com/opentrusty/ssoproxy/internal/directory"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

// accountCmd represents the account command
var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Manage real accounts",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("account requires a subcommand")
		_ = cmd.Help()
	},
}

var accountCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create an account",
	Long: `Create an account holding a real credential.

The password is stored encrypted. With --group the account is added to an
existing group.

Example:
  ssoctl --tenant 1 account create healer1 --password s3cret
  ssoctl --tenant 1 account create healer1 --password s3cret --group raiders`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireTenant(); err != nil {
			return err
		}
		password, _ := cmd.Flags().GetString("password")
		group, _ := cmd.Flags().GetString("group")
		if password == "" {
			return fmt.Errorf("--password is required")
		}
		name := args[0]

		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			account, err := a.Directory.CreateAccount(ctx, tenantID, name, password)
			if err := record(ctx, "create_account", name, err); err != nil {
				return fmt.Errorf("failed to create account: %w", err)
			}
			pterm.Success.Printf("Created account %s (id %d)\n", account.Name, account.ID)

			if group != "" {
				err := a.Directory.AddAccountToGroup(ctx, tenantID, group, name)
				if err := record(ctx, "add_group_member", group+"/"+name, err); err != nil {
					return fmt.Errorf("failed to add account to group: %w", err)
				}
				pterm.Success.Printf("Added %s to group %s\n", name, group)
			}
			return nil
		})
	},
}

var accountUpdateCmd = &cobra.Command{
	Use:   "update <name>",
	Short: "Replace an account's password",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireTenant(); err != nil {
			return err
		}
		password, _ := cmd.Flags().GetString("password")
		if password == "" {
			return fmt.Errorf("--password is required")
		}
		name := args[0]

		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			err := a.Directory.UpdateSecret(ctx, tenantID, name, password)
			if err := record(ctx, "update_account_secret", name, err); err != nil {
				return fmt.Errorf("failed to update account: %w", err)
			}
			pterm.Success.Printf("Updated password of %s\n", name)
			return nil
		})
	},
}

var accountDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete an account with its aliases, tags and memberships",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireTenant(); err != nil {
			return err
		}
		name := args[0]

		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			err := a.Directory.DeleteAccount(ctx, tenantID, name)
			if err := record(ctx, "delete_account", name, err); err != nil {
				return fmt.Errorf("failed to delete account: %w", err)
			}
			pterm.Success.Printf("Deleted account %s\n", name)
			return nil
		})
	},
}

var accountListCmd = &cobra.Command{
	Use:   "list",
	Short: "List accounts",
	Long: `List the tenant's accounts with their groups, aliases and tags.

Example:
  ssoctl --tenant 1 account list
  ssoctl --tenant 1 account list --group raiders
  ssoctl --tenant 1 account list --tag healer`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireTenant(); err != nil {
			return err
		}
		group, _ := cmd.Flags().GetString("group")
		tag, _ := cmd.Flags().GetString("tag")

		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			accounts, err := a.Directory.ListAccounts(ctx, tenantID, directory.Filter{Group: group, Tag: tag})
			if err != nil {
				return fmt.Errorf("failed to list accounts: %w", err)
			}
			if len(accounts) == 0 {
				pterm.Info.Println("No accounts found.")
				return nil
			}
			table := pterm.TableData{{"ID", "NAME", "GROUPS", "ALIASES", "TAGS", "LAST_ACCESS"}}
			for _, acc := range accounts {
				lastAccess := "-"
				if !acc.LastAccessAt.IsZero() {
					lastAccess = acc.LastAccessAt.Format("2006-01-02 15:04:05")
				}
				table = append(table, []string{
					fmt.Sprint(acc.ID),
					acc.Name,
					joinOrDash(acc.Groups),
					joinOrDash(acc.Aliases),
					joinOrDash(acc.Tags),
					lastAccess,
				})
			}
			return pterm.DefaultTable.WithHasHeader().WithData(table).Render()
		})
	},
}

func init() {
	rootCmd.AddCommand(accountCmd)
	accountCmd.AddCommand(accountCreateCmd, accountUpdateCmd, accountDeleteCmd, accountListCmd)

	accountCreateCmd.Flags().StringP("password", "p", "", "Real password of the account")
	accountCreateCmd.Flags().StringP("group", "g", "", "Group to add the account to")
	accountUpdateCmd.Flags().StringP("password", "p", "", "New real password")
	accountListCmd.Flags().String("group", "", "Only accounts in this group")
	accountListCmd.Flags().String("tag", "", "Only accounts carrying this tag")
}

func joinOrDash(values []string) string {
	if len(values) == 0 {
		return "-"
	}
	return strings.Join(values, ", ")
}
