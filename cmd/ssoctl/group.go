package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/opentrusty/ssoproxy/internal/app"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

// groupCmd represents the group command
var groupCmd = &cobra.Command{
	Use:   "group",
	Short: "Manage groups bound to external roles",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("group requires a subcommand")
		_ = cmd.Help()
	},
}

var groupCreateCmd = &cobra.Command{
	Use:   "create <name> <role-id>",
	Short: "Create a group granted to holders of an external role",
	Long: `Create a group granted to holders of an external role.

Example:
  ssoctl --tenant 1 group create raiders 42`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireTenant(); err != nil {
			return err
		}
		name := args[0]
		roleID, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid role id %q", args[1])
		}

		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			g, err := a.Directory.CreateGroup(ctx, tenantID, name, roleID)
			if err := record(ctx, "create_group", name, err); err != nil {
				return fmt.Errorf("failed to create group: %w", err)
			}
			pterm.Success.Printf("Created group %s for role %d\n", g.Name, g.ExternalRoleID)
			return nil
		})
	},
}

var groupRenameCmd = &cobra.Command{
	Use:   "rename <name> <new-name>",
	Short: "Rename a group",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireTenant(); err != nil {
			return err
		}
		name, newName := args[0], args[1]

		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			err := a.Directory.RenameGroup(ctx, tenantID, name, newName)
			if err := record(ctx, "rename_group", name, err); err != nil {
				return fmt.Errorf("failed to rename group: %w", err)
			}
			pterm.Success.Printf("Renamed group %s to %s\n", name, newName)
			return nil
		})
	},
}

var groupDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a group and its memberships",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireTenant(); err != nil {
			return err
		}
		name := args[0]

		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			err := a.Directory.DeleteGroup(ctx, tenantID, name)
			if err := record(ctx, "delete_group", name, err); err != nil {
				return fmt.Errorf("failed to delete group: %w", err)
			}
			pterm.Success.Printf("Deleted group %s\n", name)
			return nil
		})
	},
}

var groupListCmd = &cobra.Command{
	Use:   "list",
	Short: "List groups with their members",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireTenant(); err != nil {
			return err
		}
		var roleID *int64
		if cmd.Flags().Changed("role") {
			v, _ := cmd.Flags().GetInt64("role")
			roleID = &v
		}

		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			groups, err := a.Directory.ListGroups(ctx, tenantID, roleID)
			if err != nil {
				return fmt.Errorf("failed to list groups: %w", err)
			}
			if len(groups) == 0 {
				pterm.Info.Println("No groups found.")
				return nil
			}
			table := pterm.TableData{{"ID", "NAME", "ROLE", "MEMBERS"}}
			for _, g := range groups {
				table = append(table, []string{
					fmt.Sprint(g.ID),
					g.Name,
					fmt.Sprint(g.ExternalRoleID),
					joinOrDash(g.Members),
				})
			}
			return pterm.DefaultTable.WithHasHeader().WithData(table).Render()
		})
	},
}

var groupAddCmd = &cobra.Command{
	Use:   "add <group> <account>",
	Short: "Add an account to a group",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireTenant(); err != nil {
			return err
		}
		group, account := args[0], args[1]

		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			err := a.Directory.AddAccountToGroup(ctx, tenantID, group, account)
			if err := record(ctx, "add_group_member", group+"/"+account, err); err != nil {
				return fmt.Errorf("failed to add member: %w", err)
			}
			pterm.Success.Printf("Added %s to group %s\n", account, group)
			return nil
		})
	},
}

var groupRemoveCmd = &cobra.Command{
	Use:   "remove <group> <account>",
	Short: "Remove an account from a group",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireTenant(); err != nil {
			return err
		}
		group, account := args[0], args[1]

		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			err := a.Directory.RemoveAccountFromGroup(ctx, tenantID, group, account)
			if err := record(ctx, "remove_group_member", group+"/"+account, err); err != nil {
				return fmt.Errorf("failed to remove member: %w", err)
			}
			pterm.Success.Printf("Removed %s from group %s\n", account, group)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(groupCmd)
	groupCmd.AddCommand(groupCreateCmd, groupRenameCmd, groupDeleteCmd, groupListCmd, groupAddCmd, groupRemoveCmd)

	groupListCmd.Flags().Int64("role", 0, "Only groups bound to this external role")
}
