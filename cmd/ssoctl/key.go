package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/opentrusty/ssoproxy/internal/app"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

// keyCmd represents the key command
var keyCmd = &cobra.Command{
	Use:   "key",
	Short: "Manage subject access keys",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("key requires a subcommand")
		_ = cmd.Help()
	},
}

var keyGetCmd = &cobra.Command{
	Use:   "get <subject-id>",
	Short: "Show a subject's access key, creating it on first use",
	Long: `Show a subject's access key, creating it on first use.

The key is printed to stdout so it can be piped to the subject.

Example:
  ssoctl --tenant 1 key get 5001`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireTenant(); err != nil {
			return err
		}
		subjectID, err := parseSubject(args[0])
		if err != nil {
			return err
		}

		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			key, err := a.Keys.GetOrCreate(ctx, tenantID, subjectID)
			if err := record(ctx, "issue_key", args[0], err); err != nil {
				return fmt.Errorf("failed to get access key: %w", err)
			}
			fmt.Println(key.Secret)
			return nil
		})
	},
}

var keyRotateCmd = &cobra.Command{
	Use:   "rotate <subject-id>",
	Short: "Replace a subject's access key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireTenant(); err != nil {
			return err
		}
		subjectID, err := parseSubject(args[0])
		if err != nil {
			return err
		}

		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			key, err := a.Keys.Rotate(ctx, tenantID, subjectID)
			if err := record(ctx, "rotate_key", args[0], err); err != nil {
				return fmt.Errorf("failed to rotate access key: %w", err)
			}
			pterm.Success.Printf("Rotated access key of subject %d\n", subjectID)
			fmt.Println(key.Secret)
			return nil
		})
	},
}

var keyDeleteCmd = &cobra.Command{
	Use:   "delete <subject-id>",
	Short: "Delete a subject's access key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireTenant(); err != nil {
			return err
		}
		subjectID, err := parseSubject(args[0])
		if err != nil {
			return err
		}

		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			err := a.Keys.Delete(ctx, tenantID, subjectID)
			if err := record(ctx, "delete_key", args[0], err); err != nil {
				return fmt.Errorf("failed to delete access key: %w", err)
			}
			pterm.Success.Printf("Deleted access key of subject %d\n", subjectID)
			return nil
		})
	},
}

var keyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List subjects holding an access key",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireTenant(); err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			keys, err := a.Keys.List(ctx, tenantID)
			if err != nil {
				return fmt.Errorf("failed to list access keys: %w", err)
			}
			if len(keys) == 0 {
				pterm.Info.Println("No access keys found.")
				return nil
			}
			table := pterm.TableData{{"SUBJECT", "CREATED"}}
			for _, k := range keys {
				table = append(table, []string{fmt.Sprint(k.SubjectID), k.CreatedAt.Format("2006-01-02 15:04:05")})
			}
			return pterm.DefaultTable.WithHasHeader().WithData(table).Render()
		})
	},
}

func init() {
	rootCmd.AddCommand(keyCmd)
	keyCmd.AddCommand(keyGetCmd, keyRotateCmd, keyDeleteCmd, keyListCmd)
}

func parseSubject(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid subject id %q", raw)
	}
	return id, nil
}
