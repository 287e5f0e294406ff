package main

import (
	"context"
	"fmt"

	"github.com/opentrusty/ssoproxy/internal/app"
	"github.com/opentrusty/ssoproxy/internal/revocation"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

// revokeCmd represents the revoke command
var revokeCmd = &cobra.Command{
	Use:   "revoke",
	Short: "Manage subject revocations",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("revoke requires a subcommand")
		_ = cmd.Help()
	},
}

var revokeAddCmd = &cobra.Command{
	Use:   "add <subject-id>",
	Short: "Deny a subject access to the tenant",
	Long: `Deny a subject access to the tenant.

With --days 0 the revocation is permanent until cleared.

Example:
  ssoctl --tenant 1 revoke add 5001 --days 7 --reason "shared key"
  ssoctl --tenant 1 revoke add 5001`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireTenant(); err != nil {
			return err
		}
		subjectID, err := parseSubject(args[0])
		if err != nil {
			return err
		}
		days, _ := cmd.Flags().GetInt("days")
		reason, _ := cmd.Flags().GetString("reason")

		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			rev, err := a.Revocations.Revoke(ctx, tenantID, subjectID, days, reason)
			if err := record(ctx, "revoke", args[0], err); err != nil {
				return fmt.Errorf("failed to revoke subject: %w", err)
			}
			pterm.Success.Printf("Revoked subject %d until %s\n", subjectID, expiry(rev))
			return nil
		})
	},
}

var revokeClearCmd = &cobra.Command{
	Use:   "clear <subject-id>",
	Short: "Lift every active revocation of a subject",
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
			n, err := a.Revocations.Clear(ctx, tenantID, subjectID)
			if err := record(ctx, "clear_revocation", args[0], err); err != nil {
				return fmt.Errorf("failed to clear revocation: %w", err)
			}
			pterm.Success.Printf("Cleared %d revocation(s) of subject %d\n", n, subjectID)
			return nil
		})
	},
}

var revokeListCmd = &cobra.Command{
	Use:   "list",
	Short: "List revocations",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireTenant(); err != nil {
			return err
		}
		var subjectID *int64
		if cmd.Flags().Changed("subject") {
			v, _ := cmd.Flags().GetInt64("subject")
			subjectID = &v
		}
		activeOnly, _ := cmd.Flags().GetBool("active")

		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			revs, err := a.Revocations.List(ctx, tenantID, subjectID, activeOnly)
			if err != nil {
				return fmt.Errorf("failed to list revocations: %w", err)
			}
			if len(revs) == 0 {
				pterm.Info.Println("No revocations found.")
				return nil
			}
			table := pterm.TableData{{"ID", "SUBJECT", "CREATED", "UNTIL", "ACTIVE", "REASON"}}
			for _, rev := range revs {
				table = append(table, []string{
					fmt.Sprint(rev.ID),
					fmt.Sprint(rev.SubjectID),
					rev.CreatedAt.Format("2006-01-02 15:04:05"),
					expiry(rev),
					fmt.Sprint(rev.Active),
					rev.Reason,
				})
			}
			return pterm.DefaultTable.WithHasHeader().WithData(table).Render()
		})
	},
}

func init() {
	rootCmd.AddCommand(revokeCmd)
	revokeCmd.AddCommand(revokeAddCmd, revokeClearCmd, revokeListCmd)

	revokeAddCmd.Flags().Int("days", revocation.Permanent, "Days until the revocation lapses, 0 for permanent")
	revokeAddCmd.Flags().String("reason", "", "Reason shown to administrators")
	revokeListCmd.Flags().Int64("subject", 0, "Only revocations of this subject")
	revokeListCmd.Flags().Bool("active", false, "Only active revocations")
}

func expiry(rev *revocation.Revocation) string {
	if rev.ExpiryDays == revocation.Permanent {
		return "permanent"
	}
	return rev.ExpiresAt().Format("2006-01-02 15:04:05")
}
