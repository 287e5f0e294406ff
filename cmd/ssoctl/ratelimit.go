package main

import (
	"context"
	"fmt"
	"time"

	"github.com/opentrusty/ssoproxy/internal/app"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

// ratelimitCmd represents the ratelimit command
var ratelimitCmd = &cobra.Command{
	Use:   "ratelimit",
	Short: "Inspect and clear origin rate limiting",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("ratelimit requires a subcommand")
		_ = cmd.Help()
	},
}

var ratelimitClearCmd = &cobra.Command{
	Use:   "clear <origin>",
	Short: "Forgive an origin's recorded failures",
	Long: `Forgive an origin's recorded failures so it may authenticate again.

The audit entries are kept; they no longer count toward the limit.

Example:
  ssoctl ratelimit clear 192.0.2.1`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		origin := args[0]
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			n, err := a.Limiter.Acknowledge(ctx, origin)
			if err := record(ctx, "clear_rate_limit", origin, err); err != nil {
				return fmt.Errorf("failed to clear rate limit: %w", err)
			}
			pterm.Success.Printf("Acknowledged %d failure(s) from %s\n", n, origin)
			return nil
		})
	},
}

var ratelimitStatusCmd = &cobra.Command{
	Use:   "status <origin>",
	Short: "Show whether an origin is currently blocked",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		origin := args[0]
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			blocked, err := a.Limiter.IsBlocked(ctx, origin, time.Now())
			if err != nil {
				return fmt.Errorf("failed to check origin: %w", err)
			}
			policy := a.Limiter.Policy()
			if blocked {
				pterm.Warning.Printf("%s is blocked (limit of %d failures within %s reached)\n", origin, policy.MaxAttempts, policy.Window)
				return nil
			}
			pterm.Success.Printf("%s is not blocked\n", origin)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(ratelimitCmd)
	ratelimitCmd.AddCommand(ratelimitClearCmd, ratelimitStatusCmd)
}
