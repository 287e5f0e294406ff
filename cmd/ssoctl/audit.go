package main

import (
	"context"
	"fmt"
	"time"

	"github.com/opentrusty/ssoproxy/internal/app"
	"github.com/opentrusty/ssoproxy/internal/audit"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

// auditCmd represents the audit command
var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Inspect the authentication audit trail",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("audit requires a subcommand")
		_ = cmd.Help()
	},
}

var auditQueryCmd = &cobra.Command{
	Use:   "query",
	Short: "List audit entries, newest first",
	Long: `List audit entries, newest first.

Example:
  ssoctl --tenant 1 audit query --since 24h
  ssoctl --tenant 1 audit query --identifier healer1 --failed
  ssoctl audit query --origin 192.0.2.1 --limit 20`,
	RunE: func(cmd *cobra.Command, args []string) error {
		filter, err := auditFilter(cmd)
		if err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			entries, err := a.Audit.Query(ctx, filter)
			if err != nil {
				return fmt.Errorf("failed to query audit log: %w", err)
			}
			if len(entries) == 0 {
				pterm.Info.Println("No audit entries found.")
				return nil
			}
			table := pterm.TableData{{"TIME", "ORIGIN", "IDENTIFIER", "RESULT", "SUBJECT", "DETAILS"}}
			for _, e := range entries {
				result := "success"
				if !e.Success {
					result = "failure"
				}
				subject := "-"
				if e.SubjectID != nil {
					subject = fmt.Sprint(*e.SubjectID)
				}
				table = append(table, []string{
					e.Timestamp.Format("2006-01-02 15:04:05"),
					e.Origin,
					e.Identifier,
					result,
					subject,
					e.Details,
				})
			}
			return pterm.DefaultTable.WithHasHeader().WithData(table).Render()
		})
	},
}

var auditStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize audit entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		filter, err := auditFilter(cmd)
		if err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			stats, err := a.Audit.Statistics(ctx, filter)
			if err != nil {
				return fmt.Errorf("failed to compute statistics: %w", err)
			}
			table := pterm.TableData{
				{"METRIC", "VALUE"},
				{"total", fmt.Sprint(stats.Total)},
				{"successful", fmt.Sprint(stats.Successful)},
				{"failed", fmt.Sprint(stats.Failed)},
				{"unique identifiers", fmt.Sprint(stats.UniqueIdentifiers)},
				{"unique origins", fmt.Sprint(stats.UniqueOrigins)},
				{"success rate", fmt.Sprintf("%.1f%%", stats.SuccessRate)},
			}
			return pterm.DefaultTable.WithHasHeader().WithData(table).Render()
		})
	},
}

var auditFailedCmd = &cobra.Command{
	Use:   "failed",
	Short: "List origins with repeated failures",
	RunE: func(cmd *cobra.Command, args []string) error {
		filter, err := auditFilter(cmd)
		if err != nil {
			return err
		}
		threshold, _ := cmd.Flags().GetInt("threshold")

		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			origins, err := a.Audit.SuspiciousOrigins(ctx, filter, threshold)
			if err != nil {
				return fmt.Errorf("failed to list origins: %w", err)
			}
			if len(origins) == 0 {
				pterm.Success.Println("No origin exceeds the failure threshold.")
				return nil
			}
			table := pterm.TableData{{"ORIGIN", "FAILURES"}}
			for _, o := range origins {
				table = append(table, []string{o.Origin, fmt.Sprint(o.Failures)})
			}
			return pterm.DefaultTable.WithHasHeader().WithData(table).Render()
		})
	},
}

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(auditQueryCmd, auditStatsCmd, auditFailedCmd)

	for _, c := range []*cobra.Command{auditQueryCmd, auditStatsCmd, auditFailedCmd} {
		addFilterFlags(c)
	}
	auditQueryCmd.Flags().Int("limit", audit.DefaultQueryLimit, "Maximum entries to show")
	auditQueryCmd.Flags().Int("offset", 0, "Entries to skip")
	auditFailedCmd.Flags().Int("threshold", audit.DefaultSuspiciousThreshold, "Failures above which an origin is listed")
}

func addFilterFlags(c *cobra.Command) {
	c.Flags().String("identifier", "", "Only entries for this login name")
	c.Flags().String("origin", "", "Only entries from this origin")
	c.Flags().String("since", "", "Only entries newer than a duration (24h) or RFC 3339 time")
	c.Flags().Int64("subject", 0, "Only entries of this subject")
	c.Flags().Bool("failed", false, "Only failed entries")
	c.Flags().Bool("include-listing", false, "Include account listing requests")
}

// auditFilter builds a filter from flags. Without --tenant every tenant is
// searched.
func auditFilter(cmd *cobra.Command) (audit.Filter, error) {
	flags := cmd.Flags()
	f := audit.Filter{}
	f.Identifier, _ = flags.GetString("identifier")
	f.Origin, _ = flags.GetString("origin")
	f.IncludeListing, _ = flags.GetBool("include-listing")

	if tenantID > 0 {
		tenant := tenantID
		f.TenantID = &tenant
	}
	if flags.Changed("subject") {
		v, _ := flags.GetInt64("subject")
		f.SubjectID = &v
	}
	if failed, _ := flags.GetBool("failed"); failed {
		success := false
		f.Success = &success
	}
	if raw, _ := flags.GetString("since"); raw != "" {
		since, err := parseSince(raw)
		if err != nil {
			return f, fmt.Errorf("invalid --since %q", raw)
		}
		f.Since = &since
	}
	if flags.Lookup("limit") != nil {
		f.Limit, _ = flags.GetInt("limit")
		f.Offset, _ = flags.GetInt("offset")
	}
	return f, nil
}

// parseSince accepts an RFC 3339 time or a duration back from now
func parseSince(raw string) (time.Time, error) {
	if d, err := time.ParseDuration(raw); err == nil {
		return time.Now().Add(-d), nil
	}
	return time.Parse(time.RFC3339, raw)
}
