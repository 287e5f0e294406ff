// Command ssoctl administers the credential directory of an ssoproxy
// deployment. It reads the same environment as the server:
//
//	# Apply the schema
//	ssoctl db migrate
//
//	# Create a group bound to external role 42 and an account in it
//	ssoctl --tenant 1 group create raiders 42
//	ssoctl --tenant 1 account create healer1 --password s3cret --group raiders
//
//	# Hand subject 5001 its access key
//	ssoctl --tenant 1 key get 5001
//
// Mutating commands are written to the admin audit log with the operating
// system user as the actor.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"os/user"
	"syscall"

	"github.com/opentrusty/ssoproxy/internal/app"
	"github.com/opentrusty/ssoproxy/internal/config"
	"github.com/opentrusty/ssoproxy/internal/observability/logger"
	"github.com/spf13/cobra"
)

var (
	tenantID int64
	verbose  bool
)

var rootCmd = &cobra.Command{
	Use:   "ssoctl",
	Short: "ssoproxy administration CLI",
	Long: `ssoctl manages accounts, aliases, tags, groups, access keys and
revocations of an ssoproxy tenant, and inspects its audit trail.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().Int64VarP(&tenantID, "tenant", "t", 0, "Tenant to operate on")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log at debug level")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads the environment and routes logs to stderr so stdout
// stays clean for command output
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	level := "info"
	if verbose {
		level = "debug"
	}
	log := logger.InitLogger(logger.Config{
		Level:       level,
		Format:      "text",
		ServiceName: "ssoctl",
		Output:      os.Stderr,
	})
	adminAudit = logger.NewAdminAuditLogger(log)
	return cfg, nil
}

// withApp opens the services for the duration of fn
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	a, err := app.Open(ctx, cfg, app.Options{})
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

// requireTenant rejects commands run without --tenant
func requireTenant() error {
	if tenantID <= 0 {
		return fmt.Errorf("--tenant is required")
	}
	return nil
}

var adminAudit *logger.AdminAuditLogger

// actor names the operator in admin audit events
func actor() string {
	if u, err := user.Current(); err == nil {
		return "cli:" + u.Username
	}
	return "cli"
}

// record writes the admin audit event for a mutating command and passes err
// through
func record(ctx context.Context, action, resource string, err error) error {
	if err != nil {
		adminAudit.Failed(ctx, actor(), "local", action, tenantID, resource, err)
		return err
	}
	adminAudit.Succeeded(ctx, actor(), "local", action, tenantID, resource)
	slog.DebugContext(ctx, "command applied", slog.String("action", action))
	return nil
}
