package main

import (
	"fmt"

	transportHTTP "github.com/opentrusty/ssoproxy/internal/transport/http"
	"github.com/spf13/cobra"
)

// tokenCmd represents the token command
var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Manage admin API tokens",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("token requires a subcommand")
		_ = cmd.Help()
	},
}

var tokenIssueCmd = &cobra.Command{
	Use:   "issue <subject>",
	Short: "Mint a bearer token for the admin API",
	Long: `Mint a bearer token for the admin API, signed with ADMIN_JWT_SECRET.

Example:
  ssoctl token issue ops@example.com
  ssoctl token issue deploy-bot --ttl 15m`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.Admin.JWTSecret == "" {
			return fmt.Errorf("ADMIN_JWT_SECRET is not set")
		}
		ttl, _ := cmd.Flags().GetDuration("ttl")

		tokens, err := transportHTTP.NewAdminTokens(cfg.Admin.JWTSecret, cfg.Admin.JWTIssuer, cfg.Admin.TokenTTL)
		if err != nil {
			return err
		}
		token, err := tokens.Issue(args[0], ttl)
		if err := record(cmd.Context(), "issue_admin_token", args[0], err); err != nil {
			return fmt.Errorf("failed to issue token: %w", err)
		}
		fmt.Println(token)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tokenCmd)
	tokenCmd.AddCommand(tokenIssueCmd)
	tokenIssueCmd.Flags().Duration("ttl", 0, "Token lifetime, defaults to ADMIN_TOKEN_TTL")
}
