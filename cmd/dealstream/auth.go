// Package main provides auth commands for the DealStream CLI.
package main

import (
	"context"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/dealdesk/dealstream/internal/api"
	"github.com/dealdesk/dealstream/internal/auth"
	"github.com/dealdesk/dealstream/internal/errors"
	"github.com/dealdesk/dealstream/internal/ui"
)

var (
	loginToken        string
	loginSkipValidate bool
)

// authCmd is the parent command for authentication operations.
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage authentication",
	Long: `Manage the API token used to stream job progress.

COMMANDS:
  login   - Save an API token
  logout  - Remove stored credentials
  status  - Show current authentication status

CREDENTIALS:
  Credentials are stored in ~/.dealstream/credentials.json.
  DEALSTREAM_TOKEN takes precedence over the stored token.`,
}

// authLoginCmd validates and stores a token.
var authLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Save an API token",
	Long: `Validate an API token against the backend and store it.

EXAMPLES:
  dealstream auth login --token dd_live_...
  dealstream auth login --token dd_live_... --dev`,
	RunE: func(cmd *cobra.Command, args []string) error {
		token := strings.TrimSpace(loginToken)
		if token == "" {
			return errors.WithHint(errors.New("--token is required"), "create a token in DealDesk under Settings > API tokens")
		}

		creds := &auth.Credentials{Token: token}
		if !loginSkipValidate {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			devMode, _ := cmd.Flags().GetBool("dev")
			if devMode {
				ui.PrintInfo("Using local development server")
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			ui.PrintInfo("Validating token...")
			info, err := api.NewClientWithBaseURL(token, cfg.BackendURL(devMode)).ValidateToken(ctx)
			if err != nil {
				if api.IsUnauthorized(err) {
					return errors.WithHint(errors.New("invalid token"), "check the token has not been revoked")
				}
				return errors.Wrap(err, "failed to validate token")
			}
			creds.Email = info.Email
			creds.OrgID = info.OrgID
			creds.UserID = info.UserID
		}

		if err := auth.NewManager().SaveCredentials(creds); err != nil {
			return err
		}

		if creds.Email != "" {
			ui.PrintSuccess("Authenticated as %s", creds.Email)
		} else {
			ui.PrintSuccess("Token saved")
		}
		if creds.OrgID != "" {
			ui.PrintInfo("Organization: %s", creds.OrgID)
		}
		return nil
	},
}

// authLogoutCmd removes stored credentials.
var authLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove stored credentials",
	Long:  `Remove stored credentials from ~/.dealstream/credentials.json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := auth.NewManager().ClearCredentials(); err != nil {
			return err
		}
		ui.PrintSuccess("Successfully logged out")
		return nil
	},
}

// authStatusCmd shows current authentication status.
var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show authentication status",
	RunE: func(cmd *cobra.Command, args []string) error {
		creds, err := auth.NewManager().GetCredentials()
		if err != nil || creds == nil || creds.Token == "" {
			ui.PrintWarning("Not authenticated")
			ui.PrintInfo("Run 'dealstream auth login --token <token>' to authenticate")
			return nil
		}

		ui.PrintSuccess("Authenticated")
		if creds.FromEnv {
			ui.PrintInfo("Source: %s", auth.EnvToken)
		}
		if creds.Email != "" {
			ui.PrintInfo("Email: %s", creds.Email)
		}
		if creds.OrgID != "" {
			ui.PrintInfo("Organization: %s", creds.OrgID)
		}
		ui.PrintInfo("Token: %s", maskToken(creds.Token))
		return nil
	},
}

// maskToken keeps the first 8 and last 4 characters of long tokens.
func maskToken(token string) string {
	if len(token) > 12 {
		return token[:8] + "..." + token[len(token)-4:]
	}
	return "****"
}

func init() {
	authLoginCmd.Flags().StringVar(&loginToken, "token", "", "API token to store")
	authLoginCmd.Flags().BoolVar(&loginSkipValidate, "skip-validate", false, "Store the token without checking it")

	authCmd.AddCommand(authLoginCmd)
	authCmd.AddCommand(authLogoutCmd)
	authCmd.AddCommand(authStatusCmd)
}
