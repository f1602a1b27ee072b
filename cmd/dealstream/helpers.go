package main

import (
	"github.com/spf13/cobra"

	"github.com/dealdesk/dealstream/internal/auth"
	"github.com/dealdesk/dealstream/internal/config"
	"github.com/dealdesk/dealstream/internal/errors"
	"github.com/dealdesk/dealstream/internal/jobstream"
)

// errSilent marks an error whose details were already printed.
var errSilent = errors.New("silent failure")

// isSilent reports whether err should exit without another message.
func isSilent(err error) bool {
	return errors.Is(err, errSilent)
}

// hints returns the user-facing hints attached to err.
func hints(err error) []string {
	return errors.GetAllHints(err)
}

// loadConfig reads the file named by --config, or the default location.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		var err error
		if path, err = config.DefaultPath(); err != nil {
			return nil, err
		}
	}
	return config.Load(path)
}

// jsonOutput honors both the command's own --json and the global one.
func jsonOutput(cmd *cobra.Command, local bool) bool {
	if local {
		return true
	}
	global, _ := cmd.Root().PersistentFlags().GetBool("json")
	return global
}

// requireTokens returns a token provider backed by stored credentials, or a
// hinted error when the user has not logged in.
func requireTokens() (jobstream.TokenProvider, error) {
	mgr := auth.NewManager()
	if !mgr.IsAuthenticated() {
		return nil, errors.WithHint(
			errors.WithStack(errors.ErrNotAuthenticated),
			"run 'dealstream auth login --token <token>' or set "+auth.EnvToken,
		)
	}
	return mgr.TokenProvider(), nil
}
