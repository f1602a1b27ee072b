// Package main provides config commands for the DealStream CLI.
package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dealdesk/dealstream/internal/config"
	"github.com/dealdesk/dealstream/internal/ui"
)

// configCmd is the parent command for configuration.
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect configuration",
}

// configShowCmd prints the resolved configuration.
var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the resolved configuration as YAML",
	Long: `Print the configuration after defaults, the config file and the
environment have been applied.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		devMode, _ := cmd.Flags().GetBool("dev")
		cfg.Backend.URL = cfg.BackendURL(devMode)

		data, err := config.Marshal(cfg)
		if err != nil {
			return err
		}
		fmt.Print(string(data))
		return nil
	},
}

// configPathCmd prints where the config file is read from.
var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config file location",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("config")
		if path == "" {
			var err error
			if path, err = config.DefaultPath(); err != nil {
				return err
			}
		}
		fmt.Println(path)
		ui.PrintDim("Edit this file to change stream and relay defaults.")
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configPathCmd)
}
