// Package cli implements the lanchat command-line interface using Cobra.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/WebFirstLanguage/lanchat/internal/config"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "lanchat",
	Short: "lanchat - serverless chat for the local network",
	Long: `lanchat finds other nodes on the LAN through UDP broadcast beacons and
exchanges text messages with them directly. No server, no accounts.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default $LANCHAT_HOME/config.toml)")
}

// Execute runs the root command. Called from main.go.
func Execute(version string) {
	rootCmd.Version = version

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return cfg, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}
