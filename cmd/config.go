package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/victorjacobs/go-rs485/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Validate the configuration and print the effective settings",
	Long: `Load and validate the configuration file, then print the settings the bridge
would run with as YAML: file values, defaults and RS485_ environment overrides
merged. Passwords are redacted.`,
	RunE: runConfig,
}

func init() {
	rootCmd.AddCommand(configCmd)
}

func runConfig(cmd *cobra.Command, args []string) error {
	if _, err := config.LoadConfiguration(configFile); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	out, err := config.Dump(configFile)
	if err != nil {
		return err
	}

	fmt.Fprint(cmd.OutOrStdout(), string(out))
	return nil
}
