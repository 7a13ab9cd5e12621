package cmd

import (
	"github.com/spf13/cobra"

	"github.com/victorjacobs/go-rs485/config"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "rs485bridge",
	Short: "Bridge RS485 climate and fan devices to Home Assistant",
	Long: `rs485bridge translates frames on an RS485 bus into Home Assistant climate and
fan entities over MQTT, and Home Assistant commands back into bus frames.

The bus is reached through a local serial port or a networked RS485 gateway
speaking binary WebSocket messages. Devices are described in the configuration
file as hex patterns and commands.

Without a subcommand the bridge is started, same as "rs485bridge run".`,
	Version:      "1.0.0",
	SilenceUsage: true,
	RunE:         runBridge,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", config.DefaultFilename, "Configuration file (YAML or JSON)")
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
