// Package cli provides the command-line interface for the mesh node.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile   string
	logLevel  string
	logFormat string
	nodeID    uint8
	radioType string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "meshnode",
	Short: "A TDMA sensor-mesh node",
	Long: `Sensor Mesh Node runs one node of a time-slotted LoRa sensor mesh:
GPS-synchronized TDMA transmission, gradient routing toward a gateway,
duplicate-suppressed multi-hop forwarding and beacon-relayed network time.

The radio can be a UDP-multicast simulation, a serial bridge to real
hardware, or an MQTT bus for distributed simulations.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ~/.config/meshnode/config.yml)")
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "l", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (json, text)")
	rootCmd.PersistentFlags().Uint8VarP(&nodeID, "node-id", "n", 0, "this node's device id (1-254)")
	rootCmd.PersistentFlags().StringVar(&radioType, "radio", "", "radio transport (udp, serial, mqtt)")

	// Bind flags to viper
	_ = viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("logging.format", rootCmd.PersistentFlags().Lookup("log-format"))
	_ = viper.BindPFlag("node.device_id", rootCmd.PersistentFlags().Lookup("node-id"))
	_ = viper.BindPFlag("radio.type", rootCmd.PersistentFlags().Lookup("radio"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag
		viper.SetConfigFile(cfgFile)
	} else {
		// Search for config in common locations (in priority order)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml") // Supports both .yaml and .yml extensions
		viper.AddConfigPath("$HOME/.config/meshnode")
		viper.AddConfigPath("/etc/meshnode")
		viper.AddConfigPath(".")
	}

	// Environment variables
	viper.SetEnvPrefix("SENSORMESH")
	viper.AutomaticEnv()

	// Read config file if it exists (errors are intentionally ignored)
	_ = viper.ReadInConfig()
}
