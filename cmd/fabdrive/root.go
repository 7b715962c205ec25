package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "fabdrive",
	Short: "fabdrive drives fabrication devices over serial, telnet and virtual transports",
	Long: `fabdrive is a device control engine: it manages a registry of fabrication
devices, sequences commands through per-device queues with checksum retry
handling, and broadcasts device state over websocket and MQTT.`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "fabdrive.yaml", "configuration file path")
}
