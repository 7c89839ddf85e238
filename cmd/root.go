// Package cmd implements CLI commands using cobra framework.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"firestige.xyz/tanakai/internal/config"
)

var (
	// Global flags
	configFile string
	quiet      bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "tanakai",
	Short: "tanakai - Photon game protocol capture agent",
	Long: `tanakai captures UDP traffic of games built on the Photon networking engine,
decodes Photon packets, reassembles fragmented commands and forwards the
resulting game events to a collector over HTTP or Kafka.`,
	Version:       "0.1.0",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "",
		"config file path (defaults and TANAKAI_* environment when empty)")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false,
		"only log warnings and errors")

	rootCmd.AddCommand(captureCmd)
	rootCmd.AddCommand(decodeCmd)
	rootCmd.AddCommand(interfacesCmd)
	rootCmd.AddCommand(validateCmd)
}

// loadConfig reads the global config and applies the global flags.
func loadConfig() (*config.GlobalConfig, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}
	if quiet {
		cfg.Quiet = true
	}
	applyQuiet(cfg)
	return cfg, nil
}

// applyQuiet raises debug and info logging to warn.
func applyQuiet(cfg *config.GlobalConfig) {
	if !cfg.Quiet {
		return
	}
	switch cfg.Log.Level {
	case "", "trace", "debug", "info":
		cfg.Log.Level = "warn"
	}
}

// exitWithError prints error message and exits with code 1
func exitWithError(msg string, err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s: %v\n", msg, err)
	} else {
		fmt.Fprintf(os.Stderr, "Error: %s\n", msg)
	}
	os.Exit(1)
}
