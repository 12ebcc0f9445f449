package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var (
	serverURL   string
	jsonOutput  bool
	quietOutput bool
)

var rootCmd = &cobra.Command{
	Use:   "wantarr",
	Short: "CLI client for the wantarr acquisition daemon",
	Long: `wantarr - CLI client for wantarrd

Inspects and operates a running wantarrd daemon: recent events,
queue/state counters, and configuration validation.

Run 'wantarrd' to start the daemon itself.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("wantarr %s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8484", "Server URL")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	rootCmd.PersistentFlags().BoolVarP(&quietOutput, "quiet", "q", false, "Suppress non-essential output")

	rootCmd.Version = version
	rootCmd.SetVersionTemplate("wantarr {{.Version}}\n")

	rootCmd.AddCommand(versionCmd)
}
