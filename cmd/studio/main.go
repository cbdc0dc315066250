package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var envFile string

var rootCmd = &cobra.Command{
	Use:   "studio",
	Short: "Timeline Craft Studio turns described segments into a compiled video.",
	// Running without a subcommand starts the server, like the desktop build.
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(serveHeadless)
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	rootCmd.Flags().BoolVar(&serveHeadless, "headless", false, "run without the system tray")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
