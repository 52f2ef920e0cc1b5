// Command mockinterview runs a scripted job interview against a
// text-completion service, either as a websocket server or in the terminal.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

var configPath string

var rootCmd = &cobra.Command{
	Use:           "mockinterview",
	Short:         "Practice job interviews with an AI interviewer",
	Long:          "mockinterview asks for a job title, then conducts a short interview streamed from a completion service and ends it with feedback.",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to the YAML configuration file")
}

func main() {
	// The API key usually lives in .env.
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "mockinterview: %v\n", err)
		os.Exit(1)
	}
}
