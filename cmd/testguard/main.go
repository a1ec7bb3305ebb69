// Testguard — safety and isolation harness for the conf-bkup test suite.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "testguard",
	Short: "Testguard — safety and isolation harness for the conf-bkup test suite.",
	Long: `Testguard wraps the conf-bkup automated test suite so that destructive
test cases can never touch a real system. It classifies the execution
environment, validates every filesystem path a suite may write to,
provisions isolated per-suite sandboxes, and aggregates results across
suites into a single summary with trend history.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(envCmd, sandboxCmd, resetCmd, lockCmd, reportCmd, janitorCmd, versionCmd)
	_ = godotenv.Load()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}
