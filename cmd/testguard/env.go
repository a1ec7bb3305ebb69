package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jkaninda/testguard/internal/envdetect"
	"github.com/jkaninda/testguard/internal/gate"
)

var envCmd = &cobra.Command{
	Use:   "env",
	Short: "Classify the execution environment and print it as JSON",
	Long: `Classify the current execution environment (Containerized,
ContinuousIntegration, or InteractiveLocal) and print the classification
together with the destructive-permission decision as a JSON record for
downstream test processes.`,
	RunE: runEnv,
}

// envReport is the JSON record printed by the env command.
type envReport struct {
	Classification     envdetect.Classification `json:"classification"`
	DestructiveAllowed bool                     `json:"destructive_allowed"`
}

func runEnv(_ *cobra.Command, _ []string) error {
	cls := envdetect.Classify()

	out, err := json.MarshalIndent(envReport{
		Classification:     cls,
		DestructiveAllowed: gate.Evaluate(cls, cls.AuthorizedOverride),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding environment report: %w", err)
	}
	fmt.Println(string(out))
	return nil
}
