package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check that the inference endpoint is reachable and the model is pulled",
	Args:  cobra.NoArgs,
	RunE:  runHealth,
}

func init() {
	rootCmd.AddCommand(healthCmd)
}

func runHealth(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	h := newOllama(cfg).Health(cmd.Context())
	switch {
	case !h.Connected:
		return fmt.Errorf("ollama at %s is not reachable", cfg.Model.BaseURL)
	case !h.ModelAvailable:
		return fmt.Errorf("model %q is not pulled; run: ollama pull %s", h.Model, h.Model)
	}
	fmt.Printf("ok: %s serving %s\n", cfg.Model.BaseURL, h.Model)
	return nil
}
