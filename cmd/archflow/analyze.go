package main

import (
	"github.com/spf13/cobra"
)

var analyzeDepth int

var analyzeCmd = &cobra.Command{
	Use:   "analyze <repo-url>",
	Short: "Clone a remote repository and generate its diagram",
	Args:  cobra.ExactArgs(1),
	RunE:  runAnalyze,
}

func init() {
	analyzeCmd.Flags().IntVar(&analyzeDepth, "depth", 1, "Clone depth (1-3)")
	rootCmd.AddCommand(analyzeCmd)
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	orch, client := newOrchestrator(cfg, newLogger())
	defer client.Close()

	res, err := orch.Analyze(cmd.Context(), args[0], analyzeDepth)
	if err != nil {
		return err
	}
	return emit(res)
}
