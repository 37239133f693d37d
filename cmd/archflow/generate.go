package main

import (
	"github.com/spf13/cobra"

	"archgen/internal/pipeline"
	"archgen/internal/prompt"
	"archgen/internal/repo"
)

var (
	genMaxTreeLines int
	genMaxFileBytes int64
	genBudget       int
)

var generateCmd = &cobra.Command{
	Use:   "generate <path>",
	Short: "Generate a diagram for a local checkout",
	Args:  cobra.ExactArgs(1),
	RunE:  runGenerate,
}

func init() {
	generateCmd.Flags().IntVar(&genMaxTreeLines, "max-tree-lines", 0, "Tree line cap (0 uses the configured value)")
	generateCmd.Flags().Int64Var(&genMaxFileBytes, "max-file-bytes", 0, "Per-file byte cap (0 uses the configured value)")
	generateCmd.Flags().IntVar(&genBudget, "budget", 0, "Prompt character budget (0 uses the configured value)")
	rootCmd.AddCommand(generateCmd)
}

func runGenerate(cmd *cobra.Command, args []string) error {
	co, err := repo.Local(args[0])
	if err != nil {
		return err
	}
	defer co.Close()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	orch, client := newOrchestrator(cfg, newLogger())
	defer client.Close()

	res, err := orch.Generate(cmd.Context(), co.Path, pipeline.GenerateOptions{
		MaxTreeLines:     genMaxTreeLines,
		MaxFileBytes:     genMaxFileBytes,
		PromptCharBudget: genBudget,
		Meta:             prompt.Metadata{RepoURL: co.Path},
	})
	if err != nil {
		return err
	}
	return emit(res)
}
