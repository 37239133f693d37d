package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"archgen/internal/prompt"
	"archgen/internal/repo"
	"archgen/internal/scan"
)

var (
	inspectFormat string
	inspectPrompt bool
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <path>",
	Short: "Show what would be sent to the model, without calling it",
	Args:  cobra.ExactArgs(1),
	RunE:  runInspect,
}

func init() {
	inspectCmd.Flags().StringVar(&inspectFormat, "format", "human", "Output format (json, human)")
	inspectCmd.Flags().BoolVar(&inspectPrompt, "prompt", false, "Print the budgeted prompt instead of the summary")
	rootCmd.AddCommand(inspectCmd)
}

func runInspect(cmd *cobra.Command, args []string) error {
	co, err := repo.Local(args[0])
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	opts := scan.Options{
		MaxTreeLines:   cfg.Extract.MaxTreeLines,
		MaxFileBytes:   cfg.Extract.MaxFileBytes,
		MaxFilesPerDir: cfg.Extract.MaxFilesPerDir,
		MaxDeps:        cfg.Extract.MaxDeps,
		MaxDepth:       cfg.Extract.MaxDepth,
	}
	res, err := scan.Extract(cmd.Context(), co.Path, opts)
	if err != nil {
		return err
	}

	if inspectPrompt {
		text, err := prompt.NewBuilder(cfg.Prompt.CharBudget).Build(res, prompt.Metadata{RepoURL: co.Path})
		if err != nil {
			return err
		}
		_, err = fmt.Fprint(os.Stdout, text)
		return err
	}

	if inspectFormat == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	fmt.Println(res.Tree)
	fmt.Println()
	fmt.Printf("files: %d scanned, %d too large, %d binary, %d unreadable\n", res.FilesScanned, res.FilesSkipped, res.FilesIgnored, res.Unreadable)
	fmt.Printf("truncated: %t\n", res.Truncated)
	for _, m := range res.Manifests {
		fmt.Printf("manifest %s (%s): %d deps\n", m.Path, m.Tech, len(m.Deps))
	}
	return nil
}
