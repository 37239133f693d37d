package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"archgen/internal/config"
	"archgen/internal/diagram"
	"archgen/internal/llm"
	llmclient "archgen/internal/llm/client"
	"archgen/internal/pipeline"
	"archgen/internal/repo"
)

var (
	verbose  bool
	outPath  string
	modelArg string
)

var rootCmd = &cobra.Command{
	Use:           "archflow",
	Short:         "Generate Mermaid architecture diagrams from repositories",
	Long:          "archflow summarizes a repository and asks a locally hosted model for a Mermaid architecture diagram.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log pipeline progress to stderr")
	rootCmd.PersistentFlags().StringVarP(&outPath, "out", "o", "", "Write the diagram to a file instead of stdout")
	rootCmd.PersistentFlags().StringVar(&modelArg, "model", "", "Model identifier (overrides OLLAMA_MODEL)")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newLogger() *log.Logger {
	if !verbose {
		return log.New(io.Discard, "", 0)
	}
	return log.New(os.Stderr, "", log.LstdFlags)
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return cfg, err
	}
	if modelArg != "" {
		cfg.Model.Name = modelArg
	}
	return cfg, cfg.Validate()
}

func newOllama(cfg config.Config) *llmclient.OllamaClient {
	return llmclient.NewOllamaClient(llmclient.OllamaConfig{
		BaseURL:     cfg.Model.BaseURL,
		Model:       cfg.Model.Name,
		Timeout:     cfg.Model.Timeout,
		Temperature: cfg.Model.Temperature,
		MaxTokens:   cfg.Model.MaxTokens,
		Threads:     cfg.Model.Threads,
	})
}

func newOrchestrator(cfg config.Config, logger *log.Logger) (*pipeline.Orchestrator, llm.LLMClient) {
	client := llm.Wrap(newOllama(cfg), llm.WithLogging(logger), llm.RetryTransient())
	src := &repo.Source{
		TempRoot:     cfg.Repo.TempRoot,
		Prefix:       cfg.Repo.TempPrefix,
		MaxBytes:     cfg.Repo.MaxRepoBytes,
		MinDepth:     cfg.Repo.MinDepth,
		MaxDepth:     cfg.Repo.MaxDepth,
		AllowedHosts: cfg.Repo.AllowedHosts,
		Logger:       logger,
	}
	o := pipeline.New(cfg, src, client, logger)
	o.Observer = func(runID string, s pipeline.State) {
		logger.Printf("[%s] %s", runID[:8], s)
	}
	return o, client
}

func emit(res diagram.Result) error {
	body := res.Source + "\n"
	if outPath == "" {
		_, err := fmt.Fprint(os.Stdout, body)
		return err
	}
	if err := os.WriteFile(outPath, []byte(body), 0o644); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "wrote %s diagram to %s (%d attempt(s))\n", res.Keyword, outPath, res.Attempts)
	return nil
}
