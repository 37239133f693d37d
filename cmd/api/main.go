package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"archgen/internal/artifact"
	"archgen/internal/config"
	"archgen/internal/llm"
	llmclient "archgen/internal/llm/client"
	"archgen/internal/pipeline"
	"archgen/internal/repo"
	"archgen/internal/server"
)

func main() {
	addr := flag.String("addr", "", "listen address (overrides PORT)")
	flag.Parse()

	logger := log.New(os.Stderr, "", log.LstdFlags)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal(err)
	}
	if *addr != "" {
		cfg.Addr = *addr
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal(err)
	}

	ollama := llmclient.NewOllamaClient(llmclient.OllamaConfig{
		BaseURL:     cfg.Model.BaseURL,
		Model:       cfg.Model.Name,
		Timeout:     cfg.Model.Timeout,
		Temperature: cfg.Model.Temperature,
		MaxTokens:   cfg.Model.MaxTokens,
		Threads:     cfg.Model.Threads,
	})
	client := llm.Wrap(ollama, llm.WithLogging(logger), llm.RetryTransient())
	defer client.Close()

	src := &repo.Source{
		TempRoot:     cfg.Repo.TempRoot,
		Prefix:       cfg.Repo.TempPrefix,
		MaxBytes:     cfg.Repo.MaxRepoBytes,
		MinDepth:     cfg.Repo.MinDepth,
		MaxDepth:     cfg.Repo.MaxDepth,
		AllowedHosts: cfg.Repo.AllowedHosts,
		Logger:       logger,
	}
	orch := pipeline.New(cfg, src, client, logger)

	h := &server.Handler{
		Analyzer: orch,
		Health:   ollama,
		APIKey:   cfg.APIKey,
		Capacity: cfg.Capacity,
		Log:      logger,
	}
	presigner, err := artifact.NewPresigner(cfg.Artifact)
	switch {
	case err == nil:
		h.Uploader = presigner
	case errors.Is(err, artifact.ErrDisabled):
	default:
		logger.Printf("artifact uploads disabled: %v", err)
	}

	srv := server.New(cfg.Addr, h.Routes(), logger)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Printf("model %s at %s, capacity %d", cfg.Model.Name, cfg.Model.BaseURL, cfg.Capacity)
	if err := srv.Start(); err != nil {
		logger.Fatal(err)
	}
}
