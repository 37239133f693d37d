package llmclient

import (
	"context"
	"time"
)

// Invocation is one call to the inference endpoint.
type Invocation struct {
	Prompt  string
	Model   string
	Timeout time.Duration
	// Attempt is 1 for the first call of a pipeline run and 2 for the repair call.
	Attempt int
}

// LLMClient sends a prompt to a model and returns the raw generated text.
type LLMClient interface {
	Name() string
	Close() error
	Generate(ctx context.Context, inv Invocation) (string, error)
}
