package llm

import (
	"context"

	"archgen/internal/pipeerr"
)

// RetryTransient repeats the first invocation of a run once, immediately,
// when it fails at the network layer. Timeouts and HTTP-level failures are
// returned as is, and repair invocations are never repeated.
func RetryTransient() Middleware {
	return func(next LLMClient) LLMClient {
		return &retrying{next: next}
	}
}

type retrying struct {
	next LLMClient
}

func (r *retrying) Name() string { return r.next.Name() }
func (r *retrying) Close() error { return r.next.Close() }

func (r *retrying) Generate(ctx context.Context, inv Invocation) (string, error) {
	out, err := r.next.Generate(ctx, inv)
	if err == nil || inv.Attempt > 1 || !pipeerr.IsTransient(err) {
		return out, err
	}
	if ctx.Err() != nil {
		return "", pipeerr.Canceled("llm.retry", ctx.Err())
	}
	return r.next.Generate(ctx, inv)
}
