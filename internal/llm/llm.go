// Package llm decorates inference clients with cross-cutting behaviour.
package llm

import (
	llmclient "archgen/internal/llm/client"
)

type (
	LLMClient  = llmclient.LLMClient
	Invocation = llmclient.Invocation
)

// Middleware decorates an LLMClient.
type Middleware func(LLMClient) LLMClient

// Wrap applies middlewares in left-to-right order.
// Example: Wrap(inner, A, B) => A(B(inner))
func Wrap(inner LLMClient, mws ...Middleware) LLMClient {
	out := inner
	for i := len(mws) - 1; i >= 0; i-- {
		out = mws[i](out)
	}
	return out
}
