package llm

import (
	"context"
	"sync"
)

// Step is one scripted reply of a FakeClient.
type Step struct {
	Output string
	Err    error
	// Block makes the call wait for ctx to be done before returning Err or ctx.Err().
	Block bool
}

// FakeClient replays scripted replies in order for offline runs and tests.
// The last step repeats once the script is exhausted.
type FakeClient struct {
	mu    sync.Mutex
	steps []Step
	calls []Invocation
}

func NewFakeClient(steps ...Step) *FakeClient {
	if len(steps) == 0 {
		steps = []Step{{Output: "```mermaid\nflowchart TD\n    A[repository] --> B[diagram]\n```"}}
	}
	return &FakeClient{steps: steps}
}

func (f *FakeClient) Name() string { return "FakeLLM" }
func (f *FakeClient) Close() error { return nil }

func (f *FakeClient) Generate(ctx context.Context, inv Invocation) (string, error) {
	f.mu.Lock()
	idx := len(f.calls)
	f.calls = append(f.calls, inv)
	if idx >= len(f.steps) {
		idx = len(f.steps) - 1
	}
	step := f.steps[idx]
	f.mu.Unlock()

	if step.Block {
		<-ctx.Done()
		if step.Err != nil {
			return "", step.Err
		}
		return "", ctx.Err()
	}
	if step.Err != nil {
		return "", step.Err
	}
	return step.Output, nil
}

// Calls returns the invocations received so far.
func (f *FakeClient) Calls() []Invocation {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Invocation(nil), f.calls...)
}
