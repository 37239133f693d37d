package llm

import (
	"bytes"
	"context"
	"errors"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"archgen/internal/pipeerr"
)

func transient() error {
	e := pipeerr.ModelUnavailable("llm.generate", errors.New("connection refused"), "cannot reach inference endpoint")
	e.Transient = true
	return e
}

func TestRetryTransient_RetriesFirstAttemptOnce(t *testing.T) {
	fake := NewFakeClient(Step{Err: transient()}, Step{Output: "ok"})
	c := Wrap(fake, RetryTransient())

	out, err := c.Generate(context.Background(), Invocation{Prompt: "p", Attempt: 1})
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Len(t, fake.Calls(), 2)
}

func TestRetryTransient_GivesUpAfterOneRetry(t *testing.T) {
	fake := NewFakeClient(Step{Err: transient()})
	c := Wrap(fake, RetryTransient())

	_, err := c.Generate(context.Background(), Invocation{Prompt: "p", Attempt: 1})
	require.Error(t, err)
	assert.Len(t, fake.Calls(), 2)
}

func TestRetryTransient_SkipsNonTransientAndRepair(t *testing.T) {
	cases := map[string]struct {
		err     error
		attempt int
	}{
		"timeout":   {err: pipeerr.ModelTimeout("llm.generate", context.DeadlineExceeded, "slow"), attempt: 1},
		"http 500":  {err: pipeerr.ModelUnavailable("llm.generate", errors.New("500"), "boom"), attempt: 1},
		"repair":    {err: transient(), attempt: 2},
		"plain err": {err: errors.New("x"), attempt: 1},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			fake := NewFakeClient(Step{Err: tc.err})
			_, err := Wrap(fake, RetryTransient()).Generate(context.Background(), Invocation{Attempt: tc.attempt})
			require.Error(t, err)
			assert.Len(t, fake.Calls(), 1)
		})
	}
}

func TestWithLogging_DoesNotLogPrompt(t *testing.T) {
	var buf bytes.Buffer
	logger := log.New(&buf, "", 0)
	fake := NewFakeClient(Step{Output: "result"})
	c := Wrap(fake, WithLogging(logger), RetryTransient())

	_, err := c.Generate(context.Background(), Invocation{Prompt: "secret-prompt-body", Attempt: 1})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "llm request (FakeLLM, attempt 1): 18 chars")
	assert.NotContains(t, buf.String(), "secret-prompt-body")
	assert.Equal(t, "FakeLLM", c.Name())
}

func TestFakeClient_BlockHonorsContext(t *testing.T) {
	fake := NewFakeClient(Step{Block: true})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := fake.Generate(ctx, Invocation{})
	assert.ErrorIs(t, err, context.Canceled)
}
