package llm

import (
	"context"
	"log"
	"time"
	"unicode/utf8"
)

// WithLogging logs prompt size, latency and errors. Prompt text is never
// logged. Provide a custom logger or nil to use log.Default().
func WithLogging(logger *log.Logger) Middleware {
	if logger == nil {
		logger = log.Default()
	}
	return func(next LLMClient) LLMClient {
		return &logging{next: next, log: logger}
	}
}

type logging struct {
	next LLMClient
	log  *log.Logger
}

func (l *logging) Name() string { return l.next.Name() }
func (l *logging) Close() error { return l.next.Close() }
func (l *logging) Generate(ctx context.Context, inv Invocation) (string, error) {
	l.log.Printf("llm request (%s, attempt %d): %d chars", l.next.Name(), inv.Attempt, utf8.RuneCountInString(inv.Prompt))
	start := time.Now()
	out, err := l.next.Generate(ctx, inv)
	if err != nil {
		l.log.Printf("llm error (%s, attempt %d) after %s: %v", l.next.Name(), inv.Attempt, time.Since(start).Round(time.Millisecond), err)
		return out, err
	}
	l.log.Printf("llm response (%s, attempt %d) in %s: %d chars", l.next.Name(), inv.Attempt, time.Since(start).Round(time.Millisecond), utf8.RuneCountInString(out))
	return out, nil
}
