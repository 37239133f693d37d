// Package pipeline turns a repository into a validated diagram: fetch,
// extract, prompt, invoke, validate and at most one repair.
package pipeline

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"archgen/internal/config"
	"archgen/internal/diagram"
	"archgen/internal/llm"
	"archgen/internal/pipeerr"
	"archgen/internal/prompt"
	"archgen/internal/repo"
	"archgen/internal/scan"
)

// Fetcher provides checkouts. *repo.Source implements it.
type Fetcher interface {
	Fetch(ctx context.Context, url string, depth int) (*repo.Checkout, error)
}

// GenerateOptions bound a single Generate call. Zero values fall back to
// the orchestrator's configuration.
type GenerateOptions struct {
	MaxTreeLines     int
	MaxFileBytes     int64
	PromptCharBudget int
	Meta             prompt.Metadata
}

type Orchestrator struct {
	cfg     config.Config
	src     Fetcher
	client  llm.LLMClient
	limiter *Limiter
	log     *log.Logger

	// Observer, when set, sees every state transition.
	Observer Observer
}

func New(cfg config.Config, src Fetcher, client llm.LLMClient, logger *log.Logger) *Orchestrator {
	if logger == nil {
		logger = log.Default()
	}
	return &Orchestrator{
		cfg:     cfg,
		src:     src,
		client:  client,
		limiter: NewLimiter(cfg.Capacity, cfg.QueueTimeout),
		log:     logger,
	}
}

func (o *Orchestrator) Limiter() *Limiter { return o.limiter }
func (o *Orchestrator) InFlight() int     { return o.limiter.InFlight() }

// Analyze fetches url at depth and generates its diagram. The checkout is
// removed before Analyze returns, whatever the outcome.
func (o *Orchestrator) Analyze(ctx context.Context, url string, depth int) (diagram.Result, error) {
	runID := uuid.NewString()
	start := time.Now()
	o.enter(runID, StateFetching)

	co, err := o.src.Fetch(ctx, url, depth)
	if err != nil {
		return diagram.Result{}, o.fail(runID, StateFetching, err)
	}
	defer func() {
		if cerr := co.Close(); cerr != nil {
			o.log.Printf("pipeline[%s]: cleanup of %s failed: %v", runID, co.Path, cerr)
		}
	}()

	res, err := o.generate(ctx, runID, co.Path, GenerateOptions{Meta: prompt.Metadata{RepoURL: url}})
	if err == nil {
		o.log.Printf("pipeline[%s]: %s done in %s (%s, %d attempt(s))", runID, url, time.Since(start).Round(time.Millisecond), res.Keyword, res.Attempts)
	}
	return res, err
}

// Generate runs extraction through validation on an existing checkout.
func (o *Orchestrator) Generate(ctx context.Context, checkoutPath string, opts GenerateOptions) (diagram.Result, error) {
	return o.generate(ctx, uuid.NewString(), checkoutPath, opts)
}

func (o *Orchestrator) generate(ctx context.Context, runID, path string, opts GenerateOptions) (diagram.Result, error) {
	o.enter(runID, StateExtracting)
	extracted, err := scan.Extract(ctx, path, o.scanOptions(opts))
	if err != nil {
		return diagram.Result{}, o.fail(runID, StateExtracting, err)
	}
	o.log.Printf("pipeline[%s]: extracted %d files (%d too large, %d binary), %d manifests, truncated=%t",
		runID, extracted.FilesScanned, extracted.FilesSkipped, extracted.FilesIgnored, len(extracted.Manifests), extracted.Truncated)

	o.enter(runID, StatePrompting)
	builder := prompt.NewBuilder(firstPositive(opts.PromptCharBudget, o.cfg.Prompt.CharBudget))
	text, err := builder.Build(extracted, opts.Meta)
	if err != nil {
		if pipeerr.Is(err, pipeerr.KindBudgetExceeded) {
			// no valid prompt fits; this is a configuration problem
			err = pipeerr.Internal("pipeline.prompt", err, "prompt budget %d cannot hold the instructions", builder.Budget)
		}
		return diagram.Result{}, o.fail(runID, StatePrompting, err)
	}

	release, err := o.limiter.Acquire(ctx)
	if err != nil {
		return diagram.Result{}, o.fail(runID, StatePrompting, err)
	}
	defer release()

	o.enter(runID, StateInvoking)
	raw, err := o.invoke(ctx, text, 1)
	if err != nil {
		return diagram.Result{}, o.fail(runID, StateInvoking, err)
	}

	o.enter(runID, StateValidating)
	res, verr := diagram.Validate(raw)
	if verr == nil {
		res.Attempts = 1
		o.enter(runID, StateDone)
		return res, nil
	}
	o.log.Printf("pipeline[%s]: first output rejected: %s", runID, pipeerr.DetailOf(verr))

	o.enter(runID, StateRepairPrompting)
	repair := builder.Repair(text, pipeerr.DetailOf(verr))

	o.enter(runID, StateRepairInvoking)
	raw, err = o.invoke(ctx, repair, 2)
	if err != nil {
		return diagram.Result{}, o.fail(runID, StateRepairInvoking, err)
	}

	o.enter(runID, StateRepairValidating)
	res, verr = diagram.Validate(raw)
	if verr != nil {
		return diagram.Result{}, o.fail(runID, StateRepairValidating, verr)
	}
	res.Attempts = 2
	o.enter(runID, StateDone)
	return res, nil
}

func (o *Orchestrator) invoke(ctx context.Context, text string, attempt int) (string, error) {
	return o.client.Generate(ctx, llm.Invocation{
		Prompt:  text,
		Model:   o.cfg.Model.Name,
		Timeout: o.cfg.Model.Timeout,
		Attempt: attempt,
	})
}

func (o *Orchestrator) scanOptions(opts GenerateOptions) scan.Options {
	def := scan.DefaultOptions()
	ec := o.cfg.Extract
	return scan.Options{
		MaxTreeLines:   firstPositive(opts.MaxTreeLines, ec.MaxTreeLines, def.MaxTreeLines),
		MaxFileBytes:   int64(firstPositive(int(opts.MaxFileBytes), int(ec.MaxFileBytes), int(def.MaxFileBytes))),
		MaxFilesPerDir: firstPositive(ec.MaxFilesPerDir, def.MaxFilesPerDir),
		MaxDeps:        firstPositive(ec.MaxDeps, def.MaxDeps),
		MaxDepth:       ec.MaxDepth,
	}
}

func (o *Orchestrator) enter(runID string, s State) {
	if o.Observer != nil {
		o.Observer(runID, s)
	}
}

func (o *Orchestrator) fail(runID string, from State, err error) error {
	o.log.Printf("pipeline[%s]: failed in %s: %v", runID, from, err)
	o.enter(runID, StateFailed)
	return err
}

func firstPositive(values ...int) int {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}
