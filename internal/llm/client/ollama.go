package llmclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"syscall"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"archgen/internal/pipeerr"
)

const (
	healthTimeout = 5 * time.Second
	tagsTTL       = 30 * time.Second
	maxErrorBody  = 2048
)

// OllamaConfig configures an OllamaClient.
type OllamaConfig struct {
	BaseURL     string
	Model       string
	Timeout     time.Duration
	Temperature float64
	MaxTokens   int
	Threads     int
}

// OllamaClient calls a locally hosted Ollama server's /api/generate endpoint
// without streaming. Every call is bounded by the invocation timeout.
// See: https://github.com/ollama/ollama/blob/main/docs/api.md
type OllamaClient struct {
	http *http.Client
	cfg  OllamaConfig
	// tags memoises /api/tags listings for health checks only.
	tags *expirable.LRU[string, []string]
}

func NewOllamaClient(cfg OllamaConfig) *OllamaClient {
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 1200 * time.Second
	}
	return &OllamaClient{
		// no client-wide timeout: each call carries its own deadline
		http: &http.Client{},
		cfg:  cfg,
		tags: expirable.NewLRU[string, []string](4, nil, tagsTTL),
	}
}

func (c *OllamaClient) Name() string { return "Ollama:" + c.cfg.Model }
func (c *OllamaClient) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

type generateReq struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	Stream  bool            `json:"stream"`
	Options generateOptions `json:"options"`
}

type generateOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict,omitempty"`
	NumThread   int     `json:"num_thread,omitempty"`
}

type generateResp struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error"`
}

// Generate performs one blocking inference call. It never retries.
func (c *OllamaClient) Generate(ctx context.Context, inv Invocation) (string, error) {
	const op = "llm.generate"
	model := firstNonEmpty(inv.Model, c.cfg.Model)
	timeout := inv.Timeout
	if timeout <= 0 {
		timeout = c.cfg.Timeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	body, err := json.Marshal(generateReq{
		Model:  model,
		Prompt: inv.Prompt,
		Stream: false,
		Options: generateOptions{
			Temperature: c.cfg.Temperature,
			NumPredict:  c.cfg.MaxTokens,
			NumThread:   c.cfg.Threads,
		},
	})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, c.cfg.BaseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", pipeerr.ModelUnavailable(op, err, "invalid inference endpoint %q", c.cfg.BaseURL)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", c.classify(ctx, callCtx, timeout, err, true)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		if resp.StatusCode == http.StatusNotFound {
			return "", pipeerr.ModelUnavailable(op, fmt.Errorf("status %s: %s", resp.Status, b),
				"model %q not found at %s; run: ollama pull %s", model, c.cfg.BaseURL, model)
		}
		return "", pipeerr.ModelUnavailable(op, fmt.Errorf("status %s: %s", resp.Status, b),
			"inference endpoint returned %s", resp.Status)
	}

	// The model has already run by the time the body arrives, so a cut-off
	// response is never retried.
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", c.classify(ctx, callCtx, timeout, err, false)
	}
	var out generateResp
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", pipeerr.ModelUnavailable(op, err, "unparsable response from inference endpoint")
	}
	if out.Error != "" {
		return "", pipeerr.ModelUnavailable(op, errors.New(out.Error), "inference failed: %s", out.Error)
	}
	return out.Response, nil
}

// classify maps transport failures onto the pipeline taxonomy. Caller
// cancellation wins over our own deadline. Only failures while connecting
// are transient.
func (c *OllamaClient) classify(parent, call context.Context, timeout time.Duration, err error, connecting bool) error {
	const op = "llm.generate"
	if parent.Err() != nil {
		return pipeerr.Canceled(op, parent.Err())
	}
	if errors.Is(call.Err(), context.DeadlineExceeded) {
		return pipeerr.ModelTimeout(op, err, "model did not answer within %s", timeout)
	}
	pe := pipeerr.ModelUnavailable(op, err, "cannot reach inference endpoint at %s", c.cfg.BaseURL)
	pe.Transient = connecting && isConnError(err)
	return pe
}

func isConnError(err error) bool {
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}

// Health describes the inference endpoint as seen from this process.
type Health struct {
	Connected      bool
	ModelAvailable bool
	Model          string
}

type tagsResp struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// Health lists the pulled models via /api/tags. Listings are cached briefly
// so frequent probes do not queue behind inference on the server.
func (c *OllamaClient) Health(ctx context.Context) Health {
	h := Health{Model: c.cfg.Model}
	names, ok := c.tags.Get(c.cfg.BaseURL)
	if !ok {
		var err error
		names, err = c.listModels(ctx)
		if err != nil {
			return h
		}
		c.tags.Add(c.cfg.BaseURL, names)
	}
	h.Connected = true
	for _, n := range names {
		if n == c.cfg.Model {
			h.ModelAvailable = true
			break
		}
	}
	return h
}

func (c *OllamaClient) listModels(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/api/tags", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama tags: unexpected status %s", resp.Status)
	}
	var out tagsResp
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(out.Models))
	for _, m := range out.Models {
		names = append(names, m.Name)
	}
	return names, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
