// Package server exposes the pipeline over a small JSON HTTP API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"

	"archgen/internal/artifact"
	"archgen/internal/diagram"
	llmclient "archgen/internal/llm/client"
	"archgen/internal/pipeerr"
)

const maxBodyBytes = 1 << 20

type Analyzer interface {
	Analyze(ctx context.Context, url string, depth int) (diagram.Result, error)
	InFlight() int
}

type HealthChecker interface {
	Health(ctx context.Context) llmclient.Health
}

type Uploader interface {
	UploadURL(ctx context.Context, name string) (artifact.Upload, error)
	DownloadURL(ctx context.Context, key string) (string, error)
}

type Handler struct {
	Analyzer Analyzer
	Health   HealthChecker
	// Uploader is nil when artifact storage is not configured.
	Uploader Uploader
	APIKey   string
	Capacity int
	Log      *log.Logger
}

// Routes returns the API mux wrapped in CORS. /health is never
// authenticated.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/analyze", RequireAPIKey(h.APIKey, http.HandlerFunc(h.handleAnalyze)))
	mux.Handle("/artifacts/upload-url", RequireAPIKey(h.APIKey, http.HandlerFunc(h.handleUploadURL)))
	mux.Handle("/artifacts/download-url", RequireAPIKey(h.APIKey, http.HandlerFunc(h.handleDownloadURL)))
	mux.HandleFunc("/health", h.handleHealth)
	return CORS(mux)
}

type analyzeRequest struct {
	RepoURL string `json:"repo_url"`
	Depth   int    `json:"depth"`
}

type analyzeResponse struct {
	Mermaid     string `json:"mermaid"`
	DiagramType string `json:"diagram_type"`
	Attempts    int    `json:"attempts"`
}

type errorBody struct {
	Detail string `json:"detail"`
	Kind   string `json:"kind,omitempty"`
}

func (h *Handler) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var in analyzeRequest
	if err := decodeBody(w, r, &in); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Detail: "invalid json body"})
		return
	}
	in.RepoURL = strings.TrimSpace(in.RepoURL)
	if in.RepoURL == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Detail: "repo_url is required"})
		return
	}
	if in.Depth == 0 {
		in.Depth = 1
	}

	res, err := h.Analyzer.Analyze(r.Context(), in.RepoURL, in.Depth)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, analyzeResponse{Mermaid: res.Source, DiagramType: res.Keyword, Attempts: res.Attempts})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	status := llmclient.Health{}
	if h.Health != nil {
		status = h.Health.Health(r.Context())
	}
	ollama := "disconnected"
	if status.Connected {
		ollama = "connected"
	}
	out := map[string]any{
		"status":          "ok",
		"ollama":          ollama,
		"model":           status.Model,
		"model_available": status.ModelAvailable,
		"capacity":        h.Capacity,
		"artifacts":       h.Uploader != nil,
	}
	if h.Analyzer != nil {
		out["in_flight"] = h.Analyzer.InFlight()
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleUploadURL(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h.Uploader == nil {
		writeJSON(w, http.StatusNotImplemented, errorBody{Detail: artifact.ErrDisabled.Error()})
		return
	}
	var in struct {
		Name string `json:"name"`
	}
	if err := decodeBody(w, r, &in); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Detail: "invalid json body"})
		return
	}
	up, err := h.Uploader.UploadURL(r.Context(), in.Name)
	switch {
	case errors.Is(err, artifact.ErrInvalidName):
		writeJSON(w, http.StatusBadRequest, errorBody{Detail: err.Error()})
		return
	case err != nil:
		h.logf("artifacts: presign failed: %v", err)
		writeJSON(w, http.StatusBadGateway, errorBody{Detail: "artifact storage unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"url":          up.URL,
		"key":          up.Key,
		"content_type": up.ContentType,
		"expires_in":   int(up.ExpiresIn.Seconds()),
	})
}

func (h *Handler) handleDownloadURL(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h.Uploader == nil {
		writeJSON(w, http.StatusNotImplemented, errorBody{Detail: artifact.ErrDisabled.Error()})
		return
	}
	u, err := h.Uploader.DownloadURL(r.Context(), strings.TrimSpace(r.URL.Query().Get("key")))
	switch {
	case errors.Is(err, artifact.ErrInvalidName):
		writeJSON(w, http.StatusBadRequest, errorBody{Detail: err.Error()})
		return
	case err != nil:
		h.logf("artifacts: presign failed: %v", err)
		writeJSON(w, http.StatusBadGateway, errorBody{Detail: "artifact storage unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"url": u})
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := pipeerr.HTTPStatus(err)
	kind := pipeerr.KindOf(err)
	detail := pipeerr.DetailOf(err)
	if kind == pipeerr.KindInternal {
		h.logf("analyze: internal error: %v", err)
		detail = "internal error"
	}
	writeJSON(w, status, errorBody{Detail: detail, Kind: string(kind)})
}

func (h *Handler) logf(format string, args ...any) {
	if h.Log != nil {
		h.Log.Printf(format, args...)
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if dec.More() {
		return io.ErrUnexpectedEOF
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
