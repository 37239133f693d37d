package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"archgen/internal/artifact"
	"archgen/internal/diagram"
	llmclient "archgen/internal/llm/client"
	"archgen/internal/pipeerr"
	"archgen/internal/repo"
)

type stubAnalyzer struct {
	res      diagram.Result
	err      error
	gotURL   string
	gotDepth int
}

func (s *stubAnalyzer) Analyze(_ context.Context, url string, depth int) (diagram.Result, error) {
	s.gotURL, s.gotDepth = url, depth
	return s.res, s.err
}
func (s *stubAnalyzer) InFlight() int { return 0 }

type stubHealth struct{ h llmclient.Health }

func (s stubHealth) Health(context.Context) llmclient.Health { return s.h }

type stubUploader struct{}

func (stubUploader) UploadURL(_ context.Context, name string) (artifact.Upload, error) {
	key, ctype, err := artifact.ObjectKey("id", name)
	if err != nil {
		return artifact.Upload{}, err
	}
	return artifact.Upload{URL: "http://minio/" + key, Key: key, ContentType: ctype, ExpiresIn: 15 * time.Minute}, nil
}

func (stubUploader) DownloadURL(_ context.Context, key string) (string, error) {
	if !strings.HasPrefix(key, "diagrams/") {
		return "", artifact.ErrInvalidName
	}
	return "http://minio/" + key + "?X-Amz-Expires=900", nil
}

func do(t *testing.T, h http.Handler, method, path, body string, hdr map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestAnalyze_OK(t *testing.T) {
	an := &stubAnalyzer{res: diagram.Result{Source: "flowchart TD\nA-->B", Keyword: "flowchart", Attempts: 2}}
	h := (&Handler{Analyzer: an}).Routes()

	rec := do(t, h, http.MethodPost, "/analyze", `{"repo_url":" https://github.com/acme/shop "}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	out := decode(t, rec)
	assert.Equal(t, "flowchart TD\nA-->B", out["mermaid"])
	assert.Equal(t, "flowchart", out["diagram_type"])
	assert.EqualValues(t, 2, out["attempts"])
	assert.Equal(t, "https://github.com/acme/shop", an.gotURL)
	assert.Equal(t, 1, an.gotDepth)
}

func TestAnalyze_ErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
		kind   string
	}{
		{pipeerr.Fetch("repo.validate_url", repo.ErrUnsupportedScheme, "unsupported URL scheme \"ftp\""), http.StatusBadRequest, "fetch_error"},
		{pipeerr.ModelTimeout("llm.generate", context.DeadlineExceeded, "slow"), http.StatusGatewayTimeout, "model_timeout"},
		{pipeerr.ModelUnavailable("llm.generate", errors.New("refused"), "down"), http.StatusServiceUnavailable, "model_unavailable"},
		{pipeerr.InvalidOutput("diagram.validate", diagram.ErrNoDiagram), http.StatusBadGateway, "invalid_output"},
		{errors.New("secret path /tmp/x"), http.StatusInternalServerError, "internal"},
	}
	for _, tc := range cases {
		h := (&Handler{Analyzer: &stubAnalyzer{err: tc.err}}).Routes()
		rec := do(t, h, http.MethodPost, "/analyze", `{"repo_url":"https://github.com/a/b","depth":2}`, nil)
		assert.Equal(t, tc.status, rec.Code, tc.kind)
		out := decode(t, rec)
		assert.Equal(t, tc.kind, out["kind"])
		assert.NotContains(t, out["detail"], "/tmp/x")
	}
}

func TestAnalyze_BadRequests(t *testing.T) {
	h := (&Handler{Analyzer: &stubAnalyzer{}}).Routes()
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/analyze", `not json`, nil).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/analyze", `{"depth":1}`, nil).Code)
	assert.Equal(t, http.StatusMethodNotAllowed, do(t, h, http.MethodGet, "/analyze", ``, nil).Code)
}

func TestAPIKey(t *testing.T) {
	h := (&Handler{Analyzer: &stubAnalyzer{}, APIKey: "s3cret"}).Routes()
	body := `{"repo_url":"https://github.com/a/b"}`

	assert.Equal(t, http.StatusUnauthorized, do(t, h, http.MethodPost, "/analyze", body, nil).Code)
	assert.Equal(t, http.StatusUnauthorized, do(t, h, http.MethodPost, "/analyze", body, map[string]string{"X-API-Key": "wrong"}).Code)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/analyze", body, map[string]string{"X-API-Key": "s3cret"}).Code)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/analyze", body, map[string]string{"Authorization": "Bearer s3cret"}).Code)
	// health stays open
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/health", "", nil).Code)
}

func TestCORSPreflight(t *testing.T) {
	h := (&Handler{Analyzer: &stubAnalyzer{}, APIKey: "k"}).Routes()
	rec := do(t, h, http.MethodOptions, "/analyze", "", map[string]string{"Origin": "http://localhost:5173"})
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "X-API-Key")
}

func TestHealth(t *testing.T) {
	h := (&Handler{
		Analyzer: &stubAnalyzer{},
		Health:   stubHealth{llmclient.Health{Connected: true, ModelAvailable: true, Model: "llama3.2:3b-instruct-q4_0"}},
		Capacity: 1,
	}).Routes()
	out := decode(t, do(t, h, http.MethodGet, "/health", "", nil))
	assert.Equal(t, "ok", out["status"])
	assert.Equal(t, "connected", out["ollama"])
	assert.Equal(t, "llama3.2:3b-instruct-q4_0", out["model"])
	assert.Equal(t, true, out["model_available"])
	assert.EqualValues(t, 0, out["in_flight"])
	assert.Equal(t, false, out["artifacts"])
}

func TestUploadURL(t *testing.T) {
	h := (&Handler{Analyzer: &stubAnalyzer{}, Uploader: stubUploader{}}).Routes()
	rec := do(t, h, http.MethodPost, "/artifacts/upload-url", `{"name":"diagram.png"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	out := decode(t, rec)
	assert.Equal(t, "diagrams/id/diagram.png", out["key"])
	assert.Equal(t, "image/png", out["content_type"])
	assert.EqualValues(t, 900, out["expires_in"])

	rec = do(t, h, http.MethodPost, "/artifacts/upload-url", `{"name":"../evil.sh"}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	disabled := (&Handler{Analyzer: &stubAnalyzer{}}).Routes()
	assert.Equal(t, http.StatusNotImplemented, do(t, disabled, http.MethodPost, "/artifacts/upload-url", `{"name":"a.png"}`, nil).Code)
}

func TestDownloadURL(t *testing.T) {
	h := (&Handler{Analyzer: &stubAnalyzer{}, Uploader: stubUploader{}}).Routes()
	rec := do(t, h, http.MethodGet, "/artifacts/download-url?key=diagrams/id/diagram.png", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "http://minio/diagrams/id/diagram.png?X-Amz-Expires=900", decode(t, rec)["url"])

	rec = do(t, h, http.MethodGet, "/artifacts/download-url?key=etc/passwd", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, http.StatusMethodNotAllowed, do(t, h, http.MethodPost, "/artifacts/download-url", "", nil).Code)

	locked := (&Handler{Analyzer: &stubAnalyzer{}, Uploader: stubUploader{}, APIKey: "k"}).Routes()
	assert.Equal(t, http.StatusUnauthorized, do(t, locked, http.MethodGet, "/artifacts/download-url?key=diagrams/id/a.png", "", nil).Code)

	disabled := (&Handler{Analyzer: &stubAnalyzer{}}).Routes()
	assert.Equal(t, http.StatusNotImplemented, do(t, disabled, http.MethodGet, "/artifacts/download-url?key=diagrams/id/a.png", "", nil).Code)
}
