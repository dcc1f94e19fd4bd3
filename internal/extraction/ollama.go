package extraction

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// LLMClient generates text for a prompt and lists the backend's installed
// models (the latter only for health diagnostics).
type LLMClient interface {
	Generate(ctx context.Context, prompt string) (string, error)
	ListModels(ctx context.Context) ([]string, error)
	Host() string
	Model() string
}

// OllamaConfig configures the locally hosted LLM backend.
type OllamaConfig struct {
	Host    string        // e.g. http://localhost:11434
	Model   string        // e.g. "llama3.1"; empty means not configured
	Timeout time.Duration // http client timeout, default 120s
}

// OllamaClient talks to Ollama's generate and tags endpoints. Generation
// requests temperature 0 so extraction is reproducible for a given OCR text.
type OllamaClient struct {
	cfg    OllamaConfig
	client *http.Client
	logger *slog.Logger
}

func NewOllamaClient(cfg OllamaConfig, logger *slog.Logger) *OllamaClient {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Host == "" {
		cfg.Host = "http://localhost:11434"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	return &OllamaClient{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

func (c *OllamaClient) Host() string  { return c.cfg.Host }
func (c *OllamaClient) Model() string { return c.cfg.Model }

// Generate runs a single non-streaming completion.
func (c *OllamaClient) Generate(ctx context.Context, prompt string) (string, error) {
	if c.cfg.Model == "" {
		return "", fmt.Errorf("no model configured")
	}

	rid := uuid.New().String()
	start := time.Now()
	body := map[string]any{
		"model":  c.cfg.Model,
		"prompt": prompt,
		"stream": false,
		"options": map[string]any{
			"temperature": 0,
		},
	}

	c.logger.Info("llm.generate.start",
		"req_id", rid, "model", c.cfg.Model, "prompt_len", len(prompt))

	raw, err := c.postJSON(ctx, c.endpoint("/api/generate"), body)
	if err != nil {
		c.logger.Error("llm.generate.http_error",
			"req_id", rid, "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return "", err
	}

	var resp struct {
		Response string `json:"response"`
		Done     bool   `json:"done"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		c.logger.Error("llm.generate.decode_error",
			"req_id", rid, "error", err, "raw_bytes", len(raw))
		return "", fmt.Errorf("decode ollama response: %w", err)
	}

	c.logger.Info("llm.generate.ok",
		"req_id", rid, "response_len", len(resp.Response),
		"elapsed_ms", time.Since(start).Milliseconds())
	return resp.Response, nil
}

// ListModels returns the names of models installed on the backend.
func (c *OllamaClient) ListModels(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("/api/tags"), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama tags: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.logger.Warn("llm.tags.body_close_error", "error", cerr)
		}
	}()
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("ollama tags status %d", resp.StatusCode)
	}

	var tags struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, fmt.Errorf("decode ollama tags: %w", err)
	}
	names := make([]string, 0, len(tags.Models))
	for _, m := range tags.Models {
		names = append(names, m.Name)
	}
	return names, nil
}

func (c *OllamaClient) endpoint(path string) string {
	return strings.TrimRight(c.cfg.Host, "/") + path
}

func (c *OllamaClient) postJSON(ctx context.Context, url string, body any) ([]byte, error) {
	bs, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode json: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bs))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.logger.Warn("llm.http.body_close_error", "error", cerr)
		}
	}()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode/100 != 2 {
		return raw, fmt.Errorf("non-2xx status: %d: %s", resp.StatusCode, truncate(string(raw), 256))
	}
	return raw, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
