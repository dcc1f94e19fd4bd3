package extraction

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Stage errors. The capture orchestrator absorbs all three into extraction
// metadata; nothing below it ever swallows them.

type OCRError struct{ Cause error }

func (e *OCRError) Error() string { return fmt.Sprintf("ocr: %v", e.Cause) }
func (e *OCRError) Unwrap() error { return e.Cause }

type LLMError struct{ Cause error }

func (e *LLMError) Error() string { return fmt.Sprintf("llm: %v", e.Cause) }
func (e *LLMError) Unwrap() error { return e.Cause }

type ParseError struct{ Cause error }

func (e *ParseError) Error() string { return fmt.Sprintf("parse: %v", e.Cause) }
func (e *ParseError) Unwrap() error { return e.Cause }

// Timing records per-stage durations in milliseconds.
type Timing struct {
	OCRMillis   int64 `json:"ocr_ms"`
	LLMMillis   int64 `json:"llm_ms"`
	TotalMillis int64 `json:"total_ms"`
}

// Result is always fully populated, success or not: a failed run still
// carries whatever OCR text and raw response existed plus the error string,
// so the review UI has something to show.
type Result struct {
	Success     bool              `json:"success"`
	Data        *ExtractedExpense `json:"-"`
	OCRText     string            `json:"ocr_text,omitempty"`
	RawResponse string            `json:"raw_response,omitempty"`
	Timing      Timing            `json:"timing"`
	Error       string            `json:"error,omitempty"`
}

// HealthStatus distinguishes three independent failure modes of the LLM
// backend: unreachable, reachable but unconfigured, and configured with a
// model the backend does not have installed.
type HealthStatus struct {
	Available      bool     `json:"available"`
	Configured     bool     `json:"configured"`
	ModelAvailable bool     `json:"model_available"`
	Models         []string `json:"models"`
	Host           string   `json:"host"`
	Model          string   `json:"model"`
}

// Service runs the OCR -> LLM -> parse pipeline, strictly sequential.
type Service struct {
	ocr    OCRClient
	llm    LLMClient
	logger *slog.Logger
	now    func() time.Time
}

func NewService(ocr OCRClient, llm LLMClient, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{ocr: ocr, llm: llm, logger: logger, now: time.Now}
}

// ExtractFromImage runs the pipeline over receipt image bytes. The returned
// Result is valid even when err is non-nil; err is one of *OCRError,
// *LLMError, *ParseError identifying the failed stage. An OCR failure
// aborts before any LLM call.
func (s *Service) ExtractFromImage(ctx context.Context, image []byte) (Result, error) {
	start := s.now()
	res := Result{}

	ocrStart := s.now()
	text, err := s.ocr.Recognize(ctx, image)
	res.Timing.OCRMillis = s.now().Sub(ocrStart).Milliseconds()
	if err != nil {
		res.Timing.TotalMillis = s.now().Sub(start).Milliseconds()
		res.Error = err.Error()
		s.logger.Error("extract.ocr.failed", "error", err, "ocr_ms", res.Timing.OCRMillis)
		return res, &OCRError{Cause: err}
	}
	res.OCRText = text
	s.logger.Info("extract.ocr.ok", "text_len", len(text), "ocr_ms", res.Timing.OCRMillis)

	llmStart := s.now()
	raw, err := s.llm.Generate(ctx, BuildPrompt(text))
	res.Timing.LLMMillis = s.now().Sub(llmStart).Milliseconds()
	res.RawResponse = raw
	if err != nil {
		res.Timing.TotalMillis = s.now().Sub(start).Milliseconds()
		res.Error = err.Error()
		s.logger.Error("extract.llm.failed", "error", err, "llm_ms", res.Timing.LLMMillis)
		return res, &LLMError{Cause: err}
	}

	data, err := ParseResponse(raw, s.logger)
	res.Timing.TotalMillis = s.now().Sub(start).Milliseconds()
	if err != nil {
		res.Error = err.Error()
		s.logger.Error("extract.parse.failed", "error", err, "raw_len", len(raw))
		return res, &ParseError{Cause: err}
	}

	res.Success = true
	res.Data = data
	s.logger.Info("extract.ok",
		"has_amount", data.Amount != nil,
		"has_currency", data.Currency != nil,
		"has_merchant", data.Merchant != nil,
		"has_date", data.Date != nil,
		"categories", len(data.Categories),
		"ambiguous", data.Ambiguous != nil,
		"total_ms", res.Timing.TotalMillis,
	)
	return res, nil
}

// CheckHealth probes the LLM backend without running an extraction. The
// three axes are reported independently; callers must not conflate them.
func (s *Service) CheckHealth(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Host:       s.llm.Host(),
		Model:      s.llm.Model(),
		Configured: s.llm.Model() != "",
	}

	models, err := s.llm.ListModels(ctx)
	if err != nil {
		s.logger.Warn("extract.health.backend_unreachable", "host", status.Host, "error", err)
		return status
	}
	status.Available = true
	status.Models = models

	if !status.Configured {
		return status
	}
	for _, name := range models {
		if name == status.Model || trimTag(name) == status.Model {
			status.ModelAvailable = true
			break
		}
	}
	return status
}

// trimTag drops an ollama model tag suffix ("llama3.1:latest" -> "llama3.1").
func trimTag(name string) string {
	if i := strings.IndexByte(name, ':'); i >= 0 {
		return name[:i]
	}
	return name
}
