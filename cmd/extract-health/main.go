// extract-health is a one-shot diagnostic for the extraction backend: it
// checks whether Ollama is reachable, a model is configured, and that model
// is actually pulled. Exit code 0 means all three hold.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joseph-ayodele/expense-tracker/internal/common"
	"github.com/joseph-ayodele/expense-tracker/internal/extraction"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	slog.SetDefault(logger)

	cfg, err := common.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	ocr := extraction.NewTesseractOCR(extraction.TesseractConfig{
		Binary: cfg.OCR.TesseractBinary,
		Lang:   cfg.OCR.Lang,
	}, logger)
	llm := extraction.NewOllamaClient(extraction.OllamaConfig{
		Host:    cfg.LLM.Host,
		Model:   cfg.LLM.Model,
		Timeout: cfg.LLM.Timeout,
	}, logger)
	svc := extraction.NewService(ocr, llm, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	status := svc.CheckHealth(ctx)

	fmt.Printf("host:            %s\n", status.Host)
	fmt.Printf("model:           %s\n", orDash(status.Model))
	fmt.Printf("available:       %v\n", status.Available)
	fmt.Printf("configured:      %v\n", status.Configured)
	fmt.Printf("model available: %v\n", status.ModelAvailable)
	if len(status.Models) > 0 {
		fmt.Println("pulled models:")
		for _, m := range status.Models {
			fmt.Printf("  - %s\n", m)
		}
	}

	if !status.Available || !status.Configured || !status.ModelAvailable {
		os.Exit(1)
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
