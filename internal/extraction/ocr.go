// Package extraction runs the receipt pipeline: OCR over the captured image,
// a deterministic LLM pass over the OCR text, then parsing/normalization of
// the model's JSON into aggregate-ready fields. Stages run strictly in
// sequence; an OCR failure never reaches the LLM.
package extraction

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
)

// OCRClient turns receipt image bytes into text.
type OCRClient interface {
	Recognize(ctx context.Context, image []byte) (string, error)
}

// Runner abstracts subprocess execution so OCR can be tested without a
// tesseract install.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var out, errb strings.Builder
	cmd.Stdout = &out
	cmd.Stderr = &errb
	err := cmd.Run()
	return []byte(out.String()), []byte(errb.String()), err
}

// TesseractConfig tunes the tesseract invocation.
type TesseractConfig struct {
	Binary      string // binary name or absolute path; if empty -> "tesseract"
	Lang        string // default "eng"
	TessdataDir string
	PSM         int    // e.g., 6 for a uniform block of text
	WorkDir     string // scratch dir for the temp image; default os.TempDir()

	// HeicConverter names the binary used to turn HEIC uploads into PNG:
	// heif-convert, magick, or sips. Empty means HEIC uploads fail OCR.
	HeicConverter string
}

// TesseractOCR shells out to tesseract over a temp file holding the image
// bytes; tesseract sniffs the format from content, so no extension games.
type TesseractOCR struct {
	cfg    TesseractConfig
	runner Runner
	logger *slog.Logger
}

func NewTesseractOCR(cfg TesseractConfig, logger *slog.Logger) *TesseractOCR {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Binary == "" {
		cfg.Binary = "tesseract"
	}
	if cfg.Lang == "" {
		cfg.Lang = "eng"
	}
	if cfg.WorkDir == "" {
		cfg.WorkDir = os.TempDir()
	}
	return &TesseractOCR{cfg: cfg, runner: execRunner{}, logger: logger}
}

func (t *TesseractOCR) Recognize(ctx context.Context, image []byte) (string, error) {
	if len(image) == 0 {
		return "", fmt.Errorf("empty image")
	}

	f, err := os.CreateTemp(t.cfg.WorkDir, "capture-*.img")
	if err != nil {
		return "", fmt.Errorf("ocr scratch file: %w", err)
	}
	path := f.Name()
	defer func() {
		if rerr := os.Remove(path); rerr != nil {
			t.logger.Warn("ocr.scratch_cleanup_failed", "path", path, "error", rerr)
		}
	}()
	if _, err := f.Write(image); err != nil {
		_ = f.Close()
		return "", fmt.Errorf("ocr scratch write: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("ocr scratch close: %w", err)
	}

	if isHEIC(image) {
		converted, err := t.convertHEIC(ctx, path)
		if err != nil {
			return "", fmt.Errorf("heic convert: %w", err)
		}
		defer func() {
			if rerr := os.Remove(converted); rerr != nil {
				t.logger.Warn("ocr.scratch_cleanup_failed", "path", converted, "error", rerr)
			}
		}()
		path = converted
	}

	args := []string{path, "stdout", "-l", t.cfg.Lang}
	if t.cfg.PSM > 0 {
		args = append(args, "--psm", fmt.Sprintf("%d", t.cfg.PSM))
	}
	if t.cfg.TessdataDir != "" {
		args = append(args, "--tessdata-dir", t.cfg.TessdataDir)
	}

	out, errb, err := t.runner.Run(ctx, t.cfg.Binary, args...)
	if err != nil {
		return "", fmt.Errorf("tesseract %s: %w: %s", filepath.Base(path), err, strings.TrimSpace(string(errb)))
	}
	return NormalizeText(string(out)), nil
}

var (
	reBoxNoise   = regexp.MustCompile(`[|_]{3,}`)
	reBlankLines = regexp.MustCompile(`\n{3,}`)
)

// NormalizeText cleans obvious OCR noise: CRLFs, trailing spaces, runs of
// box-drawing junk, and stacked blank lines.
func NormalizeText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = reBoxNoise.ReplaceAllString(s, "")
	lines := strings.Split(s, "\n")
	for i, ln := range lines {
		lines[i] = strings.TrimRight(ln, " \t")
	}
	s = strings.Join(lines, "\n")
	s = reBlankLines.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
