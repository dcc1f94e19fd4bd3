package extraction

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// heicBrands are the ISO-BMFF brand codes tesseract cannot read directly.
var heicBrands = [][]byte{
	[]byte("ftypheic"),
	[]byte("ftypheix"),
	[]byte("ftypheif"),
	[]byte("ftypmif1"),
	[]byte("ftypmsf1"),
}

// isHEIC sniffs the container brand at offset 4.
func isHEIC(image []byte) bool {
	if len(image) < 12 {
		return false
	}
	head := image[4:12]
	for _, b := range heicBrands {
		if bytes.Equal(head, b) {
			return true
		}
	}
	return false
}

// convertHEIC converts a HEIC file to PNG next to the input path using the
// configured converter binary. Supported converters take (in, out) in
// heif-convert/magick argument order; sips has its own flags.
func (t *TesseractOCR) convertHEIC(ctx context.Context, in string) (string, error) {
	if t.cfg.HeicConverter == "" {
		return "", fmt.Errorf("heic upload but no converter configured")
	}
	out := filepath.Join(filepath.Dir(in), filepath.Base(in)+".png")

	var args []string
	switch t.cfg.HeicConverter {
	case "heif-convert", "magick":
		args = []string{in, out}
	case "sips":
		args = []string{"-s", "format", "png", in, "--out", out}
	default:
		return "", fmt.Errorf("unsupported heic converter %q", t.cfg.HeicConverter)
	}

	if _, errb, err := t.runner.Run(ctx, t.cfg.HeicConverter, args...); err != nil {
		return "", fmt.Errorf("%s: %w: %s", t.cfg.HeicConverter, err, bytes.TrimSpace(errb))
	}
	if _, err := os.Stat(out); err != nil {
		return "", fmt.Errorf("heic conversion produced no output: %w", err)
	}
	return out, nil
}
