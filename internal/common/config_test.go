package common

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigReadsEnvironment(t *testing.T) {
	t.Setenv("DB_URL", "postgres://localhost/expenses")
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("DB_MAX_CONNS", "7")
	t.Setenv("OLLAMA_TIMEOUT", "30s")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "postgres://localhost/expenses", cfg.Database.DSN)
	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, int32(7), cfg.Database.MaxConns)
	assert.Equal(t, 30*time.Second, cfg.LLM.Timeout)
}

func TestLoadConfigExplicitZeroInt(t *testing.T) {
	t.Setenv("TESSERACT_PSM", "0")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 0, cfg.OCR.PSM, "a set value of 0 is a value, not an absence")
}

func TestLoadConfigIntDefaultWhenUnset(t *testing.T) {
	// t.Setenv registers the restore, Unsetenv makes the key truly absent
	t.Setenv("TESSERACT_PSM", "")
	require.NoError(t, os.Unsetenv("TESSERACT_PSM"))

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 6, cfg.OCR.PSM)
}

func TestValidateRejectsMissingDSN(t *testing.T) {
	cfg := &Config{
		Server:   ServerConfig{Addr: ":8080"},
		Currency: CurrencyConfig{RateAPIURL: "https://api.frankfurter.dev/v1"},
	}

	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidInput)
}
