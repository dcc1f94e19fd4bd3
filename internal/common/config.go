package common

import (
	"time"

	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config holds all application configuration
type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	OCR      OCRConfig
	LLM      LLMConfig
	Currency CurrencyConfig
	Storage  StorageConfig
	Session  SessionConfig
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	DSN              string
	MaxConns         int32
	MinConns         int32
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration
	StatementTimeout time.Duration
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Addr string
}

// OCRConfig holds OCR-related configuration
type OCRConfig struct {
	TesseractBinary string
	Lang            string
	TessdataDir     string
	PSM             int
	HeicConverter   string
}

// LLMConfig holds the Ollama backend configuration
type LLMConfig struct {
	Host    string
	Model   string
	Timeout time.Duration
}

// CurrencyConfig holds exchange-rate provider configuration
type CurrencyConfig struct {
	RateAPIURL   string
	CacheTTL     time.Duration
	FetchTimeout time.Duration
}

// StorageConfig holds blob storage configuration. An empty Bucket selects
// the in-memory store (local runs).
type StorageConfig struct {
	Endpoint        string
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
}

// SessionConfig holds the iOS shortcut session bridge configuration
type SessionConfig struct {
	TTL time.Duration
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() (*Config, error) {
	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", nil), nil); err != nil {
		return nil, WrapError(err, "load environment")
	}

	return &Config{
		Database: DatabaseConfig{
			DSN:              k.String("DB_URL"),
			MaxConns:         int32(getInt(k, "DB_MAX_CONNS", 20)),
			MinConns:         int32(getInt(k, "DB_MIN_CONNS", 5)),
			MaxConnLifetime:  getDuration(k, "DB_MAX_CONN_LIFETIME", 30*time.Minute),
			MaxConnIdleTime:  getDuration(k, "DB_MAX_CONN_IDLE_TIME", 5*time.Minute),
			DialTimeout:      getDuration(k, "DB_DIAL_TIMEOUT", 3*time.Second),
			StatementTimeout: getDuration(k, "DB_STATEMENT_TIMEOUT", 0),
		},
		Server: ServerConfig{
			Addr: getString(k, "HTTP_ADDR", ":8080"),
		},
		OCR: OCRConfig{
			TesseractBinary: getString(k, "TESSERACT_BIN", "tesseract"),
			Lang:            getString(k, "TESSERACT_LANG", "eng"),
			TessdataDir:     k.String("TESSDATA_PREFIX"),
			PSM:             getInt(k, "TESSERACT_PSM", 6),
			HeicConverter:   k.String("HEIC_CONVERTER"),
		},
		LLM: LLMConfig{
			Host:    getString(k, "OLLAMA_HOST", "http://localhost:11434"),
			Model:   k.String("OLLAMA_MODEL"),
			Timeout: getDuration(k, "OLLAMA_TIMEOUT", 120*time.Second),
		},
		Currency: CurrencyConfig{
			RateAPIURL:   getString(k, "RATE_API_URL", "https://api.frankfurter.dev/v1"),
			CacheTTL:     getDuration(k, "RATE_CACHE_TTL", 6*time.Hour),
			FetchTimeout: getDuration(k, "RATE_FETCH_TIMEOUT", 5*time.Second),
		},
		Storage: StorageConfig{
			Endpoint:        k.String("STORAGE_ENDPOINT"),
			Region:          k.String("STORAGE_REGION"),
			Bucket:          k.String("STORAGE_BUCKET"),
			AccessKeyID:     k.String("STORAGE_ACCESS_KEY_ID"),
			SecretAccessKey: k.String("STORAGE_SECRET_ACCESS_KEY"),
		},
		Session: SessionConfig{
			TTL: getDuration(k, "SHORTCUT_SESSION_TTL", 10*time.Minute),
		},
	}, nil
}

// ValidateConfig validates the loaded configuration
func (c *Config) Validate() error {
	if c.Database.DSN == "" {
		return NewAppError("CONFIG_ERROR", "DB_URL is required", ErrInvalidInput)
	}
	if c.Server.Addr == "" {
		return NewAppError("CONFIG_ERROR", "HTTP_ADDR is required", ErrInvalidInput)
	}
	if c.Currency.RateAPIURL == "" {
		return NewAppError("CONFIG_ERROR", "RATE_API_URL is required", ErrInvalidInput)
	}
	return nil
}

func getString(k *koanf.Koanf, key, defaultValue string) string {
	if v := k.String(key); v != "" {
		return v
	}
	return defaultValue
}

func getInt(k *koanf.Koanf, key string, defaultValue int) int {
	if !k.Exists(key) {
		return defaultValue
	}
	return k.Int(key)
}

func getDuration(k *koanf.Koanf, key string, defaultValue time.Duration) time.Duration {
	if !k.Exists(key) {
		return defaultValue
	}
	return k.Duration(key)
}
