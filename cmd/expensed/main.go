// expensed is the expense tracker daemon: HTTP API, capture pipeline,
// currency conversion and exports in one process.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joseph-ayodele/expense-tracker/internal/common"
	"github.com/joseph-ayodele/expense-tracker/internal/currency"
	"github.com/joseph-ayodele/expense-tracker/internal/export"
	"github.com/joseph-ayodele/expense-tracker/internal/extraction"
	"github.com/joseph-ayodele/expense-tracker/internal/repository"
	"github.com/joseph-ayodele/expense-tracker/internal/server"
	"github.com/joseph-ayodele/expense-tracker/internal/service"
	"github.com/joseph-ayodele/expense-tracker/internal/session"
	"github.com/joseph-ayodele/expense-tracker/internal/storage"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := common.LoadConfig()
	if err != nil {
		logger.Error("config load failed", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("config invalid", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := repository.Open(ctx, repository.Config{
		DSN:              cfg.Database.DSN,
		MaxConns:         cfg.Database.MaxConns,
		MinConns:         cfg.Database.MinConns,
		MaxConnLifetime:  cfg.Database.MaxConnLifetime,
		MaxConnIdleTime:  cfg.Database.MaxConnIdleTime,
		DialTimeout:      cfg.Database.DialTimeout,
		StatementTimeout: cfg.Database.StatementTimeout,
	}, logger)
	if err != nil {
		logger.Error("database open failed", "error", err)
		os.Exit(1)
	}
	defer repository.Close(pool, logger)

	if err := repository.HealthCheck(ctx, pool, cfg.Database.DialTimeout, logger); err != nil {
		logger.Error("database health check failed", "error", err)
		os.Exit(1)
	}

	blobs, err := buildBlobStore(cfg, logger)
	if err != nil {
		logger.Error("blob store init failed", "error", err)
		os.Exit(1)
	}

	expenses := repository.NewExpenseRepository(pool, logger)
	merchants := repository.NewMerchantRepository(pool, logger)
	settings := repository.NewSettingsRepository(pool, logger)

	ocr := extraction.NewTesseractOCR(extraction.TesseractConfig{
		Binary:        cfg.OCR.TesseractBinary,
		Lang:          cfg.OCR.Lang,
		TessdataDir:   cfg.OCR.TessdataDir,
		PSM:           cfg.OCR.PSM,
		HeicConverter: cfg.OCR.HeicConverter,
	}, logger)
	llm := extraction.NewOllamaClient(extraction.OllamaConfig{
		Host:    cfg.LLM.Host,
		Model:   cfg.LLM.Model,
		Timeout: cfg.LLM.Timeout,
	}, logger)
	extractor := extraction.NewService(ocr, llm, logger)

	converter := currency.NewConverter(currency.Config{
		BaseURL:      cfg.Currency.RateAPIURL,
		CacheTTL:     cfg.Currency.CacheTTL,
		FetchTimeout: cfg.Currency.FetchTimeout,
	}, logger)

	svc := service.NewExpenseService(blobs, expenses, merchants, settings, extractor, converter, logger)
	exporter := export.NewService(expenses, logger)
	sessions := session.NewStore(cfg.Session.TTL, logger)

	go sessions.Run(ctx.Done(), 0)

	srv := server.New(cfg.Server.Addr, svc, exporter, sessions, settings, logger)
	if err := srv.Run(ctx); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

func buildBlobStore(cfg *common.Config, logger *slog.Logger) (storage.BlobStore, error) {
	if cfg.Storage.Bucket == "" {
		logger.Warn("no storage bucket configured, using in-memory blob store")
		return storage.NewMemoryStore(), nil
	}
	return storage.NewS3Store(storage.S3Config{
		Endpoint:        cfg.Storage.Endpoint,
		Region:          cfg.Storage.Region,
		Bucket:          cfg.Storage.Bucket,
		AccessKeyID:     cfg.Storage.AccessKeyID,
		SecretAccessKey: cfg.Storage.SecretAccessKey,
	})
}
