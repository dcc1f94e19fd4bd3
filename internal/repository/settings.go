package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"
)

// DefaultBaseCurrency applies when no settings row exists yet.
const DefaultBaseCurrency = "USD"

// SettingsRepository is the singleton app settings row.
type SettingsRepository interface {
	BaseCurrency(ctx context.Context) (string, error)
	SetBaseCurrency(ctx context.Context, code string) error
}

type settingsRepository struct {
	db     DB
	logger *slog.Logger
}

func NewSettingsRepository(db DB, logger *slog.Logger) SettingsRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &settingsRepository{db: db, logger: logger}
}

func (r *settingsRepository) BaseCurrency(ctx context.Context) (string, error) {
	var code string
	err := r.db.QueryRow(ctx, `SELECT base_currency FROM settings WHERE id = 1`).Scan(&code)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return DefaultBaseCurrency, nil
		}
		return "", fmt.Errorf("get base currency: %w", err)
	}
	return code, nil
}

func (r *settingsRepository) SetBaseCurrency(ctx context.Context, code string) error {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) != 3 {
		return fmt.Errorf("invalid currency code %q", code)
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO settings (id, base_currency, updated_at)
		VALUES (1, $1, now())
		ON CONFLICT (id) DO UPDATE SET base_currency = EXCLUDED.base_currency, updated_at = now()`,
		code)
	if err != nil {
		r.logger.Error("set base currency failed", "code", code, "error", err)
		return fmt.Errorf("set base currency: %w", err)
	}
	return nil
}
