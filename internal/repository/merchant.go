package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
)

// Merchant groups expenses under a normalized name; it lives outside the
// expense state machine.
type Merchant struct {
	NormalizedName string
	DisplayName    *string
	Category       *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type MerchantRepository interface {
	Upsert(ctx context.Context, displayName string, category *string) (*Merchant, error)
	GetByName(ctx context.Context, name string) (*Merchant, error)
	List(ctx context.Context) ([]*Merchant, error)
}

var reMerchantJunk = regexp.MustCompile(`[^a-z0-9 ]+`)
var reSpaces = regexp.MustCompile(`\s+`)

// NormalizeMerchantName is the canonical key: lowercase, punctuation
// stripped, whitespace collapsed.
func NormalizeMerchantName(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = reMerchantJunk.ReplaceAllString(s, "")
	s = reSpaces.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

type merchantRepository struct {
	db     DB
	logger *slog.Logger
}

func NewMerchantRepository(db DB, logger *slog.Logger) MerchantRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &merchantRepository{db: db, logger: logger}
}

func (r *merchantRepository) Upsert(ctx context.Context, displayName string, category *string) (*Merchant, error) {
	normalized := NormalizeMerchantName(displayName)
	if normalized == "" {
		return nil, fmt.Errorf("merchant name %q normalizes to empty", displayName)
	}

	sql := `
		INSERT INTO merchants (normalized_name, display_name, category, created_at, updated_at)
		VALUES ($1, $2, $3, now(), now())
		ON CONFLICT (normalized_name) DO UPDATE SET
			display_name = EXCLUDED.display_name,
			category = COALESCE(EXCLUDED.category, merchants.category),
			updated_at = now()
		RETURNING normalized_name, display_name, category, created_at, updated_at`

	var m Merchant
	err := r.db.QueryRow(ctx, sql, normalized, displayName, category).
		Scan(&m.NormalizedName, &m.DisplayName, &m.Category, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		r.logger.Error("merchant upsert failed", "normalized_name", normalized, "error", err)
		return nil, fmt.Errorf("upsert merchant %q: %w", normalized, err)
	}
	return &m, nil
}

func (r *merchantRepository) GetByName(ctx context.Context, name string) (*Merchant, error) {
	normalized := NormalizeMerchantName(name)
	sql := `SELECT normalized_name, display_name, category, created_at, updated_at
		FROM merchants WHERE normalized_name = $1`

	var m Merchant
	err := r.db.QueryRow(ctx, sql, normalized).
		Scan(&m.NormalizedName, &m.DisplayName, &m.Category, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get merchant %q: %w", normalized, err)
	}
	return &m, nil
}

func (r *merchantRepository) List(ctx context.Context) ([]*Merchant, error) {
	sql := `SELECT normalized_name, display_name, category, created_at, updated_at
		FROM merchants ORDER BY normalized_name`

	rows, err := r.db.Query(ctx, sql)
	if err != nil {
		return nil, fmt.Errorf("list merchants: %w", err)
	}
	defer rows.Close()

	var out []*Merchant
	for rows.Next() {
		var m Merchant
		if err := rows.Scan(&m.NormalizedName, &m.DisplayName, &m.Category, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan merchant: %w", err)
		}
		out = append(out, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate merchants: %w", err)
	}
	return out, nil
}
