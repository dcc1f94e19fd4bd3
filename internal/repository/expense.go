package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/joseph-ayodele/expense-tracker/internal/expense"
)

// ExpenseRepository persists the aggregate. Upsert always writes a full row
// image produced by one of the aggregate's transition functions as a single
// statement, so a concurrent reader can never observe a state literal that
// disagrees with the other columns.
type ExpenseRepository interface {
	Upsert(ctx context.Context, e expense.Expense) error
	GetByID(ctx context.Context, id uuid.UUID) (expense.Expense, error)
	List(ctx context.Context, userID uuid.UUID) ([]expense.Expense, error)
	ListByState(ctx context.Context, userID uuid.UUID, st expense.State) ([]expense.Expense, error)
	Delete(ctx context.Context, id uuid.UUID) (bool, error)
}

type expenseRepository struct {
	db     DB
	logger *slog.Logger
}

func NewExpenseRepository(db DB, logger *slog.Logger) ExpenseRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &expenseRepository{db: db, logger: logger}
}

const expenseColumns = `id, user_id, state, image_key, captured_at, created_at,
	amount, currency, base_amount, base_currency, merchant, description,
	categories, expense_date, extraction, confirmed_at`

const upsertExpenseSQL = `
INSERT INTO expenses (` + expenseColumns + `, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, now())
ON CONFLICT (id) DO UPDATE SET
	user_id = EXCLUDED.user_id,
	state = EXCLUDED.state,
	image_key = EXCLUDED.image_key,
	captured_at = EXCLUDED.captured_at,
	created_at = EXCLUDED.created_at,
	amount = EXCLUDED.amount,
	currency = EXCLUDED.currency,
	base_amount = EXCLUDED.base_amount,
	base_currency = EXCLUDED.base_currency,
	merchant = EXCLUDED.merchant,
	description = EXCLUDED.description,
	categories = EXCLUDED.categories,
	expense_date = EXCLUDED.expense_date,
	extraction = EXCLUDED.extraction,
	confirmed_at = EXCLUDED.confirmed_at,
	updated_at = now()`

func (r *expenseRepository) Upsert(ctx context.Context, e expense.Expense) error {
	row, err := toRow(e)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, upsertExpenseSQL,
		row.ID, row.UserID, row.State, row.ImageKey, row.CapturedAt, row.CreatedAt,
		row.Amount, row.Currency, row.BaseAmount, row.BaseCurrency, row.Merchant,
		row.Description, row.Categories, row.ExpenseDate, row.Extraction, row.ConfirmedAt,
	)
	if err != nil {
		r.logger.Error("expense upsert failed", "expense_id", row.ID, "state", row.State, "error", err)
		return fmt.Errorf("upsert expense %s: %w", row.ID, err)
	}
	return nil
}

func (r *expenseRepository) GetByID(ctx context.Context, id uuid.UUID) (expense.Expense, error) {
	sql := `SELECT ` + expenseColumns + ` FROM expenses WHERE id = $1`
	row, err := scanRow(r.db.QueryRow(ctx, sql, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		r.logger.Error("expense lookup failed", "expense_id", id, "error", err)
		return nil, fmt.Errorf("get expense %s: %w", id, err)
	}
	return fromRow(row)
}

func (r *expenseRepository) List(ctx context.Context, userID uuid.UUID) ([]expense.Expense, error) {
	sql := `SELECT ` + expenseColumns + ` FROM expenses
		WHERE user_id = $1
		ORDER BY COALESCE(expense_date, captured_at) DESC, created_at DESC`
	return r.queryMany(ctx, sql, userID)
}

func (r *expenseRepository) ListByState(ctx context.Context, userID uuid.UUID, st expense.State) ([]expense.Expense, error) {
	sql := `SELECT ` + expenseColumns + ` FROM expenses
		WHERE user_id = $1 AND state = $2
		ORDER BY COALESCE(expense_date, captured_at) DESC, created_at DESC`
	return r.queryMany(ctx, sql, userID, string(st))
}

func (r *expenseRepository) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM expenses WHERE id = $1`, id)
	if err != nil {
		r.logger.Error("expense delete failed", "expense_id", id, "error", err)
		return false, fmt.Errorf("delete expense %s: %w", id, err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *expenseRepository) queryMany(ctx context.Context, sql string, args ...any) ([]expense.Expense, error) {
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		r.logger.Error("expense query failed", "error", err)
		return nil, fmt.Errorf("query expenses: %w", err)
	}
	defer rows.Close()

	var out []expense.Expense
	for rows.Next() {
		row, err := scanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		e, err := fromRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expenses: %w", err)
	}
	return out, nil
}

// expenseRow is the flat superset of all variant fields: one column per
// possible field, nullable where a state allows null.
type expenseRow struct {
	ID           uuid.UUID
	UserID       uuid.UUID
	State        string
	ImageKey     *string
	CapturedAt   time.Time
	CreatedAt    time.Time
	Amount       *int64
	Currency     *string
	BaseAmount   *int64
	BaseCurrency *string
	Merchant     *string
	Description  *string
	Categories   []string
	ExpenseDate  *time.Time
	Extraction   []byte
	ConfirmedAt  *time.Time
}

func scanRow(row pgx.Row) (expenseRow, error) {
	var r expenseRow
	err := row.Scan(
		&r.ID, &r.UserID, &r.State, &r.ImageKey, &r.CapturedAt, &r.CreatedAt,
		&r.Amount, &r.Currency, &r.BaseAmount, &r.BaseCurrency, &r.Merchant,
		&r.Description, &r.Categories, &r.ExpenseDate, &r.Extraction, &r.ConfirmedAt,
	)
	return r, err
}

func toRow(e expense.Expense) (expenseRow, error) {
	switch v := e.(type) {
	case expense.Pending:
		return expenseRow{
			ID:         v.ID,
			UserID:     v.UserID,
			State:      string(expense.StatePending),
			ImageKey:   v.ImageKey,
			CapturedAt: v.CapturedAt,
			CreatedAt:  v.CreatedAt,
		}, nil
	case expense.PendingReview:
		extraction, err := marshalExtraction(v.Extraction)
		if err != nil {
			return expenseRow{}, err
		}
		return expenseRow{
			ID:          v.ID,
			UserID:      v.UserID,
			State:       string(expense.StatePendingReview),
			ImageKey:    v.ImageKey,
			CapturedAt:  v.CapturedAt,
			CreatedAt:   v.CreatedAt,
			Amount:      v.Amount,
			Currency:    v.Currency,
			Merchant:    v.Merchant,
			Description: v.Description,
			Categories:  v.Categories,
			ExpenseDate: v.ExpenseDate,
			Extraction:  extraction,
		}, nil
	case expense.Confirmed:
		extraction, err := marshalExtraction(v.Extraction)
		if err != nil {
			return expenseRow{}, err
		}
		amount, baseAmount := v.Amount, v.BaseAmount
		currencyCode, baseCurrency := v.Currency, v.BaseCurrency
		merchant, expenseDate, confirmedAt := v.Merchant, v.ExpenseDate, v.ConfirmedAt
		return expenseRow{
			ID:           v.ID,
			UserID:       v.UserID,
			State:        string(expense.StateConfirmed),
			ImageKey:     v.ImageKey,
			CapturedAt:   v.CapturedAt,
			CreatedAt:    v.CreatedAt,
			Amount:       &amount,
			Currency:     &currencyCode,
			BaseAmount:   &baseAmount,
			BaseCurrency: &baseCurrency,
			Merchant:     &merchant,
			Description:  v.Description,
			Categories:   v.Categories,
			ExpenseDate:  &expenseDate,
			Extraction:   extraction,
			ConfirmedAt:  &confirmedAt,
		}, nil
	default:
		return expenseRow{}, fmt.Errorf("unknown expense variant %T", e)
	}
}

// fromRow decodes a row back into its variant. The mapping is strict: a row
// claiming confirmed with a null required column is corrupt data and a hard
// error, never a silently partial value.
func fromRow(r expenseRow) (expense.Expense, error) {
	switch expense.State(r.State) {
	case expense.StatePending:
		return expense.Pending{
			ID:         r.ID,
			UserID:     r.UserID,
			ImageKey:   r.ImageKey,
			CapturedAt: r.CapturedAt,
			CreatedAt:  r.CreatedAt,
		}, nil
	case expense.StatePendingReview:
		extraction, err := unmarshalExtraction(r.Extraction)
		if err != nil {
			return nil, fmt.Errorf("expense %s: %w", r.ID, err)
		}
		return expense.PendingReview{
			ID:          r.ID,
			UserID:      r.UserID,
			ImageKey:    r.ImageKey,
			CapturedAt:  r.CapturedAt,
			CreatedAt:   r.CreatedAt,
			Amount:      r.Amount,
			Currency:    r.Currency,
			Merchant:    r.Merchant,
			Description: r.Description,
			Categories:  r.Categories,
			ExpenseDate: r.ExpenseDate,
			Extraction:  extraction,
		}, nil
	case expense.StateConfirmed:
		if r.Amount == nil || r.Currency == nil || r.BaseAmount == nil ||
			r.BaseCurrency == nil || r.Merchant == nil || r.ExpenseDate == nil || r.ConfirmedAt == nil {
			return nil, fmt.Errorf("expense %s: confirmed row with null required column", r.ID)
		}
		extraction, err := unmarshalExtraction(r.Extraction)
		if err != nil {
			return nil, fmt.Errorf("expense %s: %w", r.ID, err)
		}
		return expense.Confirmed{
			ID:           r.ID,
			UserID:       r.UserID,
			ImageKey:     r.ImageKey,
			CapturedAt:   r.CapturedAt,
			CreatedAt:    r.CreatedAt,
			Amount:       *r.Amount,
			Currency:     *r.Currency,
			BaseAmount:   *r.BaseAmount,
			BaseCurrency: *r.BaseCurrency,
			Merchant:     *r.Merchant,
			Description:  r.Description,
			Categories:   r.Categories,
			ExpenseDate:  *r.ExpenseDate,
			Extraction:   extraction,
			ConfirmedAt:  *r.ConfirmedAt,
		}, nil
	default:
		return nil, fmt.Errorf("expense %s: unknown state %q", r.ID, r.State)
	}
}

func marshalExtraction(m *expense.ExtractionMetadata) ([]byte, error) {
	if m == nil {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode extraction metadata: %w", err)
	}
	return b, nil
}

func unmarshalExtraction(b []byte) (*expense.ExtractionMetadata, error) {
	if len(b) == 0 {
		return nil, nil
	}
	var m expense.ExtractionMetadata
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("decode extraction metadata: %w", err)
	}
	return &m, nil
}
