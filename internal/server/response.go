package server

import (
	"time"

	"github.com/joseph-ayodele/expense-tracker/internal/expense"
)

// expenseResponse is the wire shape for every expense state; fields a state
// does not carry are simply omitted.
type expenseResponse struct {
	ID            string                      `json:"id"`
	UserID        string                      `json:"user_id"`
	State         string                      `json:"state"`
	ImageKey      *string                     `json:"image_key,omitempty"`
	CapturedAt    string                      `json:"captured_at"`
	CreatedAt     string                      `json:"created_at"`
	Amount        *int64                      `json:"amount,omitempty"`
	Currency      *string                     `json:"currency,omitempty"`
	BaseAmount    *int64                      `json:"base_amount,omitempty"`
	BaseCurrency  *string                     `json:"base_currency,omitempty"`
	Merchant      *string                     `json:"merchant,omitempty"`
	Description   *string                     `json:"description,omitempty"`
	Categories    []string                    `json:"categories,omitempty"`
	ExpenseDate   *string                     `json:"expense_date,omitempty"`
	ConfirmedAt   *string                     `json:"confirmed_at,omitempty"`
	MissingFields []string                    `json:"missing_fields,omitempty"`
	Extraction    *expense.ExtractionMetadata `json:"extraction,omitempty"`
}

func toExpenseResponse(e expense.Expense) expenseResponse {
	switch v := e.(type) {
	case expense.Pending:
		return expenseResponse{
			ID:         v.ID.String(),
			UserID:     v.UserID.String(),
			State:      string(expense.StatePending),
			ImageKey:   v.ImageKey,
			CapturedAt: formatTime(v.CapturedAt),
			CreatedAt:  formatTime(v.CreatedAt),
		}
	case expense.PendingReview:
		return expenseResponse{
			ID:            v.ID.String(),
			UserID:        v.UserID.String(),
			State:         string(expense.StatePendingReview),
			ImageKey:      v.ImageKey,
			CapturedAt:    formatTime(v.CapturedAt),
			CreatedAt:     formatTime(v.CreatedAt),
			Amount:        v.Amount,
			Currency:      v.Currency,
			Merchant:      v.Merchant,
			Description:   v.Description,
			Categories:    v.Categories,
			ExpenseDate:   formatDatePtr(v.ExpenseDate),
			MissingFields: v.MissingFields(),
			Extraction:    v.Extraction,
		}
	case expense.Confirmed:
		amount := v.Amount
		baseAmount := v.BaseAmount
		currencyCode := v.Currency
		baseCurrency := v.BaseCurrency
		merchant := v.Merchant
		expenseDate := v.ExpenseDate.Format("2006-01-02")
		confirmedAt := formatTime(v.ConfirmedAt)
		return expenseResponse{
			ID:           v.ID.String(),
			UserID:       v.UserID.String(),
			State:        string(expense.StateConfirmed),
			ImageKey:     v.ImageKey,
			CapturedAt:   formatTime(v.CapturedAt),
			CreatedAt:    formatTime(v.CreatedAt),
			Amount:       &amount,
			Currency:     &currencyCode,
			BaseAmount:   &baseAmount,
			BaseCurrency: &baseCurrency,
			Merchant:     &merchant,
			Description:  v.Description,
			Categories:   v.Categories,
			ExpenseDate:  &expenseDate,
			ConfirmedAt:  &confirmedAt,
			Extraction:   v.Extraction,
		}
	default:
		return expenseResponse{State: string(e.State()), ID: e.ExpenseID().String(), UserID: e.Owner().String()}
	}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func formatDatePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format("2006-01-02")
	return &s
}
