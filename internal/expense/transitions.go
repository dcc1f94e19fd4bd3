package expense

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// ExtractedData is the already-normalized output of the extraction pipeline:
// integer minor-unit amount, uppercase ISO 4217 currency, ISO date. The
// aggregate never sees raw OCR noise; separator stripping and symbol mapping
// happen upstream.
type ExtractedData struct {
	Amount      *int64
	Currency    *string
	Merchant    *string
	Categories  []string
	ExpenseDate *time.Time
}

// ConfirmInput carries everything a Confirmed requires. Description and
// Categories are optional and default to the reviewed values when nil.
type ConfirmInput struct {
	Amount       int64
	Currency     string
	BaseAmount   int64
	BaseCurrency string
	Merchant     string
	ExpenseDate  time.Time
	Description  *string
	Categories   []string
}

// Changes is a partial update against a PendingReview. Nil means "leave as is".
type Changes struct {
	Amount      *int64
	Currency    *string
	Merchant    *string
	Description *string
	Categories  []string
	ExpenseDate *time.Time
}

// NewPending mints a pending expense for a captured image. The image key is
// nil when capture happened without a stored blob.
func NewPending(userID uuid.UUID, imageKey *string, now time.Time) Pending {
	return Pending{
		ID:         uuid.New(),
		UserID:     userID,
		ImageKey:   imageKey,
		CapturedAt: now,
		CreatedAt:  now,
	}
}

// ApplyExtraction moves a pending expense into review. Identity fields carry
// over untouched; data fields come from the extraction output, each
// individually nullable. A failed extraction still yields a valid
// pending-review value: all-nil fields plus the error recorded in meta.
func ApplyExtraction(p Pending, data ExtractedData, meta *ExtractionMetadata) PendingReview {
	return PendingReview{
		ID:         p.ID,
		UserID:     p.UserID,
		ImageKey:   p.ImageKey,
		CapturedAt: p.CapturedAt,
		CreatedAt:  p.CreatedAt,

		Amount:      data.Amount,
		Currency:    data.Currency,
		Merchant:    data.Merchant,
		Categories:  slices.Clone(data.Categories),
		ExpenseDate: data.ExpenseDate,
		Extraction:  meta,
	}
}

// MissingFields reports exactly the required fields still null on r, in the
// order amount, currency, merchant, expense_date.
func (r PendingReview) MissingFields() []string {
	var missing []string
	if r.Amount == nil {
		missing = append(missing, FieldAmount)
	}
	if r.Currency == nil {
		missing = append(missing, FieldCurrency)
	}
	if r.Merchant == nil {
		missing = append(missing, FieldMerchant)
	}
	if r.ExpenseDate == nil {
		missing = append(missing, FieldExpenseDate)
	}
	return missing
}

// CanConfirm is true iff no required field is missing.
func (r PendingReview) CanConfirm() bool {
	return len(r.MissingFields()) == 0
}

// Update applies a partial edit while in review. Only non-nil changes take
// effect; a nil Categories leaves the existing list.
func Update(r PendingReview, ch Changes) PendingReview {
	out := r
	out.Categories = slices.Clone(r.Categories)
	if ch.Amount != nil {
		out.Amount = ch.Amount
	}
	if ch.Currency != nil {
		out.Currency = ch.Currency
	}
	if ch.Merchant != nil {
		out.Merchant = ch.Merchant
	}
	if ch.Description != nil {
		out.Description = ch.Description
	}
	if ch.Categories != nil {
		out.Categories = slices.Clone(ch.Categories)
	}
	if ch.ExpenseDate != nil {
		out.ExpenseDate = ch.ExpenseDate
	}
	return out
}

// Confirm finalizes a reviewed expense. The aggregate trusts its caller here:
// the orchestrator is responsible for resolving MissingFields and computing
// the base amount before calling Confirm.
func Confirm(r PendingReview, in ConfirmInput, now time.Time) Confirmed {
	desc := r.Description
	if in.Description != nil {
		desc = in.Description
	}
	cats := r.Categories
	if in.Categories != nil {
		cats = in.Categories
	}
	return Confirmed{
		ID:         r.ID,
		UserID:     r.UserID,
		ImageKey:   r.ImageKey,
		CapturedAt: r.CapturedAt,
		CreatedAt:  r.CreatedAt,

		Amount:       in.Amount,
		Currency:     in.Currency,
		BaseAmount:   in.BaseAmount,
		BaseCurrency: in.BaseCurrency,
		Merchant:     in.Merchant,
		Description:  desc,
		Categories:   slices.Clone(cats),
		ExpenseDate:  in.ExpenseDate,
		Extraction:   r.Extraction,
		ConfirmedAt:  now,
	}
}

// ApplyConfirmedChanges edits a confirmed expense in place of a state change
// (confirmed -> confirmed). The second return reports whether amount or
// currency actually changed, which is what obliges the caller to recompute
// the base amount via WithBase.
func ApplyConfirmedChanges(c Confirmed, ch Changes) (Confirmed, bool) {
	out := c
	out.Categories = slices.Clone(c.Categories)
	moneyChanged := false
	if ch.Amount != nil && *ch.Amount != c.Amount {
		out.Amount = *ch.Amount
		moneyChanged = true
	}
	if ch.Currency != nil && *ch.Currency != c.Currency {
		out.Currency = *ch.Currency
		moneyChanged = true
	}
	if ch.Merchant != nil {
		out.Merchant = *ch.Merchant
	}
	if ch.Description != nil {
		out.Description = ch.Description
	}
	if ch.Categories != nil {
		out.Categories = slices.Clone(ch.Categories)
	}
	if ch.ExpenseDate != nil {
		out.ExpenseDate = *ch.ExpenseDate
	}
	return out, moneyChanged
}

// WithBase returns c with a freshly computed base amount.
func (c Confirmed) WithBase(baseAmount int64, baseCurrency string) Confirmed {
	out := c
	out.BaseAmount = baseAmount
	out.BaseCurrency = baseCurrency
	return out
}

// DisplayAmount is the amount a list view shows: the base amount once
// confirmed, the raw extracted amount while under review (no conversion has
// happened yet), nothing while pending.
func DisplayAmount(e Expense) *int64 {
	switch v := e.(type) {
	case Confirmed:
		a := v.BaseAmount
		return &a
	case PendingReview:
		if v.Amount == nil {
			return nil
		}
		a := *v.Amount
		return &a
	default:
		return nil
	}
}

// DisplayDate is the expense date when known, otherwise the capture time.
func DisplayDate(e Expense) time.Time {
	switch v := e.(type) {
	case Confirmed:
		return v.ExpenseDate
	case PendingReview:
		if v.ExpenseDate != nil {
			return *v.ExpenseDate
		}
		return v.CapturedAt
	case Pending:
		return v.CapturedAt
	default:
		return time.Time{}
	}
}
