// Package expense holds the expense aggregate: a discriminated union over the
// lifecycle states pending, pending-review and confirmed, plus the pure
// transition functions between them. A Confirmed value cannot carry a missing
// required field at the type level; callers never see a half-populated
// "confirmed" expense. All transitions construct new values, nothing here
// mutates in place and nothing here performs I/O.
package expense

import (
	"time"

	"github.com/google/uuid"
)

// Expense is the closed union of the three lifecycle variants.
// Only Pending, PendingReview and Confirmed implement it.
type Expense interface {
	State() State
	ExpenseID() uuid.UUID
	Owner() uuid.UUID

	sealed()
}

// ExtractionMetadata records what the OCR/LLM pipeline produced for an
// expense, kept for display during review. Amounts of time are milliseconds.
type ExtractionMetadata struct {
	OCRText     string `json:"ocr_text,omitempty"`
	RawResponse string `json:"raw_response,omitempty"`
	Error       string `json:"error,omitempty"`
	OCRMillis   int64  `json:"ocr_ms"`
	LLMMillis   int64  `json:"llm_ms"`
	TotalMillis int64  `json:"total_ms"`
}

// Pending is a freshly captured expense: just identity plus the stored image.
type Pending struct {
	ID         uuid.UUID
	UserID     uuid.UUID
	ImageKey   *string
	CapturedAt time.Time
	CreatedAt  time.Time
}

func (Pending) State() State          { return StatePending }
func (p Pending) ExpenseID() uuid.UUID { return p.ID }
func (p Pending) Owner() uuid.UUID     { return p.UserID }
func (Pending) sealed()                {}

// PendingReview is an expense after extraction: every data field is
// individually nullable because partial extraction is expected and valid.
// Amounts are int64 minor units of Currency.
type PendingReview struct {
	ID         uuid.UUID
	UserID     uuid.UUID
	ImageKey   *string
	CapturedAt time.Time
	CreatedAt  time.Time

	Amount      *int64
	Currency    *string
	Merchant    *string
	Description *string
	Categories  []string
	ExpenseDate *time.Time
	Extraction  *ExtractionMetadata
}

func (PendingReview) State() State           { return StatePendingReview }
func (r PendingReview) ExpenseID() uuid.UUID { return r.ID }
func (r PendingReview) Owner() uuid.UUID     { return r.UserID }
func (PendingReview) sealed()                {}

// Confirmed is a fully resolved expense. Required fields are plain values,
// so a Confirmed with a null amount or merchant is unrepresentable.
// BaseAmount is Amount converted into BaseCurrency minor units.
type Confirmed struct {
	ID         uuid.UUID
	UserID     uuid.UUID
	ImageKey   *string
	CapturedAt time.Time
	CreatedAt  time.Time

	Amount       int64
	Currency     string
	BaseAmount   int64
	BaseCurrency string
	Merchant     string
	Description  *string
	Categories   []string
	ExpenseDate  time.Time
	Extraction   *ExtractionMetadata
	ConfirmedAt  time.Time
}

func (Confirmed) State() State           { return StateConfirmed }
func (c Confirmed) ExpenseID() uuid.UUID { return c.ID }
func (c Confirmed) Owner() uuid.UUID     { return c.UserID }
func (Confirmed) sealed()                {}
