// Package service wires the capture flow together: blob storage, the
// expense aggregate, extraction, currency conversion and persistence. It is
// the single place that decides which failures are absorbed (extraction)
// and which bubble (storage, conversion, confirm validation).
package service

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/expense-tracker/internal/expense"
	"github.com/joseph-ayodele/expense-tracker/internal/extraction"
	"github.com/joseph-ayodele/expense-tracker/internal/repository"
	"github.com/joseph-ayodele/expense-tracker/internal/storage"
)

// Extractor is the extraction pipeline as the orchestrator sees it.
type Extractor interface {
	ExtractFromImage(ctx context.Context, image []byte) (extraction.Result, error)
	CheckHealth(ctx context.Context) extraction.HealthStatus
}

// Converter is the currency service as the orchestrator sees it.
type Converter interface {
	Convert(ctx context.Context, amount int64, from, to string) (int64, error)
	ConvertOrFallback(ctx context.Context, amount int64, from, to string) int64
}

// CaptureResult is what a capture call always returns when it returns at
// all: the expense in its post-capture state, the extraction outcome
// (success or not), and whether the user still has fields to fill in.
type CaptureResult struct {
	Expense     expense.Expense
	Extraction  extraction.Result
	NeedsReview bool
}

// ExpenseService is the capture orchestrator.
type ExpenseService struct {
	blobs     storage.BlobStore
	expenses  repository.ExpenseRepository
	merchants repository.MerchantRepository
	settings  repository.SettingsRepository
	extractor Extractor
	converter Converter
	logger    *slog.Logger
	now       func() time.Time
}

func NewExpenseService(
	blobs storage.BlobStore,
	expenses repository.ExpenseRepository,
	merchants repository.MerchantRepository,
	settings repository.SettingsRepository,
	extractor Extractor,
	converter Converter,
	logger *slog.Logger,
) *ExpenseService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExpenseService{
		blobs:     blobs,
		expenses:  expenses,
		merchants: merchants,
		settings:  settings,
		extractor: extractor,
		converter: converter,
		logger:    logger,
		now:       time.Now,
	}
}

// Capture runs the full flow for one receipt image. The blob write comes
// first and must succeed before any row exists: an orphaned blob after a
// failed insert is acceptable garbage, an expense row pointing at a missing
// blob is not. Extraction failures are absorbed into the result; blob, DB
// and strict-conversion failures abort the call.
func (s *ExpenseService) Capture(ctx context.Context, userID uuid.UUID, image []byte, fileName, contentType string) (*CaptureResult, error) {
	key := imageKey(userID, fileName)
	if err := s.blobs.Put(ctx, key, image, contentType); err != nil {
		s.logger.Error("capture.blob_write_failed", "user_id", userID, "key", key, "error", err)
		return nil, err
	}

	pending := expense.NewPending(userID, &key, s.now())
	if err := s.expenses.Upsert(ctx, pending); err != nil {
		return nil, err
	}
	s.logger.Info("capture.pending_created", "expense_id", pending.ID, "user_id", userID, "key", key)

	res, err := s.extractor.ExtractFromImage(ctx, image)
	if err != nil {
		// Extraction failing is data, not an error: the user still gets a
		// reviewable expense with the failure attached.
		s.logger.Warn("capture.extraction_failed", "expense_id", pending.ID, "error", err)
		res.Success = false
		if res.Error == "" {
			res.Error = err.Error()
		}
	}

	review := expense.ApplyExtraction(pending, extractedData(res), extractionMeta(res))
	if err := s.expenses.Upsert(ctx, review); err != nil {
		return nil, err
	}
	s.recordMerchant(ctx, review.Merchant)

	if !review.CanConfirm() {
		s.logger.Info("capture.needs_review",
			"expense_id", review.ID, "missing", review.MissingFields(), "extraction_ok", res.Success)
		return &CaptureResult{Expense: review, Extraction: res, NeedsReview: true}, nil
	}

	confirmed, err := s.confirmReviewed(ctx, review, expense.Changes{})
	if err != nil {
		// Auto-confirming with an unknown base amount would be worse than
		// asking for review, so a strict conversion failure fails capture.
		return nil, err
	}
	s.logger.Info("capture.auto_confirmed",
		"expense_id", confirmed.ID, "base_amount", confirmed.BaseAmount, "base_currency", confirmed.BaseCurrency)
	return &CaptureResult{Expense: *confirmed, Extraction: res, NeedsReview: false}, nil
}

// ConfirmExisting finalizes a reviewed expense with user-supplied overrides
// (overrides win over stored values).
func (s *ExpenseService) ConfirmExisting(ctx context.Context, id uuid.UUID, overrides expense.Changes) (*expense.Confirmed, error) {
	e, err := s.expenses.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, &expense.NotFoundError{ID: id}
	}

	review, ok := e.(expense.PendingReview)
	if !ok {
		if e.State() == expense.StateConfirmed {
			return nil, &expense.AlreadyConfirmedError{ID: id}
		}
		return nil, &expense.NotPendingReviewError{ID: id, CurrentState: e.State()}
	}

	confirmed, err := s.confirmReviewed(ctx, review, overrides)
	if err != nil {
		return nil, err
	}
	return confirmed, nil
}

// confirmReviewed merges overrides, validates completeness, converts into
// the base currency (strict mode) and persists the confirmed row.
func (s *ExpenseService) confirmReviewed(ctx context.Context, review expense.PendingReview, overrides expense.Changes) (*expense.Confirmed, error) {
	merged := expense.Update(review, overrides)
	if missing := merged.MissingFields(); len(missing) > 0 {
		return nil, &expense.MissingRequiredFieldsError{ID: merged.ID, Fields: missing}
	}

	baseCurrency, err := s.settings.BaseCurrency(ctx)
	if err != nil {
		return nil, err
	}
	baseAmount, err := s.converter.Convert(ctx, *merged.Amount, *merged.Currency, baseCurrency)
	if err != nil {
		return nil, err
	}

	confirmed := expense.Confirm(merged, expense.ConfirmInput{
		Amount:       *merged.Amount,
		Currency:     *merged.Currency,
		BaseAmount:   baseAmount,
		BaseCurrency: baseCurrency,
		Merchant:     *merged.Merchant,
		ExpenseDate:  *merged.ExpenseDate,
	}, s.now())
	if err := s.expenses.Upsert(ctx, confirmed); err != nil {
		return nil, err
	}
	s.recordMerchant(ctx, &confirmed.Merchant)
	return &confirmed, nil
}

// Update edits an expense in its current state. A pending-review expense
// takes partial field updates; a confirmed expense stays confirmed and gets
// its base amount recomputed only when amount or currency actually changed.
func (s *ExpenseService) Update(ctx context.Context, id uuid.UUID, changes expense.Changes) (expense.Expense, error) {
	e, err := s.expenses.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, &expense.NotFoundError{ID: id}
	}

	switch v := e.(type) {
	case expense.PendingReview:
		updated := expense.Update(v, changes)
		if err := s.expenses.Upsert(ctx, updated); err != nil {
			return nil, err
		}
		return updated, nil
	case expense.Confirmed:
		updated, moneyChanged := expense.ApplyConfirmedChanges(v, changes)
		if moneyChanged {
			baseAmount, err := s.converter.Convert(ctx, updated.Amount, updated.Currency, updated.BaseCurrency)
			if err != nil {
				return nil, err
			}
			updated = updated.WithBase(baseAmount, updated.BaseCurrency)
		}
		if err := s.expenses.Upsert(ctx, updated); err != nil {
			return nil, err
		}
		s.recordMerchant(ctx, &updated.Merchant)
		return updated, nil
	default:
		return nil, &expense.NotPendingReviewError{ID: id, CurrentState: e.State()}
	}
}

func (s *ExpenseService) GetByID(ctx context.Context, id uuid.UUID) (expense.Expense, error) {
	return s.expenses.GetByID(ctx, id)
}

func (s *ExpenseService) List(ctx context.Context, userID uuid.UUID) ([]expense.Expense, error) {
	return s.expenses.List(ctx, userID)
}

// ListByState narrows the listing to one lifecycle state.
func (s *ExpenseService) ListByState(ctx context.Context, userID uuid.UUID, st expense.State) ([]expense.Expense, error) {
	return s.expenses.ListByState(ctx, userID, st)
}

// Delete removes the row outright (no soft delete) and then the blob; a
// dangling blob after a failed blob delete is acceptable garbage.
func (s *ExpenseService) Delete(ctx context.Context, id uuid.UUID) error {
	e, err := s.expenses.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if e == nil {
		return &expense.NotFoundError{ID: id}
	}

	deleted, err := s.expenses.Delete(ctx, id)
	if err != nil {
		return err
	}
	if !deleted {
		return &expense.NotFoundError{ID: id}
	}

	if key := imageKeyOf(e); key != nil {
		if err := s.blobs.Delete(ctx, *key); err != nil {
			s.logger.Warn("delete.blob_cleanup_failed", "expense_id", id, "key", *key, "error", err)
		}
	}
	return nil
}

func (s *ExpenseService) CheckExtractionHealth(ctx context.Context) extraction.HealthStatus {
	return s.extractor.CheckHealth(ctx)
}

// recordMerchant keeps the merchant registry warm; failures are logged,
// never surfaced, since the registry is a convenience index.
func (s *ExpenseService) recordMerchant(ctx context.Context, name *string) {
	if name == nil || *name == "" {
		return
	}
	if _, err := s.merchants.Upsert(ctx, *name, nil); err != nil {
		s.logger.Warn("merchant.record_failed", "merchant", *name, "error", err)
	}
}

func extractedData(res extraction.Result) expense.ExtractedData {
	if res.Data == nil {
		return expense.ExtractedData{}
	}
	return expense.ExtractedData{
		Amount:      res.Data.Amount,
		Currency:    res.Data.Currency,
		Merchant:    res.Data.Merchant,
		Categories:  res.Data.Categories,
		ExpenseDate: res.Data.Date,
	}
}

func extractionMeta(res extraction.Result) *expense.ExtractionMetadata {
	return &expense.ExtractionMetadata{
		OCRText:     res.OCRText,
		RawResponse: res.RawResponse,
		Error:       res.Error,
		OCRMillis:   res.Timing.OCRMillis,
		LLMMillis:   res.Timing.LLMMillis,
		TotalMillis: res.Timing.TotalMillis,
	}
}

func imageKey(userID uuid.UUID, fileName string) string {
	ext := filepath.Ext(fileName)
	return fmt.Sprintf("receipts/%s/%s%s", userID, uuid.New(), ext)
}

func imageKeyOf(e expense.Expense) *string {
	switch v := e.(type) {
	case expense.Pending:
		return v.ImageKey
	case expense.PendingReview:
		return v.ImageKey
	case expense.Confirmed:
		return v.ImageKey
	}
	return nil
}
