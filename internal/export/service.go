package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/expense-tracker/internal/currency"
	"github.com/joseph-ayodele/expense-tracker/internal/expense"
	"github.com/joseph-ayodele/expense-tracker/internal/repository"
)

// Service is a tiny façade over the expense repository that renders
// confirmed expenses as XLSX or CSV bytes. Only confirmed expenses are
// exported; anything still pending has no settled amounts to report.
type Service struct {
	expenses repository.ExpenseRepository
	logger   *slog.Logger
}

func NewService(expenses repository.ExpenseRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{expenses: expenses, logger: logger}
}

var exportHeaders = []string{
	"Date",
	"Merchant",
	"Amount",
	"Currency",
	"Base Amount",
	"Base Currency",
	"Categories",
	"Description",
}

// ExportXLSX returns an XLSX workbook for the given user and date window.
// If only from is provided -> from..today (inclusive).
// If only to is provided   -> beginning..to (inclusive).
// If neither is provided   -> all confirmed expenses for the user.
func (s *Service) ExportXLSX(ctx context.Context, userID uuid.UUID, from, to *time.Time) ([]byte, error) {
	start := time.Now()

	recs, err := s.confirmedInWindow(ctx, userID, from, to)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	const sheet = "Expenses"
	if index, _ := f.GetSheetIndex(sheet); index == -1 {
		if _, err := f.NewSheet(sheet); err != nil {
			return nil, err
		}
	}
	activeIndex, _ := f.GetSheetIndex(sheet)
	f.SetActiveSheet(activeIndex)

	for i, h := range exportHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	row := 2
	for _, c := range recs {
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(sheet, cell, v)
		}
		fields := exportFields(c)
		for i, v := range fields {
			write(i+1, v)
		}
		row++
	}

	_ = f.SetColWidth(sheet, "A", "A", 12)
	_ = f.SetColWidth(sheet, "B", "B", 28)
	_ = f.SetColWidth(sheet, "C", "F", 14)
	_ = f.SetColWidth(sheet, "G", "G", 24)
	_ = f.SetColWidth(sheet, "H", "H", 48)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"user_id", userID.String(),
		"rows", len(recs),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

// ExportCSV renders the same rows as ExportXLSX in CSV form, same window
// semantics.
func (s *Service) ExportCSV(ctx context.Context, userID uuid.UUID, from, to *time.Time) ([]byte, error) {
	start := time.Now()

	recs, err := s.confirmedInWindow(ctx, userID, from, to)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(exportHeaders); err != nil {
		return nil, fmt.Errorf("csv write: %w", err)
	}
	for _, c := range recs {
		if err := w.Write(exportFields(c)); err != nil {
			return nil, fmt.Errorf("csv write: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("csv flush: %w", err)
	}

	s.logger.Info("export.csv.ok",
		"user_id", userID.String(),
		"rows", len(recs),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

func (s *Service) confirmedInWindow(ctx context.Context, userID uuid.UUID, from, to *time.Time) ([]expense.Confirmed, error) {
	fromDate, toDate := normalizeWindow(from, to)

	all, err := s.expenses.ListByState(ctx, userID, expense.StateConfirmed)
	if err != nil {
		return nil, fmt.Errorf("query expenses: %w", err)
	}

	var out []expense.Confirmed
	for _, e := range all {
		c, ok := e.(expense.Confirmed)
		if !ok {
			continue
		}
		d := dateOnly(c.ExpenseDate)
		if fromDate != nil && d.Before(*fromDate) {
			continue
		}
		if toDate != nil && d.After(*toDate) {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

// normalizeWindow clamps the bounds to date-only UTC; a from with no to
// means from..today.
func normalizeWindow(from, to *time.Time) (*time.Time, *time.Time) {
	var fromDate, toDate *time.Time
	if from != nil {
		f := dateOnly(*from)
		fromDate = &f
	}
	if to != nil {
		t := dateOnly(*to)
		toDate = &t
	}
	if fromDate != nil && toDate == nil {
		t := dateOnly(time.Now().UTC())
		toDate = &t
	}
	return fromDate, toDate
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func exportFields(c expense.Confirmed) []string {
	description := ""
	if c.Description != nil {
		description = truncate(*c.Description, 140)
	}
	return []string{
		c.ExpenseDate.Format("2006-01-02"),
		c.Merchant,
		formatAmount(c.Amount, c.Currency),
		c.Currency,
		formatAmount(c.BaseAmount, c.BaseCurrency),
		c.BaseCurrency,
		joinCategories(c.Categories),
		description,
	}
}

// formatAmount renders minor units as a major-unit decimal string with the
// currency's exponent (1099 USD -> "10.99", 1099 JPY -> "1099").
func formatAmount(minor int64, code string) string {
	exp := currency.Exponent(code)
	return decimal.New(minor, -exp).StringFixed(exp)
}

func joinCategories(cats []string) string {
	out := ""
	for i, c := range cats {
		if i > 0 {
			out += "; "
		}
		out += c
	}
	return out
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 1 {
		return s[:n]
	}
	return s[:n-1] + "…"
}
