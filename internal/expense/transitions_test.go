package expense

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

var testNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func fullExtraction() ExtractedData {
	d := time.Date(2025, 6, 14, 0, 0, 0, 0, time.UTC)
	return ExtractedData{
		Amount:      ptr(int64(4599)),
		Currency:    ptr("USD"),
		Merchant:    ptr("Blue Bottle Coffee"),
		Categories:  []string{"Dining"},
		ExpenseDate: &d,
	}
}

func TestNewPending(t *testing.T) {
	userID := uuid.New()
	key := "receipts/abc.jpg"

	p := NewPending(userID, &key, testNow)

	assert.NotEqual(t, uuid.Nil, p.ID)
	assert.Equal(t, userID, p.UserID)
	assert.Equal(t, &key, p.ImageKey)
	assert.Equal(t, testNow, p.CapturedAt)
	assert.Equal(t, testNow, p.CreatedAt)
	assert.Equal(t, StatePending, p.State())
}

func TestApplyExtractionCarriesIdentity(t *testing.T) {
	p := NewPending(uuid.New(), nil, testNow)
	meta := &ExtractionMetadata{OCRText: "BLUE BOTTLE", TotalMillis: 1200}

	r := ApplyExtraction(p, fullExtraction(), meta)

	assert.Equal(t, p.ID, r.ID)
	assert.Equal(t, p.UserID, r.UserID)
	assert.Equal(t, p.CapturedAt, r.CapturedAt)
	assert.Equal(t, StatePendingReview, r.State())
	assert.Equal(t, int64(4599), *r.Amount)
	assert.Equal(t, meta, r.Extraction)
	assert.True(t, r.CanConfirm())
}

func TestApplyExtractionFailedStillReviewable(t *testing.T) {
	p := NewPending(uuid.New(), nil, testNow)
	meta := &ExtractionMetadata{Error: "ocr: exit status 1"}

	r := ApplyExtraction(p, ExtractedData{}, meta)

	assert.Equal(t, StatePendingReview, r.State())
	assert.Nil(t, r.Amount)
	assert.False(t, r.CanConfirm())
	assert.Equal(t, "ocr: exit status 1", r.Extraction.Error)
}

func TestMissingFieldsOrder(t *testing.T) {
	p := NewPending(uuid.New(), nil, testNow)
	r := ApplyExtraction(p, ExtractedData{}, nil)
	assert.Equal(t, []string{"amount", "currency", "merchant", "expense_date"}, r.MissingFields())

	r.Amount = ptr(int64(100))
	r.Merchant = ptr("IKEA")
	assert.Equal(t, []string{"currency", "expense_date"}, r.MissingFields())

	r.Currency = ptr("EUR")
	r.ExpenseDate = ptr(testNow)
	assert.Empty(t, r.MissingFields())
	assert.True(t, r.CanConfirm())
}

func TestUpdateOnlyTouchesSetFields(t *testing.T) {
	p := NewPending(uuid.New(), nil, testNow)
	r := ApplyExtraction(p, fullExtraction(), nil)

	out := Update(r, Changes{Merchant: ptr("IKEA")})

	assert.Equal(t, "IKEA", *out.Merchant)
	assert.Equal(t, int64(4599), *out.Amount)
	assert.Equal(t, []string{"Dining"}, out.Categories)

	// nil Categories leaves the list, an empty non-nil slice replaces it
	out = Update(r, Changes{Categories: []string{}})
	assert.Empty(t, out.Categories)
}

func TestUpdateDoesNotAliasCategories(t *testing.T) {
	p := NewPending(uuid.New(), nil, testNow)
	r := ApplyExtraction(p, fullExtraction(), nil)

	out := Update(r, Changes{})
	out.Categories[0] = "mutated"

	assert.Equal(t, "Dining", r.Categories[0])
}

func TestConfirm(t *testing.T) {
	p := NewPending(uuid.New(), ptr("receipts/x.png"), testNow)
	r := ApplyExtraction(p, fullExtraction(), &ExtractionMetadata{OCRText: "x"})
	require.True(t, r.CanConfirm())

	confirmedAt := testNow.Add(time.Minute)
	c := Confirm(r, ConfirmInput{
		Amount:       *r.Amount,
		Currency:     *r.Currency,
		BaseAmount:   4100,
		BaseCurrency: "EUR",
		Merchant:     *r.Merchant,
		ExpenseDate:  *r.ExpenseDate,
	}, confirmedAt)

	assert.Equal(t, StateConfirmed, c.State())
	assert.Equal(t, r.ID, c.ID)
	assert.Equal(t, int64(4599), c.Amount)
	assert.Equal(t, int64(4100), c.BaseAmount)
	assert.Equal(t, "EUR", c.BaseCurrency)
	assert.Equal(t, confirmedAt, c.ConfirmedAt)
	assert.Equal(t, []string{"Dining"}, c.Categories)
	assert.Equal(t, r.Extraction, c.Extraction)
}

func TestApplyConfirmedChanges(t *testing.T) {
	p := NewPending(uuid.New(), nil, testNow)
	r := ApplyExtraction(p, fullExtraction(), nil)
	c := Confirm(r, ConfirmInput{
		Amount: 4599, Currency: "USD", BaseAmount: 4599, BaseCurrency: "USD",
		Merchant: "Blue Bottle Coffee", ExpenseDate: *r.ExpenseDate,
	}, testNow)

	out, moneyChanged := ApplyConfirmedChanges(c, Changes{Merchant: ptr("Sightglass")})
	assert.False(t, moneyChanged)
	assert.Equal(t, "Sightglass", out.Merchant)
	assert.Equal(t, StateConfirmed, out.State())

	out, moneyChanged = ApplyConfirmedChanges(c, Changes{Amount: ptr(int64(5000))})
	assert.True(t, moneyChanged)
	assert.Equal(t, int64(5000), out.Amount)

	// setting the same value is not a money change
	_, moneyChanged = ApplyConfirmedChanges(c, Changes{Amount: ptr(int64(4599)), Currency: ptr("USD")})
	assert.False(t, moneyChanged)
}

func TestDisplayAmount(t *testing.T) {
	p := NewPending(uuid.New(), nil, testNow)
	assert.Nil(t, DisplayAmount(p))

	r := ApplyExtraction(p, fullExtraction(), nil)
	assert.Equal(t, int64(4599), *DisplayAmount(r))

	c := Confirm(r, ConfirmInput{
		Amount: 4599, Currency: "USD", BaseAmount: 4100, BaseCurrency: "EUR",
		Merchant: "x", ExpenseDate: testNow,
	}, testNow)
	assert.Equal(t, int64(4100), *DisplayAmount(c))
}

func TestDisplayDateFallsBackToCapture(t *testing.T) {
	p := NewPending(uuid.New(), nil, testNow)
	assert.Equal(t, testNow, DisplayDate(p))

	r := ApplyExtraction(p, ExtractedData{}, nil)
	assert.Equal(t, testNow, DisplayDate(r))

	d := testNow.AddDate(0, 0, -1)
	r.ExpenseDate = &d
	assert.Equal(t, d, DisplayDate(r))
}

func TestTransitionErrorMessages(t *testing.T) {
	id := uuid.New()
	assert.Contains(t, (&NotFoundError{ID: id}).Error(), id.String())
	assert.Contains(t, (&NotPendingReviewError{ID: id, CurrentState: StateConfirmed}).Error(), "confirmed")
	assert.Contains(t, (&AlreadyConfirmedError{ID: id}).Error(), id.String())
	err := &MissingRequiredFieldsError{ID: id, Fields: []string{"amount", "currency"}}
	assert.Contains(t, err.Error(), "amount")
}
