package server

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/expense-tracker/internal/expense"
	"github.com/joseph-ayodele/expense-tracker/internal/export"
	"github.com/joseph-ayodele/expense-tracker/internal/extraction"
	"github.com/joseph-ayodele/expense-tracker/internal/repository"
	"github.com/joseph-ayodele/expense-tracker/internal/service"
	"github.com/joseph-ayodele/expense-tracker/internal/session"
	"github.com/joseph-ayodele/expense-tracker/internal/storage"
)

func ptr[T any](v T) *T { return &v }

type memExpenseRepo struct {
	rows map[uuid.UUID]expense.Expense
}

func (m *memExpenseRepo) Upsert(_ context.Context, e expense.Expense) error {
	m.rows[e.ExpenseID()] = e
	return nil
}

func (m *memExpenseRepo) GetByID(_ context.Context, id uuid.UUID) (expense.Expense, error) {
	e, ok := m.rows[id]
	if !ok {
		return nil, nil
	}
	return e, nil
}

func (m *memExpenseRepo) List(_ context.Context, userID uuid.UUID) ([]expense.Expense, error) {
	var out []expense.Expense
	for _, e := range m.rows {
		if e.Owner() == userID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memExpenseRepo) ListByState(_ context.Context, userID uuid.UUID, st expense.State) ([]expense.Expense, error) {
	var out []expense.Expense
	for _, e := range m.rows {
		if e.Owner() == userID && e.State() == st {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memExpenseRepo) Delete(_ context.Context, id uuid.UUID) (bool, error) {
	if _, ok := m.rows[id]; !ok {
		return false, nil
	}
	delete(m.rows, id)
	return true, nil
}

type memMerchantRepo struct{}

func (memMerchantRepo) Upsert(_ context.Context, name string, _ *string) (*repository.Merchant, error) {
	return &repository.Merchant{NormalizedName: repository.NormalizeMerchantName(name)}, nil
}
func (memMerchantRepo) GetByName(context.Context, string) (*repository.Merchant, error) {
	return nil, nil
}
func (memMerchantRepo) List(context.Context) ([]*repository.Merchant, error) { return nil, nil }

type memSettingsRepo struct{}

func (memSettingsRepo) BaseCurrency(context.Context) (string, error) { return "USD", nil }
func (memSettingsRepo) SetBaseCurrency(context.Context, string) error {
	return nil
}

type stubExtractor struct {
	result extraction.Result
}

func (s *stubExtractor) ExtractFromImage(context.Context, []byte) (extraction.Result, error) {
	return s.result, nil
}

func (s *stubExtractor) CheckHealth(context.Context) extraction.HealthStatus {
	return extraction.HealthStatus{Available: true, Configured: true, ModelAvailable: true, Model: "llama3.1"}
}

type identityConverter struct{}

func (identityConverter) Convert(_ context.Context, amount int64, _, _ string) (int64, error) {
	return amount, nil
}
func (identityConverter) ConvertOrFallback(_ context.Context, amount int64, _, _ string) int64 {
	return amount
}

type testEnv struct {
	server *Server
	repo   *memExpenseRepo
}

func newTestEnv(t *testing.T, result extraction.Result) *testEnv {
	t.Helper()
	repo := &memExpenseRepo{rows: make(map[uuid.UUID]expense.Expense)}
	svc := service.NewExpenseService(
		storage.NewMemoryStore(), repo, memMerchantRepo{}, memSettingsRepo{},
		&stubExtractor{result: result}, identityConverter{}, nil,
	)
	srv := New(":0", svc, export.NewService(repo, nil), session.NewStore(time.Minute, nil), memSettingsRepo{}, nil)
	return &testEnv{server: srv, repo: repo}
}

func fullResult() extraction.Result {
	d := time.Date(2025, 6, 14, 0, 0, 0, 0, time.UTC)
	return extraction.Result{
		Success: true,
		Data: &extraction.ExtractedExpense{
			Amount:      ptr(int64(4599)),
			Currency:    ptr("USD"),
			Merchant:    ptr("Blue Bottle Coffee"),
			Categories:  []string{"Dining"},
			Date:        &d,
		},
	}
}

func multipartCapture(t *testing.T, userID, fileName string) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	if userID != "" {
		require.NoError(t, w.WriteField("user_id", userID))
	}
	part, err := w.CreateFormFile("image", fileName)
	require.NoError(t, err)
	_, err = part.Write([]byte("jpeg bytes"))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return &body, w.FormDataContentType()
}

func doJSON(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	} else {
		r = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestCaptureEndpointAutoConfirm(t *testing.T) {
	env := newTestEnv(t, fullResult())
	userID := uuid.New()

	body, contentType := multipartCapture(t, userID.String(), "receipt.jpg")
	req := httptest.NewRequest(http.MethodPost, "/v1/expenses/capture", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp struct {
		Expense     expenseResponse `json:"expense"`
		NeedsReview bool            `json:"needs_review"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.NeedsReview)
	assert.Equal(t, "confirmed", resp.Expense.State)
	require.NotNil(t, resp.Expense.Amount)
	assert.Equal(t, int64(4599), *resp.Expense.Amount)
	require.NotNil(t, resp.Expense.Merchant)
	assert.Equal(t, "Blue Bottle Coffee", *resp.Expense.Merchant)
	require.NotNil(t, resp.Expense.BaseAmount)
	assert.Equal(t, int64(4599), *resp.Expense.BaseAmount)
}

func TestCaptureEndpointRejectsUnknownExtension(t *testing.T) {
	env := newTestEnv(t, fullResult())

	body, contentType := multipartCapture(t, uuid.NewString(), "virus.exe")
	req := httptest.NewRequest(http.MethodPost, "/v1/expenses/capture", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}

func TestCaptureEndpointRequiresUser(t *testing.T) {
	env := newTestEnv(t, fullResult())

	body, contentType := multipartCapture(t, "", "receipt.jpg")
	req := httptest.NewRequest(http.MethodPost, "/v1/expenses/capture", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCaptureWithSessionToken(t *testing.T) {
	env := newTestEnv(t, fullResult())

	rec := doJSON(t, env.server, http.MethodPost, "/v1/sessions", map[string]string{"user_id": uuid.NewString()})
	require.Equal(t, http.StatusCreated, rec.Code)
	var sess struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sess))

	body, contentType := multipartCapture(t, "", "receipt.jpg")
	req := httptest.NewRequest(http.MethodPost, "/v1/expenses/capture", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-Capture-Token", sess.Token)
	rec2 := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec2, req)
	require.Equal(t, http.StatusCreated, rec2.Code, rec2.Body.String())

	// the token is single use
	body, contentType = multipartCapture(t, "", "receipt.jpg")
	req = httptest.NewRequest(http.MethodPost, "/v1/expenses/capture", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-Capture-Token", sess.Token)
	rec3 := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec3, req)
	assert.Equal(t, http.StatusConflict, rec3.Code)
}

func TestConfirmEndpointNotFound(t *testing.T) {
	env := newTestEnv(t, fullResult())

	rec := doJSON(t, env.server, http.MethodPost, "/v1/expenses/"+uuid.NewString()+"/confirm", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestConfirmEndpointConflictWhenConfirmed(t *testing.T) {
	env := newTestEnv(t, fullResult())

	id := uuid.New()
	now := time.Now()
	env.repo.rows[id] = expense.Confirmed{
		ID: id, UserID: uuid.New(), CapturedAt: now, CreatedAt: now,
		Amount: 100, Currency: "USD", BaseAmount: 100, BaseCurrency: "USD",
		Merchant: "X", ExpenseDate: now, ConfirmedAt: now,
	}

	rec := doJSON(t, env.server, http.MethodPost, "/v1/expenses/"+id.String()+"/confirm", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestConfirmEndpointMissingFields(t *testing.T) {
	env := newTestEnv(t, fullResult())

	id := uuid.New()
	now := time.Now()
	env.repo.rows[id] = expense.PendingReview{
		ID: id, UserID: uuid.New(), CapturedAt: now, CreatedAt: now,
		Amount: ptr(int64(4599)),
	}

	rec := doJSON(t, env.server, http.MethodPost, "/v1/expenses/"+id.String()+"/confirm", nil)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var resp struct {
		MissingFields []string `json:"missing_fields"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, []string{"currency", "merchant", "expense_date"}, resp.MissingFields)
}

func TestConfirmEndpointWithOverrides(t *testing.T) {
	env := newTestEnv(t, fullResult())

	id := uuid.New()
	now := time.Now()
	env.repo.rows[id] = expense.PendingReview{
		ID: id, UserID: uuid.New(), CapturedAt: now, CreatedAt: now,
		Amount: ptr(int64(4599)), Currency: ptr("USD"),
	}

	rec := doJSON(t, env.server, http.MethodPost, "/v1/expenses/"+id.String()+"/confirm", map[string]any{
		"merchant":     "Blue Bottle Coffee",
		"expense_date": "2025-06-14",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp expenseResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "confirmed", resp.State)
	assert.Equal(t, "Blue Bottle Coffee", *resp.Merchant)
	assert.Equal(t, "2025-06-14", *resp.ExpenseDate)
}

func TestGetEndpoint(t *testing.T) {
	env := newTestEnv(t, fullResult())

	rec := doJSON(t, env.server, http.MethodGet, "/v1/expenses/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, env.server, http.MethodGet, "/v1/expenses/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListEndpointFiltersByState(t *testing.T) {
	env := newTestEnv(t, fullResult())

	userID := uuid.New()
	now := time.Now()
	pendingID := uuid.New()
	reviewID := uuid.New()
	confirmedID := uuid.New()
	env.repo.rows[pendingID] = expense.Pending{ID: pendingID, UserID: userID, CapturedAt: now, CreatedAt: now}
	env.repo.rows[reviewID] = expense.PendingReview{ID: reviewID, UserID: userID, CapturedAt: now, CreatedAt: now}
	env.repo.rows[confirmedID] = expense.Confirmed{
		ID: confirmedID, UserID: userID, CapturedAt: now, CreatedAt: now,
		Amount: 100, Currency: "USD", BaseAmount: 100, BaseCurrency: "USD",
		Merchant: "X", ExpenseDate: now, ConfirmedAt: now,
	}

	rec := doJSON(t, env.server, http.MethodGet, "/v1/expenses?user_id="+userID.String()+"&state=pending", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), pendingID.String())
	assert.NotContains(t, rec.Body.String(), reviewID.String())
	assert.NotContains(t, rec.Body.String(), confirmedID.String())

	rec = doJSON(t, env.server, http.MethodGet, "/v1/expenses?user_id="+userID.String()+"&state=pending-review", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), reviewID.String())
	assert.NotContains(t, rec.Body.String(), pendingID.String())

	rec = doJSON(t, env.server, http.MethodGet, "/v1/expenses?user_id="+userID.String()+"&state=confirmed", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), confirmedID.String())

	rec = doJSON(t, env.server, http.MethodGet, "/v1/expenses?user_id="+userID.String()+"&state=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteEndpoint(t *testing.T) {
	env := newTestEnv(t, fullResult())

	id := uuid.New()
	now := time.Now()
	env.repo.rows[id] = expense.Pending{ID: id, UserID: uuid.New(), CapturedAt: now, CreatedAt: now}

	rec := doJSON(t, env.server, http.MethodDelete, "/v1/expenses/"+id.String(), nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, env.server, http.MethodDelete, "/v1/expenses/"+id.String(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestExportEndpointCSV(t *testing.T) {
	env := newTestEnv(t, fullResult())

	userID := uuid.New()
	id := uuid.New()
	now := time.Date(2025, 6, 14, 0, 0, 0, 0, time.UTC)
	env.repo.rows[id] = expense.Confirmed{
		ID: id, UserID: userID, CapturedAt: now, CreatedAt: now,
		Amount: 4599, Currency: "USD", BaseAmount: 4599, BaseCurrency: "USD",
		Merchant: "Blue Bottle Coffee", ExpenseDate: now, ConfirmedAt: now,
	}

	rec := doJSON(t, env.server, http.MethodGet, "/v1/exports/expenses?user_id="+userID.String()+"&format=csv", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.True(t, strings.Contains(rec.Body.String(), "Blue Bottle Coffee"))
}

func TestExtractionHealthEndpoint(t *testing.T) {
	env := newTestEnv(t, fullResult())

	rec := doJSON(t, env.server, http.MethodGet, "/v1/health/extraction", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"model_available":true`)
}
