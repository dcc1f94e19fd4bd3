package server

import (
	"io"
	"net/http"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/expense-tracker/constants"
	"github.com/joseph-ayodele/expense-tracker/internal/expense"
)

func (s *Server) handleCapture(c *gin.Context) {
	userID, ok := s.captureUserID(c)
	if !ok {
		return
	}

	fileHeader, err := c.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "image file is required"})
		return
	}
	if ext := filepath.Ext(fileHeader.Filename); !constants.ExtensionAllowed(ext) {
		c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": "unsupported file type"})
		return
	}
	if fileHeader.Size > maxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "image too large"})
		return
	}

	f, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable upload"})
		return
	}
	defer f.Close()
	image, err := io.ReadAll(io.LimitReader(f, maxUploadBytes+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable upload"})
		return
	}

	contentType := fileHeader.Header.Get("Content-Type")
	result, err := s.expenses.Capture(c.Request.Context(), userID, image, fileHeader.Filename, contentType)
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"expense":      toExpenseResponse(result.Expense),
		"needs_review": result.NeedsReview,
		"extraction": gin.H{
			"success": result.Extraction.Success,
			"error":   result.Extraction.Error,
			"timing": gin.H{
				"ocr_ms":   result.Extraction.Timing.OCRMillis,
				"llm_ms":   result.Extraction.Timing.LLMMillis,
				"total_ms": result.Extraction.Timing.TotalMillis,
			},
		},
	})
}

// captureUserID resolves the acting user, either from a one-time session
// token (phone shortcut flow) or an explicit user_id form field.
func (s *Server) captureUserID(c *gin.Context) (uuid.UUID, bool) {
	if token := c.GetHeader("X-Capture-Token"); token != "" {
		sess, err := s.sessions.Claim(token)
		if err != nil {
			s.writeError(c, err)
			return uuid.Nil, false
		}
		return sess.UserID, true
	}

	raw := c.PostForm("user_id")
	if raw == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id or X-Capture-Token is required"})
		return uuid.Nil, false
	}
	userID, err := uuid.Parse(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user_id"})
		return uuid.Nil, false
	}
	return userID, true
}

// changesRequest is the shared patch body for confirm and update. Absent
// fields stay unchanged; categories replace wholesale when present.
type changesRequest struct {
	Amount      *int64   `json:"amount"`
	Currency    *string  `json:"currency"`
	Merchant    *string  `json:"merchant"`
	Description *string  `json:"description"`
	Categories  []string `json:"categories"`
	ExpenseDate *string  `json:"expense_date"`
}

func (r changesRequest) toChanges() (expense.Changes, error) {
	ch := expense.Changes{
		Amount:      r.Amount,
		Currency:    r.Currency,
		Merchant:    r.Merchant,
		Description: r.Description,
		Categories:  r.Categories,
	}
	if r.ExpenseDate != nil {
		d, err := time.Parse("2006-01-02", *r.ExpenseDate)
		if err != nil {
			return expense.Changes{}, err
		}
		ch.ExpenseDate = &d
	}
	return ch, nil
}

func (s *Server) handleConfirm(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	var req changesRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
	}
	overrides, err := req.toChanges()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "expense_date must be YYYY-MM-DD"})
		return
	}

	confirmed, err := s.expenses.ConfirmExisting(c.Request.Context(), id, overrides)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toExpenseResponse(*confirmed))
}

func (s *Server) handleUpdate(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	var req changesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	changes, err := req.toChanges()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "expense_date must be YYYY-MM-DD"})
		return
	}

	updated, err := s.expenses.Update(c.Request.Context(), id, changes)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toExpenseResponse(updated))
}

func (s *Server) handleGet(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	e, err := s.expenses.GetByID(c.Request.Context(), id)
	if err != nil {
		s.writeError(c, err)
		return
	}
	if e == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "expense not found"})
		return
	}
	c.JSON(http.StatusOK, toExpenseResponse(e))
}

func (s *Server) handleList(c *gin.Context) {
	userID, err := uuid.Parse(c.Query("user_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id query parameter is required"})
		return
	}

	var list []expense.Expense
	if raw := c.Query("state"); raw == "" {
		list, err = s.expenses.List(c.Request.Context(), userID)
	} else {
		st := expense.State(raw)
		if !st.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown state"})
			return
		}
		list, err = s.expenses.ListByState(c.Request.Context(), userID, st)
	}
	if err != nil {
		s.writeError(c, err)
		return
	}

	out := make([]expenseResponse, 0, len(list))
	for _, e := range list {
		out = append(out, toExpenseResponse(e))
	}
	c.JSON(http.StatusOK, gin.H{"expenses": out})
}

func (s *Server) handleDelete(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := s.expenses.Delete(c.Request.Context(), id); err != nil {
		s.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleExport(c *gin.Context) {
	userID, err := uuid.Parse(c.Query("user_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id query parameter is required"})
		return
	}

	from, ok := queryDate(c, "from")
	if !ok {
		return
	}
	to, ok := queryDate(c, "to")
	if !ok {
		return
	}

	switch format := c.DefaultQuery("format", "xlsx"); format {
	case "xlsx":
		data, err := s.exporter.ExportXLSX(c.Request.Context(), userID, from, to)
		if err != nil {
			s.writeError(c, err)
			return
		}
		c.Header("Content-Disposition", `attachment; filename="expenses.xlsx"`)
		c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", data)
	case "csv":
		data, err := s.exporter.ExportCSV(c.Request.Context(), userID, from, to)
		if err != nil {
			s.writeError(c, err)
			return
		}
		c.Header("Content-Disposition", `attachment; filename="expenses.csv"`)
		c.Data(http.StatusOK, "text/csv", data)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "format must be xlsx or csv"})
	}
}

func (s *Server) handleCreateSession(c *gin.Context) {
	var req struct {
		UserID string `json:"user_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}
	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user_id"})
		return
	}

	sess := s.sessions.Create(userID)
	c.JSON(http.StatusCreated, gin.H{
		"token":      sess.Token,
		"expires_at": sess.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleGetBaseCurrency(c *gin.Context) {
	code, err := s.settings.BaseCurrency(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"base_currency": code})
}

func (s *Server) handleSetBaseCurrency(c *gin.Context) {
	var req struct {
		BaseCurrency string `json:"base_currency" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "base_currency is required"})
		return
	}
	if err := s.settings.SetBaseCurrency(c.Request.Context(), req.BaseCurrency); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"base_currency": req.BaseCurrency})
}

func (s *Server) handleExtractionHealth(c *gin.Context) {
	status := s.expenses.CheckExtractionHealth(c.Request.Context())
	code := http.StatusOK
	if !status.Available || !status.Configured || !status.ModelAvailable {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, status)
}

func pathID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid expense id"})
		return uuid.Nil, false
	}
	return id, true
}

func queryDate(c *gin.Context, name string) (*time.Time, bool) {
	raw := c.Query(name)
	if raw == "" {
		return nil, true
	}
	d, err := time.Parse("2006-01-02", raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": name + " must be YYYY-MM-DD"})
		return nil, false
	}
	return &d, true
}
