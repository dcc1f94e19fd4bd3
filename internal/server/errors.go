package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/joseph-ayodele/expense-tracker/internal/currency"
	"github.com/joseph-ayodele/expense-tracker/internal/expense"
	"github.com/joseph-ayodele/expense-tracker/internal/session"
	"github.com/joseph-ayodele/expense-tracker/internal/storage"
)

// writeError maps domain errors onto HTTP statuses. Anything unrecognized
// is a 500 with a generic body; the detail goes to the log, not the client.
func (s *Server) writeError(c *gin.Context, err error) {
	var (
		notFound  *expense.NotFoundError
		notReview *expense.NotPendingReviewError
		confirmed *expense.AlreadyConfirmedError
		missing   *expense.MissingRequiredFieldsError
		convErr   *currency.ConversionError
		blobErr   *storage.BlobStorageError
	)

	switch {
	case errors.As(err, &notFound):
		c.JSON(http.StatusNotFound, gin.H{"error": notFound.Error()})
	case errors.As(err, &confirmed):
		c.JSON(http.StatusConflict, gin.H{"error": confirmed.Error()})
	case errors.As(err, &notReview):
		c.JSON(http.StatusConflict, gin.H{
			"error":         notReview.Error(),
			"current_state": string(notReview.CurrentState),
		})
	case errors.As(err, &missing):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":          missing.Error(),
			"missing_fields": missing.Fields,
		})
	case errors.As(err, &convErr):
		s.logger.Error("http.conversion_failed", "from", convErr.From, "to", convErr.To, "error", convErr)
		c.JSON(http.StatusBadGateway, gin.H{"error": "currency conversion unavailable"})
	case errors.As(err, &blobErr):
		s.logger.Error("http.blob_failed", "op", blobErr.Op, "key", blobErr.Key, "error", blobErr)
		c.JSON(http.StatusBadGateway, gin.H{"error": "image storage unavailable"})
	case errors.Is(err, session.ErrSessionNotFound):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "capture session not found or expired"})
	case errors.Is(err, session.ErrSessionClaimed):
		c.JSON(http.StatusConflict, gin.H{"error": "capture session already used"})
	default:
		s.logger.Error("http.internal_error", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
