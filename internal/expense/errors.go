package expense

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// NotFoundError reports an expense id with no row behind it.
type NotFoundError struct {
	ID uuid.UUID
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("expense %s not found", e.ID)
}

// NotPendingReviewError reports an operation that requires the
// pending-review state against an expense in some other state.
type NotPendingReviewError struct {
	ID           uuid.UUID
	CurrentState State
}

func (e *NotPendingReviewError) Error() string {
	return fmt.Sprintf("expense %s is %s, not %s", e.ID, e.CurrentState, StatePendingReview)
}

// AlreadyConfirmedError reports a confirm attempt against an expense that is
// already confirmed; re-confirming is never a silent no-op.
type AlreadyConfirmedError struct {
	ID uuid.UUID
}

func (e *AlreadyConfirmedError) Error() string {
	return fmt.Sprintf("expense %s is already confirmed", e.ID)
}

// MissingRequiredFieldsError names the required fields still null after
// merging user overrides with the stored expense.
type MissingRequiredFieldsError struct {
	ID     uuid.UUID
	Fields []string
}

func (e *MissingRequiredFieldsError) Error() string {
	return fmt.Sprintf("expense %s missing required fields: %s", e.ID, strings.Join(e.Fields, ", "))
}
