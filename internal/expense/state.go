package expense

// State is the lifecycle discriminator for an expense.
type State string

// Stable values (store these exact strings in DB).
const (
	StatePending       State = "pending"        // image captured, nothing extracted yet
	StatePendingReview State = "pending-review" // extraction applied, awaiting completion/confirmation
	StateConfirmed     State = "confirmed"      // all required fields present, base amount computed
)

func (s State) Valid() bool {
	switch s {
	case StatePending, StatePendingReview, StateConfirmed:
		return true
	}
	return false
}

// Required field names for confirmation, in reporting order.
const (
	FieldAmount      = "amount"
	FieldCurrency    = "currency"
	FieldMerchant    = "merchant"
	FieldExpenseDate = "expense_date"
)
