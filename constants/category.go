package constants

import (
	"strings"
)

type Category string

const (
	Groceries     Category = "Groceries"
	Dining        Category = "Dining"
	Transport     Category = "Transport"
	Travel        Category = "Travel"
	Utilities     Category = "Utilities"
	Housing       Category = "Housing"
	Health        Category = "Health"
	Entertainment Category = "Entertainment"
	Shopping      Category = "Shopping"
	Subscriptions Category = "Subscriptions"
	Education     Category = "Education"
	Other         Category = "Other"
)

var allCategories = []Category{
	Groceries,
	Dining,
	Transport,
	Travel,
	Utilities,
	Housing,
	Health,
	Entertainment,
	Shopping,
	Subscriptions,
	Education,
	Other,
}

func AsStringSlice() []string {
	result := make([]string, len(allCategories))
	for i, cat := range allCategories {
		result[i] = string(cat)
	}
	return result
}

// Canonicalize maps free-text category tags onto the canonical set. The
// boolean reports whether the input matched; unmatched input maps to Other.
func Canonicalize(input string) (Category, bool) {
	if input == "" {
		return Other, false
	}

	normalized := strings.ToLower(strings.TrimSpace(input))

	synonyms := map[string]Category{
		"grocery":       Groceries,
		"supermarket":   Groceries,
		"food":          Dining,
		"restaurant":    Dining,
		"cafe":          Dining,
		"coffee":        Dining,
		"takeout":       Dining,
		"uber":          Transport,
		"lyft":          Transport,
		"taxi":          Transport,
		"fuel":          Transport,
		"gas":           Transport,
		"parking":       Transport,
		"airline":       Travel,
		"flight":        Travel,
		"hotel":         Travel,
		"lodging":       Travel,
		"electricity":   Utilities,
		"water":         Utilities,
		"internet":      Utilities,
		"phone":         Utilities,
		"rent":          Housing,
		"mortgage":      Housing,
		"pharmacy":      Health,
		"doctor":        Health,
		"medical":       Health,
		"movies":        Entertainment,
		"streaming":     Subscriptions,
		"subscription":  Subscriptions,
		"saas":          Subscriptions,
		"clothing":      Shopping,
		"electronics":   Shopping,
		"books":         Education,
		"course":        Education,
		"tuition":       Education,
	}

	if cat, ok := synonyms[normalized]; ok {
		return cat, true
	}

	for _, cat := range allCategories {
		if normalized == strings.ToLower(string(cat)) {
			return cat, true
		}
	}

	return Other, false
}
