package extraction

import (
	"strings"

	"github.com/joseph-ayodele/expense-tracker/constants"
)

const maxPromptOCRChars = 3000

// BuildPrompt composes the fixed extraction prompt with the OCR text
// interpolated. The template is deliberately static; reproducibility comes
// from this plus temperature 0 on the generate call.
func BuildPrompt(ocrText string) string {
	if len(ocrText) > maxPromptOCRChars {
		ocrText = ocrText[:maxPromptOCRChars]
	}

	parts := []string{
		"You are a receipt parser. Return ONLY a JSON object, no prose, no markdown.",
		"Fields:",
		`- "amount": total paid as an integer in the currency's smallest unit (e.g. cents: $45.99 -> 4599), or null if unreadable.`,
		`- "currency": 3-letter ISO 4217 code, or null if not visible.`,
		`- "merchant": merchant name as printed, or null.`,
		`- "date": purchase date as YYYY-MM-DD, or null.`,
		`- "category": array of tags, preferably from: ` + strings.Join(constants.AsStringSlice(), ", ") + `.`,
		`- "ambiguous": null, or {"reason": "..."} when the receipt is genuinely ambiguous (e.g. two totals).`,
		"Never invent values; prefer null over a guess.",
		"",
		"Receipt text:",
		ocrText,
	}
	return strings.Join(parts, "\n")
}
