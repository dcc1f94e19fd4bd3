package extraction

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/joseph-ayodele/expense-tracker/constants"
	"github.com/joseph-ayodele/expense-tracker/internal/currency"
)

// Ambiguity is the model's advisory flag that the receipt could be read more
// than one way. It never changes control flow downstream; it is carried as
// metadata only.
type Ambiguity struct {
	Reason string `json:"reason"`
}

// ExtractedExpense is the normalized extraction output: integer minor-unit
// amount, uppercase ISO currency, parsed date. Each field is independently
// nullable; partial extraction is expected and valid.
type ExtractedExpense struct {
	Amount     *int64
	Currency   *string
	Merchant   *string
	Date       *time.Time
	Categories []string
	Ambiguous  *Ambiguity
}

// reAmountSeparators matches a JSON "amount" value written with thousands
// separators ("amount": 1,234.56), which breaks naive JSON parsing.
var reAmountSeparators = regexp.MustCompile(`("amount"\s*:\s*)(-?\d{1,3}(?:,\d{3})+(?:\.\d+)?)`)

// ParseResponse turns a raw LLM completion into an ExtractedExpense:
// markdown fences stripped, first JSON object located, separator commas
// repaired inside the amount, unknown keys dropped, shape validated, then
// each field normalized or defaulted to null. Only a document that is not
// JSON at all (or fails shape validation after sanitizing) is an error;
// individually unusable fields just come back nil.
func ParseResponse(raw string, logger *slog.Logger) (*ExtractedExpense, error) {
	if logger == nil {
		logger = slog.Default()
	}

	doc := stripFences(raw)
	doc = firstJSONObject(doc)
	if doc == "" {
		return nil, fmt.Errorf("no JSON object in response")
	}
	doc = reAmountSeparators.ReplaceAllStringFunc(doc, func(m string) string {
		sub := reAmountSeparators.FindStringSubmatch(m)
		return sub[1] + strings.ReplaceAll(sub[2], ",", "")
	})

	cleaned, dropped, err := sanitize([]byte(doc))
	if err != nil {
		return nil, err
	}
	if len(dropped) > 0 {
		logger.Warn("extract.parse.sanitized", "dropped", dropped)
	}
	if err := ValidateJSONAgainstSchema(BuildExpenseJSONSchema(), cleaned); err != nil {
		return nil, fmt.Errorf("schema validation failed: %w", err)
	}

	var wire struct {
		Amount    json.Number `json:"amount"`
		Currency  *string     `json:"currency"`
		Merchant  *string     `json:"merchant"`
		Date      *string     `json:"date"`
		Category  []string    `json:"category"`
		Ambiguous *Ambiguity  `json:"ambiguous"`
	}
	dec := json.NewDecoder(bytes.NewReader(cleaned))
	dec.UseNumber()
	if err := dec.Decode(&wire); err != nil {
		return nil, fmt.Errorf("decode fields: %w", err)
	}

	out := &ExtractedExpense{Ambiguous: wire.Ambiguous}

	if wire.Currency != nil {
		if iso, ok := currency.NormalizeCode(*wire.Currency); ok {
			out.Currency = &iso
		}
	}
	if wire.Merchant != nil {
		if m := strings.TrimSpace(*wire.Merchant); m != "" {
			out.Merchant = &m
		}
	}
	if wire.Date != nil {
		if t, ok := parseDate(*wire.Date); ok {
			out.Date = &t
		}
	}
	seen := map[string]bool{}
	for _, c := range wire.Category {
		if strings.TrimSpace(c) == "" {
			continue
		}
		cat, _ := constants.Canonicalize(c)
		if !seen[string(cat)] {
			seen[string(cat)] = true
			out.Categories = append(out.Categories, string(cat))
		}
	}
	if wire.Amount != "" {
		if minor, ok := normalizeAmount(wire.Amount.String(), out.Currency); ok {
			out.Amount = &minor
		}
	}

	return out, nil
}

// sanitize makes the raw object schema-friendly without losing salvageable
// data: unknown keys go, a bare category string becomes a one-element array,
// a symbol-laden amount string becomes a number, nulls stay null.
func sanitize(doc []byte) ([]byte, []string, error) {
	var m map[string]any
	dec := json.NewDecoder(bytes.NewReader(doc))
	dec.UseNumber()
	if err := dec.Decode(&m); err != nil {
		return nil, nil, fmt.Errorf("sanitize: decode: %w", err)
	}

	var dropped []string

	if v, ok := m["category"]; ok {
		switch t := v.(type) {
		case string:
			m["category"] = []any{t}
		case []any:
		case nil:
			delete(m, "category")
		default:
			delete(m, "category")
			dropped = append(dropped, "category(type)")
		}
	}

	if v, ok := m["amount"]; ok {
		switch t := v.(type) {
		case json.Number, nil:
		case string:
			s := strings.Map(func(r rune) rune {
				switch {
				case r >= '0' && r <= '9', r == '.', r == '-':
					return r
				default:
					return -1
				}
			}, t)
			if s == "" {
				delete(m, "amount")
				dropped = append(dropped, "amount(empty)")
			} else {
				m["amount"] = json.RawMessage(s)
				if !json.Valid([]byte(s)) {
					delete(m, "amount")
					dropped = append(dropped, "amount(unparseable)")
				}
			}
		default:
			delete(m, "amount")
			dropped = append(dropped, "amount(type)")
		}
	}

	if v, ok := m["ambiguous"]; ok {
		if obj, isObj := v.(map[string]any); isObj {
			if _, hasReason := obj["reason"].(string); !hasReason {
				delete(m, "ambiguous")
				dropped = append(dropped, "ambiguous(no_reason)")
			}
		}
	}

	allowed := map[string]struct{}{
		"amount": {}, "currency": {}, "merchant": {}, "date": {},
		"category": {}, "ambiguous": {},
	}
	for k := range m {
		if _, ok := allowed[k]; !ok {
			delete(m, k)
			dropped = append(dropped, k+"(unknown)")
		}
	}

	out, err := json.Marshal(m)
	if err != nil {
		return nil, dropped, fmt.Errorf("sanitize: encode: %w", err)
	}
	return out, dropped, nil
}

// normalizeAmount converts the model's amount to int64 minor units. An
// integer is taken as minor units already (the prompt asks for that); a
// value with a fraction is taken as major units and scaled by the currency's
// exponent (2 when the currency is unknown).
func normalizeAmount(num string, iso *string) (int64, bool) {
	d, err := decimal.NewFromString(num)
	if err != nil {
		return 0, false
	}
	if d.IsInteger() {
		return d.IntPart(), true
	}
	exp := currency.DefaultExponent
	if iso != nil {
		exp = currency.Exponent(*iso)
	}
	return d.Shift(exp).Round(0).IntPart(), true
}

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006/01/02",
	"01/02/2006",
	"Jan 2, 2006",
	"2 Jan 2006",
}

func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), true
		}
	}
	return time.Time{}, false
}

// stripFences removes a surrounding markdown code fence if present.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 && len(strings.TrimSpace(s[:i])) <= 8 {
		// drop the language hint line ("json")
		s = s[i+1:]
	}
	if i := strings.LastIndex(s, "```"); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

// firstJSONObject returns the first balanced top-level {...} in s, honoring
// string literals and escapes, or "" when there is none.
func firstJSONObject(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}
