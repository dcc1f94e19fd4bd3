// Package currency converts integer minor-unit amounts between ISO 4217
// currencies using a cached exchange-rate table. Every conversion consults
// the currency's decimal exponent; two decimals is the common case, not an
// assumption.
package currency

import "strings"

// exponents maps ISO 4217 codes to their minor-unit exponent. Codes absent
// from the map use DefaultExponent.
var exponents = map[string]int32{
	"BHD": 3,
	"IQD": 3,
	"JOD": 3,
	"KWD": 3,
	"OMR": 3,
	"TND": 3,

	"BIF": 0,
	"CLP": 0,
	"DJF": 0,
	"GNF": 0,
	"ISK": 0,
	"JPY": 0,
	"KMF": 0,
	"KRW": 0,
	"PYG": 0,
	"RWF": 0,
	"UGX": 0,
	"VND": 0,
	"VUV": 0,
	"XAF": 0,
	"XOF": 0,
	"XPF": 0,
}

// DefaultExponent is the ISO 4217 exponent for currencies not listed above.
const DefaultExponent int32 = 2

// Exponent returns the number of decimal places of the currency's minor unit
// (2 for USD, 0 for JPY, 3 for KWD).
func Exponent(code string) int32 {
	if e, ok := exponents[strings.ToUpper(strings.TrimSpace(code))]; ok {
		return e
	}
	return DefaultExponent
}

// symbols maps common currency symbols and abbreviations to ISO codes, used
// by the extraction pipeline to normalize LLM output before the aggregate
// ever sees it.
var symbols = map[string]string{
	"$":   "USD",
	"US$": "USD",
	"€":   "EUR",
	"£":   "GBP",
	"¥":   "JPY",
	"₹":   "INR",
	"₩":   "KRW",
	"₦":   "NGN",
	"R$":  "BRL",
	"C$":  "CAD",
	"A$":  "AUD",
	"CHF": "CHF",
	"kr":  "SEK",
	"zł":  "PLN",
	"₺":   "TRY",
	"₽":   "RUB",
}

// NormalizeCode maps a raw currency token (ISO code, symbol, or common
// abbreviation) to an uppercase ISO 4217 code. The second return is false
// when the token is unrecognizable as a currency.
func NormalizeCode(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", false
	}
	if iso, ok := symbols[s]; ok {
		return iso, true
	}
	up := strings.ToUpper(s)
	if len(up) == 3 && isAlpha(up) {
		return up, true
	}
	return "", false
}

func isAlpha(s string) bool {
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}
