package normalizer

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	datePattern   = regexp.MustCompile(`\d{1,2}[./-]\d{1,2}[./-]\d{2,4}|\d{4}-\d{2}-\d{2}`)
	amountPattern = regexp.MustCompile(`[-−]?\d{1,3}(?:[ \x{00A0}\x{202F}]\d{3})+(?:[.,]\d{1,2})?|[-−]?\d+(?:[.,]\d{3})*(?:[.,]\d{1,2})?`)
	isoCodes      = regexp.MustCompile(`\b(KZT|RUB|USD|EUR|GBP|CNY)\b`)

	expenseKeywords = []string{
		"оплата", "списание", "payment", "комиссия", "перевод со счета",
		"withdrawal", "fee", "purchase", "покупка",
	}

	currencySymbols = map[string]string{
		"₽":     "RUB",
		"руб":   "RUB",
		"руб.":  "RUB",
		"rur":   "RUB",
		"$":     "USD",
		"€":     "EUR",
		"£":     "GBP",
		"¥":     "CNY",
		"₸":     "KZT",
		"тг":    "KZT",
		"тг.":   "KZT",
		"тенге": "KZT",
	}
)

// ExtractAmount finds the first money-looking token in free text. Dates,
// numbers after "№" or "#" and long identifier-like digit runs are skipped;
// a token with a fractional part wins over a plain integer.
func ExtractAmount(text, locale string) (decimal.Decimal, bool) {
	cleaned := datePattern.ReplaceAllString(text, " ")

	var fallback string
	for _, loc := range amountPattern.FindAllStringIndex(cleaned, -1) {
		token := cleaned[loc[0]:loc[1]]
		prefix := strings.TrimRight(cleaned[:loc[0]], " ")
		if strings.HasSuffix(prefix, "№") || strings.HasSuffix(prefix, "#") {
			continue
		}
		if digits := countDigits(token); digits >= 10 && !strings.ContainsAny(token, " .,\u00a0\u202f") {
			continue
		}
		if hasFraction(token) {
			if d, ok := Default.NormalizeAmount(token, locale); ok {
				return d.Abs(), true
			}
		}
		if fallback == "" {
			fallback = token
		}
	}

	if fallback != "" {
		if d, ok := Default.NormalizeAmount(fallback, locale); ok {
			return d.Abs(), true
		}
	}
	return decimal.Zero, false
}

func countDigits(s string) int {
	n := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			n++
		}
	}
	return n
}

func hasFraction(token string) bool {
	i := strings.LastIndexAny(token, ".,")
	if i < 0 {
		return false
	}
	tail := len(token) - i - 1
	return tail == 1 || tail == 2
}

// IsExpenseText reports whether the text reads like an outgoing payment.
func IsExpenseText(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range expenseKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// StandardizeCurrency maps currency symbols and local abbreviations to ISO
// codes. Three-letter Latin codes are upper-cased; anything else is returned
// trimmed and unchanged.
func StandardizeCurrency(s string) string {
	trimmed := strings.TrimSpace(s)
	if code, ok := currencySymbols[strings.ToLower(trimmed)]; ok {
		return code
	}
	if len(trimmed) == 3 && isLatin(trimmed) {
		return strings.ToUpper(trimmed)
	}
	return trimmed
}

// DetectCurrency looks for an ISO code or a known symbol in free text.
func DetectCurrency(text string) (string, bool) {
	if m := isoCodes.FindString(strings.ToUpper(text)); m != "" {
		return m, true
	}
	lower := strings.ToLower(text)
	for _, symbol := range []string{"₸", "тенге", "₽", "руб", "€", "£", "¥", "$"} {
		if strings.Contains(lower, symbol) {
			return currencySymbols[symbol], true
		}
	}
	return "", false
}

func isLatin(s string) bool {
	for _, r := range s {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z') {
			return false
		}
	}
	return true
}
