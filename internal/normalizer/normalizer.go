// Package normalizer converts locale-formatted amount and date strings into
// decimals and times. Nothing here panics on garbage input; callers get
// ok=false instead.
package normalizer

import (
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Normalizer parses amounts and dates found in statement cells and text.
type Normalizer interface {
	NormalizeDate(text string) (time.Time, bool)
	NormalizeAmount(text, locale string) (decimal.Decimal, bool)
}

// Supported locales. Anything else falls back to separator heuristics.
const (
	LocaleRU = "ru"
	LocaleKK = "kk"
	LocaleEN = "en"
)

// LocaleNormalizer is the default Normalizer.
type LocaleNormalizer struct {
	layouts []string
}

// New returns a LocaleNormalizer with the standard date layouts.
func New() *LocaleNormalizer {
	return &LocaleNormalizer{
		layouts: []string{
			"2006-01-02",
			time.RFC3339,
			"2006-01-02T15:04:05",
			"2006-01-02 15:04:05",
			"02.01.2006",
			"02.01.2006 15:04",
			"02.01.2006 15:04:05",
			"02.01.06",
			"02/01/2006",
			"2006/01/02",
			"02-01-2006",
			"Jan 2, 2006",
			"2 Jan 2006",
			"January 2, 2006",
		},
	}
}

// Default is shared by engines that are not given a Normalizer.
var Default Normalizer = New()

// NormalizeDate tries each known layout in order.
func (n *LocaleNormalizer) NormalizeDate(text string) (time.Time, bool) {
	s := strings.TrimSpace(text)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range n.layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

var (
	currencyTokens = []string{"тенге", "тг.", "тг", "₸", "руб.", "руб", "₽", "$", "€", "£", "¥",
		"kzt", "rub", "rur", "usd", "eur", "gbp", "cny"}
	plainNumber = regexp.MustCompile(`^\d+(\.\d+)?$`)
)

// NormalizeAmount parses text as a money amount in the given locale.
// Parentheses, a leading minus or a trailing minus make the result negative.
func (n *LocaleNormalizer) NormalizeAmount(text, locale string) (decimal.Decimal, bool) {
	s := strings.ToLower(strings.TrimSpace(text))
	if s == "" {
		return decimal.Zero, false
	}

	for _, token := range currencyTokens {
		s = strings.ReplaceAll(s, token, "")
	}
	s = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\u00a0', '\u202f', '\t', '\'', '’':
			return -1
		case '−', '–':
			return '-'
		}
		return r
	}, s)

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}
	if strings.HasPrefix(s, "-") {
		negative = !negative
		s = s[1:]
	} else if strings.HasSuffix(s, "-") {
		negative = !negative
		s = s[:len(s)-1]
	}
	s = strings.TrimPrefix(s, "+")

	s, ok := canonicalSeparators(s, baseLocale(locale))
	if !ok || !plainNumber.MatchString(s) {
		return decimal.Zero, false
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	if negative {
		d = d.Neg()
	}
	return d, true
}

func baseLocale(locale string) string {
	l := strings.ToLower(strings.TrimSpace(locale))
	if i := strings.IndexAny(l, "-_"); i >= 0 {
		l = l[:i]
	}
	return l
}

// canonicalSeparators rewrites s so that '.' is the only, optional, decimal
// separator.
func canonicalSeparators(s, locale string) (string, bool) {
	dots := strings.Count(s, ".")
	commas := strings.Count(s, ",")

	switch locale {
	case LocaleRU, LocaleKK:
		if commas > 1 {
			return "", false
		}
		if commas == 1 {
			return strings.Replace(strings.ReplaceAll(s, ".", ""), ",", ".", 1), true
		}
		if dots > 1 {
			return strings.ReplaceAll(s, ".", ""), true
		}
		return s, true
	case LocaleEN:
		if dots > 1 {
			return "", false
		}
		return strings.ReplaceAll(s, ",", ""), true
	}

	// Unknown locale: the last separator is the decimal one when both occur.
	if dots > 0 && commas > 0 {
		if strings.LastIndex(s, ".") > strings.LastIndex(s, ",") {
			return strings.ReplaceAll(s, ",", ""), dots == 1
		}
		return strings.Replace(strings.ReplaceAll(s, ".", ""), ",", ".", 1), commas == 1
	}
	if commas > 1 {
		return strings.ReplaceAll(s, ",", ""), true
	}
	if dots > 1 {
		return strings.ReplaceAll(s, ".", ""), true
	}
	if commas == 1 {
		i := strings.Index(s, ",")
		if len(s)-i-1 == 3 {
			return strings.Replace(s, ",", "", 1), true
		}
		return strings.Replace(s, ",", ".", 1), true
	}
	return s, true
}
