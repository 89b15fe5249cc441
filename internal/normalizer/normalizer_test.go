package normalizer

import (
	"testing"
	"time"
)

func TestNormalizeAmount(t *testing.T) {
	n := New()
	tests := []struct {
		name   string
		text   string
		locale string
		want   string
		ok     bool
	}{
		{"ru thousands and comma", "1 234,56", "ru", "1234.56", true},
		{"kk nbsp and tenge", "12 500,00 ₸", "kk", "12500", true},
		{"kk dotted thousands", "1.234.567", "kk-KZ", "1234567", true},
		{"en thousands", "$1,234.50", "en", "1234.5", true},
		{"en multiple dots", "1.2.3", "en", "0", false},
		{"heuristic last separator comma", "1.234,5", "", "1234.5", true},
		{"heuristic last separator dot", "1,234.5", "", "1234.5", true},
		{"heuristic comma thousands", "1,234", "", "1234", true},
		{"heuristic comma decimal", "12,5", "", "12.5", true},
		{"parentheses negative", "(100.00)", "en", "-100", true},
		{"trailing minus", "250,00-", "ru", "-250", true},
		{"unicode minus", "−42", "", "-42", true},
		{"iso code suffix", "100 KZT", "", "100", true},
		{"apostrophe thousands", "1'000", "", "1000", true},
		{"empty", "   ", "ru", "0", false},
		{"garbage", "abc", "ru", "0", false},
		{"mixed garbage", "12 apples", "en", "0", false},
		{"lonely minus", "-", "", "0", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := n.NormalizeAmount(tt.text, tt.locale)
			if ok != tt.ok {
				t.Fatalf("NormalizeAmount(%q) ok = %v, want %v", tt.text, ok, tt.ok)
			}
			if got.String() != tt.want {
				t.Errorf("NormalizeAmount(%q) = %s, want %s", tt.text, got, tt.want)
			}
		})
	}
}

func TestNormalizeDate(t *testing.T) {
	n := New()
	want := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)

	for _, text := range []string{"2024-01-05", "05.01.2024", "05.01.24", "05/01/2024", "2024/01/05", "05-01-2024", "Jan 5, 2024", "5 Jan 2024", "January 5, 2024"} {
		got, ok := n.NormalizeDate(text)
		if !ok {
			t.Errorf("NormalizeDate(%q) failed", text)
			continue
		}
		if !got.Equal(want) {
			t.Errorf("NormalizeDate(%q) = %v, want %v", text, got, want)
		}
	}

	got, ok := n.NormalizeDate("05.01.2024 13:45")
	if !ok || got.Hour() != 13 {
		t.Errorf("NormalizeDate with time = %v, %v", got, ok)
	}

	for _, text := range []string{"", "yesterday", "32.13.2024", "12345"} {
		if _, ok := n.NormalizeDate(text); ok {
			t.Errorf("NormalizeDate(%q) should fail", text)
		}
	}
}

func TestExtractAmount(t *testing.T) {
	tests := []struct {
		text string
		want string
		ok   bool
	}{
		{"Оплата по счету №123 от 05.01.2024 сумма 1 500,00 тг", "1500", true},
		{"payment 250", "250", true},
		{"БИН 123456789012 возврат 75,50", "75.5", true},
		{"invoice #77 settled", "0", false},
		{"no digits at all", "0", false},
	}

	for _, tt := range tests {
		got, ok := ExtractAmount(tt.text, "ru")
		if ok != tt.ok || got.String() != tt.want {
			t.Errorf("ExtractAmount(%q) = %s, %v; want %s, %v", tt.text, got, ok, tt.want, tt.ok)
		}
	}
}

func TestIsExpenseText(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"Оплата за аренду", true},
		{"Card PURCHASE at store", true},
		{"Комиссия банка", true},
		{"Поступление от клиента", false},
		{"salary", false},
	}

	for _, tt := range tests {
		if got := IsExpenseText(tt.text); got != tt.want {
			t.Errorf("IsExpenseText(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

func TestStandardizeCurrency(t *testing.T) {
	tests := map[string]string{
		"₽":     "RUB",
		"$":     "USD",
		"€":     "EUR",
		"£":     "GBP",
		"¥":     "CNY",
		"₸":     "KZT",
		"тг":    "KZT",
		"Тенге": "KZT",
		"usd":   "USD",
		" KZT ": "KZT",
		"рубль": "рубль",
		"":      "",
	}

	for in, want := range tests {
		if got := StandardizeCurrency(in); got != want {
			t.Errorf("StandardizeCurrency(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestDetectCurrency(t *testing.T) {
	if code, ok := DetectCurrency("Transfer 100 usd to supplier"); !ok || code != "USD" {
		t.Errorf("DetectCurrency() = %q, %v", code, ok)
	}
	if code, ok := DetectCurrency("Оплата 5000 ₸"); !ok || code != "KZT" {
		t.Errorf("DetectCurrency() = %q, %v", code, ok)
	}
	if _, ok := DetectCurrency("no currency here"); ok {
		t.Error("expected no currency")
	}
}
