package checksum

import (
	"regexp"
	"testing"

	"github.com/shopspring/decimal"
)

func TestDefaultPatternsExtractEachType(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		wantType TotalType
		want     string
	}{
		{"ru debit total", "Итого по дебету: 1 234,56", DebitTotal, "1234.56"},
		{"ru credit total", "Всего по кредиту 500", CreditTotal, "500"},
		{"ru debit turnover", "Обороты по дебету: 10,00", DebitTotal, "10"},
		{"ru credit turnover", "Оборот по кредиту - 75,5", CreditTotal, "75.5"},
		{"en debit total", "Total debits: 1,234.56", DebitTotal, "1234.56"},
		{"en credit total", "Total deposits 99.5", CreditTotal, "99.5"},
		{"ru closing balance", "Исходящий остаток: 2 000,00", BalanceTotal, "2000"},
		{"ru period end balance", "Остаток на конец периода 150,25", BalanceTotal, "150.25"},
		{"en closing balance", "Closing balance: 3,000.00", BalanceTotal, "3000"},
		{"ru turnover", "Итого обороты: 700,00", TurnoverTotal, "700"},
		{"en turnover", "Total turnover - 42", TurnoverTotal, "42"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			totals := ExtractControlTotals(tt.text)
			if len(totals) != 1 {
				t.Fatalf("expected one control total, got %+v", totals)
			}
			got := totals[0]
			if got.Type != tt.wantType {
				t.Errorf("type = %s, want %s", got.Type, tt.wantType)
			}
			if !got.Expected.Equal(decimal.RequireFromString(tt.want)) {
				t.Errorf("expected = %s, want %s", got.Expected, tt.want)
			}
			if got.Source != SourceExtracted || got.Reliability != defaultExtractedReliability {
				t.Errorf("unexpected source/reliability %+v", got)
			}
		})
	}
}

func TestExtractControlTotalsNoMatch(t *testing.T) {
	for _, text := range []string{"", "Оплата по счету 15", "balance transfer", "Итого"} {
		if totals := ExtractControlTotals(text); len(totals) != 0 {
			t.Errorf("%q: expected no totals, got %+v", text, totals)
		}
	}
}

func TestExtractControlTotalsOrderedByType(t *testing.T) {
	totals := ExtractControlTotals("Итого по кредиту: 200,00; Итого по дебету: 100,00")
	if len(totals) != 2 {
		t.Fatalf("expected two totals, got %+v", totals)
	}
	if totals[0].Type != DebitTotal || totals[1].Type != CreditTotal {
		t.Errorf("expected debit then credit, got %s, %s", totals[0].Type, totals[1].Type)
	}
}

func TestPatternPriority(t *testing.T) {
	set := PatternSet{
		{Type: DebitTotal, Label: "late", Language: "en", Priority: 5, Regexp: regexp.MustCompile(`(?i)spent\s+(\d+)`)},
		{Type: DebitTotal, Label: "early", Language: "en", Priority: 1, Regexp: regexp.MustCompile(`(?i)paid\s+(\d+)`)},
	}
	totals := set.Extract("spent 10 paid 20", 0.8)
	if len(totals) != 1 {
		t.Fatalf("expected one total, got %+v", totals)
	}
	if totals[0].Label != "early" || !totals[0].Expected.Equal(decimal.NewFromInt(20)) {
		t.Errorf("expected the higher-priority pattern to win, got %+v", totals[0])
	}
}

func TestPatternSetValidate(t *testing.T) {
	if err := PatternSet(DefaultPatterns()).Validate(); err != nil {
		t.Fatalf("default patterns invalid: %v", err)
	}

	tests := []struct {
		name string
		set  PatternSet
	}{
		{"nil regexp", PatternSet{{Type: DebitTotal, Label: "x"}}},
		{"no capture", PatternSet{{Type: DebitTotal, Label: "x", Regexp: regexp.MustCompile(`total`)}}},
		{"bad type", PatternSet{{Type: "sum", Label: "x", Regexp: regexp.MustCompile(`(\d+)`)}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.set.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
