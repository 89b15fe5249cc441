package models

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

func TestRevertGrid(t *testing.T) {
	before := Grid{{"a", "b"}, {"", ""}}
	after := Grid{{"a", "b"}}

	got, err := RevertGrid(SnapshotDiff{Before: before, After: after})
	if err != nil {
		t.Fatalf("RevertGrid() error = %v", err)
	}
	if !got.Equal(before) {
		t.Errorf("RevertGrid() = %v, want %v", got, before)
	}

	if _, err := RevertGrid(PatchDiff{}); err == nil {
		t.Error("expected error reverting a patch diff onto a grid")
	}
}

func TestRevertTransactions(t *testing.T) {
	original := []Transaction{
		{CounterpartyName: "A", Currency: "₸", Debit: Amount(decimal.NewFromInt(10))},
		{CounterpartyName: "ИТОГО", PaymentPurpose: "итого 10"},
		{CounterpartyName: "B", Credit: Amount(decimal.NewFromInt(5))},
	}

	working := CloneTransactions(original)
	var ops []PatchOp

	op, err := SetFieldOp(&working[0], 0, FieldCurrency, "KZT")
	if err != nil {
		t.Fatalf("SetFieldOp() error = %v", err)
	}
	ops = append(ops, op)

	removed := working[1]
	working = append(working[:1], working[2:]...)
	ops = append(ops, PatchOp{Kind: OpRemoveRow, Row: 1, Removed: &removed})

	op, err = SetFieldOp(&working[1], 1, FieldCredit, Amount(decimal.NewFromInt(6)))
	if err != nil {
		t.Fatalf("SetFieldOp() error = %v", err)
	}
	ops = append(ops, op)

	if working[0].Currency != "KZT" || len(working) != 2 {
		t.Fatalf("unexpected working list %v", working)
	}

	reverted, err := RevertTransactions(working, PatchDiff{Ops: ops})
	if err != nil {
		t.Fatalf("RevertTransactions() error = %v", err)
	}
	if len(reverted) != len(original) {
		t.Fatalf("expected %d rows, got %d", len(original), len(reverted))
	}
	for i := range original {
		if reverted[i] != original[i] {
			t.Errorf("row %d = %v, want %v", i, reverted[i], original[i])
		}
	}
	if working[0].Currency != "KZT" {
		t.Error("RevertTransactions() modified its input")
	}
}

func TestRevertTransactions_Errors(t *testing.T) {
	if _, err := RevertTransactions(nil, SnapshotDiff{}); err == nil {
		t.Error("expected error reverting a snapshot onto transactions")
	}

	bad := PatchDiff{Ops: []PatchOp{{Kind: OpSetField, Row: 3, Field: FieldCurrency, Before: "X"}}}
	if _, err := RevertTransactions([]Transaction{{}}, bad); err == nil {
		t.Error("expected out-of-range error")
	}
}

func TestSetFieldOp_TypeMismatch(t *testing.T) {
	tx := Transaction{}
	if _, err := SetFieldOp(&tx, 0, FieldDebit, "100"); err == nil {
		t.Error("expected type error for string debit")
	}
	if _, err := SetFieldOp(&tx, 0, "unknown", "x"); err == nil {
		t.Error("expected error for unknown field")
	}
}

func TestDiffJSONKind(t *testing.T) {
	data, err := json.Marshal([]Diff{SnapshotDiff{Before: Grid{{"a"}}}, PatchDiff{}})
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	s := string(data)
	if !strings.Contains(s, `"kind":"snapshot"`) || !strings.Contains(s, `"kind":"patch"`) {
		t.Errorf("variant tags missing in %s", s)
	}
}
