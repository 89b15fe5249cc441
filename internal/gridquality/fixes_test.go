package gridquality

import (
	"testing"

	"statement-quality-service/internal/models"
)

func TestApplyFix_IsPure(t *testing.T) {
	grid := models.Grid{{"a", "b"}, {"", ""}, {"a", "b"}}
	snapshot := grid.Clone()

	next, fix := applyFix(grid, Issue{Type: IssueMissingData}, &Options{})
	if fix == nil {
		t.Fatal("expected a fix")
	}
	if !grid.Equal(snapshot) {
		t.Error("applyFix modified its input")
	}
	if len(next) != 2 {
		t.Errorf("expected 2 rows, got %d", len(next))
	}

	diff, ok := fix.Diff.(models.SnapshotDiff)
	if !ok {
		t.Fatalf("expected snapshot diff, got %T", fix.Diff)
	}
	if !diff.Before.Equal(snapshot) || !diff.After.Equal(next) {
		t.Error("snapshot diff does not match the fix")
	}
}

func TestApplyFix_NoChangeYieldsNoFix(t *testing.T) {
	grid := models.Grid{{"a"}, {"b"}}
	for _, it := range []IssueType{IssueMissingData, IssueDuplicateRows, IssueInconsistentColumns, IssueDateParseErrors} {
		if _, fix := applyFix(grid, Issue{Type: it}, &Options{}); fix != nil {
			t.Errorf("%s: expected no fix on a clean grid, got %+v", it, fix)
		}
	}
}

func TestModeColumnCount(t *testing.T) {
	tests := []struct {
		grid models.Grid
		want int
	}{
		{models.Grid{{"a", "b"}, {"a", "b"}, {"a"}}, 2},
		{models.Grid{{"a"}, {"a"}, {"a", "b", "c"}}, 1},
		{models.Grid{{"a"}, {"a", "b"}}, 2},
	}
	for _, tt := range tests {
		if got := modeColumnCount(tt.grid); got != tt.want {
			t.Errorf("modeColumnCount(%v) = %d, want %d", tt.grid, got, tt.want)
		}
	}
}

func TestRollback(t *testing.T) {
	grid := models.Grid{
		{"x", "1"},
		{"", ""},
		{"", ""},
		{"", ""},
		{"x", "1"},
		{"y", "2"},
	}

	report, err := AnalyzeGridQuality(grid, &Options{AutoFix: true})
	if err != nil {
		t.Fatalf("AnalyzeGridQuality() error = %v", err)
	}
	if len(report.Fixes) != 2 {
		t.Fatalf("expected 2 fixes, got %+v", report.Fixes)
	}

	afterFirst, err := Rollback(report, 1)
	if err != nil {
		t.Fatalf("Rollback(1) error = %v", err)
	}
	if len(afterFirst) != 3 {
		t.Errorf("expected 3 rows after undoing dedup, got %d", len(afterFirst))
	}

	restored, err := Rollback(report, 2)
	if err != nil {
		t.Fatalf("Rollback(2) error = %v", err)
	}
	if !restored.Equal(grid) {
		t.Errorf("Rollback(all) = %v, want %v", restored, grid)
	}

	same, err := Rollback(report, 0)
	if err != nil || !same.Equal(report.FixedGrid) {
		t.Errorf("Rollback(0) = %v, %v", same, err)
	}

	if _, err := Rollback(report, 3); err == nil {
		t.Error("expected error rolling back more fixes than applied")
	}
}
