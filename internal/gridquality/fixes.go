package gridquality

import (
	"fmt"
	"sort"

	"statement-quality-service/internal/models"
)

// Fix records one applied repair with full before/after snapshots.
type Fix struct {
	IssueType    IssueType   `json:"issue_type"`
	Description  string      `json:"description"`
	RowsAffected int         `json:"rows_affected"`
	Diff         models.Diff `json:"diff"`
}

// fixFunc repairs one issue. It must not modify its input and returns nil
// when the issue needs no change or cannot be fixed automatically.
type fixFunc func(grid models.Grid, issue Issue, options *Options) (models.Grid, *Fix)

var fixers = map[IssueType]fixFunc{
	IssueInconsistentColumns: fixColumnCounts,
	IssueMissingColumns:      fixMissingColumns,
	IssueMissingData:         fixBlankRows,
	IssueDuplicateRows:       fixDuplicateRows,
}

// applyFixes folds the issue list over the grid, each fix consuming the
// previous output.
func applyFixes(grid models.Grid, issues []Issue, options *Options) (models.Grid, []Fix) {
	var fixes []Fix
	for _, issue := range issues {
		next, fix := applyFix(grid, issue, options)
		if fix == nil {
			continue
		}
		fixes = append(fixes, *fix)
		grid = next
	}
	return grid, fixes
}

func applyFix(grid models.Grid, issue Issue, options *Options) (models.Grid, *Fix) {
	fixer, ok := fixers[issue.Type]
	if !ok {
		return grid, nil
	}
	next, fix := fixer(grid, issue, options)
	if fix == nil {
		return grid, nil
	}
	fix.IssueType = issue.Type
	fix.Diff = models.SnapshotDiff{Before: grid.Clone(), After: next.Clone()}
	return next, fix
}

// modeColumnCount returns the most common row length; ties go to the longer
// length so padding wins over truncation.
func modeColumnCount(grid models.Grid) int {
	counts := make(map[int]int)
	for _, row := range grid {
		counts[len(row)]++
	}
	lengths := make([]int, 0, len(counts))
	for l := range counts {
		lengths = append(lengths, l)
	}
	sort.Ints(lengths)

	mode, best := 0, -1
	for _, l := range lengths {
		if counts[l] >= best {
			mode, best = l, counts[l]
		}
	}
	return mode
}

func resize(row []string, width int) []string {
	out := make([]string, width)
	copy(out, row)
	return out
}

func fixColumnCounts(grid models.Grid, _ Issue, _ *Options) (models.Grid, *Fix) {
	width := modeColumnCount(grid)
	out := make(models.Grid, len(grid))
	changed := 0
	for i, row := range grid {
		if len(row) != width {
			changed++
		}
		out[i] = resize(row, width)
	}
	if changed == 0 {
		return grid, nil
	}
	return out, &Fix{
		Description:  fmt.Sprintf("padded or truncated %d rows to %d columns", changed, width),
		RowsAffected: changed,
	}
}

func fixMissingColumns(grid models.Grid, _ Issue, options *Options) (models.Grid, *Fix) {
	width := options.ExpectedColumns
	out := make(models.Grid, len(grid))
	changed := 0
	for i, row := range grid {
		if len(row) < width {
			changed++
			out[i] = resize(row, width)
			continue
		}
		out[i] = append([]string(nil), row...)
	}
	if changed == 0 {
		return grid, nil
	}
	return out, &Fix{
		Description:  fmt.Sprintf("appended blank cells to %d rows to reach %d columns", changed, width),
		RowsAffected: changed,
	}
}

func fixBlankRows(grid models.Grid, _ Issue, _ *Options) (models.Grid, *Fix) {
	out := make(models.Grid, 0, len(grid))
	for _, row := range grid {
		if isBlankRow(row) {
			continue
		}
		out = append(out, append([]string(nil), row...))
	}
	removed := len(grid) - len(out)
	if removed == 0 {
		return grid, nil
	}
	return out, &Fix{
		Description:  fmt.Sprintf("removed %d empty rows", removed),
		RowsAffected: removed,
	}
}

func fixDuplicateRows(grid models.Grid, _ Issue, _ *Options) (models.Grid, *Fix) {
	out := make(models.Grid, 0, len(grid))
	seen := make(map[string]bool, len(grid))
	for _, row := range grid {
		if !isBlankRow(row) {
			key := normalizeRow(row)
			if seen[key] {
				continue
			}
			seen[key] = true
		}
		out = append(out, append([]string(nil), row...))
	}
	removed := len(grid) - len(out)
	if removed == 0 {
		return grid, nil
	}
	return out, &Fix{
		Description:  fmt.Sprintf("removed %d duplicate rows", removed),
		RowsAffected: removed,
	}
}

// Rollback undoes the last n fixes of a report and returns the grid as it was
// before them. n = 0 returns a copy of the fixed grid.
func Rollback(report *QualityReport, n int) (models.Grid, error) {
	if report == nil {
		return nil, fmt.Errorf("nil report")
	}
	if n < 0 || n > len(report.Fixes) {
		return nil, fmt.Errorf("cannot roll back %d of %d fixes", n, len(report.Fixes))
	}

	grid := report.FixedGrid.Clone()
	for i := len(report.Fixes) - 1; i >= len(report.Fixes)-n; i-- {
		before, err := models.RevertGrid(report.Fixes[i].Diff)
		if err != nil {
			return nil, fmt.Errorf("fix %d (%s): %w", i, report.Fixes[i].IssueType, err)
		}
		grid = before
	}
	return grid, nil
}
