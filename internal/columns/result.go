package columns

import (
	"sort"

	"statement-quality-service/internal/models"
)

// IssueKind classifies a column finding.
type IssueKind string

const (
	IssueMissingColumn      IssueKind = "missing_column"
	IssueExtraColumn        IssueKind = "extra_column"
	IssueMisalignedColumn   IssueKind = "misaligned_column"
	IssueTypeMismatch       IssueKind = "type_mismatch"
	IssueEmptyCriticalField IssueKind = "empty_critical_field"
)

// ColumnIssue is consolidated on (Kind, Field): rows are merged and the worst
// severity is kept.
type ColumnIssue struct {
	Kind        IssueKind       `json:"kind"`
	Field       string          `json:"field"`
	Rows        []int           `json:"rows"`
	Severity    models.Severity `json:"severity"`
	AutoFixable bool            `json:"auto_fixable"`
	Description string          `json:"description"`
}

// FixType names an applied repair.
type FixType string

const (
	FixColumnRealigned    FixType = "column_realigned"
	FixFieldInferred      FixType = "field_inferred"
	FixDefaultApplied     FixType = "default_applied"
	FixTypeCoerced        FixType = "type_coerced"
	FixDataTypeMismatch   FixType = "data_type_mismatch"
	FixAmountExtracted    FixType = "amount_extracted"
	FixDocumentNumber     FixType = "document_number_extracted"
	FixBINExtracted       FixType = "bin_extracted"
	FixCurrencyFilled     FixType = "currency_filled"
	FixExchangeRateFilled FixType = "exchange_rate_filled"
)

// AppliedFix aggregates one kind of repair over the whole run.
type AppliedFix struct {
	Type         FixType `json:"type"`
	Field        string  `json:"field"`
	AffectedRows int     `json:"affected_rows"`
	Confidence   float64 `json:"confidence"`
	Description  string  `json:"description"`
}

// Metrics summarize how complete the fixed records are.
type Metrics struct {
	TotalFields       int     `json:"total_fields"`
	FilledFields      int     `json:"filled_fields"`
	ColumnsWithData   int     `json:"columns_with_data"`
	CompletenessRatio float64 `json:"completeness_ratio"`
	AlignmentScore    float64 `json:"alignment_score"`
	DataQualityScore  float64 `json:"data_quality_score"`
}

// ColumnInconsistencyResult is returned by ValidateAndFixColumns.
type ColumnInconsistencyResult struct {
	Records []models.Record `json:"records"`
	Issues  []ColumnIssue   `json:"issues"`
	Fixes   []AppliedFix    `json:"fixes"`
	Metrics Metrics         `json:"metrics"`
}

// TransactionFixResult is returned by ValidateAndFixTransactions.
type TransactionFixResult struct {
	*ColumnInconsistencyResult
	Transactions []models.Transaction `json:"transactions"`
}

type issueKey struct {
	kind  IssueKind
	field string
}

// issueSet consolidates issues while keeping first-seen order.
type issueSet struct {
	order []issueKey
	byKey map[issueKey]*ColumnIssue
	rows  map[issueKey]map[int]bool
}

func newIssueSet() *issueSet {
	return &issueSet{
		byKey: make(map[issueKey]*ColumnIssue),
		rows:  make(map[issueKey]map[int]bool),
	}
}

func (s *issueSet) add(kind IssueKind, field string, row int, severity models.Severity, autoFixable bool, description string) {
	key := issueKey{kind, field}
	issue, ok := s.byKey[key]
	if !ok {
		issue = &ColumnIssue{Kind: kind, Field: field, Severity: severity, AutoFixable: autoFixable, Description: description}
		s.byKey[key] = issue
		s.rows[key] = make(map[int]bool)
		s.order = append(s.order, key)
	} else {
		issue.Severity = models.Worst(issue.Severity, severity)
		issue.AutoFixable = issue.AutoFixable && autoFixable
	}
	if row >= 0 {
		s.rows[key][row] = true
	}
}

func (s *issueSet) list() []ColumnIssue {
	out := make([]ColumnIssue, 0, len(s.order))
	for _, key := range s.order {
		issue := *s.byKey[key]
		issue.Rows = make([]int, 0, len(s.rows[key]))
		for r := range s.rows[key] {
			issue.Rows = append(issue.Rows, r)
		}
		sort.Ints(issue.Rows)
		out = append(out, issue)
	}
	return out
}

type fixKey struct {
	fixType FixType
	field   string
}

// fixSet counts affected rows per fix kind.
type fixSet struct {
	order []fixKey
	fixes map[fixKey]*AppliedFix
}

func newFixSet() *fixSet {
	return &fixSet{fixes: make(map[fixKey]*AppliedFix)}
}

func (s *fixSet) add(fixType FixType, field string, confidence float64, description string) {
	key := fixKey{fixType, field}
	fix, ok := s.fixes[key]
	if !ok {
		fix = &AppliedFix{Type: fixType, Field: field, Confidence: confidence, Description: description}
		s.fixes[key] = fix
		s.order = append(s.order, key)
	}
	fix.AffectedRows++
}

func (s *fixSet) list() []AppliedFix {
	out := make([]AppliedFix, 0, len(s.order))
	for _, key := range s.order {
		out = append(out, *s.fixes[key])
	}
	return out
}

// record adds a fix computed by a whole-run pass.
func (s *fixSet) record(fix AppliedFix) {
	if fix.AffectedRows == 0 {
		return
	}
	key := fixKey{fix.Type, fix.Field}
	if existing, ok := s.fixes[key]; ok {
		existing.AffectedRows += fix.AffectedRows
		return
	}
	s.fixes[key] = &fix
	s.order = append(s.order, key)
}
