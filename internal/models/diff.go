package models

import (
	"encoding/json"
	"fmt"
)

// DiffKind names the variant of a Diff.
type DiffKind string

const (
	DiffSnapshot DiffKind = "snapshot"
	DiffPatch    DiffKind = "patch"
)

// Diff records what an auto-fix changed so it can be rolled back. It is a
// closed union: the only implementations are SnapshotDiff and PatchDiff.
type Diff interface {
	Kind() DiffKind
	sealed()
}

// SnapshotDiff holds full before/after copies of a grid.
type SnapshotDiff struct {
	Before Grid `json:"before"`
	After  Grid `json:"after"`
}

func (SnapshotDiff) Kind() DiffKind { return DiffSnapshot }
func (SnapshotDiff) sealed()        {}

// MarshalJSON tags the variant.
func (d SnapshotDiff) MarshalJSON() ([]byte, error) {
	type alias SnapshotDiff
	return json.Marshal(struct {
		Kind DiffKind `json:"kind"`
		alias
	}{DiffSnapshot, alias(d)})
}

// PatchOpKind identifies a single patch operation.
type PatchOpKind string

const (
	OpSetField  PatchOpKind = "set_field"
	OpRemoveRow PatchOpKind = "remove_row"
)

// PatchOp is one change to a transaction list. Row is the index at the time
// the operation was applied. Before and After hold Transaction.Field values
// for set_field; Removed holds the dropped transaction for remove_row.
type PatchOp struct {
	Kind    PatchOpKind  `json:"kind"`
	Row     int          `json:"row"`
	Field   string       `json:"field,omitempty"`
	Before  interface{}  `json:"before,omitempty"`
	After   interface{}  `json:"after,omitempty"`
	Removed *Transaction `json:"removed,omitempty"`
}

// PatchDiff is an ordered list of operations against a transaction list.
type PatchDiff struct {
	Ops []PatchOp `json:"ops"`
}

func (PatchDiff) Kind() DiffKind { return DiffPatch }
func (PatchDiff) sealed()        {}

// MarshalJSON tags the variant.
func (d PatchDiff) MarshalJSON() ([]byte, error) {
	type alias PatchDiff
	return json.Marshal(struct {
		Kind DiffKind `json:"kind"`
		alias
	}{DiffPatch, alias(d)})
}

// SetFieldOp records a field change on tx at row and applies it.
func SetFieldOp(tx *Transaction, row int, field string, after interface{}) (PatchOp, error) {
	before, ok := tx.Field(field)
	if !ok {
		return PatchOp{}, fmt.Errorf("unknown transaction field %q", field)
	}
	if err := tx.SetField(field, after); err != nil {
		return PatchOp{}, err
	}
	return PatchOp{Kind: OpSetField, Row: row, Field: field, Before: before, After: after}, nil
}

// RevertGrid undoes a grid diff and returns the grid as it was before the fix.
func RevertGrid(d Diff) (Grid, error) {
	switch v := d.(type) {
	case SnapshotDiff:
		return v.Before.Clone(), nil
	case PatchDiff:
		return nil, fmt.Errorf("patch diff cannot be applied to a grid")
	default:
		return nil, fmt.Errorf("unknown diff variant %T", d)
	}
}

// RevertTransactions undoes a transaction diff against the list the fix
// produced. The input slice is not modified.
func RevertTransactions(current []Transaction, d Diff) ([]Transaction, error) {
	switch v := d.(type) {
	case PatchDiff:
		out := CloneTransactions(current)
		for i := len(v.Ops) - 1; i >= 0; i-- {
			op := v.Ops[i]
			switch op.Kind {
			case OpSetField:
				if op.Row < 0 || op.Row >= len(out) {
					return nil, fmt.Errorf("patch op %d: row %d out of range", i, op.Row)
				}
				if err := out[op.Row].SetField(op.Field, op.Before); err != nil {
					return nil, fmt.Errorf("patch op %d: %w", i, err)
				}
			case OpRemoveRow:
				if op.Removed == nil || op.Row < 0 || op.Row > len(out) {
					return nil, fmt.Errorf("patch op %d: cannot restore row %d", i, op.Row)
				}
				out = append(out, Transaction{})
				copy(out[op.Row+1:], out[op.Row:])
				out[op.Row] = *op.Removed
			default:
				return nil, fmt.Errorf("patch op %d: unknown kind %q", i, op.Kind)
			}
		}
		return out, nil
	case SnapshotDiff:
		return nil, fmt.Errorf("snapshot diff cannot be applied to transactions")
	default:
		return nil, fmt.Errorf("unknown diff variant %T", d)
	}
}
