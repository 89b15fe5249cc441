// Package dedup removes repeated transactions using a tolerant identity key.
package dedup

import (
	"fmt"
	"strings"

	"statement-quality-service/internal/models"
	"statement-quality-service/pkg/logger"
)

// Group lists the input positions that collapsed onto one key.
type Group struct {
	GroupID string `json:"group_id"`
	Key     string `json:"key"`
	// Kept is the input index of the surviving transaction.
	Kept    int    `json:"kept"`
	Members []int  `json:"members"`
	Reason  string `json:"reason"`
}

// Result is the outcome of Deduplicate.
type Result struct {
	Transactions      []models.Transaction `json:"transactions"`
	DuplicatesRemoved int                  `json:"duplicates_removed"`
	Groups            []Group              `json:"groups"`
}

// Key builds the identity key: date, signed amount, counterparty and purpose,
// the text parts lower-cased and trimmed.
func Key(tx models.Transaction) string {
	return fmt.Sprintf("%s|%s|%s|%s",
		models.FormatDate(tx.Date),
		tx.SignedAmount().StringFixed(2),
		strings.ToLower(strings.TrimSpace(tx.CounterpartyName)),
		strings.ToLower(strings.TrimSpace(tx.PaymentPurpose)))
}

// Deduplicator collapses transactions that share a Key.
type Deduplicator struct {
	logger logger.Logger
}

// New creates a deduplicator
func New() *Deduplicator {
	return &Deduplicator{logger: logger.GetGlobalLogger().WithComponent("dedup")}
}

// Deduplicate runs a default deduplicator.
func Deduplicate(txs []models.Transaction) *Result {
	return New().Deduplicate(txs)
}

// Deduplicate keeps one transaction per key. On a collision the record with
// more filled optional fields wins and a tie goes to the later record. The
// survivor takes the position of the first occurrence, so output order is
// first-seen order. The input slice is not modified.
func (d *Deduplicator) Deduplicate(txs []models.Transaction) *Result {
	out := make([]models.Transaction, 0, len(txs))
	slot := make(map[string]int, len(txs))
	groups := make(map[string]*Group)
	var order []string

	for i, tx := range txs {
		key := Key(tx)
		pos, seen := slot[key]
		if !seen {
			slot[key] = len(out)
			out = append(out, tx)
			groups[key] = &Group{Key: key, Kept: i, Members: []int{i}}
			continue
		}

		g := groups[key]
		if len(g.Members) == 1 {
			order = append(order, key)
		}
		g.Members = append(g.Members, i)
		if tx.FilledOptionalFields() >= out[pos].FilledOptionalFields() {
			out[pos] = tx
			g.Kept = i
		}
	}

	result := &Result{
		Transactions:      out,
		DuplicatesRemoved: len(txs) - len(out),
		Groups:            make([]Group, 0, len(order)),
	}
	for n, key := range order {
		g := groups[key]
		g.GroupID = fmt.Sprintf("DUP_%d", n+1)
		g.Reason = fmt.Sprintf("%d transactions share date, amount, counterparty and purpose", len(g.Members))
		result.Groups = append(result.Groups, *g)
	}

	d.logger.WithFields(logger.Fields{
		"input":   len(txs),
		"output":  len(out),
		"removed": result.DuplicatesRemoved,
		"groups":  len(result.Groups),
	}).Debug("Deduplication completed")

	return result
}
