package normalization

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"

	"statement-quality-service/internal/models"
	"statement-quality-service/pkg/logger"
)

// ProcessBatch normalizes independent statements concurrently, at most
// MaxConcurrency at a time. Each pipeline works on its own copy of the input.
// Results are returned in input order and a failing statement never affects
// the others.
func (o *Orchestrator) ProcessBatch(ctx context.Context, statements []Statement) []*NormalizationResult {
	results := make([]*NormalizationResult, len(statements))
	progress := logger.NewBatchProgress(logger.ProgressConfig{
		Operation: "normalize statements",
		Total:     int64(len(statements)),
		Logger:    o.logger,
	})

	p := pool.New().WithMaxGoroutines(o.config.MaxConcurrency)
	for i, stmt := range statements {
		p.Go(func() {
			res, err := o.Normalize(ctx, stmt.clone())
			if err != nil {
				res = o.rejected(err)
			}
			results[i] = res
			progress.Observe(res.Failed())
		})
	}
	p.Wait()
	progress.Complete()

	return results
}

// rejected builds the failed result for a statement that could not start.
func (o *Orchestrator) rejected(err error) *NormalizationResult {
	now := o.config.Now()
	return &NormalizationResult{
		RunID:        uuid.NewString(),
		State:        StateFailed,
		Transitions:  []Transition{{From: StateReceived, To: StateFailed, At: now}},
		Transactions: []models.Transaction{},
		Errors:       []string{fmt.Sprintf("statement rejected: %v", err)},
		Warnings:     []string{},
		OracleNotes:  []string{},
		StartedAt:    now,
		FinishedAt:   now,
	}
}
