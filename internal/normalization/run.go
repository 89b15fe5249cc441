package normalization

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"statement-quality-service/internal/gridquality"
	"statement-quality-service/internal/models"
	"statement-quality-service/pkg/errors"
	"statement-quality-service/pkg/logger"
)

// run holds the state of one pipeline execution.
type run struct {
	o       *Orchestrator
	stmt    Statement
	result  *NormalizationResult
	working []models.Transaction
	logger  logger.Logger

	started     time.Time
	lastChange  time.Time
	callbacks   []ProgressCallback
	gridQuality float64
}

func (o *Orchestrator) newRun(stmt Statement) *run {
	now := o.config.Now()
	id := uuid.NewString()
	return &run{
		o:    o,
		stmt: stmt,
		result: &NormalizationResult{
			RunID:        id,
			State:        StateReceived,
			Transitions:  []Transition{},
			Transactions: []models.Transaction{},
			Errors:       []string{},
			Warnings:     []string{},
			OracleNotes:  []string{},
			StartedAt:    now,
		},
		logger:     o.logger.WithField("run_id", id),
		started:    now,
		lastChange: now,
		callbacks:  o.progressCallbacks(),
	}
}

type stage struct {
	to State
	fn func(ctx context.Context) error
}

func (r *run) execute(ctx context.Context) (result *NormalizationResult) {
	defer func() {
		if p := recover(); p != nil {
			r.fail(errors.InternalError(errors.CodeUnexpectedError, "normalize statement", fmt.Errorf("panic: %v", p)))
			result = r.result
		}
	}()

	r.logger.WithField("transactions", len(r.stmt.Transactions)).Info("Starting statement normalization")
	r.notify(StateReceived, true)

	stages := []stage{
		{StateNormalized, r.normalize},
		{StateDeduplicated, r.deduplicate},
		{StateChecksumValidated, r.validateChecksums},
		{StateGridScored, r.scoreGrid},
		{StateDone, r.finish},
	}
	for _, s := range stages {
		if err := ctx.Err(); err != nil {
			r.fail(errors.InternalError(errors.CodeProcessingError, "normalize statement", err))
			return r.result
		}
		if err := s.fn(ctx); err != nil {
			r.fail(err)
			return r.result
		}
		r.enter(s.to)
	}

	r.logger.WithFields(logger.Fields{
		"total":              r.result.Metrics.Total,
		"failed":             r.result.Metrics.FailedNormalization,
		"duplicates_removed": r.result.Metrics.DuplicatesRemoved,
		"quality":            r.result.Metrics.DataQualityScore,
		"elapsed":            r.result.FinishedAt.Sub(r.started),
	}).Info("Statement normalization completed")
	return r.result
}

// normalize cleans each transaction, runs the column engine and the oracle.
func (r *run) normalize(ctx context.Context) error {
	cleaned := make([]models.Transaction, 0, len(r.stmt.Transactions))
	for i, tx := range r.stmt.Transactions {
		out, err := cleanOne(tx)
		if err != nil {
			r.result.Metrics.FailedNormalization++
			r.result.Warnings = append(r.result.Warnings, fmt.Sprintf("transaction %d kept as received: %v", i, err))
			r.logger.WithFields(logger.Fields{"row": i, "error": err.Error()}).Warn("Transaction cleanup failed")
			cleaned = append(cleaned, tx)
			continue
		}
		r.result.Metrics.SuccessfullyNormalized++
		cleaned = append(cleaned, out)
	}

	if r.o.config.RunColumnEngine {
		res, err := r.o.columns.ValidateAndFixTransactions(cleaned, nil)
		if err != nil {
			r.result.Warnings = append(r.result.Warnings, fmt.Sprintf("column consistency skipped: %v", err))
			r.logger.WithError(err).Warn("Column consistency engine failed")
		} else {
			cleaned = res.Transactions
			r.result.Stages.Columns = res.ColumnInconsistencyResult
		}
	}

	review := r.o.guard.Reconcile(ctx, r.stmt.SourceText, cleaned)
	r.result.OracleNotes = append(r.result.OracleNotes, review.Notes...)
	r.working = review.Transactions

	r.logger.WithFields(logger.Fields{
		"normalized": r.result.Metrics.SuccessfullyNormalized,
		"failed":     r.result.Metrics.FailedNormalization,
		"corrected":  review.Corrected,
	}).Debug("Normalization stage finished")
	return nil
}

func cleanOne(tx models.Transaction) (out models.Transaction, err error) {
	defer func() {
		if p := recover(); p != nil {
			out, err = tx, fmt.Errorf("cleanup panicked: %v", p)
		}
	}()
	return cleanTransaction(tx)
}

func (r *run) deduplicate(context.Context) error {
	res := r.o.dedup.Deduplicate(r.working)
	r.result.Stages.Dedup = res
	r.result.Metrics.DuplicatesRemoved = res.DuplicatesRemoved
	r.working = res.Transactions
	return nil
}

func (r *run) validateChecksums(context.Context) error {
	res, err := r.o.checksum.ValidateAndFixChecksums(r.working, r.stmt.Metadata)
	if err != nil {
		return err
	}
	r.result.Stages.Checksum = res
	r.working = res.Transactions
	return nil
}

func (r *run) scoreGrid(context.Context) error {
	options := gridquality.TransactionOptions(r.o.config.Locale)
	options.StrictMode = r.o.config.StrictMode

	report, err := r.o.grid.Analyze(gridquality.TransactionsToGrid(r.working), options)
	if err != nil {
		return err
	}
	r.result.Stages.Grid = report
	r.gridQuality = report.Metrics.OverallQuality
	if report.Blocking() {
		r.result.Warnings = append(r.result.Warnings, "strict mode: grid has high severity issues")
	}
	return nil
}

func (r *run) finish(context.Context) error {
	checksumQuality := 0.0
	if r.result.Stages.Checksum != nil {
		checksumQuality = r.result.Stages.Checksum.QualityScore
	}
	r.result.Metrics.Total = len(r.stmt.Transactions)
	r.result.Metrics.DataQualityScore = (r.gridQuality + checksumQuality) / 2
	r.result.Transactions = r.working
	return nil
}

// enter records a transition to state and notifies the callbacks. A
// panicking callback fails the run.
func (r *run) enter(state State) {
	now := r.o.config.Now()
	r.result.Transitions = append(r.result.Transitions, Transition{
		From:     r.result.State,
		To:       state,
		At:       now,
		Duration: now.Sub(r.lastChange),
	})
	r.result.State = state
	r.lastChange = now
	if state.IsTerminal() {
		r.result.FinishedAt = now
	}
	r.logger.WithField("state", state).Debug("State changed")
	r.notify(state, true)
}

// fail moves the run to the failed state and clears its output.
func (r *run) fail(err error) {
	message := err.Error()
	if perr, ok := errors.AsPipelineError(err); ok {
		message = fmt.Sprintf("%s: %s", perr.Code, perr.Message)
		if perr.Cause != nil {
			message = fmt.Sprintf("%s: %v", message, perr.Cause)
		}
	}

	r.logger.WithError(err).Error("Statement normalization failed")

	now := r.o.config.Now()
	r.result.Transitions = append(r.result.Transitions, Transition{
		From:     r.result.State,
		To:       StateFailed,
		At:       now,
		Duration: now.Sub(r.lastChange),
	})
	r.result.State = StateFailed
	r.result.FinishedAt = now
	r.result.Errors = append(r.result.Errors, message)
	r.result.Transactions = []models.Transaction{}
	r.result.Metrics = Metrics{}
	r.notify(StateFailed, false)
}

func (r *run) notify(state State, propagate bool) {
	if len(r.callbacks) == 0 {
		return
	}

	completed, ok := stateSteps[state]
	if !ok {
		completed = stateSteps[r.lastSuccessfulState()]
	}
	elapsed := r.o.config.Now().Sub(r.started)
	progress := &Progress{
		RunID:           r.result.RunID,
		State:           state,
		TotalSteps:      TotalSteps,
		CompletedSteps:  completed,
		PercentComplete: float64(completed) / float64(TotalSteps) * 100,
		Elapsed:         elapsed,
	}
	if completed > 0 && completed < TotalSteps {
		avgTimePerStep := elapsed / time.Duration(completed)
		progress.EstimatedRemaining = avgTimePerStep * time.Duration(TotalSteps-completed)
	}

	for _, callback := range r.callbacks {
		if propagate {
			callback(progress)
			continue
		}
		func() {
			defer func() {
				if p := recover(); p != nil {
					r.logger.WithField("panic", p).Warn("Progress callback panicked")
				}
			}()
			callback(progress)
		}()
	}
}

func (r *run) lastSuccessfulState() State {
	for i := len(r.result.Transitions) - 1; i >= 0; i-- {
		if t := r.result.Transitions[i]; t.To != StateFailed {
			return t.To
		}
	}
	return StateReceived
}
