// Package normalization runs the full statement quality pipeline.
//
// One run moves a statement through a fixed sequence of states:
//
//	received -> normalized -> deduplicated -> checksum_validated -> grid_scored -> done
//
// and ends in failed when a stage panics or the context is cancelled. Each
// state change is recorded as a Transition and reported to progress callbacks.
//
// Example usage:
//
//	orchestrator, err := normalization.NewOrchestrator(nil)
//	if err != nil {
//		return err
//	}
//	orchestrator.AddProgressCallback(func(p *normalization.Progress) {
//		fmt.Printf("%s %.0f%%\n", p.State, p.PercentComplete)
//	})
//	result, err := orchestrator.NormalizeStatement(ctx, transactions, metadata)
package normalization

import (
	"context"
	"fmt"
	"sync"
	"time"

	"statement-quality-service/internal/checksum"
	"statement-quality-service/internal/columns"
	"statement-quality-service/internal/dedup"
	"statement-quality-service/internal/gridquality"
	"statement-quality-service/internal/models"
	"statement-quality-service/internal/normalizer"
	"statement-quality-service/internal/oracle"
	"statement-quality-service/pkg/errors"
	"statement-quality-service/pkg/logger"
)

// State is a pipeline state.
type State string

const (
	StateReceived          State = "received"
	StateNormalized        State = "normalized"
	StateDeduplicated      State = "deduplicated"
	StateChecksumValidated State = "checksum_validated"
	StateGridScored        State = "grid_scored"
	StateDone              State = "done"
	StateFailed            State = "failed"
)

// TotalSteps is the number of state changes in a successful run.
const TotalSteps = 5

var stateSteps = map[State]int{
	StateReceived:          0,
	StateNormalized:        1,
	StateDeduplicated:      2,
	StateChecksumValidated: 3,
	StateGridScored:        4,
	StateDone:              5,
}

// IsTerminal reports whether no further transition can follow.
func (s State) IsTerminal() bool {
	return s == StateDone || s == StateFailed
}

// Transition records one state change.
type Transition struct {
	From     State         `json:"from"`
	To       State         `json:"to"`
	At       time.Time     `json:"at"`
	Duration time.Duration `json:"duration"`
}

// Metrics summarises a run.
type Metrics struct {
	Total                  int     `json:"total"`
	SuccessfullyNormalized int     `json:"successfully_normalized"`
	FailedNormalization    int     `json:"failed_normalization"`
	DuplicatesRemoved      int     `json:"duplicates_removed"`
	DataQualityScore       float64 `json:"data_quality_score"`
}

// StageResults keeps the output of each engine. Entries stay nil for stages
// that did not run.
type StageResults struct {
	Columns  *columns.ColumnInconsistencyResult `json:"columns,omitempty"`
	Dedup    *dedup.Result                      `json:"dedup,omitempty"`
	Checksum *checksum.ChecksumValidationResult `json:"checksum,omitempty"`
	Grid     *gridquality.QualityReport         `json:"grid,omitempty"`
}

// NormalizationResult is the outcome of one run.
type NormalizationResult struct {
	RunID        string               `json:"run_id"`
	State        State                `json:"state"`
	Transitions  []Transition         `json:"transitions"`
	Transactions []models.Transaction `json:"transactions"`
	Metrics      Metrics              `json:"metrics"`
	Errors       []string             `json:"errors"`
	Warnings     []string             `json:"warnings"`
	Stages       StageResults         `json:"stages"`
	OracleNotes  []string             `json:"oracle_notes"`
	StartedAt    time.Time            `json:"started_at"`
	FinishedAt   time.Time            `json:"finished_at"`
}

// Failed reports whether the run ended in the failed state.
func (r *NormalizationResult) Failed() bool {
	return r.State == StateFailed
}

// Statement is one unit of work.
type Statement struct {
	Transactions []models.Transaction
	Metadata     *models.StatementMetadata
	// SourceText is the raw statement text, used only by the oracle.
	SourceText string
}

func (s Statement) clone() Statement {
	out := Statement{
		Transactions: models.CloneTransactions(s.Transactions),
		SourceText:   s.SourceText,
	}
	if s.Metadata != nil {
		md := *s.Metadata
		out.Metadata = &md
	}
	return out
}

// Progress is handed to progress callbacks on every state change.
type Progress struct {
	RunID              string        `json:"run_id"`
	State              State         `json:"state"`
	TotalSteps         int           `json:"total_steps"`
	CompletedSteps     int           `json:"completed_steps"`
	PercentComplete    float64       `json:"percent_complete"`
	Elapsed            time.Duration `json:"elapsed"`
	EstimatedRemaining time.Duration `json:"estimated_remaining"`
}

// ProgressCallback is called to report pipeline progress
type ProgressCallback func(*Progress)

// ResultRecorder receives every finished result.
type ResultRecorder interface {
	Record(result *NormalizationResult) error
}

// Config holds the orchestrator settings.
type Config struct {
	Locale string `json:"locale"`
	// RunColumnEngine enables the column consistency pass after cleanup.
	RunColumnEngine   bool             `json:"run_column_engine"`
	StrictMode        bool             `json:"strict_mode"`
	ApplyBalanceFixes bool             `json:"apply_balance_fixes"`
	MaxConcurrency    int              `json:"max_concurrency"`
	Oracle            *oracle.Config   `json:"oracle"`
	Now               func() time.Time `json:"-"`
}

// DefaultConfig returns the default orchestrator configuration
func DefaultConfig() *Config {
	return &Config{
		Locale:          normalizer.LocaleRU,
		RunColumnEngine: true,
		MaxConcurrency:  4,
		Oracle:          oracle.DefaultConfig(),
		Now:             time.Now,
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.Locale {
	case normalizer.LocaleRU, normalizer.LocaleKK, normalizer.LocaleEN:
	default:
		return fmt.Errorf("unsupported locale %q", c.Locale)
	}
	if c.MaxConcurrency < 1 {
		return fmt.Errorf("max concurrency must be at least 1")
	}
	if c.Oracle != nil {
		if err := c.Oracle.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Orchestrator wires the engines together. It is safe for concurrent use
// once configured; runs share no mutable state.
type Orchestrator struct {
	config   *Config
	columns  *columns.Engine
	dedup    *dedup.Deduplicator
	checksum *checksum.Engine
	grid     *gridquality.Analyzer
	guard    *oracle.Guard
	recorder ResultRecorder
	logger   logger.Logger

	callbacks     []ProgressCallback
	callbackMutex sync.RWMutex
}

// NewOrchestrator creates an orchestrator; a nil config selects the defaults.
func NewOrchestrator(config *Config) (*Orchestrator, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	if config.Oracle == nil {
		config.Oracle = oracle.DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "normalization", config.Locale, err)
	}

	log := logger.GetGlobalLogger().WithComponent("normalization")

	columnConfig := columns.DefaultConfig()
	columnConfig.Locale = config.Locale
	columnConfig.Now = config.Now

	checksumConfig := checksum.DefaultConfig()
	checksumConfig.Locale = config.Locale
	checksumConfig.ApplyBalanceFixes = config.ApplyBalanceFixes

	o := &Orchestrator{
		config:   config,
		columns:  columns.NewEngine(columnConfig, normalizer.Default),
		dedup:    dedup.New(),
		checksum: checksum.NewEngine(checksumConfig),
		grid:     gridquality.NewAnalyzer(normalizer.Default),
		guard:    oracle.NewGuard(nil, config.Oracle.Timeout),
		logger:   log,
	}

	log.WithFields(logger.Fields{
		"locale":          config.Locale,
		"column_engine":   config.RunColumnEngine,
		"strict_mode":     config.StrictMode,
		"max_concurrency": config.MaxConcurrency,
	}).Debug("Normalization orchestrator created")
	return o, nil
}

// WithOracle sets the AI oracle. It always runs behind a guard.
func (o *Orchestrator) WithOracle(reviewer oracle.Oracle) *Orchestrator {
	o.guard = oracle.NewGuard(reviewer, o.config.Oracle.Timeout)
	return o
}

// WithRecorder sets where finished results are recorded.
func (o *Orchestrator) WithRecorder(r ResultRecorder) *Orchestrator {
	o.recorder = r
	return o
}

// AddProgressCallback adds a progress callback function
func (o *Orchestrator) AddProgressCallback(callback ProgressCallback) {
	o.callbackMutex.Lock()
	defer o.callbackMutex.Unlock()
	o.callbacks = append(o.callbacks, callback)
}

func (o *Orchestrator) progressCallbacks() []ProgressCallback {
	o.callbackMutex.RLock()
	defer o.callbackMutex.RUnlock()
	return append([]ProgressCallback(nil), o.callbacks...)
}

// NormalizeStatement runs the default orchestrator.
func NormalizeStatement(ctx context.Context, txs []models.Transaction, metadata *models.StatementMetadata) (*NormalizationResult, error) {
	o, err := NewOrchestrator(nil)
	if err != nil {
		return nil, err
	}
	return o.NormalizeStatement(ctx, txs, metadata)
}

// NormalizeStatement runs the pipeline over one statement. Only a nil
// transaction list is an error; every other problem is reported in the
// result.
func (o *Orchestrator) NormalizeStatement(ctx context.Context, txs []models.Transaction, metadata *models.StatementMetadata) (*NormalizationResult, error) {
	return o.Normalize(ctx, Statement{Transactions: txs, Metadata: metadata})
}

// Normalize runs the pipeline over stmt. The statement is not modified.
func (o *Orchestrator) Normalize(ctx context.Context, stmt Statement) (*NormalizationResult, error) {
	if stmt.Transactions == nil {
		return nil, errors.ValidationError(errors.CodeMissingField, "transactions", nil, nil).
			WithSuggestion("Pass an empty slice for a statement without transactions")
	}

	r := o.newRun(stmt)
	result := r.execute(ctx)

	if o.recorder != nil {
		if err := o.recorder.Record(result); err != nil {
			r.logger.WithError(err).Warn("Failed to record result")
			result.Warnings = append(result.Warnings, fmt.Sprintf("metrics not recorded: %v", err))
		}
	}
	return result, nil
}
