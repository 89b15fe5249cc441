// Package oracle defines the optional AI reconciliation collaborator and the
// guard that keeps the pipeline independent of it.
package oracle

import (
	"context"
	"fmt"
	"time"

	"statement-quality-service/internal/models"
	"statement-quality-service/pkg/errors"
	"statement-quality-service/pkg/logger"
)

// NoteDisabled is the only note produced when no oracle is configured.
const NoteDisabled = "AI disabled"

// Result is what an oracle hands back.
type Result struct {
	Transactions []models.Transaction `json:"transactions"`
	Notes        []string             `json:"notes"`
	// Corrected is true when Transactions differ from the candidates.
	Corrected bool `json:"corrected"`
}

// Oracle reviews candidate transactions against the statement source text.
type Oracle interface {
	Reconcile(ctx context.Context, sourceText string, candidates []models.Transaction) (*Result, error)
}

// Disabled is the oracle used when AI review is off. It returns the input
// unchanged.
type Disabled struct{}

// Reconcile returns a copy of the candidates.
func (Disabled) Reconcile(_ context.Context, _ string, candidates []models.Transaction) (*Result, error) {
	return &Result{
		Transactions: models.CloneTransactions(candidates),
		Notes:        []string{NoteDisabled},
	}, nil
}

// Config holds the oracle settings.
type Config struct {
	Enabled bool          `json:"enabled"`
	Model   string        `json:"model"`
	Timeout time.Duration `json:"timeout"`
	// MaxCandidates caps how many transactions are sent in one request.
	MaxCandidates int `json:"max_candidates"`
}

// DefaultConfig returns the default oracle configuration
func DefaultConfig() *Config {
	return &Config{
		Enabled:       false,
		Model:         DefaultModelName,
		Timeout:       30 * time.Second,
		MaxCandidates: 500,
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Timeout <= 0 {
		return fmt.Errorf("oracle timeout must be positive")
	}
	if c.Enabled && c.Model == "" {
		return fmt.Errorf("oracle model is required when the oracle is enabled")
	}
	if c.MaxCandidates <= 0 {
		return fmt.Errorf("max candidates must be positive")
	}
	return nil
}

// Guard wraps an oracle with a timeout and degrades to the unchanged input
// on any failure.
type Guard struct {
	oracle  Oracle
	timeout time.Duration
	logger  logger.Logger
}

// NewGuard wraps o. A nil oracle behaves like Disabled.
func NewGuard(o Oracle, timeout time.Duration) *Guard {
	if o == nil {
		o = Disabled{}
	}
	if timeout <= 0 {
		timeout = DefaultConfig().Timeout
	}
	return &Guard{
		oracle:  o,
		timeout: timeout,
		logger:  logger.GetGlobalLogger().WithComponent("oracle"),
	}
}

// Reconcile never fails. On error, timeout, panic or an empty answer it
// returns a copy of the candidates with a note explaining why.
func (g *Guard) Reconcile(ctx context.Context, sourceText string, candidates []models.Transaction) (result *Result) {
	fallback := func(note string) *Result {
		return &Result{Transactions: models.CloneTransactions(candidates), Notes: []string{note}}
	}

	defer func() {
		if r := recover(); r != nil {
			g.logger.WithField("panic", r).Error("Oracle panicked")
			result = fallback(fmt.Sprintf("AI review failed: %v", r))
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	res, err := g.oracle.Reconcile(ctx, sourceText, models.CloneTransactions(candidates))
	if err != nil {
		perr := errors.WrapIfNeeded(err, errors.CategoryOracle, errors.CodeOracleUnavailable, "oracle reconcile failed")
		if ctx.Err() == context.DeadlineExceeded {
			perr = errors.OracleError(errors.CodeOracleTimeout, "", err)
		}
		g.logger.WithError(perr).Warn("Oracle unavailable, keeping transactions unchanged")
		return fallback(fmt.Sprintf("AI review skipped: %s", perr.Message))
	}
	if res == nil || (len(res.Transactions) == 0 && len(candidates) > 0) {
		g.logger.Warn("Oracle returned no transactions, keeping input")
		return fallback("AI review returned no transactions")
	}

	g.logger.WithFields(logger.Fields{
		"candidates": len(candidates),
		"returned":   len(res.Transactions),
		"corrected":  res.Corrected,
	}).Debug("Oracle review completed")
	return res
}
