// Package metrics records pipeline outcomes and raises quality alerts.
//
// A Recorder turns each NormalizationResult into a Snapshot, stores it in an
// injected Store and logs an Alert for every threshold the run crossed.
package metrics

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"statement-quality-service/internal/models"
	"statement-quality-service/internal/normalization"
	"statement-quality-service/pkg/errors"
	"statement-quality-service/pkg/logger"
)

// Snapshot is the stored summary of one run.
type Snapshot struct {
	ID                  string    `json:"id"`
	RunID               string    `json:"run_id"`
	RecordedAt          time.Time `json:"recorded_at"`
	State               string    `json:"state"`
	Total               int       `json:"total"`
	Normalized          int       `json:"normalized"`
	FailedNormalization int       `json:"failed_normalization"`
	DuplicatesRemoved   int       `json:"duplicates_removed"`
	QualityScore        float64   `json:"quality_score"`
	Discrepancies       int       `json:"discrepancies"`
	GridIssues          int       `json:"grid_issues"`
	Errors              int       `json:"errors"`
}

// DuplicateRatio is the share of input transactions removed as duplicates.
func (s Snapshot) DuplicateRatio() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.DuplicatesRemoved) / float64(s.Total)
}

// FailedRatio is the share of input transactions that failed cleanup.
func (s Snapshot) FailedRatio() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.FailedNormalization) / float64(s.Total)
}

// AlertKind names the threshold an alert is about.
type AlertKind string

const (
	AlertRunFailed            AlertKind = "run_failed"
	AlertLowQuality           AlertKind = "low_quality"
	AlertHighDuplicateRatio   AlertKind = "high_duplicate_ratio"
	AlertFailedNormalizations AlertKind = "failed_normalizations"
)

// Alert is raised when a run crosses a configured threshold.
type Alert struct {
	Kind      AlertKind       `json:"kind"`
	Severity  models.Severity `json:"severity"`
	RunID     string          `json:"run_id"`
	Value     float64         `json:"value"`
	Threshold float64         `json:"threshold"`
	Message   string          `json:"message"`
}

// Config holds the alert thresholds.
type Config struct {
	MinQualityScore   float64 `json:"min_quality_score"`
	MaxDuplicateRatio float64 `json:"max_duplicate_ratio"`
	MaxFailedRatio    float64 `json:"max_failed_ratio"`
}

// DefaultConfig returns the default thresholds
func DefaultConfig() *Config {
	return &Config{
		MinQualityScore:   0.7,
		MaxDuplicateRatio: 0.1,
		MaxFailedRatio:    0.05,
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	for name, v := range map[string]float64{
		"min quality score":   c.MinQualityScore,
		"max duplicate ratio": c.MaxDuplicateRatio,
		"max failed ratio":    c.MaxFailedRatio,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("%s must be in [0, 1], got %v", name, v)
		}
	}
	return nil
}

// Recorder stores snapshots and raises alerts. It is safe for concurrent use
// when its Store is.
type Recorder struct {
	store  Store
	config *Config
	logger logger.Logger
	now    func() time.Time
}

// NewRecorder creates a recorder over store. A nil store keeps the last
// DefaultRingSize snapshots in memory; a nil config selects the defaults.
func NewRecorder(store Store, config *Config) *Recorder {
	if store == nil {
		store = NewRingStore(DefaultRingSize)
	}
	if config == nil {
		config = DefaultConfig()
	}
	return &Recorder{
		store:  store,
		config: config,
		logger: logger.GetGlobalLogger().WithComponent("metrics"),
		now:    time.Now,
	}
}

// Record implements normalization.ResultRecorder.
func (r *Recorder) Record(result *normalization.NormalizationResult) error {
	_, err := r.Observe(result)
	return err
}

// Observe stores a snapshot of result and returns the alerts it raised.
func (r *Recorder) Observe(result *normalization.NormalizationResult) ([]Alert, error) {
	if result == nil {
		return nil, errors.ValidationError(errors.CodeMissingField, "result", nil, nil)
	}

	snapshot := r.snapshot(result)
	if err := r.store.Save(snapshot); err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, errors.CodeProcessingError, "failed to store metrics snapshot")
	}

	alerts := r.Evaluate(snapshot)
	for _, alert := range alerts {
		r.logger.WithFields(logger.Fields{
			"kind":      alert.Kind,
			"severity":  alert.Severity,
			"run_id":    alert.RunID,
			"value":     alert.Value,
			"threshold": alert.Threshold,
		}).Warn(alert.Message)
	}

	r.logger.WithFields(logger.Fields{
		"run_id":  snapshot.RunID,
		"state":   snapshot.State,
		"quality": snapshot.QualityScore,
		"alerts":  len(alerts),
	}).Debug("Metrics snapshot stored")
	return alerts, nil
}

func (r *Recorder) snapshot(result *normalization.NormalizationResult) Snapshot {
	s := Snapshot{
		ID:                  uuid.NewString(),
		RunID:               result.RunID,
		RecordedAt:          r.now().UTC(),
		State:               string(result.State),
		Total:               result.Metrics.Total,
		Normalized:          result.Metrics.SuccessfullyNormalized,
		FailedNormalization: result.Metrics.FailedNormalization,
		DuplicatesRemoved:   result.Metrics.DuplicatesRemoved,
		QualityScore:        result.Metrics.DataQualityScore,
		Errors:              len(result.Errors),
	}
	if result.Stages.Checksum != nil {
		s.Discrepancies = len(result.Stages.Checksum.Discrepancies)
	}
	if result.Stages.Grid != nil {
		s.GridIssues = len(result.Stages.Grid.Issues)
	}
	return s
}

// Evaluate returns the alerts raised by s.
func (r *Recorder) Evaluate(s Snapshot) []Alert {
	if s.State == string(normalization.StateFailed) {
		return []Alert{{
			Kind:     AlertRunFailed,
			Severity: models.SeverityCritical,
			RunID:    s.RunID,
			Message:  fmt.Sprintf("run %s failed with %d error(s)", s.RunID, s.Errors),
		}}
	}

	var alerts []Alert
	if s.QualityScore < r.config.MinQualityScore {
		alerts = append(alerts, Alert{
			Kind:      AlertLowQuality,
			Severity:  models.SeverityHigh,
			RunID:     s.RunID,
			Value:     s.QualityScore,
			Threshold: r.config.MinQualityScore,
			Message:   fmt.Sprintf("data quality %.2f is below %.2f", s.QualityScore, r.config.MinQualityScore),
		})
	}
	if ratio := s.DuplicateRatio(); ratio > r.config.MaxDuplicateRatio {
		alerts = append(alerts, Alert{
			Kind:      AlertHighDuplicateRatio,
			Severity:  models.SeverityMedium,
			RunID:     s.RunID,
			Value:     ratio,
			Threshold: r.config.MaxDuplicateRatio,
			Message:   fmt.Sprintf("%d of %d transactions were duplicates", s.DuplicatesRemoved, s.Total),
		})
	}
	if ratio := s.FailedRatio(); ratio > r.config.MaxFailedRatio {
		alerts = append(alerts, Alert{
			Kind:      AlertFailedNormalizations,
			Severity:  models.SeverityHigh,
			RunID:     s.RunID,
			Value:     ratio,
			Threshold: r.config.MaxFailedRatio,
			Message:   fmt.Sprintf("%d of %d transactions failed normalization", s.FailedNormalization, s.Total),
		})
	}
	return alerts
}

// Summary aggregates recent snapshots.
type Summary struct {
	Runs                 int     `json:"runs"`
	FailedRuns           int     `json:"failed_runs"`
	Transactions         int     `json:"transactions"`
	DuplicatesRemoved    int     `json:"duplicates_removed"`
	FailedNormalizations int     `json:"failed_normalizations"`
	AverageQuality       float64 `json:"average_quality"`
}

// Summary averages the quality of the last n completed runs. Failed runs are
// counted but left out of the average.
func (r *Recorder) Summary(n int) (Summary, error) {
	snapshots, err := r.store.Recent(n)
	if err != nil {
		return Summary{}, errors.Wrap(err, errors.CategoryInternal, errors.CodeProcessingError, "failed to read metrics snapshots")
	}

	var sum Summary
	var qualityTotal float64
	for _, s := range snapshots {
		sum.Runs++
		if s.State == string(normalization.StateFailed) {
			sum.FailedRuns++
			continue
		}
		sum.Transactions += s.Total
		sum.DuplicatesRemoved += s.DuplicatesRemoved
		sum.FailedNormalizations += s.FailedNormalization
		qualityTotal += s.QualityScore
	}
	if completed := sum.Runs - sum.FailedRuns; completed > 0 {
		sum.AverageQuality = qualityTotal / float64(completed)
	}
	return sum, nil
}
