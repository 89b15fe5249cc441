package logger

import (
	"fmt"
	"sync"
	"time"
)

// BatchProgress tracks how many statements of a batch have finished and how
// many of them failed. It is safe for concurrent use by pool workers.
type BatchProgress struct {
	logger      Logger
	operation   string
	total       int64
	done        int64
	failed      int64
	startTime   time.Time
	lastLogTime time.Time
	logInterval time.Duration
	now         func() time.Time
	mutex       sync.RWMutex
}

// ProgressConfig configures progress tracking behavior
type ProgressConfig struct {
	Operation   string        `json:"operation"`
	Total       int64         `json:"total"`
	LogInterval time.Duration `json:"log_interval"`
	Logger      Logger        `json:"-"`
}

// ProgressStats is a point-in-time snapshot of a BatchProgress.
type ProgressStats struct {
	Operation  string        `json:"operation"`
	Total      int64         `json:"total"`
	Done       int64         `json:"done"`
	Failed     int64         `json:"failed"`
	Percentage float64       `json:"percentage"`
	Duration   time.Duration `json:"duration"`
	Rate       float64       `json:"rate"`
}

// NewBatchProgress creates a new tracker and logs the start of the batch.
func NewBatchProgress(config ProgressConfig) *BatchProgress {
	if config.Logger == nil {
		config.Logger = GetGlobalLogger()
	}
	if config.LogInterval == 0 {
		config.LogInterval = 5 * time.Second
	}

	start := time.Now()
	p := &BatchProgress{
		logger:      config.Logger.WithComponent("progress"),
		operation:   config.Operation,
		total:       config.Total,
		startTime:   start,
		lastLogTime: start,
		logInterval: config.LogInterval,
		now:         time.Now,
	}

	p.logger.WithFields(Fields{
		"operation": config.Operation,
		"total":     config.Total,
	}).Info("Starting batch")

	return p
}

// Observe records one finished statement.
func (p *BatchProgress) Observe(failed bool) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	p.done++
	if failed {
		p.failed++
	}

	now := p.now()
	if now.Sub(p.lastLogTime) >= p.logInterval {
		p.logger.WithFields(p.fieldsLocked(now)).Info("Progress update")
		p.lastLogTime = now
	}
}

// Complete logs final statistics for the batch.
func (p *BatchProgress) Complete() {
	p.mutex.RLock()
	defer p.mutex.RUnlock()

	entry := p.logger.WithFields(p.fieldsLocked(p.now()))
	if p.failed > 0 {
		entry.Warn("Batch completed with failures")
		return
	}
	entry.Info("Batch completed")
}

// Stats returns current progress statistics
func (p *BatchProgress) Stats() ProgressStats {
	p.mutex.RLock()
	defer p.mutex.RUnlock()

	duration := p.now().Sub(p.startTime)
	stats := ProgressStats{
		Operation: p.operation,
		Total:     p.total,
		Done:      p.done,
		Failed:    p.failed,
		Duration:  duration,
	}
	if duration.Seconds() > 0 {
		stats.Rate = float64(p.done) / duration.Seconds()
	}
	if p.total > 0 {
		stats.Percentage = float64(p.done) / float64(p.total) * 100
	}
	return stats
}

func (p *BatchProgress) fieldsLocked(now time.Time) Fields {
	duration := now.Sub(p.startTime)
	var rate float64
	if duration.Seconds() > 0 {
		rate = float64(p.done) / duration.Seconds()
	}

	fields := Fields{
		"operation": p.operation,
		"processed": p.done,
		"failed":    p.failed,
		"duration":  duration.String(),
		"rate":      fmt.Sprintf("%.2f/sec", rate),
	}
	if p.total > 0 {
		fields["total"] = p.total
		fields["percentage"] = fmt.Sprintf("%.1f%%", float64(p.done)/float64(p.total)*100)
	}
	return fields
}
