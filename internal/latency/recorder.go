package latency

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"xprobe/internal/logger"
	"xprobe/internal/probe"
	"xprobe/internal/storage"
	"xprobe/internal/storage/models"
)

// RecorderConfig holds configuration for the Recorder.
type RecorderConfig struct {
	// Strategy is stored with every result.
	Strategy string
	// Keep bounds the history table. Zero disables pruning.
	Keep int
	// PruneEvery is the number of records between prunes.
	PruneEvery int
	// Timeout bounds a single write.
	Timeout time.Duration
}

// Recorder persists probe outcomes into the history table.
type Recorder struct {
	storage storage.Storage
	config  RecorderConfig
	log     *slog.Logger

	mu      sync.Mutex
	written int
}

// NewRecorder creates a new Recorder.
func NewRecorder(store storage.Storage, cfg RecorderConfig) *Recorder {
	if cfg.Strategy == "" {
		cfg.Strategy = "http"
	}
	if cfg.PruneEvery <= 0 {
		cfg.PruneEvery = 100
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &Recorder{
		storage: store,
		config:  cfg,
		log:     logger.WithComponent("latency.recorder"),
	}
}

// Result converts an outcome into a history row.
func (r *Recorder) Result(o probe.Outcome) *models.ProbeResult {
	result := &models.ProbeResult{
		Strategy:   r.config.Strategy,
		DurationMS: o.Duration.Milliseconds(),
		TestedAt:   o.Started.Add(o.Duration),
	}
	if o.Started.IsZero() {
		result.TestedAt = time.Now()
	}

	if o.Err != nil {
		result.Success = false
		result.ErrorMessage = o.Err.Error()
	} else {
		ms := o.Reading.MS
		result.Success = true
		result.LatencyMS = &ms
	}
	return result
}

// Record writes one outcome. Storage failures are returned, not logged.
func (r *Recorder) Record(ctx context.Context, o probe.Outcome) (*models.ProbeResult, error) {
	ctx, cancel := context.WithTimeout(ctx, r.config.Timeout)
	defer cancel()

	result := r.Result(o)
	if err := r.storage.RecordProbe(ctx, result); err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.written++
	prune := r.config.Keep > 0 && r.written%r.config.PruneEvery == 0
	r.mu.Unlock()

	if prune {
		removed, err := r.storage.PruneProbeHistory(ctx, r.config.Keep)
		if err != nil {
			r.log.Warn("failed to prune probe history", "error", err)
		} else if removed > 0 {
			r.log.Debug("pruned probe history", "removed", removed)
		}
	}
	return result, nil
}

// Observer returns a scheduler observer that records every outcome
// (best-effort).
func (r *Recorder) Observer() probe.Observer {
	return func(o probe.Outcome) {
		if _, err := r.Record(context.Background(), o); err != nil {
			r.log.Warn("failed to record probe result", "error", err)
		}
	}
}
