package models

import "time"

// ProbeResult is one recorded latency probe.
type ProbeResult struct {
	ID           int64     `json:"id" yaml:"id"`
	LatencyMS    *int      `json:"latency_ms,omitempty" yaml:"latency_ms,omitempty"` // NULL if failed
	Success      bool      `json:"success" yaml:"success"`
	ErrorMessage string    `json:"error_message,omitempty" yaml:"error_message,omitempty"`
	Strategy     string    `json:"strategy" yaml:"strategy"` // http, tcp
	DurationMS   int64     `json:"duration_ms" yaml:"duration_ms"`
	TestedAt     time.Time `json:"tested_at" yaml:"tested_at"`
}
