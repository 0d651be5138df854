package model

import "time"

// RunStatus represents the current state of a worksheet run.
type RunStatus string

const (
	RunStatusRunning     RunStatus = "running"
	RunStatusComplete    RunStatus = "complete"
	RunStatusFailed      RunStatus = "failed"
	RunStatusInterrupted RunStatus = "interrupted"
)

// Run is the audit record of a single worksheet run.
type Run struct {
	ID        string      `json:"id" yaml:"id"`
	Worksheet string      `json:"worksheet" yaml:"worksheet"`
	Status    RunStatus   `json:"status" yaml:"status"`
	StartRow  int         `json:"start_row" yaml:"start_row"`
	Summary   *RunSummary `json:"summary,omitempty" yaml:"summary,omitempty"`
	CreatedAt time.Time   `json:"created_at" yaml:"created_at"`
	UpdatedAt time.Time   `json:"updated_at" yaml:"updated_at"`
}
