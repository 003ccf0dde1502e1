package models

import (
	"time"
)

// Defaults for a verification run when nothing is configured.
const (
	DefaultTargetURL      = "http://localhost:8080/"
	DefaultMarkerSelector = ".container"
	DefaultScreenshotName = "verification.png"
)

// ==================== Target Types ====================

// Target describes a single page to verify
type Target struct {
	URL      string `json:"url" yaml:"url"`
	Selector string `json:"selector" yaml:"selector"`
	Output   string `json:"output,omitempty" yaml:"output"`
}

// DefaultTarget returns the fixed local target
func DefaultTarget() Target {
	return Target{
		URL:      DefaultTargetURL,
		Selector: DefaultMarkerSelector,
		Output:   DefaultScreenshotName,
	}
}

// ==================== Run Types ====================

// RunStatus represents the status of a verification run
type RunStatus string

const (
	StatusPending  RunStatus = "pending"
	StatusRunning  RunStatus = "running"
	StatusSuccess  RunStatus = "success"
	StatusFailed   RunStatus = "failed"
	StatusCanceled RunStatus = "canceled"
)

// IsTerminal reports whether no further transitions are expected
func (s RunStatus) IsTerminal() bool {
	return s == StatusSuccess || s == StatusFailed || s == StatusCanceled
}

// VerificationRun represents a single recorded verification
type VerificationRun struct {
	ID                 string     `json:"id" db:"id"`
	TargetURL          string     `json:"target_url" db:"target_url"`
	Selector           string     `json:"selector" db:"selector"`
	ScreenshotPath     string     `json:"screenshot_path,omitempty" db:"screenshot_path"`
	TemporalWorkflowID string     `json:"temporal_workflow_id,omitempty" db:"temporal_workflow_id"`
	TemporalRunID      string     `json:"temporal_run_id,omitempty" db:"temporal_run_id"`
	Status             RunStatus  `json:"status" db:"status"`
	ErrorMessage       string     `json:"error_message,omitempty" db:"error_message"`
	StartedAt          *time.Time `json:"started_at" db:"started_at"`
	CompletedAt        *time.Time `json:"completed_at" db:"completed_at"`
}

// ==================== Workflow Types ====================

// Step names, in execution order
const (
	StepStart    = "start"
	StepOpenPage = "open_page"
	StepNavigate = "navigate"
	StepWait     = "wait"
	StepCapture  = "capture"
	StepTeardown = "teardown"
)

// VerificationInput represents input for the verification workflow
type VerificationInput struct {
	RunID              string `json:"run_id"`
	Target             Target `json:"target"`
	Headless           bool   `json:"headless"`
	NavigationTimeout  int    `json:"navigation_timeout_seconds"`
	WaitTimeout        int    `json:"wait_timeout_seconds"`
	ActivityTimeoutSec int    `json:"activity_timeout_seconds"`
}

// StepResult represents the outcome of one step of a run
type StepResult struct {
	Step         string    `json:"step"`
	Status       RunStatus `json:"status"`
	ErrorMessage string    `json:"error_message,omitempty"`
	Duration     int64     `json:"duration_ms"`
}

// VerificationResult represents the result of a verification workflow
type VerificationResult struct {
	RunID          string       `json:"run_id"`
	Status         RunStatus    `json:"status"`
	ScreenshotPath string       `json:"screenshot_path,omitempty"`
	Steps          []StepResult `json:"steps"`
	TotalDuration  int64        `json:"total_duration_ms"`
	ErrorMessage   string       `json:"error_message,omitempty"`
}

// ==================== API Request/Response Types ====================

// VerifyRequest represents a request to start a verification
type VerifyRequest struct {
	URL      string `json:"url"`
	Selector string `json:"selector"`
	Headless *bool  `json:"headless,omitempty"`
}

// ==================== WebSocket Message Types ====================

// WSMessage represents a WebSocket message for real-time updates
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}
