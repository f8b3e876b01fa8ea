package model

import "time"

// Complexity is a coarse size estimate of a submission.
type Complexity string

const (
	ComplexityLow    Complexity = "low"
	ComplexityMedium Complexity = "medium"
	ComplexityHigh   Complexity = "high"
)

// GlobalContext identifies where a submission came from.
type GlobalContext struct {
	SessionID   string   `json:"sessionId"`
	UserAgent   string   `json:"userAgent,omitempty"`
	Viewport    Viewport `json:"viewport"`
	Environment string   `json:"environment,omitempty"`
	ProjectID   string   `json:"projectId,omitempty"`
	AppVersion  string   `json:"appVersion,omitempty"`
}

// Summary aggregates the changes of one submission.
type Summary struct {
	TotalChanges        int              `json:"totalChanges"`
	CategoryCounts      map[Category]int `json:"categoryCounts"`
	PriorityCounts      map[Priority]int `json:"priorityCounts"`
	AffectedComponents  []string         `json:"affectedComponents"`
	EstimatedComplexity Complexity       `json:"estimatedComplexity"`
}

// SubmissionPayload is the batch sent to the change-processing endpoint.
// It is derived on demand and never stored.
type SubmissionPayload struct {
	SubmissionID  string          `json:"submissionId"`
	Timestamp     time.Time       `json:"timestamp"`
	Changes       []ChangeRequest `json:"changes"`
	GlobalContext GlobalContext   `json:"globalContext"`
	Summary       Summary         `json:"summary"`
}

// HostContext is what the rendering host reports about itself at submit time.
type HostContext struct {
	UserAgent string   `json:"userAgent,omitempty"`
	Viewport  Viewport `json:"viewport"`
}

// SubmissionRecord is one row of submission history.
type SubmissionRecord struct {
	ID           int64     `json:"id"`
	SubmissionID string    `json:"submissionId"`
	ChangeCount  int       `json:"changeCount"`
	Status       string    `json:"status"` // succeeded, failed, cancelled
	Attempts     int       `json:"attempts"`
	Error        string    `json:"error,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}
