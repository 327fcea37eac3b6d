package domain

import "time"

type CheckResult struct {
	Check      string            `json:"check"`
	Success    bool              `json:"success"`
	Message    string            `json:"message"`
	DurationMs *int64            `json:"durationMs,omitempty"`
	Data       map[string]string `json:"data,omitempty"`
}

// WithDuration sets DurationMs, clamping negative values to zero.
func (r CheckResult) WithDuration(d time.Duration) CheckResult {
	ms := d.Milliseconds()
	if ms < 0 {
		ms = 0
	}
	r.DurationMs = &ms
	return r
}

type JobResult struct {
	JobID        string        `json:"jobId"`
	Success      bool          `json:"success"`
	Cancelled    bool          `json:"cancelled,omitempty"`
	Error        string        `json:"error,omitempty"`
	ErrorDetails string        `json:"errorDetails,omitempty"`
	Checks       []CheckResult `json:"checks"`
}

// NewJobResult aggregates checks into a result. Success is the logical AND of
// all checks and is true for an empty set.
func NewJobResult(jobID string, checks []CheckResult) JobResult {
	if checks == nil {
		checks = []CheckResult{}
	}

	success := true
	for _, c := range checks {
		if !c.Success {
			success = false
			break
		}
	}

	return JobResult{
		JobID:   jobID,
		Success: success,
		Checks:  checks,
	}
}

// FailedJobResult describes a job that could not be executed at all.
func FailedJobResult(jobID, errText, details string) JobResult {
	return JobResult{
		JobID:        jobID,
		Success:      false,
		Error:        errText,
		ErrorDetails: details,
		Checks:       []CheckResult{},
	}
}

// CancelledJobResult reports a job stopped on request before it completed.
func CancelledJobResult(jobID string) JobResult {
	return JobResult{
		JobID:     jobID,
		Success:   false,
		Cancelled: true,
		Error:     "cancelled",
		Checks:    []CheckResult{},
	}
}
