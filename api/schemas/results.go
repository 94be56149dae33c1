// File: api/schemas/results.go
package schemas

import "time"

// -- Result Schemas --

// StepResult records the outcome of one assertion inside a scenario run.
type StepResult struct {
	Name     string        `json:"name"`
	Device   string        `json:"device,omitempty"`
	Passed   bool          `json:"passed"`
	Detail   string        `json:"detail,omitempty"`
	Duration time.Duration `json:"duration_ns"`
}

// RunResult is the top level record of a single scenario execution.
type RunResult struct {
	ID         string       `json:"id"`
	Scenario   string       `json:"scenario"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
	Passed     bool         `json:"passed"`
	Error      string       `json:"error,omitempty"`
	Steps      []StepResult `json:"steps"`
}

// FailedSteps returns the steps that did not pass, in execution order.
func (r *RunResult) FailedSteps() []StepResult {
	var failed []StepResult
	for _, s := range r.Steps {
		if !s.Passed {
			failed = append(failed, s)
		}
	}
	return failed
}
