// Package results records scenario runs, persists them to PostgreSQL and
// renders the JSON run report.
package results

import (
	"time"

	"github.com/google/uuid"

	"github.com/xkilldash9x/hmi-harness/api/schemas"
)

// Begin starts a run record for scenario.
func Begin(scenario string, at time.Time) *schemas.RunResult {
	return &schemas.RunResult{
		ID:        uuid.NewString(),
		Scenario:  scenario,
		StartedAt: at.UTC(),
		Steps:     []schemas.StepResult{},
	}
}

// Finish closes the run. It passes only when err is nil and every step passed.
func Finish(run *schemas.RunResult, at time.Time, err error) {
	run.FinishedAt = at.UTC()
	run.Passed = err == nil && len(run.FailedSteps()) == 0
	if err != nil {
		run.Error = err.Error()
	}
}
