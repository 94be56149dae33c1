package results

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/mitchellh/go-homedir"

	"github.com/xkilldash9x/hmi-harness/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Report is the document written by WriteReport.
type Report struct {
	GeneratedAt time.Time           `json:"generated_at"`
	Total       int                 `json:"total"`
	Passed      int                 `json:"passed"`
	Failed      int                 `json:"failed"`
	Runs        []schemas.RunResult `json:"runs"`
}

// NewReport aggregates runs.
func NewReport(runs []schemas.RunResult, at time.Time) Report {
	r := Report{GeneratedAt: at.UTC(), Total: len(runs), Runs: runs}
	for _, run := range runs {
		if run.Passed {
			r.Passed++
		} else {
			r.Failed++
		}
	}
	if r.Runs == nil {
		r.Runs = []schemas.RunResult{}
	}
	return r
}

// WriteReport encodes the report as JSON.
func WriteReport(w io.Writer, report Report, indent bool) error {
	enc := json.NewEncoder(w)
	if indent {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	return nil
}

// WriteReportFile writes the report to path, creating parent directories.
func WriteReportFile(path string, report Report, indent bool) error {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return fmt.Errorf("failed to expand report path %q: %w", path, err)
	}
	if dir := filepath.Dir(expanded); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create report directory: %w", err)
		}
	}
	f, err := os.Create(expanded)
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}
	if err := WriteReport(f, report, indent); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// Summary renders a one-line-per-step text summary of a run.
func Summary(run schemas.RunResult) string {
	var b strings.Builder
	status := "PASS"
	if !run.Passed {
		status = "FAIL"
	}
	fmt.Fprintf(&b, "%s %s (%s)\n", status, run.Scenario, run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond))
	for _, s := range run.Steps {
		mark := "ok"
		if !s.Passed {
			mark = "FAILED"
		}
		name := s.Name
		if s.Device != "" {
			name = s.Device + ": " + name
		}
		fmt.Fprintf(&b, "  [%s] %s", mark, name)
		if s.Detail != "" {
			fmt.Fprintf(&b, " (%s)", s.Detail)
		}
		b.WriteString("\n")
	}
	if run.Error != "" {
		fmt.Fprintf(&b, "  error: %s\n", run.Error)
	}
	return b.String()
}
