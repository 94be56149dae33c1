// Package commandtest provides a scripted command.Runner for tests.
package commandtest

import (
	"context"
	"strings"
	"sync"
)

// Recorder records every invocation and answers from tables keyed by a
// substring of the full command line ("name arg1 arg2 ...").
// Errors take precedence over replies; unmatched commands succeed silently.
type Recorder struct {
	mu      sync.Mutex
	calls   []string
	Replies map[string][]byte
	Errs    map[string]error
	// OnRun, when set, is called with each command line after recording.
	OnRun func(line string)
}

// New returns an empty recorder.
func New() *Recorder {
	return &Recorder{Replies: map[string][]byte{}, Errs: map[string]error{}}
}

// Run implements command.Runner.
func (r *Recorder) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	line := strings.TrimSpace(name + " " + strings.Join(args, " "))
	r.mu.Lock()
	r.calls = append(r.calls, line)
	hook := r.OnRun
	r.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if hook != nil {
		hook(line)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, err := range r.Errs {
		if strings.Contains(line, k) {
			return nil, err
		}
	}
	for k, out := range r.Replies {
		if strings.Contains(line, k) {
			return out, nil
		}
	}
	return nil, nil
}

// Calls returns the recorded command lines in order.
func (r *Recorder) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}
