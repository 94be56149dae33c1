// Package scenario holds the end-to-end HMI test scenarios and the step
// recorder that turns their checks into run results.
package scenario

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/hmi-harness/api/schemas"
	"github.com/xkilldash9x/hmi-harness/internal/command"
	"github.com/xkilldash9x/hmi-harness/internal/config"
	"github.com/xkilldash9x/hmi-harness/internal/device"
	"github.com/xkilldash9x/hmi-harness/internal/relay"
	"github.com/xkilldash9x/hmi-harness/internal/results"
)

var (
	// ErrStepFailed marks a check that answered no. It stops the scenario.
	ErrStepFailed = errors.New("step failed")
	// ErrUnknownScenario is returned by Lookup.
	ErrUnknownScenario = errors.New("unknown scenario")
)

// Sessions resolves device sessions by name.
type Sessions interface {
	Session(name string) (*device.Session, error)
}

// Relays resolves relay channels by name.
type Relays interface {
	Switch(name string) (*relay.Switch, error)
}

// Env is everything a scenario may touch.
type Env struct {
	Sessions Sessions
	Relays   Relays
	Runner   command.Runner
	Clock    device.Clock
	Harness  config.HarnessConfig
	Params   config.ScenarioConfig
	Logger   *zap.Logger
	Now      func() time.Time
}

func (e *Env) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e *Env) sleep(ctx context.Context, d time.Duration) error {
	if e.Clock == nil {
		return device.RealClock{}.Sleep(ctx, d)
	}
	return e.Clock.Sleep(ctx, d)
}

func (e *Env) runner() command.Runner {
	if e.Runner == nil {
		return command.ExecRunner{}
	}
	return e.Runner
}

func (e *Env) logger() *zap.Logger {
	if e.Logger == nil {
		return zap.NewNop()
	}
	return e.Logger
}

// Scenario is one named end-to-end test.
type Scenario struct {
	Name        string
	Description string
	Run         func(ctx context.Context, env *Env, st *Steps) error
}

// Steps records the outcome of each step of a run.
type Steps struct {
	run    *schemas.RunResult
	env    *Env
	logger *zap.Logger
}

// Check runs a yes/no step. A negative answer is recorded and returned as
// ErrStepFailed; an error is recorded and returned wrapped.
func (s *Steps) Check(name, dev string, fn func() (bool, error)) error {
	start := s.env.now()
	ok, err := fn()
	step := schemas.StepResult{
		Name:     name,
		Device:   dev,
		Passed:   ok && err == nil,
		Duration: s.env.now().Sub(start),
	}
	if err != nil {
		step.Detail = err.Error()
	}
	s.run.Steps = append(s.run.Steps, step)

	fields := []zap.Field{zap.String("step", name), zap.String("device", dev), zap.Bool("passed", step.Passed)}
	switch {
	case err != nil:
		s.logger.Error("Step errored.", append(fields, zap.Error(err))...)
		return fmt.Errorf("%s: %w", name, err)
	case !ok:
		s.logger.Warn("Step failed.", fields...)
		return fmt.Errorf("%w: %s", ErrStepFailed, name)
	}
	s.logger.Info("Step passed.", fields...)
	return nil
}

// Do runs a step that has no yes/no answer.
func (s *Steps) Do(name, dev string, fn func() error) error {
	return s.Check(name, dev, func() (bool, error) {
		if err := fn(); err != nil {
			return false, err
		}
		return true, nil
	})
}

// Execute runs sc and returns its result. Scenario errors end up in the
// result rather than being returned.
func Execute(ctx context.Context, sc Scenario, env *Env) *schemas.RunResult {
	logger := env.logger().Named("scenario").With(zap.String("scenario", sc.Name))
	run := results.Begin(sc.Name, env.now())
	logger.Info("Scenario started.", zap.String("run_id", run.ID))

	err := sc.Run(ctx, env, &Steps{run: run, env: env, logger: logger})
	results.Finish(run, env.now(), err)

	if run.Passed {
		logger.Info("Scenario passed.", zap.Int("steps", len(run.Steps)))
	} else {
		logger.Warn("Scenario failed.", zap.Int("steps", len(run.Steps)), zap.String("error", run.Error))
	}
	return run
}

var registry = map[string]Scenario{}

func register(sc Scenario) {
	if _, dup := registry[sc.Name]; dup {
		panic("scenario: duplicate registration of " + sc.Name)
	}
	registry[sc.Name] = sc
}

// All returns every scenario sorted by name.
func All() []Scenario {
	out := make([]Scenario, 0, len(registry))
	for _, sc := range registry {
		out = append(out, sc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Lookup returns the named scenario.
func Lookup(name string) (Scenario, error) {
	sc, ok := registry[name]
	if !ok {
		return Scenario{}, fmt.Errorf("%w: %q", ErrUnknownScenario, name)
	}
	return sc, nil
}

// grab captures the screen of s and reports whether it produced output.
func grab(ctx context.Context, s *device.Session) (device.Snapshot, error) {
	snap, err := s.Display.Grab(ctx)
	if err != nil {
		return nil, fmt.Errorf("capture on %s: %w", s.Name, err)
	}
	return snap, nil
}
