// Package relay controls the relay box that powers the devices under test
// and toggles their programming mode. Each relay channel is driven by
// external commands, so any vendor tool or USB relay CLI can be plugged in.
package relay

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/xkilldash9x/hmi-harness/internal/command"
)

// Well-known channel names used by the power scenarios.
const (
	HeadUnitPower   = "head_unit"
	HeadUnitDisplay = "hu_display"
	ProgrammingMode = "hu_prog_mode"
)

// ErrUnknownSwitch is returned by Box.Switch for a channel that is not configured.
var ErrUnknownSwitch = errors.New("relay: unknown switch")

// State of a relay channel.
type State int

const (
	Unknown State = iota
	On
	Off
)

func (s State) String() string {
	switch s {
	case On:
		return "on"
	case Off:
		return "off"
	default:
		return "unknown"
	}
}

// SwitchConfig holds the argument vectors driving one channel. Status is
// optional; without it the last commanded state is reported.
type SwitchConfig struct {
	On     []string `mapstructure:"on"`
	Off    []string `mapstructure:"off"`
	Status []string `mapstructure:"status"`
}

// Switch is one relay channel.
type Switch struct {
	name   string
	cfg    SwitchConfig
	runner command.Runner
	logger *zap.Logger

	mu    sync.Mutex
	state State
}

// NewSwitch validates cfg and returns a switch in the Unknown state.
func NewSwitch(name string, cfg SwitchConfig, runner command.Runner, logger *zap.Logger) (*Switch, error) {
	if len(cfg.On) == 0 || len(cfg.Off) == 0 {
		return nil, fmt.Errorf("relay %q: both on and off commands are required", name)
	}
	if runner == nil {
		runner = command.ExecRunner{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Switch{name: name, cfg: cfg, runner: runner, logger: logger.Named("relay").With(zap.String("switch", name))}, nil
}

// Name returns the channel name.
func (s *Switch) Name() string { return s.name }

// On closes the relay.
func (s *Switch) On(ctx context.Context) error { return s.set(ctx, On, s.cfg.On) }

// Off opens the relay.
func (s *Switch) Off(ctx context.Context) error { return s.set(ctx, Off, s.cfg.Off) }

func (s *Switch) set(ctx context.Context, want State, argv []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := command.RunArgv(ctx, s.runner, argv); err != nil {
		s.state = Unknown
		return fmt.Errorf("relay %q: switching %s: %w", s.name, want, err)
	}
	s.state = want
	s.logger.Info("Relay switched.", zap.Stringer("state", want))
	return nil
}

// State queries the channel. Without a status command it returns the last
// commanded state, which is Unknown until the first switch.
func (s *Switch) State(ctx context.Context) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.cfg.Status) == 0 {
		return s.state, nil
	}
	out, err := command.RunArgv(ctx, s.runner, s.cfg.Status)
	if err != nil {
		return Unknown, fmt.Errorf("relay %q: status: %w", s.name, err)
	}
	st, err := parseState(string(out))
	if err != nil {
		return Unknown, fmt.Errorf("relay %q: %w", s.name, err)
	}
	s.state = st
	return st, nil
}

func parseState(out string) (State, error) {
	switch strings.ToLower(strings.TrimSpace(out)) {
	case "1", "on", "true", "enabled", "closed":
		return On, nil
	case "0", "off", "false", "disabled", "open":
		return Off, nil
	default:
		return Unknown, fmt.Errorf("unrecognised status output %q", strings.TrimSpace(out))
	}
}

// Box is the set of configured channels.
type Box struct {
	switches map[string]*Switch
}

// NewBox builds every configured channel.
func NewBox(cfgs map[string]SwitchConfig, runner command.Runner, logger *zap.Logger) (*Box, error) {
	b := &Box{switches: make(map[string]*Switch, len(cfgs))}
	var errs []error
	for name, cfg := range cfgs {
		sw, err := NewSwitch(name, cfg, runner, logger)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		b.switches[name] = sw
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return b, nil
}

// Switch returns the named channel.
func (b *Box) Switch(name string) (*Switch, error) {
	sw, ok := b.switches[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSwitch, name)
	}
	return sw, nil
}

// Names lists the configured channels in sorted order.
func (b *Box) Names() []string {
	names := make([]string, 0, len(b.switches))
	for n := range b.switches {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
