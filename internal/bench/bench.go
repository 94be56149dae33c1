// Package bench assembles the devices under test and the relay box described
// by the configuration into ready-to-use sessions.
package bench

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/hmi-harness/internal/backend/android"
	"github.com/xkilldash9x/hmi-harness/internal/backend/cdp"
	"github.com/xkilldash9x/hmi-harness/internal/command"
	"github.com/xkilldash9x/hmi-harness/internal/config"
	"github.com/xkilldash9x/hmi-harness/internal/device"
	"github.com/xkilldash9x/hmi-harness/internal/relay"
	"github.com/xkilldash9x/hmi-harness/internal/resources"
	"github.com/xkilldash9x/hmi-harness/internal/vision"
)

// ErrUnknownDevice is returned by Session for a device that is not configured.
var ErrUnknownDevice = errors.New("bench: unknown device")

// OpenFunc opens one device and returns its session.
type OpenFunc func(ctx context.Context, name string, dc config.DeviceConfig, env Env) (*device.Session, error)

// Env is what an OpenFunc may use besides the device entry itself.
type Env struct {
	Runner  command.Runner
	Logger  *zap.Logger
	Harness config.HarnessConfig
}

// Bench owns every open session and the relay box.
type Bench struct {
	Relays *relay.Box
	Runner command.Runner

	sessions map[string]*device.Session
	logger   *zap.Logger
}

type options struct {
	runner  command.Runner
	logger  *zap.Logger
	openers map[string]OpenFunc
	only    []string
}

// Option customises Open.
type Option func(*options)

// WithRunner sets the runner used for adb, relay and scenario commands.
func WithRunner(r command.Runner) Option { return func(o *options) { o.runner = r } }

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(o *options) { o.logger = l } }

// WithOpener replaces the opener of a backend.
func WithOpener(backend string, fn OpenFunc) Option {
	return func(o *options) { o.openers[backend] = fn }
}

// WithDevices restricts Open to the named devices.
func WithDevices(names ...string) Option { return func(o *options) { o.only = names } }

// DefaultOpeners returns the built-in backend openers.
func DefaultOpeners() map[string]OpenFunc {
	return map[string]OpenFunc{
		config.BackendCDP:     openCDP,
		config.BackendAndroid: openAndroid,
	}
}

// Open starts every configured device concurrently. If any device fails, the
// ones already opened are closed and the joined error is returned.
func Open(ctx context.Context, cfg config.Interface, opts ...Option) (*Bench, error) {
	o := &options{runner: command.ExecRunner{}, logger: zap.NewNop(), openers: DefaultOpeners()}
	for _, opt := range opts {
		opt(o)
	}
	logger := o.logger.Named("bench")

	devices, err := selectDevices(cfg.Devices(), o.only)
	if err != nil {
		return nil, err
	}

	box, err := relay.NewBox(relayConfigs(cfg.Relays()), o.runner, o.logger)
	if err != nil {
		return nil, fmt.Errorf("bench: %w", err)
	}
	b := &Bench{Relays: box, Runner: o.runner, sessions: make(map[string]*device.Session), logger: logger}

	openCtx := ctx
	if timeout := cfg.Harness().OpenTimeout; timeout > 0 {
		var cancel context.CancelFunc
		openCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	for _, name := range devices {
		if backend := cfg.Devices()[name].Backend; o.openers[backend] == nil {
			return nil, fmt.Errorf("bench: device %q: no opener for backend %q", name, backend)
		}
	}

	env := Env{Runner: o.runner, Logger: o.logger, Harness: cfg.Harness()}
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(openCtx)
	for _, name := range devices {
		name := name
		dc := cfg.Devices()[name]
		open := o.openers[dc.Backend]
		g.Go(func() error {
			s, err := open(gctx, name, dc, env)
			if err != nil {
				return fmt.Errorf("device %q: %w", name, err)
			}
			mu.Lock()
			b.sessions[name] = s
			mu.Unlock()
			logger.Info("Device opened.", zap.String("device", name), zap.String("backend", dc.Backend))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if cerr := b.Close(); cerr != nil {
			logger.Warn("Failed to close devices after startup error.", zap.Error(cerr))
		}
		return nil, fmt.Errorf("bench: %w", err)
	}
	return b, nil
}

func selectDevices(all map[string]config.DeviceConfig, only []string) ([]string, error) {
	if len(only) == 0 {
		names := make([]string, 0, len(all))
		for n := range all {
			names = append(names, n)
		}
		sort.Strings(names)
		return names, nil
	}
	for _, n := range only {
		if _, ok := all[n]; !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownDevice, n)
		}
	}
	return only, nil
}

func relayConfigs(in map[string]config.RelayConfig) map[string]relay.SwitchConfig {
	out := make(map[string]relay.SwitchConfig, len(in))
	for name, r := range in {
		out[name] = relay.SwitchConfig{On: r.On, Off: r.Off, Status: r.Status}
	}
	return out
}

// Session returns the named device session.
func (b *Bench) Session(name string) (*device.Session, error) {
	s, ok := b.sessions[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDevice, name)
	}
	return s, nil
}

// Devices lists the open devices in sorted order.
func (b *Bench) Devices() []string {
	names := make([]string, 0, len(b.sessions))
	for n := range b.sessions {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Close closes every session and returns the joined errors.
func (b *Bench) Close() error {
	var errs []error
	for _, name := range b.Devices() {
		if err := b.sessions[name].Close(); err != nil {
			errs = append(errs, fmt.Errorf("device %q: %w", name, err))
		}
		delete(b.sessions, name)
	}
	return errors.Join(errs...)
}

func newMatcher(dc config.DeviceConfig, logger *zap.Logger) *vision.Matcher {
	opts := []vision.Option{vision.WithLogger(logger)}
	if dc.MaxDistance > 0 {
		opts = append(opts, vision.WithMaxDistance(dc.MaxDistance))
	}
	return vision.NewMatcher(opts...)
}

func openCDP(ctx context.Context, name string, dc config.DeviceConfig, env Env) (*device.Session, error) {
	res, err := resources.Load(dc.Resources)
	if err != nil {
		return nil, err
	}
	logger := env.Logger.With(zap.String("device", name))
	b, err := cdp.Open(ctx, cdp.Config{
		URL:           dc.CDP.URL,
		Headless:      dc.CDP.Headless,
		Args:          dc.CDP.Args,
		Width:         dc.CDP.Width,
		Height:        dc.CDP.Height,
		ActionTimeout: dc.CDP.ActionTimeout,
		SwipeSteps:    dc.CDP.SwipeSteps,
	}, newMatcher(dc, logger), logger)
	if err != nil {
		return nil, err
	}
	s, err := device.NewSession(name, b, res,
		device.WithMouse(b), device.WithTouch(b), device.WithKeyboard(b),
		device.WithLogger(env.Logger), device.WithCloser(b))
	if err != nil {
		_ = b.Close()
		return nil, err
	}
	return s, nil
}

func openAndroid(ctx context.Context, name string, dc config.DeviceConfig, env Env) (*device.Session, error) {
	res, err := resources.Load(dc.Resources)
	if err != nil {
		return nil, err
	}
	logger := env.Logger.With(zap.String("device", name))
	d, err := android.Open(ctx, android.Config{
		ADBPath:       dc.Android.ADBPath,
		Serial:        dc.Android.Serial,
		Hierarchy:     dc.Android.Hierarchy,
		Touch:         dc.Android.Touch,
		MinitouchPort: dc.Android.MinitouchPort,
		MoveRate:      dc.Android.MoveRate,
		Keycodes:      dc.Android.Keycodes,
	}, env.Runner, newMatcher(dc, logger), logger)
	if err != nil {
		return nil, err
	}
	s, err := device.NewSession(name, d.Display, res,
		device.WithTouch(d.Touch), device.WithButtons(d.Buttons),
		device.WithLogger(env.Logger), device.WithCloser(d))
	if err != nil {
		_ = d.Close()
		return nil, err
	}
	return s, nil
}
