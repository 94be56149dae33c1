package scenario

import (
	"context"
	"fmt"
	"time"

	"github.com/xkilldash9x/hmi-harness/api/schemas"
	"github.com/xkilldash9x/hmi-harness/internal/command"
	"github.com/xkilldash9x/hmi-harness/internal/device"
	"github.com/xkilldash9x/hmi-harness/internal/screenkb"
)

// Resource keys of the Ignition demo application.
const (
	KeyAppStartArgs     = "APP_START_ARGS"
	KeyAppStartDelay    = "APP_START_DELAY_S"
	KeyAppExitDelay     = "APP_EXIT_DELAY_S"
	KeyLoginUser        = "LOGIN_USER"
	KeyLoginPassword    = "LOGIN_PASSWORD"
	KeyLoginButton      = "LOGIN_BTN_ICON"
	KeyLoginDelay       = "LOGIN_DELAY_S"
	KeyCommandMenu      = "COMMAND_MENU_RECTANGLE"
	keyScreenTransition = "SCREEN_TRANSITION_DELAY_S"
)

// Input boxes sit this many pixels under their labels.
const labelToInputOffset = 30

func init() {
	register(Scenario{
		Name:        "ignition-physical-keyboard",
		Description: "Log in to the Ignition demo with the physical keyboard, say hello and exit.",
		Run:         func(ctx context.Context, env *Env, st *Steps) error { return ignition(ctx, env, st, false) },
	})
	register(Scenario{
		Name:        "ignition-screen-keyboard",
		Description: "Log in to the Ignition demo with the on-screen keyboard, say hello and exit.",
		Run:         func(ctx context.Context, env *Env, st *Steps) error { return ignition(ctx, env, st, true) },
	})
}

type typeFunc func(ctx context.Context, text string) error

// ignitionRun carries the state shared by the demo steps.
type ignitionRun struct {
	s          *device.Session
	env        *Env
	transition time.Duration
	typeText   typeFunc
}

func ignition(ctx context.Context, env *Env, st *Steps, screenKeyboard bool) error {
	s, err := env.Sessions.Session(env.Params.HeadUnit)
	if err != nil {
		return err
	}
	if s.Mouse == nil {
		return fmt.Errorf("device %q: %w: mouse", s.Name, device.ErrMissingCapability)
	}
	res := s.Resources
	if err := res.Require(KeyAppStartArgs, KeyAppStartDelay, KeyAppExitDelay, KeyLoginUser,
		KeyLoginPassword, KeyLoginButton, KeyLoginDelay, keyScreenTransition); err != nil {
		return err
	}
	r := &ignitionRun{s: s, env: env}
	if r.transition, err = res.Seconds(keyScreenTransition); err != nil {
		return err
	}

	if err := st.Do("start application", s.Name, func() error { return r.startApp(ctx) }); err != nil {
		return err
	}

	if screenKeyboard {
		err = st.Do("open screen keyboard", s.Name, func() error {
			kb, err := screenkb.New(ctx, s.Display, s.Mouse, res,
				screenkb.WithClock(s.Clock), screenkb.WithLogger(s.Logger))
			if err != nil {
				return err
			}
			r.typeText = func(ctx context.Context, text string) error {
				return kb.Type(ctx, text, env.Harness.CharDelay)
			}
			return nil
		})
		if err != nil {
			return err
		}
	} else {
		if s.Keyboard == nil {
			return fmt.Errorf("device %q: %w: keyboard", s.Name, device.ErrMissingCapability)
		}
		r.typeText = s.Keyboard.Type
	}

	for _, step := range []struct {
		name string
		fn   func() (bool, error)
	}{
		{"log in", func() (bool, error) { return r.login(ctx) }},
		{"open Empty tab", func() (bool, error) { return r.clickText(ctx, "Empty", nil, r.transition) }},
		{"say hello", func() (bool, error) { return r.clickText(ctx, "Say Hello", nil, r.transition) }},
		{"Hello World shown", func() (bool, error) { return r.visible(ctx, "Hello World") }},
		{"open Command menu", func() (bool, error) { return r.clickText(ctx, "Command", nil, r.transition) }},
		{"exit application", func() (bool, error) { return r.exit(ctx) }},
	} {
		if err := st.Check(step.name, s.Name, step.fn); err != nil {
			return err
		}
	}
	return nil
}

func (r *ignitionRun) startApp(ctx context.Context) error {
	argv, err := r.s.Resources.Strings(KeyAppStartArgs)
	if err != nil {
		return err
	}
	if _, err := command.RunArgv(ctx, r.env.runner(), argv); err != nil {
		return fmt.Errorf("starting application: %w", err)
	}
	delay, err := r.s.Resources.Seconds(KeyAppStartDelay)
	if err != nil {
		return err
	}
	return r.s.Clock.Sleep(ctx, delay)
}

func (r *ignitionRun) snapshot(ctx context.Context) (device.Snapshot, error) {
	snap, err := grab(ctx, r.s)
	if err != nil {
		return nil, err
	}
	if snap == nil {
		return nil, fmt.Errorf("device %q: %w", r.s.Name, device.ErrNoDisplay)
	}
	return snap, nil
}

func (r *ignitionRun) click(ctx context.Context, p schemas.Point, settle time.Duration) error {
	if err := r.s.Mouse.Click(ctx, p); err != nil {
		return err
	}
	return r.s.Clock.Sleep(ctx, settle)
}

// fillBelow clicks the input box under label and types text into it.
func (r *ignitionRun) fillBelow(ctx context.Context, snap device.Snapshot, label, text string) (bool, error) {
	at, ok := snap.FindText(label, nil)
	if !ok {
		return false, nil
	}
	if err := r.click(ctx, at.Below(labelToInputOffset), r.transition); err != nil {
		return false, err
	}
	return true, r.typeText(ctx, text)
}

// login fills both fields from one capture, as the form does not move
// while typing, then presses the login button found on a fresh capture.
func (r *ignitionRun) login(ctx context.Context) (bool, error) {
	res := r.s.Resources
	user, err := res.String(KeyLoginUser)
	if err != nil {
		return false, err
	}
	password, err := res.String(KeyLoginPassword)
	if err != nil {
		return false, err
	}
	button, err := res.Signature(KeyLoginButton)
	if err != nil {
		return false, err
	}
	loginDelay, err := res.Seconds(KeyLoginDelay)
	if err != nil {
		return false, err
	}

	snap, err := r.snapshot(ctx)
	if err != nil {
		return false, err
	}
	for _, field := range []struct{ label, text string }{{"Username", user}, {"Password", password}} {
		ok, err := r.fillBelow(ctx, snap, field.label, field.text)
		if err != nil || !ok {
			return false, err
		}
	}

	if snap, err = r.snapshot(ctx); err != nil {
		return false, err
	}
	at, ok := snap.FindImage(button, nil)
	if !ok {
		return false, nil
	}
	return true, r.click(ctx, at.Center(), loginDelay)
}

func (r *ignitionRun) clickText(ctx context.Context, text string, region *schemas.Rectangle, settle time.Duration) (bool, error) {
	snap, err := r.snapshot(ctx)
	if err != nil {
		return false, err
	}
	at, ok := snap.FindText(text, region)
	if !ok {
		return false, nil
	}
	return true, r.click(ctx, at.Center(), settle)
}

func (r *ignitionRun) visible(ctx context.Context, text string) (bool, error) {
	snap, err := r.snapshot(ctx)
	if err != nil {
		return false, err
	}
	_, ok := snap.FindText(text, nil)
	return ok, nil
}

func (r *ignitionRun) exit(ctx context.Context) (bool, error) {
	region, err := r.s.Resources.Region(KeyCommandMenu)
	if err != nil {
		return false, err
	}
	delay, err := r.s.Resources.Seconds(KeyAppExitDelay)
	if err != nil {
		return false, err
	}
	return r.clickText(ctx, "Exit", region, delay)
}
