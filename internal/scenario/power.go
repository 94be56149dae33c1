package scenario

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/hmi-harness/internal/command"
	"github.com/xkilldash9x/hmi-harness/internal/device"
	"github.com/xkilldash9x/hmi-harness/internal/relay"
)

// ErrNoFlashCommand is returned by the software update scenario when no
// flash command is configured.
var ErrNoFlashCommand = errors.New("scenario.flash_command is not configured")

func init() {
	register(Scenario{
		Name:        "hu-power-on",
		Description: "Power the head unit and its display on and wait for display output.",
		Run:         powerOn,
	})
	register(Scenario{
		Name:        "hu-power-off",
		Description: "Power the head unit and its display off and check the display goes dark.",
		Run:         powerOff,
	})
	register(Scenario{
		Name:        "hu-sw-update",
		Description: "Flash the head unit in programming mode and check it boots afterwards.",
		Run:         softwareUpdate,
	})
}

// powerBench bundles the relay channels and the head unit display the power
// scenarios work with.
type powerBench struct {
	env      *Env
	hu       *device.Session
	display  *relay.Switch
	power    *relay.Switch
	progMode *relay.Switch
}

func newPowerBench(env *Env, withProgMode bool) (*powerBench, error) {
	b := &powerBench{env: env}
	var err error
	if b.hu, err = env.Sessions.Session(env.Params.HeadUnit); err != nil {
		return nil, err
	}
	if b.display, err = env.Relays.Switch(relay.HeadUnitDisplay); err != nil {
		return nil, err
	}
	if b.power, err = env.Relays.Switch(relay.HeadUnitPower); err != nil {
		return nil, err
	}
	if withProgMode {
		if b.progMode, err = env.Relays.Switch(relay.ProgrammingMode); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// expect reports whether sw is in want. A channel without a status command
// that has not been switched yet cannot be verified and is accepted.
func (b *powerBench) expect(ctx context.Context, sw *relay.Switch, want relay.State) (bool, error) {
	got, err := sw.State(ctx)
	if err != nil {
		return false, err
	}
	if got == relay.Unknown {
		b.env.logger().Warn("Relay state cannot be read, assuming precondition holds.",
			zap.String("switch", sw.Name()), zap.Stringer("want", want))
		return true, nil
	}
	return got == want, nil
}

func (b *powerBench) displayOutput(ctx context.Context, want bool) (bool, error) {
	snap, err := grab(ctx, b.hu)
	if err != nil {
		return false, err
	}
	return (snap != nil) == want, nil
}

func (b *powerBench) checkState(ctx context.Context, st *Steps, sw *relay.Switch, want relay.State) error {
	name := fmt.Sprintf("%s relay %s", sw.Name(), want)
	return st.Check(name, "", func() (bool, error) { return b.expect(ctx, sw, want) })
}

func (b *powerBench) checkDisplay(ctx context.Context, st *Steps, want bool) error {
	name := "display output available"
	if !want {
		name = "no display output"
	}
	return st.Check(name, b.hu.Name, func() (bool, error) { return b.displayOutput(ctx, want) })
}

// switchAndWait turns the listed channels to state and then waits.
func (b *powerBench) switchAndWait(ctx context.Context, st *Steps, state relay.State, wait time.Duration, sws ...*relay.Switch) error {
	for _, sw := range sws {
		err := st.Do(fmt.Sprintf("switch %s %s", sw.Name(), state), "", func() error {
			if state == relay.On {
				return sw.On(ctx)
			}
			return sw.Off(ctx)
		})
		if err != nil {
			return err
		}
	}
	return b.env.sleep(ctx, wait)
}

func powerOn(ctx context.Context, env *Env, st *Steps) error {
	b, err := newPowerBench(env, false)
	if err != nil {
		return err
	}
	for _, sw := range []*relay.Switch{b.display, b.power} {
		if err := b.checkState(ctx, st, sw, relay.Off); err != nil {
			return err
		}
	}
	if err := b.checkDisplay(ctx, st, false); err != nil {
		return err
	}
	if err := b.switchAndWait(ctx, st, relay.On, env.Params.BootTime, b.display, b.power); err != nil {
		return err
	}
	return b.checkDisplay(ctx, st, true)
}

func powerOff(ctx context.Context, env *Env, st *Steps) error {
	b, err := newPowerBench(env, false)
	if err != nil {
		return err
	}
	for _, sw := range []*relay.Switch{b.display, b.power} {
		if err := b.checkState(ctx, st, sw, relay.On); err != nil {
			return err
		}
	}
	if err := b.checkDisplay(ctx, st, true); err != nil {
		return err
	}
	if err := b.switchAndWait(ctx, st, relay.Off, env.Params.ShutdownTime, b.display, b.power); err != nil {
		return err
	}
	return b.checkDisplay(ctx, st, false)
}

func softwareUpdate(ctx context.Context, env *Env, st *Steps) error {
	if len(env.Params.FlashCommand) == 0 {
		return ErrNoFlashCommand
	}
	b, err := newPowerBench(env, true)
	if err != nil {
		return err
	}
	p := env.Params

	for _, sw := range []*relay.Switch{b.display, b.power, b.progMode} {
		if err := b.checkState(ctx, st, sw, relay.Off); err != nil {
			return err
		}
	}
	if err := b.checkDisplay(ctx, st, false); err != nil {
		return err
	}

	if err := b.switchAndWait(ctx, st, relay.On, p.SwitchingDelay, b.progMode); err != nil {
		return err
	}
	if err := b.switchAndWait(ctx, st, relay.On, p.ProgModeBootTime, b.power); err != nil {
		return err
	}
	err = st.Do("flash head unit", b.hu.Name, func() error {
		out, err := command.RunArgv(ctx, env.runner(), p.FlashCommand)
		env.logger().Debug("Flash command finished.", zap.ByteString("output", out))
		return err
	})
	if err != nil {
		return err
	}
	if err := b.switchAndWait(ctx, st, relay.Off, p.ShutdownTime, b.power); err != nil {
		return err
	}
	if err := b.switchAndWait(ctx, st, relay.Off, p.SwitchingDelay, b.progMode); err != nil {
		return err
	}
	if err := b.switchAndWait(ctx, st, relay.On, p.BootTime, b.display, b.power); err != nil {
		return err
	}
	return b.checkDisplay(ctx, st, true)
}
