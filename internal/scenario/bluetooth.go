package scenario

import (
	"context"

	"github.com/xkilldash9x/hmi-harness/internal/bluetooth"
)

func init() {
	register(Scenario{
		Name:        "pair-new-device",
		Description: "Pair the phone with the head unit from both sides and verify the pairing.",
		Run:         pairNewDevice,
	})
	register(Scenario{
		Name:        "forget-device-hu",
		Description: "Forget the paired phone on the head unit.",
		Run:         forgetOnHeadUnit,
	})
	register(Scenario{
		Name:        "forget-device-phone",
		Description: "Unlock the phone and forget the paired head unit.",
		Run:         forgetOnPhone,
	})
}

// peer is a device under test wrapped in a connectivity tester.
type peer struct {
	name string
	bt   *bluetooth.Tester
}

func (e *Env) peer(name string) (*peer, error) {
	s, err := e.Sessions.Session(name)
	if err != nil {
		return nil, err
	}
	bt, err := bluetooth.New(s, bluetooth.WithBudgets(bluetooth.Budgets{
		ScrollingTries:  e.Harness.ScrollingTries,
		PopupCheckTries: e.Harness.PopupCheckTries,
		PopupCheckSleep: e.Harness.PopupCheckSleep,
	}))
	if err != nil {
		return nil, err
	}
	return &peer{name: name, bt: bt}, nil
}

func openConnectedDevices(ctx context.Context, env *Env, st *Steps, p *peer) error {
	app, menu := env.Params.SettingsApp, env.Params.SettingsMenu
	if err := st.Check("open "+app, p.name, func() (bool, error) { return p.bt.OpenApp(ctx, app) }); err != nil {
		return err
	}
	return st.Check("open "+menu, p.name, func() (bool, error) { return p.bt.OpenSettingsMenu(ctx, menu) })
}

func unlock(ctx context.Context, env *Env, st *Steps, p *peer) error {
	return st.Check("unlock", p.name, func() (bool, error) { return p.bt.Unlock(ctx, env.Params.PhonePIN) })
}

func pairNewDevice(ctx context.Context, env *Env, st *Steps) error {
	hu, err := env.peer(env.Params.HeadUnit)
	if err != nil {
		return err
	}
	phone, err := env.peer(env.Params.Phone)
	if err != nil {
		return err
	}

	if err := openConnectedDevices(ctx, env, st, hu); err != nil {
		return err
	}
	if err := unlock(ctx, env, st, phone); err != nil {
		return err
	}
	if err := openConnectedDevices(ctx, env, st, phone); err != nil {
		return err
	}

	checks := []struct {
		name string
		p    *peer
		fn   func() (bool, error)
	}{
		{"request pairing with " + env.Params.HeadUnitName, phone, func() (bool, error) {
			return phone.bt.RequestToPair(ctx, env.Params.HeadUnitName)
		}},
		{"accept pairing", hu, func() (bool, error) { return hu.bt.AcceptToPair(ctx) }},
		{"accept pairing", phone, func() (bool, error) { return phone.bt.AcceptToPair(ctx) }},
		{"paired to " + env.Params.PhoneName, hu, func() (bool, error) {
			return hu.bt.IsPairedToDevice(ctx, env.Params.PhoneName)
		}},
		{"paired to " + env.Params.HeadUnitName, phone, func() (bool, error) {
			return phone.bt.IsPairedToDevice(ctx, env.Params.HeadUnitName)
		}},
	}
	for _, c := range checks {
		if err := st.Check(c.name, c.p.name, c.fn); err != nil {
			return err
		}
	}
	return nil
}

func forget(ctx context.Context, env *Env, st *Steps, p *peer) error {
	if err := openConnectedDevices(ctx, env, st, p); err != nil {
		return err
	}
	return st.Check("forget device", p.name, func() (bool, error) { return p.bt.ForgetDevice(ctx) })
}

func forgetOnHeadUnit(ctx context.Context, env *Env, st *Steps) error {
	hu, err := env.peer(env.Params.HeadUnit)
	if err != nil {
		return err
	}
	return forget(ctx, env, st, hu)
}

func forgetOnPhone(ctx context.Context, env *Env, st *Steps) error {
	phone, err := env.peer(env.Params.Phone)
	if err != nil {
		return err
	}
	if err := unlock(ctx, env, st, phone); err != nil {
		return err
	}
	return forget(ctx, env, st, phone)
}
