// Package bluetooth drives the Bluetooth settings flows of an Android style
// HMI (head unit or phone) through its screen, touch panel and buttons.
//
// Every operation answers a yes/no question about the UI. A negative answer
// ("the PAIR popup never showed up") is returned as false with a nil error;
// errors are reserved for configuration problems, input failures and
// cancellation.
package bluetooth

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/hmi-harness/api/schemas"
	"github.com/xkilldash9x/hmi-harness/internal/device"
	"github.com/xkilldash9x/hmi-harness/internal/poller"
)

// Resource keys.
const (
	KeyScreenTransitionDelay = "SCREEN_TRANSITION_DELAY_S"
	KeyBottomSwipe           = "BOTTOM_SWIPE"
	KeyUnlockDelay           = "UNLOCK_DELAY_S"
	KeyRecentAppsIcon        = "RECENT_APPS_ICON"
	KeyFooterBar             = "FOOTER_BAR_RECTANGLE"
	KeyPairPopup             = "PAIR_POPUP_RECTANGLE"
	KeyForgetPopup           = "FORGET_POPUP_RECTANGLE"
	KeyDeviceDetailsIcon     = "DEVICE_DETAILS_ICON"
)

// Button identifiers. Digit buttons are named by the digit itself.
const (
	ButtonPower = "POWER"
	ButtonHome  = "HOME"
	ButtonEnter = "ENTER"
)

// On-screen labels the flows look for.
const (
	labelPairNewDevice = "Pair new device"
	labelPair          = "PAIR"
	labelForget        = "FORGET"
	labelForgetDevice  = "FORGET DEVICE"
)

// Budgets configures the retry limits of the polling operations.
type Budgets struct {
	ScrollingTries  int
	PopupCheckTries int
	PopupCheckSleep time.Duration
}

// DefaultBudgets returns the stock retry limits.
func DefaultBudgets() Budgets {
	return Budgets{
		ScrollingTries:  poller.ScrollingTries,
		PopupCheckTries: poller.PopupCheckTries,
		PopupCheckSleep: poller.PopupCheckSleep,
	}
}

// Tester runs connectivity flows on one device session.
type Tester struct {
	session *device.Session
	poll    *poller.Poller
	logger  *zap.Logger
	budgets Budgets

	transition  time.Duration
	bottomSwipe schemas.Swipe
}

// Option customises a Tester.
type Option func(*Tester)

// WithBudgets overrides the retry limits. Non-positive fields keep their defaults.
func WithBudgets(b Budgets) Option {
	return func(t *Tester) {
		if b.ScrollingTries > 0 {
			t.budgets.ScrollingTries = b.ScrollingTries
		}
		if b.PopupCheckTries > 0 {
			t.budgets.PopupCheckTries = b.PopupCheckTries
		}
		if b.PopupCheckSleep > 0 {
			t.budgets.PopupCheckSleep = b.PopupCheckSleep
		}
	}
}

// New creates a tester. The session needs a touch capability and the
// transition delay and bottom swipe resources.
func New(s *device.Session, opts ...Option) (*Tester, error) {
	if s.Touch == nil {
		return nil, fmt.Errorf("bluetooth: device %q: %w: touch", s.Name, device.ErrMissingCapability)
	}
	t := &Tester{
		session: s,
		logger:  s.Logger.Named("bluetooth"),
		budgets: DefaultBudgets(),
	}
	for _, opt := range opts {
		opt(t)
	}
	var err error
	if t.transition, err = s.Resources.Seconds(KeyScreenTransitionDelay); err != nil {
		return nil, fmt.Errorf("bluetooth: device %q: %w", s.Name, err)
	}
	if t.bottomSwipe, err = s.Resources.Swipe(KeyBottomSwipe); err != nil {
		return nil, fmt.Errorf("bluetooth: device %q: %w", s.Name, err)
	}
	t.poll = poller.New(s.Display, s.Clock, t.logger)
	return t, nil
}

func (t *Tester) sleep(ctx context.Context, d time.Duration) error {
	return t.session.Clock.Sleep(ctx, d)
}

// tapAndSettle taps the centre of the located element and waits for the
// screen transition.
func (t *Tester) tapAndSettle(ctx context.Context, at schemas.Rectangle) error {
	if err := t.session.Touch.Tap(ctx, at.Center()); err != nil {
		return err
	}
	return t.sleep(ctx, t.transition)
}

func (t *Tester) tap(ctx context.Context, at schemas.Rectangle) error {
	return t.session.Touch.Tap(ctx, at.Center())
}

func (t *Tester) swipeUp(ctx context.Context) error {
	return t.session.Touch.Swipe(ctx, t.bottomSwipe)
}

func (t *Tester) scrollConfig() poller.Config {
	return poller.Config{MaxAttempts: t.budgets.ScrollingTries, Delay: t.transition, Advance: t.swipeUp}
}

func (t *Tester) popupConfig() poller.Config {
	return poller.Config{MaxAttempts: t.budgets.PopupCheckTries, Delay: t.budgets.PopupCheckSleep}
}

func (t *Tester) press(ctx context.Context, b device.Button, settle time.Duration) error {
	if err := b.Press(ctx); err != nil {
		return err
	}
	return t.sleep(ctx, settle)
}

// Unlock wakes the device and enters pin on its keypad buttons. It reports
// whether the home screen footer (recent apps icon) is visible afterwards.
// A wrong PIN or a device that stays dark yields false.
func (t *Tester) Unlock(ctx context.Context, pin string) (bool, error) {
	res := t.session.Resources
	if err := res.Require(KeyUnlockDelay, KeyRecentAppsIcon); err != nil {
		return false, fmt.Errorf("bluetooth: unlock: %w", err)
	}
	unlockDelay, err := res.Seconds(KeyUnlockDelay)
	if err != nil {
		return false, fmt.Errorf("bluetooth: unlock: %w", err)
	}
	icon, err := res.Signature(KeyRecentAppsIcon)
	if err != nil {
		return false, fmt.Errorf("bluetooth: unlock: %w", err)
	}
	footer, err := res.Region(KeyFooterBar)
	if err != nil {
		return false, fmt.Errorf("bluetooth: unlock: %w", err)
	}

	// Resolve every button before the first press so a bad PIN never leaves
	// the keypad half-entered.
	power, err := t.session.Button(ButtonPower)
	if err != nil {
		return false, fmt.Errorf("bluetooth: unlock: %w", err)
	}
	enter, err := t.session.Button(ButtonEnter)
	if err != nil {
		return false, fmt.Errorf("bluetooth: unlock: %w", err)
	}
	digits := make([]device.Button, 0, len(pin))
	for _, r := range pin {
		if r < '0' || r > '9' {
			return false, fmt.Errorf("bluetooth: unlock: pin contains non-digit %q", r)
		}
		b, err := t.session.Button(string(r))
		if err != nil {
			return false, fmt.Errorf("bluetooth: unlock: %w", err)
		}
		digits = append(digits, b)
	}

	if err := t.press(ctx, power, t.transition); err != nil {
		return false, fmt.Errorf("bluetooth: unlock: power: %w", err)
	}
	if err := t.swipeUp(ctx); err != nil {
		return false, fmt.Errorf("bluetooth: unlock: swipe: %w", err)
	}
	if err := t.sleep(ctx, t.transition); err != nil {
		return false, err
	}
	for _, b := range digits {
		if err := t.press(ctx, b, t.transition); err != nil {
			return false, fmt.Errorf("bluetooth: unlock: digit: %w", err)
		}
	}
	if err := t.press(ctx, enter, unlockDelay); err != nil {
		return false, fmt.Errorf("bluetooth: unlock: enter: %w", err)
	}

	ok, err := t.poll.Once(ctx, poller.Target{Image: icon, Region: footer}, nil)
	if err != nil {
		return false, fmt.Errorf("bluetooth: unlock: %w", err)
	}
	t.logger.Info("Unlock attempted.", zap.Bool("unlocked", ok))
	return ok, nil
}

// OpenApp goes to the home screen and scrolls the launcher until an app
// labelled name is visible, then opens it.
func (t *Tester) OpenApp(ctx context.Context, name string) (bool, error) {
	home, err := t.session.Button(ButtonHome)
	if err != nil {
		return false, fmt.Errorf("bluetooth: open app: %w", err)
	}
	if err := t.press(ctx, home, t.transition); err != nil {
		return false, fmt.Errorf("bluetooth: open app: home: %w", err)
	}
	ok, err := t.poll.Poll(ctx, t.scrollConfig(), poller.Target{Text: name}, t.tapAndSettle)
	if err != nil {
		return false, fmt.Errorf("bluetooth: open app %q: %w", name, err)
	}
	t.logger.Info("Open app attempted.", zap.String("app", name), zap.Bool("opened", ok))
	return ok, nil
}

// OpenSettingsMenu scrolls the current screen until the menu entry is
// visible and opens it.
func (t *Tester) OpenSettingsMenu(ctx context.Context, menu string) (bool, error) {
	ok, err := t.poll.Poll(ctx, t.scrollConfig(), poller.Target{Text: menu}, t.tapAndSettle)
	if err != nil {
		return false, fmt.Errorf("bluetooth: open menu %q: %w", menu, err)
	}
	t.logger.Info("Open settings menu attempted.", zap.String("menu", menu), zap.Bool("opened", ok))
	return ok, nil
}

// RequestToPair opens "Pair new device" and taps peer once it appears in the
// list of discovered devices.
func (t *Tester) RequestToPair(ctx context.Context, peer string) (bool, error) {
	ok, err := t.poll.Once(ctx, poller.Target{Text: labelPairNewDevice}, t.tapAndSettle)
	if err != nil || !ok {
		return false, wrap("request to pair", err)
	}
	ok, err = t.poll.Poll(ctx, t.popupConfig(), poller.Target{Text: peer}, t.tap)
	if err != nil {
		return false, wrap("request to pair", err)
	}
	t.logger.Info("Pair request attempted.", zap.String("peer", peer), zap.Bool("requested", ok))
	return ok, nil
}

// AcceptToPair waits for the pairing popup and confirms it.
func (t *Tester) AcceptToPair(ctx context.Context) (bool, error) {
	region, err := t.session.Resources.Region(KeyPairPopup)
	if err != nil {
		return false, wrap("accept to pair", err)
	}
	ok, err := t.poll.Poll(ctx, t.popupConfig(), poller.Target{Text: labelPair, Region: region}, t.tap)
	if err != nil {
		return false, wrap("accept to pair", err)
	}
	t.logger.Info("Pair accept attempted.", zap.Bool("accepted", ok))
	return ok, nil
}

// IsPairedToDevice reports whether peer shows up on screen within the popup
// check budget.
func (t *Tester) IsPairedToDevice(ctx context.Context, peer string) (bool, error) {
	ok, err := t.poll.Poll(ctx, t.popupConfig(), poller.Target{Text: peer}, nil)
	if err != nil {
		return false, wrap("is paired", err)
	}
	t.logger.Info("Pairing checked.", zap.String("peer", peer), zap.Bool("paired", ok))
	return ok, nil
}

// ForgetDevice opens the details of the paired device and removes it.
// Each step gets a single capture.
func (t *Tester) ForgetDevice(ctx context.Context) (bool, error) {
	res := t.session.Resources
	icon, err := res.Signature(KeyDeviceDetailsIcon)
	if err != nil {
		return false, wrap("forget device", err)
	}
	region, err := res.Region(KeyForgetPopup)
	if err != nil {
		return false, wrap("forget device", err)
	}

	steps := []struct {
		target poller.Target
		then   poller.FoundFunc
	}{
		{poller.Target{Image: icon}, t.tapAndSettle},
		{poller.Target{Text: labelForget}, t.tapAndSettle},
		{poller.Target{Text: labelForgetDevice, Region: region}, t.tap},
	}
	for _, step := range steps {
		ok, err := t.poll.Once(ctx, step.target, step.then)
		if err != nil {
			return false, wrap("forget device", err)
		}
		if !ok {
			t.logger.Info("Forget device stopped, element missing.", zap.Stringer("target", step.target))
			return false, nil
		}
	}
	t.logger.Info("Device forgotten.")
	return true, nil
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("bluetooth: %s: %w", op, err)
}
