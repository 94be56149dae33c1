// internal/screenkb/keyboard.go
package screenkb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/hmi-harness/api/schemas"
	"github.com/xkilldash9x/hmi-harness/internal/device"
	"github.com/xkilldash9x/hmi-harness/internal/resources"
)

// Resource keys consumed by the keyboard.
const (
	keyOffIcon               = "SCREEN_KB_OFF_ICON"
	keyTransitionDelay       = "SCREEN_KB_TRANSITION_DELAY_S"
	keyScreenTransitionDelay = "SCREEN_TRANSITION_DELAY_S"
	keyLettersSwitch         = "SCREEN_KB.ABC"
	keyNumbersSwitch         = "SCREEN_KB.123"
	keyShift                 = "SCREEN_KB.SHIFT_LEFT"
	keyEnter                 = "SCREEN_KB.ENTER"
)

// DefaultCharDelay is used when Type is called with a non-positive delay.
const DefaultCharDelay = 100 * time.Millisecond

// ErrUnsupportedCharacter is returned for runes outside letters, digits and '#'.
var ErrUnsupportedCharacter = errors.New("unsupported character")

// Keyboard types text by clicking keys of an on-screen keyboard that is
// located on a captured screen image. Its layout is discovered at runtime, so
// every key click is preceded by a lookup in the most recent snapshot.
//
// A missing key is never retried: once the mode is known the layout is
// deterministic, so absence means a wrong resource or an unexpected screen.
type Keyboard struct {
	display device.Display
	mouse   device.Mouse
	res     *resources.Table
	clock   device.Clock
	logger  *zap.Logger

	icons           switchIcons
	shift           schemas.Signature
	enter           schemas.Signature
	transitionDelay time.Duration

	// snapshot is the most recent capture. It is replaced after every action
	// that changes the key layout or its rendered state.
	snapshot device.Snapshot
}

// Option customises a Keyboard.
type Option func(*Keyboard)

// WithClock overrides the clock used for settle delays.
func WithClock(c device.Clock) Option { return func(k *Keyboard) { k.clock = c } }

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(k *Keyboard) { k.logger = l } }

// New opens the on-screen keyboard. It captures the screen, clicks the closed
// keyboard icon and waits for the screen transition.
func New(ctx context.Context, display device.Display, mouse device.Mouse, res *resources.Table, opts ...Option) (*Keyboard, error) {
	if display == nil || mouse == nil {
		return nil, fmt.Errorf("screenkb: %w: display and mouse are required", device.ErrMissingCapability)
	}
	k := &Keyboard{
		display: display,
		mouse:   mouse,
		res:     res,
		clock:   device.RealClock{},
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(k)
	}
	k.logger = k.logger.Named("screenkb")

	if err := res.Require(keyOffIcon, keyTransitionDelay, keyScreenTransitionDelay,
		keyLettersSwitch, keyNumbersSwitch, keyShift, keyEnter); err != nil {
		return nil, fmt.Errorf("screenkb: %w", err)
	}
	var err error
	if k.transitionDelay, err = res.Seconds(keyTransitionDelay); err != nil {
		return nil, fmt.Errorf("screenkb: %w", err)
	}
	screenDelay, err := res.Seconds(keyScreenTransitionDelay)
	if err != nil {
		return nil, fmt.Errorf("screenkb: %w", err)
	}
	sigs, err := k.signatures(keyOffIcon, keyNumbersSwitch, keyLettersSwitch, keyShift, keyEnter)
	if err != nil {
		return nil, err
	}
	k.icons = switchIcons{toNumbers: sigs[1], toLetters: sigs[2]}
	k.shift, k.enter = sigs[3], sigs[4]

	if err := k.capture(ctx); err != nil {
		return nil, err
	}
	at, ok := k.snapshot.FindImage(sigs[0], nil)
	if !ok {
		return nil, fmt.Errorf("screenkb: %s icon: %w", keyOffIcon, device.ErrElementNotFound)
	}
	if err := k.mouse.Click(ctx, at.Center()); err != nil {
		return nil, fmt.Errorf("screenkb: failed to open keyboard: %w", err)
	}
	if err := k.clock.Sleep(ctx, screenDelay); err != nil {
		return nil, err
	}
	k.logger.Debug("On-screen keyboard opened.")
	return k, nil
}

func (k *Keyboard) signatures(keys ...string) ([]schemas.Signature, error) {
	out := make([]schemas.Signature, len(keys))
	for i, key := range keys {
		sig, err := k.res.Signature(key)
		if err != nil {
			return nil, fmt.Errorf("screenkb: %w", err)
		}
		out[i] = sig
	}
	return out, nil
}

type plannedChar struct {
	r     rune
	class charClass
	key   string
	sig   schemas.Signature
}

// plan validates the whole text and resolves every icon before any input is
// sent, so an unsupported rune or unknown key never leaves a half-typed field.
func (k *Keyboard) plan(text string) ([]plannedChar, error) {
	out := make([]plannedChar, 0, len(text))
	for _, r := range text {
		class, key, err := classify(r)
		if err != nil {
			return nil, fmt.Errorf("screenkb: %w", err)
		}
		sig, err := k.res.Signature(key)
		if err != nil {
			return nil, fmt.Errorf("screenkb: %w", err)
		}
		out = append(out, plannedChar{r: r, class: class, key: key, sig: sig})
	}
	return out, nil
}

// Type enters text and submits it with the Enter key. charDelay is the wait
// after each character; the keyboard transition delay is used instead when it
// is longer, so input never outruns the UI.
func (k *Keyboard) Type(ctx context.Context, text string, charDelay time.Duration) error {
	if charDelay <= 0 {
		charDelay = DefaultCharDelay
	}
	chars, err := k.plan(text)
	if err != nil {
		return err
	}
	if err := k.capture(ctx); err != nil {
		return err
	}

	for _, c := range chars {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := k.ensureMode(ctx, c.class.mode); err != nil {
			return err
		}
		if c.class.shift {
			if err := k.pressShift(ctx); err != nil {
				return err
			}
		}
		if err := k.clickKey(ctx, c.key, c.sig, max(charDelay, k.transitionDelay)); err != nil {
			return err
		}
		if c.class.shift {
			// Shift releases after one key; refresh so the next lookup sees it.
			if err := k.capture(ctx); err != nil {
				return err
			}
		}
	}

	if err := k.clickKey(ctx, keyEnter, k.enter, k.transitionDelay); err != nil {
		return err
	}
	k.logger.Debug("Typed text on screen keyboard.", zap.Int("chars", len(chars)))
	return nil
}

// ensureMode switches the keyboard layout when the on-screen evidence says
// it is not in need.
func (k *Keyboard) ensureMode(ctx context.Context, need Mode) error {
	tr := inferRequiredTransition(k.snapshot, need, k.icons)
	if tr == nil {
		k.logger.Debug("No mode switch icon visible, assuming keyboard already in mode.",
			zap.Stringer("mode", need))
		return nil
	}
	if tr.Ambiguous {
		k.logger.Warn("Both mode switch icons visible; switching anyway.",
			zap.Stringer("mode", need))
	}
	if err := k.mouse.Click(ctx, tr.At.Center()); err != nil {
		return fmt.Errorf("screenkb: failed to click %s: %w", tr.Key, err)
	}
	if err := k.clock.Sleep(ctx, k.transitionDelay); err != nil {
		return err
	}
	// The key layout changed; the old snapshot is useless now.
	return k.capture(ctx)
}

func (k *Keyboard) pressShift(ctx context.Context) error {
	if err := k.clickKey(ctx, keyShift, k.shift, k.transitionDelay); err != nil {
		return err
	}
	return k.capture(ctx)
}

func (k *Keyboard) clickKey(ctx context.Context, key string, sig schemas.Signature, settle time.Duration) error {
	at, ok := k.snapshot.FindImage(sig, nil)
	if !ok {
		return fmt.Errorf("screenkb: %s icon: %w", key, device.ErrElementNotFound)
	}
	if err := k.mouse.Click(ctx, at.Center()); err != nil {
		return fmt.Errorf("screenkb: failed to click %s: %w", key, err)
	}
	return k.clock.Sleep(ctx, settle)
}

func (k *Keyboard) capture(ctx context.Context) error {
	snap, err := k.display.Grab(ctx)
	if err != nil {
		return fmt.Errorf("screenkb: capture failed: %w", err)
	}
	if snap == nil {
		return fmt.Errorf("screenkb: %w", device.ErrNoDisplay)
	}
	k.snapshot = snap
	return nil
}
