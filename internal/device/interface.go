// internal/device/interface.go
package device

import (
	"context"
	"errors"
	"time"

	"github.com/xkilldash9x/hmi-harness/api/schemas"
)

var (
	// ErrElementNotFound reports that a required on-screen element was absent
	// from a snapshot. Callers wrap it with the resource key that was searched.
	ErrElementNotFound = errors.New("element not found")
	// ErrNoDisplay reports that the display produced no output (device off).
	ErrNoDisplay = errors.New("no display output available")
	// ErrMissingCapability reports a session lacking an input capability an
	// operation needs (e.g. a touch-driven flow on a mouse-only device).
	ErrMissingCapability = errors.New("missing device capability")
)

// Display captures the current screen state.
type Display interface {
	// Grab returns a point-in-time snapshot. It returns (nil, nil) when the
	// device currently produces no display output; an error is reserved for
	// transport failures of the capture backend itself.
	Grab(ctx context.Context) (Snapshot, error)
}

// Snapshot is an immutable capture that can be queried for elements.
// Neither method reports "not found" as an error.
type Snapshot interface {
	// FindImage locates a template image, optionally scoped to region.
	FindImage(sig schemas.Signature, region *schemas.Rectangle) (schemas.Rectangle, bool)
	// FindText locates literal text, optionally scoped to region.
	FindText(text string, region *schemas.Rectangle) (schemas.Rectangle, bool)
}

// Mouse synthesises pointer clicks.
type Mouse interface {
	Click(ctx context.Context, p schemas.Point) error
}

// Touch synthesises touch gestures.
type Touch interface {
	Tap(ctx context.Context, p schemas.Point) error
	Swipe(ctx context.Context, s schemas.Swipe) error
}

// Button is a single hardware (or emulated hardware) button.
type Button interface {
	Press(ctx context.Context) error
}

// Buttons maps button identifiers ("POWER", "HOME", "ENTER", "0".."9") to buttons.
type Buttons map[string]Button

// Keyboard types text through a physical (non on-screen) keyboard.
type Keyboard interface {
	Type(ctx context.Context, text string) error
}

// Clock provides the blocking settle delays used by every driver.
type Clock interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// RealClock sleeps on the wall clock and wakes early if ctx is cancelled.
type RealClock struct{}

// Sleep blocks for d or until ctx is done.
func (RealClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
