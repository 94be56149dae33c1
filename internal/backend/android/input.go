package android

import (
	"context"
	"fmt"
	"strconv"

	"github.com/xkilldash9x/hmi-harness/api/schemas"
	"github.com/xkilldash9x/hmi-harness/internal/device"
)

// InputTouch injects touches with the "input" shell tool. It is slower than
// minitouch but needs nothing installed on the device.
type InputTouch struct {
	adb *ADB
}

var _ device.Touch = (*InputTouch)(nil)

// NewInputTouch returns a touch capability backed by "input tap/swipe".
func NewInputTouch(adb *ADB) *InputTouch { return &InputTouch{adb: adb} }

// Tap implements device.Touch.
func (t *InputTouch) Tap(ctx context.Context, p schemas.Point) error {
	if _, err := t.adb.Shell(ctx, "input", "tap", strconv.Itoa(p.X), strconv.Itoa(p.Y)); err != nil {
		return fmt.Errorf("android: tap: %w", err)
	}
	return nil
}

// Swipe implements device.Touch.
func (t *InputTouch) Swipe(ctx context.Context, s schemas.Swipe) error {
	args := []string{"input", "swipe",
		strconv.Itoa(s.From.X), strconv.Itoa(s.From.Y), strconv.Itoa(s.To.X), strconv.Itoa(s.To.Y)}
	if s.Duration > 0 {
		args = append(args, strconv.FormatInt(s.Duration.Milliseconds(), 10))
	}
	if _, err := t.adb.Shell(ctx, args...); err != nil {
		return fmt.Errorf("android: swipe: %w", err)
	}
	return nil
}
