// Package poller implements the bounded search-and-confirm loop shared by the
// UI drivers. A target is looked up on fresh captures until it shows up or
// the attempt budget runs out. Running out is an ordinary negative answer,
// not an error.
package poller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/hmi-harness/api/schemas"
	"github.com/xkilldash9x/hmi-harness/internal/device"
)

// Default budgets used by the Bluetooth flows.
const (
	PopupCheckTries = 10
	PopupCheckSleep = 200 * time.Millisecond
	ScrollingTries  = 4
)

// ErrInvalidTarget is returned when a Target names neither or both of text and image.
var ErrInvalidTarget = errors.New("poller: target must name exactly one of text or image")

// Config bounds one polling loop.
type Config struct {
	MaxAttempts int
	// Delay is the settle time after a miss.
	Delay time.Duration
	// Advance, when set, runs after every miss to bring more of the UI into
	// view (typically a swipe). A nil Advance gives the pure-poll variant,
	// which only sleeps between attempts.
	Advance func(ctx context.Context) error
}

// Target is what a poll searches for.
type Target struct {
	Text   string
	Image  schemas.Signature
	Region *schemas.Rectangle
}

func (t Target) String() string {
	if t.Image != "" {
		return "image " + string(t.Image)
	}
	return fmt.Sprintf("text %q", t.Text)
}

func (t Target) validate() error {
	if (t.Text == "") == (t.Image == "") {
		return ErrInvalidTarget
	}
	return nil
}

func (t Target) find(snap device.Snapshot) (schemas.Rectangle, bool) {
	if t.Image != "" {
		return snap.FindImage(t.Image, t.Region)
	}
	return snap.FindText(t.Text, t.Region)
}

// FoundFunc acts on a located element. It may be nil.
type FoundFunc func(ctx context.Context, at schemas.Rectangle) error

// Poller runs search loops against one display.
type Poller struct {
	display device.Display
	clock   device.Clock
	logger  *zap.Logger
}

// New creates a Poller. A nil clock falls back to wall-clock sleeps and a nil
// logger to a no-op one.
func New(display device.Display, clock device.Clock, logger *zap.Logger) *Poller {
	if clock == nil {
		clock = device.RealClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Poller{display: display, clock: clock, logger: logger.Named("poller")}
}

// Poll captures the screen and searches for target up to cfg.MaxAttempts
// times. On a hit it runs onFound and returns true straight away. The error
// return is reserved for cancellation, invalid input and failures of onFound
// or cfg.Advance.
func (p *Poller) Poll(ctx context.Context, cfg Config, target Target, onFound FoundFunc) (bool, error) {
	if err := target.validate(); err != nil {
		return false, err
	}
	if cfg.MaxAttempts < 1 {
		return false, fmt.Errorf("poller: MaxAttempts must be positive, got %d", cfg.MaxAttempts)
	}

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		at, ok, err := p.search(ctx, target)
		if err != nil {
			return false, err
		}
		if ok {
			p.logger.Debug("Target found.", zap.Stringer("target", target), zap.Int("attempt", attempt))
			if onFound != nil {
				if err := onFound(ctx, at); err != nil {
					return false, fmt.Errorf("poller: acting on %s: %w", target, err)
				}
			}
			return true, nil
		}

		if cfg.Advance != nil {
			if err := cfg.Advance(ctx); err != nil {
				return false, fmt.Errorf("poller: advancing after miss on %s: %w", target, err)
			}
			if err := p.clock.Sleep(ctx, cfg.Delay); err != nil {
				return false, err
			}
			continue
		}
		if attempt < cfg.MaxAttempts {
			if err := p.clock.Sleep(ctx, cfg.Delay); err != nil {
				return false, err
			}
		}
	}

	p.logger.Debug("Target not found, attempts exhausted.",
		zap.Stringer("target", target), zap.Int("attempts", cfg.MaxAttempts))
	return false, nil
}

// Once performs a single capture and search.
func (p *Poller) Once(ctx context.Context, target Target, onFound FoundFunc) (bool, error) {
	return p.Poll(ctx, Config{MaxAttempts: 1}, target, onFound)
}

// search captures once. A missing capture is treated as a miss.
func (p *Poller) search(ctx context.Context, target Target) (schemas.Rectangle, bool, error) {
	snap, err := p.display.Grab(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return schemas.Rectangle{}, false, ctx.Err()
		}
		p.logger.Warn("Poller: capture failed, counting as a miss.", zap.Error(err))
		return schemas.Rectangle{}, false, nil
	}
	if snap == nil {
		return schemas.Rectangle{}, false, nil
	}
	at, ok := target.find(snap)
	return at, ok, nil
}
