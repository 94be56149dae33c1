// Package cdp drives an HMI rendered in a Chromium page (web based HMIs and
// simulators) over the Chrome DevTools Protocol. It provides the display,
// mouse, touch and physical keyboard capabilities of a device session.
package cdp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/hmi-harness/api/schemas"
	"github.com/xkilldash9x/hmi-harness/internal/device"
	"github.com/xkilldash9x/hmi-harness/internal/vision"
)

// Config describes the browser hosting the HMI.
type Config struct {
	URL      string
	Headless bool
	// Args are extra Chromium flags, either "name" or "name=value".
	Args          []string
	Width         int
	Height        int
	ActionTimeout time.Duration
	// SwipeSteps is the number of touch move events used to animate a swipe.
	SwipeSteps int
}

// DefaultConfig returns a headless 1280x720 configuration.
func DefaultConfig() Config {
	return Config{
		Headless:      true,
		Width:         1280,
		Height:        720,
		ActionTimeout: 10 * time.Second,
		SwipeSteps:    10,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	var errs []error
	if c.URL == "" {
		errs = append(errs, errors.New("cdp: url is required"))
	}
	if c.Width <= 0 || c.Height <= 0 {
		errs = append(errs, fmt.Errorf("cdp: invalid viewport %dx%d", c.Width, c.Height))
	}
	if c.ActionTimeout <= 0 {
		errs = append(errs, errors.New("cdp: action timeout must be positive"))
	}
	return errors.Join(errs...)
}

func execOptions(cfg Config) []chromedp.ExecAllocatorOption {
	opts := []chromedp.ExecAllocatorOption{
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.WindowSize(cfg.Width, cfg.Height),
	}
	if cfg.Headless {
		opts = append(opts, chromedp.Headless)
	}
	for _, arg := range cfg.Args {
		key, value, found := strings.Cut(strings.TrimLeft(arg, "-"), "=")
		if found {
			opts = append(opts, chromedp.Flag(key, value))
		} else {
			opts = append(opts, chromedp.Flag(key, true))
		}
	}
	return opts
}

// Backend is one browser tab. It implements device.Display, device.Mouse,
// device.Touch and device.Keyboard.
type Backend struct {
	cfg     Config
	matcher *vision.Matcher
	logger  *zap.Logger
	clock   device.Clock

	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
}

var (
	_ device.Display  = (*Backend)(nil)
	_ device.Mouse    = (*Backend)(nil)
	_ device.Touch    = (*Backend)(nil)
	_ device.Keyboard = (*Backend)(nil)
)

// Open launches the browser, sizes the viewport and loads the HMI.
// The returned backend must be closed.
func Open(ctx context.Context, cfg Config, matcher *vision.Matcher, logger *zap.Logger) (*Backend, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.SwipeSteps <= 0 {
		cfg.SwipeSteps = DefaultConfig().SwipeSteps
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if matcher == nil {
		matcher = vision.NewMatcher(vision.WithLogger(logger))
	}
	b := &Backend{cfg: cfg, matcher: matcher, logger: logger.Named("cdp"), clock: device.RealClock{}}

	// The browser outlives the startup context, so it is rooted in Background.
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), execOptions(cfg)...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	b.allocCancel, b.browserCtx, b.browserCancel = allocCancel, browserCtx, browserCancel

	startCtx, cancel := context.WithTimeout(browserCtx, 60*time.Second)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(startCtx,
		chromedp.EmulateViewport(int64(cfg.Width), int64(cfg.Height)),
		emulation.SetTouchEmulationEnabled(true),
		chromedp.Navigate(cfg.URL),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err != nil {
		_ = b.Close()
		return nil, fmt.Errorf("cdp: opening %s: %w", cfg.URL, err)
	}
	b.logger.Info("HMI page loaded.", zap.String("url", cfg.URL))
	return b, nil
}

// run executes actions on the tab, bounded by the action timeout and by ctx.
func (b *Backend) run(ctx context.Context, actions ...chromedp.Action) error {
	opCtx, cancel := context.WithTimeout(b.browserCtx, b.cfg.ActionTimeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(opCtx, actions...)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// Grab captures the page and the text laid out on it in one round trip.
func (b *Backend) Grab(ctx context.Context) (device.Snapshot, error) {
	var (
		buf   []byte
		boxes []textBox
	)
	err := b.run(ctx,
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			buf, err = page.CaptureScreenshot().WithFormat(page.CaptureScreenshotFormatPng).Do(ctx)
			return err
		}),
		chromedp.Evaluate(collectTextJS, &boxes),
	)
	if err != nil {
		return nil, fmt.Errorf("cdp: capture failed: %w", err)
	}
	if len(buf) == 0 {
		return nil, nil
	}
	snap, err := b.matcher.Decode(buf, toIndex(boxes))
	if err != nil {
		return nil, fmt.Errorf("cdp: %w", err)
	}
	return snap, nil
}

// Click sends a left button press and release at p.
func (b *Backend) Click(ctx context.Context, p schemas.Point) error {
	x, y := float64(p.X), float64(p.Y)
	err := b.run(ctx,
		input.DispatchMouseEvent(input.MouseMoved, x, y),
		input.DispatchMouseEvent(input.MousePressed, x, y).WithButton(input.Left).WithButtons(1).WithClickCount(1),
		input.DispatchMouseEvent(input.MouseReleased, x, y).WithButton(input.Left).WithClickCount(1),
	)
	if err != nil {
		return fmt.Errorf("cdp: click at (%d,%d): %w", p.X, p.Y, err)
	}
	return nil
}

func touchPoint(p schemas.Point) []*input.TouchPoint {
	return []*input.TouchPoint{{X: float64(p.X), Y: float64(p.Y)}}
}

// Tap sends a single touch at p.
func (b *Backend) Tap(ctx context.Context, p schemas.Point) error {
	err := b.run(ctx,
		input.DispatchTouchEvent(input.TouchStart, touchPoint(p)),
		input.DispatchTouchEvent(input.TouchEnd, []*input.TouchPoint{}),
	)
	if err != nil {
		return fmt.Errorf("cdp: tap at (%d,%d): %w", p.X, p.Y, err)
	}
	return nil
}

// Swipe drags one finger from s.From to s.To over s.Duration.
func (b *Backend) Swipe(ctx context.Context, s schemas.Swipe) error {
	path := interpolate(s, b.cfg.SwipeSteps)
	pause := s.Duration / time.Duration(len(path))

	if err := b.run(ctx, input.DispatchTouchEvent(input.TouchStart, touchPoint(s.From))); err != nil {
		return fmt.Errorf("cdp: swipe start: %w", err)
	}
	for _, p := range path {
		if err := b.clock.Sleep(ctx, pause); err != nil {
			return err
		}
		if err := b.run(ctx, input.DispatchTouchEvent(input.TouchMove, touchPoint(p))); err != nil {
			return fmt.Errorf("cdp: swipe move: %w", err)
		}
	}
	if err := b.run(ctx, input.DispatchTouchEvent(input.TouchEnd, []*input.TouchPoint{})); err != nil {
		return fmt.Errorf("cdp: swipe end: %w", err)
	}
	return nil
}

// interpolate returns steps evenly spaced points after s.From, ending on s.To.
func interpolate(s schemas.Swipe, steps int) []schemas.Point {
	steps = max(steps, 1)
	out := make([]schemas.Point, steps)
	dx, dy := s.To.X-s.From.X, s.To.Y-s.From.Y
	for i := 1; i <= steps; i++ {
		out[i-1] = schemas.Point{X: s.From.X + dx*i/steps, Y: s.From.Y + dy*i/steps}
	}
	return out
}

// Type sends text as key events to the focused element.
func (b *Backend) Type(ctx context.Context, text string) error {
	if err := b.run(ctx, chromedp.KeyEvent(text)); err != nil {
		return fmt.Errorf("cdp: typing: %w", err)
	}
	return nil
}

// Close shuts down the tab and the browser process.
func (b *Backend) Close() error {
	if b.browserCtx != nil {
		if err := chromedp.Cancel(b.browserCtx); err != nil && !errors.Is(err, context.Canceled) {
			b.logger.Warn("Browser shutdown reported an error.", zap.Error(err))
		}
	}
	if b.browserCancel != nil {
		b.browserCancel()
	}
	if b.allocCancel != nil {
		b.allocCancel()
	}
	return nil
}
