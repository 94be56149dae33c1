package android

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"go.uber.org/zap"

	"github.com/xkilldash9x/hmi-harness/internal/command"
	"github.com/xkilldash9x/hmi-harness/internal/device"
	"github.com/xkilldash9x/hmi-harness/internal/vision"
)

// Touch methods.
const (
	TouchMinitouch = "minitouch"
	TouchInput     = "input"
)

// Config selects the device and its input methods.
type Config struct {
	ADBPath string
	Serial  string
	// Hierarchy enables uiautomator based text lookups.
	Hierarchy bool
	// Touch is TouchMinitouch or TouchInput.
	Touch string
	// MinitouchPort is the local port forwarded to the minitouch socket.
	// The daemon must already be running on the device.
	MinitouchPort int
	MoveRate      float64
	// Keycodes overrides or extends DefaultKeycodes.
	Keycodes map[string]string
}

// Device bundles the capabilities of one Android device.
type Device struct {
	ADB     *ADB
	Display *Display
	Touch   device.Touch
	Buttons device.Buttons

	minitouch   *Minitouch
	forwardPort int
}

// Open connects to the device. runner may be nil.
func Open(ctx context.Context, cfg Config, runner command.Runner, matcher *vision.Matcher, logger *zap.Logger) (*Device, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("android")
	adb := NewADB(cfg.ADBPath, cfg.Serial, runner, logger)
	d := &Device{
		ADB:     adb,
		Display: NewDisplay(adb, matcher, cfg.Hierarchy, logger),
		Buttons: Buttons(adb, cfg.Keycodes),
	}

	switch cfg.Touch {
	case "", TouchInput:
		d.Touch = NewInputTouch(adb)
	case TouchMinitouch:
		w, h, err := adb.ScreenSize(ctx)
		if err != nil {
			return nil, fmt.Errorf("android: screen size: %w", err)
		}
		port := cfg.MinitouchPort
		if port == 0 {
			port = 1111
		}
		if err := adb.Forward(ctx, port, "localabstract:minitouch"); err != nil {
			return nil, fmt.Errorf("android: forwarding minitouch: %w", err)
		}
		d.forwardPort = port
		mcfg := DefaultMinitouchConfig(w, h)
		if cfg.MoveRate > 0 {
			mcfg.MoveRate = cfg.MoveRate
		}
		mt, err := DialMinitouch(ctx, net.JoinHostPort("127.0.0.1", strconv.Itoa(port)), mcfg, nil, logger)
		if err != nil {
			_ = d.Close()
			return nil, err
		}
		d.minitouch, d.Touch = mt, mt
	default:
		return nil, fmt.Errorf("android: unknown touch method %q", cfg.Touch)
	}
	logger.Info("Android device ready.", zap.String("serial", cfg.Serial), zap.String("touch", cfg.Touch))
	return d, nil
}

// Close releases the touch connection and the port forward.
func (d *Device) Close() error {
	var first error
	if d.minitouch != nil {
		first = d.minitouch.Close()
	}
	if d.forwardPort != 0 {
		if err := d.ADB.RemoveForward(context.Background(), d.forwardPort); err != nil && first == nil {
			first = err
		}
		d.forwardPort = 0
	}
	return first
}
