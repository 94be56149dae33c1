package scenario_test

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/hmi-harness/api/schemas"
	"github.com/xkilldash9x/hmi-harness/internal/command/commandtest"
	"github.com/xkilldash9x/hmi-harness/internal/config"
	"github.com/xkilldash9x/hmi-harness/internal/device"
	"github.com/xkilldash9x/hmi-harness/internal/device/devicetest"
	"github.com/xkilldash9x/hmi-harness/internal/relay"
	"github.com/xkilldash9x/hmi-harness/internal/resources"
	"github.com/xkilldash9x/hmi-harness/internal/scenario"
)

type sessions map[string]*device.Session

func (s sessions) Session(name string) (*device.Session, error) {
	if sess, ok := s[name]; ok {
		return sess, nil
	}
	return nil, fmt.Errorf("no device %q", name)
}

// screens is a fake HMI that moves to its next screen on every tap or click.
type screens struct {
	mu     sync.Mutex
	frames []*devicetest.Frame
	stage  int
	dev    *devicetest.Device
}

func newScreens(frames ...*devicetest.Frame) *screens {
	s := &screens{frames: frames}
	s.dev = &devicetest.Device{Render: s.render}
	s.dev.OnTap = func(schemas.Point) { s.advance() }
	return s
}

func (s *screens) render(int) *devicetest.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames[s.stage]
}

func (s *screens) advance() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stage < len(s.frames)-1 {
		s.stage++
	}
}

func frame(kv ...any) *devicetest.Frame {
	f := &devicetest.Frame{Texts: map[string]schemas.Rectangle{}, Images: map[schemas.Signature]schemas.Rectangle{}}
	for i := 0; i+1 < len(kv); i += 2 {
		switch k := kv[i].(type) {
		case string:
			f.Texts[k] = kv[i+1].(schemas.Rectangle)
		case schemas.Signature:
			f.Images[k] = kv[i+1].(schemas.Rectangle)
		}
	}
	return f
}

const (
	recentApps = schemas.Signature("icons/recent_apps.png")
	details    = schemas.Signature("icons/device_details.png")
)

func btResources() *resources.Table {
	return resources.FromMap(map[string]any{
		"SCREEN_TRANSITION_DELAY_S": 1.5,
		"BOTTOM_SWIPE":              []int{540, 1800, 540, 600},
		"UNLOCK_DELAY_S":            3,
		"RECENT_APPS_ICON":          string(recentApps),
		"FOOTER_BAR_RECTANGLE":      []int{0, 2000, 1080, 2200},
		"DEVICE_DETAILS_ICON":       string(details),
	})
}

func touchSession(t *testing.T, name string, dev *devicetest.Device, res *resources.Table) *device.Session {
	t.Helper()
	s, err := device.NewSession(name, dev, res,
		device.WithTouch(dev),
		device.WithMouse(dev),
		device.WithKeyboard(dev),
		device.WithButtons(dev.Buttons("POWER", "HOME", "ENTER", "0", "1", "2", "3", "4", "5", "6", "7", "8", "9")),
		device.WithClock(dev),
		device.WithLogger(zaptest.NewLogger(t)),
	)
	require.NoError(t, err)
	return s
}

func params() config.ScenarioConfig {
	return config.NewDefaultConfig().Scenario()
}

func newEnv(t *testing.T, s sessions) *scenario.Env {
	t.Helper()
	clock := devicetest.New(nil)
	return &scenario.Env{
		Sessions: s,
		Runner:   commandtest.New(),
		Clock:    clock,
		Harness:  config.NewDefaultConfig().Harness(),
		Params:   params(),
		Logger:   zaptest.NewLogger(t),
		Now:      func() time.Time { return time.Date(2024, 5, 2, 10, 0, 0, 0, time.UTC) },
	}
}

// relayBox builds the three standard relay channels. With status set, each
// channel reports the state scripted in rec under "<name> status".
func relayBox(t *testing.T, rec *commandtest.Recorder, status bool) *relay.Box {
	t.Helper()
	cfgs := map[string]relay.SwitchConfig{}
	for _, name := range []string{relay.HeadUnitPower, relay.HeadUnitDisplay, relay.ProgrammingMode} {
		c := relay.SwitchConfig{On: []string{"relayctl", name, "on"}, Off: []string{"relayctl", name, "off"}}
		if status {
			c.Status = []string{"relayctl", name, "status"}
		}
		cfgs[name] = c
	}
	box, err := relay.NewBox(cfgs, rec, zaptest.NewLogger(t))
	require.NoError(t, err)
	return box
}
