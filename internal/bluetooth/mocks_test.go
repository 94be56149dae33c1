package bluetooth_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/hmi-harness/api/schemas"
	"github.com/xkilldash9x/hmi-harness/internal/device"
	"github.com/xkilldash9x/hmi-harness/internal/device/devicetest"
	"github.com/xkilldash9x/hmi-harness/internal/resources"
)

const (
	recentAppsIcon = schemas.Signature("icons/recent_apps.png")
	detailsIcon    = schemas.Signature("icons/device_details.png")
)

// fakeHMI walks through a fixed list of screens. Every tap moves it to the
// next screen; the last screen stays up.
type fakeHMI struct {
	mu      sync.Mutex
	screens []*devicetest.Frame
	stage   int
	dev     *devicetest.Device
}

func newFakeHMI(screens ...*devicetest.Frame) *fakeHMI {
	h := &fakeHMI{screens: screens}
	h.dev = &devicetest.Device{Render: h.render}
	h.dev.OnTap = func(schemas.Point) { h.advance() }
	return h
}

func (h *fakeHMI) render(int) *devicetest.Frame {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.screens) == 0 {
		return nil
	}
	return h.screens[h.stage]
}

func (h *fakeHMI) advance() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stage < len(h.screens)-1 {
		h.stage++
	}
}

func texts(kv ...any) *devicetest.Frame {
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

func testResources(extra map[string]any) *resources.Table {
	m := map[string]any{
		"SCREEN_TRANSITION_DELAY_S": 1.5,
		"BOTTOM_SWIPE":              []int{540, 1800, 540, 600},
		"UNLOCK_DELAY_S":            3,
		"RECENT_APPS_ICON":          string(recentAppsIcon),
		"FOOTER_BAR_RECTANGLE":      []int{0, 2000, 1080, 2200},
		"DEVICE_DETAILS_ICON":       string(detailsIcon),
	}
	for k, v := range extra {
		if v == nil {
			delete(m, k)
			continue
		}
		m[k] = v
	}
	return resources.FromMap(m)
}

func keypad() []string {
	return []string{"POWER", "HOME", "ENTER", "0", "1", "2", "3", "4", "5", "6", "7", "8", "9"}
}

func newSession(t *testing.T, dev *devicetest.Device, res *resources.Table, buttons ...string) *device.Session {
	t.Helper()
	s, err := device.NewSession("Phone", dev, res,
		device.WithTouch(dev),
		device.WithButtons(dev.Buttons(buttons...)),
		device.WithClock(dev),
		device.WithLogger(zaptest.NewLogger(t)),
	)
	require.NoError(t, err)
	return s
}
