package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/hmi-harness/api/schemas"
	"github.com/xkilldash9x/hmi-harness/internal/bench"
	"github.com/xkilldash9x/hmi-harness/internal/command/commandtest"
	"github.com/xkilldash9x/hmi-harness/internal/config"
	"github.com/xkilldash9x/hmi-harness/internal/device"
	"github.com/xkilldash9x/hmi-harness/internal/device/devicetest"
	"github.com/xkilldash9x/hmi-harness/internal/observability"
	"github.com/xkilldash9x/hmi-harness/internal/resources"
	"go.uber.org/zap"
)

const testConfig = `
logger:
  level: error
harness:
  open_timeout: 5s
devices:
  headunit:
    backend: cdp
    resources: headunit.yaml
    cdp:
      url: ws://127.0.0.1:9222/devtools/browser/test
relays:
  head_unit:
    on: [relayctl, head_unit, "on"]
    off: [relayctl, head_unit, "off"]
  hu_display:
    on: [relayctl, hu_display, "on"]
    off: [relayctl, hu_display, "off"]
scenario:
  boot_time: 1ms
  shutdown_time: 1ms
`

// fakeHeadUnit renders a screen only while its power relay is on.
type fakeHeadUnit struct {
	mu      sync.Mutex
	powered bool
	dev     *devicetest.Device
	rec     *commandtest.Recorder
	opened  []string
}

func newFakeHeadUnit() *fakeHeadUnit {
	h := &fakeHeadUnit{rec: commandtest.New()}
	h.dev = &devicetest.Device{Render: func(int) *devicetest.Frame {
		h.mu.Lock()
		defer h.mu.Unlock()
		if !h.powered {
			return nil
		}
		return &devicetest.Frame{Texts: map[string]schemas.Rectangle{"Settings": devicetest.Box(10, 10)}}
	}}
	h.rec.OnRun = func(line string) {
		h.mu.Lock()
		defer h.mu.Unlock()
		switch {
		case strings.HasSuffix(line, "head_unit on"):
			h.powered = true
		case strings.HasSuffix(line, "head_unit off"):
			h.powered = false
		}
	}
	return h
}

func (h *fakeHeadUnit) open(ctx context.Context, name string, dc config.DeviceConfig, env bench.Env) (*device.Session, error) {
	h.mu.Lock()
	h.opened = append(h.opened, name)
	h.mu.Unlock()
	return device.NewSession(name, h.dev, resources.FromMap(nil),
		device.WithKeyboard(h.dev), device.WithMouse(h.dev), device.WithClock(h.dev))
}

type savedRuns struct {
	url  string
	runs []*schemas.RunResult
	// ctxErr is the save context's error at the time of the call.
	ctxErr error
}

// harness wires a command tree to the fake head unit.
type harness struct {
	t      *testing.T
	dir    string
	hu     *fakeHeadUnit
	saved  *savedRuns
	stdout bytes.Buffer
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	observability.ResetForTest()
	t.Cleanup(observability.ResetForTest)

	h := &harness{t: t, dir: t.TempDir(), hu: newFakeHeadUnit()}
	require.NoError(t, os.WriteFile(filepath.Join(h.dir, "config.yaml"), []byte(testConfig), 0o600))
	return h
}

func (h *harness) execute(args ...string) error {
	h.t.Helper()
	return h.executeContext(context.Background(), args...)
}

func (h *harness) executeContext(ctx context.Context, args ...string) error {
	h.t.Helper()
	a := &app{
		benchOpts: []bench.Option{
			bench.WithRunner(h.hu.rec),
			bench.WithOpener(config.BackendCDP, h.hu.open),
		},
		saveRuns: func(ctx context.Context, url string, runs []*schemas.RunResult, _ *zap.Logger) error {
			h.saved = &savedRuns{url: url, runs: runs, ctxErr: ctx.Err()}
			return nil
		},
	}
	root := newRootCommand(a)
	root.SetOut(&h.stdout)
	root.SetErr(&h.stdout)
	root.SetArgs(append([]string{"--config", filepath.Join(h.dir, "config.yaml")}, args...))
	return root.ExecuteContext(ctx)
}
