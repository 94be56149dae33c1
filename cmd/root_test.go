package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/hmi-harness/internal/device/devicetest"
	"github.com/xkilldash9x/hmi-harness/internal/results"
	"github.com/xkilldash9x/hmi-harness/internal/scenario"
)

func TestRootCmd_VersionFlag(t *testing.T) {
	root := NewRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"--version"})

	require.NoError(t, root.ExecuteContext(context.Background()))
	assert.Equal(t, Version+"\n", out.String())
}

func TestVersionCmd(t *testing.T) {
	root := NewRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version", "--config", "/does/not/exist.yaml"})

	require.NoError(t, root.ExecuteContext(context.Background()), "version never reads the config")
	assert.Equal(t, "hmi-harness version dev\n", out.String())
}

func TestScenariosCmd(t *testing.T) {
	root := NewRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"scenarios"})

	require.NoError(t, root.ExecuteContext(context.Background()))
	for _, sc := range scenario.All() {
		assert.Contains(t, out.String(), sc.Name)
	}
}

func TestRunCmd_PowerOn(t *testing.T) {
	h := newHarness(t)
	reportPath := filepath.Join(h.dir, "out", "report.json")

	err := h.execute("run", "hu-power-on", "--report", reportPath, "--database-url", "postgres://bench/results")
	require.NoError(t, err)

	assert.Equal(t, []string{"headunit"}, h.hu.opened)
	assert.Equal(t, []string{"relayctl hu_display on", "relayctl head_unit on"}, h.hu.rec.Calls())
	assert.Contains(t, h.stdout.String(), "PASS hu-power-on")
	assert.Contains(t, h.stdout.String(), "[ok] headunit: display output available")

	data, err := os.ReadFile(reportPath)
	require.NoError(t, err)
	var report results.Report
	require.NoError(t, jsoniter.Unmarshal(data, &report))
	assert.Equal(t, 1, report.Total)
	assert.Equal(t, 1, report.Passed)
	assert.Equal(t, "hu-power-on", report.Runs[0].Scenario)

	require.NotNil(t, h.saved)
	assert.Equal(t, "postgres://bench/results", h.saved.url)
	require.Len(t, h.saved.runs, 1)
	assert.Equal(t, report.Runs[0].ID, h.saved.runs[0].ID)
}

func TestRunCmd_FailedScenario(t *testing.T) {
	h := newHarness(t)

	// The head unit starts dark, so the power-off precondition fails.
	err := h.execute("run", "hu-power-off")
	require.Error(t, err)
	assert.Equal(t, "1 of 1 scenarios failed", err.Error())
	assert.Contains(t, h.stdout.String(), "FAIL hu-power-off")
	assert.Empty(t, h.hu.rec.Calls(), "no relay switched after the failed precondition")
	assert.Nil(t, h.saved, "no database configured")
}

func TestRunCmd_UnknownScenario(t *testing.T) {
	h := newHarness(t)

	err := h.execute("run", "hu-teleport")
	assert.ErrorIs(t, err, scenario.ErrUnknownScenario)
	assert.Empty(t, h.hu.opened, "devices are not opened for an unknown scenario")
}

func TestRunCmd_UnknownDevice(t *testing.T) {
	h := newHarness(t)

	err := h.execute("run", "hu-power-on", "--devices", "dashboard")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open devices")
}

func TestRunCmd_InvalidConfig(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, os.WriteFile(filepath.Join(h.dir, "config.yaml"),
		[]byte("devices:\n  headunit:\n    backend: serial\n    resources: hu.yaml\n"), 0o600))

	err := h.execute("run", "hu-power-on")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown backend "serial"`)
}

func TestTypeCmd_PhysicalKeyboard(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.execute("type", "headunit", "admin"))
	assert.Equal(t, []string{"admin"}, h.hu.dev.Targets(devicetest.KindType))
}

func TestTypeCmd_ScreenKeyboardNeedsResources(t *testing.T) {
	h := newHarness(t)
	h.hu.powered = true

	err := h.execute("type", "headunit", "admin", "--screen")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SCREEN_KB_OFF_ICON")
	assert.Zero(t, h.hu.dev.Count(devicetest.KindClick))
}

func TestRunCmd_InterruptedRunIsStillStored(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	power := h.hu.rec.OnRun
	h.hu.rec.OnRun = func(line string) {
		power(line)
		if line == "relayctl head_unit on" {
			cancel()
		}
	}

	err := h.executeContext(ctx, "run", "hu-power-on", "--database-url", "postgres://bench/results")
	assert.ErrorIs(t, err, context.Canceled)

	require.NotNil(t, h.saved, "finished runs are stored after an interrupt")
	assert.NoError(t, h.saved.ctxErr)
	require.Len(t, h.saved.runs, 1)
	assert.False(t, h.saved.runs[0].Passed)
}

func TestRunCmd_DeviceNamesIgnoreCase(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.execute("run", "hu-power-on", "--devices", "HeadUnit"))
	assert.Equal(t, []string{"headunit"}, h.hu.opened)
}

func TestTypeCmd_DeviceNameIgnoresCase(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.execute("type", "HeadUnit", "admin"))
	assert.Equal(t, []string{"headunit"}, h.hu.opened)
	assert.Equal(t, []string{"admin"}, h.hu.dev.Targets(devicetest.KindType))
}
