package results

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/hmi-harness/api/schemas"
)

func TestBeginFinish(t *testing.T) {
	start := time.Date(2024, 5, 2, 12, 0, 0, 0, time.FixedZone("CEST", 2*3600))
	a, b := Begin("hu-power-on", start), Begin("hu-power-on", start)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Len(t, a.ID, 36)
	assert.Equal(t, time.UTC, a.StartedAt.Location())

	Finish(a, start.Add(time.Minute), nil)
	assert.True(t, a.Passed, "no steps and no error passes")

	a.Steps = append(a.Steps, schemas.StepResult{Name: "display on", Passed: false})
	Finish(a, start.Add(time.Minute), nil)
	assert.False(t, a.Passed)

	Finish(b, start.Add(time.Minute), errors.New("relay board not connected"))
	assert.False(t, b.Passed)
	assert.Equal(t, "relay board not connected", b.Error)
}

func TestWriteReport(t *testing.T) {
	at := time.Date(2024, 5, 2, 10, 5, 0, 0, time.UTC)
	passing := *Begin("forget-device-hu", at)
	Finish(&passing, at, nil)
	report := NewReport([]schemas.RunResult{*sampleRun(), passing}, at)
	assert.Equal(t, 2, report.Total)
	assert.Equal(t, 1, report.Passed)
	assert.Equal(t, 1, report.Failed)

	var buf bytes.Buffer
	require.NoError(t, WriteReport(&buf, report, true))
	assert.Contains(t, buf.String(), "\n  \"total\": 2")

	var decoded Report
	require.NoError(t, jsoniter.Unmarshal(buf.Bytes(), &decoded))
	require.Len(t, decoded.Runs, 2)
	assert.Equal(t, "PAIR popup not shown", decoded.Runs[0].Steps[1].Detail)
	assert.Equal(t, 2*time.Second, decoded.Runs[0].Steps[1].Duration)

	buf.Reset()
	require.NoError(t, WriteReport(&buf, NewReport(nil, at), false))
	assert.Contains(t, buf.String(), `"runs":[]`)
}

func TestWriteReportFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reports", "run.json")
	require.NoError(t, WriteReportFile(path, NewReport([]schemas.RunResult{*sampleRun()}, time.Now()), false))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"scenario":"pair-new-device"`)
}

func TestSummary(t *testing.T) {
	out := Summary(*sampleRun())
	assert.Contains(t, out, "FAIL pair-new-device (42s)")
	assert.Contains(t, out, "[ok] headunit: open Settings")
	assert.Contains(t, out, "[FAILED] phone: accept pairing (PAIR popup not shown)")
}
