package export

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyike/IndexGo/internal/pipeline"
	"github.com/dyike/IndexGo/pkg/planner"
)

func samplePlan() *planner.Result {
	breakdown := map[string]map[string]float64{"NVDA": {"VOO": 60, "SMH": 5}}
	return planner.Plan(
		map[string]float64{"NVDA": 60, "AAPL": 39.99, "NVR": 0.01},
		map[string]float64{"NVDA": 125, "AAPL": 200, "NVR": 7000},
		1000, true, planner.WithBreakdown(breakdown))
}

func TestWriteOrderSheet(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteOrderSheet(&buf, samplePlan()))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, OrderSheetHeader, rows[0])
	assert.Equal(t, []string{"NVDA", "4.800000", "125.00", "600.00", "60.0000", "SMH, VOO"}, rows[1])
	assert.Equal(t, "AAPL", rows[2][0])
}

func TestWriteSkipped(t *testing.T) {
	plan := planner.Plan(map[string]float64{"NVR": 100}, map[string]float64{"NVR": 7000}, 1000, false)

	var buf bytes.Buffer
	require.NoError(t, WriteSkipped(&buf, plan))
	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, [][]string{SkippedHeader, {"NVR", "7000.00", "7000.00", "1000.00"}}, rows)
}

func TestWriteComposition(t *testing.T) {
	c := &pipeline.Composition{Holdings: []pipeline.Holding{
		{Ticker: "AAPL", Weight: 44.3, Allocated: 70, MarketCap: 3.1e12, Sources: []string{"QQQ", "VOO"}},
	}}

	var buf bytes.Buffer
	require.NoError(t, WriteComposition(&buf, c))
	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL", "44.30000", "70.00", "3100.00", "QQQ, VOO"}, rows[1])
}

func TestManagerSave(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(dir)
	m.now = func() time.Time { return time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC) }

	path, err := m.SaveOrderSheet(samplePlan(), "")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "order_sheet_20260203_040506.csv"), path)

	explicit := filepath.Join(dir, "nested", "plan.csv")
	path, err = m.SaveOrderSheet(samplePlan(), explicit)
	require.NoError(t, err)
	assert.Equal(t, explicit, path)
	_, err = os.Stat(explicit)
	assert.NoError(t, err)
}

func TestManagerCleanOld(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, "old.csv")
	fresh := filepath.Join(dir, "fresh.csv")
	keep := filepath.Join(dir, "notes.txt")
	for _, p := range []string{old, fresh, keep} {
		require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))
	}
	past := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(old, past, past))
	require.NoError(t, os.Chtimes(keep, past, past))

	n, err := NewManager(dir).CleanOld(24 * time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.NoFileExists(t, old)
	assert.FileExists(t, fresh)
	assert.FileExists(t, keep)

	n, err = NewManager(filepath.Join(dir, "missing")).CleanOld(time.Hour)
	require.NoError(t, err)
	assert.Zero(t, n)
}
