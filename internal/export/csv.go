// Package export writes purchase plans and compositions as CSV files.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dyike/IndexGo/internal/pipeline"
	"github.com/dyike/IndexGo/pkg/planner"
)

var (
	OrderSheetHeader  = []string{"Ticker", "Shares", "Price ($)", "Cost ($)", "Weight (%)", "Sectors"}
	SkippedHeader     = []string{"Ticker", "Price ($)", "Required ($)", "Allocated ($)"}
	CompositionHeader = []string{"Ticker", "Consolidated Weight (%)", "Allocated Cap ($B)", "Market Cap ($B)", "Sectors"}
)

func formatFloat(v float64, prec int) string {
	return strconv.FormatFloat(v, 'f', prec, 64)
}

func sharePrecision(fractional bool) int {
	if fractional {
		return 6
	}
	return 0
}

// WriteOrderSheet writes the buy list, largest cost first.
func WriteOrderSheet(w io.Writer, plan *planner.Result) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(OrderSheetHeader); err != nil {
		return fmt.Errorf("failed to write headers: %w", err)
	}

	prec := sharePrecision(plan.Fractional)
	for _, l := range plan.Buy {
		row := []string{
			l.Ticker,
			formatFloat(l.Shares, prec),
			formatFloat(l.Price, 2),
			formatFloat(l.Cost, 2),
			formatFloat(l.Weight, 4),
			strings.Join(l.Sources, ", "),
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteSkipped writes the holdings whose allocation bought nothing.
func WriteSkipped(w io.Writer, plan *planner.Result) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(SkippedHeader); err != nil {
		return fmt.Errorf("failed to write headers: %w", err)
	}
	for _, s := range plan.Skipped {
		row := []string{s.Ticker, formatFloat(s.Price, 2), formatFloat(s.Required, 2), formatFloat(s.Allocated, 2)}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteComposition writes the consolidated holdings, highest weight first.
func WriteComposition(w io.Writer, c *pipeline.Composition) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(CompositionHeader); err != nil {
		return fmt.Errorf("failed to write headers: %w", err)
	}
	for _, h := range c.Holdings {
		row := []string{
			h.Ticker,
			formatFloat(h.Weight, 5),
			formatFloat(h.Allocated, 2),
			formatFloat(h.MarketCap/1e9, 2),
			strings.Join(h.Sources, ", "),
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}
	writer.Flush()
	return writer.Error()
}

// Manager saves exports under a results directory.
type Manager struct {
	basePath string
	now      func() time.Time
}

func NewManager(basePath string) *Manager {
	return &Manager{basePath: basePath, now: time.Now}
}

// SaveOrderSheet writes the buy list to path, or to a timestamped file in
// the results directory when path is empty. It returns the path written.
func (m *Manager) SaveOrderSheet(plan *planner.Result, path string) (string, error) {
	return m.save("order_sheet", path, func(w io.Writer) error { return WriteOrderSheet(w, plan) })
}

// SaveComposition writes the composition view the same way.
func (m *Manager) SaveComposition(c *pipeline.Composition, path string) (string, error) {
	return m.save("composition", path, func(w io.Writer) error { return WriteComposition(w, c) })
}

func (m *Manager) save(prefix, path string, write func(io.Writer) error) (string, error) {
	if path == "" {
		path = filepath.Join(m.basePath, fmt.Sprintf("%s_%s.csv", prefix, m.now().Format("20060102_150405")))
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}

	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create CSV file: %w", err)
	}
	if err := write(file); err != nil {
		file.Close()
		return "", err
	}
	if err := file.Close(); err != nil {
		return "", err
	}
	return path, nil
}

// CleanOld removes exported CSV files older than maxAge.
func (m *Manager) CleanOld(maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(m.basePath)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".csv") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if m.now().Sub(info.ModTime()) > maxAge {
			if err := os.Remove(filepath.Join(m.basePath, e.Name())); err != nil {
				return removed, fmt.Errorf("failed to remove old file %s: %w", e.Name(), err)
			}
			removed++
		}
	}
	return removed, nil
}
