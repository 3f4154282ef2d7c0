package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanFractional(t *testing.T) {
	res := Plan(map[string]float64{"AAPL": 10}, map[string]float64{"AAPL": 333.33}, 10000, true)

	require.Len(t, res.Buy, 1)
	line := res.Buy[0]
	assert.Equal(t, 3.00003, line.Shares)
	assert.InDelta(t, 1000.0, line.Allocated, 1e-9)
	assert.InDelta(t, 1000.0, line.Cost, 0.01)
	assert.LessOrEqual(t, line.Cost, line.Allocated)
	assert.Equal(t, StatusOK, res.Status())
}

func TestPlanIntegerSkipsSmallAllocations(t *testing.T) {
	res := Plan(map[string]float64{"NVR": 0.01}, map[string]float64{"NVR": 500}, 1000, false)

	assert.Empty(t, res.Buy)
	require.Len(t, res.Skipped, 1)
	skip := res.Skipped[0]
	assert.Equal(t, "NVR", skip.Ticker)
	assert.InDelta(t, 0.10, skip.Allocated, 1e-12)
	assert.Equal(t, 500.0, skip.Required)
	assert.Equal(t, StatusUnaffordable, res.Status())
	assert.Equal(t, 1000.0, res.Remaining)
}

func TestPlanIntegerFloors(t *testing.T) {
	weights := map[string]float64{"MSFT": 60, "AAPL": 40}
	prices := map[string]float64{"MSFT": 410, "AAPL": 190}
	res := Plan(weights, prices, 1000, false)

	require.Len(t, res.Buy, 2)
	// 600/410 → 1 share, 400/190 → 2 shares.
	assert.Equal(t, "MSFT", res.Buy[0].Ticker)
	assert.Equal(t, 1.0, res.Buy[0].Shares)
	assert.Equal(t, 2.0, res.Buy[1].Shares)
	assert.InDelta(t, 790.0, res.TotalCost, 1e-9)
	assert.InDelta(t, 210.0, res.Remaining, 1e-9)
}

func TestPlanMissingPrices(t *testing.T) {
	weights := map[string]float64{"AAPL": 50, "GONE": 30, "ZERO": 20}
	prices := map[string]float64{"AAPL": 190, "ZERO": 0}
	res := Plan(weights, prices, 10000, true)

	assert.Equal(t, []string{"GONE", "ZERO"}, res.Missing)
	assert.Len(t, res.Buy, 1)
	assert.InDelta(t, 1.0/3, res.Coverage(), 1e-9)
}

func TestPlanShareClassPriceFallback(t *testing.T) {
	res := Plan(map[string]float64{"BRK.B": 100}, map[string]float64{"BRK-B": 450}, 900, false)

	require.Len(t, res.Buy, 1)
	assert.Equal(t, "BRK.B", res.Buy[0].Ticker)
	assert.Equal(t, 2.0, res.Buy[0].Shares)
	assert.Empty(t, res.Missing)
}

func TestPlanNeverOverspends(t *testing.T) {
	weights := map[string]float64{}
	prices := map[string]float64{}
	tickers := []string{"A", "B", "C", "D", "E", "F", "G"}
	for i, tk := range tickers {
		weights[tk] = 100.0 / float64(len(tickers))
		prices[tk] = 3.17 * float64(i+1)
	}

	for _, fractional := range []bool{true, false} {
		res := Plan(weights, prices, 1234.56, fractional)
		assert.GreaterOrEqual(t, res.Remaining, 0.0)
		for _, l := range res.Buy {
			assert.LessOrEqual(t, l.Cost, l.Allocated+1e-9, l.Ticker)
		}
	}
}

func TestPlanSorting(t *testing.T) {
	weights := map[string]float64{"A": 10, "B": 50, "C": 40, "X": 0.001, "Y": 0.002, "M2": 1, "M1": 1}
	prices := map[string]float64{"A": 1, "B": 1, "C": 1, "X": 1000, "Y": 1000}
	res := Plan(weights, prices, 100, false)

	var order []string
	for _, l := range res.Buy {
		order = append(order, l.Ticker)
	}
	assert.Equal(t, []string{"B", "C", "A"}, order)
	require.Len(t, res.Skipped, 2)
	assert.Equal(t, "Y", res.Skipped[0].Ticker)
	assert.Equal(t, []string{"M1", "M2"}, res.Missing)
}

func TestPlanSourcesFromBreakdown(t *testing.T) {
	breakdown := map[string]map[string]float64{"NVDA": {"VOO": 60, "SMH": 5}}
	res := Plan(map[string]float64{"NVDA": 100}, map[string]float64{"NVDA": 125}, 1000, false, WithBreakdown(breakdown))

	require.Len(t, res.Buy, 1)
	assert.Equal(t, []string{"SMH", "VOO"}, res.Buy[0].Sources)
}

func TestPlanStatus(t *testing.T) {
	assert.Equal(t, StatusNoWeights, Plan(nil, nil, 1000, true).Status())
	assert.Equal(t, StatusNoPrices, Plan(map[string]float64{"A": 100}, nil, 1000, true).Status())
	assert.Equal(t, StatusZeroBudget, Plan(map[string]float64{"A": 100}, map[string]float64{"A": 5}, 0, true).Status())

	empty := Plan(nil, nil, 1000, true)
	assert.NotNil(t, empty.Buy)
	assert.Zero(t, empty.TotalCost)
	assert.Equal(t, 1000.0, empty.Remaining)
}
