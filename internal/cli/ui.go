package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"

	"github.com/dyike/IndexGo/internal/pipeline"
	"github.com/dyike/IndexGo/pkg/planner"
	"github.com/dyike/IndexGo/pkg/resolver"
)

// UI styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7C3AED")).
			Background(lipgloss.Color("#1F2937")).
			Padding(0, 1).
			MarginBottom(1)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#3B82F6"))

	summaryStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#10B981")).
			Padding(0, 2)

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F59E0B"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#EF4444")).
			Bold(true)

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#10B981"))

	mutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6B7280"))
)

// maxRows caps the rows printed by the long tables.
const maxRows = 50

// usd formats v as dollars and cents.
func usd(v float64) string {
	cur := money.GetCurrency(money.USD)
	cents := decimal.NewFromFloat(v).Shift(int32(cur.Fraction)).Round(0)
	return cur.Formatter().Format(cents.IntPart())
}

// billions formats a USD amount expressed in billions.
func billions(v float64) string {
	return fmt.Sprintf("$%.1fB", v)
}

// compact formats a raw USD amount with a T/B/M suffix.
func compact(v float64) string {
	switch {
	case v >= 1e12:
		return fmt.Sprintf("$%.2fT", v/1e12)
	case v >= 1e9:
		return fmt.Sprintf("$%.1fB", v/1e9)
	case v >= 1e6:
		return fmt.Sprintf("$%.1fM", v/1e6)
	}
	return usd(v)
}

func shares(v float64, fractional bool) string {
	if fractional {
		return fmt.Sprintf("%.6f", v)
	}
	return fmt.Sprintf("%.0f", v)
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

// DisplayWelcomeBanner shows the welcome banner
func DisplayWelcomeBanner(w io.Writer) {
	fmt.Fprintln(w, titleStyle.Render("IndexGo · ETF consensus direct indexing"))
	fmt.Fprintln(w, mutedStyle.Render("Builds one stock portfolio from the holdings of many funds, weighted by fund size."))
	fmt.Fprintln(w)
}

// DisplayError shows an error message
func DisplayError(w io.Writer, err error) {
	fmt.Fprintln(w, errorStyle.Render("❌ Error: "+err.Error()))
}

// DisplayInfo shows an info message
func DisplayInfo(w io.Writer, message string) {
	fmt.Fprintln(w, headerStyle.UnsetBold().Render("ℹ️  "+message))
}

// DisplaySuccess shows a success message
func DisplaySuccess(w io.Writer, message string) {
	fmt.Fprintln(w, successStyle.Render("✅ "+message))
}

// DisplayWarning shows a warning message
func DisplayWarning(w io.Writer, message string) {
	fmt.Fprintln(w, warnStyle.Render("⚠️  "+message))
}

// DisplayAssets prints the fund sizes and the index/theme split.
func DisplayAssets(w io.Writer, fa pipeline.FundAssets, indexFunds []string) {
	split := fa.Split(indexFunds...)

	var b strings.Builder
	fmt.Fprintf(&b, "Total fund assets:  %s\n", billions(fa.Total()))
	fmt.Fprintf(&b, "Index core:         %s (%.1f%%) %s\n", billions(split.Core), split.CorePct, strings.Join(split.CoreFunds, ", "))
	fmt.Fprintf(&b, "Thematic:           %s (%.1f%%) %d funds", billions(split.Theme), split.ThemePct, len(split.ThemeFunds))
	fmt.Fprintln(w, summaryStyle.Render(b.String()))

	if len(fa.Fallbacks) > 0 {
		DisplayWarning(w, fmt.Sprintf("Using fallback sizes for %d funds: %s", len(fa.Fallbacks), strings.Join(fa.Fallbacks, ", ")))
	}
}

// DisplayComposition prints the consolidated portfolio.
func DisplayComposition(w io.Writer, c *pipeline.Composition, indexFunds []string) {
	fmt.Fprintln(w, titleStyle.Render("📊 Consolidated Portfolio"))
	DisplayAssets(w, c.Assets, indexFunds)
	fmt.Fprintln(w)

	if len(c.Holdings) == 0 {
		DisplayWarning(w, "No holdings: no fund has a positive asset size.")
		return
	}

	fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("%-4s %-10s %8s %12s %12s  %s", "#", "Ticker", "Weight", "Allocated", "Market Cap", "Sources")))
	for i, h := range c.Holdings {
		if i == maxRows {
			fmt.Fprintln(w, mutedStyle.Render(fmt.Sprintf("... %d more", len(c.Holdings)-maxRows)))
			break
		}
		mcap := "-"
		if h.MarketCap > 0 {
			mcap = compact(h.MarketCap)
		}
		fmt.Fprintf(w, "%-4d %-10s %7.2f%% %12s %12s  %s\n",
			i+1, h.Ticker, h.Weight, billions(h.Allocated), mcap, truncateString(strings.Join(h.Sources, ", "), 40))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Unique holdings:    %d\n", len(c.Holdings))
	fmt.Fprintf(&b, "Allocated capital:  %s\n", billions(c.TotalAllocated))
	fmt.Fprintf(&b, "Market cap:         %s\n", compact(c.TotalMarketCap))
	fmt.Fprintf(&b, "US market coverage: %.1f%%", c.Coverage)
	fmt.Fprintln(w)
	fmt.Fprintln(w, summaryStyle.Render(b.String()))
}

// DisplayPlan prints a purchase plan.
func DisplayPlan(w io.Writer, run *pipeline.PlanRun) {
	plan := run.Plan
	mode := "whole shares"
	if plan.Fractional {
		mode = "fractional shares"
	}
	fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("🛒 Purchase Plan · %s · %s", usd(plan.Cash), mode)))

	if len(plan.Buy) > 0 {
		fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("%-10s %14s %12s %12s %8s  %s", "Ticker", "Shares", "Price", "Cost", "Weight", "Sources")))
		for i, l := range plan.Buy {
			if i == maxRows {
				fmt.Fprintln(w, mutedStyle.Render(fmt.Sprintf("... %d more", len(plan.Buy)-maxRows)))
				break
			}
			fmt.Fprintf(w, "%-10s %14s %12s %12s %7.2f%%  %s\n",
				l.Ticker, shares(l.Shares, plan.Fractional), usd(l.Price), usd(l.Cost), l.Weight,
				truncateString(strings.Join(l.Sources, ", "), 30))
		}
		fmt.Fprintln(w)
	}

	if len(plan.Skipped) > 0 {
		fmt.Fprintln(w, warnStyle.Render(fmt.Sprintf("Skipped %d holdings (allocation below one share):", len(plan.Skipped))))
		for i, s := range plan.Skipped {
			if i == 10 {
				fmt.Fprintln(w, mutedStyle.Render(fmt.Sprintf("  ... %d more", len(plan.Skipped)-10)))
				break
			}
			fmt.Fprintf(w, "  %-10s needs %s, allocated %s\n", s.Ticker, usd(s.Required), usd(s.Allocated))
		}
		fmt.Fprintln(w)
	}

	if len(plan.Missing) > 0 {
		DisplayWarning(w, fmt.Sprintf("No price for %d holdings: %s", len(plan.Missing), truncateString(strings.Join(plan.Missing, ", "), 120)))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Orders:       %d\n", len(plan.Buy))
	fmt.Fprintf(&b, "Total cost:   %s\n", usd(plan.TotalCost))
	fmt.Fprintf(&b, "Cash left:    %s\n", usd(plan.Remaining))
	fmt.Fprintf(&b, "Price cover:  %.1f%%", plan.Coverage()*100)
	fmt.Fprintln(w, summaryStyle.Render(b.String()))

	if run.Debug != nil {
		displayDiagnostics(w, plan.Status(), run.Debug)
	}
}

func displayDiagnostics(w io.Writer, status planner.Status, d *pipeline.Diagnostics) {
	fmt.Fprintln(w)
	DisplayWarning(w, fmt.Sprintf("Nothing to buy (%s)", status))
	fmt.Fprintf(w, "  targets: %d, prices fetched: %d\n", d.Targets, d.PricesFetched)
	for _, tw := range d.TopWeights {
		price := "-"
		if p, ok := d.SamplePrices[tw.Ticker]; ok {
			price = usd(p)
		}
		fmt.Fprintf(w, "  %-10s %7.3f%%  %s\n", tw.Ticker, tw.Weight, price)
	}
	for _, t := range sortedKeys(d.ShareClassPrices) {
		fmt.Fprintf(w, "  share class %s priced at %s\n", t, usd(d.ShareClassPrices[t]))
	}
}

// DisplayFunds prints every fund grouped by theme.
func DisplayFunds(w io.Writer, themes []pipeline.ThemeDetail) {
	fmt.Fprintln(w, titleStyle.Render("📚 Funds"))
	for _, td := range themes {
		fmt.Fprintln(w, headerStyle.Render(td.Theme))
		for _, fd := range td.Funds {
			size := billions(fd.Assets)
			if fd.Fallback {
				size += mutedStyle.Render(" (fallback)")
			}
			fmt.Fprintf(w, "  %-6s %-40s %s\n", fd.Fund, truncateString(fd.Name, 40), size)
			if fd.Description != "" {
				fmt.Fprintln(w, mutedStyle.Render("         "+truncateString(fd.Description, 80)))
			}
			tops := make([]string, 0, len(fd.Top))
			for _, h := range fd.Top {
				tops = append(tops, fmt.Sprintf("%s %.1f%%", h.Ticker, h.Weight))
			}
			if len(tops) > 0 {
				fmt.Fprintf(w, "         %s\n", truncateString(strings.Join(tops, ", "), 100))
			}
		}
		fmt.Fprintln(w)
	}
}

// DisplayPrices prints resolved prices in the order of ids.
func DisplayPrices(w io.Writer, ids []string, prices map[string]float64) {
	for _, id := range ids {
		p, ok := prices[id]
		if !ok {
			fmt.Fprintf(w, "%-12s %s\n", id, mutedStyle.Render("unavailable"))
			continue
		}
		fmt.Fprintf(w, "%-12s %12s\n", id, usd(p))
	}
}

// DisplayValuations prints valuation records in the order of ids.
func DisplayValuations(w io.Writer, ids []string, records map[string]resolver.Valuation) {
	fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("%-12s %-12s %12s %14s  %s", "Input", "Symbol", "Price", "Value (USD)", "Reported")))
	for _, id := range ids {
		rec, ok := records[id]
		if !ok {
			fmt.Fprintf(w, "%-12s %s\n", id, mutedStyle.Render("unavailable"))
			continue
		}
		price, value := "-", "-"
		if rec.Price != nil {
			price = fmt.Sprintf("%.2f %s", *rec.Price, rec.Currency)
		}
		if rec.Value != nil {
			value = compact(*rec.Value)
		}
		fmt.Fprintf(w, "%-12s %-12s %12s %14s  %s\n", id, rec.Symbol, price, value, rec.ReportedCurrency)
	}
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
