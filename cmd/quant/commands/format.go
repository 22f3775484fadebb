package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/wonny/qval/internal/contracts"
)

// ═══════════════════════════════════════════════════════════
// Common Formatting Utilities
// 모든 커맨드가 동일한 출력 포맷을 사용하도록 통일 (stdout 전용, 로그는 stderr)
// ═══════════════════════════════════════════════════════════

// Header describes a command run.
type Header struct {
	Title      string
	Experiment string
	Hash       string
	Boundary   string
	Extra      [][2]string // optional key/value lines
}

// PrintHeader prints a formatted run header
func PrintHeader(h Header) {
	fmt.Println()
	PrintDoubleSeparator()
	fmt.Printf("  %s\n", h.Title)
	PrintSeparator()
	if h.Experiment != "" {
		fmt.Printf("  Experiment : %s\n", h.Experiment)
	}
	if h.Hash != "" {
		fmt.Printf("  Config     : %s\n", shortHash(h.Hash))
	}
	if h.Boundary != "" {
		fmt.Printf("  Boundary   : %s\n", h.Boundary)
	}
	for _, kv := range h.Extra {
		fmt.Printf("  %-10s : %s\n", kv[0], kv[1])
	}
	PrintSeparator()
}

// PrintSeparator prints a visual separator
func PrintSeparator() {
	fmt.Println("───────────────────────────────────────────────────────────")
}

// PrintDoubleSeparator prints a double-line separator
func PrintDoubleSeparator() {
	fmt.Println("═══════════════════════════════════════════════════════════")
}

// PrintWarning prints a warning message
func PrintWarning(message string) {
	fmt.Println()
	fmt.Printf("⚠️  %s\n", message)
	fmt.Println()
}

// PrintSuccess prints a success message
func PrintSuccess(message string) {
	fmt.Printf("✅ %s\n", message)
}

// PrintInfo prints an info message
func PrintInfo(message string) {
	fmt.Printf("ℹ️  %s\n", message)
}

// PrintTableHeader prints a table header
func PrintTableHeader(columns []string, widths []int) {
	PrintTableRow(columns, widths)

	totalWidth := 0
	for i, width := range widths {
		totalWidth += width
		if i < len(widths)-1 {
			totalWidth += 2 // spacing
		}
	}
	fmt.Println(strings.Repeat("─", totalWidth))
}

// PrintTableRow prints a table row. Numeric-looking columns are right-aligned.
func PrintTableRow(values []string, widths []int) {
	for i, val := range values {
		if i == 0 {
			fmt.Printf("%-*s", widths[i], val)
		} else {
			fmt.Printf("%*s", widths[i], val)
		}
		if i < len(values)-1 {
			fmt.Print("  ")
		}
	}
	fmt.Println()
}

// PrintKeyValue prints key-value pairs
func PrintKeyValue(key string, value string, keyWidth int) {
	fmt.Printf("   %-*s : %s\n", keyWidth, key, value)
}

// printJSON writes v to stdout as indented JSON
func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// fmtMetric formats an optional metric; undefined values print as "n/a".
func fmtMetric(m contracts.Metric, format string) string {
	if !m.Defined {
		return "n/a"
	}
	return fmt.Sprintf(format, m.Value)
}

// fmtPctMetric formats an optional fraction as a percentage.
func fmtPctMetric(m contracts.Metric) string {
	if !m.Defined {
		return "n/a"
	}
	return fmtPct(m.Value)
}

func fmtPct(v float64) string {
	return fmt.Sprintf("%.2f%%", v*100)
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}

// truncate shortens s to n runes for fixed-width tables.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

// printPerformance renders reports side by side: one column per report.
func printPerformance(names []string, reports []contracts.PerformanceReport) {
	widths := []int{16}
	for range names {
		widths = append(widths, 14)
	}
	PrintTableHeader(append([]string{"Metric"}, names...), widths)

	row := func(label string, f func(r contracts.PerformanceReport) string) {
		values := []string{label}
		for _, r := range reports {
			values = append(values, f(r))
		}
		PrintTableRow(values, widths)
	}

	row("Total return", func(r contracts.PerformanceReport) string { return fmtPct(r.TotalReturn) })
	row("Annual return", func(r contracts.PerformanceReport) string { return fmtPctMetric(r.AnnualReturn) })
	row("Volatility", func(r contracts.PerformanceReport) string { return fmtPctMetric(r.Volatility) })
	row("Sharpe", func(r contracts.PerformanceReport) string { return fmtMetric(r.Sharpe, "%.3f") })
	row("Sortino", func(r contracts.PerformanceReport) string { return fmtMetric(r.Sortino, "%.3f") })
	row("Max drawdown", func(r contracts.PerformanceReport) string { return fmtPct(r.MaxDrawdown) })
	row("VaR 95", func(r contracts.PerformanceReport) string { return fmtPct(r.VaR95) })
	row("CVaR 95", func(r contracts.PerformanceReport) string { return fmtPct(r.CVaR95) })
	row("Win rate", func(r contracts.PerformanceReport) string { return fmtPctMetric(r.WinRate) })
	row("Long days", func(r contracts.PerformanceReport) string { return fmt.Sprintf("%d", r.LongDays) })
	row("Trades", func(r contracts.PerformanceReport) string { return fmt.Sprintf("%d", r.TotalTrades) })
	row("Turnover", func(r contracts.PerformanceReport) string { return fmt.Sprintf("%.2f", r.Turnover) })
	row("Total cost", func(r contracts.PerformanceReport) string { return fmtPct(r.TotalCost) })
}
