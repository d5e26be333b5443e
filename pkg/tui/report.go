// Package tui renders analysis progress and KPI reports on the terminal.
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/schollz/progressbar/v3"

	"github.com/plantpulse/plantpulse/pkg/engine"
)

// Colors
var (
	accent  = lipgloss.Color("#00A3FF")
	muted   = lipgloss.Color("#666666")
	success = lipgloss.Color("#00CC66")
	warning = lipgloss.Color("#FFAA00")
	white   = lipgloss.Color("#FFFFFF")
)

// Styles
var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(white)
	accentStyle  = lipgloss.NewStyle().Foreground(accent).Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(muted)
	successStyle = lipgloss.NewStyle().Foreground(success).Bold(true)
	warningStyle = lipgloss.NewStyle().Foreground(warning).Bold(true)
)

// PrintHeader prints the application banner.
func PrintHeader(version string) {
	fmt.Println()
	fmt.Println(titleStyle.Render("  PLANTPULSE") + mutedStyle.Render(" v"+version))
	fmt.Println(mutedStyle.Render("  Production and downtime KPI analysis"))
	fmt.Println()
}

// ShowProgress creates a progress bar for an analysis job.
func ShowProgress(description string) *progressbar.ProgressBar {
	return progressbar.NewOptions64(100,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowBytes(false),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "",
			BarEnd:        "",
		}),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)
}

// TrackProgress drains a job's progress channel into a progress bar.
func TrackProgress(progress <-chan engine.ProgressEvent) {
	bar := ShowProgress("analyzing")
	for ev := range progress {
		bar.Set(ev.Percent)
	}
	bar.Finish()
}

// PrintReport prints the final aggregate as a terminal report.
func PrintReport(final *engine.FinalAggregate) {
	fmt.Println()
	fmt.Println(successStyle.Render("  ✓ ANALYSIS COMPLETE"))
	fmt.Println()

	k := final.KPIs
	printKV("Records", formatNumber(int64(final.FilteredRecords)))
	printKV("Runs", formatNumber(k.TotalRuns))
	printKV("Production", formatNumber(k.TotalProduction))
	printKV("Planned", fmt.Sprintf("%.0f min", k.TotalPlannedMinutes))
	printKV("Downtime", fmt.Sprintf("%.1f h", k.TotalDowntimeHours))
	printKV("Availability", formatPercent(k.Availability*100))
	printKV("Efficiency", fmt.Sprintf("%.1f units/run", k.Efficiency))
	printKV("Top reason", final.Summary.TopReason)
	printKV("Elapsed", formatDuration(final.Elapsed))

	if len(final.DowntimeByReason) > 0 {
		fmt.Println()
		fmt.Println(accentStyle.Render("  ▸ DOWNTIME BY REASON"))
		printReasonTable(final.DowntimeByReason, final.KPIs.TotalDowntimeMinutes)
	}

	if len(final.ProductionByMachine) > 0 {
		fmt.Println()
		fmt.Println(accentStyle.Render("  ▸ PRODUCTION BY MACHINE"))
		printCategoryTable(final.ProductionByMachine, "%.0f")
	}

	if len(final.ProductionByOperator) > 0 {
		fmt.Println()
		fmt.Println(accentStyle.Render("  ▸ AVG PRODUCTION PER RUN BY OPERATOR"))
		printCategoryTable(final.ProductionByOperator, "%.1f")
	}
	fmt.Println()
}

func printKV(key, value string) {
	fmt.Printf("  %s %s\n", mutedStyle.Render(fmt.Sprintf("%-13s", key+":")), titleStyle.Render(value))
}

func printReasonTable(rows []engine.ReasonRow, totalMinutes int64) {
	for _, r := range rows {
		pct := 0.0
		if totalMinutes > 0 {
			pct = float64(r.Minutes) / float64(totalMinutes) * 100
		}
		bar := miniBar(pct)
		fmt.Printf("  %-24s %s %6d min  ×%-4d %s\n",
			truncate(r.Reason, 24),
			bar,
			r.Minutes,
			r.Frequency,
			mutedStyle.Render(fmt.Sprintf("%.1f%%", pct)))
	}
}

func printCategoryTable(rows []engine.CategoryValue, valueFmt string) {
	var max float64
	for _, r := range rows {
		if r.Value > max {
			max = r.Value
		}
	}
	for _, r := range rows {
		pct := 0.0
		if max > 0 {
			pct = r.Value / max * 100
		}
		fmt.Printf("  %-24s %s %s\n",
			truncate(r.Category, 24),
			miniBar(pct),
			titleStyle.Render(fmt.Sprintf(valueFmt, r.Value)))
	}
}

// miniBar renders a 20-cell inline bar for a 0-100 percentage.
func miniBar(pct float64) string {
	filled := int(pct / 5)
	if filled > 20 {
		filled = 20
	}
	return accentStyle.Render(strings.Repeat("█", filled)) +
		mutedStyle.Render(strings.Repeat("░", 20-filled))
}

func formatPercent(pct float64) string {
	s := fmt.Sprintf("%.1f%%", pct)
	if pct >= 85 {
		return successStyle.Render(s)
	}
	if pct >= 60 {
		return warningStyle.Render(s)
	}
	return accentStyle.Render(s)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
}

func formatNumber(n int64) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	if n < 1000000 {
		return fmt.Sprintf("%.1fK", float64(n)/1000)
	}
	return fmt.Sprintf("%.1fM", float64(n)/1000000)
}
