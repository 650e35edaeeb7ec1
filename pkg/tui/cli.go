// Package tui renders evaluation output for the terminal.
// Simple, streaming, no complex TUI - just clean styled output.
package tui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/schollz/progressbar/v3"

	"github.com/railtrace/railtrace/internal/model"
	"github.com/railtrace/railtrace/pkg/engine"
)

// Colors
var (
	accent  = lipgloss.Color("#FF0000")
	muted   = lipgloss.Color("#666666")
	success = lipgloss.Color("#00CC66")
	warn    = lipgloss.Color("#FFAA00")
	white   = lipgloss.Color("#FFFFFF")
)

// Styles
var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(white)
	accentStyle  = lipgloss.NewStyle().Foreground(accent).Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(muted)
	successStyle = lipgloss.NewStyle().Foreground(success).Bold(true)
	warnStyle    = lipgloss.NewStyle().Foreground(warn).Bold(true)
)

func severityStyle(s model.Severity) lipgloss.Style {
	switch s {
	case model.SeverityCritical:
		return accentStyle
	case model.SeverityMajor:
		return warnStyle
	default:
		return mutedStyle
	}
}

// PrintHeader prints the tool banner.
func PrintHeader(version string) {
	fmt.Println()
	fmt.Println(titleStyle.Render("RAILTRACE") + mutedStyle.Render("  signal violation engine  "+version))
	fmt.Println(mutedStyle.Render("  ─────────────────────────────────────"))
}

// PrintRunSummary prints one run's evaluation outcome.
func PrintRunSummary(run *model.Run, res *engine.Result) {
	fmt.Println()
	fmt.Printf("  %s %s  %s\n",
		accentStyle.Render("▸"),
		titleStyle.Render("Train "+run.TrainNumber),
		mutedStyle.Render(fmt.Sprintf("%s  %s  %d samples  %s",
			run.TrainType, run.Direction, len(run.Samples), res.Elapsed.Round(time.Millisecond))))

	if res.Summary.Total == 0 {
		fmt.Println("  " + successStyle.Render("✓ no violations"))
	} else {
		fmt.Printf("  %s\n", accentStyle.Render(fmt.Sprintf("✗ %d violations", res.Summary.Total)))
		for _, v := range res.Violations {
			fmt.Printf("    %s  %-13s %-18s %s  peak +%.1f km/h\n",
				severityStyle(v.Severity).Render(fmt.Sprintf("%-8s", v.Severity)),
				v.Kind, v.SectionID,
				mutedStyle.Render(fmt.Sprintf("%s → %s",
					v.Start.Format("15:04:05"), v.End.Format("15:04:05"))),
				v.PeakExcess)
		}
	}

	if len(res.Stops) > 0 {
		fmt.Printf("  %s\n", mutedStyle.Render(fmt.Sprintf("%d signal stops", len(res.Stops))))
		for _, s := range res.Stops {
			fmt.Printf("    %s  %s  %s\n",
				mutedStyle.Render("■"), s.SignalName,
				mutedStyle.Render(s.Duration.Round(time.Second).String()))
		}
	}

	if n := len(res.Diagnostics); n > 0 {
		fmt.Printf("  %s\n", warnStyle.Render(fmt.Sprintf("%d diagnostics", n)))
	}
}

// PrintBatchSummary prints the aggregate outcome of a batch.
func PrintBatchSummary(items []engine.BatchItem, elapsed time.Duration) {
	var ok, failed, violations int
	for _, it := range items {
		if it.Err != nil {
			failed++
			continue
		}
		ok++
		violations += it.Result.Summary.Total
	}

	fmt.Println()
	fmt.Println(mutedStyle.Render("  ─────────────────────────────────────"))
	fmt.Printf("  %s %d runs evaluated in %s\n",
		successStyle.Render("✓"), ok, elapsed.Round(time.Millisecond))
	if failed > 0 {
		fmt.Printf("  %s %d runs failed\n", accentStyle.Render("✗"), failed)
		for _, it := range items {
			if it.Err != nil {
				fmt.Printf("    %s %v\n", mutedStyle.Render(it.Run.TrainNumber+":"), it.Err)
			}
		}
	}
	fmt.Printf("  %s\n", mutedStyle.Render(fmt.Sprintf("%d violations total", violations)))
}

// PrintError prints a fatal error line.
func PrintError(err error) {
	fmt.Println(accentStyle.Render("  ✗ " + err.Error()))
}

// NewProgressBar builds the bar used while evaluating a batch.
func NewProgressBar(total int, label string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription(mutedStyle.Render("  "+label)),
		progressbar.OptionSetWidth(30),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerPadding: "░",
			BarStart:      "",
			BarEnd:        "",
		}),
	)
}
