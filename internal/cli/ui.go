package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/matzehuels/relaymap/pkg/pipeline"
)

// =============================================================================
// Color Palette
// =============================================================================

var (
	colorCyan   = lipgloss.Color("36")  // Teal - primary actions
	colorGreen  = lipgloss.Color("35")  // Green - success
	colorYellow = lipgloss.Color("220") // Amber - warnings
	colorRed    = lipgloss.Color("167") // Soft red - errors
	colorWhite  = lipgloss.Color("255") // Bright white - values
	colorGray   = lipgloss.Color("245") // Gray - secondary text
	colorDim    = lipgloss.Color("240") // Dim gray - muted text
)

// =============================================================================
// Public Styles
// =============================================================================

var (
	// StyleDim for secondary/muted text.
	StyleDim = lipgloss.NewStyle().Foreground(colorDim)

	// StyleValue for data values.
	StyleValue = lipgloss.NewStyle().Foreground(colorWhite)

	// StyleNumber for numeric values.
	StyleNumber = lipgloss.NewStyle().Foreground(colorCyan)

	// StyleWarning for warning messages.
	StyleWarning = lipgloss.NewStyle().Foreground(colorYellow)
)

// =============================================================================
// Internal Styles
// =============================================================================

var (
	styleIconSuccess = lipgloss.NewStyle().Foreground(colorGreen)
	styleIconError   = lipgloss.NewStyle().Foreground(colorRed)
	styleIconWarning = lipgloss.NewStyle().Foreground(colorYellow)
	styleIconInfo    = lipgloss.NewStyle().Foreground(colorGray)
	styleKey         = lipgloss.NewStyle().Foreground(colorGray).Width(12)
)

// =============================================================================
// Icons
// =============================================================================

const (
	iconSuccess = "✓"
	iconError   = "✗"
	iconWarning = "!"
	iconInfo    = "›"
	iconArrow   = "→"
)

// =============================================================================
// Status Output
// =============================================================================

// printSuccess prints a success message.
func printSuccess(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Println(styleIconSuccess.Render(iconSuccess) + " " + msg)
}

// printError prints an error message.
func printError(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Println(styleIconError.Render(iconError) + " " + msg)
}

// printWarning prints a warning message.
func printWarning(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Println(styleIconWarning.Render(iconWarning) + " " + StyleWarning.Render(msg))
}

// printInfo prints an info/status message.
func printInfo(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Println(styleIconInfo.Render(iconInfo) + " " + msg)
}

// printDetail prints a detail line (indented).
func printDetail(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Println("  " + StyleDim.Render(msg))
}

// printFile prints a file output line.
func printFile(path string) {
	fmt.Println("  " + StyleDim.Render(iconArrow) + " " + StyleValue.Render(path))
}

// printKeyValue prints a labeled value.
func printKeyValue(key, value string) {
	fmt.Println(styleKey.Render(key) + " " + StyleValue.Render(value))
}

// =============================================================================
// Run Summary
// =============================================================================

// printResult prints the outcome of a run: written files, role counts and,
// when a map was drawn, the geolocation coverage.
func printResult(r *pipeline.Result) {
	s := r.Stats
	if len(r.Files) == 0 {
		printError("No outputs written")
	} else {
		printSuccess("Wrote %d files", len(r.Files))
		for _, f := range r.Files {
			printFile(f)
		}
	}

	printKeyValue("relays", joinCounts(
		count(s.Relays, "running"),
		count(s.Guards, "guards"),
		count(s.Exits, "exits"),
		count(s.Middles, "middles"),
	))
	if dropped := s.Malformed + s.NotRunning + s.Duplicates; dropped > 0 {
		printKeyValue("dropped", joinCounts(
			count(s.Malformed, "malformed"),
			count(s.NotRunning, "not running"),
			count(s.Duplicates, "duplicates"),
		))
	}
	if r.Markers != nil {
		printKeyValue("located", joinCounts(
			count(r.Totals.Resolved, "resolved"),
			count(r.Totals.Unresolved, "unresolved"),
			count(len(r.Markers), "markers"),
		))
	}
	printKeyValue("timing", fmt.Sprintf("fetch %s · locate %s · render %s · write %s",
		s.FetchTime.Round(time.Millisecond), s.LocateTime.Round(time.Millisecond), s.RenderTime.Round(time.Millisecond), s.WriteTime.Round(time.Millisecond)))
}

func count(n int, label string) string {
	return StyleNumber.Render(fmt.Sprint(n)) + " " + label
}

func joinCounts(parts ...string) string {
	return strings.Join(parts, StyleDim.Render(" · "))
}
