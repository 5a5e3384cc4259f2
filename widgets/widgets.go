// Package widgets renders the small building blocks of the dashboard
package widgets

import (
	"fmt"
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"bandaid/theme"
)

// RenderToggle renders an on/off marker followed by label
func RenderToggle(th *theme.Theme, on bool, label string) string {
	if on {
		return lipgloss.NewStyle().Foreground(th.Success()).Render(string(th.Symbols.Solid) + " " + label)
	}
	return lipgloss.NewStyle().Foreground(th.Muted()).Render(string(th.Symbols.Empty) + " " + label)
}

// RenderStepRow renders one drum piece across the bar. playhead < 0 hides
// the playhead.
func RenderStepRow(th *theme.Theme, steps []bool, playhead int) string {
	hit := lipgloss.NewStyle().Foreground(th.Accent())
	dim := lipgloss.NewStyle().Foreground(th.Muted())
	head := lipgloss.NewStyle().Foreground(th.Success())

	var out strings.Builder
	for i, on := range steps {
		if i > 0 {
			out.WriteString(" ")
		}
		switch {
		case i == playhead && on:
			out.WriteString(head.Render(string(th.Symbols.StepPlaying)))
		case i == playhead:
			out.WriteString(head.Render(string(th.Symbols.StepPlayhead)))
		case on:
			out.WriteString(hit.Render(string(th.Symbols.StepActive)))
		default:
			out.WriteString(dim.Render(string(th.Symbols.StepEmpty)))
		}
	}
	return out.String()
}

// RenderGainBar renders gain out of limit as a bar width cells wide plus
// the value
func RenderGainBar(th *theme.Theme, gain, limit float64, width int) string {
	norm := 0.0
	if limit > 0 {
		norm = min(max(gain/limit, 0), 1)
	}
	n := int(math.Round(norm * float64(width)))
	full := lipgloss.NewStyle().Foreground(th.Color(norm)).Render(strings.Repeat(string(th.Symbols.BarFull), n))
	empty := lipgloss.NewStyle().Foreground(th.Muted()).Render(strings.Repeat(string(th.Symbols.BarEmpty), width-n))
	return fmt.Sprintf("%s%s %.1f", full, empty, gain)
}

// RenderChordStrip renders the chord names with the sounding one
// highlighted. current < 0 highlights nothing.
func RenderChordStrip(th *theme.Theme, names []string, current int) string {
	cell := lipgloss.NewStyle().Width(6).Align(lipgloss.Center).Foreground(th.FG())
	lit := cell.Foreground(th.BG()).Background(th.Success()).Bold(true)

	cells := make([]string, len(names))
	for i, n := range names {
		if i == current {
			cells[i] = lit.Render(n)
		} else {
			cells[i] = cell.Render(n)
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, cells...)
}

// RenderKeyHelp formats key bindings in a friendly way
func RenderKeyHelp(sections []KeySection) string {
	var lines []string
	for _, sec := range sections {
		if sec.Title != "" {
			lines = append(lines, sec.Title)
		}
		for _, k := range sec.Keys {
			lines = append(lines, fmt.Sprintf("  %-12s %s", k.Key, k.Desc))
		}
	}
	return strings.Join(lines, "\n")
}

// KeySection groups related key bindings
type KeySection struct {
	Title string
	Keys  []KeyBinding
}

// KeyBinding is a single key and its description
type KeyBinding struct {
	Key  string
	Desc string
}
