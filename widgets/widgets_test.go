package widgets

import (
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"

	"bandaid/theme"
)

func TestStepRow(t *testing.T) {
	th := theme.New(nil)
	got := RenderStepRow(th, []bool{true, false, true, false}, 2)
	for _, want := range []string{"●", "·", "◉"} {
		if !strings.Contains(got, want) {
			t.Errorf("row %q missing %q", got, want)
		}
	}
	if strings.Contains(got, "▶") {
		t.Errorf("playhead on a hit drawn as empty: %q", got)
	}
	if strings.Count(RenderStepRow(th, make([]bool, 8), -1), "·") != 8 {
		t.Error("stopped row should be all empty steps")
	}
}

func TestGainBar(t *testing.T) {
	th := theme.New(nil)
	got := RenderGainBar(th, 1.5, 3, 10)
	if strings.Count(got, "█") != 5 || strings.Count(got, "░") != 5 || !strings.HasSuffix(got, "1.5") {
		t.Fatalf("bar = %q", got)
	}
	if got := RenderGainBar(th, 9, 3, 4); strings.Count(got, "█") != 4 {
		t.Fatalf("overfull bar = %q", got)
	}
	if got := RenderGainBar(th, 1, 0, 4); strings.Count(got, "░") != 4 {
		t.Fatalf("zero limit bar = %q", got)
	}
}

func TestChordStrip(t *testing.T) {
	got := RenderChordStrip(theme.New(nil), []string{"C", "Am", "F", "G"}, 1)
	if lipgloss.Width(got) != 24 {
		t.Fatalf("strip width %d: %q", lipgloss.Width(got), got)
	}
	for _, n := range []string{"C", "Am", "F", "G"} {
		if !strings.Contains(got, n) {
			t.Errorf("strip missing %s", n)
		}
	}
}

func TestKeyHelp(t *testing.T) {
	got := RenderKeyHelp([]KeySection{{Title: "Play", Keys: []KeyBinding{{"space", "play/stop"}}}})
	if got != "Play\n  space        play/stop" {
		t.Fatalf("help = %q", got)
	}
}
