package styles

import (
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
)

func TestLaneStyle(t *testing.T) {
	tests := []struct {
		name     string
		enabled  bool
		waiting  int
		expected string // Expected color hex value
	}{
		{"throttled", false, 0, "#F59E0B"},
		{"throttled with waiters", false, 3, "#F59E0B"},
		{"open with waiters", true, 2, "#60A5FA"},
		{"open", true, 0, "#10B981"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := LaneStyle(tt.enabled, tt.waiting).GetForeground().(lipgloss.Color)
			if !ok || string(got) != tt.expected {
				t.Errorf("LaneStyle(%v, %d) foreground = %v, want %s", tt.enabled, tt.waiting, got, tt.expected)
			}
		})
	}
}

func TestStatusBadge(t *testing.T) {
	if got := ansi.Strip(StatusBadge(true)); strings.TrimSpace(got) != "OK" {
		t.Errorf("StatusBadge(true) = %q", got)
	}
	if got := ansi.Strip(StatusBadge(false)); strings.TrimSpace(got) != "FAIL" {
		t.Errorf("StatusBadge(false) = %q", got)
	}
}
