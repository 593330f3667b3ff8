// Package styles holds the lipgloss palette and styles of the live view and
// the plain-text reports.
package styles

import "github.com/charmbracelet/lipgloss"

var (
	// Colors - all colors meet WCAG AA contrast (4.5:1) on both black and dark surfaces
	PrimaryColor   = lipgloss.Color("#A78BFA") // Purple
	SecondaryColor = lipgloss.Color("#10B981") // Green
	WarningColor   = lipgloss.Color("#F59E0B") // Amber
	ErrorColor     = lipgloss.Color("#F87171") // Red
	MutedColor     = lipgloss.Color("#9CA3AF") // Gray
	TextColor      = lipgloss.Color("#F9FAFB") // Light text
	BorderColor    = lipgloss.Color("#6B7280") // Gray

	// Convenience styles for colors
	Primary   = lipgloss.NewStyle().Foreground(PrimaryColor)
	Secondary = lipgloss.NewStyle().Foreground(SecondaryColor)
	Warning   = lipgloss.NewStyle().Foreground(WarningColor)
	Error     = lipgloss.NewStyle().Foreground(ErrorColor)
	Muted     = lipgloss.NewStyle().Foreground(MutedColor)
	Text      = lipgloss.NewStyle().Foreground(TextColor)

	// Lane states
	LaneOpen      = lipgloss.Color("#10B981") // Green
	LaneThrottled = lipgloss.Color("#F59E0B") // Amber
	LaneWaiting   = lipgloss.Color("#60A5FA") // Blue

	Title = lipgloss.NewStyle().
		Bold(true).
		Foreground(PrimaryColor).
		MarginBottom(1)

	Heading = lipgloss.NewStyle().
		Bold(true).
		Foreground(PrimaryColor)

	Subtitle = lipgloss.NewStyle().
			Foreground(MutedColor).
			Italic(true)

	// Status badges
	Badge = lipgloss.NewStyle().
		Padding(0, 1).
		MarginRight(1).
		Bold(true)

	BadgeOK = Badge.
		Foreground(TextColor).
		Background(SecondaryColor)

	BadgeFail = Badge.
			Foreground(TextColor).
			Background(ErrorColor)

	// Boxes
	ContentBox = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(BorderColor).
			Padding(0, 1)

	LaneName = lipgloss.NewStyle().
			Bold(true).
			Width(6)

	Label = lipgloss.NewStyle().
		Foreground(MutedColor).
		Width(14)

	HelpBar = lipgloss.NewStyle().
		Foreground(MutedColor).
		MarginTop(1)
)

// LaneStyle returns the style for a lane's in-flight bar.
func LaneStyle(enabled bool, waiting int) lipgloss.Style {
	switch {
	case !enabled:
		return lipgloss.NewStyle().Foreground(LaneThrottled)
	case waiting > 0:
		return lipgloss.NewStyle().Foreground(LaneWaiting)
	default:
		return lipgloss.NewStyle().Foreground(LaneOpen)
	}
}

// StatusBadge renders an OK or FAIL badge.
func StatusBadge(ok bool) string {
	if ok {
		return BadgeOK.Render("OK")
	}
	return BadgeFail.Render("FAIL")
}
