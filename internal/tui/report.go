package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/x/ansi"

	"github.com/Iron-Ham/synchcore/internal/simulation"
	"github.com/Iron-Ham/synchcore/internal/tui/styles"
)

// RenderReport renders a traffic report. With color false every ANSI
// sequence is stripped so the output can go to a file or pipe.
func RenderReport(r *simulation.TrafficReport, color bool) string {
	var b strings.Builder

	b.WriteString(styles.StatusBadge(r.OK()))
	b.WriteString(styles.Heading.Render("traffic run " + shortID(r.RunID)))
	b.WriteString("\n")

	row := func(label, value string) {
		b.WriteString(styles.Label.Render(label))
		b.WriteString(value)
		b.WriteString("\n")
	}
	row("seed", fmt.Sprint(r.Seed))
	row("threshold", fmt.Sprint(r.Threshold))
	row("concurrency", fmt.Sprint(r.Concurrency))
	row("vehicles", fmt.Sprintf("%d completed, %d skipped of %d", r.Completed, r.Skipped, r.Planned))
	row("duration", r.Duration.Round(time.Millisecond).String())
	row("max active", fmt.Sprint(r.Monitor.MaxActive))
	row("max bypass", fmt.Sprint(r.Monitor.MaxBypass))
	b.WriteString("\n")

	header := fmt.Sprintf("%-6s %8s %7s %10s %10s %9s", "origin", "vehicles", "waited", "mean wait", "max wait", "max in")
	b.WriteString(styles.Muted.Render(header))
	b.WriteString("\n")
	for i, o := range r.Origins {
		line := fmt.Sprintf("%-6s %8d %7d %10s %10s %9d",
			o.Direction, o.Vehicles, o.Waited,
			o.MeanWait().Round(time.Microsecond), o.MaxWait.Round(time.Microsecond),
			r.Monitor.MaxInFlight[i])
		b.WriteString(line)
		b.WriteString("\n")
	}

	if len(r.Monitor.Violations) > 0 {
		b.WriteString("\n")
		b.WriteString(styles.Error.Render("violations:"))
		b.WriteString("\n")
		for _, v := range r.Monitor.Violations {
			b.WriteString("  " + styles.Error.Render(v) + "\n")
		}
		if r.Monitor.Dropped > 0 {
			b.WriteString(styles.Muted.Render(fmt.Sprintf("  ... and %d more", r.Monitor.Dropped)) + "\n")
		}
	}

	return finish(b.String(), color)
}

// RenderScenario renders the step-by-step outcome of a scenario run.
// verbose adds the events each step produced.
func RenderScenario(r *simulation.ScenarioResult, verbose, color bool) string {
	var b strings.Builder

	b.WriteString(styles.StatusBadge(r.Passed()))
	b.WriteString(styles.Heading.Render(r.Name))
	b.WriteString(styles.Muted.Render(fmt.Sprintf("  %d steps in %s", len(r.Steps), r.Duration.Round(time.Microsecond))))
	b.WriteString("\n")

	for _, s := range r.Steps {
		mark := styles.Secondary.Render("✓")
		if !s.OK {
			mark = styles.Error.Render("✗")
		}
		fmt.Fprintf(&b, "  %s %2d %-7s %s\n", mark, s.Index, s.Op, s.Detail)
		if !s.OK {
			b.WriteString("         " + styles.Error.Render(s.Error) + "\n")
		}
		if verbose {
			for _, e := range s.Events {
				b.WriteString("         " + styles.Muted.Render(e) + "\n")
			}
		}
	}
	return finish(b.String(), color)
}

func finish(s string, color bool) string {
	if color {
		return s
	}
	return ansi.Strip(s)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
