package tui

import (
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/x/ansi"

	"github.com/Iron-Ham/synchcore/internal/intersection"
	"github.com/Iron-Ham/synchcore/internal/simulation"
)

type fakeSource struct {
	snaps []intersection.Snapshot
	calls int
}

func (f *fakeSource) Snapshot() intersection.Snapshot {
	s := f.snaps[min(f.calls, len(f.snaps)-1)]
	f.calls++
	return s
}

func snapshot(northInFlight int, northEnabled bool, waiting int, active ...intersection.Vehicle) intersection.Snapshot {
	s := intersection.Snapshot{Threshold: 2, Active: active, Exited: 5}
	for i := range s.Directions {
		s.Directions[i] = intersection.DirectionState{Direction: intersection.Direction(i), Enabled: true}
	}
	s.Directions[intersection.North].InFlight = northInFlight
	s.Directions[intersection.North].Enabled = northEnabled
	s.Directions[intersection.East].Waiting = waiting
	return s
}

func TestModel_TickPollsSource(t *testing.T) {
	src := &fakeSource{snaps: []intersection.Snapshot{
		snapshot(0, true, 0),
		snapshot(2, false, 1, intersection.Vehicle{Origin: intersection.North, Destination: intersection.South}),
	}}
	m := NewModel(src, 10, 0)
	if m.refresh != DefaultRefresh {
		t.Errorf("refresh = %v, want default", m.refresh)
	}
	if cmd := m.Init(); cmd == nil {
		t.Fatal("Init() should start the spinner and the ticker")
	}

	next, cmd := m.Update(tickMsg(time.Now()))
	m = next.(Model)
	if cmd == nil {
		t.Error("a tick should schedule the next tick")
	}
	if src.calls != 2 {
		t.Errorf("Snapshot() called %d times, want 2", src.calls)
	}

	view := ansi.Strip(m.View())
	for _, want := range []string{"north", "throttled", "north->south", "5/10 exited", "1 waiting"} {
		if !strings.Contains(view, want) {
			t.Errorf("View() missing %q:\n%s", want, view)
		}
	}
}

func TestModel_Done(t *testing.T) {
	src := &fakeSource{snaps: []intersection.Snapshot{snapshot(0, true, 0)}}
	m := NewModel(src, 5, time.Millisecond)

	report := &simulation.TrafficReport{Planned: 5, Completed: 5}
	next, cmd := m.Update(doneMsg{report: report})
	m = next.(Model)
	if !m.Done() {
		t.Fatal("Done() should be true after doneMsg")
	}
	if cmd == nil {
		t.Fatal("doneMsg should quit")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("doneMsg command should be tea.Quit")
	}
	if !strings.Contains(ansi.Strip(m.View()), "OK") {
		t.Errorf("View() should show the OK badge:\n%s", m.View())
	}
	if !strings.Contains(ansi.Strip(m.View()), "intersection empty") {
		t.Errorf("View() should show the empty intersection:\n%s", m.View())
	}

	_, cmd = m.Update(tickMsg(time.Now()))
	if cmd != nil {
		t.Error("ticks after the run finished should stop")
	}
}

func TestModel_DoneWithError(t *testing.T) {
	src := &fakeSource{snaps: []intersection.Snapshot{snapshot(0, true, 0)}}
	m := NewModel(src, 5, time.Millisecond)

	next, _ := m.Update(doneMsg{err: errors.New("boom")})
	view := ansi.Strip(next.(Model).View())
	if !strings.Contains(view, "FAIL") || !strings.Contains(view, "boom") {
		t.Errorf("View() = %s", view)
	}
}

func TestModel_Keys(t *testing.T) {
	src := &fakeSource{snaps: []intersection.Snapshot{snapshot(0, true, 0)}}

	tests := []struct {
		name string
		msg  tea.KeyMsg
		quit bool
	}{
		{"q quits", tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")}, true},
		{"ctrl+c quits", tea.KeyMsg{Type: tea.KeyCtrlC}, true},
		{"other keys ignored", tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("x")}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, cmd := NewModel(src, 1, 0).Update(tt.msg)
			if got := next.(Model).Quitting(); got != tt.quit {
				t.Errorf("Quitting() = %v, want %v", got, tt.quit)
			}
			if (cmd != nil) != tt.quit {
				t.Errorf("cmd = %v, want quit %v", cmd, tt.quit)
			}
		})
	}
}

func TestModel_TruncatesActiveLine(t *testing.T) {
	var active []intersection.Vehicle
	for range 20 {
		active = append(active, intersection.Vehicle{Origin: intersection.West, Destination: intersection.South})
	}
	src := &fakeSource{snaps: []intersection.Snapshot{snapshot(0, true, 0, active...)}}

	next, _ := NewModel(src, 20, 0).Update(tea.WindowSizeMsg{Width: 40, Height: 20})
	for _, line := range strings.Split(ansi.Strip(next.(Model).View()), "\n") {
		if strings.HasPrefix(line, "inside:") {
			if ansi.StringWidth(line) > 40 || !strings.HasSuffix(line, "...") {
				t.Errorf("active line not truncated to 40 columns: %q", line)
			}
			return
		}
	}
	t.Error("View() has no inside: line")
}

func TestModel_ViewFitsWindow(t *testing.T) {
	var active []intersection.Vehicle
	for range 20 {
		active = append(active, intersection.Vehicle{Origin: intersection.West, Destination: intersection.South})
	}
	src := &fakeSource{snaps: []intersection.Snapshot{snapshot(2, false, 3, active...)}}

	next, _ := NewModel(src, 20, 0).Update(tea.WindowSizeMsg{Width: 40, Height: 20})
	view := ansi.Strip(next.(Model).View())
	for i, line := range strings.Split(view, "\n") {
		if w := ansi.StringWidth(line); w > 40 {
			t.Errorf("line %d is %d columns wide, want <= 40: %q", i, w, line)
		}
	}
	if !strings.Contains(view, "\nq quit") {
		t.Errorf("help bar should start on its own line:\n%s", view)
	}
}
