package tui

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/Iron-Ham/synchcore/internal/simulation"
)

// App runs a traffic simulation behind the live view.
type App struct {
	program *tea.Program
	sim     *simulation.TrafficSim
	refresh time.Duration
	opts    []tea.ProgramOption
}

// New creates an application for sim. refresh is the polling interval.
func New(sim *simulation.TrafficSim, refresh time.Duration, opts ...tea.ProgramOption) *App {
	return &App{sim: sim, refresh: refresh, opts: opts}
}

type runResult struct {
	report *simulation.TrafficReport
	err    error
}

// Run starts the simulation and shows it until the run finishes or the user
// quits. Quitting early cancels the run: vehicles that have not arrived are
// skipped and the ones inside finish before Run returns.
func (a *App) Run(ctx context.Context) (*simulation.TrafficReport, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	model := NewModel(a.sim.Controller(), a.sim.Params().Vehicles, a.refresh)
	opts := append([]tea.ProgramOption{tea.WithAltScreen(), tea.WithContext(ctx)}, a.opts...)
	a.program = tea.NewProgram(model, opts...)

	// Set up signal handling so a terminated run still tears the view down
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case <-sigChan:
			a.program.Send(tea.Quit())
		case <-ctx.Done():
		}
	}()

	results := make(chan runResult, 1)
	go func() {
		report, err := a.sim.Run(ctx)
		a.program.Send(doneMsg{report: report, err: err})
		results <- runResult{report, err}
	}()

	_, progErr := a.program.Run()
	if errors.Is(progErr, tea.ErrProgramKilled) {
		progErr = nil
	}
	cancel()

	res := <-results
	if res.err != nil {
		return res.report, res.err
	}
	return res.report, progErr
}
