package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Iron-Ham/synchcore/internal/config"
	"github.com/Iron-Ham/synchcore/internal/kernel"
	"github.com/Iron-Ham/synchcore/internal/logging"
	"github.com/Iron-Ham/synchcore/internal/simulation"
	"github.com/Iron-Ham/synchcore/internal/tui"
)

// watchDebounce collapses the burst of events an editor produces on save.
const watchDebounce = 150 * time.Millisecond

var procCmd = &cobra.Command{
	Use:   "proc",
	Short: "Run process lifecycle scenarios",
	Long: `Run scripted scenarios against the process subsystem.

A scenario is a YAML file listing steps (spawn, fork, exit, wait, expect,
join) that drive fork, _exit, waitpid and execv on a fresh kernel and check
the exit codes, errors and process table state they produce.`,
}

var procRunCmd = &cobra.Command{
	Use:   "run <file>",
	Short: "Run a scenario file",
	Long: `Run the scenario described by a YAML file.

With --watch the file is re-run every time it is saved until interrupted.

Example scenario:
  name: exit-code
  steps:
    - op: spawn
      as: parent
    - op: fork
      proc: parent
      as: child
    - op: exit
      proc: child
      code: 7
    - op: wait
      proc: parent
      target: child
      code: 7`,
	Args: cobra.ExactArgs(1),
	RunE: runProcRun,
}

var procDemoCmd = &cobra.Command{
	Use:   "demo [name...]",
	Short: "Run the built-in scenarios",
	Long: `Run the built-in scenarios, or only the named ones.

Use --list to see what is available.`,
	RunE: runProcDemo,
}

var (
	procVerbose bool
	procJSON    bool
	procWatch   bool
	procList    bool
)

func init() {
	rootCmd.AddCommand(procCmd)
	procCmd.AddCommand(procRunCmd)
	procCmd.AddCommand(procDemoCmd)

	procCmd.PersistentFlags().BoolVarP(&procVerbose, "verbose", "v", false, "show the events each step produced")
	procCmd.PersistentFlags().BoolVar(&procJSON, "json", false, "print results as JSON")
	procRunCmd.Flags().BoolVarP(&procWatch, "watch", "w", false, "re-run the scenario whenever the file changes")
	procDemoCmd.Flags().BoolVarP(&procList, "list", "l", false, "list the built-in scenarios")
}

// newScenarioRunner builds a runner honoring the process section of cfg.
func newScenarioRunner(cfg *config.Config, logger *logging.Logger) *simulation.ScenarioRunner {
	limits := kernel.DefaultLimits()
	limits.MaxArgs = cfg.Process.MaxArgs
	limits.ArgMax = cfg.Process.ArgMax
	return simulation.NewScenarioRunner(
		simulation.WithRunnerLogger(logger.WithComponent("proc")),
		simulation.WithKernelLimits(limits),
		simulation.WithPIDRange(cfg.Process.PIDMin, cfg.Process.PIDMax),
	)
}

func runProcRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg, cmd.ErrOrStderr(), false)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Close() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner := newScenarioRunner(cfg, logger)
	file := args[0]
	out := cmd.OutOrStdout()

	runOnce := func() error {
		sc, err := simulation.LoadScenario(file)
		if err != nil {
			return err
		}
		res, err := runner.Run(ctx, sc)
		if err != nil {
			return fmt.Errorf("scenario %s: %w", sc.Name, err)
		}
		if err := printScenarioResults(out, procJSON, res); err != nil {
			return err
		}
		if !res.Passed() {
			return fmt.Errorf("scenario %s failed %d of %d steps", res.Name, len(res.Failures()), len(res.Steps))
		}
		return nil
	}

	if !procWatch {
		return runOnce()
	}
	return watchScenario(ctx, file, out, runOnce)
}

// watchScenario runs fn now and again after every change to file, until
// ctx is cancelled. Failures are reported and do not stop the watch.
func watchScenario(ctx context.Context, file string, out io.Writer, fn func() error) error {
	abs, err := filepath.Abs(file)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", file, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	// Watch the directory so editors that replace the file on save are seen
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}

	report := func() {
		if err := fn(); err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
		}
		fmt.Fprintf(out, "watching %s for changes (ctrl+c to stop)\n", file)
	}
	report()

	var debounce <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
				debounce = time.After(watchDebounce)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintf(out, "watch error: %v\n", err)
		case <-debounce:
			debounce = nil
			report()
		}
	}
}

func runProcDemo(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	if procList {
		for _, name := range simulation.BuiltinScenarios() {
			sc, err := simulation.BuiltinScenario(name)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%-16s %s\n", name, sc.Description)
		}
		return nil
	}

	names := args
	if len(names) == 0 {
		names = simulation.BuiltinScenarios()
	}
	scenarios := make([]*simulation.Scenario, 0, len(names))
	for _, name := range names {
		sc, err := simulation.BuiltinScenario(name)
		if err != nil {
			return fmt.Errorf("%w\nRun 'synchcore proc demo --list' to see built-in scenarios", err)
		}
		scenarios = append(scenarios, sc)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg, cmd.ErrOrStderr(), false)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Close() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner := newScenarioRunner(cfg, logger)
	results := make([]*simulation.ScenarioResult, 0, len(scenarios))
	failed := 0
	for _, sc := range scenarios {
		res, err := runner.Run(ctx, sc)
		if err != nil {
			return fmt.Errorf("scenario %s: %w", sc.Name, err)
		}
		if !res.Passed() {
			failed++
		}
		results = append(results, res)
	}

	if procJSON {
		err = writeJSON(out, results)
	} else {
		err = printScenarioResults(out, false, results...)
	}
	if err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d scenarios failed", failed, len(results))
	}
	return nil
}

func printScenarioResults(out io.Writer, asJSON bool, results ...*simulation.ScenarioResult) error {
	if asJSON {
		if len(results) == 1 {
			return writeJSON(out, results[0])
		}
		return writeJSON(out, results)
	}

	color := term.IsTerminal(int(os.Stdout.Fd()))
	for _, res := range results {
		fmt.Fprint(out, tui.RenderScenario(res, procVerbose, color))
	}
	return nil
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}
