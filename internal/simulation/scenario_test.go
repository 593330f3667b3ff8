package simulation

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Iron-Ham/synchcore/internal/errors"
	"github.com/Iron-Ham/synchcore/internal/logging"
	"github.com/Iron-Ham/synchcore/internal/testutil"
)

func TestBuiltinScenarios(t *testing.T) {
	names := BuiltinScenarios()
	want := []string{"double-child", "exit-code", "orphan", "waitpid-errors"}
	if strings.Join(names, ",") != strings.Join(want, ",") {
		t.Fatalf("BuiltinScenarios() = %v, want %v", names, want)
	}

	runner := NewScenarioRunner()
	for _, name := range names {
		t.Run(name, func(t *testing.T) {
			sc, err := BuiltinScenario(name)
			if err != nil {
				t.Fatalf("BuiltinScenario() error = %v", err)
			}
			res, err := runner.Run(context.Background(), sc)
			if err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			for _, f := range res.Failures() {
				t.Errorf("step %d %q failed: %s (events %v)", f.Index, f.Detail, f.Error, f.Events)
			}
			if len(res.Steps) != len(sc.Steps) {
				t.Errorf("ran %d steps, scenario has %d", len(res.Steps), len(sc.Steps))
			}
			if res.RunID == "" {
				t.Error("RunID should be set")
			}
		})
	}
}

func TestBuiltinScenario_Unknown(t *testing.T) {
	_, err := BuiltinScenario("nope")
	if !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestExitCodeScenarioEvents(t *testing.T) {
	sc, err := BuiltinScenario("exit-code")
	if err != nil {
		t.Fatalf("BuiltinScenario() error = %v", err)
	}
	res, err := NewScenarioRunner().Run(context.Background(), sc)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	// Steps: spawn, fork, wait, expect, expect, exit, join, expect. The
	// background waiter may reap before or after the exit step returns.
	events := append(res.Steps[5].Events, res.Steps[6].Events...)
	want := []string{"proc.exited pid=3 code=7 status=zombie", "proc.reaped pid=3 by=wait"}
	if strings.Join(events, "|") != strings.Join(want, "|") {
		t.Errorf("exit and join events = %v, want %v", events, want)
	}
}

func TestParseScenario_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "unknown field",
			yaml:    "name: x\nsteps:\n  - op: spawn\n    as: p\n    colour: red\n",
			wantErr: "colour",
		},
		{
			name:    "no name",
			yaml:    "steps:\n  - op: spawn\n    as: p\n",
			wantErr: "no name",
		},
		{
			name:    "unknown op",
			yaml:    "name: x\nsteps:\n  - op: teleport\n",
			wantErr: "unknown op",
		},
		{
			name:    "undefined alias",
			yaml:    "name: x\nsteps:\n  - op: fork\n    proc: ghost\n    as: c\n",
			wantErr: `proc "ghost" is not defined`,
		},
		{
			name:    "target and pid",
			yaml:    "name: x\nsteps:\n  - op: spawn\n    as: p\n  - op: wait\n    proc: p\n    target: p\n    pid: 9\n",
			wantErr: "exactly one of target and pid",
		},
		{
			name:    "bad errno",
			yaml:    "name: x\nsteps:\n  - op: spawn\n    as: p\n  - op: wait\n    proc: p\n    pid: 9\n    errno: EWHAT\n",
			wantErr: `unknown errno "EWHAT"`,
		},
		{
			name:    "join without background wait",
			yaml:    "name: x\nsteps:\n  - op: join\n    handle: h\n",
			wantErr: `handle "h" is not defined`,
		},
		{
			name:    "bad status",
			yaml:    "name: x\nsteps:\n  - op: spawn\n    as: p\n  - op: expect\n    target: p\n    status: sleeping\n",
			wantErr: `unknown status "sleeping"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario(strings.NewReader(tt.yaml))
			if err == nil {
				t.Fatal("ParseScenario() should fail")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want it to mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadScenario(t *testing.T) {
	file := filepath.Join(t.TempDir(), "exec.yaml")
	content := `name: argv
steps:
  - op: spawn
    as: p
    program: /testbin/argtest
    args: [argtest, one]
  - op: expect
    target: p
    status: running
    parent: none
`
	if err := os.WriteFile(file, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	sc, err := LoadScenario(file)
	if err != nil {
		t.Fatalf("LoadScenario() error = %v", err)
	}
	if sc.Name != "argv" || len(sc.Steps) != 2 || sc.Steps[0].Program != "/testbin/argtest" {
		t.Fatalf("scenario = %+v", sc)
	}

	res, err := NewScenarioRunner().Run(context.Background(), sc)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !res.Passed() {
		t.Errorf("failures = %+v", res.Failures())
	}

	if _, err := LoadScenario(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("LoadScenario() of a missing file should fail")
	}
}

func TestScenarioRunner_ReportsFailures(t *testing.T) {
	tests := []struct {
		name     string
		yaml     string
		failStep int
		wantErr  string
	}{
		{
			name: "wrong exit code",
			yaml: `name: x
steps:
  - {op: spawn, as: p}
  - {op: fork, proc: p, as: c}
  - {op: exit, proc: c, code: 4}
  - {op: wait, proc: p, target: c, code: 5}
`,
			failStep: 4,
			wantErr:  "exit code 4, want 5",
		},
		{
			name: "unexpected success",
			yaml: `name: x
steps:
  - {op: spawn, as: p}
  - {op: fork, proc: p, as: c}
  - {op: exit, proc: c}
  - {op: wait, proc: p, target: c, errno: ECHILD}
`,
			failStep: 4,
			wantErr:  "got OK, want ECHILD",
		},
		{
			name: "wait on a running child times out",
			yaml: `name: x
steps:
  - {op: spawn, as: p}
  - {op: fork, proc: p, as: c}
  - {op: wait, proc: p, target: c}
`,
			failStep: 3,
			wantErr:  "still blocked",
		},
		{
			name: "exited process reused",
			yaml: `name: x
steps:
  - {op: spawn, as: p}
  - {op: exit, proc: p}
  - {op: exit, proc: p}
`,
			failStep: 3,
			wantErr:  `process "p" has exited`,
		},
		{
			name: "wrong status",
			yaml: `name: x
steps:
  - {op: spawn, as: p}
  - {op: expect, target: p, status: zombie}
`,
			failStep: 2,
			wantErr:  "status running, want zombie",
		},
	}

	runner := NewScenarioRunner(WithStepTimeout(30 * time.Millisecond))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sc, err := ParseScenario(strings.NewReader(tt.yaml))
			if err != nil {
				t.Fatalf("ParseScenario() error = %v", err)
			}
			res, err := runner.Run(context.Background(), sc)
			if err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			if res.Passed() {
				t.Fatal("scenario should fail")
			}
			failures := res.Failures()
			if len(failures) != 1 || failures[0].Index != tt.failStep {
				t.Fatalf("failures = %+v, want only step %d", failures, tt.failStep)
			}
			if !strings.Contains(failures[0].Error, tt.wantErr) {
				t.Errorf("error = %q, want it to mention %q", failures[0].Error, tt.wantErr)
			}
		})
	}
}

func TestScenarioRunner_PIDRange(t *testing.T) {
	sc, err := ParseScenario(strings.NewReader(`name: x
steps:
  - {op: spawn, as: p}
  - {op: fork, proc: p, as: c}
`))
	if err != nil {
		t.Fatalf("ParseScenario() error = %v", err)
	}

	res, err := NewScenarioRunner(WithPIDRange(2, 2)).Run(context.Background(), sc)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !res.Steps[0].OK || res.Steps[1].OK {
		t.Fatalf("steps = %+v, want fork to fail", res.Steps)
	}
	if !strings.Contains(res.Steps[1].Error, "resource exhausted") {
		t.Errorf("fork error = %q", res.Steps[1].Error)
	}
}

func TestScenarioRunner_ContextCancelled(t *testing.T) {
	sc, err := BuiltinScenario("orphan")
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := NewScenarioRunner().Run(ctx, sc)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Run() error = %v, want context.Canceled", err)
	}
	if res == nil || len(res.Steps) != 0 {
		t.Errorf("result = %+v, want no steps run", res)
	}
}

func TestScenarioRunner_ReleasesBlockedWaits(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{
			name: "timed out wait",
			yaml: `name: x
steps:
  - {op: spawn, as: p}
  - {op: fork, proc: p, as: c}
  - {op: wait, proc: p, target: c}
`,
		},
		{
			name: "background wait never joined",
			yaml: `name: x
steps:
  - {op: spawn, as: p}
  - {op: fork, proc: p, as: c}
  - {op: fork, proc: c, as: g}
  - {op: wait, proc: p, target: c, background: h}
  - {op: wait, proc: c, target: g, background: h2}
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sc, err := ParseScenario(strings.NewReader(tt.yaml))
			if err != nil {
				t.Fatalf("ParseScenario() error = %v", err)
			}
			var logs bytes.Buffer
			runner := NewScenarioRunner(
				WithStepTimeout(30*time.Millisecond),
				WithRunnerLogger(logging.New(&logs, logging.LevelDebug)),
			)

			done := testutil.Go(func() error {
				_, err := runner.Run(context.Background(), sc)
				return err
			})
			if err := testutil.Receive(t, done, 2*time.Second, "Run with a blocked waitpid"); err != nil {
				t.Fatalf("Run() error = %v", err)
			}

			// Every pending waitpid returned by reaping its child.
			out := logs.String()
			want := strings.Count(tt.yaml, "op: wait")
			if got := strings.Count(out, `"by":"wait"`); got != want {
				t.Errorf("reaped by wait %d times, want %d:\n%s", got, want, out)
			}
		})
	}
}
