package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"os"
	"os/signal"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Iron-Ham/synchcore/internal/logging"
	"github.com/Iron-Ham/synchcore/internal/tui/styles"
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "View synchcore logs",
	Long: `View and filter the synchcore log file.

Logs are read from synchcore.log in logging.dir. Runs only write a log file
when logging.dir is set; otherwise they log to stderr.

Examples:
  # Show the last 50 entries
  synchcore logs

  # Show every entry of one traffic run
  synchcore logs --run 3f2a -n 0

  # Follow logs in real-time
  synchcore logs -f

  # Only warnings and errors from the process subsystem
  synchcore logs --level warn --component proc

  # Show logs from the last hour
  synchcore logs --since 1h

  # Search for specific patterns
  synchcore logs --grep "violation|failed"`,
	Args: cobra.NoArgs,
	RunE: runLogs,
}

var (
	logsDir       string
	logsTail      int
	logsFollow    bool
	logsLevel     string
	logsSince     string
	logsGrep      string
	logsRun       string
	logsComponent string
)

func init() {
	rootCmd.AddCommand(logsCmd)

	logsCmd.Flags().StringVarP(&logsDir, "dir", "d", "", "Log directory (default: logging.dir)")
	logsCmd.Flags().IntVarP(&logsTail, "tail", "n", 50, "Number of lines to show (0 for all)")
	logsCmd.Flags().BoolVarP(&logsFollow, "follow", "f", false, "Follow log output (like tail -f)")
	logsCmd.Flags().StringVar(&logsLevel, "level", "", "Filter by minimum level (debug/info/warn/error)")
	logsCmd.Flags().StringVar(&logsSince, "since", "", "Show logs since duration ago (e.g., 1h, 30m)")
	logsCmd.Flags().StringVar(&logsGrep, "grep", "", "Filter logs matching pattern (regex)")
	logsCmd.Flags().StringVar(&logsRun, "run", "", "Filter by run ID prefix")
	logsCmd.Flags().StringVar(&logsComponent, "component", "", "Filter by component (traffic, intersection, proc, proctable, kernel)")
}

// logEntry represents a parsed JSON log line
type logEntry struct {
	Time      time.Time      `json:"time"`
	Level     string         `json:"level"`
	Msg       string         `json:"msg"`
	RunID     string         `json:"run_id,omitempty"`
	Component string         `json:"component,omitempty"`
	PID       *int           `json:"pid,omitempty"`
	Extra     map[string]any `json:"-"`
}

// UnmarshalJSON implements custom unmarshaling to capture extra fields
func (e *logEntry) UnmarshalJSON(data []byte) error {
	type alias logEntry
	if err := json.Unmarshal(data, (*alias)(e)); err != nil {
		return err
	}

	var all map[string]any
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	for _, known := range []string{"time", "level", "msg", "run_id", "component", "pid"} {
		delete(all, known)
	}
	if len(all) > 0 {
		e.Extra = all
	}
	return nil
}

// logFilter selects the entries to show.
type logFilter struct {
	minLevel  int
	since     time.Time
	grep      *regexp.Regexp
	run       string
	component string
}

// levelStyle returns the style a level is rendered in
func levelStyle(level string) lipgloss.Style {
	switch strings.ToUpper(level) {
	case logging.LevelDebug:
		return styles.Muted
	case logging.LevelInfo:
		return styles.Primary
	case logging.LevelWarn:
		return styles.Warning
	case logging.LevelError:
		return styles.Error
	default:
		return styles.Text
	}
}

// levelPriority returns the priority of a log level for filtering
func levelPriority(level string) int {
	switch strings.ToUpper(level) {
	case logging.LevelDebug:
		return 0
	case logging.LevelInfo:
		return 1
	case logging.LevelWarn:
		return 2
	case logging.LevelError:
		return 3
	default:
		return -1
	}
}

// formatLogEntry formats a log entry for terminal output
func formatLogEntry(entry *logEntry, color bool) string {
	var sb strings.Builder

	sb.WriteString(styles.Muted.Render("[" + entry.Time.Format("15:04:05.000") + "]"))
	sb.WriteString(" ")
	sb.WriteString(levelStyle(entry.Level).Render("[" + strings.ToUpper(entry.Level) + "]"))
	sb.WriteString(" ")
	sb.WriteString(entry.Msg)

	field := func(key, value string) {
		sb.WriteString(" ")
		sb.WriteString(styles.Secondary.Render(key + "="))
		sb.WriteString(value)
	}
	if entry.Component != "" {
		field("component", entry.Component)
	}
	if entry.RunID != "" {
		field("run_id", entry.RunID)
	}
	if entry.PID != nil {
		field("pid", fmt.Sprint(*entry.PID))
	}
	for _, key := range slices.Sorted(maps.Keys(entry.Extra)) {
		field(key, fmt.Sprintf("%v", entry.Extra[key]))
	}

	if !color {
		return ansi.Strip(sb.String())
	}
	return sb.String()
}

func runLogs(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	dir := logsDir
	if dir == "" {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		dir = cfg.Logging.Dir
	}
	if dir == "" {
		fmt.Fprintln(out, "No log directory configured.")
		fmt.Fprintln(out, "Set one with 'synchcore config set logging.dir <path>' or pass --dir.")
		return nil
	}

	logPath := filepath.Join(dir, logging.FileName)
	if _, err := os.Stat(logPath); os.IsNotExist(err) {
		fmt.Fprintf(out, "No logs found at %s\n", logPath)
		return nil
	}

	filter := logFilter{minLevel: -1, run: logsRun, component: logsComponent}
	if logsLevel != "" {
		filter.minLevel = levelPriority(logging.ParseLevel(logsLevel))
	}

	if logsSince != "" {
		duration, err := time.ParseDuration(logsSince)
		if err != nil {
			return fmt.Errorf("invalid duration format: %w", err)
		}
		filter.since = time.Now().Add(-duration)
	}

	if logsGrep != "" {
		re, err := regexp.Compile(logsGrep)
		if err != nil {
			return fmt.Errorf("invalid grep pattern: %w", err)
		}
		filter.grep = re
	}

	color := term.IsTerminal(int(os.Stdout.Fd()))

	if logsFollow {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return followLogs(ctx, out, logPath, filter, color)
	}
	return displayLogs(out, logPath, logsTail, filter, color)
}

// renderLine parses and filters one raw log line. ok is false when the
// line should be skipped.
func renderLine(line string, filter logFilter, color bool) (string, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return "", false
	}
	var entry logEntry
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		// If we can't parse as JSON, display raw line
		return line, true
	}
	if !passesFilters(&entry, filter) {
		return "", false
	}
	return formatLogEntry(&entry, color), true
}

// displayLogs reads the log file and displays filtered entries
func displayLogs(out io.Writer, logPath string, tail int, filter logFilter, color bool) error {
	file, err := os.Open(logPath)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer file.Close()

	var entries []string
	scanner := bufio.NewScanner(file)

	// Increase buffer size for potentially long log lines
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)

	for scanner.Scan() {
		if s, ok := renderLine(scanner.Text(), filter, color); ok {
			entries = append(entries, s)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading log file: %w", err)
	}

	if tail > 0 && len(entries) > tail {
		entries = entries[len(entries)-tail:]
	}
	for _, entry := range entries {
		fmt.Fprintln(out, entry)
	}
	if len(entries) == 0 {
		fmt.Fprintln(out, "No matching log entries found.")
	}
	return nil
}

// followLogs implements tail -f behavior for the log file. The file is
// reopened when rotation replaces it.
func followLogs(ctx context.Context, out io.Writer, logPath string, filter logFilter, color bool) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()
	if err := watcher.Add(filepath.Dir(logPath)); err != nil {
		return fmt.Errorf("failed to watch log directory: %w", err)
	}

	file, err := os.Open(logPath)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer func() { file.Close() }()
	if _, err := file.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("failed to seek to end: %w", err)
	}

	fmt.Fprintf(out, "Following logs... (Ctrl+C to stop)\n\n")

	reader := bufio.NewReader(file)
	var partial string
	drain := func() error {
		for {
			chunk, err := reader.ReadString('\n')
			partial += chunk
			if err == io.EOF {
				return nil
			}
			if err != nil {
				return fmt.Errorf("error reading log file: %w", err)
			}
			if s, ok := renderLine(partial, filter, color); ok {
				fmt.Fprintln(out, s)
			}
			partial = ""
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != filepath.Clean(logPath) {
				continue
			}
			switch {
			case ev.Has(fsnotify.Write):
				if err := drain(); err != nil {
					return err
				}
			case ev.Has(fsnotify.Create):
				// Rotated: finish the old file, then start on the new one
				if err := drain(); err != nil {
					return err
				}
				next, err := os.Open(logPath)
				if err != nil {
					continue
				}
				file.Close()
				file = next
				reader.Reset(file)
				partial = ""
				if err := drain(); err != nil {
					return err
				}
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("watch error: %w", err)
		}
	}
}

// passesFilters checks if a log entry passes all filter criteria
func passesFilters(entry *logEntry, f logFilter) bool {
	if f.minLevel >= 0 && levelPriority(entry.Level) < f.minLevel {
		return false
	}
	if !f.since.IsZero() && entry.Time.Before(f.since) {
		return false
	}
	if f.run != "" && !strings.HasPrefix(entry.RunID, f.run) {
		return false
	}
	if f.component != "" && entry.Component != f.component {
		return false
	}

	// Grep filter - search in message and extra fields
	if f.grep != nil {
		searchText := entry.Msg
		for _, v := range entry.Extra {
			searchText += " " + fmt.Sprintf("%v", v)
		}
		if !f.grep.MatchString(searchText) {
			return false
		}
	}
	return true
}
