package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Iron-Ham/synchcore/internal/config"
	"github.com/Iron-Ham/synchcore/internal/simulation"
	"github.com/Iron-Ham/synchcore/internal/tui"
)

var trafficCmd = &cobra.Command{
	Use:   "traffic",
	Short: "Drive random vehicles through the intersection",
	Long: `Drive random vehicles through the intersection controller and check
every admission against the safety rules.

Each vehicle picks a random origin and a different destination, waits in
BeforeEntry, spends a random dwell time inside and leaves through AfterExit.
A monitor watches the event stream and fails the run if two conflicting
vehicles were ever inside together, an origin went past the threshold, or a
vehicle was left inside.

Examples:
  synchcore traffic --vehicles 1000 --threshold 2
  synchcore traffic --seed 42 --json
  synchcore traffic --tui`,
	Args: cobra.NoArgs,
	RunE: runTraffic,
}

var (
	trafficVehicles    int
	trafficThreshold   int
	trafficConcurrency int
	trafficSeed        uint64
	trafficTUI         bool
	trafficJSON        bool
)

func init() {
	rootCmd.AddCommand(trafficCmd)

	trafficCmd.Flags().IntVarP(&trafficVehicles, "vehicles", "n", 0, "number of vehicles (default from traffic.vehicles)")
	trafficCmd.Flags().IntVarP(&trafficThreshold, "threshold", "t", 0, "per-origin in-flight threshold (default from intersection.threshold)")
	trafficCmd.Flags().IntVar(&trafficConcurrency, "concurrency", 0, "vehicles approaching at once (default from traffic.concurrency)")
	trafficCmd.Flags().Uint64Var(&trafficSeed, "seed", 0, "random seed, 0 picks one from the clock")
	trafficCmd.Flags().BoolVar(&trafficTUI, "tui", false, "show the live intersection view")
	trafficCmd.Flags().BoolVar(&trafficJSON, "json", false, "print the report as JSON")
}

// applyTrafficFlags overrides cfg with the flags the user actually set.
func applyTrafficFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("vehicles") {
		cfg.Traffic.Vehicles = trafficVehicles
	}
	if flags.Changed("threshold") {
		cfg.Intersection.Threshold = trafficThreshold
	}
	if flags.Changed("concurrency") {
		cfg.Traffic.Concurrency = trafficConcurrency
	}
	if flags.Changed("seed") {
		cfg.Traffic.Seed = trafficSeed
	}
	if flags.Changed("tui") {
		cfg.TUI.Enabled = trafficTUI
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		return fmt.Errorf("invalid flags: %w", config.ValidationErrors(errs))
	}
	return nil
}

func runTraffic(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := applyTrafficFlags(cmd, cfg); err != nil {
		return err
	}

	isTTY := term.IsTerminal(int(os.Stdout.Fd()))
	live := cfg.TUI.Enabled && isTTY && !trafficJSON

	logger, err := newLogger(cfg, cmd.ErrOrStderr(), live)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Close() }()

	sim := simulation.NewTrafficSim(simulation.TrafficParamsFromConfig(cfg), logger)

	var report *simulation.TrafficReport
	if live {
		report, err = tui.New(sim, cfg.TUI.RefreshInterval()).Run(cmd.Context())
	} else {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		report, err = sim.Run(ctx)
		stop()
	}
	if err != nil {
		return fmt.Errorf("traffic run failed: %w", err)
	}

	out := cmd.OutOrStdout()
	if trafficJSON {
		if err := writeJSON(out, report); err != nil {
			return err
		}
	} else {
		fmt.Fprint(out, tui.RenderReport(report, isTTY))
	}

	if !report.OK() {
		return fmt.Errorf("traffic run %s failed its safety checks", report.RunID)
	}
	return nil
}
