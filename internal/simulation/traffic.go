package simulation

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"

	"github.com/Iron-Ham/synchcore/internal/config"
	"github.com/Iron-Ham/synchcore/internal/event"
	"github.com/Iron-Ham/synchcore/internal/intersection"
	"github.com/Iron-Ham/synchcore/internal/logging"
)

// TrafficParams describes one traffic run.
type TrafficParams struct {
	Vehicles      int
	Concurrency   int
	Threshold     int
	Seed          uint64 // 0 picks a seed from the clock
	DwellMin      time.Duration
	DwellMax      time.Duration
	ArrivalJitter time.Duration
}

// TrafficParamsFromConfig converts the traffic and intersection sections of
// cfg.
func TrafficParamsFromConfig(cfg *config.Config) TrafficParams {
	lo, hi := cfg.Traffic.DwellRange()
	return TrafficParams{
		Vehicles:      cfg.Traffic.Vehicles,
		Concurrency:   cfg.Traffic.Concurrency,
		Threshold:     cfg.Intersection.Threshold,
		Seed:          cfg.Traffic.Seed,
		DwellMin:      lo,
		DwellMax:      hi,
		ArrivalJitter: cfg.Traffic.ArrivalJitter(),
	}
}

// plan is one pre-drawn vehicle.
type plan struct {
	vehicle intersection.Vehicle
	arrival time.Duration
	dwell   time.Duration
}

// OriginStats summarizes the vehicles from one approach.
type OriginStats struct {
	Direction string        `json:"direction"`
	Vehicles  int           `json:"vehicles"`
	Waited    int           `json:"waited"`
	TotalWait time.Duration `json:"total_wait"`
	MaxWait   time.Duration `json:"max_wait"`
}

// MeanWait is the average time a vehicle from this origin spent in
// BeforeEntry.
func (s OriginStats) MeanWait() time.Duration {
	if s.Vehicles == 0 {
		return 0
	}
	return s.TotalWait / time.Duration(s.Vehicles)
}

// TrafficReport is the outcome of a traffic run.
type TrafficReport struct {
	RunID       string         `json:"run_id"`
	Seed        uint64         `json:"seed"`
	Threshold   int            `json:"threshold"`
	Concurrency int            `json:"concurrency"`
	Planned     int            `json:"planned"`
	Completed   int            `json:"completed"`
	Skipped     int            `json:"skipped"`
	Duration    time.Duration  `json:"duration"`
	Origins     [4]OriginStats `json:"origins"`
	Monitor     MonitorReport  `json:"monitor"`
}

// OK reports whether every planned vehicle went through without the
// monitor flagging a violation.
func (r *TrafficReport) OK() bool {
	return r.Monitor.OK() && r.Completed+r.Skipped == r.Planned && r.Monitor.StillInside == 0
}

// TrafficSim drives random vehicles through a Controller.
type TrafficSim struct {
	params TrafficParams
	bus    *event.Bus
	ctl    *intersection.Controller
	logger *logging.Logger
	runID  string
}

// NewTrafficSim creates a simulation over a fresh controller. A nil logger
// discards output.
func NewTrafficSim(params TrafficParams, logger *logging.Logger) *TrafficSim {
	if logger == nil {
		logger = logging.NopLogger()
	}
	if params.Seed == 0 {
		params.Seed = uint64(time.Now().UnixNano())
	}
	params.Concurrency = max(params.Concurrency, 1)
	if params.DwellMax < params.DwellMin {
		params.DwellMax = params.DwellMin
	}

	runID := uuid.NewString()
	logger = logger.WithRun(runID)
	bus := event.NewBus()
	ctl := intersection.New(
		intersection.WithThreshold(params.Threshold),
		intersection.WithLogger(logger),
		intersection.WithEventBus(bus),
	)
	params.Threshold = ctl.Threshold()

	return &TrafficSim{
		params: params,
		bus:    bus,
		ctl:    ctl,
		logger: logger.WithComponent("traffic"),
		runID:  runID,
	}
}

// Controller returns the controller the simulation drives.
func (s *TrafficSim) Controller() *intersection.Controller {
	return s.ctl
}

// Bus returns the event bus the controller publishes to.
func (s *TrafficSim) Bus() *event.Bus {
	return s.bus
}

// RunID identifies this run in logs and reports.
func (s *TrafficSim) RunID() string {
	return s.runID
}

// Params returns the effective parameters, seed included.
func (s *TrafficSim) Params() TrafficParams {
	return s.params
}

// plans draws every vehicle up front so a seed reproduces the same traffic
// regardless of scheduling.
func (s *TrafficSim) plans() []plan {
	rng := rand.New(rand.NewPCG(s.params.Seed, s.params.Seed>>32|1))
	dirs := intersection.Directions()

	out := make([]plan, s.params.Vehicles)
	for i := range out {
		origin := dirs[rng.IntN(len(dirs))]
		dest := dirs[(int(origin)+1+rng.IntN(len(dirs)-1))%len(dirs)]
		p := plan{vehicle: intersection.Vehicle{Origin: origin, Destination: dest}}
		if s.params.ArrivalJitter > 0 {
			p.arrival = time.Duration(rng.Int64N(int64(s.params.ArrivalJitter) + 1))
		}
		p.dwell = s.params.DwellMin
		if spread := s.params.DwellMax - s.params.DwellMin; spread > 0 {
			p.dwell += time.Duration(rng.Int64N(int64(spread) + 1))
		}
		out[i] = p
	}
	return out
}

// Run sends every planned vehicle through the intersection, at most
// Concurrency at a time, and returns what happened. Cancelling ctx stops
// vehicles that have not yet arrived; vehicles already inside finish.
// The controller is closed when Run returns without error.
func (s *TrafficSim) Run(ctx context.Context) (*TrafficReport, error) {
	mon := NewMonitor(s.params.Threshold)
	mon.Attach(s.bus)
	defer mon.Detach()

	report := &TrafficReport{
		RunID:       s.runID,
		Seed:        s.params.Seed,
		Threshold:   s.params.Threshold,
		Concurrency: s.params.Concurrency,
		Planned:     s.params.Vehicles,
	}
	for _, d := range intersection.Directions() {
		report.Origins[d].Direction = d.String()
	}

	s.logger.Info("traffic run starting",
		"vehicles", s.params.Vehicles,
		"concurrency", s.params.Concurrency,
		"threshold", s.params.Threshold,
		"seed", s.params.Seed)

	var mu sync.Mutex
	record := func(v intersection.Vehicle, wait time.Duration) {
		mu.Lock()
		defer mu.Unlock()
		st := &report.Origins[v.Origin]
		st.Vehicles++
		st.TotalWait += wait
		st.MaxWait = max(st.MaxWait, wait)
		report.Completed++
	}
	skip := func() {
		mu.Lock()
		report.Skipped++
		mu.Unlock()
	}

	start := time.Now()
	p := pool.New().WithErrors().WithMaxGoroutines(s.params.Concurrency)
	for _, pl := range s.plans() {
		if ctx.Err() != nil {
			skip()
			continue
		}
		p.Go(func() error {
			if pl.arrival > 0 {
				select {
				case <-ctx.Done():
					skip()
					return nil
				case <-time.After(pl.arrival):
				}
			}
			return s.drive(pl, record)
		})
	}
	err := p.Wait()
	report.Duration = time.Since(start)
	report.Monitor = mon.Report()

	for i := range report.Origins {
		report.Origins[i].Waited = report.Monitor.WaitedByOrigin[i]
	}

	if err != nil {
		return report, fmt.Errorf("traffic run %s: %w", s.runID, err)
	}
	if err := s.ctl.Close(); err != nil {
		return report, fmt.Errorf("traffic run %s: %w", s.runID, err)
	}

	s.logger.Info("traffic run finished",
		"completed", report.Completed,
		"skipped", report.Skipped,
		"duration", report.Duration,
		"max_bypass", report.Monitor.MaxBypass,
		"violations", len(report.Monitor.Violations))
	return report, nil
}

func (s *TrafficSim) drive(pl plan, record func(intersection.Vehicle, time.Duration)) error {
	v := pl.vehicle
	arrived := time.Now()
	if err := s.ctl.BeforeEntry(v.Origin, v.Destination); err != nil {
		return fmt.Errorf("enter %s: %w", v, err)
	}
	wait := time.Since(arrived)
	time.Sleep(pl.dwell)
	if err := s.ctl.AfterExit(v.Origin, v.Destination); err != nil {
		return fmt.Errorf("exit %s: %w", v, err)
	}
	record(v, wait)
	return nil
}
