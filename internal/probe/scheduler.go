package probe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"golang.org/x/sync/semaphore"

	"xprobe/internal/core/types"
	"xprobe/internal/logger"
	pkgerrors "xprobe/pkg/errors"
)

// DefaultInterval is the probe cadence.
const DefaultInterval = 10 * time.Second

// Runner performs a single probe.
type Runner interface {
	Run(ctx context.Context) (int, error)
}

// TunnelStateProvider reports the tunnel's connection state.
type TunnelStateProvider interface {
	State() types.TunnelState
}

// Observer receives every applied Outcome, in completion order.
type Observer func(Outcome)

// Scheduler fires a probe every interval while the tunnel is connected.
// At most one probe is in flight; a tick that finds one running is dropped.
type Scheduler struct {
	runner   Runner
	tunnel   TunnelStateProvider
	interval time.Duration

	scheduler gocron.Scheduler
	running   bool

	// slot admits one probe at a time.
	slot *semaphore.Weighted
	wg   sync.WaitGroup

	mu         sync.Mutex
	reading    Reading
	lastErr    error
	cancel     context.CancelFunc
	generation uint64
	observers  []Observer
	rootCtx    context.Context
	rootCancel context.CancelFunc

	// delivery keeps observer callbacks in completion order.
	delivery sync.Mutex

	log *slog.Logger
}

// NewScheduler creates a Scheduler. An interval <= 0 selects DefaultInterval.
func NewScheduler(runner Runner, tunnel TunnelStateProvider, interval time.Duration) (*Scheduler, error) {
	if runner == nil || tunnel == nil {
		return nil, errors.New("probe scheduler needs a runner and a tunnel state provider")
	}
	if interval <= 0 {
		interval = DefaultInterval
	}

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	return &Scheduler{
		runner:    runner,
		tunnel:    tunnel,
		interval:  interval,
		scheduler: scheduler,
		slot:      semaphore.NewWeighted(1),
		log:       logger.WithComponent("probe.scheduler"),
	}, nil
}

// Subscribe registers an observer for probe outcomes.
func (s *Scheduler) Subscribe(fn Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, fn)
}

// Start begins periodic probing. The first tick fires immediately. Probes
// run under a context derived from ctx.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("probe scheduler is already running")
	}
	s.rootCtx, s.rootCancel = context.WithCancel(ctx)
	rootCtx := s.rootCtx
	s.mu.Unlock()

	_, err := s.scheduler.NewJob(
		gocron.DurationJob(s.interval),
		gocron.NewTask(func() {
			s.Tick(rootCtx)
		}),
		gocron.WithStartAt(gocron.WithStartImmediately()),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithName("latency-probe"),
	)
	if err != nil {
		s.rootCancel()
		return fmt.Errorf("failed to create probe job: %w", err)
	}

	s.scheduler.Start()

	s.mu.Lock()
	s.running = true
	s.mu.Unlock()

	s.log.Info("probe scheduler started", "interval", s.interval)
	return nil
}

// Stop cancels any in-flight probe, discards its result and waits for the
// worker to exit.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return errors.New("probe scheduler is not running")
	}
	s.running = false
	s.cancelInFlightLocked()
	if s.rootCancel != nil {
		s.rootCancel()
	}
	s.mu.Unlock()

	err := s.scheduler.Shutdown()
	s.wg.Wait()
	if err != nil {
		return fmt.Errorf("failed to stop scheduler: %w", err)
	}

	s.log.Info("probe scheduler stopped")
	return nil
}

// IsRunning returns whether periodic probing is active.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Tick is one timer firing. It returns true when a probe was dispatched.
// A disconnected tunnel cancels any in-flight probe.
func (s *Scheduler) Tick(ctx context.Context) bool {
	state := s.tunnel.State()
	if !state.IsConnected() {
		s.log.Debug("tunnel not connected, skipping probe", "state", state)
		s.cancelInFlight()
		return false
	}

	if !s.slot.TryAcquire(1) {
		s.log.Debug("probe still in flight, tick dropped")
		return false
	}

	probeCtx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	s.generation++
	gen := s.generation
	s.cancel = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	go s.probe(probeCtx, cancel, gen)
	return true
}

// ProbeNow fires an out-of-schedule tick. It returns false when the
// scheduler is stopped, the tunnel is not connected or a probe is in flight.
func (s *Scheduler) ProbeNow() bool {
	s.mu.Lock()
	ctx, running := s.rootCtx, s.running
	s.mu.Unlock()
	if !running {
		return false
	}
	return s.Tick(ctx)
}

// HandleTunnelState reacts to a pushed tunnel state change. Leaving the
// connected state cancels the in-flight probe.
func (s *Scheduler) HandleTunnelState(state types.TunnelState) {
	if !state.IsConnected() {
		s.cancelInFlight()
	}
}

// Probing reports whether a probe is in flight.
func (s *Scheduler) Probing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

// Reading returns the last known reading.
func (s *Scheduler) Reading() Reading {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reading
}

// LastError returns the error of the most recent completed probe, or nil
// if it succeeded.
func (s *Scheduler) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

func (s *Scheduler) cancelInFlight() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelInFlightLocked()
}

// cancelInFlightLocked bumps the generation so a late result is ignored.
func (s *Scheduler) cancelInFlightLocked() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	s.cancel = nil
	s.generation++
	s.log.Debug("in-flight probe cancelled")
}

func (s *Scheduler) probe(ctx context.Context, cancel context.CancelFunc, gen uint64) {
	defer s.wg.Done()
	defer s.slot.Release(1)
	defer cancel()

	started := time.Now()
	ms, err := s.runner.Run(ctx)
	finished := time.Now()

	s.mu.Lock()
	if gen != s.generation || ctx.Err() != nil {
		if gen == s.generation {
			s.cancel = nil
		}
		s.mu.Unlock()
		s.log.Debug("discarding result of cancelled probe")
		return
	}

	s.cancel = nil
	if err == nil {
		s.reading = Reading{MS: ms, Valid: true, At: finished}
	}
	s.lastErr = err
	outcome := Outcome{
		Reading:  s.reading,
		Err:      err,
		Started:  started,
		Duration: finished.Sub(started),
	}
	observers := append([]Observer(nil), s.observers...)

	s.delivery.Lock()
	s.mu.Unlock()
	defer s.delivery.Unlock()

	s.logOutcome(outcome)
	for _, fn := range observers {
		fn(outcome)
	}
}

func (s *Scheduler) logOutcome(o Outcome) {
	switch {
	case o.Err == nil:
		s.log.Info("probe completed", "latency_ms", o.Reading.MS, "severity", o.Reading.Severity(), "duration", o.Duration)
	case pkgerrors.IsNegativeResult(o.Err):
		s.log.Info("probe unsuccessful", "reason", o.Err, "last_reading", o.Reading.String())
	default:
		s.log.Warn("probe failed", "error", o.Err, "last_reading", o.Reading.String())
	}
}
