package license

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Scheduler state machine: Idle -> Verifying -> {Idle, BackingOff} ->
// Idle. Exactly one verification attempt is in flight at a time; a
// trigger that arrives while one is outstanding is coalesced, never
// queued.
const (
	stateIdle int32 = iota
	stateVerifying
	stateBackingOff
)

const (
	// backoffBase is the first retry delay after a network failure
	backoffBase = time.Minute
	// startupDelay gives the host a moment before the first check-in
	startupDelay = 10 * time.Second
)

// Scheduler drives periodic background re-verification. All record
// mutation happens through Manager.verifyOnce, so every state
// transition is durably written before the next tick is armed.
type Scheduler struct {
	manager  *Manager
	interval time.Duration
	logger   *slog.Logger

	state    atomic.Int32
	failures int // consecutive network failures, owned by the run loop

	trigger  chan struct{}
	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewScheduler creates a scheduler ticking at the given interval.
func NewScheduler(manager *Manager, interval time.Duration, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		manager:  manager,
		interval: interval,
		logger:   logger.With(slog.String("component", "verification_scheduler")),
		trigger:  make(chan struct{}, 1),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Run executes the verification loop until the context is cancelled
// or Stop is called. It blocks and is meant to run in its own
// goroutine.
func (s *Scheduler) Run(ctx context.Context) {
	defer close(s.doneCh)

	s.logger.Info("verification scheduler started",
		slog.Duration("interval", s.interval),
	)

	timer := time.NewTimer(startupDelay)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("verification scheduler stopped", slog.String("reason", "context cancelled"))
			return
		case <-s.stopCh:
			s.logger.Info("verification scheduler stopped", slog.String("reason", "stop requested"))
			return
		case <-s.trigger:
		case <-timer.C:
		}

		delay := s.tick(ctx)

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(delay)
	}
}

// Stop signals the loop to exit and waits for it to finish. An
// in-flight verification either completes or is abandoned by the
// run context; the record is never left partially written.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
	<-s.doneCh
}

// TriggerNow requests an immediate verification attempt. If one is
// already pending or in flight the request coalesces into it.
func (s *Scheduler) TriggerNow() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// State reports the current state for diagnostics.
func (s *Scheduler) State() string {
	switch s.state.Load() {
	case stateVerifying:
		return "verifying"
	case stateBackingOff:
		return "backing_off"
	default:
		return "idle"
	}
}

// tick runs one verification attempt and returns the delay before the
// next one.
func (s *Scheduler) tick(ctx context.Context) time.Duration {
	if !s.state.CompareAndSwap(stateIdle, stateVerifying) &&
		!s.state.CompareAndSwap(stateBackingOff, stateVerifying) {
		// A previous attempt is still outstanding; skip this tick
		return s.interval
	}

	disposition, err := s.manager.verifyOnce(ctx)

	switch disposition {
	case verifySucceeded, verifySkipped:
		s.failures = 0
		s.state.Store(stateIdle)
		return s.interval

	case verifyTerminal:
		// Revoked or key-invalid: the verdict is final and persisted;
		// keep ticking at the normal cadence in case the record is
		// replaced by a fresh activation
		s.failures = 0
		s.state.Store(stateIdle)
		return s.interval

	default:
		s.failures++
		s.state.Store(stateBackingOff)
		delay := s.backoffDelay()
		s.logger.Debug("verification backing off",
			slog.Int("consecutive_failures", s.failures),
			slog.Duration("next_attempt_in", delay),
			slog.Any("error", err),
		)
		return delay
	}
}

// backoffDelay doubles from backoffBase per consecutive failure,
// capped at the normal tick interval.
func (s *Scheduler) backoffDelay() time.Duration {
	delay := backoffBase
	for i := 1; i < s.failures; i++ {
		delay *= 2
		if delay >= s.interval {
			return s.interval
		}
	}
	if delay > s.interval {
		return s.interval
	}
	return delay
}
