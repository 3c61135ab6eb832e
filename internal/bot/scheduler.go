package bot

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/abdala981br/automacao/internal/metrics"
)

// DefaultPeriod is the tick cadence of the simulated robot.
const DefaultPeriod = 4 * time.Second

// TickFunc runs one tick. ctx is cancelled as soon as the scheduler stops.
type TickFunc func(ctx context.Context) error

// Scheduler 是一个周期任务，只有 stopped 与 running 两个状态。
// Start 与 Stop 在互斥锁下完成状态切换，重复调用为空操作。
type Scheduler struct {
	mu     sync.Mutex
	cancel context.CancelFunc
	closed bool
	wg     sync.WaitGroup

	tick   TickFunc
	period time.Duration
	clock  clockwork.Clock
	logger *slog.Logger
}

// NewScheduler builds a stopped scheduler.
func NewScheduler(tick TickFunc, period time.Duration, clock clockwork.Clock, logger *slog.Logger) *Scheduler {
	if period <= 0 {
		period = DefaultPeriod
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{tick: tick, period: period, clock: clock, logger: logger}
}

// Start moves stopped -> running. It reports false when already running or shut down.
func (s *Scheduler) Start() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.cancel != nil {
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	ticker := s.clock.NewTicker(s.period)
	s.cancel = cancel
	s.wg.Add(1)
	go s.run(ctx, ticker)

	metrics.BotStarted()
	s.logger.Info("bot started", slog.Duration("period", s.period))
	return true
}

// Stop moves running -> stopped and returns immediately; an in-flight tick
// sees its context cancelled but is not awaited. It reports false when
// already stopped.
func (s *Scheduler) Stop() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopLocked()
}

func (s *Scheduler) stopLocked() bool {
	if s.cancel == nil {
		return false
	}
	s.cancel()
	s.cancel = nil
	metrics.BotStopped()
	s.logger.Info("bot stopped")
	return true
}

// Running reports the current state.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

// Shutdown stops the scheduler for good and waits for the in-flight tick, if
// any, to return. After Shutdown returns nil no tick is running or will run.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.stopLocked()
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) run(ctx context.Context, ticker clockwork.Ticker) {
	defer s.wg.Done()
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			// select 在两路同时就绪时随机选择，这里再确认一次。
			if ctx.Err() != nil {
				return
			}
			if err := s.tick(ctx); err != nil && ctx.Err() == nil {
				s.logger.Debug("bot tick returned error", slog.Any("error", err))
			}
		}
	}
}
