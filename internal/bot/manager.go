package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/abdala981br/automacao/internal/domain"
)

var (
	// ErrManagerClosed is returned by Start once the process is shutting down.
	ErrManagerClosed = errors.New("bot manager is closed")
	// ErrReleased is returned by Start for an identity that exited and has not entered again.
	ErrReleased      = errors.New("bot released for this identity")
)

// Ticker produces one simulated application for an identity.
type Ticker interface {
	SimulateBotTick(ctx context.Context, identity string) (domain.JobApplication, error)
}

// Manager 为每个身份维护一个 Scheduler，并保证登出与进程退出时全部停止。
type Manager struct {
	mu     sync.Mutex
	bots   map[string]*Scheduler
	closed bool

	// 已登出的身份；仍持有未过期的访问令牌也不能再次启动，直到重新进入。
	released map[string]struct{}

	ticker Ticker
	period time.Duration
	clock  clockwork.Clock
	logger *slog.Logger
}

// NewManager builds a manager; schedulers are created lazily on Start.
func NewManager(ticker Ticker, period time.Duration, clock clockwork.Clock, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		bots:     map[string]*Scheduler{},
		released: map[string]struct{}{},
		ticker:   ticker,
		period:   period,
		clock:    clock,
		logger:   logger,
	}
}

// Start runs the identity's bot. It reports false when it was already running.
func (m *Manager) Start(identity string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false, ErrManagerClosed
	}
	if _, gone := m.released[identity]; gone {
		return false, ErrReleased
	}

	s, ok := m.bots[identity]
	if !ok {
		s = m.newScheduler(identity)
		m.bots[identity] = s
	}
	return s.Start(), nil
}

// Stop halts the identity's bot without waiting. It reports false when nothing was running.
func (m *Manager) Stop(identity string) bool {
	m.mu.Lock()
	s, ok := m.bots[identity]
	m.mu.Unlock()
	if !ok {
		return false
	}
	return s.Stop()
}

// Running reports whether the identity's bot is running.
func (m *Manager) Running(identity string) bool {
	m.mu.Lock()
	s, ok := m.bots[identity]
	m.mu.Unlock()
	return ok && s.Running()
}

// Release 停止并移除身份的机器人，等待进行中的 tick 结束后返回。登出时调用。
// 之后的 Start 返回 ErrReleased，直到 Admit。
func (m *Manager) Release(ctx context.Context, identity string) error {
	m.mu.Lock()
	s, ok := m.bots[identity]
	delete(m.bots, identity)
	m.released[identity] = struct{}{}
	m.mu.Unlock()
	if !ok {
		return nil
	}
	if err := s.Shutdown(ctx); err != nil {
		return fmt.Errorf("release bot for %s: %w", identity, err)
	}
	return nil
}

// Admit allows the identity to start its bot again after a Release.
func (m *Manager) Admit(identity string) {
	m.mu.Lock()
	delete(m.released, identity)
	m.mu.Unlock()
}

// Close releases every bot and rejects later starts.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	bots := m.bots
	m.bots = map[string]*Scheduler{}
	m.mu.Unlock()

	var errs []error
	for identity, s := range bots {
		if err := s.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("release bot for %s: %w", identity, err))
		}
	}
	m.logger.Info("bot manager closed", slog.Int("released", len(bots)))
	return errors.Join(errs...)
}

func (m *Manager) newScheduler(identity string) *Scheduler {
	log := m.logger.With(slog.String("identity", identity))
	tick := func(ctx context.Context) error {
		_, err := m.ticker.SimulateBotTick(ctx, identity)
		return err
	}
	return NewScheduler(tick, m.period, m.clock, log)
}
