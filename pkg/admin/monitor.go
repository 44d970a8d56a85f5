package admin

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pzverkov/poolwatch/internal/constants"
	qerrors "github.com/pzverkov/poolwatch/internal/errors"
	"github.com/pzverkov/poolwatch/pkg/listener"
	"github.com/pzverkov/poolwatch/pkg/logging"
	"github.com/pzverkov/poolwatch/pkg/window"
)

// PoolMonitor observes one pool. Every connection event is fanned out to the
// pool's rolling windows, its lifetime Stats and its connection listeners.
// Statistics listeners added to the monitor receive the snapshots of all of
// its windows.
type PoolMonitor struct {
	id     string
	alias  string
	config Config
	logger *logging.Logger

	windows []*window.Window
	stats   *Stats

	connListeners *listener.Registry[ConnectionListener]
	statListeners *listener.Registry[window.StatisticsListener]

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
	closed  bool
}

// statisticsFanout forwards window snapshots to the monitor's listeners.
type statisticsFanout struct {
	m *PoolMonitor
}

func (f *statisticsFanout) OnStatistics(alias string, snap *window.Snapshot) error {
	_, err := f.m.statListeners.Notify(context.Background(), "statistics", func(l window.StatisticsListener) error {
		return l.OnStatistics(alias, snap)
	})
	return err
}

// NewPoolMonitor creates a monitor for alias. The windows are created
// immediately; call Start to check them for expiry while the pool is idle.
func NewPoolMonitor(alias string, config Config) (*PoolMonitor, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	config.applyDefaults()
	if alias == "" {
		alias = constants.DefaultPoolAlias
	}

	id := uuid.NewString()
	logger := config.Logger.Named("admin").With(logging.Fields{"pool": alias, "monitor": id})

	tokens, dropped, err := uniqueTokens(config.StatisticsTokens)
	if err != nil {
		return nil, err
	}
	if len(dropped) > 0 {
		logger.Warn("repeated statistics tokens ignored", logging.Fields{"tokens": dropped})
	}
	config.StatisticsTokens = tokens

	m := &PoolMonitor{
		id:     id,
		alias:  alias,
		config: config,
		logger: logger,
		stats:  newStats(config.Clock),
		connListeners: listener.NewRegistry[ConnectionListener](
			listener.WithLogger(logger),
			listener.WithName(alias+"/connections"),
		),
		statListeners: listener.NewRegistry[window.StatisticsListener](
			listener.WithLogger(logger),
			listener.WithName(alias+"/statistics"),
		),
	}

	windows, err := window.NewAll(config.StatisticsTokens, &statisticsFanout{m: m},
		window.WithAlias(alias),
		window.WithClock(config.Clock),
		window.WithLogger(config.Logger),
		window.WithTracer(config.Tracer),
	)
	if err != nil {
		return nil, err
	}
	m.windows = windows

	logger.Info("pool monitor created", logging.Fields{"tokens": config.StatisticsTokens})
	return m, nil
}

// ID returns the unique identifier of the monitor.
func (m *PoolMonitor) ID() string { return m.id }

// Alias returns the pool alias.
func (m *PoolMonitor) Alias() string { return m.alias }

// Config returns the effective configuration.
func (m *PoolMonitor) Config() Config { return m.config }

// OnServed records a served connection that was active for activeTime.
func (m *PoolMonitor) OnServed(activeTime time.Duration) {
	m.stats.recordServed(activeTime)
	for _, w := range m.windows {
		w.RecordServed(activeTime)
	}
	if !m.connListeners.IsEmpty() {
		_, _ = m.connListeners.Notify(context.Background(), "served", func(l ConnectionListener) error {
			l.OnServed(m.alias, activeTime)
			return nil
		})
	}
}

// OnRefused records a refused connection request.
func (m *PoolMonitor) OnRefused() {
	m.stats.recordRefused()
	for _, w := range m.windows {
		w.RecordRefused()
	}
	if !m.connListeners.IsEmpty() {
		_, _ = m.connListeners.Notify(context.Background(), "refused", func(l ConnectionListener) error {
			l.OnRefused(m.alias)
			return nil
		})
	}
}

// AddStatisticsListener registers l for the snapshots of every window.
func (m *PoolMonitor) AddStatisticsListener(l window.StatisticsListener) {
	m.statListeners.Add(l)
}

// RemoveStatisticsListener unregisters l and reports whether it was found.
func (m *PoolMonitor) RemoveStatisticsListener(l window.StatisticsListener) bool {
	return m.statListeners.Remove(l)
}

// AddConnectionListener registers l for every connection event.
func (m *PoolMonitor) AddConnectionListener(l ConnectionListener) {
	m.connListeners.Add(l)
}

// RemoveConnectionListener unregisters l and reports whether it was found.
func (m *PoolMonitor) RemoveConnectionListener(l ConnectionListener) bool {
	return m.connListeners.Remove(l)
}

// Statistics returns the last completed snapshot of each window, keyed by
// token. Tokens are unique within a monitor. Windows that have not rotated
// yet are omitted.
func (m *PoolMonitor) Statistics() map[string]*window.Snapshot {
	result := make(map[string]*window.Snapshot, len(m.windows))
	for _, w := range m.windows {
		if snap, ok := w.LastCompleted(); ok {
			result[w.Token()] = snap
		}
	}
	return result
}

// Stats returns the lifetime statistics of the pool.
func (m *PoolMonitor) Stats() StatsSnapshot {
	return m.stats.Snapshot()
}

// Windows returns the pool's windows in token order.
func (m *PoolMonitor) Windows() []*window.Window {
	result := make([]*window.Window, len(m.windows))
	copy(result, m.windows)
	return result
}

// Start runs the periodic expiry check of every window until ctx is done
// or the monitor is closed. Calling Start more than once has no effect.
func (m *PoolMonitor) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return qerrors.ErrAdminClosed
	}
	if m.started {
		return nil
	}
	m.started = true

	ctx, m.cancel = context.WithCancel(ctx)
	for _, w := range m.windows {
		m.wg.Add(1)
		go func(w *window.Window) {
			defer m.wg.Done()
			w.Run(ctx, m.config.CheckInterval)
		}(w)
	}
	m.logger.Debug("expiry checks started", logging.Fields{"interval": m.config.CheckInterval})
	return nil
}

// Close stops the expiry checks and waits for them to exit. Events can
// still be recorded after Close; windows then rotate on the next event.
func (m *PoolMonitor) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	cancel := m.cancel
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	m.wg.Wait()

	m.logger.Info("pool monitor closed", logging.Fields{
		"served":  m.stats.servedTotal.Load(),
		"refused": m.stats.refusedTotal.Load(),
	})
	return nil
}
