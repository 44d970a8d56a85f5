package admin

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	qerrors "github.com/pzverkov/poolwatch/internal/errors"
	"github.com/pzverkov/poolwatch/pkg/logging"
	"github.com/pzverkov/poolwatch/pkg/tracing"
	"github.com/pzverkov/poolwatch/pkg/window"
)

var epoch = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type snapshotRecorder struct {
	mu    sync.Mutex
	snaps []*window.Snapshot
}

func (r *snapshotRecorder) OnStatistics(alias string, snap *window.Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps = append(r.snaps, snap)
	return nil
}

func (r *snapshotRecorder) Tokens() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	tokens := make([]string, 0, len(r.snaps))
	for _, s := range r.snaps {
		tokens = append(tokens, s.Token())
	}
	return tokens
}

type connRecorder struct {
	mu      sync.Mutex
	served  []time.Duration
	refused int
	aliases []string
}

func (r *connRecorder) OnServed(alias string, activeTime time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.served = append(r.served, activeTime)
	r.aliases = append(r.aliases, alias)
}

func (r *connRecorder) OnRefused(alias string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refused++
	r.aliases = append(r.aliases, alias)
}

func testConfig(clock *fakeClock, tokens string) Config {
	return Config{
		StatisticsTokens: tokens,
		CheckInterval:    time.Hour,
		Logger:           logging.NullLogger(),
		Clock:            clock.Now,
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	cfg.CheckInterval = -time.Second
	assert.Error(t, cfg.Validate())

	cfg = Config{StatisticsTokens: "10s,5x"}
	err := cfg.Validate()
	assert.ErrorIs(t, err, qerrors.ErrUnrecognizedSuffix)
	assert.ErrorIs(t, err, qerrors.ErrConfig)
}

func TestConfigApplyDefaults(t *testing.T) {
	var cfg Config
	cfg.applyDefaults()

	assert.Equal(t, "10s,15m,1d", cfg.StatisticsTokens)
	assert.Equal(t, time.Second, cfg.CheckInterval)
	assert.NotNil(t, cfg.Clock)
	assert.NotNil(t, cfg.Logger)
	assert.NotNil(t, cfg.Tracer)
}

func TestPoolMonitorFansOutEvents(t *testing.T) {
	clock := &fakeClock{now: epoch.Add(3 * time.Second)}
	m, err := NewPoolMonitor("db1", testConfig(clock, "10s,1m"))
	require.NoError(t, err)
	defer m.Close()

	stats := &snapshotRecorder{}
	conns := &connRecorder{}
	m.AddStatisticsListener(stats)
	m.AddConnectionListener(conns)

	m.OnServed(10 * time.Millisecond)
	m.OnServed(30 * time.Millisecond)
	m.OnRefused()

	assert.Equal(t, []time.Duration{10 * time.Millisecond, 30 * time.Millisecond}, conns.served)
	assert.Equal(t, 1, conns.refused)
	assert.Equal(t, []string{"db1", "db1", "db1"}, conns.aliases)

	assert.Empty(t, m.Statistics())

	clock.Set(epoch.Add(10 * time.Second))
	for _, w := range m.Windows() {
		w.RotateIfExpired()
	}
	assert.Equal(t, []string{"10s"}, stats.Tokens())

	snaps := m.Statistics()
	require.Contains(t, snaps, "10s")
	assert.NotContains(t, snaps, "1m")
	assert.Equal(t, uint64(2), snaps["10s"].ServedCount())
	assert.Equal(t, uint64(1), snaps["10s"].RefusedCount())

	clock.Set(epoch.Add(time.Minute))
	m.OnRefused()
	// Each window closes one boundary per event.
	assert.Equal(t, []string{"10s", "10s", "1m"}, stats.Tokens())

	require.True(t, m.RemoveStatisticsListener(stats))
	require.True(t, m.RemoveConnectionListener(conns))
	assert.False(t, m.RemoveConnectionListener(conns))
}

func TestPoolMonitorStats(t *testing.T) {
	clock := &fakeClock{now: epoch}
	m, err := NewPoolMonitor("db1", testConfig(clock, "1m"))
	require.NoError(t, err)
	defer m.Close()

	m.OnServed(10 * time.Millisecond)
	m.OnServed(50 * time.Millisecond)
	m.OnServed(-time.Millisecond)
	m.OnRefused()

	clock.Set(epoch.Add(30 * time.Second))
	s := m.Stats()

	assert.Equal(t, uint64(3), s.ServedTotal)
	assert.Equal(t, uint64(1), s.RefusedTotal)
	assert.Equal(t, 60*time.Millisecond, s.ActiveTimeTotal)
	assert.InDelta(t, 20.0, s.AvgActiveTimeMs, 1e-9)
	assert.InDelta(t, 50.0, s.PeakActiveTimeMs, 1e-9)
	assert.InDelta(t, 0.25, s.RefusedRatio(), 1e-9)
	assert.Equal(t, 30*time.Second, s.Uptime)
	assert.True(t, epoch.Equal(s.LastServed))
	assert.True(t, epoch.Equal(s.LastRefused))
}

func TestStatsEmpty(t *testing.T) {
	s := newStats(func() time.Time { return epoch }).Snapshot()
	assert.Zero(t, s.AvgActiveTimeMs)
	assert.Zero(t, s.RefusedRatio())
	assert.True(t, s.LastServed.IsZero())
}

func TestStatsConcurrentPeak(t *testing.T) {
	s := newStats(time.Now)

	var wg sync.WaitGroup
	for i := 1; i <= 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.recordServed(time.Duration(i) * time.Millisecond)
		}(i)
	}
	wg.Wait()

	snap := s.Snapshot()
	assert.Equal(t, uint64(50), snap.ServedTotal)
	assert.InDelta(t, 50.0, snap.PeakActiveTimeMs, 1e-9)
}

func TestPoolMonitorStartAndClose(t *testing.T) {
	clock := &fakeClock{now: epoch.Add(3 * time.Second)}
	cfg := testConfig(clock, "10s")
	cfg.CheckInterval = time.Millisecond

	m, err := NewPoolMonitor("db1", cfg)
	require.NoError(t, err)

	stats := &snapshotRecorder{}
	m.AddStatisticsListener(stats)

	require.NoError(t, m.Start(context.Background()))
	require.NoError(t, m.Start(context.Background()), "second Start is a no-op")

	clock.Set(epoch.Add(10 * time.Second))
	require.Eventually(t, func() bool { return len(stats.Tokens()) == 1 }, 2*time.Second, time.Millisecond)

	require.NoError(t, m.Close())
	require.NoError(t, m.Close())
	assert.ErrorIs(t, m.Start(context.Background()), ErrAdminClosed)
}

func TestPoolMonitorDropsRepeatedTokens(t *testing.T) {
	clock := &fakeClock{now: epoch.Add(3 * time.Second)}
	m, err := NewPoolMonitor("db1", testConfig(clock, "10s, 1m,10s,010s"))
	require.NoError(t, err)
	defer m.Close()

	assert.Equal(t, "10s,1m", m.Config().StatisticsTokens)
	require.Len(t, m.Windows(), 2)
	assert.Equal(t, "10s", m.Windows()[0].Token())
	assert.Equal(t, "1m", m.Windows()[1].Token())

	m.OnServed(time.Millisecond)
	clock.Set(epoch.Add(10 * time.Second))
	for _, w := range m.Windows() {
		w.RotateIfExpired()
	}
	snaps := m.Statistics()
	assert.Len(t, snaps, 1)
	assert.Equal(t, uint64(1), snaps["10s"].ServedCount())
}

func TestNewPoolMonitorRejectsBadTokens(t *testing.T) {
	clock := &fakeClock{now: epoch}
	_, err := NewPoolMonitor("db1", testConfig(clock, "0s"))
	assert.ErrorIs(t, err, qerrors.ErrInvalidPeriod)
}

func TestAdminRegisterLookupDeregister(t *testing.T) {
	clock := &fakeClock{now: epoch}
	tracer := tracing.NewSimpleTracer()
	a := New(context.Background(), WithLogger(logging.NullLogger()), WithTracer(tracer))
	defer a.Close()

	m1, err := a.Register("db1", testConfig(clock, "10s"))
	require.NoError(t, err)
	_, err = a.Register("db2", testConfig(clock, "1m"))
	require.NoError(t, err)

	_, err = a.Register("db1", testConfig(clock, "10s"))
	assert.ErrorIs(t, err, ErrPoolAlreadyRegistered)

	got, err := a.Monitor("db1")
	require.NoError(t, err)
	assert.Same(t, m1, got)
	assert.Equal(t, []string{"db1", "db2"}, a.Aliases())
	require.Len(t, a.Monitors(), 2)
	assert.Equal(t, "db1", a.Monitors()[0].Alias())

	require.NoError(t, a.Deregister("db1"))
	_, err = a.Monitor("db1")
	assert.ErrorIs(t, err, ErrPoolNotRegistered)
	assert.ErrorIs(t, a.Deregister("db1"), ErrPoolNotRegistered)
	assert.Equal(t, []string{"db2"}, a.Aliases())

	spans := tracer.SpansNamed(tracing.SpanAdminRegister)
	require.Len(t, spans, 3)
	assert.NoError(t, spans[0].Error)
	assert.Error(t, spans[2].Error)
	assert.Len(t, tracer.SpansNamed(tracing.SpanAdminDeregister), 2)
}

func TestAdminDefaultAlias(t *testing.T) {
	a := New(context.Background(), WithLogger(logging.NullLogger()))
	defer a.Close()

	m, err := a.Register("", testConfig(&fakeClock{now: epoch}, "1m"))
	require.NoError(t, err)
	assert.Equal(t, "default", m.Alias())
	assert.Equal(t, []string{"default"}, a.Aliases())
}

func TestAdminRegisterInvalidConfig(t *testing.T) {
	a := New(context.Background(), WithLogger(logging.NullLogger()))
	defer a.Close()

	_, err := a.Register("db1", Config{StatisticsTokens: "15"})
	assert.ErrorIs(t, err, qerrors.ErrUnrecognizedSuffix)
	assert.Empty(t, a.Aliases())
}

func TestAdminClose(t *testing.T) {
	a := New(context.Background(), WithLogger(logging.NullLogger()))

	_, err := a.Register("db1", testConfig(&fakeClock{now: epoch}, "1m"))
	require.NoError(t, err)

	require.NoError(t, a.Close())
	require.NoError(t, a.Close())
	assert.Empty(t, a.Aliases())

	_, err = a.Register("db2", DefaultConfig())
	assert.True(t, errors.Is(err, ErrAdminClosed))
}

func TestAdminConcurrentAccess(t *testing.T) {
	a := New(context.Background(), WithLogger(logging.NullLogger()))
	defer a.Close()

	clock := &fakeClock{now: epoch}
	_, err := a.Register("shared", testConfig(clock, "10s"))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				if m, err := a.Monitor("shared"); err == nil {
					m.OnServed(time.Millisecond)
				}
			}
		}()
		go func(i int) {
			defer wg.Done()
			alias := string(rune('a' + i))
			for j := 0; j < 20; j++ {
				if _, err := a.Register(alias, testConfig(clock, "10s")); err == nil {
					_ = a.Deregister(alias)
				}
			}
		}(i)
	}
	wg.Wait()

	m, err := a.Monitor("shared")
	require.NoError(t, err)
	assert.Equal(t, uint64(8*200), m.Stats().ServedTotal)
	assert.Equal(t, []string{"shared"}, a.Aliases())
}
