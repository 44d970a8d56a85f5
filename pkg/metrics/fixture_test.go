package metrics

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pzverkov/poolwatch/pkg/admin"
	"github.com/pzverkov/poolwatch/pkg/logging"
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

// newTestAdmin registers pool "db1" with a 10s window starting at epoch+3s.
func newTestAdmin(t *testing.T) (*admin.Admin, *admin.PoolMonitor, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: epoch.Add(3 * time.Second)}
	a := admin.New(context.Background(), admin.WithLogger(logging.NullLogger()))
	t.Cleanup(func() { _ = a.Close() })

	m, err := a.Register("db1", admin.Config{
		StatisticsTokens: "10s",
		CheckInterval:    time.Hour,
		Clock:            clock.Now,
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	return a, m, clock
}

// rotate moves the clock to the first boundary and closes the window.
func rotate(clock *fakeClock, m *admin.PoolMonitor) {
	clock.Set(epoch.Add(10 * time.Second))
	for _, w := range m.Windows() {
		w.RotateIfExpired()
	}
}
