// Package poolwatch provides the statistics core of a connection pool's
// administration layer: served and refused counts and active times,
// bucketed into calendar-aligned rolling windows and pushed to listeners
// whenever a window closes.
//
// # Quick Start
//
// Register a pool with the admin layer and report its events:
//
//	import "github.com/pzverkov/poolwatch/pkg/admin"
//
//	a := admin.New(ctx)
//	m, _ := a.Register("db1", admin.Config{StatisticsTokens: "10s,15m,1d"})
//
//	m.AddStatisticsListener(metrics.NewStatisticsLogger(nil))
//
//	m.OnServed(activeTime) // connection returned after activeTime
//	m.OnRefused()          // request refused
//
// A single window can be used on its own:
//
//	import "github.com/pzverkov/poolwatch/pkg/window"
//
//	f := window.StatisticsListenerFunc(onSnapshot)
//	w, _ := window.New("15m", &f)
//	w.RecordServed(12 * time.Millisecond)
//	snap, ok := w.LastCompleted()
//
// # Package Structure
//
//   - pkg/fairlock: Writer-priority reader/writer lock
//   - pkg/listener: Generic listener registry with lock-scoped iteration
//   - pkg/window: Period tokens, rolling windows and immutable snapshots
//   - pkg/admin: Pool monitors and the registry of monitored pools
//   - pkg/metrics: Statistics logger, Prometheus collector, health checks
//   - pkg/config: File and environment configuration
//   - pkg/logging, pkg/tracing: Structured logging and span tracing
//   - internal/constants: Token grammar and defaults
//   - internal/errors: Sentinel and typed errors
//
// # Window Alignment
//
// Windows close on unit boundaries of the clock's location. A 15m window
// closes at :00, :15, :30 and :45; a 1d window at local midnight. The first
// window may therefore be shorter than a full period. Each rotation closes
// exactly one boundary, so a window left idle across several boundaries
// catches up one snapshot per event or expiry check.
//
// # Testing
//
//	go test ./...                                       # All tests
//	go test -race ./pkg/...                             # Concurrency tests
//	go test -fuzz=FuzzParsePeriod ./pkg/window/         # Token fuzzing
//	go test -bench=. ./pkg/fairlock ./pkg/window        # Benchmarks
//	go test -tags otel ./pkg/tracing                    # OpenTelemetry adapter
package poolwatch
