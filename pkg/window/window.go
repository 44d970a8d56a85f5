// Package window implements rolling statistics windows for a connection
// pool. A Window buckets served and refused events into fixed, calendar
// aligned periods; when a period boundary passes it closes the bucket into
// an immutable Snapshot and publishes it to its StatisticsListeners exactly
// once.
//
// Recording is cheap: an atomic check of the next roll time followed by
// atomic counter updates under the shared side of the window's FairLock.
// Rotation takes the exclusive side only for the pointer swap and is
// serialized, together with its notification round, by a rotation mutex.
package window

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/pzverkov/poolwatch/internal/constants"
	"github.com/pzverkov/poolwatch/pkg/fairlock"
	"github.com/pzverkov/poolwatch/pkg/listener"
	"github.com/pzverkov/poolwatch/pkg/logging"
	"github.com/pzverkov/poolwatch/pkg/tracing"
)

// StatisticsListener receives the snapshot of every closed window. Calls
// for one window are made from a single goroutine at a time, in boundary
// order. A returned error is logged and does not stop other listeners.
type StatisticsListener interface {
	OnStatistics(alias string, snap *Snapshot) error
}

// StatisticsListenerFunc adapts a function to StatisticsListener. Func
// values are not comparable, so register a pointer to it:
//
//	f := window.StatisticsListenerFunc(fn)
//	w.Listeners().Add(&f)
type StatisticsListenerFunc func(alias string, snap *Snapshot) error

// OnStatistics calls f.
func (f *StatisticsListenerFunc) OnStatistics(alias string, snap *Snapshot) error {
	return (*f)(alias, snap)
}

// Option configures a Window.
type Option func(*options)

type options struct {
	now    func() time.Time
	logger *logging.Logger
	tracer tracing.Tracer
	alias  string
}

// WithClock overrides the time source. The location of the returned times
// determines calendar alignment.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithTracer sets the tracer used for rotation spans.
func WithTracer(t tracing.Tracer) Option {
	return func(o *options) {
		o.tracer = t
	}
}

// WithAlias names the pool the window belongs to. The alias is passed to
// every StatisticsListener.
func WithAlias(alias string) Option {
	return func(o *options) {
		o.alias = alias
	}
}

// Window is a rolling statistics window for one period token.
type Window struct {
	id     string
	alias  string
	token  string
	period Period

	now       func() time.Time
	logger    *logging.Logger
	tracer    tracing.Tracer
	listeners *listener.Registry[StatisticsListener]

	// nextRoll mirrors nextRollTime as Unix nanoseconds for the fast path.
	nextRoll atomic.Int64
	// nextRollAt publishes nextRollTime, with its location, to readers.
	nextRollAt atomic.Pointer[time.Time]

	// rotateMu serializes rotations and their notification rounds.
	rotateMu     sync.Mutex
	nextRollTime time.Time

	// swap guards current: recorders hold the read side, rotation the
	// write side.
	swap    *fairlock.FairLock
	current *accumulator

	last      atomic.Pointer[Snapshot]
	rotations atomic.Uint64
}

// New creates a window for token. onRotate, when non-nil, is registered as
// the first statistics listener.
func New(token string, onRotate StatisticsListener, opts ...Option) (*Window, error) {
	period, err := ParsePeriod(token)
	if err != nil {
		return nil, err
	}

	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.alias == "" {
		o.alias = constants.DefaultPoolAlias
	}

	logger := logging.OrDefault(o.logger).Named("window").With(logging.Fields{
		"pool":  o.alias,
		"token": period.String(),
	})

	w := &Window{
		id:     uuid.NewString(),
		alias:  o.alias,
		token:  period.String(),
		period: period,
		now:    o.now,
		logger: logger,
		tracer: tracing.OrDefault(o.tracer),
		listeners: listener.NewRegistry[StatisticsListener](
			listener.WithLogger(logger),
			listener.WithName(o.alias+"/"+period.String()),
		),
		swap: fairlock.New(),
	}

	now := w.now()
	w.current = newAccumulator(now)
	w.setNextRoll(period.FirstBoundary(now))

	if onRotate != nil {
		w.listeners.Add(onRotate)
	}

	logger.Debug("window created", logging.Fields{
		"id":        w.id,
		"next_roll": w.nextRollTime,
	})
	return w, nil
}

// NewAll creates one independent window per token in a comma separated list.
func NewAll(tokens string, onRotate StatisticsListener, opts ...Option) ([]*Window, error) {
	periods, err := ParsePeriods(tokens)
	if err != nil {
		return nil, err
	}
	windows := make([]*Window, 0, len(periods))
	for _, p := range periods {
		w, err := New(p.String(), onRotate, opts...)
		if err != nil {
			return nil, err
		}
		windows = append(windows, w)
	}
	return windows, nil
}

// ID returns the unique identifier of the window.
func (w *Window) ID() string { return w.id }

// Alias returns the pool alias.
func (w *Window) Alias() string { return w.alias }

// Token returns the canonical period token, e.g. "15m".
func (w *Window) Token() string { return w.token }

// Period returns the parsed period.
func (w *Window) Period() Period { return w.period }

// Listeners returns the registry of statistics listeners.
func (w *Window) Listeners() *listener.Registry[StatisticsListener] {
	return w.listeners
}

// RecordServed records a served connection that was active for activeTime.
// Negative durations count as zero.
func (w *Window) RecordServed(activeTime time.Duration) {
	w.RotateIfExpired()
	if activeTime < 0 {
		activeTime = 0
	}
	w.swap.AcquireRead()
	w.current.recordServed(activeTime)
	w.release()
}

// RecordRefused records a refused connection request.
func (w *Window) RecordRefused() {
	w.RotateIfExpired()
	w.swap.AcquireRead()
	w.current.recordRefused()
	w.release()
}

// NextRollTime returns the boundary at which the open window closes. It
// does not block, so listeners may call it during notification.
func (w *Window) NextRollTime() time.Time {
	return *w.nextRollAt.Load()
}

// setNextRoll is called with rotateMu held, or before w is shared.
func (w *Window) setNextRoll(t time.Time) {
	w.nextRollTime = t
	w.nextRollAt.Store(&t)
	w.nextRoll.Store(t.UnixNano())
}

// LastCompleted returns the most recently closed snapshot. ok is false
// until the first rotation.
func (w *Window) LastCompleted() (snap *Snapshot, ok bool) {
	snap = w.last.Load()
	return snap, snap != nil
}

// Rotations returns the number of snapshots published so far.
func (w *Window) Rotations() uint64 {
	return w.rotations.Load()
}

// RotateIfExpired closes the open window if its boundary has passed and
// notifies the listeners. At most one boundary is closed per call. It
// returns the number of snapshots published: 1, or 0 on the fast path and
// when another goroutine already rotated.
func (w *Window) RotateIfExpired() int {
	now := w.now()
	if now.UnixNano() < w.nextRoll.Load() {
		return 0
	}
	return w.rotate(now)
}

func (w *Window) rotate(now time.Time) int {
	w.rotateMu.Lock()
	defer w.rotateMu.Unlock()

	if now.Before(w.nextRollTime) {
		return 0
	}

	ctx, end := w.tracer.StartSpan(context.Background(), tracing.SpanWindowRotate,
		tracing.WithAttribute(tracing.AttrPoolAlias, w.alias),
		tracing.WithAttribute(tracing.AttrWindowToken, w.token),
		tracing.WithAttribute(tracing.AttrWindowID, w.id),
	)

	snap := w.swapLocked()
	w.last.Store(snap)
	w.rotations.Add(1)

	if failed := w.notify(ctx, snap); failed > 0 {
		end(fmt.Errorf("window: %d listener call(s) failed", failed))
	} else {
		end(nil)
	}
	return 1
}

// swapLocked closes the open window at nextRollTime under the write lock
// and advances nextRollTime by one period. The caller holds rotateMu.
func (w *Window) swapLocked() *Snapshot {
	w.swap.AcquireWrite()
	defer w.release()

	snap := w.current.close(w.token, w.nextRollTime)
	w.current = newAccumulator(w.nextRollTime)
	w.setNextRoll(w.period.Add(w.nextRollTime, 1))
	return snap
}

func (w *Window) notify(ctx context.Context, snap *Snapshot) int {
	ctx, end := w.tracer.StartSpan(ctx, tracing.SpanWindowNotify,
		tracing.WithAttribute(tracing.AttrWindowStart, snap.StartTime()),
		tracing.WithAttribute(tracing.AttrWindowStop, snap.StopTime()),
		tracing.WithAttribute(tracing.AttrServed, snap.ServedCount()),
		tracing.WithAttribute(tracing.AttrRefused, snap.RefusedCount()),
		tracing.WithAttribute(tracing.AttrListeners, w.listeners.Len()),
	)

	res, err := w.listeners.Notify(ctx, "statistics", func(l StatisticsListener) error {
		return l.OnStatistics(w.alias, snap)
	})
	end(err)

	w.logger.Debug("window rotated", logging.Fields{
		"start":     snap.StartTime(),
		"stop":      snap.StopTime(),
		"served":    snap.ServedCount(),
		"refused":   snap.RefusedCount(),
		"delivered": res.Delivered,
		"failed":    res.Failed,
	})
	return res.Failed
}

// Run checks the window for expiry every interval until ctx is done, so
// snapshots are published even when the pool is idle.
func (w *Window) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = constants.DefaultCheckInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.RotateIfExpired()
		}
	}
}

func (w *Window) release() {
	if err := w.swap.Release(); err != nil {
		w.logger.Error("lock release failed", logging.Fields{"error": err})
	}
}
