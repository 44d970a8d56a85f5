// Package admin is the administration layer of a connection pool. An Admin
// keeps one PoolMonitor per registered pool alias; each monitor feeds the
// pool's connection events into rolling statistics windows and publishes
// their snapshots to listeners.
package admin

import (
	"context"
	"fmt"
	"sort"

	"github.com/pzverkov/poolwatch/internal/constants"
	qerrors "github.com/pzverkov/poolwatch/internal/errors"
	"github.com/pzverkov/poolwatch/pkg/fairlock"
	"github.com/pzverkov/poolwatch/pkg/logging"
	"github.com/pzverkov/poolwatch/pkg/tracing"
)

// Re-exported errors for callers that only import admin.
var (
	ErrPoolNotRegistered     = qerrors.ErrPoolNotRegistered
	ErrPoolAlreadyRegistered = qerrors.ErrPoolAlreadyRegistered
	ErrAdminClosed           = qerrors.ErrAdminClosed
)

// Option configures an Admin.
type Option func(*Admin)

// WithLogger sets the logger used by the admin and, unless a pool Config
// names its own, by every registered pool.
func WithLogger(l *logging.Logger) Option {
	return func(a *Admin) {
		a.logger = l
	}
}

// WithTracer sets the tracer used for registration spans and, unless a
// pool Config names its own, for rotations.
func WithTracer(t tracing.Tracer) Option {
	return func(a *Admin) {
		a.tracer = t
	}
}

// Admin is a registry of monitored pools, keyed by alias.
type Admin struct {
	lock   *fairlock.FairLock
	pools  map[string]*PoolMonitor
	closed bool

	ctx    context.Context
	cancel context.CancelFunc

	logger *logging.Logger
	tracer tracing.Tracer
}

// New creates an Admin. Expiry checks of registered pools stop when ctx is
// done or Close is called.
func New(ctx context.Context, opts ...Option) *Admin {
	a := &Admin{
		lock:  fairlock.New(),
		pools: make(map[string]*PoolMonitor),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = logging.OrDefault(a.logger)
	a.tracer = tracing.OrDefault(a.tracer)
	a.ctx, a.cancel = context.WithCancel(ctx)
	return a
}

// Register starts monitoring the pool alias with config and returns its
// monitor.
func (a *Admin) Register(alias string, config Config) (m *PoolMonitor, err error) {
	if alias == "" {
		alias = constants.DefaultPoolAlias
	}
	_, end := a.tracer.StartSpan(a.ctx, tracing.SpanAdminRegister,
		tracing.WithAttribute(tracing.AttrPoolAlias, alias))
	defer func() { end(err) }()

	if config.Logger == nil {
		config.Logger = a.logger
	}
	if config.Tracer == nil {
		config.Tracer = a.tracer
	}

	a.lock.AcquireWrite()
	defer a.release("register")

	if a.closed {
		return nil, ErrAdminClosed
	}
	if _, ok := a.pools[alias]; ok {
		return nil, fmt.Errorf("%w: %q", ErrPoolAlreadyRegistered, alias)
	}

	m, err = NewPoolMonitor(alias, config)
	if err != nil {
		return nil, err
	}
	if err := m.Start(a.ctx); err != nil {
		return nil, err
	}
	a.pools[alias] = m

	a.logger.Info("pool registered", logging.Fields{"pool": alias, "monitor": m.ID()})
	return m, nil
}

// Deregister stops monitoring alias and closes its monitor.
func (a *Admin) Deregister(alias string) (err error) {
	_, end := a.tracer.StartSpan(a.ctx, tracing.SpanAdminDeregister,
		tracing.WithAttribute(tracing.AttrPoolAlias, alias))
	defer func() { end(err) }()

	a.lock.AcquireWrite()
	m, ok := a.pools[alias]
	delete(a.pools, alias)
	a.release("deregister")

	if !ok {
		return fmt.Errorf("%w: %q", ErrPoolNotRegistered, alias)
	}

	a.logger.Info("pool deregistered", logging.Fields{"pool": alias})
	return m.Close()
}

// Monitor returns the monitor of alias.
func (a *Admin) Monitor(alias string) (*PoolMonitor, error) {
	a.lock.AcquireRead()
	defer a.release("monitor")

	m, ok := a.pools[alias]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrPoolNotRegistered, alias)
	}
	return m, nil
}

// Monitors returns every registered monitor ordered by alias.
func (a *Admin) Monitors() []*PoolMonitor {
	a.lock.AcquireRead()
	defer a.release("monitors")

	result := make([]*PoolMonitor, 0, len(a.pools))
	for _, m := range a.pools {
		result = append(result, m)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Alias() < result[j].Alias() })
	return result
}

// Aliases returns the registered aliases in sorted order.
func (a *Admin) Aliases() []string {
	a.lock.AcquireRead()
	defer a.release("aliases")

	aliases := make([]string, 0, len(a.pools))
	for alias := range a.pools {
		aliases = append(aliases, alias)
	}
	sort.Strings(aliases)
	return aliases
}

// Close deregisters every pool. Further registrations fail with
// ErrAdminClosed. Close is idempotent.
func (a *Admin) Close() error {
	a.lock.AcquireWrite()
	if a.closed {
		a.release("close")
		return nil
	}
	a.closed = true
	pools := a.pools
	a.pools = make(map[string]*PoolMonitor)
	a.release("close")

	a.cancel()
	for _, m := range pools {
		_ = m.Close()
	}
	a.logger.Info("admin closed", logging.Fields{"pools": len(pools)})
	return nil
}

func (a *Admin) release(op string) {
	if err := a.lock.Release(); err != nil {
		a.logger.Error("lock release failed", logging.Fields{"op": op, "error": err})
	}
}
