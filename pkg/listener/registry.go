// Package listener provides a generic, goroutine-safe registry of listeners
// of one capability type, guarded by a writer-priority FairLock.
//
// Iteration is lock-scoped: WithListeners holds the shared side of the lock
// for the duration of the callback, so a traversal always sees a fixed set
// of listeners. Add and Remove take the exclusive side and therefore wait
// for in-progress traversals to finish.
package listener

import (
	"context"
	"fmt"
	"iter"
	"sync/atomic"

	qerrors "github.com/pzverkov/poolwatch/internal/errors"
	"github.com/pzverkov/poolwatch/pkg/fairlock"
	"github.com/pzverkov/poolwatch/pkg/logging"
)

// Option configures a Registry.
type Option func(*options)

type options struct {
	logger *logging.Logger
	name   string
}

// WithLogger sets the logger used to report listener and lock failures.
func WithLogger(l *logging.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithName labels the registry in log entries and errors.
func WithName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}

// Registry holds listeners of type T in registration order. Duplicates are
// allowed. T is compared with ==, so listeners must have comparable dynamic
// types (pointers, or structs of comparable fields); func values are not.
type Registry[T comparable] struct {
	lock *fairlock.FairLock

	// listeners is replaced, never modified in place, once a traversal may
	// have seen it.
	listeners []T
	size      atomic.Int64

	logger *logging.Logger
	name   string
}

// NewRegistry creates an empty registry.
func NewRegistry[T comparable](opts ...Option) *Registry[T] {
	o := options{name: "listeners"}
	for _, opt := range opts {
		opt(&o)
	}
	return &Registry[T]{
		lock:   fairlock.New(),
		logger: logging.OrDefault(o.logger).Named("listener").With(logging.Fields{"registry": o.name}),
		name:   o.name,
	}
}

// Name returns the registry label.
func (r *Registry[T]) Name() string {
	return r.name
}

// Add appends l. The zero value of T (a nil interface, or a nil pointer
// when T is a pointer type) is ignored. A typed nil pointer stored in an
// interface T is not the zero value and is appended.
func (r *Registry[T]) Add(l T) {
	_ = r.AddContext(context.Background(), l)
}

// AddContext appends l, giving up when ctx is done while waiting for the
// lock. The returned error then matches errors.ErrInterrupted and the
// registry is unchanged.
func (r *Registry[T]) AddContext(ctx context.Context, l T) error {
	var zero T
	if l == zero {
		return nil
	}

	if err := r.lock.AcquireWriteContext(ctx); err != nil {
		return fmt.Errorf("listener: add to %s: %w", r.name, err)
	}
	defer r.release("add")

	r.listeners = append(r.listeners, l)
	r.size.Store(int64(len(r.listeners)))
	return nil
}

// Remove deletes the first listener equal to l and reports whether one was
// found.
func (r *Registry[T]) Remove(l T) bool {
	removed, _ := r.RemoveContext(context.Background(), l)
	return removed
}

// RemoveContext is Remove with an abandonable lock wait.
func (r *Registry[T]) RemoveContext(ctx context.Context, l T) (bool, error) {
	if r.IsEmpty() {
		return false, nil
	}

	if err := r.lock.AcquireWriteContext(ctx); err != nil {
		return false, fmt.Errorf("listener: remove from %s: %w", r.name, err)
	}
	defer r.release("remove")

	for i, existing := range r.listeners {
		if existing != l {
			continue
		}
		next := make([]T, 0, len(r.listeners)-1)
		next = append(next, r.listeners[:i]...)
		next = append(next, r.listeners[i+1:]...)
		r.listeners = next
		r.size.Store(int64(len(next)))
		return true, nil
	}
	return false, nil
}

// IsEmpty reports whether the registry looked empty at the time of the
// call. It takes no lock and is meant as a cheap hint for skipping work.
func (r *Registry[T]) IsEmpty() bool {
	return r.size.Load() == 0
}

// Len returns the number of registered listeners without locking.
func (r *Registry[T]) Len() int {
	return int(r.size.Load())
}

// WithListeners runs fn with a read-only traversal of the current
// listeners while holding the shared lock. fn is not called when the
// registry is empty. The lock is released when fn returns or panics; the
// sequence must not be used after that.
func (r *Registry[T]) WithListeners(ctx context.Context, fn func(listeners iter.Seq[T]) error) error {
	if err := r.lock.AcquireReadContext(ctx); err != nil {
		return fmt.Errorf("listener: iterate %s: %w", r.name, err)
	}
	defer r.release("with_listeners")

	current := r.listeners
	if len(current) == 0 {
		return nil
	}

	return fn(func(yield func(T) bool) {
		for _, l := range current {
			if !yield(l) {
				return
			}
		}
	})
}

// Listeners returns a copy of the registered listeners.
func (r *Registry[T]) Listeners() []T {
	var out []T
	_ = r.WithListeners(context.Background(), func(seq iter.Seq[T]) error {
		for l := range seq {
			out = append(out, l)
		}
		return nil
	})
	return out
}

// NotifyResult summarizes one notification round.
type NotifyResult struct {
	Delivered int
	Failed    int
	Errors    []error
}

// Notify invokes fn for every listener in registration order under the
// shared lock. A listener that returns an error or panics is logged and
// counted; the round always continues with the next listener. The returned
// error is non-nil only when the lock wait was abandoned.
func (r *Registry[T]) Notify(ctx context.Context, round string, fn func(T) error) (NotifyResult, error) {
	var result NotifyResult
	if r.IsEmpty() {
		return result, nil
	}

	err := r.WithListeners(ctx, func(seq iter.Seq[T]) error {
		i := 0
		for l := range seq {
			if err := invoke(l, fn); err != nil {
				lerr := &qerrors.ListenerError{Round: round, Index: i, Err: err}
				result.Failed++
				result.Errors = append(result.Errors, lerr)
				r.logger.Warn("listener failed", logging.Fields{
					"round": round,
					"index": i,
					"error": err,
				})
			} else {
				result.Delivered++
			}
			i++
		}
		return nil
	})
	return result, err
}

func invoke[T any](l T, fn func(T) error) (err error) {
	defer func() {
		if v := recover(); v != nil {
			err = &qerrors.PanicError{Value: v}
		}
	}()
	return fn(l)
}

func (r *Registry[T]) release(op string) {
	if err := r.lock.Release(); err != nil {
		r.logger.Error("lock release failed", logging.Fields{"op": op, "error": err})
	}
}
