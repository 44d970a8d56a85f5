// Package fairlock implements a reader/writer lock with writer priority.
//
// Once any writer is waiting, no new reader is granted, even while the lock
// is read-held. This bounds writer starvation at the cost of extra reader
// latency when writers are frequent.
//
// The lock does not track which goroutine holds which mode. Callers release
// exactly once per successful acquire. Releasing an unlocked lock is a
// contract violation reported as ErrIllegalLockState (a panic when built
// with -tags lockdebug).
//
// Blocking acquisitions have context-aware variants. An abandoned wait
// returns an error matching ErrInterrupted; any provisional state the wait
// held is rolled back before the error is returned.
package fairlock

import (
	"context"
	"sync"

	qerrors "github.com/pzverkov/poolwatch/internal/errors"
)

// Operation names used in errors.
const (
	opAcquireRead  = "fairlock: acquire_read"
	opAcquireWrite = "fairlock: acquire_write"
	opRelease      = "fairlock: release"
)

// Sentinels re-exported for callers that only import this package.
var (
	ErrIllegalLockState = qerrors.ErrIllegalLockState
	ErrInterrupted      = qerrors.ErrInterrupted
)

// FairLock is a writer-priority reader/writer lock. The zero value is an
// unlocked lock ready for use. A FairLock must not be copied after first use.
type FairLock struct {
	mu sync.Mutex

	// heldReaders is 0 when unlocked, n > 0 with n readers, -1 with one writer.
	heldReaders int
	// pendingWriters counts writers blocked in AcquireWrite.
	pendingWriters int

	// changed is closed and cleared on every state change that may let a
	// waiter proceed. Waiters select on it together with their context.
	changed chan struct{}
}

// State is a point-in-time view of the lock counters.
type State struct {
	HeldReaders    int
	PendingWriters int
}

// WriteHeld reports whether a writer holds the lock.
func (s State) WriteHeld() bool {
	return s.HeldReaders == -1
}

// New creates an unlocked FairLock.
func New() *FairLock {
	return &FairLock{}
}

// AcquireRead blocks until a shared acquisition is granted.
func (l *FairLock) AcquireRead() {
	_ = l.AcquireReadContext(context.Background())
}

// AcquireWrite blocks until an exclusive acquisition is granted.
func (l *FairLock) AcquireWrite() {
	_ = l.AcquireWriteContext(context.Background())
}

// AcquireReadContext blocks until a shared acquisition is granted or ctx is
// done. A reader is granted only when no writer holds the lock and no
// writer is waiting.
func (l *FairLock) AcquireReadContext(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for l.heldReaders == -1 || l.pendingWriters > 0 {
		if err := l.waitLocked(ctx, opAcquireRead); err != nil {
			return err
		}
	}
	l.heldReaders++
	return nil
}

// AcquireWriteContext blocks until an exclusive acquisition is granted or
// ctx is done. The writer counts as pending for the whole wait, which holds
// back new readers.
func (l *FairLock) AcquireWriteContext(ctx context.Context) (err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.pendingWriters++
	defer func() {
		l.pendingWriters--
		if err != nil {
			// Readers held back by this writer may now proceed.
			l.signalLocked()
		}
	}()

	for l.heldReaders != 0 {
		if err = l.waitLocked(ctx, opAcquireWrite); err != nil {
			return err
		}
	}
	l.heldReaders = -1
	return nil
}

// TryAcquireRead acquires shared access if it can be granted immediately.
func (l *FairLock) TryAcquireRead() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.heldReaders == -1 || l.pendingWriters > 0 {
		return false
	}
	l.heldReaders++
	return true
}

// TryAcquireWrite acquires exclusive access if the lock is free.
func (l *FairLock) TryAcquireWrite() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.heldReaders != 0 {
		return false
	}
	l.heldReaders = -1
	return true
}

// Release ends whichever mode the caller holds and wakes every waiter.
func (l *FairLock) Release() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch {
	case l.heldReaders == 0:
		err := &qerrors.LockStateError{
			Op:           opRelease,
			HeldReaders:  l.heldReaders,
			WaitingWrite: l.pendingWriters,
		}
		assertLockState(err)
		return err
	case l.heldReaders == -1:
		l.heldReaders = 0
	default:
		l.heldReaders--
	}

	// Broadcast: depending on the new state either readers or a writer
	// may be eligible.
	l.signalLocked()
	return nil
}

// State returns the current lock counters.
func (l *FairLock) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return State{HeldReaders: l.heldReaders, PendingWriters: l.pendingWriters}
}

// waitLocked releases l.mu until the next state change or ctx is done, and
// reacquires it before returning.
func (l *FairLock) waitLocked(ctx context.Context, op string) error {
	if l.changed == nil {
		l.changed = make(chan struct{})
	}
	ch := l.changed

	l.mu.Unlock()
	select {
	case <-ch:
		l.mu.Lock()
		return nil
	case <-ctx.Done():
		l.mu.Lock()
		return qerrors.NewInterruptedError(op, ctx.Err())
	}
}

func (l *FairLock) signalLocked() {
	if l.changed != nil {
		close(l.changed)
		l.changed = nil
	}
}
