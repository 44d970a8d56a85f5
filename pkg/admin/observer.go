package admin

import "time"

// ConnectionListener receives every connection event of a pool.
// Implementations should be lightweight; callbacks run on the caller's
// goroutine, on the pool's hot path.
type ConnectionListener interface {
	// OnServed is called when a connection was served and returned after
	// being active for activeTime.
	OnServed(alias string, activeTime time.Duration)

	// OnRefused is called when a connection request was refused.
	OnRefused(alias string)
}

// NoOpConnectionListener is a no-op implementation of ConnectionListener.
type NoOpConnectionListener struct{}

var _ ConnectionListener = (*NoOpConnectionListener)(nil)

// OnServed implements ConnectionListener.
func (NoOpConnectionListener) OnServed(string, time.Duration) {}

// OnRefused implements ConnectionListener.
func (NoOpConnectionListener) OnRefused(string) {}
