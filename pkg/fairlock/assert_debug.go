//go:build lockdebug
// +build lockdebug

package fairlock

// assertLockState turns contract violations into panics in debug builds.
func assertLockState(err error) {
	panic(err)
}

func assertionsEnabled() bool {
	return true
}
