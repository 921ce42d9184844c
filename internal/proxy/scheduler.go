package proxy

import "time"

// Timer is a cancellable one-shot timer handle.
type Timer interface {
	// Stop cancels the timer. Returns false if it already fired.
	Stop() bool
}

// Scheduler abstracts one-shot timer creation so tests can drive
// reconnect and auth-timeout behaviour with a fake clock.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

// realScheduler delegates to the runtime timer.
type realScheduler struct{}

func (realScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// NewScheduler returns the production scheduler backed by time.AfterFunc.
func NewScheduler() Scheduler {
	return realScheduler{}
}
