package app

import "time"

// Timer is a cancelable single-shot timer handle.
type Timer interface {
	Stop() bool
}

// Scheduler arms single-shot timers. The default implementation wraps
// time.AfterFunc; tests inject a manual scheduler to drive question
// timeouts deterministically.
type Scheduler interface {
	AfterFunc(d time.Duration, fn func()) Timer
}

type realScheduler struct{}

func (realScheduler) AfterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}
