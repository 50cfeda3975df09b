package domain

import "time"

// Clock abstracts wall-clock time so deadline-gated transitions can be
// tested deterministically. There are no internal timers anywhere in the
// engine; every time-gated transition is pull-based and checks the injected
// clock at call time.
type Clock interface {
	Now() time.Time
}

// RealClock reads the system clock in UTC.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now().UTC() }
